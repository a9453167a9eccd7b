//go:build !linux

package hostblk

import (
	"fmt"
	"runtime"
)

// SizeBytes is only meaningful against a Linux block-device node;
// elsewhere mkfs falls back to a regular file image and this is never
// called for that path.
func SizeBytes(path string) (uint64, error) {
	return 0, fmt.Errorf("hostblk: raw block device sizing unsupported on %s", runtime.GOOS)
}
