// Package hostblk resolves the size of a real block-device node on the
// host so cmd/mkfs can format a disk image directly onto e.g. /dev/sdX
// instead of a regular file. Grounded on other_examples' tinyrange rv64
// virtio sketch for the idea that a block device's capacity has to be
// queried rather than assumed, and on the pack's own golang.org/x/sys
// usage (dsmmcken-dh-cli's src/internal/vm/machine_linux.go calls
// unix.Fallocate/unix.Fadvise on raw file descriptors) for the style of
// going straight through x/sys/unix rather than re-deriving ioctl
// numbers by hand. SizeBytes itself is Linux-only (see
// hostblk_linux.go/hostblk_other.go); IsDevice is plain os.FileMode and
// needs no platform split.
package hostblk

import "os"

// IsDevice reports whether path names an existing block-device node
// rather than a regular file.
func IsDevice(path string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return fi.Mode()&os.ModeDevice != 0, nil
}
