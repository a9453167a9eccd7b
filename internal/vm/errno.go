package vm

import (
	"fmt"

	"rvkernel/internal/defs"
)

// errnoError wraps a negative defs.Err_t as a Go error, for the handful
// of call sites (ELF loading, exec) that report failure through the
// standard error interface instead of Err_t directly.
func errnoError(e defs.Err_t) error {
	if e == 0 {
		return nil
	}
	return fmt.Errorf("errno %d", -e)
}
