package vm

import (
	"rvkernel/internal/defs"
)

// wordSize is the RV64 register width stack alignment and pointer-array
// entries are sized to.
const wordSize = 8

/// InitUserStack lays out argv/envp/auxv on a freshly loaded user stack
/// exactly as spec §4.3 describes, top-down: environment strings, then
/// argument strings, an AT_NULL-terminated auxiliary vector (high to
/// low), a zero envp terminator, the envp pointer array, a zero argv
/// terminator, the argv pointer array, and finally argc — leaving sp
/// word-aligned. It returns the final sp execve/the loader should hand
/// the task's trap context, or a negative errno if a write fails (the
/// stack region is still lazily faulted in by CopyOut as it goes, so
/// the only failure mode in practice is running off the bottom of the
/// stack region itself).
func InitUserStack(ms *MemorySet, stackTop uint64, argv, envp []string, aux []AuxEntry) (uint64, defs.Err_t) {
	sp := stackTop

	// Strings are pushed in reverse order so the lowest address holds
	// argv[0]/envp[0], matching how the pointer arrays below are built
	// in forward order against ascending addresses.
	envVAs := make([]uint64, len(envp))
	for i := len(envp) - 1; i >= 0; i-- {
		s := envp[i]
		sp -= uint64(len(s) + 1)
		if err := ms.CopyOut(sp, append([]byte(s), 0)); err != 0 {
			return 0, err
		}
		envVAs[i] = sp
	}
	argVAs := make([]uint64, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		s := argv[i]
		sp -= uint64(len(s) + 1)
		if err := ms.CopyOut(sp, append([]byte(s), 0)); err != 0 {
			return 0, err
		}
		argVAs[i] = sp
	}

	sp &^= wordSize - 1 // word-align before the aux vector begins

	// Auxiliary vector: AT_NULL sentinel pushed first (highest address), then
	// entries high to low, so a forward scan from the eventual aux
	// vector base sees real entries before AT_NULL.
	if err := pushWord(ms, &sp, 0); err != nil {
		return 0, *err
	}
	if err := pushWord(ms, &sp, AT_NULL); err != nil {
		return 0, *err
	}
	for i := len(aux) - 1; i >= 0; i-- {
		if err := pushWord(ms, &sp, aux[i].Val); err != nil {
			return 0, *err
		}
		if err := pushWord(ms, &sp, aux[i].Tag); err != nil {
			return 0, *err
		}
	}

	// envp[] terminator then the envp pointer array itself, high to low
	// so envVAs[0] ends up at the lowest address of the array.
	if err := pushWord(ms, &sp, 0); err != nil {
		return 0, *err
	}
	for i := len(envVAs) - 1; i >= 0; i-- {
		if err := pushWord(ms, &sp, envVAs[i]); err != nil {
			return 0, *err
		}
	}

	// argv[] terminator then the argv pointer array.
	if err := pushWord(ms, &sp, 0); err != nil {
		return 0, *err
	}
	for i := len(argVAs) - 1; i >= 0; i-- {
		if err := pushWord(ms, &sp, argVAs[i]); err != nil {
			return 0, *err
		}
	}

	// argc.
	if err := pushWord(ms, &sp, uint64(len(argv))); err != nil {
		return 0, *err
	}

	return sp, 0
}

// pushWord decrements *sp by one word and writes v there, little-endian,
// returning a non-nil *defs.Err_t only on failure (so callers can use a
// terse `if err := pushWord(...); err != nil` without a second variable).
func pushWord(ms *MemorySet, sp *uint64, v uint64) *defs.Err_t {
	*sp -= wordSize
	var buf [wordSize]byte
	for i := 0; i < wordSize; i++ {
		buf[i] = byte(v >> (8 * uint(i)))
	}
	if err := ms.CopyOut(*sp, buf[:]); err != 0 {
		return &err
	}
	return nil
}
