package syscall

import (
	"encoding/binary"
	"math/rand"

	"rvkernel/internal/defs"
	"rvkernel/internal/proc"
	"rvkernel/internal/vm"
)

// utsField is one null-padded 65-byte struct utsname member.
const utsField = 65

func putUtsField(buf []byte, off int, s string) {
	copy(buf[off:off+utsField], s)
}

// sysUname reports a fixed uname(2) identity; there is no build-time
// version string wired in yet, so release/version are static.
func (k *Kernel) sysUname(ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	buf := make([]byte, utsField*6)
	putUtsField(buf, 0*utsField, "Linux")
	putUtsField(buf, 1*utsField, "rvkernel")
	putUtsField(buf, 2*utsField, "0.1.0")
	putUtsField(buf, 3*utsField, "#1")
	putUtsField(buf, 4*utsField, "riscv64")
	putUtsField(buf, 5*utsField, "")
	return 0, ms.CopyOut(a.A0, buf)
}

// sysGetrandom is backed by math/rand rather than a hardware TRNG or
// SBI's (nonstandard) entropy extension; fine for a freestanding
// kernel's getrandom(2) stub, not for anything security-sensitive.
func (k *Kernel) sysGetrandom(ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	n := int(a.A1)
	if n <= 0 {
		return 0, 0
	}
	buf := make([]byte, n)
	rand.Read(buf)
	if err := ms.CopyOut(a.A0, buf); err != 0 {
		return 0, err
	}
	return int64(n), 0
}

func (k *Kernel) sysPrlimit64(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	pid := int(int32(a.A0))
	resource := int(a.A1)
	target := task
	if pid != 0 && pid != int(task.Tgid) {
		t, ok := k.findByTgid(pid)
		if !ok {
			return 0, -defs.ESRCH
		}
		target = t
	}

	if a.A3 != 0 {
		old, err := target.GetRlimit(resource)
		if err != 0 {
			return 0, err
		}
		buf := make([]byte, 16)
		binary.LittleEndian.PutUint64(buf[0:], old.Cur)
		binary.LittleEndian.PutUint64(buf[8:], old.Max)
		if cerr := ms.CopyOut(a.A3, buf); cerr != 0 {
			return 0, cerr
		}
	}
	if a.A2 != 0 {
		buf := make([]byte, 16)
		if err := ms.CopyIn(a.A2, buf); err != 0 {
			return 0, err
		}
		lim := proc.Rlimit{
			Cur: binary.LittleEndian.Uint64(buf[0:]),
			Max: binary.LittleEndian.Uint64(buf[8:]),
		}
		if err := target.SetRlimit(resource, lim); err != 0 {
			return 0, err
		}
	}
	return 0, 0
}

// sysSchedGetaffinity reports the single-hart mask this spec targets.
func (k *Kernel) sysSchedGetaffinity(ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	size := int(a.A1)
	if size < 8 {
		return 0, -defs.EINVAL
	}
	var mask [8]byte
	mask[0] = 1
	if err := ms.CopyOut(a.A2, mask[:]); err != 0 {
		return 0, err
	}
	return 8, 0
}
