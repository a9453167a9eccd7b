package syscall

import (
	"encoding/binary"
	"time"

	"rvkernel/internal/defs"
	"rvkernel/internal/proc"
	"rvkernel/internal/vm"
)

// Futex operation codes, matching linux/futex.h's low bits (the
// FUTEX_PRIVATE_FLAG/FUTEX_CLOCK_REALTIME high bits are accepted and
// ignored: this kernel has no cross-process shared-memory futexes yet,
// so private-vs-shared makes no difference).
const (
	futexWait         = 0
	futexWake         = 1
	futexRequeue      = 3
	futexCmpRequeue   = 4
	futexPrivateFlag  = 128
	futexClockRealtime = 256
)

// sysFutex implements FUTEX_WAIT/FUTEX_WAKE/FUTEX_REQUEUE against the
// calling address space's virtual addresses; a wait's timeout timespec
// (seconds plus nanoseconds) is added to the current time to form its
// deadline.
func (k *Kernel) sysFutex(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t, Outcome) {
	op := int(a.A1) &^ (futexPrivateFlag | futexClockRealtime)
	addr := a.A0

	switch op {
	case futexWait:
		buf := make([]byte, 4)
		if err := ms.CopyIn(addr, buf); err != 0 {
			return 0, err, OutcomeContinue
		}
		if binary.LittleEndian.Uint32(buf) != uint32(a.A2) {
			return 0, -defs.EAGAIN, OutcomeContinue
		}
		deadline := int64(0)
		if a.A3 != 0 {
			var ts [16]byte
			if err := ms.CopyIn(a.A3, ts[:]); err == 0 {
				sec := int64(binary.LittleEndian.Uint64(ts[0:8]))
				nsec := int64(binary.LittleEndian.Uint64(ts[8:16]))
				deadline = time.Now().UnixNano() + sec*1_000_000_000 + nsec
			}
		}
		k.Futex.Wait(k.Sched, task, addr, deadline)
		return 0, 0, OutcomeBlocked

	case futexWake:
		n := k.Futex.Wake(k.Sched, addr, int(a.A2))
		return int64(n), 0, OutcomeContinue

	case futexRequeue, futexCmpRequeue:
		woken, _ := k.Futex.Requeue(k.Sched, addr, a.A4, int(a.A2), int(a.A3))
		return int64(woken), 0, OutcomeContinue

	default:
		return 0, -defs.ENOSYS, OutcomeContinue
	}
}
