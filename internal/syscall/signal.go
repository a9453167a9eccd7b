package syscall

import (
	"encoding/binary"

	"rvkernel/internal/defs"
	"rvkernel/internal/proc"
	"rvkernel/internal/sched"
	"rvkernel/internal/signal"
	"rvkernel/internal/trap"
	"rvkernel/internal/vm"
)

func (k *Kernel) sysRtSigaction(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	sig := int(a.A0)
	if sig <= 0 || sig >= signal.NSIG {
		return 0, -defs.EINVAL
	}
	tbl := task.SigActions.Table
	if a.A2 != 0 {
		old := tbl.Get(sig)
		if err := ms.CopyOut(a.A2, marshalAction(old)); err != 0 {
			return 0, err
		}
	}
	if a.A1 != 0 {
		buf := make([]byte, 32)
		if err := ms.CopyIn(a.A1, buf); err != 0 {
			return 0, err
		}
		tbl.Set(sig, unmarshalAction(buf))
	}
	return 0, 0
}

func marshalAction(act signal.Action) []byte {
	buf := make([]byte, 32)
	binary.LittleEndian.PutUint64(buf[0:], act.Handler)
	binary.LittleEndian.PutUint64(buf[8:], act.Flags)
	binary.LittleEndian.PutUint64(buf[16:], act.Restorer)
	binary.LittleEndian.PutUint64(buf[24:], act.Mask)
	return buf
}

func unmarshalAction(buf []byte) signal.Action {
	return signal.Action{
		Handler:  binary.LittleEndian.Uint64(buf[0:]),
		Flags:    binary.LittleEndian.Uint64(buf[8:]),
		Restorer: binary.LittleEndian.Uint64(buf[16:]),
		Mask:     binary.LittleEndian.Uint64(buf[24:]),
	}
}

// sysRtSigprocmask implements SIG_BLOCK/SIG_UNBLOCK/SIG_SETMASK against
// the calling task's own mask; sigprocmask is per-thread, never
// per-thread-group, so no sharing wrapper is involved here the way
// SigActions is.
func (k *Kernel) sysRtSigprocmask(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	const (
		sigBlock   = 0
		sigUnblock = 1
		sigSetmask = 2
	)
	how := int(a.A0)
	var oldMask uint64
	task.WithInner(func(in *proc.Inner) { oldMask = in.SigMask })
	if a.A2 != 0 {
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, oldMask)
		if err := ms.CopyOut(a.A2, buf); err != 0 {
			return 0, err
		}
	}
	if a.A1 == 0 {
		return 0, 0
	}
	buf := make([]byte, 8)
	if err := ms.CopyIn(a.A1, buf); err != 0 {
		return 0, err
	}
	set := binary.LittleEndian.Uint64(buf) &^ (signal.Bit(signal.SIGKILL) | signal.Bit(signal.SIGSTOP))
	task.WithInner(func(in *proc.Inner) {
		switch how {
		case sigBlock:
			in.SigMask |= set
		case sigUnblock:
			in.SigMask &^= set
		case sigSetmask:
			in.SigMask = set
		}
	})
	return 0, 0
}

// sysRtSigreturn restores the trap context rt_sigreturn's trampoline
// jumped to, reading the frame address out of the task's own stack
// pointer the way the original handler's signal-trampoline convention
// expects (the frame was pushed just below the handler's own sp at
// delivery time, so by the time the handler returns, sp once again
// points at it).
func (k *Kernel) sysRtSigreturn(task *proc.TCB, ms *vm.MemorySet, cx *trap.Context) (int64, defs.Err_t) {
	frameVA := cx.X[trap.RegSP]
	restoreMask, err := signal.PopFrame(ms, frameVA, cx)
	if err != 0 {
		return 0, err
	}
	task.WithInner(func(in *proc.Inner) { in.SigMask = restoreMask })
	return int64(cx.X[trap.RegA0]), 0
}

func (k *Kernel) sysKill(task *proc.TCB, a Args) (int64, defs.Err_t) {
	pid := int(int32(a.A0))
	sig := int(a.A1)
	target, ok := k.findByTgid(pid)
	if !ok {
		return 0, -defs.ENOENT
	}
	target.RaiseSignal(sig)
	if t, ok := k.Sched.Unblock(func(t sched.Task) bool { return t.ID() == target.ID() }); ok {
		k.Sched.AddTask(t)
	}
	return 0, 0
}

func (k *Kernel) sysTkill(task *proc.TCB, a Args) (int64, defs.Err_t) {
	tid := int(int32(a.A0))
	sig := int(a.A1)
	target, ok := k.findByTid(tid)
	if !ok {
		return 0, -defs.ENOENT
	}
	target.RaiseSignal(sig)
	if t, ok := k.Sched.Unblock(func(t sched.Task) bool { return t.ID() == target.ID() }); ok {
		k.Sched.AddTask(t)
	}
	return 0, 0
}

func (k *Kernel) sysTgkill(task *proc.TCB, a Args) (int64, defs.Err_t) {
	tgid := int(int32(a.A0))
	tid := int(int32(a.A1))
	sig := int(a.A2)
	target, ok := k.findByTid(tid)
	if !ok {
		return 0, -defs.ESRCH
	}
	if tgid != -1 && int(target.Tgid) != tgid {
		return 0, -defs.ESRCH
	}
	if sig == 0 {
		return 0, 0
	}
	target.RaiseSignal(sig)
	if t, ok := k.Sched.Unblock(func(t sched.Task) bool { return t.ID() == target.ID() }); ok {
		k.Sched.AddTask(t)
	}
	return 0, 0
}

// sysRtSigtimedwait polls once for a pending signal in the requested
// set, consuming and returning it; with nothing pending it reports
// -EAGAIN rather than suspending the caller, the poll-shaped subset the
// targeted userland needs (sigtimedwait with a zero timeout).
func (k *Kernel) sysRtSigtimedwait(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	var setBuf [8]byte
	if err := ms.CopyIn(a.A0, setBuf[:]); err != 0 {
		return 0, err
	}
	set := binary.LittleEndian.Uint64(setBuf[:])

	var got int
	task.WithInner(func(in *proc.Inner) {
		for s := 1; s < signal.NSIG; s++ {
			if in.PendingSignals&set&signal.Bit(s) != 0 {
				in.PendingSignals &^= signal.Bit(s)
				got = s
				return
			}
		}
	})
	if got == 0 {
		return 0, -defs.EAGAIN
	}
	if a.A1 != 0 {
		// siginfo_t: only si_signo is populated.
		info := make([]byte, 128)
		binary.LittleEndian.PutUint32(info[0:], uint32(got))
		if err := ms.CopyOut(a.A1, info); err != 0 {
			return 0, err
		}
	}
	return int64(got), 0
}
