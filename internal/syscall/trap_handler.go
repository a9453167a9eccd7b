package syscall

import (
	"rvkernel/internal/proc"
	"rvkernel/internal/signal"
	"rvkernel/internal/trap"
	"rvkernel/internal/vm"
)

// faultKindFromAccess translates trap's load/store/exec classification
// (derived from scause) into vm's parallel FaultKind enum, so this
// package is the one place that bridges the two — trap and vm each stay
// free of a dependency on the other, per trap's own package doc.
func faultKindFromAccess(a trap.FaultAccess) vm.FaultKind {
	switch a {
	case trap.FaultAccessStore:
		return vm.FaultStore
	case trap.FaultAccessExec:
		return vm.FaultExec
	default:
		return vm.FaultLoad
	}
}

/// Handle is the trap-classify-dispatch step spec §4.8 describes: given
/// the scause/stval a real trap would have left in those CSRs, it
/// classifies the cause and acts on task's behalf. A syscall advances
/// sepc past the ecall instruction and runs Dispatch; a page fault is
/// resolved through CheckLazy, raising SIGSEGV on a fault CheckLazy
/// can't service; an illegal instruction raises SIGILL; a timer or
/// external interrupt does nothing and returns OutcomeContinue, the same
/// outcome as a completed syscall. Handle never delivers a signal itself — DeliverSignals does
/// that separately, so a syscall's own SIGSEGV/SIGILL lands in the same
/// pending set a concurrent kill(2) would use, instead of being
/// special-cased here.
func (k *Kernel) Handle(task *proc.TCB, cx *trap.Context, scause, stval uint64) Outcome {
	kind, access := trap.Classify(scause)

	switch kind {
	case trap.KindSyscall:
		cx.Sepc += 4 // ecall is a 4-byte instruction; RV64 has no compressed ecall
		return k.Dispatch(task, cx)

	case trap.KindPageFault:
		ms := task.MemorySet.MS
		ms.Lock()
		err := ms.CheckLazy(stval, faultKindFromAccess(access))
		ms.Unlock()
		if err != 0 {
			task.RaiseSignal(signal.SIGSEGV)
		}
		return OutcomeContinue

	case trap.KindIllegalInstruction:
		task.RaiseSignal(signal.SIGILL)
		return OutcomeContinue

	case trap.KindTimerInterrupt, trap.KindExternalInterrupt:
		return OutcomeContinue

	default: // KindFatal: a cause this kernel doesn't otherwise recognize
		task.RaiseSignal(signal.SIGSEGV)
		return OutcomeContinue
	}
}

/// DeliverSignals runs spec §4.9's delivery loop: repeatedly take the
/// lowest-numbered pending, unmasked signal and apply its disposition
/// before task returns to user mode. SIG_IGN clears the bit and moves
/// on; SIG_DFL runs the POSIX default action (DispTerm/DispCore exit
/// the task, DispStop/DispCont/DispIgn are no-ops in this kernel's
/// job-control-free model); an installed handler pushes a signal frame
/// via signal.PushFrame and stops the loop there, since the handler
/// itself must run (and sigreturn must pop the frame) before any
/// further signal can be considered. Returns OutcomeExited if a default
/// action killed the task.
func (k *Kernel) DeliverSignals(task *proc.TCB) Outcome {
	ms := task.MemorySet.MS
	tbl := task.SigActions.Table

	for {
		var pending, mask uint64
		task.WithInner(func(in *proc.Inner) {
			pending = in.PendingSignals
			mask = in.SigMask
		})
		sig, ok := signal.NextDeliverable(pending, mask)
		if !ok {
			return OutcomeContinue
		}

		act := tbl.Get(sig)
		switch act.Handler {
		case signal.SIG_IGN:
			task.WithInner(func(in *proc.Inner) { in.PendingSignals &^= signal.Bit(sig) })
			continue

		case signal.SIG_DFL:
			task.WithInner(func(in *proc.Inner) { in.PendingSignals &^= signal.Bit(sig) })
			switch signal.DefaultDisposition(sig) {
			case signal.DispTerm, signal.DispCore:
				k.sysExitGroup(task, 128+sig)
				return OutcomeExited
			default: // DispIgn, DispStop, DispCont: no job control, so treat as a no-op
				continue
			}

		default:
			task.WithInner(func(in *proc.Inner) { in.PendingSignals &^= signal.Bit(sig) })

			_, trapCxVA := task.TrapCx()
			var page [vm.PGSIZE]byte
			if err := ms.CopyIn(trapCxVA, page[:]); err != 0 {
				k.sysExitGroup(task, 128+sig)
				return OutcomeExited
			}
			cx := trap.View(&page)

			var savedMask uint64
			task.WithInner(func(in *proc.Inner) { savedMask = in.SigMask })
			if err := signal.PushFrame(ms, cx, sig, act, savedMask); err != 0 {
				k.sysExitGroup(task, 128+sig)
				return OutcomeExited
			}
			if err := ms.CopyOut(trapCxVA, page[:]); err != 0 {
				k.sysExitGroup(task, 128+sig)
				return OutcomeExited
			}
			task.WithInner(func(in *proc.Inner) { in.SigMask |= act.Mask | signal.Bit(sig) })
			return OutcomeContinue
		}
	}
}
