package syscall

import (
	"encoding/binary"
	"testing"

	"rvkernel/internal/proc"
	"rvkernel/internal/signal"
	"rvkernel/internal/trap"
	"rvkernel/internal/vm"
)

func readTrapCx(t *testing.T, task *proc.TCB) *trap.Context {
	t.Helper()
	_, va := task.TrapCx()
	var page [vm.PGSIZE]byte
	if err := task.MemorySet.MS.CopyIn(va, page[:]); err != 0 {
		t.Fatalf("copyin trap cx failed: %d", err)
	}
	cx := *trap.View(&page)
	return &cx
}

func TestHandleSyscallAdvancesSepcAndDispatches(t *testing.T) {
	k, task := newTestKernel(t)

	_, va := task.TrapCx()
	var page [vm.PGSIZE]byte
	if err := task.MemorySet.MS.CopyIn(va, page[:]); err != 0 {
		t.Fatalf("copyin failed: %d", err)
	}
	cx := trap.View(&page)
	cx.Sepc = 0x1000
	cx.X[trap.RegA7] = SysGetpid

	outcome := k.Handle(task, cx, trap.ExcUserEcall, 0)
	if outcome != OutcomeContinue {
		t.Fatalf("outcome = %v, want OutcomeContinue", outcome)
	}
	if cx.Sepc != 0x1004 {
		t.Fatalf("sepc = %#x, want 0x1004 (advanced past ecall)", cx.Sepc)
	}
	if got := int64(cx.X[trap.RegA0]); got != int64(task.Tgid) {
		t.Fatalf("a0 = %d, want tgid %d", got, task.Tgid)
	}
}

func TestHandleIllegalInstructionRaisesSIGILL(t *testing.T) {
	k, task := newTestKernel(t)
	cx := &trap.Context{}

	outcome := k.Handle(task, cx, trap.ExcIllegalInstr, 0)
	if outcome != OutcomeContinue {
		t.Fatalf("outcome = %v, want OutcomeContinue", outcome)
	}
	if !task.HasPendingSignal() {
		t.Fatal("illegal instruction should raise a pending signal")
	}
}

func TestHandleTimerInterruptIsANoOp(t *testing.T) {
	k, task := newTestKernel(t)
	cx := &trap.Context{}

	outcome := k.Handle(task, cx, uint64(1)<<63|trap.IntSupervisorTimer, 0)
	if outcome != OutcomeContinue {
		t.Fatalf("outcome = %v, want OutcomeContinue", outcome)
	}
	if task.HasPendingSignal() {
		t.Fatal("a timer interrupt should not raise any signal")
	}
}

func TestDeliverSignalsIgnoresSIG_IGN(t *testing.T) {
	k, task := newTestKernel(t)
	task.SigActions.Table.Set(signal.SIGUSR1, signal.Action{Handler: signal.SIG_IGN})
	task.RaiseSignal(signal.SIGUSR1)

	if outcome := k.DeliverSignals(task); outcome != OutcomeContinue {
		t.Fatalf("outcome = %v, want OutcomeContinue", outcome)
	}
	if task.HasPendingSignal() {
		t.Fatal("SIG_IGN should have cleared the pending bit")
	}
}

func TestDeliverSignalsDefaultTerminatesOnSIGTERM(t *testing.T) {
	k, task := newTestKernel(t)
	task.RaiseSignal(signal.SIGTERM)

	outcome := k.DeliverSignals(task)
	if outcome != OutcomeExited {
		t.Fatalf("outcome = %v, want OutcomeExited", outcome)
	}
	if status, code := task.ExitInfo(); status != proc.StatusZombie || code != 128+signal.SIGTERM {
		t.Fatalf("got (%v, %d), want (StatusZombie, %d)", status, code, 128+signal.SIGTERM)
	}
}

func TestDeliverSignalsPushesHandlerFrame(t *testing.T) {
	k, task := newTestKernel(t)
	const handlerVA = 0x40000
	const restorerVA = 0x40100
	task.SigActions.Table.Set(signal.SIGUSR1, signal.Action{Handler: handlerVA, Restorer: restorerVA, Mask: 0})
	task.RaiseSignal(signal.SIGUSR1)

	_, va := task.TrapCx()
	const userSP = 0x1000 * 11 // inside the stack region this task's address space maps
	var spWord [8]byte
	binary.LittleEndian.PutUint64(spWord[:], userSP)
	if err := task.MemorySet.MS.CopyOut(va+trap.OffReg(trap.RegSP), spWord[:]); err != 0 {
		t.Fatalf("copyout sp failed: %d", err)
	}

	outcome := k.DeliverSignals(task)
	if outcome != OutcomeContinue {
		t.Fatalf("outcome = %v, want OutcomeContinue", outcome)
	}

	after := readTrapCx(t, task)
	if after.Sepc != handlerVA {
		t.Fatalf("sepc = %#x, want handler %#x", after.Sepc, handlerVA)
	}
	if after.X[trap.RegA0] != signal.SIGUSR1 {
		t.Fatalf("a0 = %d, want signal number %d", after.X[trap.RegA0], signal.SIGUSR1)
	}
	if after.X[1] != restorerVA {
		t.Fatalf("ra = %#x, want restorer %#x", after.X[1], restorerVA)
	}
	if task.HasPendingSignal() {
		t.Fatal("the delivered signal should no longer be pending")
	}
}
