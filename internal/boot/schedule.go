package boot

import (
	"time"

	"rvkernel/internal/proc"
	"rvkernel/internal/sched"
	"rvkernel/internal/syscall"
	"rvkernel/internal/trap"
	"rvkernel/internal/vm"
)

// Trap bundles the scause/stval CSR values a real trampoline would have
// left for the trap handler to read. A host process has no S-mode hart
// to fault from, so Step's caller supplies these explicitly in place of
// the CSR reads the assembly stub would otherwise perform.
type Trap struct {
	Scause uint64
	Stval  uint64
}

// Step runs one iteration of spec §4.7's scheduler loop body:
// promote any sleeper whose wake time has passed, any blocked task
// whose deadline elapsed, and any blocked task with a now-deliverable
// signal back onto the ready queue; fetch the next ready task; and run
// it through exactly one trap. Since this process has no real hart,
// the trap it runs the task through is tr rather than one actually
// raised by executing the task's own code — this is the "Step models
// the trap-classify-dispatch loop precisely, but a host process never
// truly enters S-mode" limit this package's doc comment already
// documents. Returns the task it stepped, or ok == false if the ready
// queue was empty (nothing to step this iteration).
func (s *System) Step(tr Trap) (task *proc.TCB, ok bool) {
	now := time.Now().UnixNano()
	s.Kernel.Sched.PollSleepers(now)
	s.Kernel.Sched.PollBlocked(now)
	s.Kernel.Sched.PollSignaled(func(t sched.Task) bool {
		return t.(*proc.TCB).HasPendingSignal()
	})

	next, found := s.Kernel.Sched.FetchTask()
	if !found {
		s.Kernel.Sched.Idle()
		return nil, false
	}
	task = next.(*proc.TCB)
	s.Kernel.Sched.Run(task)

	outcome := s.stepTrap(task, tr)

	s.Kernel.Sched.Idle()
	switch outcome {
	case syscall.OutcomeExited:
		s.Kernel.UnregisterTask(task)
	case syscall.OutcomeBlocked:
		// The syscall handler already parked task on a sleep/blocked
		// queue (nanosleep, futex wait, wait4-with-no-zombie); it must
		// not also go back on the ready queue.
	default:
		s.Kernel.Sched.AddTask(task)
	}
	return task, true
}

// stepTrap loads task's trap context off its own address space, runs it
// through Kernel.Handle, writes the (possibly advanced-past-ecall,
// possibly syscall-return-value-carrying) context back, and then runs
// the signal-delivery loop before task is considered done with this
// trap.
func (s *System) stepTrap(task *proc.TCB, tr Trap) syscall.Outcome {
	ms := task.MemorySet.MS
	_, trapCxVA := task.TrapCx()

	var page [vm.PGSIZE]byte
	if err := ms.CopyIn(trapCxVA, page[:]); err != 0 {
		task.Exit(int(-err))
		return syscall.OutcomeExited
	}
	cx := trap.View(&page)

	outcome := s.Kernel.Handle(task, cx, tr.Scause, tr.Stval)
	if outcome != syscall.OutcomeContinue {
		return outcome
	}
	if err := ms.CopyOut(trapCxVA, page[:]); err != 0 {
		task.Exit(int(-err))
		return syscall.OutcomeExited
	}
	s.Kernel.RunIntervalTimers(task, time.Now().UnixNano())
	return s.Kernel.DeliverSignals(task)
}

// Schedule repeatedly calls Step, pulling the next trap to deliver from
// nextTrap, until nextTrap has nothing left to offer or a Step finds
// the ready queue empty. Grounded on the original's rust_main tail
// calling run_tasks() in an unconditional loop; here the loop is
// bounded by nextTrap instead, since synthesizing an unbounded stream
// of traps on a host with no real hart would just spin forever with no
// new work ever arriving.
func (s *System) Schedule(nextTrap func() (Trap, bool)) {
	for {
		tr, more := nextTrap()
		if !more {
			return
		}
		if _, ran := s.Step(tr); !ran {
			return
		}
	}
}
