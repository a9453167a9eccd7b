package proc

import (
	"sync"

	"rvkernel/internal/defs"
	"rvkernel/internal/fd"
	"rvkernel/internal/mem"
	"rvkernel/internal/signal"
	"rvkernel/internal/vm"
)

/// Status is a task's scheduling state, matching the original's
/// TaskStatus enum (Ready/Running/Blocked/Zombie).
type Status int

const (
	StatusReady Status = iota
	StatusRunning
	StatusBlocked
	StatusZombie
)

/// SharedMemorySet is a process's address space, reference-counted by
/// however many TCBs point at it (CLONE_VM threads share one; a forked
/// child gets its own). Grounded on biscuit's Proc_t wrapping Vm_t
/// behind a single owning pointer per process — this kernel's threads
/// need the RWMutex biscuit's Vm_t already embeds, surfaced here so
/// multiple TCBs can share the pointer safely.
type SharedMemorySet struct {
	mu sync.RWMutex
	MS *vm.MemorySet
}

/// Replace swaps in a freshly loaded address space, used by execve
/// (spec §6's execve entry) to give the thread group a wholly new image
/// in place of the one it's replacing. Every thread of the group sees
/// the new MS through this same SharedMemorySet the next time it reads
/// MS; execve itself is responsible for tearing down anything that made
/// the old image's threads other than the caller meaningless (this
/// kernel's execve only runs on a single-threaded caller, matching the
/// conventional restriction that execve with live sibling threads is
/// normally preceded by an implicit thread-group kill, which isn't
/// implemented here — see DESIGN.md).
func (s *SharedMemorySet) Replace(ms *vm.MemorySet) {
	s.mu.Lock()
	s.MS = ms
	s.mu.Unlock()
}

/// SharedFdTable is a process's file-descriptor table, shared between
/// threads when CLONE_FILES is set.
type SharedFdTable struct {
	Table *fd.Table
}

/// SharedSigActions is a thread group's sigaction table, shared between
/// threads when CLONE_SIGHAND is set.
type SharedSigActions struct {
	Table *signal.Table
}

/// Itimer mirrors the one-shot/interval POSIX interval timer state
/// setitimer(2) configures: the absolute next-fire time (0 = disarmed)
/// and, for a periodic timer, the interval to rearm with after firing.
type Itimer struct {
	NextFireNs int64
	IntervalNs int64
}

/// Inner holds every field of a TCB that changes during the task's
/// life and therefore needs its own lock, separate from the identity
/// fields (Tid/Tgid) and the shared resources above that have their
/// own locking. Grounded on the original's TaskControlBlockInner,
/// folding in the handful of fields biscuit's Tnote_t/Proc_t track that
/// the original's inner struct doesn't (Rlimit, RobustList).
type Inner struct {
	TaskCx TaskContext

	Status    Status
	TrapCxPPN mem.PPN
	TrapCxVA  uint64

	Parent   *TCB
	Children []*TCB

	PendingSignals uint64
	SigMask        uint64

	Cwd      string
	ExitCode int

	Accnt Accnt

	ClearChildTid uint64
	RobustList    uint64
	Rlimit        [rlimitCount]Rlimit
	IntervalTimer Itimer

	// TrapCause, when non-nil, records the scause value that put this
	// task into StatusZombie via a fatal trap (illegal instruction,
	// unhandled page fault), for wait4's WIFSIGNALED reporting.
	TrapCause *uint64
}

/// TCB is one task: a thread within a thread group (tgid == pid for a
/// single-threaded process's sole thread, shared across every thread of
/// a multi-threaded one). Grounded on the original's
/// TaskControlBlock{,Inner} split (identity/shared-resources outside
/// the lock, everything else inside it) and on biscuit's Proc_t/
/// Thread_t pairing for which fields are process-wide versus
/// thread-local in THIS kernel's simplified one-address-space-per-
/// process model (memory_set/fd_table/sig_actions are the ones
/// CLONE_VM/CLONE_FILES/CLONE_SIGHAND can make process-wide; everything
/// else is always per-thread).
type TCB struct {
	Tid  defs.Tid_t
	Tgid defs.Pid_t

	MemorySet  *SharedMemorySet
	FdTable    *SharedFdTable
	SigActions *SharedSigActions

	mu    sync.Mutex
	inner Inner
}

/// ID satisfies sched.Task.
func (t *TCB) ID() int { return int(t.Tid) }

/// Inner runs f with the TCB's inner state locked, returning f's
/// result. Kept as a single lock-and-call method (rather than exposing
/// Lock/Unlock) so callers can't forget to release it — matching how
/// short-lived VM and fd operations already take ms.mu internally.
func (t *TCB) WithInner(f func(*Inner)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f(&t.inner)
}

/// Status reads the task's current status.
func (t *TCB) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inner.Status
}

/// SetStatus updates the task's status.
func (t *TCB) SetStatus(s Status) {
	t.mu.Lock()
	t.inner.Status = s
	t.mu.Unlock()
}

/// RaiseSignal sets sig's pending bit.
func (t *TCB) RaiseSignal(sig int) {
	t.mu.Lock()
	t.inner.PendingSignals |= signal.Bit(sig)
	t.mu.Unlock()
}

/// HasPendingSignal reports whether any signal is both pending and not
/// masked, the same test internal/sched's PollSignaled predicate needs.
func (t *TCB) HasPendingSignal() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := signal.NextDeliverable(t.inner.PendingSignals, t.inner.SigMask)
	return ok
}

/// CwdPath returns the task's current working directory.
func (t *TCB) CwdPath() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inner.Cwd
}

/// SetCwdPath updates the task's current working directory.
func (t *TCB) SetCwdPath(p string) {
	t.mu.Lock()
	t.inner.Cwd = p
	t.mu.Unlock()
}

/// Parent returns the task's parent, or nil for the init task.
func (t *TCB) Parent() *TCB {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inner.Parent
}

/// ChildrenSnapshot returns a copy of the task's current children list.
func (t *TCB) ChildrenSnapshot() []*TCB {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*TCB, len(t.inner.Children))
	copy(out, t.inner.Children)
	return out
}

/// RemoveChild drops c from the task's children list, used by wait4 once
/// a zombie child has been reaped.
func (t *TCB) RemoveChild(c *TCB) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, ch := range t.inner.Children {
		if ch == c {
			t.inner.Children = append(t.inner.Children[:i], t.inner.Children[i+1:]...)
			return
		}
	}
}

/// ExitInfo reports the task's status and, once it's a zombie, the code
/// passed to exit/exit_group.
func (t *TCB) ExitInfo() (Status, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inner.Status, t.inner.ExitCode
}

/// SetTrapCx updates the task's trap-context PPN/VA, used by execve
/// once the new image's trap-context page has replaced the old one.
func (t *TCB) SetTrapCx(ppn mem.PPN, va uint64) {
	t.mu.Lock()
	t.inner.TrapCxPPN = ppn
	t.inner.TrapCxVA = va
	t.mu.Unlock()
}

/// TrapCx returns the task's current trap-context PPN/VA.
func (t *TCB) TrapCx() (mem.PPN, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inner.TrapCxPPN, t.inner.TrapCxVA
}

/// Exit marks the task a zombie with the given exit code, matching
/// biscuit's Proc_t.Doomed/terminate bookkeeping generalized to this
/// kernel's single-TCB-per-thread model.
func (t *TCB) Exit(code int) {
	t.mu.Lock()
	t.inner.Status = StatusZombie
	t.inner.ExitCode = code
	t.mu.Unlock()
}

/// NewInit constructs the first TCB in the system (pid 1), with fresh,
/// unshared resources.
func NewInit(tid defs.Tid_t, tgid defs.Pid_t, ms *vm.MemorySet, fdt *fd.Table, sigActions *signal.Table, trapCxPPN mem.PPN, trapCxVA uint64, taskCx TaskContext) *TCB {
	t := &TCB{
		Tid:        tid,
		Tgid:       tgid,
		MemorySet:  &SharedMemorySet{MS: ms},
		FdTable:    &SharedFdTable{Table: fdt},
		SigActions: &SharedSigActions{Table: sigActions},
	}
	t.inner.TaskCx = taskCx
	t.inner.TrapCxPPN = trapCxPPN
	t.inner.TrapCxVA = trapCxVA
	t.inner.Status = StatusReady
	t.inner.Cwd = "/"
	t.inner.Rlimit = defaultRlimits()
	return t
}
