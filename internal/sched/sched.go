// Package sched implements the scheduler state named in spec §3/§4.7: a
// FIFO ready queue, a wake-time-ordered sleep heap, a blocked set for
// futex and other arbitrary suspensions, and a per-hart Processor. This
// targets the single-hart model the spec scopes to (§5); every queue is
// guarded by its own mutex, taken only while mutating the queue itself,
// mirroring biscuit's own discipline of never calling into subsystems
// while holding a scheduler lock.
package sched

import (
	"container/heap"
	"container/list"
	"sync"
)

/// Task is the minimal surface the scheduler needs from a task control
/// block; internal/proc.TCB implements it. Kept narrow so this package
/// has no import-cycle dependency on internal/proc.
type Task interface {
	ID() int
}

type sleeper struct {
	wakeAt int64 // nanoseconds, monotonic
	task   Task
}

/// sleepHeap is a binary min-heap on wakeAt, giving "earliest wake time at
/// the top" (spec §3 describes this as a max-heap on reverse-ordered
/// keys; a plain min-heap on wakeAt is the same ordering expressed
/// directly, and container/heap's documented idiom is a min-heap).
type sleepHeap []*sleeper

func (h sleepHeap) Len() int            { return len(h) }
func (h sleepHeap) Less(i, j int) bool  { return h[i].wakeAt < h[j].wakeAt }
func (h sleepHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *sleepHeap) Push(x interface{}) { *h = append(*h, x.(*sleeper)) }
func (h *sleepHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

type blockedEntry struct {
	task     Task
	deadline int64 // nanoseconds; 0 means no timeout
	reason   string
}

/// Scheduler owns the three queues spec §3 names plus the per-hart
/// Processor. A single instance serves the one hart this spec targets
/// (§5's multi-hart variant would give each hart its own Processor and
/// wrap these queues in a shared spinlock instead of per-queue mutexes).
type Scheduler struct {
	readyMu sync.Mutex
	ready   *list.List // of Task

	sleepMu sync.Mutex
	sleep   sleepHeap

	blockedMu sync.Mutex
	blocked   *list.List // of *blockedEntry

	proc Processor
}

/// Processor is the per-hart scheduling cursor: the task currently
/// running, if any, and the saved context to switch back to when it
/// yields or blocks (the idle context, spec §3's `idle_task_cx`, is
/// represented here only as a toggle since this package doesn't own
/// actual register-context storage — that's internal/trap's job).
type Processor struct {
	mu      sync.Mutex
	current Task
}

/// Current returns the task presently assigned to the hart, if any.
func (p *Processor) Current() (Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.current != nil
}

func (p *Processor) setCurrent(t Task) {
	p.mu.Lock()
	p.current = t
	p.mu.Unlock()
}

/// New creates an empty scheduler.
func New() *Scheduler {
	s := &Scheduler{ready: list.New(), blocked: list.New()}
	heap.Init(&s.sleep)
	return s
}

/// Processor exposes the scheduler's per-hart cursor.
func (s *Scheduler) Processor() *Processor { return &s.proc }

/// AddTask appends t to the ready queue. Per spec §4.7's ordering
/// guarantee, t becomes eligible to run strictly after whatever is
/// currently running yields or is preempted — this call never itself
/// switches control.
func (s *Scheduler) AddTask(t Task) {
	s.readyMu.Lock()
	s.ready.PushBack(t)
	s.readyMu.Unlock()
}

/// FetchTask pops the next ready task, FIFO, or returns false if the
/// ready queue is empty.
func (s *Scheduler) FetchTask() (Task, bool) {
	s.readyMu.Lock()
	defer s.readyMu.Unlock()
	e := s.ready.Front()
	if e == nil {
		return nil, false
	}
	s.ready.Remove(e)
	return e.Value.(Task), true
}

/// ReadyLen reports the number of runnable tasks, for diagnostics/tests.
func (s *Scheduler) ReadyLen() int {
	s.readyMu.Lock()
	defer s.readyMu.Unlock()
	return s.ready.Len()
}

/// Run installs t as the current task on this hart. Callers are
/// expected to have already performed the actual register-context
/// switch; this just updates the scheduler's bookkeeping.
func (s *Scheduler) Run(t Task) { s.proc.setCurrent(t) }

/// Idle clears the current task, returning the hart to the idle state.
func (s *Scheduler) Idle() { s.proc.setCurrent(nil) }

/// SleepUntil parks t in the sleep heap until wakeAt (nanoseconds,
/// monotonic clock). Used by nanosleep and clock_nanosleep.
func (s *Scheduler) SleepUntil(t Task, wakeAt int64) {
	s.sleepMu.Lock()
	heap.Push(&s.sleep, &sleeper{wakeAt: wakeAt, task: t})
	s.sleepMu.Unlock()
}

/// PollSleepers moves every sleeper whose wake time is <= now into the
/// ready queue, draining the heap in non-decreasing wake-time order
/// (spec §4.7's ordering guarantee for the sleep heap), and returns them.
func (s *Scheduler) PollSleepers(now int64) []Task {
	s.sleepMu.Lock()
	var woken []Task
	for s.sleep.Len() > 0 && s.sleep[0].wakeAt <= now {
		sl := heap.Pop(&s.sleep).(*sleeper)
		woken = append(woken, sl.task)
	}
	s.sleepMu.Unlock()
	for _, t := range woken {
		s.AddTask(t)
	}
	return woken
}

/// Block moves t out of scheduling entirely into the blocked set, with
/// an optional deadline (0 meaning none) and a reason string used only
/// for diagnostics. Futex waits, pipe blocks, and wait4-with-no-zombie
/// all go through this one path (spec §4.7's "blocked set has no
/// intrinsic order").
func (s *Scheduler) Block(t Task, deadline int64, reason string) {
	s.blockedMu.Lock()
	s.blocked.PushBack(&blockedEntry{task: t, deadline: deadline, reason: reason})
	s.blockedMu.Unlock()
}

/// Unblock removes and returns the first blocked entry matching pred, or
/// false if none matches. Used by futex wake/requeue to pull a specific
/// waiter (matched by task identity) out of the blocked set directly,
/// rather than waiting for a timeout poll.
func (s *Scheduler) Unblock(pred func(t Task) bool) (Task, bool) {
	s.blockedMu.Lock()
	defer s.blockedMu.Unlock()
	for e := s.blocked.Front(); e != nil; e = e.Next() {
		be := e.Value.(*blockedEntry)
		if pred(be.task) {
			s.blocked.Remove(e)
			return be.task, true
		}
	}
	return nil, false
}

/// PollBlocked moves every blocked entry whose deadline has passed (and
/// whose deadline is nonzero) into the ready queue, and returns them so
/// the caller can mark their wait result ETIMEDOUT. Matches spec
/// §4.7 step 3: "poll blocked set for futex-interrupted or timed-out
/// waiters".
func (s *Scheduler) PollBlocked(now int64) []Task {
	s.blockedMu.Lock()
	var timedOut []Task
	var next list.List
	for e := s.blocked.Front(); e != nil; e = e.Next() {
		be := e.Value.(*blockedEntry)
		if be.deadline != 0 && be.deadline <= now {
			timedOut = append(timedOut, be.task)
		} else {
			next.PushBack(be)
		}
	}
	s.blocked = &next
	s.blockedMu.Unlock()
	for _, t := range timedOut {
		s.AddTask(t)
	}
	return timedOut
}

/// PollSignaled moves every blocked entry satisfying hasPendingSignal
/// into the ready queue, implementing the "a pending signal not in mask
/// promotes a futex waiter to ready" rule of spec §4.7.
func (s *Scheduler) PollSignaled(hasPendingSignal func(t Task) bool) []Task {
	s.blockedMu.Lock()
	var woken []Task
	var next list.List
	for e := s.blocked.Front(); e != nil; e = e.Next() {
		be := e.Value.(*blockedEntry)
		if hasPendingSignal(be.task) {
			woken = append(woken, be.task)
		} else {
			next.PushBack(be)
		}
	}
	s.blocked = &next
	s.blockedMu.Unlock()
	for _, t := range woken {
		s.AddTask(t)
	}
	return woken
}
