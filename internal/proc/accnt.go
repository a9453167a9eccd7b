// Package proc implements the task control block spec §3/§4 describe:
// per-task accounting, pid allocation, kernel stack placement, the
// saved callee-context swapped by a context switch, and the clone/fork
// flow that builds a child TCB's resources out of a parent's. Grounded
// throughout on biscuit's accnt.Accnt_t, fd.Fd_t, and proc.Proc_t/
// Thread_t shapes (biscuit/src/{accnt,fd,proc}), generalized from
// x86-64 thread/process bookkeeping to this kernel's task model and
// supplemented with the clone(2)-ABI details original_source/.../
// task.rs assumes but biscuit's own thread creation doesn't need.
package proc

import (
	"sync"
	"sync/atomic"
	"time"
)

/// Accnt accumulates one task's CPU-time usage, split into user and
/// system nanoseconds, ported directly from biscuit's Accnt_t.
type Accnt struct {
	Userns int64
	Sysns  int64
	mu     sync.Mutex
}

/// Utadd adds delta nanoseconds to the user-time counter.
func (a *Accnt) Utadd(delta int64) { atomic.AddInt64(&a.Userns, delta) }

/// Systadd adds delta nanoseconds to the system-time counter.
func (a *Accnt) Systadd(delta int64) { atomic.AddInt64(&a.Sysns, delta) }

/// Now returns the current monotonic time in nanoseconds.
func (a *Accnt) Now() int64 { return time.Now().UnixNano() }

/// IoTime removes time spent waiting for I/O from system time, so I/O
/// waits don't inflate a task's reported CPU usage.
func (a *Accnt) IoTime(since int64) { a.Systadd(since - a.Now()) }

/// SleepTime removes time spent sleeping from system time, for the same
/// reason as IoTime.
func (a *Accnt) SleepTime(since int64) { a.Systadd(since - a.Now()) }

/// Finish adds the time elapsed since inttime to system time, called
/// when a task returns from a trap back to the scheduler.
func (a *Accnt) Finish(inttime int64) { a.Systadd(a.Now() - inttime) }

/// Add merges n's counters into a, used when a thread's usage folds
/// into its thread group's aggregate on exit.
func (a *Accnt) Add(n *Accnt) {
	a.mu.Lock()
	a.Userns += n.Userns
	a.Sysns += n.Sysns
	a.mu.Unlock()
}

/// Rusage is the {user, system} timeval pair getrusage/wait4 report.
type Rusage struct {
	UtimeSec, UtimeUsec int64
	StimeSec, StimeUsec int64
}

/// ToRusage snapshots a's counters into the wire-ready Rusage shape.
func (a *Accnt) ToRusage() Rusage {
	a.mu.Lock()
	defer a.mu.Unlock()
	toTV := func(nano int64) (int64, int64) {
		return nano / 1e9, (nano % 1e9) / 1000
	}
	us, uu := toTV(a.Userns)
	ss, su := toTV(a.Sysns)
	return Rusage{UtimeSec: us, UtimeUsec: uu, StimeSec: ss, StimeUsec: su}
}
