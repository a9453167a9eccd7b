package proc

import (
	"sync"

	"rvkernel/internal/defs"
)

/// PidAllocator hands out monotonically increasing pids/tids, recycling
/// released ones before minting new numbers, mirroring biscuit's
/// proc.Proc_t pid allocation (a package-level next-pid counter plus a
/// freed-pid pool) but scoped to an instance so tests don't share state.
type PidAllocator struct {
	mu      sync.Mutex
	next    int
	freed   []int
}

/// NewPidAllocator creates an allocator that starts minting pids at
/// start (1 is reserved for init in the usual convention; callers
/// running their own init task should pass a value matching that).
func NewPidAllocator(start int) *PidAllocator {
	return &PidAllocator{next: start}
}

/// Alloc returns a fresh pid, preferring a previously-released one.
func (p *PidAllocator) Alloc() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.freed); n > 0 {
		id := p.freed[n-1]
		p.freed = p.freed[:n-1]
		return id
	}
	id := p.next
	p.next++
	return id
}

/// Free releases pid back to the pool once its zombie has been reaped.
func (p *PidAllocator) Free(pid int) {
	p.mu.Lock()
	p.freed = append(p.freed, pid)
	p.mu.Unlock()
}

/// AsPid/AsTid are thin conversions so callers don't sprinkle int(...)
/// casts at every call site.
func AsPid(id int) defs.Pid_t { return defs.Pid_t(id) }
func AsTid(id int) defs.Tid_t { return defs.Tid_t(id) }
