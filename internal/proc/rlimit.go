package proc

import "rvkernel/internal/defs"

// Resource indices for getrlimit/setrlimit/prlimit64, matching Linux's
// RLIMIT_* numbering so userland's <sys/resource.h> constants line up.
const (
	RlimitCPU = iota
	RlimitFsize
	RlimitData
	RlimitStack
	RlimitCore
	RlimitRSS
	RlimitNproc
	RlimitNofile
	RlimitMemlock
	RlimitAs
	rlimitCount
)

// RlimInfinity is the "no limit" sentinel rlimit fields use.
const RlimInfinity = ^uint64(0)

/// Rlimit is one {soft, hard} resource-limit pair.
type Rlimit struct {
	Cur, Max uint64
}

// defaultRlimits seeds a fresh task's limits; RLIMIT_NOFILE defaults to
// 1024, the same number as internal/fd.Table's own fixed cap (the table
// does not consult this limit), and everything else defaults to
// unlimited.
func defaultRlimits() [rlimitCount]Rlimit {
	var r [rlimitCount]Rlimit
	for i := range r {
		r[i] = Rlimit{Cur: RlimInfinity, Max: RlimInfinity}
	}
	r[RlimitNofile] = Rlimit{Cur: 1024, Max: 1024}
	return r
}

/// GetRlimit returns resource's current limit pair for t, or EINVAL if
/// resource is out of range.
func (t *TCB) GetRlimit(resource int) (Rlimit, defs.Err_t) {
	if resource < 0 || resource >= rlimitCount {
		return Rlimit{}, -defs.EINVAL
	}
	var r Rlimit
	t.WithInner(func(in *Inner) { r = in.Rlimit[resource] })
	return r, 0
}

/// SetRlimit installs a new limit pair for resource on t.
func (t *TCB) SetRlimit(resource int, lim Rlimit) defs.Err_t {
	if resource < 0 || resource >= rlimitCount {
		return -defs.EINVAL
	}
	t.WithInner(func(in *Inner) { in.Rlimit[resource] = lim })
	return 0
}
