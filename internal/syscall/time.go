package syscall

import (
	"encoding/binary"
	"time"

	"rvkernel/internal/defs"
	"rvkernel/internal/proc"
	"rvkernel/internal/signal"
	"rvkernel/internal/vm"
)

// sysNanosleep parks the caller in the sleep heap until the requested
// duration elapses; the boot loop's PollSleepers call is what actually
// promotes it back to ready, matching spec §4.7's sleep-heap design
// rather than a busy-wait.
func (k *Kernel) sysNanosleep(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t, Outcome) {
	var ts [16]byte
	if err := ms.CopyIn(a.A0, ts[:]); err != 0 {
		return 0, err, OutcomeContinue
	}
	sec := int64(binary.LittleEndian.Uint64(ts[0:8]))
	nsec := int64(binary.LittleEndian.Uint64(ts[8:16]))
	wakeAt := time.Now().UnixNano() + sec*1_000_000_000 + nsec
	k.Sched.SleepUntil(task, wakeAt)
	return 0, 0, OutcomeBlocked
}

// CLOCK_REALTIME and CLOCK_MONOTONIC are both backed by the same
// wall-clock source; this kernel has no separate monotonic counter
// distinct from the host-visible clock the boot environment provides.
const (
	clockRealtime  = 0
	clockMonotonic = 1
)

func (k *Kernel) sysClockGettime(ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	switch int(a.A0) {
	case clockRealtime, clockMonotonic:
	default:
		return 0, -defs.EINVAL
	}
	now := time.Now().UnixNano()
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(now/1_000_000_000))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(now%1_000_000_000))
	return 0, ms.CopyOut(a.A1, buf[:])
}

func (k *Kernel) sysGettimeofday(ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	now := time.Now().UnixNano()
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(now/1_000_000_000))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(now%1_000_000_000/1_000))
	return 0, ms.CopyOut(a.A0, buf[:])
}

// timerAbstime is clock_nanosleep's TIMER_ABSTIME flag.
const timerAbstime = 1

func (k *Kernel) sysClockNanosleep(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t, Outcome) {
	switch int(a.A0) {
	case clockRealtime, clockMonotonic:
	default:
		return 0, -defs.EINVAL, OutcomeContinue
	}
	var ts [16]byte
	if err := ms.CopyIn(a.A2, ts[:]); err != 0 {
		return 0, err, OutcomeContinue
	}
	req := int64(binary.LittleEndian.Uint64(ts[0:8]))*1_000_000_000 +
		int64(binary.LittleEndian.Uint64(ts[8:16]))
	now := time.Now().UnixNano()
	wakeAt := now + req
	if a.A1&timerAbstime != 0 {
		wakeAt = req
	}
	if wakeAt <= now {
		return 0, 0, OutcomeContinue
	}
	k.Sched.SleepUntil(task, wakeAt)
	return 0, 0, OutcomeBlocked
}

// itimerReal is the only which-value setitimer/getitimer accept here;
// ITIMER_VIRTUAL/ITIMER_PROF would need per-task CPU-time accounting
// hooks in the scheduler tick that don't exist.
const itimerReal = 0

func itimervalNs(buf []byte) (intervalNs, valueNs int64) {
	intervalNs = int64(binary.LittleEndian.Uint64(buf[0:8]))*1_000_000_000 +
		int64(binary.LittleEndian.Uint64(buf[8:16]))*1_000
	valueNs = int64(binary.LittleEndian.Uint64(buf[16:24]))*1_000_000_000 +
		int64(binary.LittleEndian.Uint64(buf[24:32]))*1_000
	return
}

func putItimerval(buf []byte, intervalNs, valueNs int64) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(intervalNs/1_000_000_000))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(intervalNs%1_000_000_000/1_000))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(valueNs/1_000_000_000))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(valueNs%1_000_000_000/1_000))
}

func (k *Kernel) sysSetitimer(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	if int(a.A0) != itimerReal {
		return 0, -defs.EINVAL
	}
	now := time.Now().UnixNano()
	if a.A2 != 0 {
		old := make([]byte, 32)
		task.WithInner(func(in *proc.Inner) {
			remaining := int64(0)
			if in.IntervalTimer.NextFireNs > now {
				remaining = in.IntervalTimer.NextFireNs - now
			}
			putItimerval(old, in.IntervalTimer.IntervalNs, remaining)
		})
		if err := ms.CopyOut(a.A2, old); err != 0 {
			return 0, err
		}
	}
	if a.A1 == 0 {
		return 0, 0
	}
	buf := make([]byte, 32)
	if err := ms.CopyIn(a.A1, buf); err != 0 {
		return 0, err
	}
	intervalNs, valueNs := itimervalNs(buf)
	task.WithInner(func(in *proc.Inner) {
		if valueNs == 0 {
			in.IntervalTimer = proc.Itimer{}
			return
		}
		in.IntervalTimer = proc.Itimer{NextFireNs: now + valueNs, IntervalNs: intervalNs}
	})
	return 0, 0
}

func (k *Kernel) sysGetitimer(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	if int(a.A0) != itimerReal {
		return 0, -defs.EINVAL
	}
	now := time.Now().UnixNano()
	buf := make([]byte, 32)
	task.WithInner(func(in *proc.Inner) {
		remaining := int64(0)
		if in.IntervalTimer.NextFireNs > now {
			remaining = in.IntervalTimer.NextFireNs - now
		}
		putItimerval(buf, in.IntervalTimer.IntervalNs, remaining)
	})
	return 0, ms.CopyOut(a.A1, buf)
}

// clkTck is the USER_HZ tick rate times(2) reports in.
const clkTck = 100

func (k *Kernel) sysTimes(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	const nsPerTick = 1_000_000_000 / clkTck
	var user, sys int64
	task.WithInner(func(in *proc.Inner) {
		user = in.Accnt.Userns
		sys = in.Accnt.Sysns
	})
	buf := make([]byte, 32)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(user/nsPerTick))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(sys/nsPerTick))
	// cutime/cstime stay zero: reaped children's time is not recorded
	// anywhere (wait4 does not fold it into the parent's Accnt).
	if a.A0 != 0 {
		if err := ms.CopyOut(a.A0, buf); err != 0 {
			return 0, err
		}
	}
	return time.Now().UnixNano() / nsPerTick, 0
}

/// RunIntervalTimers fires task's ITIMER_REAL if its deadline has
/// passed, raising SIGALRM and rearming a periodic timer; runs on every
/// return-to-user, just before signal delivery, so the SIGALRM it
/// raises is considered in the same delivery pass.
func (k *Kernel) RunIntervalTimers(task *proc.TCB, now int64) {
	task.WithInner(func(in *proc.Inner) {
		it := &in.IntervalTimer
		if it.NextFireNs == 0 || now < it.NextFireNs {
			return
		}
		in.PendingSignals |= signal.Bit(signal.SIGALRM)
		if it.IntervalNs > 0 {
			it.NextFireNs = now + it.IntervalNs
		} else {
			it.NextFireNs = 0
		}
	})
}

func (k *Kernel) sysClockGetres(ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	switch int(a.A0) {
	case clockRealtime, clockMonotonic:
	default:
		return 0, -defs.EINVAL
	}
	if a.A1 == 0 {
		return 0, 0
	}
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[8:16], 1)
	return 0, ms.CopyOut(a.A1, buf[:])
}
