package syscall

import (
	"sync"

	"rvkernel/internal/defs"
	"rvkernel/internal/fs/fscore"
	"rvkernel/internal/futex"
	"rvkernel/internal/mem"
	"rvkernel/internal/proc"
	"rvkernel/internal/sched"
	"rvkernel/internal/trap"
	"rvkernel/internal/vm"
)

/// Kernel bundles every subsystem a syscall handler might need to
/// reach, constructed once at boot and threaded through every dispatch
/// call. Grounded on original_source's dispatcher.rs taking a &mut
/// TaskControlBlock plus whatever global kernel state each syscall
/// touches; here that's gathered into one struct instead of several
/// loose globals, which is the idiomatic Go shape for it.
type Kernel struct {
	Sched           *sched.Scheduler
	Futex           *futex.Manager
	Pids            *proc.PidAllocator
	Root            *fscore.FS
	Alloc           *mem.Allocator
	KernelMS        *vm.MemorySet
	KernelSatp      uint64
	TrapReturnEntry uint64
	TrampolinePPN   mem.PPN

	nextKernelStack int
	mountTable      mounts

	tasksMu sync.Mutex
	tasks   map[int]*proc.TCB // keyed by tid; tgid lookups scan for the thread-group leader
}

/// nextKernelStackIndex hands out a fresh, never-reused kernel stack slot
/// index for a clone's child, mirroring how the original hands each new
/// task its own fixed-offset kernel stack region.
func (k *Kernel) nextKernelStackIndex() int {
	k.nextKernelStack++
	return k.nextKernelStack
}

/// RegisterTask makes t reachable from kill/tkill by tid and tgid; boot
/// calls this for the init task, and every clone handler calls it for
/// the children it spawns.
func (k *Kernel) RegisterTask(t *proc.TCB) {
	k.tasksMu.Lock()
	defer k.tasksMu.Unlock()
	if k.tasks == nil {
		k.tasks = make(map[int]*proc.TCB)
	}
	k.tasks[int(t.Tid)] = t
}

/// UnregisterTask drops t once it's been reaped.
func (k *Kernel) UnregisterTask(t *proc.TCB) {
	k.tasksMu.Lock()
	defer k.tasksMu.Unlock()
	delete(k.tasks, int(t.Tid))
}

func (k *Kernel) findByTid(tid int) (*proc.TCB, bool) {
	k.tasksMu.Lock()
	defer k.tasksMu.Unlock()
	t, ok := k.tasks[tid]
	return t, ok
}

func (k *Kernel) findByTgid(tgid int) (*proc.TCB, bool) {
	k.tasksMu.Lock()
	defer k.tasksMu.Unlock()
	for _, t := range k.tasks {
		if int(t.Tgid) == tgid {
			return t, true
		}
	}
	return nil, false
}

/// Args is the decoded argument register window (a0..a5) for one
/// syscall invocation.
type Args struct {
	A0, A1, A2, A3, A4, A5 uint64
}

func argsFromContext(cx *trap.Context) Args {
	return Args{
		A0: cx.X[trap.RegA0],
		A1: cx.X[trap.RegA1],
		A2: cx.X[trap.RegA2],
		A3: cx.X[trap.RegA3],
		A4: cx.X[trap.RegA4],
		A5: cx.X[trap.RegA5],
	}
}

/// Outcome tells the trap-return path what to do with the task that
/// just made this syscall: keep running it (the common case), park it
/// in the scheduler's blocked set (a read from an empty pipe, a futex
/// wait), or tear it down (exit/exit_group).
type Outcome int

const (
	OutcomeContinue Outcome = iota
	OutcomeBlocked
	OutcomeExited
)

/// Dispatch decodes and runs the syscall named by cx's a7 register on
/// behalf of task, writing its return value (or negated errno) back
/// into a0 unless the handler already parked the task (OutcomeBlocked)
/// or the task exited (OutcomeExited, where a0 is meaningless).
func (k *Kernel) Dispatch(task *proc.TCB, cx *trap.Context) Outcome {
	num := cx.X[trap.RegA7]
	args := argsFromContext(cx)
	ms := task.MemorySet.MS

	var ret int64
	var err defs.Err_t
	outcome := OutcomeContinue

	switch num {
	// fs
	case SysRead:
		ret, err = k.sysRead(task, ms, args)
	case SysWrite:
		ret, err = k.sysWrite(task, ms, args)
	case SysOpenat:
		ret, err = k.sysOpenat(task, ms, args)
	case SysClose:
		ret, err = k.sysClose(task, args)
	case SysFstat:
		ret, err = k.sysFstat(task, ms, args)
	case SysFstatat:
		ret, err = k.sysFstatat(task, ms, args)
	case SysGetdents64:
		ret, err = k.sysGetdents64(task, ms, args)
	case SysLseek:
		ret, err = k.sysLseek(task, args)
	case SysPread64:
		ret, err = k.sysPread(task, ms, args)
	case SysPwrite64:
		ret, err = k.sysPwrite(task, ms, args)
	case SysFtruncate:
		ret, err = k.sysFtruncate(task, args)
	case SysDup:
		ret, err = k.sysDup(task, args)
	case SysDup3:
		ret, err = k.sysDup3(task, args)
	case SysPipe2:
		ret, err = k.sysPipe2(task, ms, args)
	case SysMkdirat:
		ret, err = k.sysMkdirat(task, ms, args)
	case SysUnlinkat:
		ret, err = k.sysUnlinkat(task, ms, args)
	case SysChdir:
		ret, err = k.sysChdir(task, ms, args)
	case SysGetcwd:
		ret, err = k.sysGetcwd(task, ms, args)
	case SysFcntl:
		ret, err = k.sysFcntl(task, args)
	case SysIoctl:
		ret = 0
	case SysReadv:
		ret, err = k.sysReadv(task, ms, args)
	case SysWritev:
		ret, err = k.sysWritev(task, ms, args)
	case SysSendfile:
		ret, err = k.sysSendfile(task, ms, args)
	case SysLinkat:
		ret, err = k.sysLinkat(task, ms, args)
	case SysReadlinkat:
		ret, err = k.sysReadlinkat(task, ms, args)
	case SysMount:
		ret, err = k.sysMount(task, ms, args)
	case SysUmount2:
		ret, err = k.sysUmount2(task, ms, args)
	case SysStatfs:
		ret, err = k.sysStatfs(task, ms, args)
	case SysUtimensat:
		ret, err = k.sysUtimensat(task, ms, args)
	case SysSync:
		ret, err = k.sysSync(task)
	case SysRenameat2:
		ret, err = k.sysRenameat2(task, ms, args)
	case SysFaccessat:
		ret, err = k.sysFaccessat(task, ms, args)
	case SysFchdir:
		ret, err = k.sysFchdir(task, args)

	// mm
	case SysBrk:
		ret, err = k.sysBrk(task, args)
	case SysMmap:
		ret, err = k.sysMmap(task, ms, args)
	case SysMunmap:
		ret, err = k.sysMunmap(task, ms, args)
	case SysMprotect:
		ret, err = k.sysMprotect(task, ms, args)
	case SysMsync, SysMadvise:
		ret = 0

	// process
	case SysGetpid:
		ret = int64(task.Tgid)
	case SysGettid:
		ret = int64(task.Tid)
	case SysGetppid:
		ret = k.sysGetppid(task)
	case SysSchedYield:
		ret = 0
	case SysClone:
		ret, err = k.sysClone(task, cx, args)
	case SysExecve:
		ret, err = k.sysExecve(task, cx, ms, args)
	case SysWait4:
		ret, err, outcome = k.sysWait4(task, ms, args)
	case SysExit:
		k.sysExit(task, int(int32(args.A0)))
		return OutcomeExited
	case SysExitGroup:
		k.sysExitGroup(task, int(int32(args.A0)))
		return OutcomeExited
	case SysSetTidAddress:
		ret = k.sysSetTidAddress(task, args)
	case SysSetRobustList:
		ret = 0
	case SysGetrusage:
		ret, err = k.sysGetrusage(task, ms, args)
	case SysSetpriority, SysSetregid, SysSetreuid, SysSetpgid, SysSyslog:
		ret = 0
	case SysGetuid, SysGeteuid, SysGetgid, SysGetegid:
		ret = 0
	case SysGetpgid, SysSetsid:
		ret = int64(task.Tgid)
	case SysSchedGetaffinity:
		ret, err = k.sysSchedGetaffinity(ms, args)

	// signal
	case SysRtSigaction:
		ret, err = k.sysRtSigaction(task, ms, args)
	case SysRtSigprocmask:
		ret, err = k.sysRtSigprocmask(task, ms, args)
	case SysRtSigreturn:
		ret, err = k.sysRtSigreturn(task, ms, cx)
	case SysKill:
		ret, err = k.sysKill(task, args)
	case SysTkill:
		ret, err = k.sysTkill(task, args)
	case SysTgkill:
		ret, err = k.sysTgkill(task, args)
	case SysRtSigtimedwait:
		ret, err = k.sysRtSigtimedwait(task, ms, args)

	// futex
	case SysFutex:
		ret, err, outcome = k.sysFutex(task, ms, args)

	// time
	case SysNanosleep:
		ret, err, outcome = k.sysNanosleep(task, ms, args)
	case SysClockNanosleep:
		ret, err, outcome = k.sysClockNanosleep(task, ms, args)
	case SysClockGettime:
		ret, err = k.sysClockGettime(ms, args)
	case SysClockGetres:
		ret, err = k.sysClockGetres(ms, args)
	case SysGettimeofday:
		ret, err = k.sysGettimeofday(ms, args)
	case SysSetitimer:
		ret, err = k.sysSetitimer(task, ms, args)
	case SysGetitimer:
		ret, err = k.sysGetitimer(task, ms, args)
	case SysTimes:
		ret, err = k.sysTimes(task, ms, args)

	// misc
	case SysUname:
		ret, err = k.sysUname(ms, args)
	case SysGetrandom:
		ret, err = k.sysGetrandom(ms, args)
	case SysPrlimit64:
		ret, err = k.sysPrlimit64(task, ms, args)
	case SysUmask:
		ret = 0

	default:
		err = -defs.ENOSYS
	}

	if outcome == OutcomeContinue {
		if err != 0 {
			cx.X[trap.RegA0] = uint64(int64(err))
		} else {
			cx.X[trap.RegA0] = uint64(ret)
		}
	}
	return outcome
}
