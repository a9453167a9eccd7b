package syscall

import (
	"encoding/binary"

	"rvkernel/internal/defs"
	"rvkernel/internal/fs/fscore"
	"rvkernel/internal/pagetable"
	"rvkernel/internal/proc"
	"rvkernel/internal/sched"
	"rvkernel/internal/trap"
	"rvkernel/internal/vm"
)

func (k *Kernel) sysGetppid(task *proc.TCB) int64 {
	p := task.Parent()
	if p == nil {
		return 1
	}
	return int64(p.Tgid)
}

// sysClone's argument order (flags, stack, parent_tid, tls, child_tid)
// matches this kernel's own clone() libc stub, documented as an open
// question resolution in DESIGN.md rather than any single upstream ABI.
func (k *Kernel) sysClone(task *proc.TCB, cx *trap.Context, a Args) (int64, defs.Err_t) {
	cargs := proc.CloneArgs{
		Flags:        int(a.A0),
		ChildStackSP: a.A1,
		ParentTidPtr: a.A2,
		TLS:          a.A3,
		ChildTidPtr:  a.A4,
	}
	res := proc.CloneResources{
		Alloc:            k.Alloc,
		Pids:             k.Pids,
		KernelMS:         k.KernelMS,
		KernelStackIndex: k.nextKernelStackIndex(),
		TrapReturnEntry:  k.TrapReturnEntry,
		KernelSatp:       k.KernelSatp,
		ThreadIndex:      k.nextKernelStackIndex(),
	}
	child, err := proc.Clone(task, cargs, res)
	if err != 0 {
		return 0, err
	}
	k.RegisterTask(child)
	k.Sched.AddTask(child)
	return int64(child.Tid), 0
}

// maxExecArg bounds how long a single argv/envp string execve will read
// out of user memory, and maxExecArgs bounds the array lengths — both
// generous enough for this kernel's own userland benchmarks (spec §9)
// while keeping a malformed pointer array from spinning forever.
const (
	maxExecArg  = 4096
	maxExecArgs = 256
)

// readStringVector reads a NUL-terminated array of uint64 string
// pointers starting at arr (argv/envp's own wire shape) and returns the
// decoded strings, in order.
func readStringVector(ms *vm.MemorySet, arr uint64) ([]string, defs.Err_t) {
	if arr == 0 {
		return nil, 0
	}
	var out []string
	for i := 0; i < maxExecArgs; i++ {
		var ptrBuf [8]byte
		if err := ms.CopyIn(arr+uint64(i)*8, ptrBuf[:]); err != 0 {
			return nil, err
		}
		ptr := binary.LittleEndian.Uint64(ptrBuf[:])
		if ptr == 0 {
			return out, 0
		}
		s, err := ms.CopyInString(ptr, maxExecArg)
		if err != 0 {
			return nil, err
		}
		out = append(out, s)
	}
	return out, -defs.E2BIG
}

// execReadWholeFile reads an already-resolved regular file fully into
// memory, the same eager-load shape boot.Boot uses for init's image —
// the ELF parser needs the header bytes directly out of a slice rather
// than streaming through the block cache.
func execReadWholeFile(entry *fscore.Entry) ([]byte, defs.Err_t) {
	buf := make([]byte, entry.Size)
	off := int64(0)
	for off < int64(len(buf)) {
		n, err := entry.File.ReadAt(off, buf[off:])
		if err != nil {
			return nil, -defs.EIO
		}
		if n == 0 {
			break
		}
		off += int64(n)
	}
	return buf, 0
}

// sysExecve replaces task's address space with a freshly loaded ELF
// image, matching spec §8 scenario 1's fork/exec/wait4 round trip: a
// new MemorySet is built and loaded independently of the old one (so a
// mid-load failure leaves the caller's current image intact, per
// execve(2)'s usual all-or-nothing contract), and only swapped into the
// task via SharedMemorySet.Replace once loading and stack layout have
// both succeeded. File descriptors and signal actions follow POSIX
// exec semantics: cloexec-marked fds close, sigactions reset to
// SIG_DFL (SIG_IGN survives), per table.ResetOnExec's own doc comment.
func (k *Kernel) sysExecve(task *proc.TCB, cx *trap.Context, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	path, err := ms.CopyInString(a.A0, 4096)
	if err != 0 {
		return 0, err
	}
	argv, err := readStringVector(ms, a.A1)
	if err != 0 {
		return 0, err
	}
	envp, err := readStringVector(ms, a.A2)
	if err != 0 {
		return 0, err
	}
	if len(argv) == 0 {
		argv = []string{path}
	}

	entry, err := k.walkEntry(task, AtFDCWD, path)
	if err != 0 {
		return 0, err
	}
	if entry.IsDir {
		return 0, -defs.EISDIR
	}
	data, err := execReadWholeFile(entry)
	if err != 0 {
		return 0, err
	}

	newMS := vm.New(k.Alloc)
	loaded, lerr := vm.LoadELFInto(newMS, data, k.TrampolinePPN, nil)
	if lerr != nil {
		return 0, -defs.ENOEXEC
	}
	sp, serr := vm.InitUserStack(newMS, loaded.UserStackTop, argv, envp, loaded.Aux)
	if serr != 0 {
		return 0, serr
	}
	trapCxPTE, ok := newMS.Table.Lookup(pagetable.VPN(vm.TrapContextVA / vm.PGSIZE))
	if !ok {
		return 0, -defs.ENOEXEC
	}

	task.FdTable.Table.CloseOnExec()
	task.SigActions.Table.ResetOnExec()
	task.MemorySet.Replace(newMS)
	task.SetTrapCx(trapCxPTE.PPN(), vm.TrapContextVA)

	kernelSatp, kernelSp, trapHandler := cx.KernelSatp, cx.KernelSp, cx.TrapHandler
	*cx = trap.NewAppInitContext(loaded.Entry, sp)
	cx.KernelSatp, cx.KernelSp, cx.TrapHandler = kernelSatp, kernelSp, trapHandler
	cx.X[trap.RegA0] = uint64(len(argv))
	return 0, 0
}

func (k *Kernel) sysExit(task *proc.TCB, code int) {
	task.Exit(code)
	k.wakeWaitingParent(task)
}

func (k *Kernel) sysExitGroup(task *proc.TCB, code int) {
	task.Exit(code)
	k.wakeWaitingParent(task)
}

func (k *Kernel) wakeWaitingParent(task *proc.TCB) {
	parent := task.Parent()
	if parent == nil {
		return
	}
	if t, ok := k.Sched.Unblock(func(t sched.Task) bool { return t.ID() == int(parent.Tid) }); ok {
		k.Sched.AddTask(t)
	}
}

const wnohang = 1

// sysWait4 reaps an already-zombie child matching pid (0 or -1 meaning
// "any child") without blocking; if none is ready and WNOHANG wasn't
// passed, it parks the caller and reports OutcomeBlocked so the
// scheduler retries the syscall once a child exits and wakes it.
func (k *Kernel) sysWait4(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t, Outcome) {
	pid := int64(int32(a.A0))
	statusVA := a.A1
	flags := int(a.A2)

	children := task.ChildrenSnapshot()
	if len(children) == 0 {
		return 0, -defs.ECHILD, OutcomeContinue
	}
	for _, c := range children {
		if pid > 0 && int64(c.Tgid) != pid {
			continue
		}
		status, code := c.ExitInfo()
		if status == proc.StatusZombie {
			task.RemoveChild(c)
			k.UnregisterTask(c)
			if statusVA != 0 {
				var buf [4]byte
				binary.LittleEndian.PutUint32(buf[:], wstatus(code))
				if err := ms.CopyOut(statusVA, buf[:]); err != 0 {
					return 0, err, OutcomeContinue
				}
			}
			return int64(c.Tgid), 0, OutcomeContinue
		}
	}
	if flags&wnohang != 0 {
		return 0, 0, OutcomeContinue
	}
	k.Sched.Block(task, 0, "wait4")
	return 0, 0, OutcomeBlocked
}

// wstatus packs an exit code into wait(2)'s convention: low byte 0 means
// "exited normally", with the exit code in the next byte up.
func wstatus(code int) uint32 { return uint32(code&0xff) << 8 }

func (k *Kernel) sysSetTidAddress(task *proc.TCB, a Args) int64 {
	task.WithInner(func(in *proc.Inner) { in.ClearChildTid = a.A0 })
	return int64(task.Tid)
}

// sysGetrusage reports only RUSAGE_SELF's accounting; RUSAGE_CHILDREN
// would need per-process child accumulation this kernel doesn't track
// yet (children's Accnt dies with their TCB at reap time).
func (k *Kernel) sysGetrusage(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	var ru proc.Rusage
	task.WithInner(func(in *proc.Inner) { ru = in.Accnt.ToRusage() })
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:], uint64(ru.UtimeSec))
	binary.LittleEndian.PutUint64(buf[8:], uint64(ru.UtimeUsec))
	if err := ms.CopyOut(a.A1, buf); err != 0 {
		return 0, err
	}
	return 0, 0
}
