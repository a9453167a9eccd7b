package proc

import (
	"encoding/binary"

	"rvkernel/internal/defs"
	"rvkernel/internal/mem"
	"rvkernel/internal/pagetable"
	"rvkernel/internal/trap"
	"rvkernel/internal/vm"
)

// Clone flag bits, matching Linux's clone(2) numbering exactly so
// userland's libc clone wrapper (and anything built against the real
// <sched.h> constants) needs no translation layer.
const (
	CLONE_VM              = 0x00000100
	CLONE_FS              = 0x00000200
	CLONE_FILES           = 0x00000400
	CLONE_SIGHAND         = 0x00000800
	CLONE_THREAD          = 0x00010000
	CLONE_SETTLS          = 0x00080000
	CLONE_PARENT_SETTID   = 0x00100000
	CLONE_CHILD_CLEARTID  = 0x00200000
	CLONE_CHILD_SETTID    = 0x01000000
)

/// CloneArgs bundles sys_clone's arguments after the syscall layer has
/// already decoded them; argument order on the wire is (flags, stack,
/// parent_tid, tls, child_tid) per this kernel's documented open-question
/// resolution (see DESIGN.md).
type CloneArgs struct {
	Flags        int
	ChildStackSP uint64 // 0 means "reuse the parent's current sp" (fork-style)
	ParentTidPtr uint64
	TLS          uint64
	ChildTidPtr  uint64
}

/// CloneResources bundles the allocator-adjacent state Clone needs but
/// doesn't own: the physical frame allocator backing every address
/// space, the pid allocator, the kernel's own address space (kernel
/// stacks live there, not in the child's user address space), and the
/// index to place the new kernel stack at.
type CloneResources struct {
	Alloc            *mem.Allocator
	Pids             *PidAllocator
	KernelMS         *vm.MemorySet
	KernelStackIndex int
	TrapReturnEntry  uint64 // VA the trampoline resumes at on first switch-in
	KernelSatp       uint64 // the kernel address space's satp value
	ThreadIndex      int    // only consulted when CLONE_THREAD is set
}

/// Clone builds a child TCB out of parent according to args, following
/// clone(2)'s resource-sharing rules: CLONE_VM shares the address
/// space, CLONE_FILES shares the fd table, CLONE_SIGHAND shares the
/// sigaction table, CLONE_THREAD keeps the child in the parent's thread
/// group (same Tgid) rather than starting a new one. A plain fork()
/// (flags == 0) shares none of them and gets its own tgid equal to its
/// own tid.
func Clone(parent *TCB, args CloneArgs, res CloneResources) (*TCB, defs.Err_t) {
	childTid := res.Pids.Alloc()

	parent.MemorySet.mu.RLock()
	parentMS := parent.MemorySet.MS
	parent.MemorySet.mu.RUnlock()

	var childMS *SharedMemorySet
	if args.Flags&CLONE_VM != 0 {
		childMS = parent.MemorySet
	} else {
		newMS, err := parentMS.Fork(0)
		if err != 0 {
			res.Pids.Free(childTid)
			return nil, err
		}
		childMS = &SharedMemorySet{MS: newMS}
	}

	_, parentTrapCxVA := parent.TrapCx()

	var trapCxPPN mem.PPN
	var trapCxVA uint64
	childMS.mu.Lock()
	if args.Flags&CLONE_THREAD != 0 {
		frame := childMS.MS.MapThreadTrapContext(res.ThreadIndex)
		trapCxPPN = frame.PPN()
		trapCxVA = vm.TrapContextVA - uint64(res.ThreadIndex+1)*vm.PGSIZE

		// A cloned thread must resume from the same syscall the parent
		// is blocked in (spec §4.6: "the trap context is memcpy'd from
		// the parent"), not from a freshly zeroed page — MapThreadTrapContext
		// only allocates the frame. The process-fork path gets this for
		// free through MemorySet.Fork's eager trap-context copy; threads
		// bypass Fork entirely, so it has to happen here.
		var trapCxBuf [trap.OffTrapHandler + 8]byte
		if err := parentMS.CopyIn(parentTrapCxVA, trapCxBuf[:]); err != 0 {
			res.Pids.Free(childTid)
			return nil, err
		}
		if err := childMS.MS.CopyOut(trapCxVA, trapCxBuf[:]); err != 0 {
			res.Pids.Free(childTid)
			return nil, err
		}
	} else {
		parent.mu.Lock()
		trapCxVA = parent.inner.TrapCxVA
		parent.mu.Unlock()
		if pte, ok := childMS.MS.Table.Lookup(pagetable.VPN(trapCxVA / vm.PGSIZE)); ok {
			trapCxPPN = pte.PPN()
		}
	}
	childMS.mu.Unlock()

	var childFd *SharedFdTable
	if args.Flags&CLONE_FILES != 0 {
		childFd = parent.FdTable
	} else {
		childFd = &SharedFdTable{Table: parent.FdTable.Table.Clone()}
	}

	var childSig *SharedSigActions
	if args.Flags&CLONE_SIGHAND != 0 {
		childSig = parent.SigActions
	} else {
		childSig = &SharedSigActions{Table: parent.SigActions.Table.Clone()}
	}

	kstackTop := AllocKernelStack(res.KernelMS, res.KernelStackIndex)
	taskCx := NewTaskContext(res.TrapReturnEntry, kstackTop)

	tgid := defs.Pid_t(childTid)
	if args.Flags&CLONE_THREAD != 0 {
		tgid = parent.Tgid
	}

	child := &TCB{
		Tid:        defs.Tid_t(childTid),
		Tgid:       tgid,
		MemorySet:  childMS,
		FdTable:    childFd,
		SigActions: childSig,
	}
	child.inner.TaskCx = taskCx
	child.inner.TrapCxPPN = trapCxPPN
	child.inner.TrapCxVA = trapCxVA
	child.inner.Status = StatusReady
	child.inner.Rlimit = defaultRlimits()

	parent.mu.Lock()
	child.inner.Cwd = parent.inner.Cwd
	parent.inner.Children = append(parent.inner.Children, child)
	parent.mu.Unlock()
	child.inner.Parent = parent

	if args.Flags&CLONE_CHILD_CLEARTID != 0 {
		child.inner.ClearChildTid = args.ChildTidPtr
	}

	if err := patchChildTrapContext(childMS.MS, trapCxVA, args, taskCx, res); err != 0 {
		return nil, err
	}

	return child, 0
}

// patchChildTrapContext rewrites the child's freshly-copied trap
// context so it returns 0 from the syscall that spawned it (clone's
// return-value convention: the parent sees the child's pid/tid, the
// child sees 0), installs a new stack pointer/TLS base if requested,
// and points kernel_satp/kernel_sp/trap_handler at the child's own
// kernel-side resources. Done through CopyOut rather than a direct
// pointer, since a CLONE_VM-less child's trap-context page lives in a
// freshly forked address space this package has no other handle into.
func patchChildTrapContext(ms *vm.MemorySet, trapCxVA uint64, args CloneArgs, taskCx TaskContext, res CloneResources) defs.Err_t {
	var word [8]byte

	putReg := func(i int, v uint64) defs.Err_t {
		binary.LittleEndian.PutUint64(word[:], v)
		return ms.CopyOut(trapCxVA+trap.OffReg(i), word[:])
	}
	putField := func(off uint64, v uint64) defs.Err_t {
		binary.LittleEndian.PutUint64(word[:], v)
		return ms.CopyOut(trapCxVA+off, word[:])
	}

	if err := putReg(trap.RegA0, 0); err != 0 {
		return err
	}
	if args.ChildStackSP != 0 {
		if err := putReg(trap.RegSP, args.ChildStackSP); err != 0 {
			return err
		}
	}
	if args.Flags&CLONE_SETTLS != 0 {
		if err := putReg(trap.RegTP, args.TLS); err != 0 {
			return err
		}
	}
	if err := putField(trap.OffKernelSatp, res.KernelSatp); err != 0 {
		return err
	}
	if err := putField(trap.OffKernelSp, taskCx.SP); err != 0 {
		return err
	}
	if err := putField(trap.OffTrapHandler, res.TrapReturnEntry); err != 0 {
		return err
	}
	return 0
}
