package proc

import (
	"encoding/binary"
	"testing"

	"rvkernel/internal/fd"
	"rvkernel/internal/mem"
	"rvkernel/internal/signal"
	"rvkernel/internal/trap"
	"rvkernel/internal/vm"
)

func newTestParent(t *testing.T) (*TCB, *PidAllocator, CloneResources) {
	t.Helper()
	alloc := mem.NewAllocator(0, 256)
	ms := vm.New(alloc)
	ms.PushAnon(vm.KindStack, 5, 9, 0)
	trapFrame := ms.MapTrapContext()

	pids := NewPidAllocator(2)
	parent := NewInit(1, 1, ms, fd.New(), signal.NewTable(), trapFrame.PPN(), vm.TrapContextVA, TaskContext{})

	kernelMS := vm.New(alloc)
	res := CloneResources{
		Alloc:            alloc,
		Pids:             pids,
		KernelMS:         kernelMS,
		KernelStackIndex: 0,
		TrapReturnEntry:  0xdead0000,
		KernelSatp:       0x8000000000000abc,
	}
	return parent, pids, res
}

func readA0(t *testing.T, ms *vm.MemorySet, trapCxVA uint64) uint64 {
	t.Helper()
	buf := make([]byte, 8)
	if err := ms.CopyIn(trapCxVA+trap.OffReg(trap.RegA0), buf); err != 0 {
		t.Fatalf("copyin failed: %d", err)
	}
	return binary.LittleEndian.Uint64(buf)
}

func TestCloneForkGetsOwnTgidAndLinkage(t *testing.T) {
	parent, _, res := newTestParent(t)
	child, err := Clone(parent, CloneArgs{}, res)
	if err != 0 {
		t.Fatalf("clone failed: %d", err)
	}
	if child.Tgid == parent.Tgid {
		t.Fatal("plain fork should get its own tgid")
	}
	if child.MemorySet.MS == parent.MemorySet.MS {
		t.Fatal("plain fork should not share the address space")
	}
	parent.WithInner(func(in *Inner) {
		if len(in.Children) != 1 || in.Children[0] != child {
			t.Fatal("parent should record the new child")
		}
	})
	if child.inner.Parent != parent {
		t.Fatal("child should record its parent")
	}
	if got := readA0(t, child.MemorySet.MS, child.inner.TrapCxVA); got != 0 {
		t.Fatalf("child trap context a0 should be 0 (clone's child-sees-zero convention), got %d", got)
	}
}

func TestCloneVMSharesAddressSpace(t *testing.T) {
	parent, _, res := newTestParent(t)
	child, err := Clone(parent, CloneArgs{Flags: CLONE_VM | CLONE_THREAD}, res)
	if err != 0 {
		t.Fatalf("clone failed: %d", err)
	}
	if child.MemorySet.MS != parent.MemorySet.MS {
		t.Fatal("CLONE_VM should share the address space")
	}
	if child.Tgid != parent.Tgid {
		t.Fatal("CLONE_THREAD should keep the child in the parent's thread group")
	}
}

func TestCloneThreadCopiesParentTrapContext(t *testing.T) {
	parent, _, res := newTestParent(t)

	const wantSepc = uint64(0x1234_5678)
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, wantSepc)
	if err := parent.MemorySet.MS.CopyOut(parent.inner.TrapCxVA+trap.OffSepc, buf); err != 0 {
		t.Fatalf("copyout failed: %d", err)
	}

	child, err := Clone(parent, CloneArgs{Flags: CLONE_VM | CLONE_THREAD}, res)
	if err != 0 {
		t.Fatalf("clone failed: %d", err)
	}

	got := make([]byte, 8)
	if cerr := child.MemorySet.MS.CopyIn(child.inner.TrapCxVA+trap.OffSepc, got); cerr != 0 {
		t.Fatalf("copyin failed: %d", cerr)
	}
	if binary.LittleEndian.Uint64(got) != wantSepc {
		t.Fatalf("cloned thread's sepc = %#x, want %#x (must resume at the same syscall as the parent)", binary.LittleEndian.Uint64(got), wantSepc)
	}
	if got := readA0(t, child.MemorySet.MS, child.inner.TrapCxVA); got != 0 {
		t.Fatalf("child trap context a0 should be 0 (clone's child-sees-zero convention), got %d", got)
	}
}

func TestCloneFilesSharesTable(t *testing.T) {
	parent, _, res := newTestParent(t)
	child, err := Clone(parent, CloneArgs{Flags: CLONE_FILES}, res)
	if err != 0 {
		t.Fatalf("clone failed: %d", err)
	}
	if child.FdTable.Table != parent.FdTable.Table {
		t.Fatal("CLONE_FILES should share the same fd table")
	}

	parent2, _, res2 := newTestParent(t)
	child2, err := Clone(parent2, CloneArgs{}, res2)
	if err != 0 {
		t.Fatalf("clone failed: %d", err)
	}
	if child2.FdTable.Table == parent2.FdTable.Table {
		t.Fatal("plain fork should clone the fd table, not share it")
	}
}

func TestCloneChildStackSPOverride(t *testing.T) {
	parent, _, res := newTestParent(t)
	const newSP = uint64(0x7fff0000)
	child, err := Clone(parent, CloneArgs{ChildStackSP: newSP}, res)
	if err != 0 {
		t.Fatalf("clone failed: %d", err)
	}
	buf := make([]byte, 8)
	if cerr := child.MemorySet.MS.CopyIn(child.inner.TrapCxVA+trap.OffReg(trap.RegSP), buf); cerr != 0 {
		t.Fatalf("copyin failed: %d", cerr)
	}
	if got := binary.LittleEndian.Uint64(buf); got != newSP {
		t.Fatalf("got sp %#x, want %#x", got, newSP)
	}
}
