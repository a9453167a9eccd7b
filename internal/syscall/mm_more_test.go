package syscall

import (
	"testing"

	"rvkernel/internal/defs"
	"rvkernel/internal/pagetable"
	"rvkernel/internal/vm"
	"rvkernel/internal/vm/mmap"
)

func TestSysMmapFileBackedFaultsInContents(t *testing.T) {
	k, task := newFSKernel(t)
	ms := task.MemorySet.MS

	fdnum := openPath(t, k, task, "/a", defs.O_RDWR|defs.O_CREAT)
	ms.CopyOut(userVA, []byte("hello\n"))
	if n, err := k.sysWrite(task, ms, Args{A0: uint64(fdnum), A1: userVA, A2: 6}); err != 0 || n != 6 {
		t.Fatalf("write got (%d,%d)", n, err)
	}

	ret, err := k.sysMmap(task, ms, Args{
		A1: vm.PGSIZE,
		A2: mmap.ProtRead,
		A3: mmap.MapPrivate,
		A4: uint64(fdnum),
	})
	if err != 0 {
		t.Fatalf("mmap failed: %d", err)
	}
	va := uint64(ret)

	ms.Lock()
	lerr := ms.CheckLazy(va, vm.FaultLoad)
	ms.Unlock()
	if lerr != 0 {
		t.Fatalf("fault-in failed: %d", lerr)
	}

	var got [7]byte
	if cerr := ms.CopyIn(va, got[:]); cerr != 0 {
		t.Fatalf("copyin failed: %d", cerr)
	}
	if string(got[:6]) != "hello\n" {
		t.Fatalf("mapped contents %q, want hello", got[:6])
	}
	if got[6] != 0 {
		t.Fatal("bytes past EOF should read zero")
	}
}

func TestSysMprotectDropsWriteOnMmapPage(t *testing.T) {
	k, task := newTestKernel(t)
	ms := task.MemorySet.MS

	ret, err := k.sysMmap(task, ms, Args{
		A1: vm.PGSIZE,
		A2: mmap.ProtRead | mmap.ProtWrite,
		A3: mmap.MapPrivate | mmap.MapAnonymous,
	})
	if err != 0 {
		t.Fatalf("mmap failed: %d", err)
	}
	va := uint64(ret)
	vpn := pagetable.VPN(va / vm.PGSIZE)

	ms.Lock()
	lerr := ms.CheckLazy(va, vm.FaultStore)
	ms.Unlock()
	if lerr != 0 {
		t.Fatalf("fault-in failed: %d", lerr)
	}
	pte, ok := ms.Table.Lookup(vpn)
	if !ok || pte.Flags()&pagetable.W == 0 {
		t.Fatal("expected writable mapping before mprotect")
	}

	if _, err := k.sysMprotect(task, ms, Args{A0: va, A1: vm.PGSIZE, A2: mmap.ProtRead}); err != 0 {
		t.Fatalf("mprotect failed: %d", err)
	}
	pte, ok = ms.Table.Lookup(vpn)
	if !ok || !pte.Valid() {
		t.Fatal("mapping should survive mprotect")
	}
	if pte.Flags()&pagetable.W != 0 {
		t.Fatal("W should be cleared after PROT_READ mprotect")
	}
	if pte.Flags()&pagetable.R == 0 {
		t.Fatal("R should remain set")
	}

	if _, err := k.sysMunmap(task, ms, Args{A0: va, A1: vm.PGSIZE}); err != 0 {
		t.Fatalf("munmap failed: %d", err)
	}
	if pte, ok := ms.Table.Lookup(vpn); ok && pte.Valid() {
		t.Fatal("leaf PTE should be gone after munmap")
	}
}
