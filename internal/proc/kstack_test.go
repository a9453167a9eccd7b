package proc

import (
	"testing"

	"rvkernel/internal/mem"
	"rvkernel/internal/pagetable"
	"rvkernel/internal/vm"
)

func TestKernelStackPositionDescendsByIndex(t *testing.T) {
	b0, t0 := KernelStackPosition(0)
	_, t1 := KernelStackPosition(1)
	if t1 >= b0 {
		t.Fatalf("stack 1's top (%#x) should sit below stack 0's bottom (%#x)", t1, b0)
	}
	if t0-b0 != KernelStackSize {
		t.Fatalf("stack size mismatch: got %d, want %d", t0-b0, KernelStackSize)
	}
}

func TestAllocKernelStackMapsFramedPages(t *testing.T) {
	alloc := mem.NewAllocator(0, 64)
	kernelMS := vm.New(alloc)
	top := AllocKernelStack(kernelMS, 0)

	bottom, wantTop := KernelStackPosition(0)
	if top != wantTop {
		t.Fatalf("got top %#x, want %#x", top, wantTop)
	}
	vpn := pagetable.VPN(bottom / vm.PGSIZE)
	pte, ok := kernelMS.Table.Lookup(vpn)
	if !ok || !pte.Valid() {
		t.Fatal("expected kernel stack's bottom page to be eagerly mapped")
	}
}
