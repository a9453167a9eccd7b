package vm

import (
	"testing"

	"rvkernel/internal/mem"
	"rvkernel/internal/pagetable"
)

func newTestHeap(t *testing.T) (*MemorySet, pagetable.VPN) {
	t.Helper()
	alloc := mem.NewAllocator(0, 64)
	ms := New(alloc)
	heapStart := pagetable.VPN(10)
	heapEnd := pagetable.VPN(14)
	r := ms.PushAnon(KindHeap, heapStart, heapEnd, pagetable.R|pagetable.W)
	ms.SetHeap(r, uint64(heapStart)*PGSIZE)
	return ms, heapStart
}

func pageBytes(ms *MemorySet, vpn pagetable.VPN) []byte {
	pte, ok := ms.Table.Lookup(vpn)
	if !ok || !pte.Valid() {
		panic("vpn not mapped")
	}
	frame := ms.alloc.AddRef(pte.PPN())
	defer frame.Drop()
	return frame.Page()[:]
}

func TestCheckLazyMaterializesHeapPage(t *testing.T) {
	ms, heapStart := newTestHeap(t)
	va := uint64(heapStart) * PGSIZE

	if _, ok := ms.Table.Lookup(heapStart); ok {
		t.Fatal("expected no mapping before first fault")
	}
	if err := ms.CheckLazy(va, FaultStore); err != 0 {
		t.Fatalf("checklazy failed: %d", err)
	}
	pte, ok := ms.Table.Lookup(heapStart)
	if !ok || !pte.Valid() {
		t.Fatal("expected mapping after fault")
	}
	if pte.Flags()&pagetable.W == 0 {
		t.Fatal("expected writable heap page")
	}
}

func TestCheckLazySpuriousFaultIsNoop(t *testing.T) {
	ms, heapStart := newTestHeap(t)
	va := uint64(heapStart) * PGSIZE
	if err := ms.CheckLazy(va, FaultLoad); err != 0 {
		t.Fatalf("first fault failed: %d", err)
	}
	if err := ms.CheckLazy(va, FaultLoad); err != 0 {
		t.Fatalf("spurious repeat fault should be a no-op, got %d", err)
	}
}

func TestForkCOWSharesUntilWrite(t *testing.T) {
	ms, heapStart := newTestHeap(t)
	va := uint64(heapStart) * PGSIZE

	if err := ms.CheckLazy(va, FaultStore); err != 0 {
		t.Fatalf("fault failed: %d", err)
	}
	pageBytes(ms, heapStart)[0] = 0x42

	child, err := ms.Fork(0)
	if err != 0 {
		t.Fatalf("fork failed: %d", err)
	}

	ppte, ok := ms.Table.Lookup(heapStart)
	if !ok || ppte.Flags()&pagetable.COW == 0 || ppte.Flags()&pagetable.W != 0 {
		t.Fatal("expected parent leaf downgraded to read-only COW after fork")
	}
	cpte, ok := child.Table.Lookup(heapStart)
	if !ok || cpte.Flags()&pagetable.COW == 0 {
		t.Fatal("expected child leaf mapped COW after fork")
	}
	if cpte.PPN() != ppte.PPN() {
		t.Fatal("expected parent and child to share the same physical frame before any write")
	}

	// Child reads v and sees 0x42.
	if got := pageBytes(child, heapStart)[0]; got != 0x42 {
		t.Fatalf("child expected to see 0x42, got %#x", got)
	}

	// Child writes 0x43 to v, triggering its own COW fault.
	if err := child.CheckLazy(uint64(heapStart)*PGSIZE, FaultStore); err != 0 {
		t.Fatalf("child cow fault failed: %d", err)
	}
	pageBytes(child, heapStart)[0] = 0x43

	cpte2, _ := child.Table.Lookup(heapStart)
	if cpte2.PPN() == ppte.PPN() {
		t.Fatal("expected child to have copied to a fresh frame on write")
	}

	// Parent then reads v and still sees 0x42.
	if got := pageBytes(ms, heapStart)[0]; got != 0x42 {
		t.Fatalf("parent expected to still see 0x42, got %#x", got)
	}
}

func TestForkParentSoleOwnerReclaimsInPlace(t *testing.T) {
	ms, heapStart := newTestHeap(t)
	va := uint64(heapStart) * PGSIZE
	if err := ms.CheckLazy(va, FaultStore); err != 0 {
		t.Fatalf("fault failed: %d", err)
	}
	pageBytes(ms, heapStart)[0] = 7

	child, err := ms.Fork(0)
	if err != 0 {
		t.Fatalf("fork failed: %d", err)
	}
	child.Uvmfree()

	ppteBefore, _ := ms.Table.Lookup(heapStart)
	oldPPN := ppteBefore.PPN()
	if ms.alloc.Refcount(oldPPN) != 1 {
		t.Fatalf("expected refcount 1 after child dropped its share, got %d", ms.alloc.Refcount(oldPPN))
	}

	if err := ms.CheckLazy(va, FaultStore); err != 0 {
		t.Fatalf("parent cow fault failed: %d", err)
	}
	ppteAfter, _ := ms.Table.Lookup(heapStart)
	if ppteAfter.PPN() != oldPPN {
		t.Fatal("expected in-place reclaim to keep the same frame when sole owner")
	}
	if ppteAfter.Flags()&pagetable.COW != 0 || ppteAfter.Flags()&pagetable.W == 0 {
		t.Fatal("expected COW cleared and W set after in-place reclaim")
	}
}

func TestGrowBrk(t *testing.T) {
	ms, heapStart := newTestHeap(t)
	base := uint64(heapStart) * PGSIZE
	if err := ms.GrowBrk(base + 10*PGSIZE); err != 0 {
		t.Fatalf("growbrk failed: %d", err)
	}
	if ms.Brk() != base+10*PGSIZE {
		t.Fatalf("unexpected brk: %#x", ms.Brk())
	}
	r, ok := ms.Lookup(pagetable.VPN((base + 9*PGSIZE) / PGSIZE))
	if !ok || r.Kind != KindHeap {
		t.Fatal("expected heap region extended to cover the new brk")
	}
}
