package vm

import (
	"testing"

	"rvkernel/internal/mem"
	"rvkernel/internal/pagetable"
	"rvkernel/internal/vm/mmap"
)

func TestForkCOWOnPrivateMmapPage(t *testing.T) {
	alloc := mem.NewAllocator(0, 64)
	ms := New(alloc)
	ms.Mmap = mmap.New(alloc, pagetable.VPN(0x200))

	start := ms.Mmap.Push(ms.Table, 0, 1, mmap.ProtRead|mmap.ProtWrite,
		mmap.MapPrivate|mmap.MapAnonymous, 0, nil, false)
	va := uint64(start) * PGSIZE
	if err := ms.CheckLazy(va, FaultStore); err != 0 {
		t.Fatalf("fault-in failed: %d", err)
	}
	pageBytes(ms, start)[0] = 0x42

	child, errno := ms.Fork(0)
	if errno != 0 {
		t.Fatalf("fork failed: %d", errno)
	}

	ppte, _ := ms.Table.Lookup(start)
	cpte, ok := child.Table.Lookup(start)
	if !ok || cpte.Flags()&pagetable.COW == 0 || cpte.Flags()&pagetable.W != 0 {
		t.Fatal("expected child mmap leaf COW-shared after fork")
	}
	if cpte.PPN() != ppte.PPN() {
		t.Fatal("expected shared frame before any write")
	}

	// The child's write fault must resolve to a private copy, even
	// though the page's bookkeeping lives in the mmap manager rather
	// than a Region.
	if err := child.CheckLazy(va, FaultStore); err != 0 {
		t.Fatalf("child cow fault on mmap page failed: %d", err)
	}
	cpte2, _ := child.Table.Lookup(start)
	if cpte2.PPN() == ppte.PPN() {
		t.Fatal("expected child to copy to a fresh frame on write")
	}
	if cpte2.Flags()&pagetable.W == 0 || cpte2.Flags()&pagetable.COW != 0 {
		t.Fatal("expected child leaf writable with COW cleared after resolution")
	}
	if got := pageBytes(child, start)[0]; got != 0x42 {
		t.Fatalf("child's private copy lost contents: %#x", got)
	}
	pageBytes(child, start)[0] = 0x43
	if got := pageBytes(ms, start)[0]; got != 0x42 {
		t.Fatalf("parent expected to still see 0x42, got %#x", got)
	}

	// The manager's own tracker must follow the remap, so teardown
	// drops the private frame and not the parent's.
	f, ok := child.Mmap.FrameAt(start)
	if !ok || f.PPN() != cpte2.PPN() {
		t.Fatal("child mmap manager should track the private replacement frame")
	}
}

type fakeSegFile struct{ data []byte }

func (f *fakeSegFile) ReadAt(buf []byte, off int64) (int, error) {
	return copy(buf, f.data[off:]), nil
}
func (f *fakeSegFile) Size() int64 { return int64(len(f.data)) }

func TestFaultFramedZeroesPastSegmentFilesz(t *testing.T) {
	alloc := mem.NewAllocator(0, 64)
	ms := New(alloc)

	// The backing file continues well past the segment's data (section
	// headers and friends): every byte is a poison value so any read
	// past the file-backed span is visible.
	data := make([]byte, 2*PGSIZE)
	for i := range data {
		data[i] = 0xAB
	}
	const filesz = 100
	ms.PushFile(KindELF, 20, 22, pagetable.R|pagetable.W, &fakeSegFile{data: data}, 0, filesz)

	if err := ms.CheckLazy(20*PGSIZE, FaultStore); err != 0 {
		t.Fatalf("boundary-page fault failed: %d", err)
	}
	b := pageBytes(ms, 20)
	if b[filesz-1] != 0xAB {
		t.Fatal("file-backed bytes should come from the file")
	}
	if b[filesz] != 0 || b[PGSIZE-1] != 0 {
		t.Fatal("bytes past filesz within the boundary page must be zero")
	}

	// The second page is pure .bss: entirely zero even though the file
	// has bytes at its offsets.
	if err := ms.CheckLazy(21*PGSIZE, FaultStore); err != 0 {
		t.Fatalf("bss-page fault failed: %d", err)
	}
	b2 := pageBytes(ms, 21)
	if b2[0] != 0 || b2[PGSIZE-1] != 0 {
		t.Fatal("pure .bss page must be all zeroes")
	}
}
