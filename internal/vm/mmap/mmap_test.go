package mmap

import (
	"testing"

	"rvkernel/internal/mem"
	"rvkernel/internal/pagetable"
)

func TestPushLazyMapAnon(t *testing.T) {
	alloc := mem.NewAllocator(0, 16)
	pt := pagetable.New(alloc)
	m := New(alloc, pagetable.VPN(100))

	start := m.Push(pt, 0, 2, ProtRead|ProtWrite, MapPrivate|MapAnonymous, 0, nil, false)
	if start != 100 {
		t.Fatalf("expected start 100, got %d", start)
	}
	if m.Top() != 102 {
		t.Fatalf("expected top 102, got %d", m.Top())
	}

	p, ok := m.Lookup(start)
	if !ok || p.Valid {
		t.Fatal("expected declared but invalid entry")
	}
	if err := m.LazyMap(pt, start); err != 0 {
		t.Fatalf("lazy map failed: %d", err)
	}
	p, _ = m.Lookup(start)
	if !p.Valid {
		t.Fatal("expected valid after lazy map")
	}
	pte, ok := pt.Lookup(start)
	if !ok || !pte.Valid() {
		t.Fatal("expected page table mapping installed")
	}
}

type fakeFile struct {
	data []byte
}

func (f *fakeFile) ReadAt(buf []byte, offset int64) (int, error) {
	n := copy(buf, f.data[offset:])
	return n, nil
}
func (f *fakeFile) Size() int64 { return int64(len(f.data)) }

func TestLazyMapFileBacked(t *testing.T) {
	alloc := mem.NewAllocator(0, 16)
	pt := pagetable.New(alloc)
	m := New(alloc, pagetable.VPN(0))
	f := &fakeFile{data: []byte("hello\n")}

	start := m.Push(pt, 0, 1, ProtRead, MapPrivate, 0, f, false)
	if err := m.LazyMap(pt, start); err != 0 {
		t.Fatalf("lazy map failed: %d", err)
	}
	pte, _ := pt.Lookup(start)
	frame := alloc.AddRef(pte.PPN())
	defer frame.Drop()
	buf := frame.Page()
	if string(buf[:6]) != "hello\n" {
		t.Fatalf("unexpected contents: %q", buf[:6])
	}
	if buf[6] != 0 {
		t.Fatal("expected zero-fill past EOF")
	}
}

func TestRemoveDropsFrames(t *testing.T) {
	alloc := mem.NewAllocator(0, 16)
	pt := pagetable.New(alloc)
	m := New(alloc, pagetable.VPN(0))
	start := m.Push(pt, 0, 1, ProtRead|ProtWrite, MapPrivate|MapAnonymous, 0, nil, false)
	m.LazyMap(pt, start)
	pte, _ := pt.Lookup(start)
	ppn := pte.PPN()
	if alloc.Refcount(ppn) != 1 {
		t.Fatal("expected live frame")
	}
	m.Remove(pt, start, 1)
	if alloc.Refcount(ppn) != 0 {
		t.Fatal("expected frame freed after remove")
	}
	if _, ok := m.Lookup(start); ok {
		t.Fatal("expected declaration removed")
	}
}

func TestFixedOverlapDropsExisting(t *testing.T) {
	alloc := mem.NewAllocator(0, 16)
	pt := pagetable.New(alloc)
	m := New(alloc, pagetable.VPN(0))
	start := m.Push(pt, 0, 4, ProtRead, MapPrivate|MapAnonymous, 0, nil, false)
	m.LazyMap(pt, start+1)

	m.Push(pt, start+1, 1, ProtRead|ProtExec, MapPrivate|MapAnonymous|MapFixed, 0, nil, true)
	p, ok := m.Lookup(start + 1)
	if !ok {
		t.Fatal("expected replacement entry")
	}
	if p.Valid {
		t.Fatal("expected fresh (invalid) entry after fixed overlap")
	}
}
