package mem

import "testing"

func TestAllocZeroed(t *testing.T) {
	a := NewAllocator(0, 4)
	f, ok := a.Alloc()
	if !ok {
		t.Fatal("alloc failed")
	}
	pg := f.Page()
	for i, b := range pg {
		if b != 0 {
			t.Fatalf("page not zeroed at %d", i)
		}
	}
	if a.Refcount(f.PPN()) != 1 {
		t.Fatalf("want refcount 1, got %d", a.Refcount(f.PPN()))
	}
}

func TestExhaustion(t *testing.T) {
	a := NewAllocator(0, 2)
	f1, ok := a.Alloc()
	if !ok {
		t.Fatal("alloc 1 failed")
	}
	f2, ok := a.Alloc()
	if !ok {
		t.Fatal("alloc 2 failed")
	}
	if _, ok := a.Alloc(); ok {
		t.Fatal("expected exhaustion")
	}
	f1.Drop()
	f3, ok := a.Alloc()
	if !ok {
		t.Fatal("alloc after free failed")
	}
	_ = f2
	_ = f3
}

func TestRefcountSharing(t *testing.T) {
	a := NewAllocator(0, 4)
	f, _ := a.Alloc()
	shared := a.AddRef(f.PPN())
	if a.Refcount(f.PPN()) != 2 {
		t.Fatalf("want 2, got %d", a.Refcount(f.PPN()))
	}
	f.Drop()
	if a.Refcount(f.PPN()) != 1 {
		t.Fatalf("want 1 after one drop, got %d", a.Refcount(f.PPN()))
	}
	shared.Drop()
	if a.Refcount(f.PPN()) != 0 {
		t.Fatalf("want 0 after both dropped, got %d", a.Refcount(f.PPN()))
	}
	if a.Free() != 4 {
		t.Fatalf("expected all 4 frames free, got %d", a.Free())
	}
}

func TestDoubleDropPanics(t *testing.T) {
	a := NewAllocator(0, 2)
	f, _ := a.Alloc()
	f.Drop()
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on double drop")
		}
	}()
	f.Drop()
}
