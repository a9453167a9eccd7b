package blockcache

import (
	"testing"

	"rvkernel/internal/blockdev"
)

func TestGetReadsThroughOnMiss(t *testing.T) {
	dev := blockdev.NewMem(4)
	var seed [blockdev.BlockSize]byte
	seed[0] = 0xAB
	if err := dev.WriteBlock(2, &seed); err != nil {
		t.Fatal(err)
	}

	c := New(dev)
	h, err := c.Get(2)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Release()
	h.Read(0, func(buf []byte) {
		if buf[0] != 0xAB {
			t.Fatalf("expected 0xAB, got %#x", buf[0])
		}
	})
}

func TestGetReturnsSameEntryOnSecondHit(t *testing.T) {
	dev := blockdev.NewMem(4)
	c := New(dev)
	h1, err := c.Get(1)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := c.Get(1)
	if err != nil {
		t.Fatal(err)
	}
	if h1.e != h2.e {
		t.Fatal("expected both handles to reference the same cache entry")
	}
	if c.Len() != 1 {
		t.Fatalf("expected one cached entry, got %d", c.Len())
	}
	h1.Release()
	h2.Release()
}

func TestModifyMarksDirtyAndFlushWritesBack(t *testing.T) {
	dev := blockdev.NewMem(2)
	c := New(dev)
	h, err := c.Get(0)
	if err != nil {
		t.Fatal(err)
	}
	h.Modify(4, func(buf []byte) { buf[0] = 0x7F })
	h.Release()

	if err := c.Flush(); err != nil {
		t.Fatal(err)
	}

	var check [blockdev.BlockSize]byte
	if err := dev.ReadBlock(0, &check); err != nil {
		t.Fatal(err)
	}
	if check[4] != 0x7F {
		t.Fatalf("expected flushed write at offset 4, got %#x", check[4])
	}
}

func TestEvictionWritesBackDirtyBlockWhenFull(t *testing.T) {
	dev := blockdev.NewMem(Limit + 1)
	c := New(dev)

	h, err := c.Get(0)
	if err != nil {
		t.Fatal(err)
	}
	h.Modify(0, func(buf []byte) { buf[0] = 0x11 })
	h.Release() // rc back to 0, now eviction-eligible

	for i := uint32(1); i < Limit; i++ {
		hh, err := c.Get(i)
		if err != nil {
			t.Fatal(err)
		}
		hh.Release()
	}
	if c.Len() != Limit {
		t.Fatalf("expected cache full at %d entries, got %d", Limit, c.Len())
	}

	// One more distinct block forces eviction of block 0 (oldest, rc==0).
	hn, err := c.Get(Limit)
	if err != nil {
		t.Fatal(err)
	}
	hn.Release()
	if c.Len() != Limit {
		t.Fatalf("expected cache still at capacity %d, got %d", Limit, c.Len())
	}

	var check [blockdev.BlockSize]byte
	if err := dev.ReadBlock(0, &check); err != nil {
		t.Fatal(err)
	}
	if check[0] != 0x11 {
		t.Fatalf("expected dirty block 0 written back on eviction, got %#x", check[0])
	}
}

func TestPinnedEntryIsNotEvicted(t *testing.T) {
	dev := blockdev.NewMem(Limit + 1)
	c := New(dev)

	pinned, err := c.Get(0)
	if err != nil {
		t.Fatal(err)
	}
	// pinned is never released, so rc stays 1 and it must survive eviction.

	for i := uint32(1); i < Limit; i++ {
		hh, err := c.Get(i)
		if err != nil {
			t.Fatal(err)
		}
		hh.Release()
	}

	if _, err := c.Get(Limit); err != nil {
		t.Fatal(err)
	}

	h2, err := c.Get(0)
	if err != nil {
		t.Fatal(err)
	}
	if h2.e != pinned.e {
		t.Fatal("expected pinned block 0 to remain cached")
	}
}
