package vfile

import (
	"bytes"
	"testing"

	"rvkernel/internal/blockdev"
	"rvkernel/internal/fs/blockcache"
	"rvkernel/internal/fs/fat"
)

// Small test geometry: 512-byte sectors, 2 sectors/cluster (1KiB
// clusters), data region starting right after a tiny reserved+FAT area.
const testSectorsPerCluster = 2

func newTestFile(t *testing.T, size uint32) (*File, *fat.Manager, func() uint32) {
	t.Helper()
	dev := blockdev.NewMem(64)
	cache := blockcache.New(dev)
	fatMgr := fat.Open(cache, 0)
	if err := fatMgr.SetNextCluster(0, fat.EndOfCluster); err != nil {
		t.Fatal(err)
	}
	if err := fatMgr.SetNextCluster(1, fat.EndOfCluster); err != nil {
		t.Fatal(err)
	}
	if err := fatMgr.SetNextCluster(2, fat.EndOfCluster); err != nil {
		t.Fatal(err)
	}

	geom := Geometry{BytesPerSector: blockdev.BlockSize, SectorsPerCluster: testSectorsPerCluster, FirstDataSectorAbs: 4}

	var recorded uint32
	f := New(cache, fatMgr, geom, 2, false, size, func(n uint32) { recorded = n })
	return f, fatMgr, func() uint32 { return recorded }
}

func TestWriteThenReadWithinOneCluster(t *testing.T) {
	f, _, _ := newTestFile(t, 0)
	data := []byte("hello, fat32")
	n, err := f.WriteAt(10, data)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(data) {
		t.Fatalf("expected %d written, got %d", len(data), n)
	}

	got := make([]byte, len(data))
	n, err = f.ReadAt(10, got)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(data) || !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

func TestWritePastClusterExtendsChain(t *testing.T) {
	f, fatMgr, _ := newTestFile(t, 0)
	clusterSize := int64(blockdev.BlockSize * testSectorsPerCluster)
	data := bytes.Repeat([]byte{0xAB}, int(clusterSize)+100)

	if _, err := f.WriteAt(0, data); err != nil {
		t.Fatal(err)
	}

	length, err := fatMgr.ChainLen(2)
	if err != nil {
		t.Fatal(err)
	}
	if length != 2 {
		t.Fatalf("expected chain extended to 2 clusters, got %d", length)
	}

	got := make([]byte, len(data))
	if _, err := f.ReadAt(0, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("cross-cluster round trip mismatch")
	}
}

func TestWriteUpdatesSizeCallback(t *testing.T) {
	f, _, recorded := newTestFile(t, 0)
	if _, err := f.WriteAt(5, []byte("abc")); err != nil {
		t.Fatal(err)
	}
	if recorded() != 8 {
		t.Fatalf("expected recorded size 8, got %d", recorded())
	}
	if f.Size() != 8 {
		t.Fatalf("expected file size 8, got %d", f.Size())
	}
}

func TestReadPastEndOfChainIsShortRead(t *testing.T) {
	f, _, _ := newTestFile(t, 0)
	buf := make([]byte, 4096)
	n, err := f.ReadAt(0, buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected short read of 0 bytes on an untouched chain, got %d", n)
	}
}

func TestTruncateToZeroFreesChain(t *testing.T) {
	f, fatMgr, _ := newTestFile(t, 0)
	clusterSize := int64(blockdev.BlockSize * testSectorsPerCluster)
	data := bytes.Repeat([]byte{1}, int(clusterSize)+10)
	if _, err := f.WriteAt(0, data); err != nil {
		t.Fatal(err)
	}

	if err := f.Truncate(0); err != nil {
		t.Fatal(err)
	}

	c, err := fatMgr.BlankCluster(1)
	if err != nil {
		t.Fatal(err)
	}
	if c != 2 {
		t.Fatalf("expected freed cluster 2 recycled first, got %d", c)
	}
}
