package fat

import (
	"testing"

	"rvkernel/internal/blockdev"
	"rvkernel/internal/fs/blockcache"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dev := blockdev.NewMem(8)
	cache := blockcache.New(dev)
	// FAT1 begins at block 0; reserve entries 0 and 1 as biscuit/original do.
	m := Open(cache, 0)
	if err := m.SetNextCluster(0, EndOfCluster); err != nil {
		t.Fatal(err)
	}
	if err := m.SetNextCluster(1, EndOfCluster); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestBlankClusterScansFromHint(t *testing.T) {
	m := newTestManager(t)
	c, err := m.BlankCluster(1)
	if err != nil {
		t.Fatal(err)
	}
	if c != 2 {
		t.Fatalf("expected first blank cluster to be 2, got %d", c)
	}
}

func TestRecycleIsPreferredOverScan(t *testing.T) {
	m := newTestManager(t)
	m.Recycle(5)
	c, err := m.BlankCluster(1)
	if err != nil {
		t.Fatal(err)
	}
	if c != 5 {
		t.Fatalf("expected recycled cluster 5 to be returned first, got %d", c)
	}
}

func TestChainWalkingAndExtend(t *testing.T) {
	m := newTestManager(t)
	if err := m.SetNextCluster(2, EndOfCluster); err != nil {
		t.Fatal(err)
	}

	if _, ok, err := m.GetNextCluster(2); err != nil || ok {
		t.Fatalf("expected cluster 2 to be chain end, got ok=%v err=%v", ok, err)
	}

	next, err := m.Extend(2)
	if err != nil {
		t.Fatal(err)
	}
	if next != 3 {
		t.Fatalf("expected cluster 3 allocated, got %d", next)
	}

	tail, err := m.ChainTail(2)
	if err != nil {
		t.Fatal(err)
	}
	if tail != 3 {
		t.Fatalf("expected chain tail 3, got %d", tail)
	}

	ids, err := m.AllClusterIDs(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != 2 || ids[1] != 3 {
		t.Fatalf("unexpected chain %v", ids)
	}

	length, err := m.ChainLen(2)
	if err != nil {
		t.Fatal(err)
	}
	if length != 2 {
		t.Fatalf("expected chain length 2, got %d", length)
	}
}

func TestFreeChainRecyclesAllClusters(t *testing.T) {
	m := newTestManager(t)
	if err := m.SetNextCluster(2, 3); err != nil {
		t.Fatal(err)
	}
	if err := m.SetNextCluster(3, EndOfCluster); err != nil {
		t.Fatal(err)
	}

	if err := m.FreeChain(2); err != nil {
		t.Fatal(err)
	}

	c1, err := m.BlankCluster(1)
	if err != nil {
		t.Fatal(err)
	}
	if c1 != 2 {
		t.Fatalf("expected cluster 2 recycled first (FIFO), got %d", c1)
	}
	c2, err := m.BlankCluster(1)
	if err != nil {
		t.Fatal(err)
	}
	if c2 != 3 {
		t.Fatalf("expected cluster 3 recycled second, got %d", c2)
	}
}

func TestGetClusterAtWalksIndexSteps(t *testing.T) {
	m := newTestManager(t)
	if err := m.SetNextCluster(2, 4); err != nil {
		t.Fatal(err)
	}
	if err := m.SetNextCluster(4, 7); err != nil {
		t.Fatal(err)
	}
	if err := m.SetNextCluster(7, EndOfCluster); err != nil {
		t.Fatal(err)
	}

	c, ok, err := m.GetClusterAt(2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || c != 7 {
		t.Fatalf("expected cluster 7 at index 2, got %d ok=%v", c, ok)
	}

	_, ok, err = m.GetClusterAt(2, 5)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected walking past chain end to report not-ok")
	}
}
