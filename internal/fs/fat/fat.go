// Package fat implements the FAT table operations spec §4.12 names:
// cluster chain walking, allocation, and recycling over the FAT32 on-disk
// table. Grounded directly on original_source/crates/fat32/src/fat.rs
// (FATManager/cluster_id_pos/find_blank_cluster/blank_cluster/recycle/
// get_next_cluster/set_next_cluster/get_cluster_at/cluster_chain_tail/
// get_all_cluster_id/cluster_chain_len) — biscuit itself never implements
// FAT32 (it has its own custom on-disk format), so the block-cache access
// pattern below follows internal/fs/blockcache rather than biscuit code,
// while the table-walking algorithm follows the original one to one.
package fat

import (
	"container/list"

	"rvkernel/internal/blockdev"
	"rvkernel/internal/fs/blockcache"
)

// EndOfCluster is the end-of-chain sentinel spec §9's Open Question
// decision fixes at 0x0FFF_FFF8 (checked after masking with ClusterMask),
// not the nominal all-ones 0x0FFF_FFFF.
const EndOfCluster = 0x0FFF_FFF8

// ClusterMask keeps only the low 28 bits of a FAT32 cluster entry; the
// top 4 bits are reserved and must be preserved on write, ignored on read.
const ClusterMask = 0x0FFF_FFFF

const entrySize = 4 // bytes per FAT32 table entry

/// Manager owns one FAT table (FAT1) and the recycled-cluster queue freed
/// clusters are returned to before falling back to a linear scan for a
/// blank one.
type Manager struct {
	cache      *blockcache.Cache
	fat1Offset uint32 // byte offset of FAT1 within the device
	recycled   *list.List
}

/// Open attaches a Manager to an already-formatted FAT table at
/// fat1Offset (byte offset from the start of the device).
func Open(cache *blockcache.Cache, fat1Offset uint32) *Manager {
	return &Manager{cache: cache, fat1Offset: fat1Offset, recycled: list.New()}
}

/// clusterIDPos returns the block id and in-block byte offset of the FAT
/// entry for cluster, mirroring cluster_id_pos exactly.
func (m *Manager) clusterIDPos(cluster uint32) (blockID uint32, offsetInBlock int) {
	offset := cluster*entrySize + m.fat1Offset
	return offset / blockdev.BlockSize, int(offset % blockdev.BlockSize)
}

/// GetNextCluster returns the cluster following cluster, or false if
/// cluster is the last one in its chain (its entry is >= EndOfCluster
/// after masking).
func (m *Manager) GetNextCluster(cluster uint32) (uint32, bool, error) {
	blockID, off := m.clusterIDPos(cluster)
	h, err := m.cache.Get(blockID)
	if err != nil {
		return 0, false, err
	}
	next := h.ReadU32(off) & ClusterMask
	h.Release()
	if next >= EndOfCluster {
		return 0, false, nil
	}
	return next, true, nil
}

/// SetNextCluster writes next as the successor of cluster in the FAT
/// table, keeping the entry's top 4 reserved bits as they were.
func (m *Manager) SetNextCluster(cluster, next uint32) error {
	blockID, off := m.clusterIDPos(cluster)
	h, err := m.cache.Get(blockID)
	if err != nil {
		return err
	}
	old := h.ReadU32(off)
	h.WriteU32(off, old&^ClusterMask|next&ClusterMask)
	h.Release()
	return nil
}

/// findBlankCluster linearly scans the FAT table starting just past
/// startFrom for the first entry equal to zero (unallocated).
func (m *Manager) findBlankCluster(startFrom uint32) (uint32, error) {
	cluster := startFrom + 1
	for {
		blockID, off := m.clusterIDPos(cluster)
		h, err := m.cache.Get(blockID)
		if err != nil {
			return 0, err
		}
		found := false
		for i := off; i+entrySize <= blockdev.BlockSize; i += entrySize {
			var v uint32
			h.Read(i, func(buf []byte) {
				v = uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
			})
			if v == 0 {
				found = true
				break
			}
			cluster++
		}
		h.Release()
		if found {
			return cluster & ClusterMask, nil
		}
	}
}

/// BlankCluster returns a free cluster, preferring the recycled queue
/// over a fresh linear scan starting after startFrom.
func (m *Manager) BlankCluster(startFrom uint32) (uint32, error) {
	if e := m.recycled.Front(); e != nil {
		m.recycled.Remove(e)
		return e.Value.(uint32) & ClusterMask, nil
	}
	return m.findBlankCluster(startFrom)
}

/// Recycle returns cluster to the free queue for future reuse.
func (m *Manager) Recycle(cluster uint32) {
	m.recycled.PushBack(cluster)
}

/// GetClusterAt walks index steps from startCluster, returning false if
/// the chain ends first.
func (m *Manager) GetClusterAt(startCluster, index uint32) (uint32, bool, error) {
	cluster := startCluster
	for i := uint32(0); i < index; i++ {
		next, ok, err := m.GetNextCluster(cluster)
		if err != nil {
			return 0, false, err
		}
		if !ok {
			return 0, false, nil
		}
		cluster = next
	}
	return cluster & ClusterMask, true, nil
}

/// ChainTail returns the last cluster in the chain beginning at
/// startCluster.
func (m *Manager) ChainTail(startCluster uint32) (uint32, error) {
	cur := startCluster
	for {
		next, ok, err := m.GetNextCluster(cur)
		if err != nil {
			return 0, err
		}
		if !ok {
			return cur & ClusterMask, nil
		}
		cur = next
	}
}

/// AllClusterIDs returns every cluster in the chain beginning at
/// startCluster, in order.
func (m *Manager) AllClusterIDs(startCluster uint32) ([]uint32, error) {
	var out []uint32
	cur := startCluster
	for {
		out = append(out, cur&ClusterMask)
		next, ok, err := m.GetNextCluster(cur)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		cur = next
	}
}

/// ChainLen returns the number of clusters in the chain beginning at
/// startCluster.
func (m *Manager) ChainLen(startCluster uint32) (uint32, error) {
	cur := startCluster
	var length uint32
	for {
		length++
		next, ok, err := m.GetNextCluster(cur)
		if err != nil {
			return 0, err
		}
		if !ok {
			return length, nil
		}
		cur = next
	}
}

/// Extend appends a freshly allocated cluster to the chain whose current
/// tail is tailCluster, links it in the FAT, marks it end-of-chain, and
/// returns the new cluster number.
func (m *Manager) Extend(tailCluster uint32) (uint32, error) {
	next, err := m.BlankCluster(tailCluster)
	if err != nil {
		return 0, err
	}
	if err := m.SetNextCluster(tailCluster, next); err != nil {
		return 0, err
	}
	if err := m.SetNextCluster(next, EndOfCluster); err != nil {
		return 0, err
	}
	return next, nil
}

/// FreeChain walks the entire chain beginning at startCluster, recycling
/// every cluster in it. Used when a file is truncated to zero or deleted.
func (m *Manager) FreeChain(startCluster uint32) error {
	ids, err := m.AllClusterIDs(startCluster)
	if err != nil {
		return err
	}
	for _, id := range ids {
		m.Recycle(id)
	}
	return nil
}
