package vm

import (
	"rvkernel/internal/defs"
	"rvkernel/internal/mem"
	"rvkernel/internal/pagetable"
)

/// FaultKind classifies why the trap handler is calling into the address
/// space, mirroring the page-fault causes dispatched in spec §4.8.
type FaultKind int

const (
	FaultLoad FaultKind = iota
	FaultStore
	FaultExec
)

/// CheckLazy resolves a page fault at virtual address va, exactly
/// following spec §4.4's decision order: an existing COW leaf triggers
/// the copy-on-write routine; a valid+writable leaf means the fault was
/// spurious; otherwise the containing region (stack/heap/mmap) is asked
/// to materialize the page. It returns 0 on success or a negative errno.
//
// The caller must hold ms.Lock(); this mirrors biscuit's Lockassert_pmap
// discipline (Sys_pgfault is always called with the pmap lock held).
func (ms *MemorySet) CheckLazy(va uint64, kind FaultKind) defs.Err_t {
	vpn := pagetable.VPN(va / PGSIZE)

	if pte, ok := ms.Table.Lookup(vpn); ok && pte.Valid() {
		if pte.Flags()&pagetable.COW != 0 {
			return ms.handleCOW(vpn)
		}
		if pte.Flags()&pagetable.W != 0 {
			// Already mapped and writable: a concurrent fault on the
			// same page already resolved it, or this is a spurious
			// fault. Either way there's nothing left to do.
			return 0
		}
		if kind != FaultStore {
			// Valid, read-only, and this is a load/exec fault: spurious.
			return 0
		}
		return -defs.EFAULT
	}

	r, ok := ms.Lookup(vpn)
	if !ok {
		// Not one of the region-tracked areas (ELF/stack/heap); the only
		// other source of lazy pages is the mmap table, which keeps its
		// own VPN declarations rather than a Region in ms.Regions.
		if ms.Mmap != nil {
			if _, declared := ms.Mmap.Lookup(vpn); declared {
				return ms.Mmap.LazyMap(ms.Table, vpn)
			}
		}
		return -defs.EFAULT
	}

	switch r.Kind {
	case KindStack, KindHeap, KindELF:
		return ms.faultFramed(r, vpn)
	default:
		return -defs.EFAULT
	}
}

// faultFramed materializes one page of a lazily-framed region: allocate,
// zero (Alloc already zeroes), map with the region's permissions, and
// for file-backed ELF segments, copy in the segment's file contents.
func (ms *MemorySet) faultFramed(r *Region, vpn pagetable.VPN) defs.Err_t {
	if _, already := r.frameAt(vpn); already {
		return 0
	}
	frame, ok := ms.alloc.Alloc()
	if !ok {
		return -defs.ENOMEM
	}
	if r.File != nil {
		pageStartByte := int64(vpn-r.Start) * PGSIZE
		fileOff := int64(r.FileOffset) + pageStartByte
		// Clamp to the segment's file-backed span, not the file's size:
		// the file continues past p_filesz (other sections, the section
		// header table), but those bytes are not this segment's — the
		// memsz tail is .bss and stays zero.
		n := int64(PGSIZE)
		if avail := r.FileLen - pageStartByte; avail < n {
			n = avail
		}
		if remain := r.File.Size() - fileOff; remain < n {
			n = remain
		}
		if n > 0 {
			buf := frame.Page()
			if _, err := r.File.ReadAt(buf[:n], fileOff); err != nil {
				frame.Drop()
				return -defs.EIO
			}
		}
	}
	flags := r.Perms | pagetable.U
	ms.Table.Map(vpn, frame.PPN(), flags)
	r.setFrame(vpn, frame)
	return 0
}

// handleCOW implements spec §4.2's copy-on-write fault: if the frame is
// referenced exactly once, reclaim it in place (clear COW, set W, no
// allocation); otherwise copy to a fresh frame and remap.
func (ms *MemorySet) handleCOW(vpn pagetable.VPN) defs.Err_t {
	pte, _ := ms.Table.Lookup(vpn)
	ppn := pte.PPN()

	if ms.alloc.Refcount(ppn) == 1 {
		ms.Table.SetFlags(vpn, (pte.Flags()&^pagetable.COW)|pagetable.W)
		return 0
	}

	old, install, found := ms.cowOwner(vpn)
	if !found {
		return -defs.EFAULT
	}
	newFrame, ok := ms.alloc.Alloc()
	if !ok {
		return -defs.ENOMEM
	}
	*newFrame.Page() = *old.Page()
	ms.Table.Unmap(vpn)
	ms.Table.Map(vpn, newFrame.PPN(), (pte.Flags()&^pagetable.COW)|pagetable.W)
	install(newFrame)
	old.Drop()
	return 0
}

// cowOwner locates the tracker holding vpn's shared frame and returns a
// setter that re-points the owner at the private replacement. COW leaves
// come from two places after a fork: framed Regions (ELF/stack/heap) and
// the mmap manager's MAP_PRIVATE declarations, which keep their own
// VPN->frame bookkeeping outside ms.Regions.
func (ms *MemorySet) cowOwner(vpn pagetable.VPN) (old *mem.FrameTracker, install func(*mem.FrameTracker), found bool) {
	if r, ok := ms.Lookup(vpn); ok {
		f, hadOld := r.frameAt(vpn)
		if !hadOld {
			panic("vm: cow leaf with no owning tracker in its region")
		}
		return f, func(nf *mem.FrameTracker) { r.setFrame(vpn, nf) }, true
	}
	if ms.Mmap != nil {
		if f, ok := ms.Mmap.FrameAt(vpn); ok {
			return f, func(nf *mem.FrameTracker) { ms.Mmap.SetFrame(vpn, nf) }, true
		}
	}
	return nil, nil, false
}
