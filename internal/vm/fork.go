package vm

import (
	"rvkernel/internal/defs"
	"rvkernel/internal/pagetable"
	"rvkernel/internal/vm/mmap"
)

// Clone flags relevant to address-space construction (spec §4.6); the
// rest (SIGHAND, FILES, PARENT_SETTID, ...) are interpreted by the task
// layer and never reach this package.
const (
	CLONE_VM = 1 << iota
)

/// Fork builds a child address space from ms by copy-on-write, following
/// the original's MemorySet::from_copy_on_write: the trap-context page is
/// duplicated eagerly (it's small and about to be rewritten for the
/// child's return value anyway); every other framed region is instead
/// shared, with both parent's and child's leaves rewritten to clear W and
/// set COW, and the underlying frame's refcount bumped once per shared
/// leaf so handleCOW's single-owner fast path engages correctly once one
/// side writes and the other has since exited.
///
/// If flags&CLONE_VM is set, the "child" shares ms itself instead of
/// cloning (thread creation within a process, spec §4.6's "threads share
/// memory_set"); Fork returns ms unchanged in that case and callers
/// should not call Uvmfree on it twice.
func (ms *MemorySet) Fork(flags int) (*MemorySet, defs.Err_t) {
	if flags&CLONE_VM != 0 {
		return ms, 0
	}

	child := New(ms.alloc)
	if ms.hasTrampoline {
		child.MapTrampoline(ms.trampoline)
	}

	for _, r := range ms.Regions {
		switch r.Kind {
		case KindTrampoline:
			continue
		case KindTrapContext, KindTrapContextThread:
			if err := cloneEager(ms, child, r); err != 0 {
				return nil, err
			}
		default:
			cloneCOW(ms, child, r)
		}
	}

	if ms.heap != nil {
		for _, cr := range child.Regions {
			if cr.Kind == KindHeap && cr.Start == ms.heap.Start {
				child.SetHeap(cr, ms.brk)
				break
			}
		}
	}

	if ms.Mmap != nil {
		child.Mmap = cloneMmap(ms, child, ms.Mmap)
	}

	return child, 0
}

// cloneEager duplicates a small framed region (trap contexts) by value:
// a fresh frame per page, contents copied, no sharing. Matches the
// original treating TRAP_CONTEXT as "not for copy on write".
func cloneEager(parent, child *MemorySet, r *Region) defs.Err_t {
	nr := newRegion(r.Kind, r.Start, r.End, r.MapType, r.Perms, false)
	for vpn := r.Start; vpn < r.End; vpn++ {
		old, ok := r.frameAt(vpn)
		if !ok {
			continue
		}
		fresh, ok := parent.alloc.Alloc()
		if !ok {
			nr.dropAll()
			return -defs.ENOMEM
		}
		*fresh.Page() = *old.Page()
		child.Table.Map(vpn, fresh.PPN(), r.Perms)
		nr.setFrame(vpn, fresh)
	}
	child.Regions = append(child.Regions, nr)
	return 0
}

// cloneCOW shares every already-faulted-in page of r between parent and
// child: both leaves get W cleared and COW set, and the frame's refcount
// is bumped once per shared page so each side holds its own tracker.
// Declared-but-not-yet-faulted pages (stack/heap/mmap pages never
// touched) are simply redeclared in the child with no frame, exactly as
// in the parent; CheckLazy will materialize them independently on first
// fault in each address space.
func cloneCOW(parent, child *MemorySet, r *Region) {
	nr := newRegion(r.Kind, r.Start, r.End, r.MapType, r.Perms, true)
	nr.File = r.File
	nr.FileOffset = r.FileOffset
	nr.FileLen = r.FileLen

	for vpn := r.Start; vpn < r.End; vpn++ {
		old, ok := r.frameAt(vpn)
		if !ok {
			continue
		}
		pte, ok := parent.Table.Lookup(vpn)
		if !ok || !pte.Valid() {
			continue
		}
		cowFlags := (pte.Flags() &^ pagetable.W) | pagetable.COW
		parent.Table.SetFlags(vpn, cowFlags)

		shared := parent.alloc.AddRef(old.PPN())
		child.Table.Map(vpn, old.PPN(), cowFlags)

		r.setFrame(vpn, old)
		nr.setFrame(vpn, shared)
	}
	child.Regions = append(child.Regions, nr)
}

// cloneMmap shares declared mmap pages the same way cloneCOW shares
// region pages: MAP_PRIVATE pages become COW-shared, MAP_SHARED pages
// stay genuinely shared (no COW, both sides keep write access), matching
// mmap(2) semantics across fork.
func cloneMmap(parent, child *MemorySet, m *mmap.Manager) *mmap.Manager {
	nm := mmap.New(parent.alloc, m.Top())
	for _, e := range m.Snapshot() {
		if !e.Valid {
			nm.Adopt(e, nil)
			continue
		}
		pte, ok := parent.Table.Lookup(e.VPN)
		if !ok || !pte.Valid() {
			nm.Adopt(e, nil)
			continue
		}
		if e.Flags&mmap.MapShared != 0 {
			shared := parent.alloc.AddRef(pte.PPN())
			child.Table.Map(e.VPN, pte.PPN(), pte.Flags())
			nm.Adopt(e, shared)
			continue
		}
		cowFlags := (pte.Flags() &^ pagetable.W) | pagetable.COW
		parent.Table.SetFlags(e.VPN, cowFlags)
		shared := parent.alloc.AddRef(pte.PPN())
		child.Table.Map(e.VPN, pte.PPN(), cowFlags)
		nm.Adopt(e, shared)
	}
	return nm
}
