// Package vm implements the address space ("MemorySet" in the spec's
// vocabulary): a page table plus an ordered collection of typed virtual
// regions, ELF loading, demand-paging fault classification, and
// fork/clone address-space cloning. Grounded on biscuit's Vm_t
// (biscuit/src/vm/as.go), whose page-fault handler (Sys_pgfault) and
// region constructors (_mkvmi, Vmadd_anon, Vmadd_file) this package
// follows closely, generalized from x86-64 to SV39.
package vm

import (
	"sync"

	"rvkernel/internal/defs"
	"rvkernel/internal/mem"
	"rvkernel/internal/pagetable"
	"rvkernel/internal/vm/mmap"
)

/// PGSIZE mirrors mem.PGSIZE for convenience in VA arithmetic here.
const PGSIZE = mem.PGSIZE

// TrampolineVA is the highest page in every address space's virtual
// layout; the trampoline's physical frame is mapped identically here in
// every MemorySet so stvec never needs to change across address-space
// switches (spec §4.8).
const TrampolineVA = ^uint64(0) - PGSIZE + 1

// TrapContextVA is the main thread's trap-context page, one page below
// the trampoline (spec §3's address-space invariant).
const TrapContextVA = TrampolineVA - PGSIZE

/// MemorySet is a task's or the kernel's address space: a page table and
/// its ordered, non-overlapping virtual regions, plus the mmap manager
/// for this address space's anonymous/file-backed mmap mappings.
type MemorySet struct {
	mu      sync.Mutex
	Table   *pagetable.Table
	alloc   *mem.Allocator
	Regions []*Region
	Mmap    *mmap.Manager

	heap      *Region
	brk       uint64 // current break, a byte VA within the heap region
	trampoline mem.PPN
	hasTrampoline bool
}

/// New creates an empty address space with its own fresh page table.
func New(alloc *mem.Allocator) *MemorySet {
	return &MemorySet{
		Table: pagetable.New(alloc),
		alloc: alloc,
	}
}

/// Lock acquires the address-space mutex; callers must hold it while
/// touching Regions, Table, or Mmap, mirroring biscuit's Vm_t embedding
/// sync.Mutex directly over the same fields.
func (ms *MemorySet) Lock()   { ms.mu.Lock() }
func (ms *MemorySet) Unlock() { ms.mu.Unlock() }

/// Alloc exposes the address space's frame allocator, for callers (mmap's
/// syscall handler) that need to lazily construct this MemorySet's mmap
/// manager on first use.
func (ms *MemorySet) Alloc() *mem.Allocator { return ms.alloc }

/// MapTrampoline installs the identity mapping of the shared trampoline
/// physical page at TrampolineVA. ppn is the single physical frame holding
/// trampoline code, owned for the lifetime of the kernel image (not
/// refcounted per address space, matching spec §3: "the trampoline page
/// ... maps identically in every address space").
func (ms *MemorySet) MapTrampoline(ppn mem.PPN) {
	if ms.hasTrampoline {
		return
	}
	ms.Table.Map(pagetable.VPN(TrampolineVA/PGSIZE), ppn, pagetable.V|pagetable.R|pagetable.X)
	ms.trampoline = ppn
	ms.hasTrampoline = true
	ms.Regions = append(ms.Regions, &Region{
		Kind: KindTrampoline, MapType: MapIdentical,
		Start: pagetable.VPN(TrampolineVA / PGSIZE), End: pagetable.VPN(TrampolineVA/PGSIZE) + 1,
		Perms: pagetable.R | pagetable.X,
	})
}

/// MapTrapContext allocates and maps the (main-thread) trap-context page
/// one page below the trampoline.
func (ms *MemorySet) MapTrapContext() *mem.FrameTracker {
	return ms.mapTrapContextAt(pagetable.VPN(TrapContextVA / PGSIZE))
}

/// MapThreadTrapContext allocates and maps a per-thread trap-context page
/// at a per-thread offset below the main trap-context page, as spec §3
/// describes for additional threads within a process.
func (ms *MemorySet) MapThreadTrapContext(threadIndex int) *mem.FrameTracker {
	vpn := pagetable.VPN(TrapContextVA/PGSIZE) - pagetable.VPN(threadIndex+1)
	return ms.mapTrapContextAt(vpn)
}

func (ms *MemorySet) mapTrapContextAt(vpn pagetable.VPN) *mem.FrameTracker {
	frame := ms.alloc.AllocMust()
	ms.Table.Map(vpn, frame.PPN(), pagetable.V|pagetable.R|pagetable.W)
	r := newRegion(KindTrapContext, vpn, vpn+1, MapFramed, pagetable.R|pagetable.W, false)
	r.setFrame(vpn, frame)
	ms.Regions = append(ms.Regions, r)
	return frame
}

/// Lookup finds the region containing vpn, if any.
func (ms *MemorySet) Lookup(vpn pagetable.VPN) (*Region, bool) {
	for _, r := range ms.Regions {
		if r.Contains(vpn) {
			return r, true
		}
	}
	return nil, false
}

func (ms *MemorySet) overlaps(start, end pagetable.VPN) bool {
	for _, r := range ms.Regions {
		if start < r.End && end > r.Start {
			return true
		}
	}
	return false
}

/// PushAnon adds a region of lazily-framed anonymous pages at
/// [start,end) with perms. No frames are allocated until first fault
/// (spec §4.3 step 4: stack/heap are "lazy" framed regions).
func (ms *MemorySet) PushAnon(kind Kind, start, end pagetable.VPN, perms uint64) *Region {
	if ms.overlaps(start, end) {
		panic("vm: overlapping region")
	}
	r := newRegion(kind, start, end, MapFramed, perms, true)
	ms.Regions = append(ms.Regions, r)
	return r
}

/// PushEagerAnon adds a region and immediately backs every page with a
/// freshly allocated, zeroed frame (used for eagerly loaded ELF segments
/// and for kernel stacks).
func (ms *MemorySet) PushEagerAnon(kind Kind, start, end pagetable.VPN, perms uint64) (*Region, defs.Err_t) {
	r := newRegion(kind, start, end, MapFramed, perms, false)
	for vpn := start; vpn < end; vpn++ {
		frame, ok := ms.alloc.Alloc()
		if !ok {
			r.dropAll()
			return nil, -defs.ENOMEM
		}
		ms.Table.Map(vpn, frame.PPN(), perms|pagetable.U|pagetable.V)
		r.setFrame(vpn, frame)
	}
	ms.Regions = append(ms.Regions, r)
	return r, 0
}

/// PushFile adds a region backed by file at the given byte offset,
/// declared lazy: frames are faulted in by CheckLazy on first access.
/// filelen bounds the file-backed span from offset; the region's tail
/// past it (an ELF segment's memsz > filesz .bss) stays zero-filled
/// even though the file itself continues.
func (ms *MemorySet) PushFile(kind Kind, start, end pagetable.VPN, perms uint64, file BackedFile, offset int, filelen int64) *Region {
	if ms.overlaps(start, end) {
		panic("vm: overlapping region")
	}
	r := newRegion(kind, start, end, MapFramed, perms, true)
	r.File = file
	r.FileOffset = offset
	r.FileLen = filelen
	ms.Regions = append(ms.Regions, r)
	return r
}

/// SetHeap designates r as the growable heap region and initializes brk
/// to initialBrk; sys_brk moves brk and grows End when brk passes it.
func (ms *MemorySet) SetHeap(r *Region, initialBrk uint64) {
	ms.heap = r
	ms.brk = initialBrk
}

/// Brk returns the current program break.
func (ms *MemorySet) Brk() uint64 { return ms.brk }

/// GrowBrk moves the break to newBrk, extending the heap region's End if
/// needed. Shrinking only lowers brk: the region's End and its
/// already-faulted-in pages stay, and CheckLazy keeps serving faults
/// anywhere below End regardless of brk.
func (ms *MemorySet) GrowBrk(newBrk uint64) defs.Err_t {
	if ms.heap == nil {
		panic("vm: no heap region installed")
	}
	if newBrk < uint64(ms.heap.Start)*PGSIZE {
		return -defs.EINVAL
	}
	newEnd := pagetable.VPN((newBrk + PGSIZE - 1) / PGSIZE)
	if newEnd > ms.heap.End {
		ms.heap.End = newEnd
	}
	ms.brk = newBrk
	return 0
}

/// Mprotect updates the permission bits of every region overlapping
/// [start,end) to newPerms (R/W/X only; U/V/COW stay whatever the leaf
/// already has), re-flagging any already-mapped leaf PTE in that range
/// immediately so a subsequent access is checked against the new
/// permissions rather than the old ones cached in a stale leaf.
/// Unmapped (not-yet-faulted) pages simply get faulted in later with the
/// region's updated Perms, matching CheckLazy's region-driven install.
func (ms *MemorySet) Mprotect(start, end pagetable.VPN, newPerms uint64) defs.Err_t {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for _, r := range ms.Regions {
		if start >= r.End || end <= r.Start {
			continue
		}
		r.Perms = newPerms
		lo, hi := r.Start, r.End
		if start > lo {
			lo = start
		}
		if end < hi {
			hi = end
		}
		for vpn := lo; vpn < hi; vpn++ {
			if pte, ok := ms.Table.Lookup(vpn); ok && pte.Valid() {
				keep := pte.Flags() & (pagetable.V | pagetable.U | pagetable.A | pagetable.D | pagetable.COW)
				perms := newPerms
				if keep&pagetable.COW != 0 {
					// A COW page must keep faulting on write; the fault
					// handler grants W when it resolves the copy.
					perms &^= pagetable.W
				}
				ms.Table.SetFlags(vpn, keep|perms)
			}
		}
	}
	return 0
}

/// Uvmfree releases every region's frames and the mmap manager's state;
/// called when a task exits and its address space's last reference drops.
func (ms *MemorySet) Uvmfree() {
	for _, r := range ms.Regions {
		if r.MapType == MapFramed {
			r.dropAll()
		}
	}
	ms.Regions = nil
	if ms.Mmap != nil {
		ms.Mmap.Clear()
	}
}
