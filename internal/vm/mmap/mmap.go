// Package mmap implements the per-address-space mmap manager: the
// VPN->MmapPage table that records prot/flags/file/offset for every page
// in the mmap region and backs demand paging for sys_mmap. Grounded on
// biscuit's Vmadd_file/Vmadd_sharefile (vm/as.go) and the original's
// kernel/src/mm/mmap.rs.
package mmap

import (
	"rvkernel/internal/defs"
	"rvkernel/internal/mem"
	"rvkernel/internal/pagetable"
)

// Prot bits, matching the mmap(2) PROT_* constants.
const (
	ProtNone  = 0x0
	ProtRead  = 0x1
	ProtWrite = 0x2
	ProtExec  = 0x4
)

// Flags bits, matching the mmap(2) MAP_* constants actually used by this
// kernel.
const (
	MapShared    = 0x01
	MapPrivate   = 0x02
	MapFixed     = 0x10
	MapAnonymous = 0x20
)

/// BackedFile is the read surface a file-backed mapping needs.
type BackedFile interface {
	ReadAt(buf []byte, offset int64) (int, error)
	Size() int64
}

/// Page records one VPN's mmap declaration. Valid=false means "declared
/// but not yet faulted in"; the invariant from spec §3 is that Valid=true
/// iff the page table has a live mapping for this VPN, maintained by
/// LazyMap, SetFrame and Remove together.
type Page struct {
	Valid      bool
	Prot       int
	Flags      int
	File       BackedFile
	FileOffset int64

	frame *mem.FrameTracker
}

/// Manager owns the mmap region of one address space: the per-VPN table
/// plus the high-water mark used to satisfy addr==0 requests.
type Manager struct {
	alloc   *mem.Allocator
	table   map[pagetable.VPN]*Page
	mmapTop pagetable.VPN
	base    pagetable.VPN
}

/// New creates a manager whose mmap region starts at base (the VPN
/// returned for the first addr==0 request).
func New(alloc *mem.Allocator, base pagetable.VPN) *Manager {
	return &Manager{alloc: alloc, table: make(map[pagetable.VPN]*Page), mmapTop: base, base: base}
}

/// Top returns the current high-water mark, the VPN handed out next when
/// addr==0.
func (m *Manager) Top() pagetable.VPN { return m.mmapTop }

/// Lookup returns the mmap page entry for vpn, if declared.
func (m *Manager) Lookup(vpn pagetable.VPN) (*Page, bool) {
	p, ok := m.table[vpn]
	return p, ok
}

/// Push declares [start, start+npages) as a new mapping. When fixed is
/// true and the range overlaps an existing declaration, the overlapping
/// entries are dropped first (MAP_FIXED semantics), unmapping any
/// already-faulted page from pt. It returns the start VPN actually used.
func (m *Manager) Push(pt *pagetable.Table, start pagetable.VPN, npages int, prot, flags int, offset int64, file BackedFile, fixed bool) pagetable.VPN {
	if start == 0 {
		start = m.mmapTop
	}
	if fixed {
		m.Remove(pt, start, npages)
	}
	for i := 0; i < npages; i++ {
		vpn := start + pagetable.VPN(i)
		m.table[vpn] = &Page{Prot: prot, Flags: flags, File: file, FileOffset: offset + int64(i)*mem.PGSIZE}
	}
	if end := start + pagetable.VPN(npages); end > m.mmapTop {
		m.mmapTop = end
	}
	return start
}

/// Remove drops both the per-VPN declarations and any frames allocated in
/// [start, start+npages), unmapping already-faulted pages from pt so no
/// leaf PTE outlives the frame it points at.
func (m *Manager) Remove(pt *pagetable.Table, start pagetable.VPN, npages int) {
	for i := 0; i < npages; i++ {
		vpn := start + pagetable.VPN(i)
		p, ok := m.table[vpn]
		if !ok {
			continue
		}
		if p.Valid && pt != nil {
			pt.Unmap(vpn)
		}
		if p.frame != nil {
			p.frame.Drop()
		}
		delete(m.table, vpn)
	}
}

/// Protect updates the recorded prot of every declared page in
/// [start, start+npages) and re-flags any already-faulted leaf PTE so
/// the new permissions take effect immediately; not-yet-faulted pages
/// pick them up at LazyMap time.
func (m *Manager) Protect(pt *pagetable.Table, start pagetable.VPN, npages, prot int) {
	for i := 0; i < npages; i++ {
		vpn := start + pagetable.VPN(i)
		p, ok := m.table[vpn]
		if !ok {
			continue
		}
		p.Prot = prot
		if !p.Valid || pt == nil {
			continue
		}
		flags := pagetable.U | pagetable.V
		if prot&ProtRead != 0 {
			flags |= pagetable.R
		}
		if prot&ProtWrite != 0 {
			flags |= pagetable.W
		}
		if prot&ProtExec != 0 {
			flags |= pagetable.X
		}
		if pte, ok := pt.Lookup(vpn); ok && pte.Valid() {
			keep := pte.Flags() & (pagetable.A | pagetable.D | pagetable.COW)
			if keep&pagetable.COW != 0 {
				// A COW page must keep faulting on write; the fault
				// handler grants W when it resolves the copy.
				flags &^= pagetable.W
			}
			pt.SetFlags(vpn, keep|flags)
		}
	}
}

/// LazyMap satisfies a fault on a declared-but-unmapped VPN: allocates a
/// frame, installs the page-table mapping, and either zero-fills (for
/// MAP_ANONYMOUS) or reads file contents at the recorded offset.
func (m *Manager) LazyMap(pt *pagetable.Table, vpn pagetable.VPN) defs.Err_t {
	p, ok := m.table[vpn]
	if !ok {
		return -defs.EFAULT
	}
	if p.Valid {
		return 0
	}
	frame, ok := m.alloc.Alloc()
	if !ok {
		return -defs.ENOMEM
	}
	flags := pagetable.U
	if p.Prot&ProtRead != 0 {
		flags |= pagetable.R
	}
	if p.Prot&ProtWrite != 0 {
		flags |= pagetable.W
	}
	if p.Prot&ProtExec != 0 {
		flags |= pagetable.X
	}
	if p.Flags&MapAnonymous != 0 {
		// Alloc already zeroed the page.
	} else {
		buf := frame.Page()
		n := int(mem.PGSIZE)
		fsz := p.File.Size()
		remain := fsz - p.FileOffset
		if remain < int64(n) {
			n = int(remain)
		}
		if n > 0 {
			if _, err := p.File.ReadAt(buf[:n], p.FileOffset); err != nil {
				frame.Drop()
				return -defs.EIO
			}
		}
	}
	pt.Map(vpn, frame.PPN(), flags)
	p.frame = frame
	p.Valid = true
	return 0
}

/// FrameAt returns the tracker backing an already-faulted-in page.
func (m *Manager) FrameAt(vpn pagetable.VPN) (*mem.FrameTracker, bool) {
	p, ok := m.table[vpn]
	if !ok || p.frame == nil {
		return nil, false
	}
	return p.frame, true
}

/// SetFrame re-points vpn's declaration at frame without dropping the
/// previous tracker; the copy-on-write resolution uses this to install
/// the faulting side's private copy while the old shared frame is
/// released through its own tracker.
func (m *Manager) SetFrame(vpn pagetable.VPN, frame *mem.FrameTracker) {
	p, ok := m.table[vpn]
	if !ok {
		panic("mmap: setframe on undeclared vpn")
	}
	p.frame = frame
	p.Valid = true
}

/// Clear drops every declaration and frame this manager owns; used when
/// an address space is torn down.
func (m *Manager) Clear() {
	for vpn, p := range m.table {
		if p.frame != nil {
			p.frame.Drop()
		}
		delete(m.table, vpn)
	}
}

/// Entry is a snapshot of one declared VPN's attributes, used by
/// address-space fork to clone a manager without reaching into its
/// unexported table.
type Entry struct {
	VPN        pagetable.VPN
	Prot       int
	Flags      int
	File       BackedFile
	FileOffset int64
	Valid      bool
	PPN        mem.PPN
}

/// Snapshot returns every declared entry; order is unspecified.
func (m *Manager) Snapshot() []Entry {
	out := make([]Entry, 0, len(m.table))
	for vpn, p := range m.table {
		e := Entry{VPN: vpn, Prot: p.Prot, Flags: p.Flags, File: p.File, FileOffset: p.FileOffset, Valid: p.Valid}
		if p.frame != nil {
			e.PPN = p.frame.PPN()
		}
		out = append(out, e)
	}
	return out
}

/// Adopt (re)declares e.VPN using e's recorded attributes. If e.Valid and
/// frame is non-nil, frame is installed as the already-faulted-in
/// backing page (used by fork, which obtains frame via the allocator's
/// AddRef on the shared PPN before calling Adopt).
func (m *Manager) Adopt(e Entry, frame *mem.FrameTracker) {
	p := &Page{Prot: e.Prot, Flags: e.Flags, File: e.File, FileOffset: e.FileOffset}
	if e.Valid && frame != nil {
		p.Valid = true
		p.frame = frame
	}
	m.table[e.VPN] = p
	if e.VPN+1 > m.mmapTop {
		m.mmapTop = e.VPN + 1
	}
}
