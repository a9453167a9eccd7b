// Package pagetable implements the SV39 three-level page table: the walk,
// map/unmap, and the copy-on-write leaf bit. Grounded on biscuit's pmap
// walker (vm/as.go's Page_insert/Pmap_lookup), generalized from biscuit's
// 4-level x86-64 layout to RISC-V's 3-level SV39 layout; the leaf flag
// layout itself is cross-checked against other_examples' rv64 MMU sketch
// (PteV/PteR/PteW/PteX/PteU/PteG/PteA/PteD).
package pagetable

import (
	"unsafe"

	"rvkernel/internal/mem"
)

// Leaf PTE flag bits (bits 0-7 are architectural; bit 8 is a software-use
// bit RISC-V reserves for OS use, repurposed here as the COW bit).
const (
	V   uint64 = 1 << 0
	R   uint64 = 1 << 1
	W   uint64 = 1 << 2
	X   uint64 = 1 << 3
	U   uint64 = 1 << 4
	G   uint64 = 1 << 5
	A   uint64 = 1 << 6
	D   uint64 = 1 << 7
	COW uint64 = 1 << 8 // software-reserved RSW bit
)

const (
	vpnBits  = 9
	vpnMask  = (1 << vpnBits) - 1
	ppnShift = 10
)

/// VPN is a virtual page number (virtual address >> PGSHIFT).
type VPN uint64

/// PTE is one 64-bit page table entry.
type PTE uint64

/// Valid reports whether the V bit is set.
func (p PTE) Valid() bool { return uint64(p)&V != 0 }

/// Leaf reports whether this entry is a leaf (any of R/W/X set) as opposed
/// to a pointer to the next level.
func (p PTE) Leaf() bool { return uint64(p)&(R|W|X) != 0 }

/// Flags returns the V..D flag bits (bits 0-7) plus the COW bit.
func (p PTE) Flags() uint64 { return uint64(p) & (V | R | W | X | U | G | A | D | COW) }

/// PPN returns the physical page number this entry points at.
func (p PTE) PPN() mem.PPN { return mem.PPN(uint64(p) >> ppnShift) }

func mkpte(ppn mem.PPN, flags uint64) PTE {
	return PTE(uint64(ppn)<<ppnShift | flags)
}

func vpnParts(v VPN) [3]uint64 {
	x := uint64(v)
	return [3]uint64{x & vpnMask, (x >> vpnBits) & vpnMask, (x >> (2 * vpnBits)) & vpnMask}
}

/// Table is an SV39 page table. It owns the root frame and every
/// interior-node frame it allocates via find_pte_create, extending their
/// lifetime to match the table's own.
type Table struct {
	alloc *mem.Allocator
	root  *mem.FrameTracker
	owned []*mem.FrameTracker
}

/// New allocates a fresh, zeroed root page and returns an owning Table.
func New(alloc *mem.Allocator) *Table {
	root := alloc.AllocMust()
	return &Table{alloc: alloc, root: root}
}

/// RootPPN returns the physical page number of the root table, the value
/// that belongs in satp.
func (t *Table) RootPPN() mem.PPN { return t.root.PPN() }

// tableView reinterprets a 4096-byte page as 512 uint64 PTE slots, the same
// unaligned-raw-reinterpretation idiom biscuit's mem/dmap.go and stat.go
// use for typed views over raw page bytes.
func tableView(pg *mem.Page) *[512]uint64 {
	return (*[512]uint64)(unsafe.Pointer(pg))
}

// findPTE walks from the root, optionally creating intermediate tables.
// Returns nil if the entry doesn't exist and create is false.
func (t *Table) findPTE(v VPN, create bool) *uint64 {
	parts := vpnParts(v)
	cur := t.root
	for level := 2; level >= 1; level-- {
		tbl := tableView(cur.Page())
		idx := parts[level]
		entry := PTE(tbl[idx])
		if !entry.Valid() {
			if !create {
				return nil
			}
			child := t.alloc.AllocMust()
			t.owned = append(t.owned, child)
			tbl[idx] = uint64(mkpte(child.PPN(), V))
			cur = child
			continue
		}
		if entry.Leaf() {
			panic("pagetable: leaf entry where interior node expected")
		}
		cur = t.frameFromPPN(entry.PPN())
	}
	tbl := tableView(cur.Page())
	return &tbl[parts[0]]
}

// frameFromPPN resolves a PPN we already own (root or an owned interior
// node) back to its FrameTracker's Page without taking a new reference.
func (t *Table) frameFromPPN(p mem.PPN) *mem.FrameTracker {
	if t.root.PPN() == p {
		return t.root
	}
	for _, f := range t.owned {
		if f.PPN() == p {
			return f
		}
	}
	panic("pagetable: interior PPN not owned by this table")
}

/// Map installs a leaf mapping for v -> p with the given flags. It panics
/// if the leaf is already valid -- mapping over a live mapping is always a
/// programming error per the spec's page-table invariant.
func (t *Table) Map(v VPN, p mem.PPN, flags uint64) {
	slot := t.findPTE(v, true)
	if PTE(*slot).Valid() {
		panic("pagetable: remap of valid leaf")
	}
	*slot = uint64(mkpte(p, flags|V))
}

/// Unmap clears the leaf mapping for v. It panics if no mapping exists.
func (t *Table) Unmap(v VPN) {
	slot := t.findPTE(v, false)
	if slot == nil || !PTE(*slot).Valid() {
		panic("pagetable: unmap of invalid leaf")
	}
	*slot = 0
}

/// Lookup returns the leaf PTE for v without creating intermediate tables;
/// it reports false when no valid leaf is mapped at v.
func (t *Table) Lookup(v VPN) (PTE, bool) {
	slot := t.findPTE(v, false)
	if slot == nil || !PTE(*slot).Valid() {
		return 0, false
	}
	return PTE(*slot), true
}

/// Slot returns a pointer to the leaf entry for v, creating intermediate
/// tables as needed. Callers use this to mutate flags in place (e.g. the
/// copy-on-write re-claim path, which flips W/COW without moving the
/// backing frame).
func (t *Table) Slot(v VPN) *uint64 {
	return t.findPTE(v, true)
}

/// SetFlags overwrites just the flag bits of an existing valid leaf,
/// keeping its PPN, and returns the previous flags.
func (t *Table) SetFlags(v VPN, flags uint64) uint64 {
	slot := t.findPTE(v, false)
	if slot == nil || !PTE(*slot).Valid() {
		panic("pagetable: setflags on invalid leaf")
	}
	old := PTE(*slot)
	*slot = uint64(mkpte(old.PPN(), flags|V))
	return old.Flags()
}
