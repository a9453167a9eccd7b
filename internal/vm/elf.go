package vm

import (
	"bytes"
	"debug/elf"

	"rvkernel/internal/mem"
	"rvkernel/internal/pagetable"
	"rvkernel/internal/vm/mmap"
)

// Fixed layout constants for a freshly loaded user address space,
// matching the rCore-family original's consts.rs (MEMORY_END aside): the
// user stack is a fixed-size region directly below the trap-context
// page, and a single guard page separates the highest loaded segment
// from the heap.
const (
	UserStackSize = 32 * PGSIZE
	GuardPage     = PGSIZE
	HeapSize      = 64 * PGSIZE
	LinkBase      = 0x20_0000_0000 // fixed load base for PT_INTERP's linker
)

// Aux vector tags, the subset spec §4.3 step 5 names.
const (
	AT_NULL   = 0
	AT_PHDR   = 3
	AT_PHENT  = 4
	AT_PHNUM  = 5
	AT_PAGESZ = 6
	AT_BASE   = 7
	AT_ENTRY  = 9
	AT_UID    = 11
	AT_EUID   = 12
	AT_GID    = 13
	AT_EGID   = 14
	AT_HWCAP  = 16
	AT_CLKTCK = 17
	AT_SECURE = 23
	AT_RANDOM = 25
)

const elfPhentsize = 56 // sizeof(Elf64_Phdr)

/// AuxEntry is one (tag, value) pair of the auxiliary vector.
type AuxEntry struct {
	Tag, Val uint64
}

/// LoadResult is what loading an ELF file produces: the populated address
/// space plus the values execve needs to hand back to the caller.
type LoadResult struct {
	MS           *MemorySet
	Entry        uint64
	UserStackTop uint64
	Phdr         uint64
	PhEnt        int
	PhNum        int
	Aux          []AuxEntry
}

/// LoadELFInto loads the ELF image in data into ms, mapping the
/// trampoline at trampolinePPN and the trap context, then walking
/// PT_LOAD segments into regions, declaring a lazy stack and heap, and
/// building the auxiliary vector (spec §4.3).
///
/// file, if non-nil, backs the PT_LOAD regions for demand paging (a
/// fault reads from file instead of the segment being copied in up
/// front, matching the ELF-segment lazy-fault path of spec §4.4); if
/// file is nil the segments are loaded eagerly from data instead, which
/// is how the very first init process is started, before any
/// filesystem exists to back it.
func LoadELFInto(ms *MemorySet, data []byte, trampolinePPN mem.PPN, file BackedFile) (*LoadResult, error) {
	ms.MapTrampoline(trampolinePPN)
	ms.MapTrapContext()

	ef, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var highestEnd uint64
	var phdrVA uint64

	for _, prog := range ef.Progs {
		if prog.Type == elf.PT_PHDR {
			phdrVA = prog.Vaddr
		}
		if prog.Type != elf.PT_LOAD {
			continue
		}
		startVA := prog.Vaddr
		endVA := prog.Vaddr + prog.Memsz
		perms := permsFromFlags(prog.Flags)
		startVPN := pagetable.VPN(startVA / PGSIZE)
		endVPN := pagetable.VPN((endVA + PGSIZE - 1) / PGSIZE)

		if file != nil {
			// FileOffset is page-aligned down with the vaddr, so the
			// file-backed span from it covers the head slack plus
			// exactly p_filesz bytes; the memsz tail beyond that is
			// .bss and must fault in as zeroes.
			ms.PushFile(KindELF, startVPN, endVPN, perms, file,
				int(prog.Off)-int(startVA%PGSIZE), int64(startVA%PGSIZE)+int64(prog.Filesz))
		} else {
			r, ferr := ms.PushEagerAnon(KindELF, startVPN, endVPN, perms)
			if ferr != 0 {
				return nil, errnoError(ferr)
			}
			writeSegmentEager(r, startVA, data, int64(prog.Off), int64(prog.Filesz))
		}
		if endVA > highestEnd {
			highestEnd = endVA
		}
	}

	entry := ef.Entry
	aux := []AuxEntry{
		{AT_PHDR, phdrVA},
		{AT_PHENT, uint64(elfPhentsize)},
		{AT_PHNUM, uint64(len(ef.Progs))},
		{AT_PAGESZ, PGSIZE},
		{AT_CLKTCK, 100},
		{AT_RANDOM, uint64(TrapContextVA) - 2*PGSIZE},
		{AT_ENTRY, entry},
		{AT_UID, 0}, {AT_EUID, 0}, {AT_GID, 0}, {AT_EGID, 0},
		{AT_SECURE, 0}, {AT_HWCAP, 0},
	}

	for _, prog := range ef.Progs {
		if prog.Type == elf.PT_INTERP {
			entry = LinkBase + entry
			aux = append(aux, AuxEntry{AT_BASE, LinkBase})
			break
		}
	}

	stackTop := TrapContextVA
	stackBottom := stackTop - UserStackSize
	ms.PushAnon(KindStack, pagetable.VPN(stackBottom/PGSIZE), pagetable.VPN(stackTop/PGSIZE), permsStack())

	brkStart := roundupU64(highestEnd, PGSIZE) + GuardPage
	heap := ms.PushAnon(KindHeap, pagetable.VPN(brkStart/PGSIZE), pagetable.VPN(brkStart/PGSIZE)+HeapSize/PGSIZE, permsStack())
	ms.SetHeap(heap, brkStart)

	mmapBase := pagetable.VPN((brkStart + HeapSize) / PGSIZE)
	ms.Mmap = mmap.New(ms.alloc, mmapBase)

	return &LoadResult{
		MS: ms, Entry: entry, UserStackTop: stackTop,
		Phdr: phdrVA, PhEnt: elfPhentsize, PhNum: len(ef.Progs), Aux: aux,
	}, nil
}

func permsFromFlags(f elf.ProgFlag) uint64 {
	var p uint64
	if f&elf.PF_R != 0 {
		p |= pagetable.R
	}
	if f&elf.PF_W != 0 {
		p |= pagetable.W
	}
	if f&elf.PF_X != 0 {
		p |= pagetable.X
	}
	return p
}

func permsStack() uint64 { return pagetable.R | pagetable.W }

// writeSegmentEager copies a PT_LOAD segment's file-backed bytes into the
// frames PushEagerAnon already allocated for r; bytes past filesz within
// memsz stay zero (Alloc zeroes every frame), giving bss-tail semantics
// for free.
func writeSegmentEager(r *Region, startVA uint64, data []byte, fileOff, filesz int64) {
	if filesz <= 0 {
		return
	}
	end := fileOff + filesz
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	seg := data[fileOff:end]
	off := int(startVA % PGSIZE)
	for written := 0; written < len(seg); {
		vpn := r.Start + pagetable.VPN((off+written)/PGSIZE)
		frame, ok := r.frameAt(vpn)
		if !ok {
			break
		}
		pageOff := (off + written) % PGSIZE
		n := PGSIZE - pageOff
		if n > len(seg)-written {
			n = len(seg) - written
		}
		buf := frame.Page()
		copy(buf[pageOff:pageOff+n], seg[written:written+n])
		written += n
	}
}

func roundupU64(v, sz uint64) uint64 {
	return (v + sz - 1) / sz * sz
}
