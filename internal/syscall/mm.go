package syscall

import (
	"rvkernel/internal/defs"
	"rvkernel/internal/fd"
	"rvkernel/internal/fs/fscore"
	"rvkernel/internal/pagetable"
	"rvkernel/internal/proc"
	"rvkernel/internal/vm"
	"rvkernel/internal/vm/mmap"
)

// entryBackedFile adapts a resolved fscore.Entry to mmap.BackedFile,
// whose (buf, offset)-order ReadAt and int64 Size differ just enough
// from vfile.File's own (offset, buf) signature and uint32 Size that a
// one-line adapter is simpler than changing either package's contract.
type entryBackedFile struct{ e *fscore.Entry }

func (b entryBackedFile) ReadAt(buf []byte, offset int64) (int, error) {
	n, err := b.e.File.ReadAt(offset, buf)
	if err != nil {
		return n, err
	}
	return n, nil
}

// Size reads the live vfile size rather than the Entry.Size snapshot
// taken at lookup time, so pages mapped after a write see the grown file.
func (b entryBackedFile) Size() int64 { return int64(b.e.File.Size()) }

func (k *Kernel) sysBrk(task *proc.TCB, a Args) (int64, defs.Err_t) {
	ms := task.MemorySet.MS
	ms.Lock()
	defer ms.Unlock()
	if a.A0 == 0 {
		return int64(ms.Brk()), 0
	}
	if err := ms.GrowBrk(a.A0); err != 0 {
		return int64(ms.Brk()), err
	}
	return int64(ms.Brk()), 0
}

// sysMmap declares an anonymous or file-backed mapping; no frame is
// touched here — the first access faults through CheckLazy into the
// mmap manager's LazyMap, which zeroes (anonymous) or reads from the
// backing file (file-backed) on demand.
func (k *Kernel) sysMmap(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	length := a.A1
	prot := int(a.A2)
	flags := int(a.A3)
	if length == 0 {
		return 0, -defs.EINVAL
	}

	var backing mmap.BackedFile
	if flags&mmap.MapAnonymous == 0 {
		entry, ok := task.FdTable.Table.Get(int(int32(a.A4)))
		if !ok {
			return 0, -defs.EBADF
		}
		reg, ok := entry.File.(*fd.RegularFile)
		if !ok {
			// Only disk files can back a mapping; pipes and devices
			// have no stable offset space to fault pages in from.
			return 0, -defs.EBADF
		}
		backing = entryBackedFile{e: reg.Entry()}
	}
	npages := int((length + vm.PGSIZE - 1) / vm.PGSIZE)

	ms.Lock()
	defer ms.Unlock()
	if ms.Mmap == nil {
		ms.Mmap = mmap.New(ms.Alloc(), pagetable.VPN(0x40_0000_0000/vm.PGSIZE))
	}
	start := pagetable.VPN(0)
	fixed := flags&mmap.MapFixed != 0
	if a.A0 != 0 {
		start = pagetable.VPN(a.A0 / vm.PGSIZE)
	}
	used := ms.Mmap.Push(ms.Table, start, npages, prot, flags, int64(a.A5), backing, fixed)
	return int64(uint64(used) * vm.PGSIZE), 0
}

func (k *Kernel) sysMunmap(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	if ms.Mmap == nil {
		return 0, 0
	}
	npages := int((a.A1 + vm.PGSIZE - 1) / vm.PGSIZE)
	ms.Lock()
	defer ms.Unlock()
	ms.Mmap.Remove(ms.Table, pagetable.VPN(a.A0/vm.PGSIZE), npages)
	return 0, 0
}

// sysMprotect re-flags both region-backed pages (stack/heap/ELF
// segments, via MemorySet.Mprotect) and mmap-managed pages in the
// range; whichever kind the range covers picks up the new permissions.
func (k *Kernel) sysMprotect(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	if a.A0%vm.PGSIZE != 0 {
		return 0, -defs.EINVAL
	}
	prot := int(a.A2)
	npages := int((a.A1 + vm.PGSIZE - 1) / vm.PGSIZE)
	start := pagetable.VPN(a.A0 / vm.PGSIZE)

	var perms uint64
	if prot&mmap.ProtRead != 0 {
		perms |= pagetable.R
	}
	if prot&mmap.ProtWrite != 0 {
		perms |= pagetable.W
	}
	if prot&mmap.ProtExec != 0 {
		perms |= pagetable.X
	}
	if err := ms.Mprotect(start, start+pagetable.VPN(npages), perms); err != 0 {
		return 0, err
	}
	if ms.Mmap != nil {
		ms.Lock()
		ms.Mmap.Protect(ms.Table, start, npages, prot)
		ms.Unlock()
	}
	return 0, 0
}
