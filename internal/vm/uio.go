package vm

import (
	"rvkernel/internal/defs"
	"rvkernel/internal/pagetable"
)

// CopyOut copies data into the user address space starting at va,
// materializing any not-yet-faulted page via CheckLazy as it goes and
// resolving copy-on-write pages the same way a real store instruction
// would fault them in. Grounded on the "Userio_i" read/write-to-ubuf
// surface spec §6's File trait names (read_to_ubuf/write_from_ubuf),
// implemented here once so every syscall that moves bytes into
// userspace shares one translation loop instead of repeating it.
func (ms *MemorySet) CopyOut(va uint64, data []byte) defs.Err_t {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for len(data) > 0 {
		vpn := pagetable.VPN(va / PGSIZE)
		pageOff := int(va % PGSIZE)
		if err := ms.ensureMappedLocked(va, vpn, FaultStore); err != 0 {
			return err
		}
		pte, ok := ms.Table.Lookup(vpn)
		if !ok || !pte.Valid() {
			return -defs.EFAULT
		}
		if pte.Flags()&pagetable.COW != 0 {
			if err := ms.handleCOW(vpn); err != 0 {
				return err
			}
			pte, _ = ms.Table.Lookup(vpn)
		}
		frame := ms.alloc.AddRef(pte.PPN())
		buf := frame.Page()
		n := PGSIZE - pageOff
		if n > len(data) {
			n = len(data)
		}
		copy(buf[pageOff:pageOff+n], data[:n])
		frame.Drop()
		data = data[n:]
		va += uint64(n)
	}
	return 0
}

// CopyIn copies len(buf) bytes from the user address space starting at
// va into buf.
func (ms *MemorySet) CopyIn(va uint64, buf []byte) defs.Err_t {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for len(buf) > 0 {
		vpn := pagetable.VPN(va / PGSIZE)
		pageOff := int(va % PGSIZE)
		if err := ms.ensureMappedLocked(va, vpn, FaultLoad); err != 0 {
			return err
		}
		pte, ok := ms.Table.Lookup(vpn)
		if !ok || !pte.Valid() {
			return -defs.EFAULT
		}
		frame := ms.alloc.AddRef(pte.PPN())
		page := frame.Page()
		n := PGSIZE - pageOff
		if n > len(buf) {
			n = len(buf)
		}
		copy(buf[:n], page[pageOff:pageOff+n])
		frame.Drop()
		buf = buf[n:]
		va += uint64(n)
	}
	return 0
}

// CopyInString reads a NUL-terminated string from user memory at va, up
// to max bytes (not counting the terminator); it fails with
// -ENAMETOOLONG if no terminator is found within that bound.
func (ms *MemorySet) CopyInString(va uint64, max int) (string, defs.Err_t) {
	out := make([]byte, 0, 64)
	var one [1]byte
	for len(out) <= max {
		if err := ms.CopyIn(va+uint64(len(out)), one[:]); err != 0 {
			return "", err
		}
		if one[0] == 0 {
			return string(out), 0
		}
		out = append(out, one[0])
	}
	return "", -defs.ENAMETOOLONG
}

// ensureMappedLocked materializes va's page if it isn't already a valid
// leaf; the caller must hold ms.mu (CheckLazy's own requirement).
func (ms *MemorySet) ensureMappedLocked(va uint64, vpn pagetable.VPN, kind FaultKind) defs.Err_t {
	if pte, ok := ms.Table.Lookup(vpn); ok && pte.Valid() {
		return 0
	}
	return ms.CheckLazy(va, kind)
}
