package syscall

import (
	"sync"

	"rvkernel/internal/defs"
)

// mountLimit matches the original mount table's fixed capacity.
const mountLimit = 16

type mountPoint struct {
	special string
	dir     string
	fstype  string
}

/// mounts is the kernel's mount table. Only the root FAT volume is ever
/// actually backed by a filesystem; further mounts are recorded and
/// reported but resolve no paths, which is all the userland the kernel
/// targets asks of mount(2)/umount2(2).
type mounts struct {
	mu      sync.Mutex
	entries []mountPoint
}

func (m *mounts) mount(special, dir, fstype string) defs.Err_t {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.dir == dir {
			// Remounting the same directory replaces the entry.
			m.entries[i] = mountPoint{special: special, dir: dir, fstype: fstype}
			return 0
		}
	}
	if len(m.entries) >= mountLimit {
		return -defs.ENOSPC
	}
	m.entries = append(m.entries, mountPoint{special: special, dir: dir, fstype: fstype})
	return 0
}

func (m *mounts) umount(special string) defs.Err_t {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.special == special || e.dir == special {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return 0
		}
	}
	return -defs.EINVAL
}
