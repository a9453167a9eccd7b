// Package fd implements the file-descriptor table and the File interface
// spec §6 names (readable/writable/available/pread/pwrite/seek/name/
// fstat/dirent/offset/set_flags/flags/set_cloexec/file_size/r_ready/
// w_ready/path/truncate), plus the concrete kinds that implement it:
// regular files, directories, pipes, console stdin/stdout, and /dev/null.
// Grounded on biscuit's fd.Fd_t (fd/fd.go) for the {ops, perms} shape and
// Copyfd duplication pattern, generalized from biscuit's separate
// Fdops_i/Userio_i interfaces into one File interface per spec §6.
package fd

import (
	"sync"

	"rvkernel/internal/defs"
	"rvkernel/internal/vm"
)

// Fd permission bits, matching biscuit's FD_READ/FD_WRITE/FD_CLOEXEC.
const (
	Read    = 0x1
	Write   = 0x2
	Cloexec = 0x4
)

/// Stat mirrors the fields newfstatat/fstat report; userland-facing
/// encoding happens in internal/syscall, which owns the on-the-wire
/// struct stat layout.
type Stat struct {
	Dev     uint64
	Ino     uint64
	Mode    uint32
	Nlink   uint32
	Size    int64
	Blksize uint32
	Blocks  uint64
	IsDir   bool
}

/// File is the dynamic-dispatch surface every open file kind implements,
/// generalizing spec §6's File trait. ms is passed explicitly rather than
/// captured, since the same open file may be read from a different
/// thread's syscall context than the one that opened it (fd tables can
/// be shared, per CLONE_FILES).
type File interface {
	Readable() bool
	Writable() bool

	// ReadToUser/WriteFromUser move n bytes between this file's current
	// offset and user memory at va, advancing the offset.
	ReadToUser(ms *vm.MemorySet, va uint64, n int) (int, defs.Err_t)
	WriteFromUser(ms *vm.MemorySet, va uint64, n int) (int, defs.Err_t)

	// ReadKernel/WriteKernel are the same operations against a
	// kernel-resident buffer, used by sendfile's in-kernel copy loop.
	ReadKernel(buf []byte) (int, defs.Err_t)
	WriteKernel(buf []byte) (int, defs.Err_t)

	// Pread/Pwrite are ReadToUser/WriteFromUser at an explicit offset,
	// leaving the file's current offset untouched.
	Pread(ms *vm.MemorySet, va uint64, n int, offset int64) (int, defs.Err_t)
	Pwrite(ms *vm.MemorySet, va uint64, n int, offset int64) (int, defs.Err_t)

	Seek(offset int64, whence int) (int64, defs.Err_t)
	Offset() int64

	Name() string
	Path() string
	FileSize() int64
	Truncate(size int64) defs.Err_t

	Stat() (Stat, defs.Err_t)
	// Dirent writes as many getdents64-format records as fit in n bytes
	// of user memory starting at va, returning the byte count written.
	Dirent(ms *vm.MemorySet, va uint64, n int) (int, defs.Err_t)

	// RReady/WReady report whether a Read/Write of at least one byte
	// would succeed without blocking; the syscall layer uses these to
	// decide whether to suspend the caller (spec §5's "pipe read when
	// empty"/"pipe write when full" suspension points).
	RReady() bool
	WReady() bool

	Flags() int
	SetFlags(flags int)

	Close() defs.Err_t
	// Reopen produces an independent handle sharing the same
	// underlying resource (offset semantics match dup(2): a fresh File
	// value with its own Close lifetime but a shared cursor where the
	// kind requires it, e.g. regular files' byte offset).
	Reopen() (File, defs.Err_t)
}

/// Entry is one live slot in a Table: a File plus the two per-descriptor
/// (not per-open-file) bits POSIX keeps separate from the file itself.
type Entry struct {
	File    File
	Cloexec bool
}

/// Table is a task's file-descriptor table. Shared between threads of a
/// process when CLONE_FILES is set (spec §4.6), via the caller wrapping
/// the same *Table in more than one TCB rather than this package
/// providing its own Arc — Go's GC keeps it alive as long as any TCB
/// references it.
type Table struct {
	mu      sync.Mutex
	entries []*Entry // nil entries are free slots
}

/// New creates an empty file-descriptor table.
func New() *Table {
	return &Table{}
}

/// Install places f into the lowest-numbered free slot and returns its
/// descriptor number, or -EMFILE if the table is exhausted (spec §7).
func (t *Table) Install(f File, cloexec bool) (int, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	const maxFds = 1024
	for i, e := range t.entries {
		if e == nil {
			t.entries[i] = &Entry{File: f, Cloexec: cloexec}
			return i, 0
		}
	}
	if len(t.entries) >= maxFds {
		return 0, -defs.EMFILE
	}
	t.entries = append(t.entries, &Entry{File: f, Cloexec: cloexec})
	return len(t.entries) - 1, 0
}

/// InstallAt places f at exactly fdnum, closing whatever was there first
/// (dup2/dup3 semantics), growing the table if needed.
func (t *Table) InstallAt(fdnum int, f File, cloexec bool) defs.Err_t {
	if fdnum < 0 {
		return -defs.EBADF
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for len(t.entries) <= fdnum {
		t.entries = append(t.entries, nil)
	}
	if old := t.entries[fdnum]; old != nil {
		old.File.Close()
	}
	t.entries[fdnum] = &Entry{File: f, Cloexec: cloexec}
	return 0
}

/// Get returns the entry at fdnum, or ok=false if it's not open.
func (t *Table) Get(fdnum int) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fdnum < 0 || fdnum >= len(t.entries) || t.entries[fdnum] == nil {
		return nil, false
	}
	return t.entries[fdnum], true
}

/// Close closes and frees fdnum.
func (t *Table) Close(fdnum int) defs.Err_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fdnum < 0 || fdnum >= len(t.entries) || t.entries[fdnum] == nil {
		return -defs.EBADF
	}
	e := t.entries[fdnum]
	t.entries[fdnum] = nil
	return e.File.Close()
}

/// Dup duplicates fdnum into the lowest free slot.
func (t *Table) Dup(fdnum int) (int, defs.Err_t) {
	e, ok := t.Get(fdnum)
	if !ok {
		return 0, -defs.EBADF
	}
	nf, err := e.File.Reopen()
	if err != 0 {
		return 0, err
	}
	return t.Install(nf, false)
}

/// Dup3 duplicates oldfd into newfd exactly (closing whatever was
/// already at newfd), optionally setting close-on-exec.
func (t *Table) Dup3(oldfd, newfd int, cloexec bool) defs.Err_t {
	if oldfd == newfd {
		return -defs.EINVAL
	}
	e, ok := t.Get(oldfd)
	if !ok {
		return -defs.EBADF
	}
	nf, err := e.File.Reopen()
	if err != 0 {
		return err
	}
	return t.InstallAt(newfd, nf, cloexec)
}

/// CloseOnExec closes every Cloexec-marked descriptor, called from
/// execve before the new image replaces the address space.
func (t *Table) CloseOnExec() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, e := range t.entries {
		if e != nil && e.Cloexec {
			e.File.Close()
			t.entries[i] = nil
		}
	}
}

/// Clone deep-copies the table (each entry reopened independently),
/// used when CLONE_FILES is not set on clone/fork.
func (t *Table) Clone() *Table {
	t.mu.Lock()
	defer t.mu.Unlock()
	nt := &Table{entries: make([]*Entry, len(t.entries))}
	for i, e := range t.entries {
		if e == nil {
			continue
		}
		nf, err := e.File.Reopen()
		if err != 0 {
			continue
		}
		nt.entries[i] = &Entry{File: nf, Cloexec: e.Cloexec}
	}
	return nt
}

/// Len reports the table's current slot count (not the number of open
/// descriptors), for diagnostics/tests.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
