package fd

import (
	"encoding/binary"
	"sync"

	"rvkernel/internal/defs"
	"rvkernel/internal/fs/dirent"
	"rvkernel/internal/fs/fscore"
	"rvkernel/internal/vm"
)

/// RegularFile adapts a resolved fscore.Entry (regular file or
/// directory) to the File interface, owning the open-file cursor
/// fscore/vfile themselves don't track. Grounded on biscuit's
/// fs.Fs_t-backed fd.Fd_t, which layers the same cursor-plus-backing-
/// file split over its own ufs inode abstraction.
type RegularFile struct {
	mu      sync.Mutex
	entry   *fscore.Entry
	path    string
	off     int64
	flags   int
	cloexec bool
}

/// NewRegularFile opens path (already resolved to entry) for reading
/// and/or writing as flags (O_RDONLY/O_WRONLY/O_RDWR, optionally
/// O_APPEND) indicate.
func NewRegularFile(entry *fscore.Entry, path string, flags int) *RegularFile {
	off := int64(0)
	if flags&defs.O_APPEND != 0 {
		off = int64(entry.Size)
	}
	return &RegularFile{entry: entry, path: path, off: off, flags: flags}
}

/// Entry exposes the resolved fscore.Entry this file wraps, for callers
/// (sys_mmap's file-backed path) that need the underlying cluster-chain
/// reader rather than this type's cursor-relative File methods.
func (f *RegularFile) Entry() *fscore.Entry { return f.entry }

func (f *RegularFile) canRead() bool  { return f.flags&defs.O_WRONLY == 0 }
func (f *RegularFile) canWrite() bool { return f.flags&(defs.O_WRONLY|defs.O_RDWR) != 0 }

func (f *RegularFile) Readable() bool { return !f.entry.IsDir && f.canRead() }
func (f *RegularFile) Writable() bool { return !f.entry.IsDir && f.canWrite() }
func (f *RegularFile) Name() string   { return f.entry.Name }
func (f *RegularFile) Path() string   { return f.path }
func (f *RegularFile) Flags() int     { return f.flags }
func (f *RegularFile) SetFlags(flags int) {
	f.mu.Lock()
	f.flags = flags
	f.mu.Unlock()
}

func (f *RegularFile) FileSize() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(f.entry.File.Size())
}

func (f *RegularFile) Offset() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.off
}

func (f *RegularFile) Truncate(size int64) defs.Err_t {
	if f.entry.IsDir {
		return -defs.EISDIR
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	clusters := uint32(0)
	if size > 0 {
		// Truncate keeps whole clusters; growth-by-truncate isn't a case
		// this filesystem's ftruncate(2) needs to support beyond what
		// WriteAt already does when a later write extends the file.
		clusters = 1
	}
	if err := f.entry.File.Truncate(clusters); err != nil {
		return -defs.EIO
	}
	return 0
}

func (f *RegularFile) Seek(offset int64, whence int) (int64, defs.Err_t) {
	if f.entry.IsDir {
		return 0, -defs.EISDIR
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var base int64
	switch whence {
	case defs.SEEK_SET:
		base = 0
	case defs.SEEK_CUR:
		base = f.off
	case defs.SEEK_END:
		base = int64(f.entry.File.Size())
	default:
		return 0, -defs.EINVAL
	}
	newOff := base + offset
	if newOff < 0 {
		return 0, -defs.EINVAL
	}
	f.off = newOff
	return newOff, 0
}

func (f *RegularFile) Stat() (Stat, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mode := uint32(0o100644)
	if f.entry.IsDir {
		mode = 0o040755
	}
	return Stat{
		Ino:     uint64(f.entry.File.FirstCluster()),
		Mode:    mode,
		Nlink:   1,
		Size:    int64(f.entry.File.Size()),
		Blksize: 512,
		Blocks:  uint64((f.entry.File.Size() + 511) / 512),
		IsDir:   f.entry.IsDir,
	}, 0
}

func (f *RegularFile) Pread(ms *vm.MemorySet, va uint64, n int, offset int64) (int, defs.Err_t) {
	if !f.Readable() {
		return 0, -defs.EBADF
	}
	tmp := make([]byte, n)
	got, err := f.entry.File.ReadAt(offset, tmp)
	if err != nil {
		return 0, -defs.EIO
	}
	if got == 0 {
		return 0, 0
	}
	if cerr := ms.CopyOut(va, tmp[:got]); cerr != 0 {
		return 0, cerr
	}
	return got, 0
}

func (f *RegularFile) Pwrite(ms *vm.MemorySet, va uint64, n int, offset int64) (int, defs.Err_t) {
	if !f.Writable() {
		return 0, -defs.EBADF
	}
	tmp := make([]byte, n)
	if err := ms.CopyIn(va, tmp); err != 0 {
		return 0, err
	}
	got, err := f.entry.File.WriteAt(offset, tmp)
	if err != nil {
		return 0, -defs.EIO
	}
	return got, 0
}

func (f *RegularFile) ReadToUser(ms *vm.MemorySet, va uint64, n int) (int, defs.Err_t) {
	f.mu.Lock()
	off := f.off
	f.mu.Unlock()
	got, err := f.Pread(ms, va, n, off)
	if err == 0 && got > 0 {
		f.mu.Lock()
		f.off += int64(got)
		f.mu.Unlock()
	}
	return got, err
}

func (f *RegularFile) WriteFromUser(ms *vm.MemorySet, va uint64, n int) (int, defs.Err_t) {
	f.mu.Lock()
	if f.flags&defs.O_APPEND != 0 {
		f.off = int64(f.entry.File.Size())
	}
	off := f.off
	f.mu.Unlock()
	got, err := f.Pwrite(ms, va, n, off)
	if err == 0 && got > 0 {
		f.mu.Lock()
		f.off += int64(got)
		f.mu.Unlock()
	}
	return got, err
}

func (f *RegularFile) ReadKernel(buf []byte) (int, defs.Err_t) {
	if !f.Readable() {
		return 0, -defs.EBADF
	}
	f.mu.Lock()
	off := f.off
	f.mu.Unlock()
	n, err := f.entry.File.ReadAt(off, buf)
	if err != nil {
		return 0, -defs.EIO
	}
	f.mu.Lock()
	f.off += int64(n)
	f.mu.Unlock()
	return n, 0
}

func (f *RegularFile) WriteKernel(buf []byte) (int, defs.Err_t) {
	if !f.Writable() {
		return 0, -defs.EBADF
	}
	f.mu.Lock()
	off := f.off
	f.mu.Unlock()
	n, err := f.entry.File.WriteAt(off, buf)
	if err != nil {
		return 0, -defs.EIO
	}
	f.mu.Lock()
	f.off += int64(n)
	f.mu.Unlock()
	return n, 0
}

// dirRecord is one getdents64-format record: fixed header followed by
// the NUL-terminated name, padded so reclen keeps 8-byte alignment.
func dirRecord(ino uint64, off int64, typ uint8, name string) []byte {
	nameLen := len(name) + 1
	reclen := 19 + nameLen
	if pad := reclen % 8; pad != 0 {
		reclen += 8 - pad
	}
	rec := make([]byte, reclen)
	binary.LittleEndian.PutUint64(rec[0:], ino)
	binary.LittleEndian.PutUint64(rec[8:], uint64(off))
	binary.LittleEndian.PutUint16(rec[16:], uint16(reclen))
	rec[18] = typ
	copy(rec[19:], name)
	return rec
}

const (
	dtDir = 4
	dtReg = 8
)

func (f *RegularFile) Dirent(ms *vm.MemorySet, va uint64, n int) (int, defs.Err_t) {
	if !f.entry.IsDir {
		return 0, -defs.ENOTDIR
	}
	f.mu.Lock()
	entries, err := f.entry.Dir.List()
	idx := f.off
	f.mu.Unlock()
	if err != 0 {
		return 0, err
	}

	var out []byte
	var consumed int64
	for i := idx; i < int64(len(entries)); i++ {
		e := entries[i]
		typ := uint8(dtReg)
		if e.Attr&dirent.AttrDirectory != 0 {
			typ = dtDir
		}
		rec := dirRecord(uint64(i)+1, i+1, typ, e.Name)
		if len(out)+len(rec) > n {
			break
		}
		out = append(out, rec...)
		consumed++
	}
	if len(out) == 0 {
		return 0, 0
	}
	if cerr := ms.CopyOut(va, out); cerr != 0 {
		return 0, cerr
	}
	f.mu.Lock()
	f.off += consumed
	f.mu.Unlock()
	return len(out), 0
}

func (f *RegularFile) RReady() bool { return true }
func (f *RegularFile) WReady() bool { return true }

func (f *RegularFile) Close() defs.Err_t { return 0 }

func (f *RegularFile) Reopen() (File, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &RegularFile{entry: f.entry, path: f.path, off: f.off, flags: f.flags}, 0
}
