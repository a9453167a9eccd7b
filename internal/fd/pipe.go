package fd

import (
	"sync"

	"rvkernel/internal/defs"
	"rvkernel/internal/vm"
)

// PipeSize is the pipe ring buffer's fixed capacity, matching spec §8
// scenario 3's literal "4096-byte buffer".
const PipeSize = 4096

/// pipeBuf is the shared ring buffer both ends of a pipe reference.
// readers/writers count the open handles on each end, so a reader
// sees EOF once the writer is gone and empty, and a writer gets EPIPE
// once the reader is gone.
type pipeBuf struct {
	mu             sync.Mutex
	data           [PipeSize]byte
	head, len      int
	readers, writers int
}

func (p *pipeBuf) avail() int { return p.len }
func (p *pipeBuf) space() int { return PipeSize - p.len }

/// NewPipe creates a connected read/write pair sharing one ring buffer,
/// for sys_pipe2.
func NewPipe() (File, File) {
	b := &pipeBuf{readers: 1, writers: 1}
	return &PipeRead{buf: b}, &PipeWrite{buf: b}
}

/// PipeRead is the read end of a pipe.
type PipeRead struct {
	buf *pipeBuf
}

func (p *PipeRead) Readable() bool  { return true }
func (p *PipeRead) Writable() bool  { return false }
func (p *PipeRead) Name() string    { return "pipe:[r]" }
func (p *PipeRead) Path() string    { return "" }
func (p *PipeRead) FileSize() int64 { return 0 }
func (p *PipeRead) Offset() int64   { return 0 }
func (p *PipeRead) Flags() int      { return defs.O_RDONLY }
func (p *PipeRead) SetFlags(int)    {}
func (p *PipeRead) Truncate(int64) defs.Err_t { return -defs.EINVAL }
func (p *PipeRead) Seek(int64, int) (int64, defs.Err_t) { return 0, -defs.ESPIPE }
func (p *PipeRead) Stat() (Stat, defs.Err_t) { return Stat{Mode: 0o010000}, 0 }
func (p *PipeRead) Dirent(*vm.MemorySet, uint64, int) (int, defs.Err_t) { return 0, -defs.ENOTDIR }
func (p *PipeRead) Pread(*vm.MemorySet, uint64, int, int64) (int, defs.Err_t) {
	return 0, -defs.ESPIPE
}
func (p *PipeRead) Pwrite(*vm.MemorySet, uint64, int, int64) (int, defs.Err_t) {
	return 0, -defs.ESPIPE
}
func (p *PipeRead) WriteFromUser(*vm.MemorySet, uint64, int) (int, defs.Err_t) {
	return 0, -defs.EBADF
}
func (p *PipeRead) WriteKernel([]byte) (int, defs.Err_t) { return 0, -defs.EBADF }

// RReady reports whether a read of at least one byte can proceed
// without blocking: either there's buffered data, or the write end is
// gone (read then returns EOF immediately).
func (p *PipeRead) RReady() bool {
	b := p.buf
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.len > 0 || b.writers == 0
}
func (p *PipeRead) WReady() bool { return false }

func (p *PipeRead) readLocked(dst []byte) int {
	b := p.buf
	n := len(dst)
	if n > b.len {
		n = b.len
	}
	for i := 0; i < n; i++ {
		dst[i] = b.data[(b.head+i)%PipeSize]
	}
	b.head = (b.head + n) % PipeSize
	b.len -= n
	return n
}

func (p *PipeRead) ReadKernel(buf []byte) (int, defs.Err_t) {
	b := p.buf
	b.mu.Lock()
	defer b.mu.Unlock()
	return p.readLocked(buf), 0
}

func (p *PipeRead) ReadToUser(ms *vm.MemorySet, va uint64, n int) (int, defs.Err_t) {
	b := p.buf
	b.mu.Lock()
	tmp := make([]byte, n)
	got := p.readLocked(tmp)
	b.mu.Unlock()
	if got == 0 {
		return 0, 0
	}
	if err := ms.CopyOut(va, tmp[:got]); err != 0 {
		return 0, err
	}
	return got, 0
}

func (p *PipeRead) Close() defs.Err_t {
	b := p.buf
	b.mu.Lock()
	b.readers--
	b.mu.Unlock()
	return 0
}

func (p *PipeRead) Reopen() (File, defs.Err_t) {
	b := p.buf
	b.mu.Lock()
	b.readers++
	b.mu.Unlock()
	return &PipeRead{buf: b}, 0
}

/// PipeWrite is the write end of a pipe.
type PipeWrite struct {
	buf *pipeBuf
}

func (p *PipeWrite) Readable() bool  { return false }
func (p *PipeWrite) Writable() bool  { return true }
func (p *PipeWrite) Name() string    { return "pipe:[w]" }
func (p *PipeWrite) Path() string    { return "" }
func (p *PipeWrite) FileSize() int64 { return 0 }
func (p *PipeWrite) Offset() int64   { return 0 }
func (p *PipeWrite) Flags() int      { return defs.O_WRONLY }
func (p *PipeWrite) SetFlags(int)    {}
func (p *PipeWrite) Truncate(int64) defs.Err_t { return -defs.EINVAL }
func (p *PipeWrite) Seek(int64, int) (int64, defs.Err_t) { return 0, -defs.ESPIPE }
func (p *PipeWrite) Stat() (Stat, defs.Err_t) { return Stat{Mode: 0o010000}, 0 }
func (p *PipeWrite) Dirent(*vm.MemorySet, uint64, int) (int, defs.Err_t) { return 0, -defs.ENOTDIR }
func (p *PipeWrite) Pread(*vm.MemorySet, uint64, int, int64) (int, defs.Err_t) {
	return 0, -defs.ESPIPE
}
func (p *PipeWrite) Pwrite(*vm.MemorySet, uint64, int, int64) (int, defs.Err_t) {
	return 0, -defs.ESPIPE
}
func (p *PipeWrite) ReadToUser(*vm.MemorySet, uint64, int) (int, defs.Err_t) {
	return 0, -defs.EBADF
}
func (p *PipeWrite) ReadKernel([]byte) (int, defs.Err_t) { return 0, -defs.EBADF }

func (p *PipeWrite) RReady() bool { return false }

// WReady reports whether a write of at least one byte can proceed
// without blocking: there's free space. A gone reader is reported
// through the write itself returning -EPIPE, not through readiness.
func (p *PipeWrite) WReady() bool {
	b := p.buf
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.space() > 0
}

func (p *PipeWrite) writeLocked(src []byte) (int, defs.Err_t) {
	b := p.buf
	if b.readers == 0 {
		return 0, -defs.EPIPE
	}
	n := len(src)
	if free := b.space(); n > free {
		n = free
	}
	for i := 0; i < n; i++ {
		b.data[(b.head+b.len+i)%PipeSize] = src[i]
	}
	b.len += n
	return n, 0
}

func (p *PipeWrite) WriteKernel(buf []byte) (int, defs.Err_t) {
	b := p.buf
	b.mu.Lock()
	defer b.mu.Unlock()
	return p.writeLocked(buf)
}

func (p *PipeWrite) WriteFromUser(ms *vm.MemorySet, va uint64, n int) (int, defs.Err_t) {
	tmp := make([]byte, n)
	if err := ms.CopyIn(va, tmp); err != 0 {
		return 0, err
	}
	b := p.buf
	b.mu.Lock()
	defer b.mu.Unlock()
	return p.writeLocked(tmp)
}

func (p *PipeWrite) Close() defs.Err_t {
	b := p.buf
	b.mu.Lock()
	b.writers--
	b.mu.Unlock()
	return 0
}

func (p *PipeWrite) Reopen() (File, defs.Err_t) {
	b := p.buf
	b.mu.Lock()
	b.writers++
	b.mu.Unlock()
	return &PipeWrite{buf: b}, 0
}
