package fd

import (
	"rvkernel/internal/defs"
	"rvkernel/internal/vm"
)

/// Devnull is the /dev/null character device: reads always return EOF,
/// writes always succeed and discard their payload. Grounded on
/// biscuit's D_DEVNULL fixed device node.
type Devnull struct {
	flags int
}

/// NewDevnull opens a fresh /dev/null handle.
func NewDevnull() *Devnull { return &Devnull{} }

func (d *Devnull) Readable() bool  { return true }
func (d *Devnull) Writable() bool  { return true }
func (d *Devnull) Name() string    { return "/dev/null" }
func (d *Devnull) Path() string    { return "/dev/null" }
func (d *Devnull) FileSize() int64 { return 0 }
func (d *Devnull) Offset() int64   { return 0 }
func (d *Devnull) Flags() int      { return d.flags }
func (d *Devnull) SetFlags(f int)  { d.flags = f }
func (d *Devnull) Truncate(int64) defs.Err_t { return 0 }
func (d *Devnull) Seek(int64, int) (int64, defs.Err_t) { return 0, 0 }
func (d *Devnull) Stat() (Stat, defs.Err_t) {
	return Stat{Dev: defs.Mkdev(defs.D_DEVNULL, 0), Mode: 0o020666}, 0
}
func (d *Devnull) Dirent(*vm.MemorySet, uint64, int) (int, defs.Err_t) { return 0, -defs.ENOTDIR }

func (d *Devnull) ReadToUser(*vm.MemorySet, uint64, int) (int, defs.Err_t) { return 0, 0 }
func (d *Devnull) ReadKernel([]byte) (int, defs.Err_t)                     { return 0, 0 }
func (d *Devnull) Pread(*vm.MemorySet, uint64, int, int64) (int, defs.Err_t) { return 0, 0 }

func (d *Devnull) WriteFromUser(_ *vm.MemorySet, _ uint64, n int) (int, defs.Err_t) { return n, 0 }
func (d *Devnull) WriteKernel(buf []byte) (int, defs.Err_t)                        { return len(buf), 0 }
func (d *Devnull) Pwrite(_ *vm.MemorySet, _ uint64, n int, _ int64) (int, defs.Err_t) {
	return n, 0
}

func (d *Devnull) RReady() bool { return true }
func (d *Devnull) WReady() bool { return true }

func (d *Devnull) Close() defs.Err_t { return 0 }
func (d *Devnull) Reopen() (File, defs.Err_t) { return &Devnull{flags: d.flags}, 0 }
