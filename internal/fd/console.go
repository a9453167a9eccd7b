package fd

import (
	"rvkernel/internal/console"
	"rvkernel/internal/defs"
	"rvkernel/internal/vm"
)

/// ConsoleFile adapts the single system console to the File interface,
/// so it can be installed at fd 0/1/2 for the init task like any other
/// open file.
type ConsoleFile struct {
	c     *console.Console
	flags int
}

/// NewConsoleFile opens a handle onto the system console.
func NewConsoleFile() *ConsoleFile {
	return &ConsoleFile{c: console.Global()}
}

func (c *ConsoleFile) Readable() bool  { return true }
func (c *ConsoleFile) Writable() bool  { return true }
func (c *ConsoleFile) Name() string    { return "/dev/console" }
func (c *ConsoleFile) Path() string    { return "/dev/console" }
func (c *ConsoleFile) FileSize() int64 { return 0 }
func (c *ConsoleFile) Offset() int64   { return 0 }
func (c *ConsoleFile) Flags() int      { return c.flags }
func (c *ConsoleFile) SetFlags(f int)  { c.flags = f }
func (c *ConsoleFile) Truncate(int64) defs.Err_t { return -defs.EINVAL }
func (c *ConsoleFile) Seek(int64, int) (int64, defs.Err_t) { return 0, -defs.ESPIPE }
func (c *ConsoleFile) Stat() (Stat, defs.Err_t) {
	return Stat{Dev: defs.Mkdev(defs.D_CONSOLE, 0), Mode: 0o020666}, 0
}
func (c *ConsoleFile) Dirent(*vm.MemorySet, uint64, int) (int, defs.Err_t) {
	return 0, -defs.ENOTDIR
}
func (c *ConsoleFile) Pread(*vm.MemorySet, uint64, int, int64) (int, defs.Err_t) {
	return 0, -defs.ESPIPE
}
func (c *ConsoleFile) Pwrite(*vm.MemorySet, uint64, int, int64) (int, defs.Err_t) {
	return 0, -defs.ESPIPE
}

func (c *ConsoleFile) ReadKernel(buf []byte) (int, defs.Err_t) {
	return c.c.Read(buf), 0
}

func (c *ConsoleFile) ReadToUser(ms *vm.MemorySet, va uint64, n int) (int, defs.Err_t) {
	tmp := make([]byte, n)
	got := c.c.Read(tmp)
	if got == 0 {
		return 0, 0
	}
	if err := ms.CopyOut(va, tmp[:got]); err != 0 {
		return 0, err
	}
	return got, 0
}

func (c *ConsoleFile) WriteKernel(buf []byte) (int, defs.Err_t) {
	return c.c.Write(buf), 0
}

func (c *ConsoleFile) WriteFromUser(ms *vm.MemorySet, va uint64, n int) (int, defs.Err_t) {
	tmp := make([]byte, n)
	if err := ms.CopyIn(va, tmp); err != 0 {
		return 0, err
	}
	return c.c.Write(tmp), 0
}

func (c *ConsoleFile) RReady() bool { return c.c.ReadReady() }
func (c *ConsoleFile) WReady() bool { return true }

func (c *ConsoleFile) Close() defs.Err_t { return 0 }
func (c *ConsoleFile) Reopen() (File, defs.Err_t) {
	return &ConsoleFile{c: c.c, flags: c.flags}, 0
}
