// Package boot assembles every subsystem package into a running system:
// the frame allocator, the kernel's own address space, the mounted root
// filesystem, the init task, and the populated syscall dispatcher, then
// drives the scheduler loop that polls sleepers/blocked tasks and steps
// whichever task is current through a trap. Grounded on the original's
// kernel/src/main.rs (rust_main's allocator/heap/address-space/fs/task
// sequence) and on biscuit's own minimal main.go, which does nothing but
// call into packages the same way this one does. Like the rest of this
// module, the actual register-level context switch implied by
// trampoline.S has no assembly backing here — Boot constructs every piece
// of kernel state a real trampoline would need (kernel_satp, kernel_sp,
// trap_handler) and Step/Schedule model the trap-classify-dispatch loop
// precisely, but a host process never truly enters S-mode.
package boot

import (
	"fmt"

	"rvkernel/internal/blockdev"
	"rvkernel/internal/console"
	"rvkernel/internal/defs"
	"rvkernel/internal/fs/fscore"
	"rvkernel/internal/futex"
	"rvkernel/internal/klog"
	"rvkernel/internal/mem"
	"rvkernel/internal/pagetable"
	"rvkernel/internal/proc"
	"rvkernel/internal/sbi"
	"rvkernel/internal/sched"
	"rvkernel/internal/signal"
	"rvkernel/internal/syscall"
	"rvkernel/internal/trap"
	"rvkernel/internal/vm"
	"rvkernel/internal/fd"
)

// satpMode is SV39's value in satp's 4-bit MODE field.
const satpMode = 8

// Satp packs an SV39 root page table's physical page number into the
// satp CSR format an address-space switch would write (spec §4.2/§4.8).
func Satp(rootPPN mem.PPN) uint64 {
	return uint64(satpMode)<<60 | uint64(rootPPN)
}

// Config is everything Boot needs from whatever embeds this kernel
// (cmd/kernel, or a test harness): the physical frame range this image
// doesn't itself occupy, the already-formatted root disk, and the path
// of the init binary within it.
type Config struct {
	MemBase, MemEnd mem.PPN
	Disk            blockdev.Device
	InitPath        string // defaults to "/init"
}

// System is everything Boot hands back: the populated dispatcher and
// the init task, ready to be driven by Schedule/Step in a loop.
type System struct {
	Kernel *syscall.Kernel
	Init   *proc.TCB
}

// Boot performs the sequence the original's rust_main runs at startup:
// build the frame allocator, construct the kernel's own address space
// and compute its satp, mount the root filesystem, load the init binary
// into a fresh user address space, and wire up a syscall.Kernel spanning
// all of it. Allocator exhaustion while building kernel-owned,
// never-freed state (the trampoline frame, init's kernel stack) panics
// rather than returning an error, matching this kernel's boot-time
// panic discipline (spec §7);
// anything caller-supplied (a bad disk image, a missing init binary) is
// reported as an error instead.
func Boot(cfg Config) (*System, error) {
	if cfg.InitPath == "" {
		cfg.InitPath = "/init"
	}

	console.PutcharFunc = sbi.ConsolePutchar
	klog.SetSink(func(s string) { console.Global().Write([]byte(s + "\n")) })
	klog.Infof("boot: frame pool [%d, %d)", cfg.MemBase, cfg.MemEnd)

	alloc := mem.NewAllocator(cfg.MemBase, cfg.MemEnd)

	trampolineFrame := alloc.AllocMust()
	kernelMS := vm.New(alloc)
	kernelMS.MapTrampoline(trampolineFrame.PPN())
	kernelSatp := Satp(kernelMS.Table.RootPPN())
	klog.Infof("boot: kernel address space built, satp=%#x", kernelSatp)

	root, err := fscore.Mount(cfg.Disk)
	if err != nil {
		return nil, fmt.Errorf("boot: mount root: %w", err)
	}
	klog.Infof("boot: root filesystem mounted")

	initData, err := readWholeFile(root, cfg.InitPath)
	if err != nil {
		return nil, fmt.Errorf("boot: load %s: %w", cfg.InitPath, err)
	}

	userMS := vm.New(alloc)
	loaded, err := vm.LoadELFInto(userMS, initData, trampolineFrame.PPN(), nil)
	if err != nil {
		return nil, fmt.Errorf("boot: parse init ELF: %w", err)
	}

	trapCxPTE, ok := userMS.Table.Lookup(pagetable.VPN(vm.TrapContextVA / vm.PGSIZE))
	if !ok {
		panic("boot: init address space has no trap context mapping")
	}

	k := &syscall.Kernel{
		Sched:      sched.New(),
		Futex:      futex.New(),
		Pids:       proc.NewPidAllocator(2),
		Root:       root,
		Alloc:      alloc,
		KernelMS:      kernelMS,
		KernelSatp:    kernelSatp,
		TrampolinePPN: trampolineFrame.PPN(),
		// The trampoline page is the resume entry itself; there is no
		// separately assembled trap_return label to point at here.
		TrapReturnEntry: vm.TrampolineVA,
	}

	kernelStackTop := proc.AllocKernelStack(kernelMS, 0)
	taskCx := proc.NewTaskContext(k.TrapReturnEntry, kernelStackTop)

	initArgv := []string{cfg.InitPath}
	initSP, spErr := vm.InitUserStack(userMS, loaded.UserStackTop, initArgv, nil, loaded.Aux)
	if spErr != 0 {
		return nil, fmt.Errorf("boot: lay out init's stack: errno %d", -spErr)
	}

	initCx := trap.NewAppInitContext(loaded.Entry, initSP)
	initCx.X[trap.RegA0] = uint64(len(initArgv)) // argc, matching the SysV ABI a0/a1 = argc/argv init expects
	initCx.KernelSatp = kernelSatp
	initCx.KernelSp = kernelStackTop
	initCx.TrapHandler = k.TrapReturnEntry
	if werr := writeInitContext(userMS, &initCx); werr != 0 {
		return nil, fmt.Errorf("boot: write init trap context: errno %d", -werr)
	}

	init := proc.NewInit(1, 1, userMS, fd.New(), signal.NewTable(), trapCxPTE.PPN(), vm.TrapContextVA, taskCx)
	installStdio(init)

	k.RegisterTask(init)
	k.Sched.AddTask(init)
	klog.Infof("boot: init task (tid=%d) runnable at entry %#x", init.Tid, loaded.Entry)

	return &System{Kernel: k, Init: init}, nil
}

// writeInitContext marshals cx through the trap package's raw-page view
// (the same layout the trampoline's assembly would address directly)
// and copies it into userMS at the trap-context VA.
func writeInitContext(ms *vm.MemorySet, cx *trap.Context) defs.Err_t {
	var page [vm.PGSIZE]byte
	*trap.View(&page) = *cx
	return ms.CopyOut(vm.TrapContextVA, page[:])
}

// installStdio wires fds 0/1/2 of a freshly built task to the system
// console, matching how the original's first user process inherits
// usable stdio without itself having called open(2) yet.
func installStdio(t *proc.TCB) {
	for i := 0; i < 3; i++ {
		t.FdTable.Table.Install(fd.NewConsoleFile(), false)
	}
}

// readWholeFile resolves an absolute, single-component-at-a-time path
// from root's root directory and reads the resolved regular file fully
// into memory — Boot needs init's whole image up front since the ELF
// parser reads the header directly out of a byte slice rather than
// streaming from the block cache.
func readWholeFile(root *fscore.FS, path string) ([]byte, error) {
	dir := root.RootDir()
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty path")
	}
	var entry *fscore.Entry
	for i, name := range parts {
		e, eerr := dir.Lookup(name)
		if eerr != 0 {
			return nil, fmt.Errorf("lookup %q: errno %d", name, -eerr)
		}
		entry = e
		if i != len(parts)-1 {
			if !e.IsDir {
				return nil, fmt.Errorf("%q is not a directory", name)
			}
			dir = e.Dir
		}
	}
	if entry == nil || entry.IsDir {
		return nil, fmt.Errorf("%q is not a regular file", path)
	}
	buf := make([]byte, entry.Size)
	off := int64(0)
	for off < int64(len(buf)) {
		n, rerr := entry.File.ReadAt(off, buf[off:])
		if n == 0 || rerr != nil {
			break
		}
		off += int64(n)
	}
	return buf, nil
}

func splitPath(p string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				out = append(out, p[start:i])
			}
			start = i + 1
		}
	}
	return out
}
