// Package trap implements the user/kernel boundary spec §3's trap
// context and §4.8's trampoline describe: the saved register frame
// every entry into the kernel populates and every return to user mode
// restores, and the scause-based classification that decides whether a
// trap is a syscall, a page fault, a timer interrupt, or something
// fatal. Deliberately kept free of any dependency on internal/proc or
// internal/syscall — the actual dispatch orchestration (look up the
// current task, run the syscall, deliver a signal, switch away) lives
// in internal/syscall, the one package allowed to import everything
// else, avoiding the import cycle a trap-drives-proc-drives-trap
// arrangement would create. Grounded on original_source's
// trap/context.rs and trap/handler.rs for field layout and cause
// classification, since biscuit's x86-64 trapframe.go has a different
// register set but the same "raw struct laid out exactly as the
// assembly stub expects" idiom this package follows.
package trap

import "unsafe"

// NumGPR is the count of general-purpose registers RV64 defines (x0 is
// never saved/restored since it's hardwired to zero).
const NumGPR = 32

/// Context is the trap frame saved at TrapContextVA: every general
/// register, the floating-point "argument" register area is omitted
/// (this kernel targets the soft-float / no-F-extension ABI the distilled
/// spec scopes to), plus the handful of supervisor CSRs and kernel
/// bookkeeping fields the trampoline's assembly needs to find at fixed
/// offsets to restore the kernel's own context on the next trap.
type Context struct {
	X            [NumGPR]uint64 // x[0] unused (hardwired zero), x[2] is sp
	Sstatus      uint64
	Sepc         uint64
	KernelSatp   uint64
	KernelSp     uint64
	TrapHandler  uint64
}

// Register index constants for the GPRs most often accessed by name.
const (
	RegSP = 2
	RegTP = 4
	RegA0 = 10
	RegA1 = 11
	RegA2 = 12
	RegA3 = 13
	RegA4 = 14
	RegA5 = 15
	RegA7 = 17
)

// Byte offsets of each field within Context, for callers (internal/proc's
// clone path) that patch a child's trap context through
// vm.MemorySet.CopyOut instead of a direct in-process struct pointer,
// since the child's trap-context page may live behind a different
// address space than the one patching it.
const (
	OffSstatus     = NumGPR * 8
	OffSepc        = OffSstatus + 8
	OffKernelSatp  = OffSepc + 8
	OffKernelSp    = OffKernelSatp + 8
	OffTrapHandler = OffKernelSp + 8
)

// OffReg returns the byte offset of GPR index i within Context.
func OffReg(i int) uint64 { return uint64(i * 8) }

/// NewAppInitContext builds the trap context a freshly loaded user
/// image resumes into: sepc at the entry point, sp at the top of its
/// user stack, everything else zeroed. kernelSatp/kernelSp/trapHandler
/// are filled in by the caller once the owning task's kernel resources
/// exist.
func NewAppInitContext(entry, userSP uint64) Context {
	var cx Context
	cx.Sepc = entry
	cx.X[RegSP] = userSP
	return cx
}

/// View reinterprets a raw page's bytes as a *Context without copying,
/// the same raw-reinterpretation idiom internal/pagetable's tableView
/// uses for PTE arrays: the trap-context page's layout IS this struct's
/// layout, by construction of how the trampoline's assembly addresses
/// it, so there is nothing to marshal.
func View(page *[4096]byte) *Context {
	return (*Context)(unsafe.Pointer(&page[0]))
}
