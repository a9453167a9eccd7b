package proc

import (
	"rvkernel/internal/pagetable"
	"rvkernel/internal/vm"
)

// KernelStackSize is the usable size, in bytes, of each task's kernel
// stack, matching the original's KERNEL_STACK_SIZE.
const KernelStackSize = 4096 * 2

// KernelStackGuardSize is the unmapped guard gap left below each kernel
// stack, catching a stack overflow as a page fault instead of silent
// corruption of the stack below it.
const KernelStackGuardSize = 4096

// KernelStackPosition returns the [bottom, top) byte range of the
// index'th kernel stack, counting down from just below the trampoline
// page (stack 0's top is TrampolineVA) the same way the original lays
// out KERNEL_STACK_SIZE-sized slots below TRAMPOLINE.
func KernelStackPosition(index int) (bottom, top uint64) {
	top = vm.TrampolineVA - uint64(index)*(KernelStackSize+KernelStackGuardSize)
	bottom = top - KernelStackSize
	return
}

// AllocKernelStack eagerly maps index's kernel stack into kernelMS and
// returns its top (the initial stack pointer). Kernel stacks are never
// lazily faulted — a trap handler that itself faults while its own
// stack is being demand-paged has nowhere left to run — so exhaustion
// here panics rather than returning an error, matching how the kernel
// address space's own setup is allowed to panic (spec §7).
func AllocKernelStack(kernelMS *vm.MemorySet, index int) uint64 {
	bottom, top := KernelStackPosition(index)
	startVPN := pagetable.VPN(bottom / vm.PGSIZE)
	endVPN := pagetable.VPN(top / vm.PGSIZE)
	_, err := kernelMS.PushEagerAnon(vm.KindKernelStack, startVPN, endVPN, pagetable.R|pagetable.W)
	if err != 0 {
		panic("proc: out of memory allocating kernel stack")
	}
	return top
}
