package proc

// TaskContext is the callee-saved register set a context switch saves
// and restores: the return address, stack pointer, and s0-s11, matching
// the original's TaskContext and biscuit's analogous (x86-64) saved
// register block. General-purpose argument/caller-saved registers live
// in the trap context instead — a task switch only ever happens from
// inside the scheduler's own switch routine, which the calling
// convention already lets clobber caller-saved registers.
type TaskContext struct {
	RA uint64
	SP uint64
	S  [12]uint64
}

// NewTaskContext builds the initial saved context for a task that has
// never run: RA points at the trap-return trampoline entry (so the
// first "switch into" this task resumes as if returning from a trap),
// SP is the task's kernel stack top.
func NewTaskContext(trapReturnEntry, kernelStackTop uint64) TaskContext {
	return TaskContext{RA: trapReturnEntry, SP: kernelStackTop}
}
