// Package signal implements the signal-delivery state spec §4.x
// describes: per-thread-group actions, per-task pending/mask bitmaps,
// and the user-stack context push/pop a handler invocation and its
// sigreturn perform. Grounded on original_source's task/signals module
// for the pending/mask/action split and default-disposition table, with
// the SignalContext wire layout following the trap.Context register
// set it must save/restore around a handler call.
package signal

import (
	"sync"
	"unsafe"

	"rvkernel/internal/trap"
)

// Signal numbers this kernel recognizes, matching Linux numbering so
// signal(7)-literate userland code works unmodified.
const (
	SIGHUP    = 1
	SIGINT    = 2
	SIGQUIT   = 3
	SIGILL    = 4
	SIGTRAP   = 5
	SIGABRT   = 6
	SIGBUS    = 7
	SIGFPE    = 8
	SIGKILL   = 9
	SIGUSR1   = 10
	SIGSEGV   = 11
	SIGUSR2   = 12
	SIGPIPE   = 13
	SIGALRM   = 14
	SIGTERM   = 15
	SIGCHLD   = 17
	SIGCONT   = 18
	SIGSTOP   = 19
	SIGTSTP   = 20
	SIGTTIN   = 21
	SIGTTOU   = 22
	SIGURG    = 23
	SIGXCPU   = 24
	SIGXFSZ   = 25
	SIGVTALRM = 26
	SIGPROF   = 27
	SIGWINCH  = 28
	SIGIO     = 29
	SIGSYS    = 31
	NSIG      = 64
)

// Disposition-special handler values for sigaction(2)'s sa_handler.
const (
	SIG_DFL uint64 = 0
	SIG_IGN uint64 = 1
)

// sa_flags bits this kernel interprets.
const (
	SA_RESTART  = 0x10000000
	SA_SIGINFO  = 0x00000004
	SA_NODEFER  = 0x40000000
	SA_RESTORER = 0x04000000
)

/// Disposition classifies what happens when a signal with no
/// user-installed handler (or SIG_DFL) is delivered.
type Disposition int

const (
	DispTerm Disposition = iota
	DispIgn
	DispCore
	DispStop
	DispCont
)

// defaultDisposition mirrors the POSIX default-action table (signal(7)):
// most signals terminate, a handful are ignored by default, a few dump
// core, and the job-control signals stop or continue the process.
var defaultDisposition = map[int]Disposition{
	SIGCHLD: DispIgn,
	SIGURG:  DispIgn,
	SIGWINCH: DispIgn,
	SIGCONT: DispCont,
	SIGSTOP: DispStop,
	SIGTSTP: DispStop,
	SIGTTIN: DispStop,
	SIGTTOU: DispStop,
	SIGQUIT: DispCore,
	SIGILL:  DispCore,
	SIGABRT: DispCore,
	SIGFPE:  DispCore,
	SIGSEGV: DispCore,
	SIGBUS:  DispCore,
	SIGTRAP: DispCore,
	SIGSYS:  DispCore,
}

/// DefaultDisposition reports what sig does absent a user handler.
func DefaultDisposition(sig int) Disposition {
	if d, ok := defaultDisposition[sig]; ok {
		return d
	}
	return DispTerm
}

/// Action is one sigaction(2) entry: the handler address (or
/// SIG_DFL/SIG_IGN), the mask to install while the handler runs, flags,
/// and the user-provided trampoline used to return from it.
type Action struct {
	Handler  uint64
	Mask     uint64
	Flags    uint64
	Restorer uint64
}

/// Table is the per-thread-group sigaction array, shared between
/// threads of a process (CLONE_SIGHAND, spec §4.6), indexed by signal
/// number 1..NSIG-1 (index 0 unused).
type Table struct {
	mu      sync.RWMutex
	actions [NSIG]Action
}

/// NewTable creates a table with every signal at its default
/// disposition (Handler == SIG_DFL).
func NewTable() *Table { return &Table{} }

/// Get returns sig's current action.
func (t *Table) Get(sig int) Action {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.actions[sig]
}

/// Set installs act for sig, returning the previous action (the
/// oldact sigaction(2) fills in).
func (t *Table) Set(sig int, act Action) Action {
	t.mu.Lock()
	defer t.mu.Unlock()
	old := t.actions[sig]
	t.actions[sig] = act
	return old
}

/// ResetOnExec clears every non-ignored handler back to SIG_DFL, the
/// execve(2) rule that a process image change can't carry over
/// installed handler code addresses that no longer mean anything (SIG_IGN
/// dispositions survive execve, matching POSIX).
func (t *Table) ResetOnExec() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.actions {
		if t.actions[i].Handler != SIG_IGN {
			t.actions[i] = Action{}
		}
	}
}

/// Clone deep-copies the table, used when CLONE_SIGHAND is not set on
/// clone/fork.
func (t *Table) Clone() *Table {
	t.mu.RLock()
	defer t.mu.RUnlock()
	nt := &Table{}
	nt.actions = t.actions
	return nt
}

/// Bit returns the pending/mask bitmask bit for sig.
func Bit(sig int) uint64 { return 1 << uint(sig-1) }

/// NextDeliverable picks the lowest-numbered signal present in pending
/// but not blocked by mask, matching the usual kernel convention of
/// delivering pending signals in numeric order. SIGKILL and SIGSTOP
/// cannot be blocked; callers should never have set their bits in mask
/// in the first place (rt_sigprocmask strips them), so no special-casing
/// is needed here.
func NextDeliverable(pending, mask uint64) (sig int, ok bool) {
	deliverable := pending &^ mask
	if deliverable == 0 {
		return 0, false
	}
	for s := 1; s < NSIG; s++ {
		if deliverable&Bit(s) != 0 {
			return s, true
		}
	}
	return 0, false
}

/// SignalContext is pushed onto the user stack before a handler runs and
/// popped by sigreturn: the interrupted trap.Context plus the mask to
/// restore, matching original_source's SignalContext/ucontext shape
/// closely enough for sigreturn to reverse the push exactly.
type SignalContext struct {
	Saved   trap.Context
	SavedMask uint64
}

// SignalContextSize is how many bytes SignalContext occupies on the
// user stack, used to reserve space below the stack pointer and as the
// number of bytes sigreturn reads back (sp itself comes from the saved
// context).
var SignalContextSize = int(unsafe.Sizeof(SignalContext{}))

// marshalSignalContext/unmarshalSignalContext reinterpret a
// SignalContext as raw bytes: every field is a plain integer (no
// pointers, no padding-sensitive layout across the kernel/user
// boundary this kernel needs to worry about), so a direct memory view
// is exact, the same trick internal/pagetable's tableView uses over
// raw page bytes.
func marshalSignalContext(c *SignalContext) []byte {
	return (*[1 << 20]byte)(unsafe.Pointer(c))[:SignalContextSize:SignalContextSize]
}

func unmarshalSignalContext(buf []byte) *SignalContext {
	return (*SignalContext)(unsafe.Pointer(&buf[0]))
}
