package signal

import (
	"rvkernel/internal/defs"
	"rvkernel/internal/trap"
	"rvkernel/internal/vm"
)

// redZone is the x86-ish "don't touch below sp" gap this kernel also
// leaves below the signal frame it pushes, even though RV64 has no
// mandated red zone — cheap insurance against a handler whose own
// prologue briefly dips below sp before adjusting it.
const redZone = 128

/// PushFrame writes a SignalContext capturing cx and savedMask onto the
/// user stack below cx's current sp, then rewrites cx in place so
/// resuming the task enters the handler: sepc = handler, a0 = sig,
/// sp = the frame's address, and ra = restorer so a normal user return
/// from the handler re-enters the kernel via sigreturn. a1/a2 keep their
/// interrupted values, even under SA_SIGINFO: this kernel's ABI surface
/// doesn't implement siginfo_t, so no siginfo/ucontext pointers are
/// passed.
func PushFrame(ms *vm.MemorySet, cx *trap.Context, sig int, act Action, savedMask uint64) defs.Err_t {
	frameVA := (cx.X[trap.RegSP] - uint64(redZone) - uint64(SignalContextSize)) &^ 0xf

	var frame SignalContext
	frame.Saved = *cx
	frame.SavedMask = savedMask

	buf := marshalSignalContext(&frame)
	if err := ms.CopyOut(frameVA, buf); err != 0 {
		return err
	}

	cx.Sepc = act.Handler
	cx.X[trap.RegA0] = uint64(sig)
	cx.X[trap.RegSP] = frameVA
	if act.Restorer != 0 {
		cx.X[1] = act.Restorer // x1 is ra
	}
	return 0
}

/// PopFrame reads the SignalContext at frameVA back out, restoring cx
/// and returning the mask sigreturn should reinstate, implementing
/// sys_sigreturn.
func PopFrame(ms *vm.MemorySet, frameVA uint64, cx *trap.Context) (restoreMask uint64, err defs.Err_t) {
	buf := make([]byte, SignalContextSize)
	if cerr := ms.CopyIn(frameVA, buf); cerr != 0 {
		return 0, cerr
	}
	frame := unmarshalSignalContext(buf)
	*cx = frame.Saved
	return frame.SavedMask, 0
}
