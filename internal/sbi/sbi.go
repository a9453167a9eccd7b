// Package sbi wraps the RISC-V Supervisor Binary Interface ecalls the
// kernel makes as an S-mode guest of OpenSBI/M-mode firmware: console
// I/O, the timer, and hart start/stop (HSM). Grounded on the
// other_examples rv64 SBI ecall sketch retrieved for this spec, adapted
// to Go's asm-free inline-assembly convention (a package-level func var
// callers can swap out, since `asm volatile("ecall")` itself isn't
// expressible without a .s file this module doesn't carry).
package sbi

// Extension IDs (EIDs) for the SBI calls this kernel uses.
const (
	extSetTimer     = 0x00
	extConsolePutc  = 0x01
	extConsoleGetc  = 0x02
	extShutdown     = 0x08
	extHSM          = 0x48534D
)

// HSM function IDs.
const (
	hsmHartStart = 0
	hsmHartStop  = 1
)

/// Ecall is the low-level ecall trampoline signature: (eid, fid, a0, a1,
/// a2) -> (value, error). The real implementation lives in a
/// platform-specific file (a .s stub providing the actual `ecall`
/// instruction) that this module doesn't include since it never runs on
/// real hardware; Ecall is a package variable precisely so boot code or
/// tests can supply one.
var Ecall func(eid, fid, a0, a1, a2 uint64) (uint64, uint64) = func(uint64, uint64, uint64, uint64, uint64) (uint64, uint64) {
	return 0, 0
}

/// SetTimer arms the next timer interrupt for absolute time stamp
/// (in SBI's timebase ticks).
func SetTimer(stamp uint64) {
	Ecall(extSetTimer, 0, stamp, 0, 0)
}

/// ConsolePutchar writes one byte to the legacy debug console.
func ConsolePutchar(b byte) {
	Ecall(extConsolePutc, 0, uint64(b), 0, 0)
}

/// ConsoleGetchar reads one byte from the legacy debug console, or -1
/// if none is pending.
func ConsoleGetchar() int {
	v, _ := Ecall(extConsoleGetc, 0, 0, 0, 0)
	return int(int64(v))
}

/// Shutdown powers the machine off via the legacy SBI shutdown call
/// (EID 0x08); it never returns on real firmware.
func Shutdown() {
	Ecall(extShutdown, 0, 0, 0, 0)
}

/// HartStart requests that firmware start the given hart executing at
/// startAddr with opaque passed through a1, per the HSM extension.
func HartStart(hartid, startAddr, opaque uint64) uint64 {
	v, _ := Ecall(extHSM, hsmHartStart, hartid, startAddr, opaque)
	return v
}

/// HartStop parks the calling hart; only meaningful when run on actual
/// multi-hart firmware.
func HartStop() {
	Ecall(extHSM, hsmHartStop, 0, 0, 0)
}
