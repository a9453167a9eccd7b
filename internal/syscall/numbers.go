// Package syscall implements the user/kernel syscall boundary: the
// number-to-handler dispatch table, argument decoding out of the trap
// context, and the handlers themselves grouped by subsystem (fs, mm,
// process, signal, futex, time, misc). This is the one package allowed
// to import every other internal package — internal/trap classifies a
// trap but never calls back into internal/proc, and internal/proc
// builds/clones tasks but never runs a scheduler loop itself, so the
// orchestration that ties a syscall trap to "run the handler, then
// decide whether to keep running this task or switch away" has to live
// somewhere that can see all of them at once. Grounded on
// original_source's syscall/dispatcher.rs for the number table and
// call/return convention (a7 selects the syscall, a0..a5 are its
// arguments, the return value replaces a0), matching the riscv64 Linux
// ABI so unmodified userland syscall(2) stubs work.
package syscall

// Syscall numbers, matching the riscv64 Linux ABI exactly for every
// syscall this kernel implements (spec §6's operation list plus the
// handful original_source's dispatcher.rs additionally wires).
const (
	SysGetcwd           = 17
	SysDup              = 23
	SysDup3             = 24
	SysFcntl            = 25
	SysIoctl            = 29
	SysMkdirat          = 34
	SysUnlinkat         = 35
	SysLinkat           = 37
	SysUmount2          = 39
	SysMount            = 40
	SysStatfs           = 43
	SysFtruncate        = 46
	SysFaccessat        = 48
	SysChdir            = 49
	SysFchdir           = 50
	SysOpenat           = 56
	SysClose            = 57
	SysPipe2            = 59
	SysGetdents64       = 61
	SysLseek            = 62
	SysRead             = 63
	SysWrite            = 64
	SysReadv            = 65
	SysWritev           = 66
	SysPread64          = 67
	SysPwrite64         = 68
	SysSendfile         = 71
	SysReadlinkat       = 78
	SysFstatat          = 79
	SysFstat            = 80
	SysSync             = 81
	SysUtimensat        = 88
	SysExit             = 93
	SysExitGroup        = 94
	SysSetTidAddress    = 96
	SysFutex            = 98
	SysSetRobustList    = 99
	SysNanosleep        = 101
	SysGetitimer        = 102
	SysSetitimer        = 103
	SysClockGettime     = 113
	SysClockGetres      = 114
	SysClockNanosleep   = 115
	SysSyslog           = 116
	SysSchedGetaffinity = 123
	SysSchedYield       = 124
	SysKill             = 129
	SysTkill            = 130
	SysTgkill           = 131
	SysRtSigaction      = 134
	SysRtSigprocmask    = 135
	SysRtSigtimedwait   = 137
	SysRtSigreturn      = 139
	SysSetpriority      = 140
	SysSetregid         = 143
	SysSetreuid         = 145
	SysTimes            = 153
	SysSetpgid          = 154
	SysGetpgid          = 155
	SysSetsid           = 157
	SysUname            = 160
	SysGetrusage        = 165
	SysUmask            = 166
	SysGettimeofday     = 169
	SysGetpid           = 172
	SysGetppid          = 173
	SysGetuid           = 174
	SysGeteuid          = 175
	SysGetgid           = 176
	SysGetegid          = 177
	SysGettid           = 178
	SysBrk              = 214
	SysMunmap           = 215
	SysClone            = 220
	SysExecve           = 221
	SysMmap             = 222
	SysMprotect         = 226
	SysMsync            = 227
	SysMadvise          = 233
	SysWait4            = 260
	SysPrlimit64        = 261
	SysRenameat2        = 276
	SysGetrandom        = 278
)
