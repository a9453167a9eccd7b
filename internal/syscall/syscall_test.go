package syscall

import (
	"encoding/binary"
	"testing"

	"rvkernel/internal/defs"
	"rvkernel/internal/fd"
	"rvkernel/internal/futex"
	"rvkernel/internal/mem"
	"rvkernel/internal/proc"
	"rvkernel/internal/sched"
	"rvkernel/internal/signal"
	"rvkernel/internal/vm"
)

func newTestKernel(t *testing.T) (*Kernel, *proc.TCB) {
	t.Helper()
	alloc := mem.NewAllocator(0, 512)
	ms := vm.New(alloc)
	ms.PushAnon(vm.KindStack, 10, 14, 0)
	trapFrame := ms.MapTrapContext()

	task := proc.NewInit(1, 1, ms, fd.New(), signal.NewTable(), trapFrame.PPN(), vm.TrapContextVA, proc.TaskContext{})

	k := &Kernel{
		Sched: sched.New(),
		Futex: futex.New(),
		Pids:  proc.NewPidAllocator(2),
		Alloc: alloc,
	}
	k.RegisterTask(task)
	return k, task
}

func TestSysPipeReadWriteRoundTrip(t *testing.T) {
	k, task := newTestKernel(t)
	ms := task.MemorySet.MS

	const pipefdVA = 0x1000 * 10 // inside the stack region [10,14)
	if _, err := k.sysPipe2(task, ms, Args{A0: pipefdVA, A1: 0}); err != 0 {
		t.Fatalf("pipe2 failed: %d", err)
	}
	var fds [8]byte
	if err := ms.CopyIn(pipefdVA, fds[:]); err != 0 {
		t.Fatalf("copyin failed: %d", err)
	}
	rfd := int64(binary.LittleEndian.Uint32(fds[0:4]))
	wfd := int64(binary.LittleEndian.Uint32(fds[4:8]))

	const dataVA = 0x1000*10 + 64
	msg := []byte("hello")
	if err := ms.CopyOut(dataVA, msg); err != 0 {
		t.Fatalf("copyout failed: %d", err)
	}
	n, err := k.sysWrite(task, ms, Args{A0: uint64(wfd), A1: dataVA, A2: uint64(len(msg))})
	if err != 0 || n != int64(len(msg)) {
		t.Fatalf("write got (%d,%d), want (%d,0)", n, err, len(msg))
	}

	const readVA = dataVA + 64
	n, err = k.sysRead(task, ms, Args{A0: uint64(rfd), A1: readVA, A2: uint64(len(msg))})
	if err != 0 || n != int64(len(msg)) {
		t.Fatalf("read got (%d,%d), want (%d,0)", n, err, len(msg))
	}
	var got [5]byte
	if err := ms.CopyIn(readVA, got[:]); err != 0 {
		t.Fatalf("copyin failed: %d", err)
	}
	if string(got[:]) != "hello" {
		t.Fatalf("got %q, want hello", got)
	}
}

func TestSysBrkGrowsHeap(t *testing.T) {
	k, task := newTestKernel(t)
	_ = k
	ms := task.MemorySet.MS
	heap := ms.PushAnon(vm.KindHeap, 100, 101, 0)
	ms.SetHeap(heap, 100*vm.PGSIZE)

	ret, err := k.sysBrk(task, Args{A0: 0})
	if err != 0 || uint64(ret) != 100*vm.PGSIZE {
		t.Fatalf("brk query got (%d,%d)", ret, err)
	}
	newBrk := uint64(100*vm.PGSIZE + 4096)
	ret, err = k.sysBrk(task, Args{A0: newBrk})
	if err != 0 || uint64(ret) != newBrk {
		t.Fatalf("brk grow got (%d,%d), want %d", ret, err, newBrk)
	}
}

func TestSysGetpidGetppid(t *testing.T) {
	k, parent := newTestKernel(t)
	if got := int64(parent.Tgid); got != 1 {
		t.Fatalf("got tgid %d, want 1", got)
	}
	if got := k.sysGetppid(parent); got != 1 {
		t.Fatalf("init's getppid should return 1, got %d", got)
	}
}

func TestSysCloneRegistersChildAndSharesNothingByDefault(t *testing.T) {
	k, parent := newTestKernel(t)
	kernelMS := vm.New(k.Alloc)
	k.KernelMS = kernelMS
	k.TrapReturnEntry = 0xbeef0000
	k.KernelSatp = 0xabc

	ret, err := k.sysClone(parent, nil, Args{})
	if err != 0 {
		t.Fatalf("clone failed: %d", err)
	}
	child, ok := k.findByTid(int(ret))
	if !ok {
		t.Fatal("cloned child should be registered")
	}
	if child.MemorySet.MS == parent.MemorySet.MS {
		t.Fatal("plain clone should not share the address space")
	}
}

func TestSysWait4NoChildrenReturnsECHILD(t *testing.T) {
	k, task := newTestKernel(t)
	ms := task.MemorySet.MS
	_, err, outcome := k.sysWait4(task, ms, Args{A0: 0})
	if err != -defs.ECHILD || outcome != OutcomeContinue {
		t.Fatalf("got (%d,%v), want (ECHILD,Continue)", err, outcome)
	}
}

func TestSysWait4ReapsZombieChild(t *testing.T) {
	k, parent := newTestKernel(t)
	kernelMS := vm.New(k.Alloc)
	k.KernelMS = kernelMS
	k.TrapReturnEntry = 0xbeef0000
	k.KernelSatp = 0xabc

	ret, err := k.sysClone(parent, nil, Args{})
	if err != 0 {
		t.Fatalf("clone failed: %d", err)
	}
	child, _ := k.findByTid(int(ret))
	k.sysExit(child, 7)

	ms := parent.MemorySet.MS
	wret, werr, outcome := k.sysWait4(parent, ms, Args{A0: 0})
	if werr != 0 || outcome != OutcomeContinue {
		t.Fatalf("wait4 failed: err=%d outcome=%v", werr, outcome)
	}
	if wret != int64(child.Tgid) {
		t.Fatalf("got reaped pid %d, want %d", wret, child.Tgid)
	}
	if _, ok := k.findByTid(int(child.Tid)); ok {
		t.Fatal("reaped child should be unregistered")
	}
}

func TestSysFutexWaitThenWake(t *testing.T) {
	k, task := newTestKernel(t)
	ms := task.MemorySet.MS
	const addr = 0x1000 * 11
	var word [4]byte
	binary.LittleEndian.PutUint32(word[:], 42)
	if err := ms.CopyOut(addr, word[:]); err != 0 {
		t.Fatalf("copyout failed: %d", err)
	}

	_, err, outcome := k.sysFutex(task, ms, Args{A0: addr, A1: futexWait, A2: 42})
	if err != 0 || outcome != OutcomeBlocked {
		t.Fatalf("futex wait got (err=%d,outcome=%v), want blocked", err, outcome)
	}
	if k.Futex.QueueLen(addr) != 1 {
		t.Fatal("expected one waiter queued")
	}

	n, err, _ := k.sysFutex(task, ms, Args{A0: addr, A1: futexWake, A2: 1})
	if err != 0 || n != 1 {
		t.Fatalf("wake got (%d,%d), want (1,0)", n, err)
	}
}

func TestSysClockGettimeAndUname(t *testing.T) {
	k, task := newTestKernel(t)
	ms := task.MemorySet.MS
	const tsVA = 0x1000 * 12
	if _, err := k.sysClockGettime(ms, Args{A0: clockMonotonic, A1: tsVA}); err != 0 {
		t.Fatalf("clock_gettime failed: %d", err)
	}
	var buf [8]byte
	if err := ms.CopyIn(tsVA, buf[:]); err != 0 {
		t.Fatalf("copyin failed: %d", err)
	}
	if binary.LittleEndian.Uint64(buf[:]) == 0 {
		t.Fatal("expected a nonzero seconds field")
	}

	const utsVA = 0x1000 * 13
	if _, err := k.sysUname(ms, Args{A0: utsVA}); err != 0 {
		t.Fatalf("uname failed: %d", err)
	}
	name, err := ms.CopyInString(utsVA, utsField)
	if err != 0 {
		t.Fatalf("copyinstring failed: %d", err)
	}
	if name != "Linux" {
		t.Fatalf("got sysname %q, want Linux", name)
	}
}
