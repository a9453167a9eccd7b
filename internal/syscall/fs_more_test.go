package syscall

import (
	"encoding/binary"
	"testing"

	"rvkernel/internal/blockdev"
	"rvkernel/internal/defs"
	"rvkernel/internal/fs/fscore"
	"rvkernel/internal/proc"
)

// userVA is the bottom of the test kernel's stack region [10,14) pages.
const userVA = 0x1000 * 10

// atFDCWDVar holds AtFDCWD in a typed variable so converting it to
// uint32 is a runtime truncation rather than a constant-overflow error.
var atFDCWDVar = int32(AtFDCWD)

func newFSKernel(t *testing.T) (*Kernel, *proc.TCB) {
	t.Helper()
	k, task := newTestKernel(t)
	fs, err := fscore.Format(blockdev.NewMem(4096), 2)
	if err != nil {
		t.Fatal(err)
	}
	k.Root = fs
	return k, task
}

// openPath is the openat boilerplate: copies path into user memory and
// returns the fd the handler installed.
func openPath(t *testing.T, k *Kernel, task *proc.TCB, path string, flags int) int64 {
	t.Helper()
	ms := task.MemorySet.MS
	pathVA := uint64(userVA + 0xE00)
	if err := ms.CopyOut(pathVA, append([]byte(path), 0)); err != 0 {
		t.Fatalf("copyout path: %d", err)
	}
	fdnum, err := k.sysOpenat(task, ms, Args{A0: uint64(uint32(atFDCWDVar)), A1: pathVA, A2: uint64(flags)})
	if err != 0 {
		t.Fatalf("openat %s failed: %d", path, err)
	}
	return fdnum
}

func TestSysWritevReadvOverPipe(t *testing.T) {
	k, task := newTestKernel(t)
	ms := task.MemorySet.MS

	if _, err := k.sysPipe2(task, ms, Args{A0: userVA}); err != 0 {
		t.Fatalf("pipe2 failed: %d", err)
	}
	var fds [8]byte
	ms.CopyIn(userVA, fds[:])
	rfd := uint64(binary.LittleEndian.Uint32(fds[0:4]))
	wfd := uint64(binary.LittleEndian.Uint32(fds[4:8]))

	// Two source buffers and the iovec array describing them.
	const bufA, bufB, iovVA = userVA + 0x100, userVA + 0x200, userVA + 0x300
	ms.CopyOut(bufA, []byte("abc"))
	ms.CopyOut(bufB, []byte("def"))
	var iov [32]byte
	binary.LittleEndian.PutUint64(iov[0:], bufA)
	binary.LittleEndian.PutUint64(iov[8:], 3)
	binary.LittleEndian.PutUint64(iov[16:], bufB)
	binary.LittleEndian.PutUint64(iov[24:], 3)
	ms.CopyOut(iovVA, iov[:])

	n, err := k.sysWritev(task, ms, Args{A0: wfd, A1: iovVA, A2: 2})
	if err != 0 || n != 6 {
		t.Fatalf("writev got (%d,%d), want (6,0)", n, err)
	}

	const dstA, dstB, riovVA = userVA + 0x400, userVA + 0x500, userVA + 0x600
	binary.LittleEndian.PutUint64(iov[0:], dstA)
	binary.LittleEndian.PutUint64(iov[8:], 4)
	binary.LittleEndian.PutUint64(iov[16:], dstB)
	binary.LittleEndian.PutUint64(iov[24:], 2)
	ms.CopyOut(riovVA, iov[:])

	n, err = k.sysReadv(task, ms, Args{A0: rfd, A1: riovVA, A2: 2})
	if err != 0 || n != 6 {
		t.Fatalf("readv got (%d,%d), want (6,0)", n, err)
	}
	var got [6]byte
	ms.CopyIn(dstA, got[:4])
	ms.CopyIn(dstB, got[4:])
	if string(got[:]) != "abcdef" {
		t.Fatalf("readv got %q, want abcdef", got)
	}
}

func TestSysSendfileRegularToRegular(t *testing.T) {
	k, task := newFSKernel(t)
	ms := task.MemorySet.MS

	src := openPath(t, k, task, "/src.txt", defs.O_RDWR|defs.O_CREAT)
	msg := []byte("sendfile payload")
	ms.CopyOut(userVA+0x100, msg)
	if n, err := k.sysWrite(task, ms, Args{A0: uint64(src), A1: userVA + 0x100, A2: uint64(len(msg))}); err != 0 || n != int64(len(msg)) {
		t.Fatalf("write got (%d,%d)", n, err)
	}

	dst := openPath(t, k, task, "/dst.txt", defs.O_RDWR|defs.O_CREAT)

	// Explicit zero offset pointer: src's own cursor (at EOF after the
	// write) must be preserved.
	var off [8]byte
	ms.CopyOut(userVA+0x200, off[:])
	n, err := k.sysSendfile(task, ms, Args{A0: uint64(dst), A1: uint64(src), A2: userVA + 0x200, A3: 4096})
	if err != 0 || n != int64(len(msg)) {
		t.Fatalf("sendfile got (%d,%d), want (%d,0)", n, err, len(msg))
	}
	ms.CopyIn(userVA+0x200, off[:])
	if got := binary.LittleEndian.Uint64(off[:]); got != uint64(len(msg)) {
		t.Fatalf("offset pointer advanced to %d, want %d", got, len(msg))
	}

	if _, err := k.sysLseek(task, Args{A0: uint64(dst), A1: 0, A2: defs.SEEK_SET}); err != 0 {
		t.Fatalf("lseek failed: %d", err)
	}
	readVA := uint64(userVA + 0x300)
	n, err = k.sysRead(task, ms, Args{A0: uint64(dst), A1: readVA, A2: uint64(len(msg))})
	if err != 0 || n != int64(len(msg)) {
		t.Fatalf("read-back got (%d,%d)", n, err)
	}
	got := make([]byte, len(msg))
	ms.CopyIn(readVA, got)
	if string(got) != string(msg) {
		t.Fatalf("dst contents %q, want %q", got, msg)
	}
}

func TestSysRenameat2MovesFile(t *testing.T) {
	k, task := newFSKernel(t)
	ms := task.MemorySet.MS

	fdnum := openPath(t, k, task, "/a", defs.O_RDWR|defs.O_CREAT)
	ms.CopyOut(userVA+0x100, []byte("hi"))
	if _, err := k.sysWrite(task, ms, Args{A0: uint64(fdnum), A1: userVA + 0x100, A2: 2}); err != 0 {
		t.Fatalf("write failed: %d", err)
	}
	k.sysClose(task, Args{A0: uint64(fdnum)})

	oldVA, newVA := uint64(userVA+0x200), uint64(userVA+0x280)
	ms.CopyOut(oldVA, append([]byte("/a"), 0))
	ms.CopyOut(newVA, append([]byte("/b"), 0))
	fdcwd := uint64(uint32(atFDCWDVar))
	if _, err := k.sysRenameat2(task, ms, Args{A0: fdcwd, A1: oldVA, A2: fdcwd, A3: newVA}); err != 0 {
		t.Fatalf("renameat2 failed: %d", err)
	}

	if _, err := k.sysOpenat(task, ms, Args{A0: fdcwd, A1: oldVA}); err != -defs.ENOENT {
		t.Fatalf("old path should be gone, got %d", err)
	}
	nfd := openPath(t, k, task, "/b", defs.O_RDONLY)
	var got [2]byte
	if n, err := k.sysRead(task, ms, Args{A0: uint64(nfd), A1: userVA + 0x300, A2: 2}); err != 0 || n != 2 {
		t.Fatalf("read of renamed file got (%d,%d)", n, err)
	}
	ms.CopyIn(userVA+0x300, got[:])
	if string(got[:]) != "hi" {
		t.Fatalf("renamed contents %q, want hi", got)
	}
}

func TestSysStatfsAndSync(t *testing.T) {
	k, task := newFSKernel(t)
	ms := task.MemorySet.MS

	if _, err := k.sysStatfs(task, ms, Args{A1: userVA}); err != 0 {
		t.Fatalf("statfs failed: %d", err)
	}
	var buf [120]byte
	ms.CopyIn(userVA, buf[:])
	if magic := binary.LittleEndian.Uint64(buf[0:]); magic != msdosSuperMagic {
		t.Fatalf("f_type %#x, want %#x", magic, msdosSuperMagic)
	}
	blocks := binary.LittleEndian.Uint64(buf[16:])
	bfree := binary.LittleEndian.Uint64(buf[24:])
	if blocks == 0 || bfree == 0 || bfree > blocks {
		t.Fatalf("implausible statfs: blocks=%d bfree=%d", blocks, bfree)
	}

	if _, err := k.sysSync(task); err != 0 {
		t.Fatalf("sync failed: %d", err)
	}
}

func TestSysMountUmount(t *testing.T) {
	k, task := newFSKernel(t)
	ms := task.MemorySet.MS

	specVA, dirVA, typeVA := uint64(userVA), uint64(userVA+0x40), uint64(userVA+0x80)
	ms.CopyOut(specVA, append([]byte("/dev/vda2"), 0))
	ms.CopyOut(dirVA, append([]byte("/mnt"), 0))
	ms.CopyOut(typeVA, append([]byte("vfat"), 0))

	if _, err := k.sysMount(task, ms, Args{A0: specVA, A1: dirVA, A2: typeVA}); err != 0 {
		t.Fatalf("mount failed: %d", err)
	}
	if _, err := k.sysUmount2(task, ms, Args{A0: specVA}); err != 0 {
		t.Fatalf("umount failed: %d", err)
	}
	if _, err := k.sysUmount2(task, ms, Args{A0: specVA}); err != -defs.EINVAL {
		t.Fatalf("double umount should be EINVAL, got %d", err)
	}
}

func TestSysLinkatAndReadlinkatOnFAT(t *testing.T) {
	k, task := newFSKernel(t)
	ms := task.MemorySet.MS

	fdnum := openPath(t, k, task, "/file", defs.O_RDWR|defs.O_CREAT)
	k.sysClose(task, Args{A0: uint64(fdnum)})

	pathVA := uint64(userVA)
	ms.CopyOut(pathVA, append([]byte("/file"), 0))
	fdcwd := uint64(uint32(atFDCWDVar))
	if _, err := k.sysLinkat(task, ms, Args{A0: fdcwd, A1: pathVA}); err != -defs.EPERM {
		t.Fatalf("linkat on FAT should be EPERM, got %d", err)
	}
	if _, err := k.sysReadlinkat(task, ms, Args{A0: fdcwd, A1: pathVA}); err != -defs.EINVAL {
		t.Fatalf("readlinkat of a non-symlink should be EINVAL, got %d", err)
	}
	ms.CopyOut(pathVA, append([]byte("/missing"), 0))
	if _, err := k.sysReadlinkat(task, ms, Args{A0: fdcwd, A1: pathVA}); err != -defs.ENOENT {
		t.Fatalf("readlinkat of a missing path should be ENOENT, got %d", err)
	}
}
