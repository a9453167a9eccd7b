package syscall

import (
	"encoding/binary"

	"rvkernel/internal/defs"
	"rvkernel/internal/fd"
	"rvkernel/internal/proc"
	"rvkernel/internal/vm"
)

func (k *Kernel) sysRead(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	entry, ok := task.FdTable.Table.Get(int(a.A0))
	if !ok {
		return 0, -defs.EBADF
	}
	n, err := entry.File.ReadToUser(ms, a.A1, int(a.A2))
	return int64(n), err
}

func (k *Kernel) sysWrite(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	entry, ok := task.FdTable.Table.Get(int(a.A0))
	if !ok {
		return 0, -defs.EBADF
	}
	n, err := entry.File.WriteFromUser(ms, a.A1, int(a.A2))
	return int64(n), err
}

func (k *Kernel) sysPread(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	entry, ok := task.FdTable.Table.Get(int(a.A0))
	if !ok {
		return 0, -defs.EBADF
	}
	n, err := entry.File.Pread(ms, a.A1, int(a.A2), int64(a.A3))
	return int64(n), err
}

func (k *Kernel) sysPwrite(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	entry, ok := task.FdTable.Table.Get(int(a.A0))
	if !ok {
		return 0, -defs.EBADF
	}
	n, err := entry.File.Pwrite(ms, a.A1, int(a.A2), int64(a.A3))
	return int64(n), err
}

func (k *Kernel) sysClose(task *proc.TCB, a Args) (int64, defs.Err_t) {
	err := task.FdTable.Table.Close(int(a.A0))
	return 0, err
}

func (k *Kernel) sysLseek(task *proc.TCB, a Args) (int64, defs.Err_t) {
	entry, ok := task.FdTable.Table.Get(int(a.A0))
	if !ok {
		return 0, -defs.EBADF
	}
	off, err := entry.File.Seek(int64(a.A1), int(a.A2))
	return off, err
}

func (k *Kernel) sysFtruncate(task *proc.TCB, a Args) (int64, defs.Err_t) {
	entry, ok := task.FdTable.Table.Get(int(a.A0))
	if !ok {
		return 0, -defs.EBADF
	}
	return 0, entry.File.Truncate(int64(a.A1))
}

func (k *Kernel) sysDup(task *proc.TCB, a Args) (int64, defs.Err_t) {
	nfd, err := task.FdTable.Table.Dup(int(a.A0))
	return int64(nfd), err
}

func (k *Kernel) sysDup3(task *proc.TCB, a Args) (int64, defs.Err_t) {
	err := task.FdTable.Table.Dup3(int(a.A0), int(a.A1), a.A2&uint64(defs.O_CLOEXEC) != 0)
	if err != 0 {
		return 0, err
	}
	return int64(a.A1), 0
}

func (k *Kernel) sysPipe2(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	r, w := fd.NewPipe()
	cloexec := int(a.A1)&defs.O_CLOEXEC != 0
	rfd, err := task.FdTable.Table.Install(r, cloexec)
	if err != 0 {
		return 0, err
	}
	wfd, err := task.FdTable.Table.Install(w, cloexec)
	if err != 0 {
		task.FdTable.Table.Close(rfd)
		return 0, err
	}
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(rfd))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(wfd))
	if cerr := ms.CopyOut(a.A0, buf[:]); cerr != 0 {
		return 0, cerr
	}
	return 0, 0
}

func (k *Kernel) sysOpenat(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	path, err := ms.CopyInString(a.A1, 4096)
	if err != 0 {
		return 0, err
	}
	flags := int(a.A2)
	dir, name, derr := k.walkParent(task, int(int32(a.A0)), path)
	if derr != 0 {
		return 0, derr
	}
	entry, lerr := dir.Lookup(name)
	if lerr != 0 {
		if lerr != -defs.ENOENT || flags&defs.O_CREAT == 0 {
			return 0, lerr
		}
		entry, lerr = dir.Create(name, false)
		if lerr != 0 {
			return 0, lerr
		}
	} else if flags&defs.O_CREAT != 0 && flags&defs.O_EXCL != 0 {
		return 0, -defs.EEXIST
	} else if flags&defs.O_TRUNC != 0 && !entry.IsDir {
		entry.File.Truncate(0)
	}

	f := fd.NewRegularFile(entry, fullPath(path), flags)
	fdnum, ierr := task.FdTable.Table.Install(f, flags&defs.O_CLOEXEC != 0)
	if ierr != 0 {
		return 0, ierr
	}
	return int64(fdnum), 0
}

func fullPath(p string) string {
	if len(p) > 0 && p[0] == '/' {
		return p
	}
	return "/" + p
}

func (k *Kernel) sysMkdirat(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	path, err := ms.CopyInString(a.A1, 4096)
	if err != 0 {
		return 0, err
	}
	dir, name, derr := k.walkParent(task, int(int32(a.A0)), path)
	if derr != 0 {
		return 0, derr
	}
	_, cerr := dir.Create(name, true)
	return 0, cerr
}

func (k *Kernel) sysUnlinkat(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	path, err := ms.CopyInString(a.A1, 4096)
	if err != 0 {
		return 0, err
	}
	dir, name, derr := k.walkParent(task, int(int32(a.A0)), path)
	if derr != 0 {
		return 0, derr
	}
	return 0, dir.Remove(name)
}

func (k *Kernel) sysChdir(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	path, err := ms.CopyInString(a.A0, 4096)
	if err != 0 {
		return 0, err
	}
	if _, derr := k.walkDir(resolveCwd(task.CwdPath(), path)); derr != 0 {
		return 0, derr
	}
	task.SetCwdPath(resolveCwd(task.CwdPath(), path))
	return 0, 0
}

func resolveCwd(cwd, path string) string {
	if len(path) > 0 && path[0] == '/' {
		return path
	}
	if cwd == "/" {
		return "/" + path
	}
	return cwd + "/" + path
}

func (k *Kernel) sysGetcwd(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	cwd := task.CwdPath()
	buf := append([]byte(cwd), 0)
	if len(buf) > int(a.A1) {
		return 0, -defs.ERANGE
	}
	if err := ms.CopyOut(a.A0, buf); err != 0 {
		return 0, err
	}
	return int64(a.A0), 0
}

func (k *Kernel) sysFstat(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	entry, ok := task.FdTable.Table.Get(int(a.A0))
	if !ok {
		return 0, -defs.EBADF
	}
	st, err := entry.File.Stat()
	if err != 0 {
		return 0, err
	}
	return 0, ms.CopyOut(a.A1, marshalStat(st))
}

func (k *Kernel) sysFstatat(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	path, err := ms.CopyInString(a.A1, 4096)
	if err != 0 {
		return 0, err
	}
	entry, werr := k.walkEntry(task, int(int32(a.A0)), path)
	if werr != 0 {
		return 0, werr
	}
	f := fd.NewRegularFile(entry, fullPath(path), defs.O_RDONLY)
	st, serr := f.Stat()
	if serr != 0 {
		return 0, serr
	}
	return 0, ms.CopyOut(a.A2, marshalStat(st))
}

func (k *Kernel) sysGetdents64(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	entry, ok := task.FdTable.Table.Get(int(a.A0))
	if !ok {
		return 0, -defs.EBADF
	}
	n, err := entry.File.Dirent(ms, a.A1, int(a.A2))
	return int64(n), err
}

func (k *Kernel) sysFcntl(task *proc.TCB, a Args) (int64, defs.Err_t) {
	const (
		fDupfd        = 0
		fGetfd        = 1
		fSetfd        = 2
		fGetfl        = 3
		fSetfl        = 4
		fDupfdCloexec = 1030
	)
	entry, ok := task.FdTable.Table.Get(int(a.A0))
	if !ok {
		return 0, -defs.EBADF
	}
	switch int(a.A1) {
	case fDupfd, fDupfdCloexec:
		nfd, err := task.FdTable.Table.Dup(int(a.A0))
		return int64(nfd), err
	case fGetfd:
		if entry.Cloexec {
			return defs.O_CLOEXEC, 0
		}
		return 0, 0
	case fSetfd:
		entry.Cloexec = a.A2&defs.O_CLOEXEC != 0
		return 0, 0
	case fGetfl:
		return int64(entry.File.Flags()), 0
	case fSetfl:
		entry.File.SetFlags(int(a.A2))
		return 0, 0
	default:
		return 0, -defs.EINVAL
	}
}

func marshalStat(st fd.Stat) []byte {
	buf := make([]byte, 128)
	binary.LittleEndian.PutUint64(buf[0:], st.Dev)
	binary.LittleEndian.PutUint64(buf[8:], st.Ino)
	binary.LittleEndian.PutUint32(buf[16:], st.Mode)
	binary.LittleEndian.PutUint32(buf[20:], st.Nlink)
	binary.LittleEndian.PutUint64(buf[48:], uint64(st.Size))
	binary.LittleEndian.PutUint32(buf[56:], st.Blksize)
	binary.LittleEndian.PutUint64(buf[64:], st.Blocks)
	return buf
}

// iovecSize is the byte size of one struct iovec (base, len).
const iovecSize = 16

func (k *Kernel) sysReadv(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	entry, ok := task.FdTable.Table.Get(int(a.A0))
	if !ok {
		return 0, -defs.EBADF
	}
	cnt := int(a.A2)
	var total int64
	for i := 0; i < cnt; i++ {
		var iov [iovecSize]byte
		if err := ms.CopyIn(a.A1+uint64(i*iovecSize), iov[:]); err != 0 {
			return 0, err
		}
		base := binary.LittleEndian.Uint64(iov[0:8])
		length := binary.LittleEndian.Uint64(iov[8:16])
		if length == 0 {
			continue
		}
		n, err := entry.File.ReadToUser(ms, base, int(length))
		if err != 0 {
			if total > 0 {
				break
			}
			return 0, err
		}
		total += int64(n)
		if n < int(length) {
			break
		}
	}
	return total, 0
}

func (k *Kernel) sysWritev(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	entry, ok := task.FdTable.Table.Get(int(a.A0))
	if !ok {
		return 0, -defs.EBADF
	}
	cnt := int(a.A2)
	var total int64
	for i := 0; i < cnt; i++ {
		var iov [iovecSize]byte
		if err := ms.CopyIn(a.A1+uint64(i*iovecSize), iov[:]); err != 0 {
			return 0, err
		}
		base := binary.LittleEndian.Uint64(iov[0:8])
		length := binary.LittleEndian.Uint64(iov[8:16])
		if length == 0 {
			continue
		}
		n, err := entry.File.WriteFromUser(ms, base, int(length))
		if err != 0 {
			if total > 0 {
				break
			}
			return 0, err
		}
		total += int64(n)
		if n < int(length) {
			break
		}
	}
	return total, 0
}

// sysSendfile pumps bytes from in_fd to out_fd through a kernel buffer,
// the same read_kernel_space/write_kernel_space loop the userland cp and
// shell pipelines lean on. With a non-null offset pointer the in-file's
// own cursor is left where it was, per sendfile(2).
func (k *Kernel) sysSendfile(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	out, ok := task.FdTable.Table.Get(int(a.A0))
	if !ok {
		return 0, -defs.EBADF
	}
	in, ok := task.FdTable.Table.Get(int(a.A1))
	if !ok {
		return 0, -defs.EBADF
	}
	if !in.File.Readable() || !out.File.Writable() {
		return 0, -defs.EBADF
	}

	count := int64(a.A3)
	savedOffset := int64(-1)
	if a.A2 != 0 {
		var offBuf [8]byte
		if err := ms.CopyIn(a.A2, offBuf[:]); err != 0 {
			return 0, err
		}
		savedOffset = in.File.Offset()
		if _, err := in.File.Seek(int64(binary.LittleEndian.Uint64(offBuf[:])), defs.SEEK_SET); err != 0 {
			return 0, err
		}
	}

	buf := make([]byte, 4096)
	var total int64
	for total < count {
		want := count - total
		if want > int64(len(buf)) {
			want = int64(len(buf))
		}
		rn, rerr := in.File.ReadKernel(buf[:want])
		if rerr != 0 || rn == 0 {
			break
		}
		wn, werr := out.File.WriteKernel(buf[:rn])
		total += int64(wn)
		if werr != 0 || wn < rn {
			break
		}
	}

	if savedOffset >= 0 {
		var offBuf [8]byte
		binary.LittleEndian.PutUint64(offBuf[:], uint64(in.File.Offset()))
		if err := ms.CopyOut(a.A2, offBuf[:]); err != 0 {
			return 0, err
		}
		if _, err := in.File.Seek(savedOffset, defs.SEEK_SET); err != 0 {
			return 0, err
		}
	}
	return total, 0
}

// sysLinkat: FAT has no link count or inode indirection, so a second
// directory entry for an existing chain cannot be expressed on disk;
// same -EPERM vfat gives.
func (k *Kernel) sysLinkat(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	oldPath, err := ms.CopyInString(a.A1, 4096)
	if err != 0 {
		return 0, err
	}
	if _, werr := k.walkEntry(task, int(int32(a.A0)), oldPath); werr != 0 {
		return 0, werr
	}
	return 0, -defs.EPERM
}

// sysReadlinkat: no symlink entry kind exists on FAT, so any resolvable
// path is "not a symlink".
func (k *Kernel) sysReadlinkat(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	path, err := ms.CopyInString(a.A1, 4096)
	if err != 0 {
		return 0, err
	}
	if _, werr := k.walkEntry(task, int(int32(a.A0)), path); werr != 0 {
		return 0, werr
	}
	return 0, -defs.EINVAL
}

func (k *Kernel) sysMount(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	special, err := ms.CopyInString(a.A0, 4096)
	if err != 0 {
		return 0, err
	}
	dir, err := ms.CopyInString(a.A1, 4096)
	if err != 0 {
		return 0, err
	}
	fstype, err := ms.CopyInString(a.A2, 4096)
	if err != 0 {
		return 0, err
	}
	return 0, k.mountTable.mount(special, dir, fstype)
}

func (k *Kernel) sysUmount2(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	special, err := ms.CopyInString(a.A0, 4096)
	if err != 0 {
		return 0, err
	}
	return 0, k.mountTable.umount(special)
}

func (k *Kernel) sysUtimensat(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	if a.A1 != 0 {
		path, err := ms.CopyInString(a.A1, 4096)
		if err != 0 {
			return 0, err
		}
		if _, werr := k.walkEntry(task, int(int32(a.A0)), path); werr != 0 {
			return 0, werr
		}
	} else if _, ok := task.FdTable.Table.Get(int(int32(a.A0))); !ok {
		return 0, -defs.EBADF
	}
	if a.A2 != 0 {
		// Two struct timespecs; only their readability matters, since
		// the in-core Entry does not carry FAT's packed timestamps.
		var times [32]byte
		if err := ms.CopyIn(a.A2, times[:]); err != 0 {
			return 0, err
		}
	}
	return 0, 0
}

func (k *Kernel) sysSync(task *proc.TCB) (int64, defs.Err_t) {
	if k.Root != nil {
		if err := k.Root.Cache.Flush(); err != nil {
			return 0, -defs.EIO
		}
	}
	return 0, 0
}

// msdosSuperMagic is the f_type statfs(2) reports for FAT filesystems.
const msdosSuperMagic = 0x4d44

func (k *Kernel) sysStatfs(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	if k.Root == nil {
		return 0, -defs.ENOSYS
	}
	free, err := k.Root.CountFreeClusters()
	if err != nil {
		return 0, -defs.EIO
	}
	clusterBytes := uint64(k.Root.BPB.SectorsPerCluster * k.Root.BPB.BytesPerSector)

	buf := make([]byte, 120)
	binary.LittleEndian.PutUint64(buf[0:], msdosSuperMagic)              // f_type
	binary.LittleEndian.PutUint64(buf[8:], clusterBytes)                 // f_bsize
	binary.LittleEndian.PutUint64(buf[16:], uint64(k.Root.DataClusters())) // f_blocks
	binary.LittleEndian.PutUint64(buf[24:], uint64(free))                // f_bfree
	binary.LittleEndian.PutUint64(buf[32:], uint64(free))                // f_bavail
	binary.LittleEndian.PutUint64(buf[72:], 255)                         // f_namelen
	binary.LittleEndian.PutUint64(buf[80:], clusterBytes)                // f_frsize
	return 0, ms.CopyOut(a.A1, buf)
}

func (k *Kernel) sysRenameat2(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	oldPath, err := ms.CopyInString(a.A1, 4096)
	if err != 0 {
		return 0, err
	}
	newPath, err := ms.CopyInString(a.A3, 4096)
	if err != 0 {
		return 0, err
	}
	oldDir, oldName, derr := k.walkParent(task, int(int32(a.A0)), oldPath)
	if derr != 0 {
		return 0, derr
	}
	newDir, newName, derr := k.walkParent(task, int(int32(a.A2)), newPath)
	if derr != 0 {
		return 0, derr
	}
	return 0, oldDir.Rename(oldName, newDir, newName)
}

func (k *Kernel) sysFaccessat(task *proc.TCB, ms *vm.MemorySet, a Args) (int64, defs.Err_t) {
	path, err := ms.CopyInString(a.A1, 4096)
	if err != 0 {
		return 0, err
	}
	// Existence is the whole check: FAT carries no owner or mode bits
	// to test a.A2's R_OK/W_OK/X_OK against.
	if _, werr := k.walkEntry(task, int(int32(a.A0)), path); werr != 0 {
		return 0, werr
	}
	return 0, 0
}

func (k *Kernel) sysFchdir(task *proc.TCB, a Args) (int64, defs.Err_t) {
	entry, ok := task.FdTable.Table.Get(int(a.A0))
	if !ok {
		return 0, -defs.EBADF
	}
	reg, ok := entry.File.(*fd.RegularFile)
	if !ok || !reg.Entry().IsDir {
		return 0, -defs.ENOTDIR
	}
	task.WithInner(func(in *proc.Inner) { in.Cwd = reg.Path() })
	return 0, 0
}
