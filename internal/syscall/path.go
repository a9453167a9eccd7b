package syscall

import (
	"strings"

	"rvkernel/internal/defs"
	"rvkernel/internal/fs/fscore"
	"rvkernel/internal/proc"
)

// AtFDCWD mirrors fcntl.h's AT_FDCWD: "resolve path relative to the
// calling task's current working directory" for the *at() syscalls.
const AtFDCWD = -100

func splitPath(p string) []string {
	var out []string
	for _, part := range strings.Split(p, "/") {
		if part == "" || part == "." {
			continue
		}
		out = append(out, part)
	}
	return out
}

// baseDir resolves dirfd/path's starting directory: an absolute path or
// AT_FDCWD walk from the mount root, or (for a plain relative path under
// a real directory fd) the directory that fd names.
func (k *Kernel) baseDir(task *proc.TCB, dirfd int, path string) (*fscore.Directory, defs.Err_t) {
	if strings.HasPrefix(path, "/") {
		return k.Root.RootDir(), 0
	}
	if dirfd == AtFDCWD {
		return k.walkDir(task.CwdPath())
	}
	entry, ok := task.FdTable.Table.Get(dirfd)
	if !ok {
		return nil, -defs.EBADF
	}
	return k.walkDir(entry.File.Path())
}

// walkDir resolves an absolute slash-separated path to a Directory,
// starting from the mounted root.
func (k *Kernel) walkDir(path string) (*fscore.Directory, defs.Err_t) {
	dir := k.Root.RootDir()
	for _, part := range splitPath(path) {
		entry, err := dir.Lookup(part)
		if err != 0 {
			return nil, err
		}
		if !entry.IsDir {
			return nil, -defs.ENOTDIR
		}
		dir = entry.Dir
	}
	return dir, 0
}

// walkEntry resolves dirfd/path to the Entry it names.
func (k *Kernel) walkEntry(task *proc.TCB, dirfd int, path string) (*fscore.Entry, defs.Err_t) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, -defs.ENOENT
	}
	dir, err := k.baseDir(task, dirfd, path)
	if err != 0 {
		return nil, err
	}
	for i, part := range parts {
		entry, lerr := dir.Lookup(part)
		if lerr != 0 {
			return nil, lerr
		}
		if i == len(parts)-1 {
			return entry, 0
		}
		if !entry.IsDir {
			return nil, -defs.ENOTDIR
		}
		dir = entry.Dir
	}
	return nil, -defs.ENOENT
}

// walkParent resolves dirfd/path to its containing Directory and final
// path component, for create/unlink.
func (k *Kernel) walkParent(task *proc.TCB, dirfd int, path string) (*fscore.Directory, string, defs.Err_t) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, "", -defs.ENOENT
	}
	dir, err := k.baseDir(task, dirfd, path)
	if err != 0 {
		return nil, "", err
	}
	for _, part := range parts[:len(parts)-1] {
		entry, lerr := dir.Lookup(part)
		if lerr != 0 {
			return nil, "", lerr
		}
		if !entry.IsDir {
			return nil, "", -defs.ENOTDIR
		}
		dir = entry.Dir
	}
	return dir, parts[len(parts)-1], 0
}
