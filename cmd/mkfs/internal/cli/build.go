package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"rvkernel/cmd/mkfs/internal/hostblk"
	"rvkernel/internal/blockdev"
	"rvkernel/internal/defs"
	"rvkernel/internal/fs/fscore"
)

type buildOpts struct {
	out               string
	kernel            string
	initPath          string
	skel              string
	sizeMiB           int64
	sectorsPerCluster uint32
}

// newBuildCmd mirrors the teacher's mkfs.go main(): format a fresh
// image, copy the kernel binary in under --init's path, then walk a
// skeleton directory tree into it (addfiles/copydata's job there,
// addSkeleton/copyFileInto here). Restructured onto cobra flags
// instead of positional os.Args so --out can default sensibly and a
// raw host block device can be targeted without a separate tool.
func newBuildCmd() *cobra.Command {
	var o buildOpts
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Format a FAT32 image and populate it with a kernel and skeleton tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(o)
		},
	}
	cmd.Flags().StringVar(&o.out, "out", "disk.img", "output image path, or a raw block device node")
	cmd.Flags().StringVar(&o.kernel, "init", "", "host path to the init/kernel ELF binary to embed (required)")
	cmd.Flags().StringVar(&o.initPath, "init-path", "/init", "path the init binary is installed at within the image")
	cmd.Flags().StringVar(&o.skel, "skel", "", "host directory tree to copy into the image root (optional)")
	cmd.Flags().Int64Var(&o.sizeMiB, "size-mib", 64, "image size in MiB when --out is a regular file")
	cmd.Flags().Uint32Var(&o.sectorsPerCluster, "sectors-per-cluster", 8, "FAT32 cluster size in 512-byte sectors")
	cmd.MarkFlagRequired("init")
	return cmd
}

func runBuild(o buildOpts) error {
	dev, cleanup, err := openTarget(o.out, o.sizeMiB)
	if err != nil {
		return err
	}
	defer cleanup()

	log.Infof("formatting %s (%d blocks, %d sectors/cluster)", o.out, dev.NumBlocks(), o.sectorsPerCluster)
	fs, err := fscore.Format(dev, o.sectorsPerCluster)
	if err != nil {
		return fmt.Errorf("format: %w", err)
	}

	log.Debugf("installing init binary %s -> %s", o.kernel, o.initPath)
	if err := installFile(fs, o.initPath, o.kernel); err != nil {
		return fmt.Errorf("install init: %w", err)
	}

	if o.skel != "" {
		log.Infof("copying skeleton tree %s", o.skel)
		if err := addSkeleton(fs, o.skel); err != nil {
			return fmt.Errorf("copy skeleton: %w", err)
		}
	}

	if err := fs.Cache.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	log.Infof("built %s", o.out)
	return nil
}

// openTarget returns a Device for out: a freshly truncated file sized
// sizeMiB MiB, or (on Linux) a raw block device opened at its real
// capacity when out already exists as a device node.
func openTarget(out string, sizeMiB int64) (blockdev.Device, func(), error) {
	isDev, err := hostblk.IsDevice(out)
	if err != nil {
		return nil, nil, err
	}
	if isDev {
		bytes, err := hostblk.SizeBytes(out)
		if err != nil {
			return nil, nil, err
		}
		dev, err := blockdev.Open(out, uint32(bytes/blockdev.BlockSize))
		if err != nil {
			return nil, nil, err
		}
		return dev, func() { dev.Close() }, nil
	}

	numBlocks := uint32(sizeMiB * 1024 * 1024 / blockdev.BlockSize)
	dev, err := blockdev.Create(out, numBlocks)
	if err != nil {
		return nil, nil, err
	}
	return dev, func() { dev.Close() }, nil
}

// installFile writes the whole contents of hostPath into the image at
// imagePath (an absolute, single-component-deep-or-nested path), the
// same copydata loop as the teacher's but writing through
// fscore/vfile instead of ufs.Append.
func installFile(fs *fscore.FS, imagePath, hostPath string) error {
	data, err := os.ReadFile(hostPath)
	if err != nil {
		return err
	}
	entry, eerr := createAt(fs, imagePath, false)
	if eerr != 0 {
		return fmt.Errorf("create %s: errno %d", imagePath, -eerr)
	}
	if _, werr := entry.File.WriteAt(0, data); werr != nil {
		return werr
	}
	return nil
}

// createAt resolves every path component but the last against fs's
// root, creating intermediate directories as needed (mkdirat-style),
// then creates the final component with the given directory-ness.
func createAt(fs *fscore.FS, path string, isDir bool) (*fscore.Entry, defs.Err_t) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, -defs.EINVAL
	}
	dir := fs.RootDir()
	for _, name := range parts[:len(parts)-1] {
		child, lerr := dir.Lookup(name)
		if lerr == 0 {
			if !child.IsDir {
				return nil, -defs.ENOTDIR
			}
			dir = child.Dir
			continue
		}
		created, cerr := dir.Create(name, true)
		if cerr != 0 {
			return nil, cerr
		}
		dir = created.Dir
	}
	last := parts[len(parts)-1]
	if existing, lerr := dir.Lookup(last); lerr == 0 {
		return existing, 0
	}
	return dir.Create(last, isDir)
}

func splitPath(p string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				out = append(out, p[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// addSkeleton walks skelDir on the host and replicates it under the
// image's root, matching the teacher's addfiles/copydata pair
// (mkfs.go) but through filepath.WalkDir + fscore instead of
// filepath.WalkDir + ufs.Ufs_t.
func addSkeleton(fs *fscore.FS, skelDir string) error {
	var paths []string
	if err := filepath.WalkDir(skelDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == skelDir {
			return nil
		}
		paths = append(paths, path)
		return nil
	}); err != nil {
		return fmt.Errorf("walking %q: %w", skelDir, err)
	}
	// Directories must be created before the files/subdirectories
	// nested inside them; WalkDir already visits parents first, but
	// sort defensively so this doesn't depend on walk order.
	sort.Strings(paths)

	for _, path := range paths {
		rel := filepath.ToSlash(path[len(skelDir):])
		fi, err := os.Stat(path)
		if err != nil {
			return err
		}
		if fi.IsDir() {
			log.Debugf("mkdir %s", rel)
			if _, eerr := createAt(fs, rel, true); eerr != 0 {
				return fmt.Errorf("mkdir %s: errno %d", rel, -eerr)
			}
			continue
		}
		log.Debugf("copy %s <- %s", rel, path)
		if err := copyFileInto(fs, rel, path); err != nil {
			return fmt.Errorf("copy %s: %w", rel, err)
		}
	}
	return nil
}

func copyFileInto(fs *fscore.FS, imagePath, hostPath string) error {
	src, err := os.Open(hostPath)
	if err != nil {
		return err
	}
	defer src.Close()

	entry, eerr := createAt(fs, imagePath, false)
	if eerr != 0 {
		return fmt.Errorf("create: errno %d", -eerr)
	}

	buf := make([]byte, blockdev.BlockSize*8)
	off := int64(0)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := entry.File.WriteAt(off, buf[:n]); werr != nil {
				return werr
			}
			off += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
	}
	return nil
}
