package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"rvkernel/internal/blockdev"
	"rvkernel/internal/fs/dirent"
	"rvkernel/internal/fs/fscore"
)

// newLsCmd lists a directory of a built image, open read-only. Mirrors
// ls_with_attr's "walk, skip deleted, emit (name, attr)" shape (spec
// §4.13) one level deep by default, the way a real ls(1) would; -r
// recurses into subdirectories.
func newLsCmd() *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "ls <image> [path]",
		Short: "List a directory inside a FAT32 image",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/"
			if len(args) == 2 {
				path = args[1]
			}
			return runLs(args[0], path, recursive)
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "recurse into subdirectories")
	return cmd
}

func runLs(imagePath, dirPath string, recursive bool) error {
	dev, err := openReadOnly(imagePath)
	if err != nil {
		return err
	}
	defer dev.close()

	fs, err := fscore.Mount(dev.dev)
	if err != nil {
		return fmt.Errorf("mount %s: %w", imagePath, err)
	}

	dir := fs.RootDir()
	if dirPath != "/" && dirPath != "" {
		for _, name := range splitPath(dirPath) {
			entry, eerr := dir.Lookup(name)
			if eerr != 0 {
				return fmt.Errorf("lookup %q: errno %d", name, -eerr)
			}
			if !entry.IsDir {
				return fmt.Errorf("%s: not a directory", dirPath)
			}
			dir = entry.Dir
		}
	}
	return lsWalk(dir, dirPath, recursive)
}

func lsWalk(dir *fscore.Directory, prefix string, recursive bool) error {
	entries, eerr := dir.List()
	if eerr != 0 {
		return fmt.Errorf("list %s: errno %d", prefix, -eerr)
	}
	for _, e := range entries {
		printEntry(prefix, e)
		if recursive && e.Attr&dirent.AttrDirectory != 0 && e.Name != "." && e.Name != ".." {
			child, cerr := dir.Lookup(e.Name)
			if cerr != 0 {
				continue
			}
			if err := lsWalk(child.Dir, joinPath(prefix, e.Name), true); err != nil {
				return err
			}
		}
	}
	return nil
}

func printEntry(prefix string, e dirent.ListedEntry) {
	kind := "-"
	if e.Attr&dirent.AttrDirectory != 0 {
		kind = "d"
	}
	fmt.Printf("%s %s\n", kind, joinPath(prefix, e.Name))
}

func joinPath(prefix, name string) string {
	if prefix == "" || prefix == "/" {
		return "/" + name
	}
	return prefix + "/" + name
}

// roDevice wraps a blockdev.Device opened purely for read-only
// inspection from the ls/inspect subcommands.
type roDevice struct {
	dev blockdev.Device
	f   *blockdev.FileDevice
}

func (r *roDevice) close() {
	if r.f != nil {
		r.f.Close()
	}
}

func openReadOnly(path string) (*roDevice, error) {
	fi, err := statSize(path)
	if err != nil {
		return nil, err
	}
	f, err := blockdev.Open(path, uint32(fi/blockdev.BlockSize))
	if err != nil {
		return nil, err
	}
	return &roDevice{dev: f, f: f}, nil
}
