// Command mkfs is the userland disk-image builder: it formats a FAT32
// image, copies a kernel ELF and a skeleton directory tree into it, and
// can list or inspect an existing image. Unlike cmd/kernel, this is a
// normal hosted Go program — it carries the domain-stack CLI wiring
// SPEC_FULL.md's ambient-stack section describes (cobra command tree,
// logrus build logging), the same shape as dsmmcken-dh-cli's own
// command-per-file layout (go_src/internal/cmd/root.go), grounded on
// the teacher's own single-purpose mkfs.go (biscuit/src/mkfs/mkfs.go)
// for *what* gets built (a bootable image from a kernel image plus a
// skeleton tree) while borrowing *how* the CLI is structured from the
// richer example.
package main

import (
	"fmt"
	"os"

	"rvkernel/cmd/mkfs/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
