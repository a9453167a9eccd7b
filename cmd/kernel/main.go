// Command kernel is the supervisor-mode entry point: it wires
// internal/boot.Boot() to a disk image and hands the resulting system
// to the scheduler. Grounded on biscuit's own main.go, which does
// nothing but call Entry()/Main() — every real decision lives in the
// packages under internal/, not here.
//
// This binary cannot actually execute on the host the way it would on
// real RISC-V hardware under an SBI firmware: there is no hart to trap
// into S-mode on, no linker script placing .bss/.text at a fixed
// physical base, and no trampoline assembly to jump through. Built this
// way so the source is what would ship to a cross-compiled RV64 target
// (see internal/boot's doc comment for the same caveat); running it
// here boots against a disk image produced by cmd/mkfs, then drives the
// scheduler loop through -max-steps synthetic ecall traps and exits.
package main

import (
	"flag"
	"fmt"
	"os"

	"rvkernel/internal/blockdev"
	"rvkernel/internal/boot"
	"rvkernel/internal/klog"
	"rvkernel/internal/mem"
	"rvkernel/internal/trap"
)

func main() {
	disk := flag.String("disk", "disk.img", "path to a FAT32 disk image built by cmd/mkfs")
	init_ := flag.String("init", "/init", "path of the init binary within the disk image")
	memPages := flag.Uint64("mem-pages", 1<<16, "number of 4K frames the frame allocator owns above the loaded image")
	maxSteps := flag.Int("max-steps", 1, "number of synthetic traps to run the scheduler loop through (this host has no real hart to keep supplying them)")
	flag.Parse()

	fi, err := os.Stat(*disk)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kernel: stat %s: %v\n", *disk, err)
		os.Exit(1)
	}
	// A real boot loader hands the kernel its image's true block count
	// out of band (e.g. the partition table it was loaded from); here
	// the disk image file's own size stands in for that.
	dev, err := blockdev.Open(*disk, uint32(fi.Size()/blockdev.BlockSize))
	if err != nil {
		fmt.Fprintf(os.Stderr, "kernel: open %s: %v\n", *disk, err)
		os.Exit(1)
	}

	cfg := boot.Config{
		MemBase:  mem.PPN(0x80000),
		MemEnd:   mem.PPN(0x80000) + mem.PPN(*memPages),
		Disk:     dev,
		InitPath: *init_,
	}

	sys, err := boot.Boot(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kernel: boot failed: %v\n", err)
		os.Exit(1)
	}

	klog.Infof("kernel: booted, init pid=%d tid=%d ready in scheduler", sys.Init.Tgid, sys.Init.Tid)
	klog.Infof("kernel: no S-mode hart present on this host; driving the scheduler loop with %d synthetic ecall trap(s)", *maxSteps)

	steps := 0
	sys.Schedule(func() (boot.Trap, bool) {
		if steps >= *maxSteps {
			return boot.Trap{}, false
		}
		steps++
		// The only cause this host can usefully synthesize without a
		// hart: every task Step picks up is told it trapped via ecall,
		// the same way a freshly loaded image's first real instruction
		// eventually would on real hardware.
		return boot.Trap{Scause: trap.ExcUserEcall}, true
	})

	klog.Infof("kernel: stepped scheduler loop %d time(s); exiting (no real hart to keep it running)", steps)
}
