// Package blockdev implements the "expected block device" spec §6
// describes as an external collaborator: an object with read_block and
// write_block methods over fixed-size blocks, with concurrency handled
// by the block cache layered on top rather than the device itself.
// Grounded on biscuit's fs.Disk_i (fs/blk.go) for the interface shape,
// adapted from its async-request/channel model to a direct synchronous
// ReadAt/WriteAt call since this kernel's block device is a disk image
// file rather than a virtio MMIO ring.
package blockdev

import (
	"fmt"
	"os"
)

/// BlockSize is the on-disk sector size spec §3/§6 fixes at 512 bytes.
const BlockSize = 512

/// Device is the minimal surface the filesystem layer needs: read and
/// write one fixed-size block by number.
type Device interface {
	ReadBlock(id uint32, buf *[BlockSize]byte) error
	WriteBlock(id uint32, buf *[BlockSize]byte) error
	NumBlocks() uint32
}

/// FileDevice backs Device with a regular host file — a disk image —
/// exactly how cmd/mkfs itself produces and the kernel later mounts a
/// FAT32 volume in this host-testable rendition of the spec (no real
/// virtio transport exists to target; the spec explicitly scopes block
/// transport out as a black box, §1).
type FileDevice struct {
	f    *os.File
	size uint32
}

/// Open opens path as a block device of the given block count. The file
/// must already exist and be at least numBlocks*BlockSize bytes (as
/// produced by cmd/mkfs).
func Open(path string, numBlocks uint32) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &FileDevice{f: f, size: numBlocks}, nil
}

/// Create truncates/creates path to exactly numBlocks*BlockSize bytes and
/// returns it opened for read-write, for use by cmd/mkfs when building a
/// fresh image.
func Create(path string, numBlocks uint32) (*FileDevice, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(numBlocks) * BlockSize); err != nil {
		f.Close()
		return nil, err
	}
	return &FileDevice{f: f, size: numBlocks}, nil
}

func (d *FileDevice) NumBlocks() uint32 { return d.size }

func (d *FileDevice) ReadBlock(id uint32, buf *[BlockSize]byte) error {
	if id >= d.size {
		return fmt.Errorf("blockdev: read of out-of-range block %d (have %d)", id, d.size)
	}
	_, err := d.f.ReadAt(buf[:], int64(id)*BlockSize)
	return err
}

func (d *FileDevice) WriteBlock(id uint32, buf *[BlockSize]byte) error {
	if id >= d.size {
		return fmt.Errorf("blockdev: write of out-of-range block %d (have %d)", id, d.size)
	}
	_, err := d.f.WriteAt(buf[:], int64(id)*BlockSize)
	return err
}

/// Close releases the underlying file.
func (d *FileDevice) Close() error { return d.f.Close() }

/// MemDevice is an in-memory Device, used by filesystem tests that would
/// otherwise need a real file on disk.
type MemDevice struct {
	blocks [][BlockSize]byte
}

/// NewMem creates a zeroed in-memory device of numBlocks blocks.
func NewMem(numBlocks uint32) *MemDevice {
	return &MemDevice{blocks: make([][BlockSize]byte, numBlocks)}
}

func (d *MemDevice) NumBlocks() uint32 { return uint32(len(d.blocks)) }

func (d *MemDevice) ReadBlock(id uint32, buf *[BlockSize]byte) error {
	if int(id) >= len(d.blocks) {
		return fmt.Errorf("blockdev: read of out-of-range block %d (have %d)", id, len(d.blocks))
	}
	*buf = d.blocks[id]
	return nil
}

func (d *MemDevice) WriteBlock(id uint32, buf *[BlockSize]byte) error {
	if int(id) >= len(d.blocks) {
		return fmt.Errorf("blockdev: write of out-of-range block %d (have %d)", id, len(d.blocks))
	}
	d.blocks[id] = *buf
	return nil
}
