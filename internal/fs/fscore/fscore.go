// Package fscore ties the block cache, FAT manager, directory-entry
// codec, and cluster-chain file abstraction together into a mounted
// FAT32 filesystem: BPB parsing and the root directory. Grounded
// on biscuit's fs/super.go directly (its Fs_t superblock owning a block
// cache and exposing Bootup/lifecycle), adapted from ext2-style
// superblock fields to FAT32 BPB fields, and on the field layout in
// original_source/crates/fat32/src/bpb.rs.
package fscore

import (
	"encoding/binary"

	"rvkernel/internal/blockdev"
	"rvkernel/internal/defs"
	"rvkernel/internal/fs/blockcache"
	"rvkernel/internal/fs/dirent"
	"rvkernel/internal/fs/fat"
	"rvkernel/internal/fs/vfile"
)

// Byte offsets of the BPB fields this kernel reads, matching bpb.rs's
// BasicBPB/BPB32 packed layout.
const (
	offBytesPerSec    = 0x0B
	offSecPerClus     = 0x0D
	offRsvdSecCnt     = 0x0E
	offNumFATs        = 0x10
	offRootEntCnt     = 0x11
	offTotSec16       = 0x13
	offFATSz16        = 0x16
	offTotSec32       = 0x20
	offFATSz32        = 0x24
	offRootClus       = 0x2C
	offFSInfoSec      = 0x30
	bootSignatureOff1 = 0x1FE
)

const bootSectorSize = blockdev.BlockSize

/// BPB holds the BIOS Parameter Block fields the kernel needs, decoded
/// from the boot sector.
type BPB struct {
	BytesPerSector    uint32
	SectorsPerCluster uint32
	ReservedSectorCnt uint32
	NumFATs           uint32
	TotalSectors      uint32
	FATSize           uint32 // sectors per FAT (FAT32 only: FATSz32)
	RootCluster       uint32
	FSInfoSector      uint32
}

/// FAT1Offset returns the byte offset of FAT1 from the start of the
/// device, matching bpb.rs's fat1_offset.
func (b *BPB) FAT1Offset() uint32 {
	return b.ReservedSectorCnt * b.BytesPerSector
}

/// FirstDataSector returns the absolute sector number of cluster 2,
/// matching bpb.rs's first_data_sector (FAT32's RootDirSectors is always
/// 0, so no root-directory-region term is added here).
func (b *BPB) FirstDataSector() uint32 {
	return b.ReservedSectorCnt + b.NumFATs*b.FATSize
}

func parseBPB(sector []byte) (*BPB, error) {
	if sector[bootSignatureOff1] != 0x55 || sector[bootSignatureOff1+1] != 0xAA {
		return nil, errInvalidBPB
	}
	b := &BPB{
		BytesPerSector:    uint32(binary.LittleEndian.Uint16(sector[offBytesPerSec:])),
		SectorsPerCluster: uint32(sector[offSecPerClus]),
		ReservedSectorCnt: uint32(binary.LittleEndian.Uint16(sector[offRsvdSecCnt:])),
		NumFATs:           uint32(sector[offNumFATs]),
		RootCluster:       binary.LittleEndian.Uint32(sector[offRootClus:]),
		FSInfoSector:      uint32(binary.LittleEndian.Uint16(sector[offFSInfoSec:])),
	}
	rootEntCnt := binary.LittleEndian.Uint16(sector[offRootEntCnt:])
	totSec16 := binary.LittleEndian.Uint16(sector[offTotSec16:])
	fatSz16 := binary.LittleEndian.Uint16(sector[offFATSz16:])
	totSec32 := binary.LittleEndian.Uint32(sector[offTotSec32:])
	fatSz32 := binary.LittleEndian.Uint32(sector[offFATSz32:])
	if rootEntCnt != 0 || totSec16 != 0 || fatSz16 != 0 || totSec32 == 0 || fatSz32 == 0 {
		return nil, errInvalidBPB
	}
	b.TotalSectors = totSec32
	b.FATSize = fatSz32
	return b, nil
}

type bpbError struct{ msg string }

func (e bpbError) Error() string { return e.msg }

var errInvalidBPB = bpbError{"fscore: not a valid FAT32 boot sector"}

/// FS is a mounted FAT32 volume: the block cache, FAT manager, decoded
/// BPB, and geometry every File needs.
type FS struct {
	Cache *blockcache.Cache
	FAT   *fat.Manager
	BPB   *BPB
	geom  vfile.Geometry
	dev   blockdev.Device
}

/// Mount reads and validates the boot sector of dev and constructs an FS
/// ready to resolve paths from its root directory, mirroring biscuit's
/// fs.Fs_t boot-up sequence (super.go's Bootup) adapted to FAT32's BPB
/// instead of an ext2-ish superblock.
func Mount(dev blockdev.Device) (*FS, error) {
	cache := blockcache.New(dev)
	h, err := cache.Get(0)
	if err != nil {
		return nil, err
	}
	var sector [bootSectorSize]byte
	h.Read(0, func(buf []byte) { copy(sector[:], buf) })
	h.Release()

	bpb, err := parseBPB(sector[:])
	if err != nil {
		return nil, err
	}

	fatMgr := fat.Open(cache, bpb.FAT1Offset())
	geom := vfile.Geometry{
		BytesPerSector:     bpb.BytesPerSector,
		SectorsPerCluster:  bpb.SectorsPerCluster,
		FirstDataSectorAbs: bpb.FirstDataSector(),
	}
	return &FS{Cache: cache, FAT: fatMgr, BPB: bpb, geom: geom, dev: dev}, nil
}

/// Format writes a minimal valid FAT32 boot sector plus the reserved
/// FAT1 entries (FAT2 is left zeroed) to dev and returns a mounted FS,
/// for cmd/mkfs. It
/// does not attempt to match every field a real `mkfs.fat` would set —
/// only what this kernel itself reads back (BytesPerSector,
/// SectorsPerCluster, ReservedSectorCnt, NumFATs, TotalSectors, FATSize,
/// RootCluster).
func Format(dev blockdev.Device, sectorsPerCluster uint32) (*FS, error) {
	numBlocks := dev.NumBlocks()
	const reservedSectors = 32
	const numFATs = 2

	dataBlocks := numBlocks - reservedSectors
	// Each FAT entry covers one cluster; size the FAT generously (one
	// sector of FAT covers 128 clusters) and round up.
	clustersUpperBound := dataBlocks / sectorsPerCluster
	fatSize := (clustersUpperBound*4 + blockdev.BlockSize - 1) / blockdev.BlockSize
	if fatSize == 0 {
		fatSize = 1
	}

	var sector [bootSectorSize]byte
	binary.LittleEndian.PutUint16(sector[offBytesPerSec:], blockdev.BlockSize)
	sector[offSecPerClus] = byte(sectorsPerCluster)
	binary.LittleEndian.PutUint16(sector[offRsvdSecCnt:], reservedSectors)
	sector[offNumFATs] = numFATs
	binary.LittleEndian.PutUint16(sector[offRootEntCnt:], 0)
	binary.LittleEndian.PutUint16(sector[offTotSec16:], 0)
	binary.LittleEndian.PutUint16(sector[offFATSz16:], 0)
	binary.LittleEndian.PutUint32(sector[offTotSec32:], numBlocks)
	binary.LittleEndian.PutUint32(sector[offFATSz32:], fatSize)
	binary.LittleEndian.PutUint32(sector[offRootClus:], 2)
	binary.LittleEndian.PutUint16(sector[offFSInfoSec:], 1)
	sector[bootSignatureOff1] = 0x55
	sector[bootSignatureOff1+1] = 0xAA

	if err := dev.WriteBlock(0, &sector); err != nil {
		return nil, err
	}

	fs, err := Mount(dev)
	if err != nil {
		return nil, err
	}

	// Reserve clusters 0 and 1, and mark cluster 2 (the root directory)
	// as a one-cluster end-of-chain, matching FATManager::new.
	if err := fs.FAT.SetNextCluster(0, fat.EndOfCluster); err != nil {
		return nil, err
	}
	if err := fs.FAT.SetNextCluster(1, fat.EndOfCluster); err != nil {
		return nil, err
	}
	if err := fs.FAT.SetNextCluster(2, fat.EndOfCluster); err != nil {
		return nil, err
	}
	if err := fs.zeroDataCluster(2); err != nil {
		return nil, err
	}
	if err := fs.Cache.Flush(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FS) zeroDataCluster(cluster uint32) error {
	var zero [blockdev.BlockSize]byte
	base := fs.geom.FirstDataSectorAbs + (cluster-2)*fs.BPB.SectorsPerCluster
	for i := uint32(0); i < fs.BPB.SectorsPerCluster; i++ {
		h, err := fs.Cache.Get(base + i)
		if err != nil {
			return err
		}
		h.Modify(0, func(buf []byte) { copy(buf, zero[:]) })
		h.Release()
	}
	return nil
}

/// RootDir returns a Directory positioned at the volume's root.
func (fs *FS) RootDir() *Directory {
	return &Directory{fs: fs, file: vfile.New(fs.Cache, fs.FAT, fs.geom, fs.BPB.RootCluster, true, 0, nil)}
}

/// Directory wraps a vfile.File known to hold directory entries,
/// exposing the name-resolution/listing/creation operations from
/// internal/fs/dirent.
type Directory struct {
	fs   *FS
	file *vfile.File
}

/// Lookup resolves name within dir and returns the matching file or
/// subdirectory, classified by its attribute byte.
func (d *Directory) Lookup(name string) (*Entry, defs.Err_t) {
	found, err := dirent.FindByName(d.file, name)
	if err != nil {
		return nil, -defs.ENOENT
	}
	return d.entryFromFound(found), 0
}

/// List returns every live entry in dir.
func (d *Directory) List() ([]dirent.ListedEntry, defs.Err_t) {
	entries, err := dirent.Ls(d.file)
	if err != nil {
		return nil, -defs.EIO
	}
	return entries, 0
}

/// Create makes a new file or subdirectory named name inside dir. Every
/// new entry gets its first cluster allocated and zeroed up front; a new
/// directory also gets "."/".." entries written into it, matching
/// dir.rs's create.
func (d *Directory) Create(name string, isDir bool) (*Entry, defs.Err_t) {
	if _, err := dirent.FindByName(d.file, name); err == nil {
		return nil, -defs.EEXIST
	}

	attr := uint8(dirent.AttrArchive)
	if isDir {
		attr = dirent.AttrDirectory
	}
	firstCluster, berr := d.fs.FAT.BlankCluster(d.fs.BPB.RootCluster)
	if berr != nil {
		return nil, -defs.ENOSPC
	}
	if err := d.fs.FAT.SetNextCluster(firstCluster, fat.EndOfCluster); err != nil {
		return nil, -defs.EIO
	}
	if err := d.fs.zeroDataCluster(firstCluster); err != nil {
		return nil, -defs.EIO
	}

	found, err := dirent.CreateEntry(d.file, name, firstCluster, attr)
	if err != nil {
		return nil, -defs.ENOSPC
	}

	if isDir {
		child := Directory{fs: d.fs, file: vfile.New(d.fs.Cache, d.fs.FAT, d.fs.geom, firstCluster, true, 0, nil)}
		if _, err := dirent.CreateEntry(child.file, ".", firstCluster, dirent.AttrDirectory); err != nil {
			return nil, -defs.EIO
		}
		if _, err := dirent.CreateEntry(child.file, "..", d.file.FirstCluster(), dirent.AttrDirectory); err != nil {
			return nil, -defs.EIO
		}
	}

	return d.entryFromFound(found), 0
}

/// Remove deletes the directory entry named name; for a regular file
/// this also frees its cluster chain.
func (d *Directory) Remove(name string) defs.Err_t {
	found, err := dirent.FindByName(d.file, name)
	if err != nil {
		return -defs.ENOENT
	}
	if !found.Short.IsDir() {
		if ferr := d.fs.FAT.FreeChain(found.Short.FirstCluster()); ferr != nil {
			return -defs.EIO
		}
	}
	if derr := dirent.MarkDeleted(d.file, found); derr != nil {
		return -defs.EIO
	}
	return 0
}

func (d *Directory) entryFromFound(found *dirent.Found) *Entry {
	isDir := found.Short.IsDir()
	file := vfile.New(d.fs.Cache, d.fs.FAT, d.fs.geom, found.Short.FirstCluster(), isDir, found.Short.FileSize, func(n uint32) {
		found.Short.FileSize = n
		b := found.Short.MarshalShort()
		d.file.WriteAt(found.ShortOff, b[:])
	})
	return &Entry{
		Name:  found.Name,
		IsDir: isDir,
		Size:  found.Short.FileSize,
		File:  file,
		Dir:   &Directory{fs: d.fs, file: file},
	}
}

/// Entry is a resolved directory entry: its own File (readable/writable
/// if a regular file) and, if it is a directory, a Directory view over
/// the same cluster chain for further lookups.
type Entry struct {
	Name  string
	IsDir bool
	Size  uint32
	File  *vfile.File
	Dir   *Directory
}

/// Rename moves the entry named oldName in d to newName in dst, keeping
/// the file's cluster chain as-is: the new directory entry points at the
/// old first cluster, then the old entry is marked deleted. An existing
/// entry at the destination is removed first, which for a regular file
/// also frees its chain (rename-over semantics).
func (d *Directory) Rename(oldName string, dst *Directory, newName string) defs.Err_t {
	found, err := dirent.FindByName(d.file, oldName)
	if err != nil {
		return -defs.ENOENT
	}
	if _, lerr := dirent.FindByName(dst.file, newName); lerr == nil {
		if rerr := dst.Remove(newName); rerr != 0 {
			return rerr
		}
	}
	attr := uint8(dirent.AttrArchive)
	if found.Short.IsDir() {
		attr = dirent.AttrDirectory
	}
	nf, cerr := dirent.CreateEntry(dst.file, newName, found.Short.FirstCluster(), attr)
	if cerr != nil {
		return -defs.ENOSPC
	}
	if found.Short.FileSize != 0 {
		nf.Short.FileSize = found.Short.FileSize
		b := nf.Short.MarshalShort()
		if _, werr := dst.file.WriteAt(nf.ShortOff, b[:]); werr != nil {
			return -defs.EIO
		}
	}
	if derr := dirent.MarkDeleted(d.file, found); derr != nil {
		return -defs.EIO
	}
	return 0
}

/// CountFreeClusters walks the whole FAT counting zero entries. The
/// FSInfo sector is not consulted; the count always comes from this
/// live scan.
func (fs *FS) CountFreeClusters() (uint32, error) {
	total := fs.DataClusters()
	var free uint32
	for c := uint32(2); c < 2+total; c++ {
		next, ok, err := fs.FAT.GetNextCluster(c)
		if err != nil {
			return 0, err
		}
		if ok && next == 0 {
			free++
		}
	}
	return free, nil
}

/// DataClusters returns how many clusters the data area holds.
func (fs *FS) DataClusters() uint32 {
	if fs.BPB.TotalSectors <= fs.geom.FirstDataSectorAbs {
		return 0
	}
	return (fs.BPB.TotalSectors - fs.geom.FirstDataSectorAbs) / fs.BPB.SectorsPerCluster
}
