// Package dirent implements the FAT32 directory entry codec spec §4.13
// describes: 32-byte 8.3 short entries and chained long-name entries with
// their ordinal/checksum encoding, plus name lookup and directory-entry
// creation. Grounded on original_source/crates/fat32/src/dir.rs for the
// lookup algorithms (find_by_lfn/find_by_sfn/ls_with_attr/create) and
// lib.rs for the on-disk constants (DIRENT_SIZE, ATTR_*, LAST_LONG_ENTRY,
// DIR_ENTRY_UNUSED); the fat32 crate's own entry.rs (ShortDirEntry/
// LongDirEntry byte layout) wasn't included in the retrieval pack, so the
// 32-byte field layout and checksum formula below follow the standard
// FAT32 on-disk specification instead, which dir.rs's algorithm assumes.
package dirent

import (
	"strings"
	"unicode/utf16"
)

/// DirentSize is the fixed size, in bytes, of every directory entry
/// (short or long), matching lib.rs's DIRENT_SIZE.
const DirentSize = 32

// File attribute bits.
const (
	AttrReadOnly  = 0x01
	AttrHidden    = 0x02
	AttrSystem    = 0x04
	AttrVolumeID  = 0x08
	AttrDirectory = 0x10
	AttrArchive   = 0x20
	AttrLongName  = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID
)

/// LastLongEntry marks the first-written (logically last) long-name
/// entry in a chain, OR'd into its ordinal byte.
const LastLongEntry = 0x40

/// EntryUnused marks a short entry's Name[0] (or a long entry's Ord) as
/// deleted.
const EntryUnused = 0xE5

/// EntryFreeEnd marks Name[0] == 0x00: this slot and every slot after it
/// in the directory are unused (end of the entry list).
const EntryFreeEnd = 0x00

const longNameCap = 13 // UTF-16 units per long-name entry

/// ShortEntry is the on-disk 8.3 short directory entry (32 bytes).
type ShortEntry struct {
	Name       [8]byte
	Ext        [3]byte
	Attr       uint8
	NTRes      uint8
	CrtTimeTen uint8
	CrtTime    uint16
	CrtDate    uint16
	LstAccDate uint16
	FstClusHi  uint16
	WrtTime    uint16
	WrtDate    uint16
	FstClusLo  uint16
	FileSize   uint32
}

/// NewShortEntry builds a short entry for name/ext already 8.3-formatted
/// (see FormatShortName), first cluster firstCluster, and attr.
func NewShortEntry(name [8]byte, ext [3]byte, firstCluster uint32, attr uint8) *ShortEntry {
	return &ShortEntry{
		Name:      name,
		Ext:       ext,
		Attr:      attr,
		FstClusHi: uint16(firstCluster >> 16),
		FstClusLo: uint16(firstCluster & 0xFFFF),
	}
}

/// FirstCluster reassembles the entry's starting cluster from its high
/// and low halves.
func (s *ShortEntry) FirstCluster() uint32 {
	return uint32(s.FstClusHi)<<16 | uint32(s.FstClusLo)
}

/// SetFirstCluster splits cluster across FstClusHi/FstClusLo.
func (s *ShortEntry) SetFirstCluster(cluster uint32) {
	s.FstClusHi = uint16(cluster >> 16)
	s.FstClusLo = uint16(cluster & 0xFFFF)
}

/// IsDeleted reports whether this slot holds a removed entry.
func (s *ShortEntry) IsDeleted() bool { return s.Name[0] == EntryUnused }

/// IsFreeEnd reports whether this slot, and every slot after it, is
/// unused (never written).
func (s *ShortEntry) IsFreeEnd() bool { return s.Name[0] == EntryFreeEnd }

/// IsDir reports whether the entry names a directory.
func (s *ShortEntry) IsDir() bool { return s.Attr&AttrDirectory != 0 }

/// NameUpper returns the 8.3 name joined with its extension, upper-cased,
/// trailing pad stripped (e.g. "README  " + "TXT" -> "README.TXT").
func (s *ShortEntry) NameUpper() string {
	name := strings.TrimRight(string(s.Name[:]), " ")
	ext := strings.TrimRight(string(s.Ext[:]), " ")
	if ext == "" {
		return name
	}
	return name + "." + ext
}

/// NameLower is NameUpper lower-cased, matching how ls presents names.
func (s *ShortEntry) NameLower() string { return strings.ToLower(s.NameUpper()) }

/// Checksum computes the 11-byte short-name checksum every long entry in
/// this short entry's chain must match, per the standard FAT32 algorithm:
/// for each of the 11 name+ext bytes, sum = ((sum>>1) | (sum<<7)) + byte.
func (s *ShortEntry) Checksum() uint8 {
	var sum uint8
	for _, b := range s.Name {
		sum = (sum>>1 | sum<<7) + b
	}
	for _, b := range s.Ext {
		sum = (sum>>1 | sum<<7) + b
	}
	return sum
}

/// LongEntry is one 13-UCS-2-character chunk of a long file name.
type LongEntry struct {
	Order   uint8
	Name1   [5]uint16
	Attr    uint8 // always AttrLongName
	Type    uint8 // always 0
	Chksum  uint8
	Name2   [6]uint16
	FstClus uint16 // always 0
	Name3   [2]uint16
}

/// IsLongName reports whether this 32-byte slot is a long-name entry
/// rather than a short entry (both share the same Attr byte position).
func (l *LongEntry) IsLongName() bool { return l.Attr == AttrLongName }

/// IsDeleted reports whether this long entry's ordinal marks it removed.
func (l *LongEntry) IsDeleted() bool { return l.Order == EntryUnused }

/// IsFreeEnd reports end-of-directory, mirroring ShortEntry.IsFreeEnd.
func (l *LongEntry) IsFreeEnd() bool { return l.Order == EntryFreeEnd }

/// NameChunk reassembles this entry's 13 UTF-16 units into a Go string,
/// stopping at the first NUL or 0xFFFF pad unit.
func (l *LongEntry) NameChunk() string {
	units := make([]uint16, 0, longNameCap)
	units = append(units, l.Name1[:]...)
	units = append(units, l.Name2[:]...)
	units = append(units, l.Name3[:]...)
	for i, u := range units {
		if u == 0x0000 || u == 0xFFFF {
			units = units[:i]
			break
		}
	}
	return string(utf16.Decode(units))
}

/// SplitLongName breaks name into ordered 13-UTF16-unit chunks, padding
/// the final chunk with a NUL terminator followed by 0xFFFF filler,
/// matching long_name_split.
func SplitLongName(name string) [][longNameCap]uint16 {
	units := utf16.Encode([]rune(name))
	n := len(units)
	count := (n + longNameCap - 1) / longNameCap
	if count == 0 {
		count = 1
	}
	padded := make([]uint16, count*longNameCap)
	copy(padded, units)
	if n < len(padded) {
		padded[n] = 0x0000
		for i := n + 1; i < len(padded); i++ {
			padded[i] = 0xFFFF
		}
	}
	chunks := make([][longNameCap]uint16, count)
	for i := 0; i < count; i++ {
		var c [longNameCap]uint16
		copy(c[:], padded[i*longNameCap:(i+1)*longNameCap])
		chunks[i] = c
	}
	return chunks
}

/// NewLongEntry builds one long-name entry for ordinal order (with
/// LastLongEntry OR'd in by the caller when appropriate), a 13-unit name
/// chunk, and the checksum of the short entry it belongs to.
func NewLongEntry(order uint8, chunk [longNameCap]uint16, checksum uint8) *LongEntry {
	l := &LongEntry{Order: order, Attr: AttrLongName, Chksum: checksum}
	copy(l.Name1[:], chunk[0:5])
	copy(l.Name2[:], chunk[5:11])
	copy(l.Name3[:], chunk[11:13])
	return l
}

/// SplitNameExt splits "name.ext" into its base and extension, special
/// casing "." and ".." which have no extension.
func SplitNameExt(name string) (string, string) {
	switch name {
	case ".", "..":
		return name, ""
	}
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return name, ""
	}
	return name[:i], name[i+1:]
}

/// FormatShortName renders an already-short (<=8.<=3) name/ext pair into
/// space-padded, upper-cased 8.3 fixed arrays.
func FormatShortName(name string) (out8 [8]byte, ext3 [3]byte) {
	base, ext := SplitNameExt(name)
	for i := range out8 {
		out8[i] = ' '
	}
	for i := range ext3 {
		ext3[i] = ' '
	}
	for i := 0; i < len(base) && i < 8; i++ {
		out8[i] = upperASCII(base[i])
	}
	for i := 0; i < len(ext) && i < 3; i++ {
		ext3[i] = upperASCII(ext[i])
	}
	return
}

/// GenerateShortName derives an 8.3 alias for a long name that doesn't
/// itself fit 8.3, using the "first six chars + ~1" scheme dir.rs/lib.rs
/// use (collision numbering beyond ~1 isn't modeled, matching the
/// original's own comment that duplicate short aliases aren't handled).
func GenerateShortName(longName string) string {
	base, ext := SplitNameExt(longName)
	var b strings.Builder
	for i := 0; i < len(base) && i < 6; i++ {
		b.WriteByte(upperASCII(base[i]))
	}
	b.WriteString("~1")
	for b.Len() < 8 {
		b.WriteByte(' ')
	}
	for i := 0; i < 3; i++ {
		if i < len(ext) {
			b.WriteByte(upperASCII(ext[i]))
		} else {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

func upperASCII(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

/// NeedsLongName reports whether name doesn't fit the 8.3 short form and
/// therefore needs a long-name entry chain.
func NeedsLongName(name string) bool {
	base, ext := SplitNameExt(name)
	return len(base) > 8 || len(ext) > 3
}
