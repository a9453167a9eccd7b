package dirent

import "encoding/binary"

/// MarshalShort encodes s into the fixed 32-byte on-disk short entry
/// layout.
func (s *ShortEntry) MarshalShort() [DirentSize]byte {
	var b [DirentSize]byte
	copy(b[0:8], s.Name[:])
	copy(b[8:11], s.Ext[:])
	b[11] = s.Attr
	b[12] = s.NTRes
	b[13] = s.CrtTimeTen
	binary.LittleEndian.PutUint16(b[14:16], s.CrtTime)
	binary.LittleEndian.PutUint16(b[16:18], s.CrtDate)
	binary.LittleEndian.PutUint16(b[18:20], s.LstAccDate)
	binary.LittleEndian.PutUint16(b[20:22], s.FstClusHi)
	binary.LittleEndian.PutUint16(b[22:24], s.WrtTime)
	binary.LittleEndian.PutUint16(b[24:26], s.WrtDate)
	binary.LittleEndian.PutUint16(b[26:28], s.FstClusLo)
	binary.LittleEndian.PutUint32(b[28:32], s.FileSize)
	return b
}

/// UnmarshalShort decodes a fixed 32-byte on-disk slot into a ShortEntry.
func UnmarshalShort(b []byte) *ShortEntry {
	s := &ShortEntry{}
	copy(s.Name[:], b[0:8])
	copy(s.Ext[:], b[8:11])
	s.Attr = b[11]
	s.NTRes = b[12]
	s.CrtTimeTen = b[13]
	s.CrtTime = binary.LittleEndian.Uint16(b[14:16])
	s.CrtDate = binary.LittleEndian.Uint16(b[16:18])
	s.LstAccDate = binary.LittleEndian.Uint16(b[18:20])
	s.FstClusHi = binary.LittleEndian.Uint16(b[20:22])
	s.WrtTime = binary.LittleEndian.Uint16(b[22:24])
	s.WrtDate = binary.LittleEndian.Uint16(b[24:26])
	s.FstClusLo = binary.LittleEndian.Uint16(b[26:28])
	s.FileSize = binary.LittleEndian.Uint32(b[28:32])
	return s
}

/// MarshalLong encodes l into the fixed 32-byte on-disk long-name entry
/// layout.
func (l *LongEntry) MarshalLong() [DirentSize]byte {
	var b [DirentSize]byte
	b[0] = l.Order
	putU16s(b[1:11], l.Name1[:])
	b[11] = l.Attr
	b[12] = l.Type
	b[13] = l.Chksum
	putU16s(b[14:26], l.Name2[:])
	binary.LittleEndian.PutUint16(b[26:28], l.FstClus)
	putU16s(b[28:32], l.Name3[:])
	return b
}

/// UnmarshalLong decodes a fixed 32-byte on-disk slot into a LongEntry.
func UnmarshalLong(b []byte) *LongEntry {
	l := &LongEntry{}
	l.Order = b[0]
	getU16s(l.Name1[:], b[1:11])
	l.Attr = b[11]
	l.Type = b[12]
	l.Chksum = b[13]
	getU16s(l.Name2[:], b[14:26])
	l.FstClus = binary.LittleEndian.Uint16(b[26:28])
	getU16s(l.Name3[:], b[28:32])
	return l
}

func putU16s(dst []byte, src []uint16) {
	for i, v := range src {
		binary.LittleEndian.PutUint16(dst[i*2:i*2+2], v)
	}
}

func getU16s(dst []uint16, src []byte) {
	for i := range dst {
		dst[i] = binary.LittleEndian.Uint16(src[i*2 : i*2+2])
	}
}

/// attrAt peeks the attribute byte shared by both entry layouts at slot
/// offset 11, letting callers classify a raw 32-byte slot before fully
/// decoding it.
func attrAt(b []byte) uint8 { return b[11] }

/// firstByteAt peeks Name[0]/Order, shared at slot offset 0 by both
/// layouts.
func firstByteAt(b []byte) uint8 { return b[0] }
