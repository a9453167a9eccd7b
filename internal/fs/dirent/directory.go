package dirent

import "strings"

/// EntryReaderWriter is the minimal surface a directory's backing file
/// must provide: byte-offset read/write over its cluster chain. Kept
/// narrow so this package has no dependency on internal/fs/vfile;
/// vfile.File implements it directly.
type EntryReaderWriter interface {
	ReadAt(off int64, buf []byte) (int, error)
	WriteAt(off int64, buf []byte) (int, error)
}

/// Found is one resolved directory lookup: the short entry itself, its
/// byte offset within the directory, and the offsets of every long-name
/// entry in its chain (empty when the entry has no long name), oldest
/// (first-written, highest order) entry first — matching find_by_lfn's
/// lde_pos_vec.
type Found struct {
	Short    *ShortEntry
	ShortOff int64
	LongOffs []int64
	Name     string
}

/// errNotFound is returned when a name isn't present in the directory.
type errNotFound struct{ name string }

func (e errNotFound) Error() string { return "dirent: no entry named " + e.name }

/// FindByName resolves name against the entries in dir, deciding between
/// the short-name and long-name scan the way find_by_name does.
func FindByName(dir EntryReaderWriter, name string) (*Found, error) {
	if NeedsLongName(name) {
		return findByLongName(dir, name)
	}
	f, err := findByShortName(dir, name)
	if err == nil && f != nil {
		return f, nil
	}
	// A short-fitting name may still have been stored with a long entry
	// (Linux always writes one long entry alongside a short one, per
	// dir.rs's create comment); fall back to the long-name scan.
	return findByLongName(dir, name)
}

func findByShortName(dir EntryReaderWriter, name string) (*Found, error) {
	upper := strings.ToUpper(name)
	var buf [DirentSize]byte
	var off int64
	for {
		n, err := dir.ReadAt(off, buf[:])
		if err != nil || n != DirentSize {
			return nil, errNotFound{name}
		}
		if firstByteAt(buf[:]) == EntryFreeEnd {
			return nil, errNotFound{name}
		}
		if firstByteAt(buf[:]) != EntryUnused && attrAt(buf[:]) != AttrLongName {
			sde := UnmarshalShort(buf[:])
			if sde.NameUpper() == upper {
				return &Found{Short: sde, ShortOff: off, Name: name}, nil
			}
		}
		off += DirentSize
	}
}

func findByLongName(dir EntryReaderWriter, name string) (*Found, error) {
	chunks := SplitLongName(name)
	wantCount := len(chunks)
	wantLast := chunkToString(chunks[wantCount-1])

	var buf [DirentSize]byte
	var index int64
	for {
		n, err := dir.ReadAt(index, buf[:])
		if err != nil || n != DirentSize {
			return nil, errNotFound{name}
		}
		if firstByteAt(buf[:]) == EntryFreeEnd {
			return nil, errNotFound{name}
		}
		lde := UnmarshalLong(buf[:])
		if lde.IsLongName() && lde.NameChunk() == wantLast {
			order := lde.Order
			if order&LastLongEntry == 0 || order == EntryUnused {
				index += DirentSize
				continue
			}
			order ^= LastLongEntry
			if int(order) != wantCount {
				index += DirentSize
				continue
			}
			match := true
			for i := 1; i < int(order); i++ {
				n, err := dir.ReadAt(index+int64(i)*DirentSize, buf[:])
				if err != nil || n != DirentSize {
					return nil, errNotFound{name}
				}
				cur := UnmarshalLong(buf[:])
				if !cur.IsLongName() || cur.NameChunk() != chunkToString(chunks[wantCount-1-i]) {
					match = false
					break
				}
			}
			if match {
				checksum := lde.Chksum
				sdeOff := index + int64(wantCount)*DirentSize
				n, err := dir.ReadAt(sdeOff, buf[:])
				if err != nil || n != DirentSize {
					return nil, errNotFound{name}
				}
				sde := UnmarshalShort(buf[:])
				if !sde.IsDeleted() && checksum == sde.Checksum() {
					longOffs := make([]int64, wantCount)
					for i := 0; i < wantCount; i++ {
						longOffs[i] = index + int64(i)*DirentSize
					}
					return &Found{Short: sde, ShortOff: sdeOff, LongOffs: longOffs, Name: name}, nil
				}
			}
		}
		index += DirentSize
	}
}

func chunkToString(chunk [13]uint16) string {
	l := &LongEntry{}
	copy(l.Name1[:], chunk[0:5])
	copy(l.Name2[:], chunk[5:11])
	copy(l.Name3[:], chunk[11:13])
	return l.NameChunk()
}

/// ListedEntry is one entry returned by Ls: its resolved name and raw
/// attribute byte.
type ListedEntry struct {
	Name string
	Attr uint8
}

/// Ls returns every live (non-deleted) entry in dir with its resolved
/// name (one entry per file, long name reassembled from its chained
/// entries when present) and its real attribute byte taken from the
/// trailing short entry — grounded on ls_with_attr's chain-walk, but
/// folding the long-name chain and its short entry into a single result
/// rather than ls_with_attr's literal behavior of also emitting a
/// spurious extra listing for the long-name chain itself (see
/// DESIGN.md).
func Ls(dir EntryReaderWriter) ([]ListedEntry, error) {
	var out []ListedEntry
	var buf [DirentSize]byte
	var offset int64
	var pendingName string
	for {
		n, err := dir.ReadAt(offset, buf[:])
		if err != nil || n != DirentSize || firstByteAt(buf[:]) == EntryFreeEnd {
			return out, nil
		}
		if firstByteAt(buf[:]) == EntryUnused {
			pendingName = ""
			offset += DirentSize
			continue
		}
		if attrAt(buf[:]) == AttrLongName {
			lde := UnmarshalLong(buf[:])
			pendingName = lde.NameChunk() + pendingName
		} else {
			sde := UnmarshalShort(buf[:])
			name := pendingName
			if name == "" {
				name = sde.NameLower()
			}
			out = append(out, ListedEntry{Name: name, Attr: sde.Attr})
			pendingName = ""
		}
		offset += DirentSize
	}
}

/// EmptyEntrySlot finds the byte offset of the first run of need
/// consecutive free (deleted or never-written) 32-byte slots in dir.
/// empty_entry_index returns a single slot, but a caller about to write
/// a long-name chain needs the whole run free — a lone deleted slot
/// wedged between live entries must not be handed out for a multi-entry
/// write. Never-written territory (EOF or a free-and-last marker)
/// counts as an unbounded run, keeping the write-past-the-end fallback
/// that extends the directory by cluster allocation.
func EmptyEntrySlot(dir EntryReaderWriter, need int) (int64, error) {
	var buf [DirentSize]byte
	var off, runStart int64
	run := 0
	for {
		n, err := dir.ReadAt(off, buf[:])
		if err != nil || n == 0 || firstByteAt(buf[:]) == EntryFreeEnd {
			if run == 0 {
				runStart = off
			}
			return runStart, nil
		}
		if firstByteAt(buf[:]) == EntryUnused {
			if run == 0 {
				runStart = off
			}
			run++
			if run >= need {
				return runStart, nil
			}
		} else {
			run = 0
		}
		off += DirentSize
	}
}

/// CreateEntry writes a short entry preceded by a chain of long-name
/// entries for name/firstCluster/attr into the first free slot(s) of dir,
/// and returns the resulting short entry. The long-name chain is written
/// for every name, including one that fits 8.3, as Linux does per dir.rs.
func CreateEntry(dir EntryReaderWriter, name string, firstCluster uint32, attr uint8) (*Found, error) {
	var sde *ShortEntry
	if NeedsLongName(name) {
		alias := GenerateShortName(name)
		an8, aext3 := FormatShortName(alias)
		sde = NewShortEntry(an8, aext3, firstCluster, attr)
	} else {
		n8, ext3 := FormatShortName(name)
		sde = NewShortEntry(n8, ext3, firstCluster, attr)
	}

	checksum := sde.Checksum()
	chunks := SplitLongName(name)

	off, err := EmptyEntrySlot(dir, len(chunks)+1)
	if err != nil {
		return nil, err
	}
	for i := len(chunks) - 1; i >= 0; i-- {
		order := uint8(i + 1)
		if i == len(chunks)-1 {
			order |= LastLongEntry
		}
		lde := NewLongEntry(order, chunks[i], checksum)
		b := lde.MarshalLong()
		if n, err := dir.WriteAt(off, b[:]); err != nil || n != DirentSize {
			return nil, err
		}
		off += DirentSize
	}

	b := sde.MarshalShort()
	if n, err := dir.WriteAt(off, b[:]); err != nil || n != DirentSize {
		return nil, err
	}

	return &Found{Short: sde, ShortOff: off, Name: name}, nil
}

/// MarkDeleted overwrites the short entry (and its long-name chain, if
/// any) at f with the deleted marker.
func MarkDeleted(dir EntryReaderWriter, f *Found) error {
	for _, off := range f.LongOffs {
		var buf [DirentSize]byte
		if _, err := dir.ReadAt(off, buf[:]); err != nil {
			return err
		}
		buf[0] = EntryUnused
		if _, err := dir.WriteAt(off, buf[:]); err != nil {
			return err
		}
	}
	var buf [DirentSize]byte
	if _, err := dir.ReadAt(f.ShortOff, buf[:]); err != nil {
		return err
	}
	buf[0] = EntryUnused
	_, err := dir.WriteAt(f.ShortOff, buf[:])
	return err
}
