package log

// Segment pairs one Log with one Index sharing a base offset. It is
// the atomic unit of append: a write is only durable to readers once
// both the Index entry and the Log payload are in place.
type Segment struct {
	baseOffset uint64
	log        *Log
	index      *Index

	// dangling is set once an Index.Write succeeds but the matching
	// Log.Write fails in the same call. spec.md §4.3/§7 calls this
	// state fatal: the Segment must refuse further appends, since a
	// reader may already observe the orphaned Index entry via the
	// mapping.
	dangling bool
}

// OpenSegment opens the Log and Index files for baseOffset under dir.
func OpenSegment(dir string, baseOffset, maxLogSize, maxIndexSize uint64) (*Segment, error) {
	l, err := OpenLog(dir, baseOffset, maxLogSize)
	if err != nil {
		return nil, err
	}

	idx, err := OpenIndex(dir, baseOffset, maxIndexSize)
	if err != nil {
		l.Close()
		return nil, err
	}

	return &Segment{baseOffset: baseOffset, log: l, index: idx}, nil
}

// BaseOffset returns the Segment's ordinal position in its CommitLog.
func (s *Segment) BaseOffset() uint64 { return s.baseOffset }

// Fit reports whether the Segment can accept one more record of n
// bytes: both the Log must have room for the payload and the Index
// must have room for one more entry.
func (s *Segment) Fit(n uint64) bool {
	return s.log.Fit(n) && s.index.Fit(1)
}

// Write appends bytes to the Log and records its (offset, size) in
// the Index. The steps are ordered: the Index entry is written
// first, capturing the Log's current offset; only then is the
// payload written to the Log. If the Index write fails, the Segment
// is untouched. If the Log write fails after the Index write
// succeeded, the Segment is left in the dangling-entry state
// (spec.md §4.3/§7) and permanently refuses further writes.
func (s *Segment) Write(buf []byte) (int, error) {
	const op = "Segment.Write"
	if s.dangling {
		return 0, newErr(op, KindIo, errDanglingSegment)
	}

	logOffset := s.log.Offset()
	if _, err := s.index.Write(Entry{Offset: logOffset, Size: uint64(len(buf))}); err != nil {
		return 0, err
	}

	n, err := s.log.Write(buf)
	if err != nil {
		s.dangling = true
		return 0, err
	}
	return n, nil
}

// ReadAt returns the k-th record written to this Segment. Index.ReadAt
// alone cannot detect end-of-data: it only errors once k runs past the
// Index file's physical capacity, and happily returns a valid-looking
// Entry{0,0} for any in-capacity slot that simply hasn't been written
// yet. Segment.ReadAt bounds k by the actual record count so reading
// past the live records fails deterministically, which is what lets
// CommitLog.Scan's two-strike rule terminate.
func (s *Segment) ReadAt(k uint64) ([]byte, error) {
	if k >= s.RecordCount() {
		return nil, newErr("Segment.ReadAt", KindInvalidIndex, nil)
	}
	entry, err := s.index.ReadAt(k)
	if err != nil {
		return nil, err
	}
	return s.log.ReadAt(entry.Offset, entry.Size)
}

// RecordCount returns the number of records appended to this Segment.
func (s *Segment) RecordCount() uint64 { return s.index.EntryCount() }

// Flush flushes the Index then the Log, in that order, so an observer
// that sees an entry on disk can trust the payload range below the
// Log's flushed cursor.
func (s *Segment) Flush() error {
	if err := s.index.Flush(); err != nil {
		return err
	}
	return s.log.Flush()
}

// Close releases both mappings. Once closed, the Segment must not be
// used; CommitLog calls this when closing the whole log, when the
// segmentCache evicts a closed Segment, and when a reopened Segment
// fails to recover.
func (s *Segment) Close() error {
	if err := s.index.Close(); err != nil {
		return err
	}
	return s.log.Close()
}

// recover restores the Segment's write cursors by scanning the
// Index's live prefix: entries are read forward from 0 until the
// first all-zero (offset==0 && size==0) entry or a parse failure is
// hit. The Log's cursor is restored from the last live entry's
// offset+size. See SPEC_FULL.md §4.6.
//
// Known limitation: a genuine empty write (an Entry{0,0} for a
// zero-length record, permitted by spec.md §4.4) is bit-for-bit
// identical to an untouched, zero-padded entry. A Segment whose very
// first record was an empty write therefore recovers as empty. This
// matches the ambiguity spec.md §9 already calls out for bounding
// scans by record count; recovery has no extra information to
// disambiguate it.
func (s *Segment) recover() error {
	var k uint64
	var last Entry
	var sawAny bool
	for {
		entry, err := s.index.ReadAt(k)
		if err != nil {
			break
		}
		if entry.Offset == 0 && entry.Size == 0 {
			break
		}
		last = entry
		sawAny = true
		k++
	}
	s.index.setCursor(k * entryWidth)
	if sawAny {
		s.log.setCursor(last.Offset + last.Size)
	}
	return nil
}
