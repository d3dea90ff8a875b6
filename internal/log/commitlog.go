package log

import (
	"bytes"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// CommitLog owns an ordered sequence of Segments, routes writes to
// the active (tail) Segment, rotates when the active Segment cannot
// fit the next record, and routes point reads by
// (segment_index, record_index).
//
// CommitLog is not safe for concurrent use: spec.md's non-goals rule
// out concurrent writers, so unlike the gRPC-fronted Log this package
// is descended from, it carries no internal mutex. Callers needing
// concurrent access must serialize externally.
type CommitLog struct {
	dir    string
	config Config
	logger zerolog.Logger

	// baseOffsets[i] is the base offset of segments[i], always known
	// even when segments[i] has been evicted (set to nil) by the
	// optional segmentCache.
	baseOffsets []uint64
	segments    []*Segment
	activeIndex int

	cache *segmentCache
}

// Open creates dir recursively if absent, then either recovers the
// Segments already on disk (if config.Recover) or opens Segment 0
// eagerly, establishing I6.
func Open(dir string, config Config) (*CommitLog, error) {
	const op = "CommitLog.Open"

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, newErr(op, KindIo, err)
	}

	cl := &CommitLog{
		dir:    dir,
		config: config,
		logger: zerolog.New(os.Stderr).With().Str("component", "commitlog").Str("dir", dir).Logger(),
	}

	if config.Recover {
		if err := cl.recoverSegments(); err != nil {
			return nil, err
		}
	}

	if len(cl.segments) == 0 {
		if err := cl.appendSegment(0); err != nil {
			return nil, err
		}
	}
	cl.activeIndex = len(cl.segments) - 1

	if config.MaxOpenSegments > 0 {
		cache, err := newSegmentCache(config.MaxOpenSegments, cl.evict)
		if err != nil {
			return nil, err
		}
		cl.cache = cache
		// Segments recovered from disk are closed and already mapped;
		// track them so the cap applies to them too.
		for i := 0; i < cl.activeIndex; i++ {
			cache.touch(uint64(i))
		}
	}

	return cl, nil
}

// recoverSegments discovers existing *.log files under dir, opens
// each in ascending base-offset order, and restores its write cursors
// by scanning its Index. See SPEC_FULL.md §4.6.
func (cl *CommitLog) recoverSegments() error {
	const op = "CommitLog.Open"

	entries, err := os.ReadDir(cl.dir)
	if err != nil {
		return newErr(op, KindIo, err)
	}

	var bases []uint64
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".log") {
			continue
		}
		stem := strings.TrimSuffix(name, ".log")
		base, err := strconv.ParseUint(stem, 10, 64)
		if err != nil {
			continue
		}
		bases = append(bases, base)
	}
	sort.Slice(bases, func(i, j int) bool { return bases[i] < bases[j] })

	for _, base := range bases {
		seg, err := OpenSegment(cl.dir, base, cl.config.SegmentBytes, cl.config.IndexBytes)
		if err != nil {
			return err
		}
		if err := seg.recover(); err != nil {
			return err
		}
		cl.baseOffsets = append(cl.baseOffsets, base)
		cl.segments = append(cl.segments, seg)
	}
	return nil
}

func (cl *CommitLog) appendSegment(base uint64) error {
	seg, err := OpenSegment(cl.dir, base, cl.config.SegmentBytes, cl.config.IndexBytes)
	if err != nil {
		return err
	}
	cl.baseOffsets = append(cl.baseOffsets, base)
	cl.segments = append(cl.segments, seg)
	cl.activeIndex = len(cl.segments) - 1
	return nil
}

// Write routes bytes to the active Segment, rotating to a fresh
// Segment first if the active one cannot fit the payload. Rotation is
// size-triggered only, per spec.md §4.4.
func (cl *CommitLog) Write(buf []byte) (int, error) {
	const op = "CommitLog.Write"

	if uint64(len(buf)) > cl.config.SegmentBytes {
		return 0, newErr(op, KindBufferSizeExceeded, nil)
	}

	active := cl.segments[cl.activeIndex]
	if !active.Fit(uint64(len(buf))) {
		if err := cl.rotate(); err != nil {
			return 0, err
		}
		active = cl.segments[cl.activeIndex]
	}

	return active.Write(buf)
}

// rotate flushes the active Segment and appends a new one whose base
// offset is the current segment count.
func (cl *CommitLog) rotate() error {
	active := cl.segments[cl.activeIndex]
	if err := active.Flush(); err != nil {
		return err
	}

	newBase := uint64(len(cl.segments))
	if cl.cache != nil {
		cl.cache.touch(uint64(cl.activeIndex))
	}
	if err := cl.appendSegment(newBase); err != nil {
		return err
	}

	cl.logger.Info().
		Uint64("closed_segment", active.BaseOffset()).
		Uint64("new_segment", newBase).
		Msg("segment rotated")
	return nil
}

// ReadAt returns the byte view for the recIdx-th record of the
// segIdx-th Segment.
func (cl *CommitLog) ReadAt(segIdx, recIdx uint64) ([]byte, error) {
	const op = "CommitLog.ReadAt"

	if segIdx >= uint64(len(cl.segments)) {
		return nil, newErr(op, KindSegmentUnavailable, nil)
	}

	seg, err := cl.segmentAt(segIdx)
	if err != nil {
		return nil, err
	}
	return seg.ReadAt(recIdx)
}

// segmentAt returns the live *Segment for segIdx, reopening it via
// the segmentCache's bookkeeping if it was previously evicted. The
// active segment is always resident and bypasses the cache.
func (cl *CommitLog) segmentAt(segIdx uint64) (*Segment, error) {
	if cl.cache == nil || segIdx == uint64(cl.activeIndex) {
		return cl.segments[segIdx], nil
	}

	cl.cache.touch(segIdx)
	if cl.segments[segIdx] == nil {
		seg, err := OpenSegment(cl.dir, cl.baseOffsets[segIdx], cl.config.SegmentBytes, cl.config.IndexBytes)
		if err != nil {
			return nil, err
		}
		// OpenSegment always starts a fresh Segment at cursor 0; without
		// restoring it from the Index's live prefix, RecordCount() would
		// read back as 0 and ReadAt would reject every k even though the
		// bytes are still on disk.
		if err := seg.recover(); err != nil {
			seg.Close()
			return nil, err
		}
		cl.segments[segIdx] = seg
	}
	return cl.segments[segIdx], nil
}

// evict is the segmentCache's onEvict callback: it closes the mapped
// Segment at index and nils the slot, leaving baseOffsets[index]
// intact so segmentAt can reopen it and restore its cursors later.
func (cl *CommitLog) evict(index uint64) {
	if int(index) == cl.activeIndex {
		return
	}
	if seg := cl.segments[index]; seg != nil {
		_ = seg.Close()
		cl.segments[index] = nil
	}
}

// Next advances addr by one record within its Segment.
func (cl *CommitLog) Next(addr Address) Address {
	return addr.withinSegment(1)
}

// Scan walks every record from the start of the log in order,
// invoking fn with each record's Address and byte view. It implements
// the two-strike termination rule from spec.md §4.4: scanning stops
// once a within-segment read fails and the following segment's first
// record also fails to read.
func (cl *CommitLog) Scan(fn func(Address, []byte) error) error {
	addr := Address{Segment: 0, Record: 0}
	for {
		buf, err := cl.ReadAt(addr.Segment, addr.Record)
		if err == nil {
			if err := fn(addr, buf); err != nil {
				return err
			}
			addr = cl.Next(addr)
			continue
		}

		// First strike: the within-segment read failed. Try the first
		// record of the next segment.
		next := addr.nextSegment()
		buf, err = cl.ReadAt(next.Segment, next.Record)
		if err != nil {
			// Second strike: end of log.
			return nil
		}
		if err := fn(next, buf); err != nil {
			return err
		}
		addr = cl.Next(next)
	}
}

// Reader returns an io.Reader over every record in the log, in order,
// concatenated with no framing. Scan runs to completion up front and
// each record's borrowed view is wrapped in its own bytes.Reader, then
// chained with io.MultiReader — the same shape as the teacher's
// Log.Reader(). This avoids pairing Scan with a pipe and a goroutine,
// which would stay blocked forever (holding a mapped Segment open) if
// a caller stops reading before draining the whole log.
func (cl *CommitLog) Reader() io.Reader {
	var readers []io.Reader
	_ = cl.Scan(func(_ Address, buf []byte) error {
		readers = append(readers, bytes.NewReader(buf))
		return nil
	})
	return io.MultiReader(readers...)
}

// SegmentCount returns the number of Segments the CommitLog currently
// owns, including any rotated-out, read-only ones.
func (cl *CommitLog) SegmentCount() int { return len(cl.segments) }

// ActiveIndex returns the index of the Segment currently accepting
// writes.
func (cl *CommitLog) ActiveIndex() int { return cl.activeIndex }

// Flush flushes every Segment currently resident in memory.
func (cl *CommitLog) Flush() error {
	for _, seg := range cl.segments {
		if seg == nil {
			continue
		}
		if err := seg.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// Close releases every Segment's mapping. The CommitLog must not be
// used afterward.
func (cl *CommitLog) Close() error {
	for _, seg := range cl.segments {
		if seg == nil {
			continue
		}
		if err := seg.Close(); err != nil {
			return err
		}
	}
	return nil
}
