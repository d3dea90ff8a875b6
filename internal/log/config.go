package log

import "fmt"

// Config bounds the size of every Segment's Log and Index file and
// tunes the optional recovery/eviction extensions described in
// SPEC_FULL.md §4.6. DefaultConfig mirrors the sizes a development
// instance would use; production callers are expected to size these
// to their workload.
type Config struct {
	// SegmentBytes is the fixed capacity, in bytes, of every Segment's
	// Log file. Must be >= 1.
	SegmentBytes uint64
	// IndexBytes is the fixed capacity, in bytes, of every Segment's
	// Index file. Must be >= entryWidth (20), so every Segment can
	// hold at least one entry.
	IndexBytes uint64
	// Recover, when true, makes CommitLog.Open scan each reopened
	// Segment's Index for its live prefix and restore write cursors
	// from it instead of resetting them to zero. See SPEC_FULL.md
	// §4.6 "Reopen / recovery protocol".
	Recover bool
	// MaxOpenSegments caps the number of closed Segments a CommitLog
	// keeps mapped for reads. Zero means unbounded, matching the
	// core's documented baseline (spec.md §5: "no LRU or
	// file-descriptor cap in the core"). The active Segment is never
	// evicted regardless of this value.
	MaxOpenSegments int
}

// DefaultConfig returns a Config sized for local development and
// tests: a 1MB Log and a 64KB Index per Segment, no recovery, no
// eviction cap.
func DefaultConfig() Config {
	return Config{
		SegmentBytes: 1 << 20,
		IndexBytes:   64 << 10,
	}
}

// Validate enforces the edge policies spec.md §4.4 documents as
// undefined below: segment_size must be at least 1 byte and
// index_size must be able to hold at least one entry.
func (c Config) Validate() error {
	if c.SegmentBytes < 1 {
		return newErr("Config.Validate", KindIo, fmt.Errorf("SegmentBytes must be >= 1, got %d", c.SegmentBytes))
	}
	if c.IndexBytes < entryWidth {
		return newErr("Config.Validate", KindIo, fmt.Errorf("IndexBytes must be >= %d, got %d", entryWidth, c.IndexBytes))
	}
	return nil
}
