package log

// Address is the opaque (segment_index, record_index) pair spec.md
// §4.4 uses to identify a record externally. It carries no meaning
// outside the CommitLog that produced it.
type Address struct {
	Segment uint64
	Record  uint64
}

// withinSegment returns the Address n records after a, inside the
// same Segment. Grounded on original_source/commit_log/src/reader.rs
// Reader::record_after / Reader::next.
func (a Address) withinSegment(n uint64) Address {
	return Address{Segment: a.Segment, Record: a.Record + n}
}

// nextSegment returns the first Address of the following Segment.
func (a Address) nextSegment() Address {
	return Address{Segment: a.Segment + 1, Record: 0}
}
