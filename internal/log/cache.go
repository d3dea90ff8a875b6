package log

import lru "github.com/hashicorp/golang-lru"

// segmentCache bounds how many closed Segments a CommitLog keeps
// mapped for reads, answering the open question spec.md §9 leaves
// deferred. It tracks segment indices, not the Segments themselves;
// CommitLog owns the Segment pointers and reopens one on demand when
// the cache reports it evicted. The active Segment is never given to
// the cache, so it is never a candidate for eviction.
//
// Shape grounded on shake-karrot-lightkafka/internal/resource/segment_cache.go
// (LRU-of-open-resources), rebuilt on hashicorp/golang-lru instead of
// a hand-rolled container/list, since that library is already part of
// the dependency graph this module's teacher pulls in transitively.
type segmentCache struct {
	lru *lru.Cache
}

func newSegmentCache(capacity int, onEvict func(index uint64)) (*segmentCache, error) {
	c, err := lru.NewWithEvict(capacity, func(key, _ interface{}) {
		onEvict(key.(uint64))
	})
	if err != nil {
		return nil, newErr("segmentCache.New", KindIo, err)
	}
	return &segmentCache{lru: c}, nil
}

// touch marks index as recently used, adding it to the cache if
// absent. Adding may trigger eviction of the least recently used
// other index, invoking the onEvict callback supplied at
// construction.
func (c *segmentCache) touch(index uint64) {
	c.lru.Add(index, struct{}{})
}
