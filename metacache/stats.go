package metacache

// Stats tracks runtime counters for one cache: hits, misses, LRU
// evictions, and GC collections. Shaped directly on the teacher's own
// Stats struct (Hits/Misses/Evictions), with GCCollections added since
// this cache distinguishes capacity eviction from time-based collection.
type Stats struct {
	Hits          uint64
	Misses        uint64
	Evictions     uint64
	GCCollections uint64
}

// HitRatio returns Hits / (Hits + Misses), or 0 when nothing has been
// looked up yet.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
