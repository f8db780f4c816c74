package prefetch

// RelationStats is a point-in-time snapshot of one relation's counters.
// Counts accumulate over the engine's lifetime; cache hits and misses are
// per distinct key per chunk.
type RelationStats struct {
	Name            string
	Eager           bool
	Multivalued     bool
	CacheHits       int64
	CacheMisses     int64
	KeysFetched     int64
	EntitiesFetched int64
	Evictions       int64
	AssociationRows int64
	CacheLen        int64
	CacheCap        int64
}

// Stats returns a snapshot per relation, in spec order. Safe to call while
// another goroutine runs ProcessChunk; cache length is refreshed at chunk
// boundaries.
func (e *Engine) Stats() []RelationStats {
	stats := make([]RelationStats, 0, len(e.relations))
	for _, rel := range e.relations {
		stats = append(stats, RelationStats{
			Name:            rel.spec.Name,
			Eager:           rel.spec.Eager,
			Multivalued:     rel.spec.Multivalued,
			CacheHits:       rel.cacheHits.Load(),
			CacheMisses:     rel.cacheMisses.Load(),
			KeysFetched:     rel.keysFetched.Load(),
			EntitiesFetched: rel.entitiesFetched.Load(),
			Evictions:       rel.evictions.Load(),
			AssociationRows: rel.associationRows.Load(),
			CacheLen:        rel.cacheLen.Load(),
			CacheCap:        int64(rel.spec.CacheCapacity),
		})
	}
	return stats
}
