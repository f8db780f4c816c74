package prefetch

import "fmt"

// canonicalKey normalizes a raw key value to the string form used for cache
// lookups and deduplication. Different drivers hand back the same identifier
// as int, int64, or []byte; printing collapses those representations so the
// cache sees one key.
func canonicalKey(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(v)
}

// keyList accumulates distinct non-nil key values in first-seen order,
// keeping both the raw value (for data-source reads) and its canonical form
// (for cache lookups).
type keyList struct {
	seen  map[string]struct{}
	raw   []any
	canon []string
}

func newKeyList() *keyList {
	return &keyList{seen: make(map[string]struct{})}
}

// add records v if its canonical form has not been seen yet. Nil values must
// be filtered by the caller.
func (l *keyList) add(v any) {
	c := canonicalKey(v)
	if _, ok := l.seen[c]; ok {
		return
	}
	l.seen[c] = struct{}{}
	l.raw = append(l.raw, v)
	l.canon = append(l.canon, c)
}

func (l *keyList) len() int {
	return len(l.raw)
}
