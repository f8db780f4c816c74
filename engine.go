// Package prefetch memoizes related-record lookups across successive chunks
// of a large processing run. Each configured relation keeps a bounded LRU
// cache of related entities; for every chunk the engine resolves the keys the
// chunk needs, reads only the uncached ones in a single bulk request per
// relation, and attaches the resolved entities back onto the records in
// place. Single-valued (foreign-key) relations and multi-valued relations
// resolved through association rows are both supported.
package prefetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/xelixdev/memoized-prefetch/lru"
)

// DefaultKeySuffix is appended to a path's final hop to locate the attribute
// holding a single-valued relation's key ("supplier" reads "supplier_id").
const DefaultKeySuffix = "_id"

// Engine resolves and attaches related records chunk by chunk, memoizing
// fetched entities in per-relation LRU caches that persist across chunks.
//
// The caches are not synchronized: ProcessChunk must not be invoked
// concurrently on the same engine without external locking. Stats may be read
// concurrently with processing.
type Engine struct {
	relations []*relation
	keySuffix string
	logger    *slog.Logger
}

// relation pairs a validated spec with its cache and counters.
type relation struct {
	spec  RelationSpec
	paths []Path
	cache *lru.Cache[string, any]

	cacheHits       atomic.Int64
	cacheMisses     atomic.Int64
	keysFetched     atomic.Int64
	entitiesFetched atomic.Int64
	evictions       atomic.Int64
	associationRows atomic.Int64
	cacheLen        atomic.Int64
}

// Option adjusts engine construction.
type Option func(*Engine)

// WithLogger sets the logger for per-chunk debug output. The default logger
// discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithKeySuffix overrides the suffix joining a relationship attribute to its
// key attribute. The default is DefaultKeySuffix.
func WithKeySuffix(suffix string) Option {
	return func(e *Engine) {
		e.keySuffix = suffix
	}
}

// New validates the given relation specs and builds an engine. Relations
// marked Eager have their entire source loaded into the cache here, before
// any chunk is processed; the context bounds those reads.
func New(ctx context.Context, specs []RelationSpec, opts ...Option) (*Engine, error) {
	e := &Engine{
		keySuffix: DefaultKeySuffix,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}

	names := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		normalized, err := spec.normalize()
		if err != nil {
			return nil, err
		}
		if _, dup := names[normalized.Name]; dup {
			return nil, &ConfigError{
				Field:   normalized.Name + ".name",
				Message: "duplicate relation name",
			}
		}
		names[normalized.Name] = struct{}{}

		rel := &relation{
			spec:  normalized,
			paths: make([]Path, 0, len(normalized.Paths)),
			cache: lru.New[string, any](normalized.CacheCapacity),
		}
		rel.cache.OnEvict(func(string, any) {
			rel.evictions.Add(1)
		})
		for _, expr := range normalized.Paths {
			path, err := ParsePath(expr)
			if err != nil {
				return nil, err // normalize already parsed these
			}
			rel.paths = append(rel.paths, path)
		}
		e.relations = append(e.relations, rel)
	}

	for _, rel := range e.relations {
		if !rel.spec.Eager {
			continue
		}
		if err := e.warm(ctx, rel); err != nil {
			return nil, fmt.Errorf("relation %q: %w", rel.spec.Name, err)
		}
	}
	return e, nil
}

// warm loads every entity from the relation's source, bypassing the capacity
// bound. After warming, the cache is authoritative: a key it does not hold
// has no related entity and is never fetched.
func (e *Engine) warm(ctx context.Context, rel *relation) error {
	entities, err := rel.spec.Source.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("read all: %w", err)
	}
	for key, entity := range entities {
		rel.cache.Warm(canonicalKey(key), entity)
	}
	rel.cacheLen.Store(int64(rel.cache.Len()))
	e.logger.Debug("cache warmed",
		slog.String("relation", rel.spec.Name),
		slog.Int("entities", len(entities)),
	)
	return nil
}

// ProcessChunk resolves every configured relation for records and attaches
// the results in place. For each relation it issues at most one bulk entity
// read covering the chunk's uncached keys; multi-valued relations add one
// association read per chunk. Records already satisfiable from cache cause no
// reads at all.
//
// Errors from data sources propagate unchanged apart from added context; the
// engine never retries. ProcessChunk is not safe for concurrent use on the
// same engine.
func (e *Engine) ProcessChunk(ctx context.Context, records []Record) error {
	for _, rel := range e.relations {
		var err error
		if rel.spec.Multivalued {
			err = e.processMultivalued(ctx, rel, records)
		} else {
			err = e.processSingle(ctx, rel, records)
		}
		if err != nil {
			return fmt.Errorf("relation %q: %w", rel.spec.Name, err)
		}
		rel.cacheLen.Store(int64(rel.cache.Len()))
	}
	return nil
}

// binding remembers where a resolved key came from so the attach pass does
// not walk the record graph a second time.
type binding struct {
	record Record
	path   Path
	canon  string
}

func (e *Engine) processSingle(ctx context.Context, rel *relation, records []Record) error {
	// Collect the distinct keys the chunk needs, and where each one came
	// from. Nil keys mean "no related entity" and are skipped entirely.
	keys := newKeyList()
	bindings := make([]binding, 0, len(records)*len(rel.paths))
	for _, record := range records {
		for _, path := range rel.paths {
			key, err := e.resolveKey(record, path)
			if err != nil {
				return err
			}
			if key == nil {
				continue
			}
			keys.add(key)
			bindings = append(bindings, binding{record: record, path: path, canon: canonicalKey(key)})
		}
	}

	staged, fetched, err := e.resolveEntities(ctx, rel, keys)
	if err != nil {
		return err
	}

	for _, b := range bindings {
		entity, ok := staged[b.canon]
		if !ok || entity == nil {
			continue
		}
		if err := Attach(b.record, b.path, entity); err != nil {
			return err
		}
	}

	e.logger.Debug("chunk processed",
		slog.String("relation", rel.spec.Name),
		slog.Int("records", len(records)),
		slog.Int("distinct_keys", keys.len()),
		slog.Int("fetched", fetched),
	)
	return nil
}

func (e *Engine) processMultivalued(ctx context.Context, rel *relation, records []Record) error {
	identity := rel.spec.IdentityField

	// Root identities, deduplicated in chunk order. Roots with a nil
	// identity cannot have association rows; they still receive an empty
	// collection below.
	ids := newKeyList()
	for _, record := range records {
		id, err := fieldOf(record, identity)
		if err != nil {
			return err
		}
		if id == nil {
			continue
		}
		ids.add(id)
	}

	var rows []AssociationRow
	if ids.len() > 0 {
		var err error
		rows, err = rel.spec.Associations.ReadRowsBySourceIDs(
			ctx, rel.spec.AssociationSourceField, rel.spec.AssociationTargetField, ids.raw,
		)
		if err != nil {
			return fmt.Errorf("read associations: %w", err)
		}
		rel.associationRows.Add(int64(len(rows)))
	}

	targets := newKeyList()
	for _, row := range rows {
		if row.SourceID == nil || row.TargetID == nil {
			continue
		}
		targets.add(row.TargetID)
	}

	staged, fetched, err := e.resolveEntities(ctx, rel, targets)
	if err != nil {
		return err
	}

	// Group resolved targets by source id, preserving row order and
	// dropping duplicate and unresolved targets.
	grouped := make(map[string][]any, ids.len())
	members := make(map[string]map[string]struct{}, ids.len())
	for _, row := range rows {
		if row.SourceID == nil || row.TargetID == nil {
			continue
		}
		source := canonicalKey(row.SourceID)
		target := canonicalKey(row.TargetID)
		entity, ok := staged[target]
		if !ok || entity == nil {
			continue
		}
		if _, dup := members[source][target]; dup {
			continue
		}
		if members[source] == nil {
			members[source] = make(map[string]struct{})
		}
		members[source][target] = struct{}{}
		grouped[source] = append(grouped[source], entity)
	}

	// Every root gets a collection, empty when it has no rows.
	for _, record := range records {
		id, err := fieldOf(record, identity)
		if err != nil {
			return err
		}
		collection := []any{}
		if id != nil {
			if group, ok := grouped[canonicalKey(id)]; ok {
				collection = group
			}
		}
		for _, path := range rel.paths {
			if err := Attach(record, path, collection); err != nil {
				return err
			}
		}
	}

	e.logger.Debug("chunk processed",
		slog.String("relation", rel.spec.Name),
		slog.Int("records", len(records)),
		slog.Int("association_rows", len(rows)),
		slog.Int("distinct_targets", targets.len()),
		slog.Int("fetched", fetched),
	)
	return nil
}

// resolveEntities stages an entity (or a recorded absence) for every key in
// keys, consulting the cache first and issuing at most one bulk read for the
// rest. The staged map keeps the current chunk attachable in full even when
// later cache inserts evict entries resolved earlier in the same chunk.
// Returns the stage and the number of keys sent to the data source.
func (e *Engine) resolveEntities(ctx context.Context, rel *relation, keys *keyList) (map[string]any, int, error) {
	staged := make(map[string]any, keys.len())
	var missingRaw []any
	var missingCanon []string
	for i, canon := range keys.canon {
		if entity, ok := rel.cache.Get(canon); ok {
			rel.cacheHits.Add(1)
			staged[canon] = entity
			continue
		}
		if rel.spec.Eager {
			// The warmed cache is authoritative: absence means no
			// related entity, never a miss to fetch.
			continue
		}
		rel.cacheMisses.Add(1)
		missingRaw = append(missingRaw, keys.raw[i])
		missingCanon = append(missingCanon, canon)
	}

	if len(missingRaw) == 0 {
		return staged, 0, nil
	}

	entities, err := rel.spec.Source.ReadByKeys(ctx, missingRaw)
	if err != nil {
		return nil, 0, fmt.Errorf("read by keys: %w", err)
	}
	rel.keysFetched.Add(int64(len(missingRaw)))
	rel.entitiesFetched.Add(int64(len(entities)))

	found := make(map[string]any, len(entities))
	for key, entity := range entities {
		found[canonicalKey(key)] = entity
	}
	// Keys the source returned nothing for are cached as nil so they are
	// never fetched again; attach treats them as "no related entity".
	for _, canon := range missingCanon {
		entity := found[canon]
		rel.cache.Put(canon, entity)
		staged[canon] = entity
	}
	return staged, len(missingRaw), nil
}

// resolveKey reads the key attribute for path: the final hop's name plus the
// engine's key suffix, looked up on the record at the second-to-last hop. An
// absent intermediate hop resolves to nil.
func (e *Engine) resolveKey(record Record, path Path) (any, error) {
	parent, err := walk(record, path)
	if err != nil || parent == nil {
		return nil, err
	}
	return fieldValue(parent, path, path.leaf()+e.keySuffix)
}

func fieldOf(record Record, name string) (any, error) {
	v, ok := record.Field(name)
	if !ok {
		return nil, &ConfigError{
			Field:   "identity_field",
			Message: fmt.Sprintf("record has no attribute %q", name),
		}
	}
	return v, nil
}
