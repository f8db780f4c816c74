package sqlsource

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	prefetch "github.com/xelixdev/memoized-prefetch"
)

const defaultChunkSize = 1000

// ChunkConfig describes a chunked pass over a root table.
type ChunkConfig struct {
	// Table is the root table to iterate.
	Table string
	// KeyColumn orders the pass and carries the seek position. It must be
	// unique and comparable. Defaults to "id".
	KeyColumn string
	// Columns restricts the selected columns; it must include KeyColumn.
	// Empty selects every column.
	Columns []string
	// Size is the number of rows per chunk. Defaults to 1000.
	Size int
}

// ChunkReader pages through a root table with seek-based pagination
// (WHERE key > last ORDER BY key LIMIT n), yielding records ready for
// Engine.ProcessChunk. It is not safe for concurrent use.
type ChunkReader struct {
	db        Queryer
	table     string
	keyColumn string
	columns   []string
	size      int

	last    any
	started bool
	done    bool
}

// NewChunkReader builds a ChunkReader from cfg.
func NewChunkReader(db Queryer, cfg ChunkConfig) (*ChunkReader, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlsource: queryer is required")
	}
	if cfg.Table == "" {
		return nil, fmt.Errorf("sqlsource: chunk table name is required")
	}
	keyColumn := cfg.KeyColumn
	if keyColumn == "" {
		keyColumn = defaultKeyColumn
	}
	size := cfg.Size
	if size <= 0 {
		size = defaultChunkSize
	}
	return &ChunkReader{
		db:        db,
		table:     cfg.Table,
		keyColumn: keyColumn,
		columns:   cfg.Columns,
		size:      size,
	}, nil
}

// Next returns the next chunk of records. An empty result means the pass is
// complete; subsequent calls keep returning empty results.
func (r *ChunkReader) Next(ctx context.Context) ([]prefetch.Record, error) {
	if r.done {
		return nil, nil
	}

	builder := r.selectBuilder().
		OrderBy(quoteIdentifier(r.keyColumn)).
		Limit(uint64(r.size))
	if r.started {
		builder = builder.Where(sq.Gt{quoteIdentifier(r.keyColumn): r.last})
	}
	query, args, err := builder.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query for %s: %w", r.table, err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", r.table, err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", r.table, err)
	}
	if len(records) == 0 {
		r.done = true
		return nil, nil
	}

	lastKey, ok := records[len(records)-1][r.keyColumn]
	if !ok {
		return nil, fmt.Errorf("table %s: key column %q is not in the selected columns", r.table, r.keyColumn)
	}
	if lastKey == nil {
		return nil, fmt.Errorf("table %s: key column %q is null, cannot seek past it", r.table, r.keyColumn)
	}
	r.last = lastKey
	r.started = true
	if len(records) < r.size {
		r.done = true
	}

	chunk := make([]prefetch.Record, len(records))
	for i, rec := range records {
		chunk[i] = rec
	}
	return chunk, nil
}

func (r *ChunkReader) selectBuilder() sq.SelectBuilder {
	if len(r.columns) == 0 {
		return sq.Select("*").From(quoteIdentifier(r.table))
	}
	quoted := make([]string, len(r.columns))
	for i, col := range r.columns {
		quoted[i] = quoteIdentifier(col)
	}
	return sq.Select(quoted...).From(quoteIdentifier(r.table))
}
