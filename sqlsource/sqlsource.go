// Package sqlsource implements the prefetch data-source capabilities over
// database/sql: bulk entity reads keyed by a column, association-row reads
// from junction tables, and a keyset iterator that feeds root records to the
// engine chunk by chunk.
package sqlsource

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jinzhu/inflection"

	prefetch "github.com/xelixdev/memoized-prefetch"
)

// defaultMaxInClause caps the number of placeholders per IN clause. Larger
// key sets are split into multiple statements behind one logical read.
const defaultMaxInClause = 1000

const defaultKeyColumn = "id"

// Queryer is the query surface sources need; *sql.DB and *sql.Tx satisfy it.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// TableConfig describes one entity table.
type TableConfig struct {
	// Name is the singular entity name. When Table is empty the table name
	// defaults to Name's plural form ("supplier" reads from "suppliers").
	Name string
	// Table overrides the derived table name.
	Table string
	// KeyColumn holds the entity identity. Defaults to "id".
	KeyColumn string
	// Columns restricts the selected columns; it must include KeyColumn.
	// Empty selects every column.
	Columns []string
	// MaxInClause caps placeholders per IN clause. Defaults to 1000.
	MaxInClause int
}

// Table reads entities from one table, implementing prefetch.DataSource.
// Scanned rows become prefetch.MapRecord values with []byte columns folded
// to string.
type Table struct {
	db          Queryer
	table       string
	keyColumn   string
	columns     []string
	maxInClause int
}

// NewTable builds a Table source from cfg.
func NewTable(db Queryer, cfg TableConfig) (*Table, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlsource: queryer is required")
	}
	table := cfg.Table
	if table == "" {
		if cfg.Name == "" {
			return nil, fmt.Errorf("sqlsource: table or entity name is required")
		}
		table = inflection.Plural(cfg.Name)
	}
	keyColumn := cfg.KeyColumn
	if keyColumn == "" {
		keyColumn = defaultKeyColumn
	}
	maxIn := cfg.MaxInClause
	if maxIn <= 0 {
		maxIn = defaultMaxInClause
	}
	return &Table{
		db:          db,
		table:       table,
		keyColumn:   keyColumn,
		columns:     cfg.Columns,
		maxInClause: maxIn,
	}, nil
}

// TableName returns the resolved table name.
func (t *Table) TableName() string {
	return t.table
}

// ReadByKeys returns the entities whose key column matches one of keys,
// keyed by the scanned key value. Missing keys are absent from the result.
// Key sets larger than MaxInClause are read in multiple statements.
func (t *Table) ReadByKeys(ctx context.Context, keys []any) (map[any]any, error) {
	out := make(map[any]any, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	for _, chunk := range chunkValues(keys, t.maxInClause) {
		builder := t.selectBuilder().Where(sq.Eq{quoteIdentifier(t.keyColumn): chunk})
		if err := t.readInto(ctx, builder, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ReadAll returns every entity in the table, keyed by the key column.
func (t *Table) ReadAll(ctx context.Context) (map[any]any, error) {
	out := make(map[any]any)
	if err := t.readInto(ctx, t.selectBuilder(), out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Table) selectBuilder() sq.SelectBuilder {
	if len(t.columns) == 0 {
		return sq.Select("*").From(quoteIdentifier(t.table))
	}
	quoted := make([]string, len(t.columns))
	for i, col := range t.columns {
		quoted[i] = quoteIdentifier(col)
	}
	return sq.Select(quoted...).From(quoteIdentifier(t.table))
}

func (t *Table) readInto(ctx context.Context, builder sq.SelectBuilder, out map[any]any) error {
	query, args, err := builder.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return fmt.Errorf("build query for %s: %w", t.table, err)
	}
	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query %s: %w", t.table, err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return fmt.Errorf("scan %s: %w", t.table, err)
	}
	for _, rec := range records {
		key, ok := rec[t.keyColumn]
		if !ok {
			return fmt.Errorf("table %s: key column %q is not in the selected columns", t.table, t.keyColumn)
		}
		out[key] = rec
	}
	return nil
}

// scanRecords scans every row into a MapRecord using the result's own column
// names, so SELECT * and explicit column lists behave the same.
func scanRecords(rows *sql.Rows) ([]prefetch.MapRecord, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []prefetch.MapRecord
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		rec := make(prefetch.MapRecord, len(columns))
		for i, col := range columns {
			rec[col] = convertValue(values[i])
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func convertValue(val any) any {
	if b, ok := val.([]byte); ok {
		return string(b)
	}
	return val
}

// chunkValues splits values into slices of at most size elements.
func chunkValues(values []any, size int) [][]any {
	if len(values) <= size {
		return [][]any{values}
	}
	chunks := make([][]any, 0, (len(values)+size-1)/size)
	for start := 0; start < len(values); start += size {
		end := start + size
		if end > len(values) {
			end = len(values)
		}
		chunks = append(chunks, values[start:end])
	}
	return chunks
}

// quoteIdentifier quotes a table or column name with backticks, escaping any
// backticks within the identifier.
func quoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}
