package sqlsource

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	prefetch "github.com/xelixdev/memoized-prefetch"
)

// AssociationConfig describes one junction table.
type AssociationConfig struct {
	// Table is the junction table name.
	Table string
	// MaxInClause caps placeholders per IN clause. Defaults to 1000.
	MaxInClause int
}

// AssociationTable reads (source id, target id) pairs from a junction table,
// implementing prefetch.AssociationSource. The source and target column
// names arrive per call from the relation spec.
type AssociationTable struct {
	db          Queryer
	table       string
	maxInClause int
}

// NewAssociationTable builds an AssociationTable source from cfg.
func NewAssociationTable(db Queryer, cfg AssociationConfig) (*AssociationTable, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlsource: queryer is required")
	}
	if cfg.Table == "" {
		return nil, fmt.Errorf("sqlsource: association table name is required")
	}
	maxIn := cfg.MaxInClause
	if maxIn <= 0 {
		maxIn = defaultMaxInClause
	}
	return &AssociationTable{db: db, table: cfg.Table, maxInClause: maxIn}, nil
}

// ReadRowsBySourceIDs returns the rows whose source column matches one of
// ids, in result order.
func (a *AssociationTable) ReadRowsBySourceIDs(ctx context.Context, sourceField, targetField string, ids []any) ([]prefetch.AssociationRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []prefetch.AssociationRow
	for _, chunk := range chunkValues(ids, a.maxInClause) {
		query, args, err := sq.Select(quoteIdentifier(sourceField), quoteIdentifier(targetField)).
			From(quoteIdentifier(a.table)).
			Where(sq.Eq{quoteIdentifier(sourceField): chunk}).
			PlaceholderFormat(sq.Question).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("build query for %s: %w", a.table, err)
		}
		rows, err := a.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", a.table, err)
		}
		scanned, err := scanAssociationRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", a.table, err)
		}
		out = append(out, scanned...)
	}
	return out, nil
}

func scanAssociationRows(rows *sql.Rows) ([]prefetch.AssociationRow, error) {
	defer rows.Close()

	var out []prefetch.AssociationRow
	for rows.Next() {
		var source, target any
		if err := rows.Scan(&source, &target); err != nil {
			return nil, err
		}
		out = append(out, prefetch.AssociationRow{
			SourceID: convertValue(source),
			TargetID: convertValue(target),
		})
	}
	return out, rows.Err()
}
