package sqlsource

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	prefetch "github.com/xelixdev/memoized-prefetch"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func expectQuery(t *testing.T, mock sqlmock.Sqlmock, query string, args []interface{}, rows *sqlmock.Rows) {
	t.Helper()

	expectation := mock.ExpectQuery(regexp.QuoteMeta(query))
	if len(args) > 0 {
		expectation = expectation.WithArgs(toDriverValues(args)...)
	}
	expectation.WillReturnRows(rows)
}

func toDriverValues(args []interface{}) []driver.Value {
	values := make([]driver.Value, len(args))
	for i, arg := range args {
		values[i] = arg
	}
	return values
}

func TestNewTableDefaults(t *testing.T) {
	db, _ := newMockDB(t)

	t.Run("pluralizes the entity name", func(t *testing.T) {
		table, err := NewTable(db, TableConfig{Name: "person"})
		require.NoError(t, err)
		assert.Equal(t, "people", table.TableName())
	})

	t.Run("explicit table name wins", func(t *testing.T) {
		table, err := NewTable(db, TableConfig{Name: "supplier", Table: "vendor_master"})
		require.NoError(t, err)
		assert.Equal(t, "vendor_master", table.TableName())
	})

	t.Run("requires a queryer", func(t *testing.T) {
		_, err := NewTable(nil, TableConfig{Name: "supplier"})
		require.Error(t, err)
	})

	t.Run("requires a name or table", func(t *testing.T) {
		_, err := NewTable(db, TableConfig{})
		require.Error(t, err)
	})
}

func TestTableReadByKeys(t *testing.T) {
	db, mock := newMockDB(t)
	table, err := NewTable(db, TableConfig{Name: "supplier"})
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "name"}).
		AddRow(7, []byte("Acme")).
		AddRow(8, "Globex")
	expectQuery(t, mock, "SELECT * FROM `suppliers` WHERE `id` IN (?,?,?)", []interface{}{7, 8, 9}, rows)

	out, err := table.ReadByKeys(context.Background(), []any{7, 8, 9})
	require.NoError(t, err)
	require.Len(t, out, 2)

	acme, ok := out[int64(7)].(prefetch.MapRecord)
	require.True(t, ok)
	assert.Equal(t, "Acme", acme["name"])
	globex, ok := out[int64(8)].(prefetch.MapRecord)
	require.True(t, ok)
	assert.Equal(t, "Globex", globex["name"])

	// Key 9 matched nothing: absent, not an error.
	_, ok = out[int64(9)]
	assert.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTableReadByKeysEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	table, err := NewTable(db, TableConfig{Name: "supplier"})
	require.NoError(t, err)

	out, err := table.ReadByKeys(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTableReadByKeysChunksLargeKeySets(t *testing.T) {
	db, mock := newMockDB(t)
	table, err := NewTable(db, TableConfig{Name: "supplier", MaxInClause: 2})
	require.NoError(t, err)

	expectQuery(t, mock, "SELECT * FROM `suppliers` WHERE `id` IN (?,?)", []interface{}{1, 2},
		sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))
	expectQuery(t, mock, "SELECT * FROM `suppliers` WHERE `id` IN (?,?)", []interface{}{3, 4},
		sqlmock.NewRows([]string{"id"}).AddRow(3).AddRow(4))
	expectQuery(t, mock, "SELECT * FROM `suppliers` WHERE `id` IN (?)", []interface{}{5},
		sqlmock.NewRows([]string{"id"}).AddRow(5))

	out, err := table.ReadByKeys(context.Background(), []any{1, 2, 3, 4, 5})
	require.NoError(t, err)
	assert.Len(t, out, 5)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTableColumnsRestrictSelection(t *testing.T) {
	db, mock := newMockDB(t)
	table, err := NewTable(db, TableConfig{Name: "supplier", Columns: []string{"id", "name"}})
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "name"}).AddRow(7, "Acme")
	expectQuery(t, mock, "SELECT `id`, `name` FROM `suppliers` WHERE `id` IN (?)", []interface{}{7}, rows)

	out, err := table.ReadByKeys(context.Background(), []any{7})
	require.NoError(t, err)
	assert.Len(t, out, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTableKeyColumnMustBeSelected(t *testing.T) {
	db, mock := newMockDB(t)
	table, err := NewTable(db, TableConfig{Name: "supplier", Columns: []string{"name"}})
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"name"}).AddRow("Acme")
	expectQuery(t, mock, "SELECT `name` FROM `suppliers` WHERE `id` IN (?)", []interface{}{7}, rows)

	_, err = table.ReadByKeys(context.Background(), []any{7})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `key column "id"`)
}

func TestTableReadAll(t *testing.T) {
	db, mock := newMockDB(t)
	table, err := NewTable(db, TableConfig{Name: "currency", Table: "currencies", KeyColumn: "code"})
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"code", "name"}).
		AddRow("EUR", "Euro").
		AddRow("GBP", "Pound Sterling")
	expectQuery(t, mock, "SELECT * FROM `currencies`", nil, rows)

	out, err := table.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2)

	euro, ok := out["EUR"].(prefetch.MapRecord)
	require.True(t, ok)
	assert.Equal(t, "Euro", euro["name"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTableQueryErrorsAreWrapped(t *testing.T) {
	db, mock := newMockDB(t)
	table, err := NewTable(db, TableConfig{Name: "supplier"})
	require.NoError(t, err)

	mock.ExpectQuery("SELECT").WillReturnError(sql.ErrConnDone)

	_, err = table.ReadByKeys(context.Background(), []any{7})
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.Contains(t, err.Error(), "query suppliers")
}
