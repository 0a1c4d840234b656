package schema

import (
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/djcore/internal/core"
	"github.com/koustreak/djcore/internal/engine"
	"github.com/koustreak/djcore/internal/engine/enginetest"
	"github.com/koustreak/djcore/internal/errs"
)

func open(t *testing.T, dbType, database string, db *enginetest.DB) *core.Connection {
	t.Helper()
	eng := engine.New(db.Option())
	s := core.NewSettings(eng)
	require.NoError(t, s.Update(map[string]any{
		core.FieldDatabaseType: dbType,
		core.FieldDatabaseName: database,
	}))
	conn, err := core.Open(eng, s)
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close()
		assert.Zero(t, eng.Live(), "introspection leaked native objects")
		eng.Close()
	})
	return conn
}

func cols(typ ...string) []enginetest.Column {
	out := make([]enginetest.Column, len(typ))
	for i, t := range typ {
		out[i] = enginetest.Column{Name: string(rune('a' + i)), Type: t}
	}
	return out
}

func mysqlDB() *enginetest.DB {
	return enginetest.New().
		On(mysqlListTables, enginetest.Result{
			Columns: cols("VARCHAR"),
			Rows:    [][]driver.Value{{"session"}, {"subject"}},
		}).
		On(mysqlTableExists, enginetest.Result{
			Columns: cols("BIGINT"),
			Rows:    [][]driver.Value{{int64(1)}},
		}).
		On(mysqlInspectTable, enginetest.Result{
			Columns: cols("VARCHAR", "TEXT", "BIGINT", "TEXT", "BIGINT", "BIGINT", "BIGINT"),
			Rows: [][]driver.Value{
				{"subject_id", "int", int64(0), nil, nil, int64(1), int64(0)},
				{"subject_name", "varchar", int64(1), "unknown", int64(64), int64(0), int64(1)},
			},
		}).
		On(mysqlForeignKeys, enginetest.Result{
			Columns: cols("VARCHAR", "VARCHAR", "VARCHAR", "VARCHAR", "VARCHAR"),
			Rows:    [][]driver.Value{{"session_ibfk_1", "session", "subject_id", "subject", "subject_id"}},
		})
}

func postgresDB() *enginetest.DB {
	return enginetest.New().
		On(pgListTables, enginetest.Result{
			Columns: cols("TEXT"),
			Rows:    [][]driver.Value{{"subject"}},
		}).
		On(pgTableExists, enginetest.Result{
			Columns: cols("BOOL"),
			Rows:    [][]driver.Value{{false}},
		}).
		On(pgInspectTable, enginetest.Result{
			Columns: cols("TEXT", "TEXT", "BOOL", "TEXT", "INT4", "BOOL", "BOOL"),
			Rows: [][]driver.Value{
				{"subject_id", "integer", false, nil, nil, true, false},
				{"subject_name", "character varying", true, "'unknown'::character varying", int32(64), false, false},
			},
		}).
		On(pgForeignKeys, enginetest.Result{
			Columns: cols("TEXT", "TEXT", "TEXT", "TEXT", "TEXT"),
		})
}

func TestNew_PicksDialect(t *testing.T) {
	r, err := New(open(t, "mysql", "djtest", mysqlDB()))
	require.NoError(t, err)
	assert.IsType(t, &MySQLIntrospector{}, r)

	r, err = New(open(t, "postgres", "djtest", postgresDB()))
	require.NoError(t, err)
	assert.IsType(t, &PgIntrospector{}, r)
}

func TestDefaultSchema(t *testing.T) {
	s, err := DefaultSchema(open(t, "mysql", "djtest", mysqlDB()))
	require.NoError(t, err)
	assert.Equal(t, "djtest", s)

	s, err = DefaultSchema(open(t, "postgres", "djtest", postgresDB()))
	require.NoError(t, err)
	assert.Equal(t, "public", s)
}

func TestMySQL_ListTablesUsesConfiguredDatabase(t *testing.T) {
	db := mysqlDB()
	r := NewMySQLIntrospector(open(t, "mysql", "djtest", db))

	tables, err := r.ListTables("")
	require.NoError(t, err)
	assert.Equal(t, []string{"session", "subject"}, tables)

	stmts := db.Statements()
	require.NotEmpty(t, stmts)
	assert.Equal(t, []any{"djtest"}, stmts[len(stmts)-1].Args)
}

func TestMySQL_NoSchema(t *testing.T) {
	r := NewMySQLIntrospector(open(t, "mysql", "", mysqlDB()))
	_, err := r.ListTables("")
	assert.True(t, errs.IsArgument(err))
}

func TestMySQL_TableExists(t *testing.T) {
	db := mysqlDB()
	r := NewMySQLIntrospector(open(t, "mysql", "djtest", db))

	ok, err := r.TableExists("lab", "subject")
	require.NoError(t, err)
	assert.True(t, ok)

	stmts := db.Statements()
	assert.Equal(t, []any{"lab", "subject"}, stmts[len(stmts)-1].Args)
}

func TestMySQL_InspectTable(t *testing.T) {
	r := NewMySQLIntrospector(open(t, "mysql", "djtest", mysqlDB()))

	info, err := r.InspectTable("", "subject")
	require.NoError(t, err)
	assert.Equal(t, "djtest", info.Schema)
	assert.Equal(t, "subject", info.Name)

	def := "unknown"
	maxLen := 64
	assert.Equal(t, []ColumnInfo{
		{Name: "subject_id", DataType: "int", IsPrimaryKey: true},
		{Name: "subject_name", DataType: "varchar", IsNullable: true, IsUnique: true, DefaultValue: &def, MaxLength: &maxLen},
	}, info.Columns)
	assert.Equal(t, []string{"subject_id"}, info.PrimaryKey())
}

func TestMySQL_InspectSchema(t *testing.T) {
	r := NewMySQLIntrospector(open(t, "mysql", "djtest", mysqlDB()))

	info, err := r.InspectSchema("")
	require.NoError(t, err)
	require.Len(t, info.Tables, 2)
	assert.Equal(t, "session", info.Tables[0].Name)
	assert.Len(t, info.Tables[1].Columns, 2)
	assert.Equal(t, []ForeignKey{{
		Name:       "session_ibfk_1",
		FromTable:  "session",
		FromColumn: "subject_id",
		ToTable:    "subject",
		ToColumn:   "subject_id",
	}}, info.ForeignKeys)
}

func TestMySQL_InspectMissingTable(t *testing.T) {
	db := enginetest.New().On(mysqlInspectTable, enginetest.Result{
		Columns: cols("VARCHAR", "TEXT", "BIGINT", "TEXT", "BIGINT", "BIGINT", "BIGINT"),
	})
	r := NewMySQLIntrospector(open(t, "mysql", "djtest", db))

	_, err := r.InspectTable("djtest", "nope")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
	assert.Contains(t, err.Error(), "djtest.nope")
}

func TestMySQL_QueryFailure(t *testing.T) {
	db := enginetest.New().On(mysqlListTables, enginetest.Result{Err: errors.New("boom")})
	conn := open(t, "mysql", "djtest", db)
	r := NewMySQLIntrospector(conn)

	_, err := r.ListTables("")
	require.Error(t, err)
	assert.True(t, errs.IsQuery(err))
	assert.Contains(t, err.Error(), "list tables")

	// The connection is still usable after a failed introspection query.
	db.On("SELECT 1", enginetest.Result{})
	_, err = conn.Execute("SELECT 1")
	assert.NoError(t, err)
}

func TestMySQL_UnexpectedColumnType(t *testing.T) {
	db := enginetest.New().On(mysqlTableExists, enginetest.Result{
		Columns: cols("VARCHAR"),
		Rows:    [][]driver.Value{{"yes"}},
	})
	r := NewMySQLIntrospector(open(t, "mysql", "djtest", db))

	_, err := r.TableExists("djtest", "subject")
	require.Error(t, err)
	assert.True(t, errs.IsDecode(err))
}

func TestPostgres_Introspection(t *testing.T) {
	db := postgresDB()
	r := NewPgIntrospector(open(t, "postgres", "djtest", db))

	tables, err := r.ListTables("")
	require.NoError(t, err)
	assert.Equal(t, []string{"subject"}, tables)
	assert.Equal(t, []any{"public"}, db.Statements()[0].Args)

	ok, err := r.TableExists("", "subject")
	require.NoError(t, err)
	assert.False(t, ok)

	info, err := r.InspectTable("lab", "subject")
	require.NoError(t, err)
	assert.Equal(t, "lab", info.Schema)
	require.Len(t, info.Columns, 2)
	assert.True(t, info.Columns[0].IsPrimaryKey)
	assert.Nil(t, info.Columns[0].MaxLength)
	require.NotNil(t, info.Columns[1].MaxLength)
	assert.Equal(t, 64, *info.Columns[1].MaxLength)
	assert.Equal(t, "'unknown'::character varying", *info.Columns[1].DefaultValue)

	full, err := r.InspectSchema("")
	require.NoError(t, err)
	assert.Len(t, full.Tables, 1)
	assert.Empty(t, full.ForeignKeys)
}
