package schema

import (
	"fmt"

	"github.com/koustreak/djcore/internal/core"
	"github.com/koustreak/djcore/internal/errs"
)

// information_schema uses its own domain types; every column is cast so
// the engine sees plain text, int4 and bool.
const (
	pgListTables = `
		SELECT table_name::text
		FROM information_schema.tables
		WHERE table_schema = $1
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	pgTableExists = `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)`

	pgInspectTable = `
		SELECT
			c.column_name::text,
			c.data_type::text,
			c.is_nullable = 'YES'              AS is_nullable,
			c.column_default::text,
			c.character_maximum_length::int4,
			COALESCE(pk.is_pk, false)          AS is_primary_key,
			COALESCE(uq.is_unique, false)      AS is_unique
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT kcu.column_name, true AS is_pk
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name
				AND tc.table_schema = kcu.table_schema
			WHERE tc.constraint_type = 'PRIMARY KEY'
			  AND tc.table_schema = $1
			  AND tc.table_name   = $2
		) pk ON pk.column_name = c.column_name
		LEFT JOIN (
			SELECT kcu.column_name, true AS is_unique
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name
				AND tc.table_schema = kcu.table_schema
			WHERE tc.constraint_type = 'UNIQUE'
			  AND tc.table_schema = $1
			  AND tc.table_name   = $2
		) uq ON uq.column_name = c.column_name
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position`

	pgForeignKeys = `
		SELECT
			tc.constraint_name::text,
			kcu.table_name::text   AS from_table,
			kcu.column_name::text  AS from_column,
			ccu.table_name::text   AS to_table,
			ccu.column_name::text  AS to_column
		FROM information_schema.table_constraints AS tc
		JOIN information_schema.key_column_usage AS kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage AS ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = $1
		ORDER BY tc.constraint_name`
)

// PgIntrospector implements Reader for PostgreSQL using information_schema
type PgIntrospector struct {
	conn *core.Connection
}

// NewPgIntrospector creates a new Postgres schema introspector
func NewPgIntrospector(conn *core.Connection) *PgIntrospector {
	return &PgIntrospector{conn: conn}
}

func (p *PgIntrospector) schema(s string) string {
	if s == "" {
		return "public"
	}
	return s
}

// ListTables returns all user-defined table names in the given schema
func (p *PgIntrospector) ListTables(schema string) ([]string, error) {
	var tables []string
	err := query(p.conn, pgListTables, []any{p.schema(schema)}, func(vals []core.Value) error {
		name, err := text(vals[0])
		tables = append(tables, name)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return tables, nil
}

// TableExists checks whether a specific table exists
func (p *PgIntrospector) TableExists(schema, table string) (bool, error) {
	var exists bool
	err := query(p.conn, pgTableExists, []any{p.schema(schema), table}, func(vals []core.Value) error {
		var err error
		exists, err = boolean(vals[0])
		return err
	})
	if err != nil {
		return false, fmt.Errorf("table exists check: %w", err)
	}
	return exists, nil
}

// InspectTable returns column details for a single table
func (p *PgIntrospector) InspectTable(schema, table string) (*TableInfo, error) {
	schema = p.schema(schema)
	info := &TableInfo{Schema: schema, Name: table}
	err := query(p.conn, pgInspectTable, []any{schema, table}, func(vals []core.Value) error {
		col, err := scanColumn(vals)
		if err != nil {
			return err
		}
		info.Columns = append(info.Columns, col)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("inspect table %s.%s: %w", schema, table, err)
	}
	if len(info.Columns) == 0 {
		return nil, errs.New(errs.ErrKindNotFound, fmt.Sprintf("table %s.%s not found or has no columns", schema, table))
	}
	return info, nil
}

// ForeignKeys returns all FK relationships in the schema
func (p *PgIntrospector) ForeignKeys(schema string) ([]ForeignKey, error) {
	var fks []ForeignKey
	err := query(p.conn, pgForeignKeys, []any{p.schema(schema)}, func(vals []core.Value) error {
		fk, err := scanForeignKey(vals)
		if err != nil {
			return err
		}
		fks = append(fks, fk)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list foreign keys: %w", err)
	}
	return fks, nil
}

// InspectSchema returns all tables and foreign keys in the schema
func (p *PgIntrospector) InspectSchema(schema string) (*SchemaInfo, error) {
	return inspectSchema(p, p.schema(schema))
}
