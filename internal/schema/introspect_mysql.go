package schema

import (
	"fmt"

	"github.com/koustreak/djcore/internal/core"
	"github.com/koustreak/djcore/internal/errs"
)

const (
	mysqlListTables = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ?
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	mysqlTableExists = `
		SELECT COUNT(*) > 0
		FROM information_schema.tables
		WHERE table_schema = ? AND table_name = ?`

	mysqlInspectTable = `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES'                         AS is_nullable,
			c.column_default,
			c.character_maximum_length,
			(c.column_key = 'PRI')                        AS is_primary_key,
			(c.column_key = 'UNI')                        AS is_unique
		FROM information_schema.columns c
		WHERE c.table_schema = ?
		  AND c.table_name   = ?
		ORDER BY c.ordinal_position`

	mysqlForeignKeys = `
		SELECT
			rc.constraint_name,
			kcu.table_name             AS from_table,
			kcu.column_name            AS from_column,
			kcu.referenced_table_name  AS to_table,
			kcu.referenced_column_name AS to_column
		FROM information_schema.referential_constraints rc
		JOIN information_schema.key_column_usage kcu
			ON rc.constraint_name = kcu.constraint_name
			AND rc.constraint_schema = kcu.table_schema
		WHERE rc.constraint_schema = ?
		ORDER BY rc.constraint_name`
)

// MySQLIntrospector implements Reader for MySQL using information_schema.
// A schema is a database in MySQL.
type MySQLIntrospector struct {
	conn *core.Connection
}

// NewMySQLIntrospector creates a new MySQL schema introspector
func NewMySQLIntrospector(conn *core.Connection) *MySQLIntrospector {
	return &MySQLIntrospector{conn: conn}
}

func (m *MySQLIntrospector) schema(s string) (string, error) {
	if s != "" {
		return s, nil
	}
	name, err := m.conn.Settings().DatabaseName()
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", errs.New(errs.ErrKindArgument, "no schema given and no database configured")
	}
	return name, nil
}

// ListTables returns all user-defined table names in the given database
func (m *MySQLIntrospector) ListTables(schema string) ([]string, error) {
	schema, err := m.schema(schema)
	if err != nil {
		return nil, err
	}
	var tables []string
	err = query(m.conn, mysqlListTables, []any{schema}, func(vals []core.Value) error {
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
func (m *MySQLIntrospector) TableExists(schema, table string) (bool, error) {
	schema, err := m.schema(schema)
	if err != nil {
		return false, err
	}
	var exists bool
	err = query(m.conn, mysqlTableExists, []any{schema, table}, func(vals []core.Value) error {
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
func (m *MySQLIntrospector) InspectTable(schema, table string) (*TableInfo, error) {
	schema, err := m.schema(schema)
	if err != nil {
		return nil, err
	}
	info := &TableInfo{Schema: schema, Name: table}
	err = query(m.conn, mysqlInspectTable, []any{schema, table}, func(vals []core.Value) error {
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

// ForeignKeys returns all FK relationships in the database
func (m *MySQLIntrospector) ForeignKeys(schema string) ([]ForeignKey, error) {
	schema, err := m.schema(schema)
	if err != nil {
		return nil, err
	}
	var fks []ForeignKey
	err = query(m.conn, mysqlForeignKeys, []any{schema}, func(vals []core.Value) error {
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

// InspectSchema returns all tables and foreign keys for the given database
func (m *MySQLIntrospector) InspectSchema(schema string) (*SchemaInfo, error) {
	schema, err := m.schema(schema)
	if err != nil {
		return nil, err
	}
	return inspectSchema(m, schema)
}
