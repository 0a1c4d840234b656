// Package schema introspects tables, columns and foreign keys through a
// core.Connection. Every query runs over the same cursor protocol as user
// statements, so introspection needs no second database session.
package schema

import (
	"github.com/koustreak/djcore/internal/core"
	"github.com/koustreak/djcore/internal/errs"
	"github.com/koustreak/djcore/internal/native"
)

// Reader is the interface for introspecting a database schema.
// An empty schema name means DefaultSchema of the connection.
type Reader interface {
	// ListTables returns all user tables in the given schema.
	ListTables(schema string) ([]string, error)

	// TableExists checks whether a table exists.
	TableExists(schema, table string) (bool, error)

	// InspectTable returns full column info for a table.
	InspectTable(schema, table string) (*TableInfo, error)

	// ForeignKeys returns every foreign key column pair in the schema.
	ForeignKeys(schema string) ([]ForeignKey, error)

	// InspectSchema returns all tables and foreign keys.
	InspectSchema(schema string) (*SchemaInfo, error)
}

// New returns the Reader matching the connection's database type.
func New(conn *core.Connection) (Reader, error) {
	t, err := conn.Settings().DatabaseType()
	if err != nil {
		return nil, err
	}
	switch t {
	case native.DatabaseMySQL:
		return NewMySQLIntrospector(conn), nil
	case native.DatabasePostgres:
		return NewPgIntrospector(conn), nil
	}
	return nil, errs.New(errs.ErrKindConfiguration, "no introspector for database type "+t.String())
}

// DefaultSchema is the schema searched when none is given: the configured
// database for MySQL and "public" for Postgres.
func DefaultSchema(conn *core.Connection) (string, error) {
	t, err := conn.Settings().DatabaseType()
	if err != nil {
		return "", err
	}
	if t == native.DatabasePostgres {
		return "public", nil
	}
	return conn.Settings().DatabaseName()
}

// inspectSchema assembles a SchemaInfo from the other Reader methods.
func inspectSchema(r Reader, schema string) (*SchemaInfo, error) {
	tables, err := r.ListTables(schema)
	if err != nil {
		return nil, err
	}

	info := &SchemaInfo{}
	for _, table := range tables {
		ti, err := r.InspectTable(schema, table)
		if err != nil {
			return nil, err
		}
		info.Tables = append(info.Tables, *ti)
	}

	fks, err := r.ForeignKeys(schema)
	if err != nil {
		return nil, err
	}
	info.ForeignKeys = fks
	return info, nil
}
