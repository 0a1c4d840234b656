package engine

import (
	"strings"

	"github.com/koustreak/djcore/internal/native"
)

var mysqlColumnTypes = map[string]native.ColumnType{
	"BOOL":               native.ColumnBoolean,
	"BOOLEAN":            native.ColumnBoolean,
	"TINYINT":            native.ColumnTinyInt,
	"UNSIGNED TINYINT":   native.ColumnTinyIntUnsigned,
	"SMALLINT":           native.ColumnSmallInt,
	"UNSIGNED SMALLINT":  native.ColumnSmallIntUnsigned,
	"YEAR":               native.ColumnSmallIntUnsigned,
	"MEDIUMINT":          native.ColumnMediumInt,
	"UNSIGNED MEDIUMINT": native.ColumnMediumIntUnsigned,
	"INT":                native.ColumnInt,
	"INTEGER":            native.ColumnInt,
	"UNSIGNED INT":       native.ColumnIntUnsigned,
	"BIGINT":             native.ColumnBigInt,
	"UNSIGNED BIGINT":    native.ColumnBigIntUnsigned,
	"ENUM":               native.ColumnEnum,
	"DATE":               native.ColumnDate,
	"TIME":               native.ColumnTime,
	"DATETIME":           native.ColumnDateTime,
	"TIMESTAMP":          native.ColumnTimestamp,
	"CHAR":               native.ColumnCharN,
	"VARCHAR":            native.ColumnVarCharN,
	"TINYTEXT":           native.ColumnVarCharN,
	"TEXT":               native.ColumnVarCharN,
	"MEDIUMTEXT":         native.ColumnVarCharN,
	"LONGTEXT":           native.ColumnVarCharN,
	"FLOAT":              native.ColumnFloat,
	"DOUBLE":             native.ColumnDouble,
	"DECIMAL":            native.ColumnDecimal,
	"TINYBLOB":           native.ColumnTinyBlob,
	"MEDIUMBLOB":         native.ColumnMediumBlob,
	"BLOB":               native.ColumnBlob,
	"LONGBLOB":           native.ColumnLongBlob,
	"BINARY":             native.ColumnBlob,
	"VARBINARY":          native.ColumnBlob,
	"ATTACH":             native.ColumnAttach,
	"FILEPATH":           native.ColumnFilepathStore,
}

var postgresColumnTypes = map[string]native.ColumnType{
	"BOOL":        native.ColumnBoolean,
	"INT2":        native.ColumnSmallInt,
	"INT4":        native.ColumnInt,
	"INT8":        native.ColumnBigInt,
	"FLOAT4":      native.ColumnFloat,
	"FLOAT8":      native.ColumnDouble,
	"NUMERIC":     native.ColumnDecimal,
	"BPCHAR":      native.ColumnCharN,
	"CHAR":        native.ColumnCharN,
	"VARCHAR":     native.ColumnVarCharN,
	"TEXT":        native.ColumnVarCharN,
	"NAME":        native.ColumnVarCharN,
	"DATE":        native.ColumnDate,
	"TIME":        native.ColumnTime,
	"TIMESTAMP":   native.ColumnDateTime,
	"TIMESTAMPTZ": native.ColumnTimestamp,
	"BYTEA":       native.ColumnLongBlob,
}

// columnTypeFromName maps a driver's DatabaseTypeName to a column type.
// Unsigned spellings are normalised to the "UNSIGNED X" form go-sql-driver
// reports; names the backend does not know map to ColumnUnknown.
func columnTypeFromName(dbType native.DatabaseType, name string) native.ColumnType {
	name = strings.ToUpper(strings.TrimSpace(name))
	if base, ok := strings.CutSuffix(name, " UNSIGNED"); ok {
		name = "UNSIGNED " + base
	}
	table := mysqlColumnTypes
	if dbType == native.DatabasePostgres {
		table = postgresColumnTypes
	}
	if t, ok := table[name]; ok {
		return t
	}
	return native.ColumnUnknown
}
