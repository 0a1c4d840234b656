package engine

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/djcore/internal/native"
)

func col(dbType native.DatabaseType, typeName string) columnMeta {
	return columnMeta{name: "c", typeName: typeName, typ: columnTypeFromName(dbType, typeName)}
}

func TestDecodeColumn(t *testing.T) {
	le := binary.LittleEndian
	ts := time.Date(2017, 3, 1, 13, 45, 30, 0, time.UTC)

	tests := []struct {
		name     string
		dbType   native.DatabaseType
		typeName string
		in       any
		wantType native.NativeType
		wantData []byte
	}{
		{"null", native.DatabaseMySQL, "INT", nil, native.TypeNull, nil},
		{"boolean", native.DatabasePostgres, "BOOL", true, native.TypeBool, []byte{1}},
		{"boolean from int", native.DatabaseMySQL, "BOOLEAN", int64(0), native.TypeBool, []byte{0}},
		{"tinyint", native.DatabaseMySQL, "TINYINT", int64(-3), native.TypeInt8, []byte{0xfd}},
		{"smallint from text", native.DatabaseMySQL, "SMALLINT", []byte("300"), native.TypeInt16, le.AppendUint16(nil, 300)},
		{"int", native.DatabaseMySQL, "INT", int64(70000), native.TypeInt32, le.AppendUint32(nil, 70000)},
		{"int4", native.DatabasePostgres, "INT4", int32(-1), native.TypeInt32, le.AppendUint32(nil, math.MaxUint32)},
		{"bigint", native.DatabaseMySQL, "BIGINT", int64(1 << 40), native.TypeInt64, le.AppendUint64(nil, 1<<40)},
		{"unsigned tinyint", native.DatabaseMySQL, "UNSIGNED TINYINT", int64(200), native.TypeUInt8, []byte{200}},
		{"unsigned int suffix", native.DatabaseMySQL, "INT UNSIGNED", int64(4000000000), native.TypeUInt32, le.AppendUint32(nil, 4000000000)},
		{"unsigned bigint", native.DatabaseMySQL, "UNSIGNED BIGINT", uint64(math.MaxUint64), native.TypeUInt64, le.AppendUint64(nil, math.MaxUint64)},
		{"varchar", native.DatabaseMySQL, "VARCHAR", []byte("mouse"), native.TypeString, []byte("mouse")},
		{"enum", native.DatabaseMySQL, "ENUM", "M", native.TypeString, []byte("M")},
		{"mysql date text", native.DatabaseMySQL, "DATE", []byte("2017-03-01"), native.TypeString, []byte("2017-03-01")},
		{"postgres date", native.DatabasePostgres, "DATE", ts, native.TypeString, []byte("2017-03-01")},
		{"postgres time", native.DatabasePostgres, "TIME", ts, native.TypeString, []byte("13:45:30")},
		{"postgres timestamp", native.DatabasePostgres, "TIMESTAMP", ts, native.TypeString, []byte("2017-03-01 13:45:30")},
		{"float", native.DatabaseMySQL, "FLOAT", float32(1.5), native.TypeFloat32, le.AppendUint32(nil, math.Float32bits(1.5))},
		{"double from text", native.DatabaseMySQL, "DOUBLE", []byte("2.5"), native.TypeFloat64, le.AppendUint64(nil, math.Float64bits(2.5))},
		{"blob", native.DatabaseMySQL, "LONGBLOB", []byte{0, 1}, native.TypeBytes, []byte{0, 1}},
		{"bytea", native.DatabasePostgres, "BYTEA", []byte{9}, native.TypeBytes, []byte{9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, data, err := decodeColumn(tt.dbType, col(tt.dbType, tt.typeName), tt.in)
			require.Nil(t, err)
			assert.Equal(t, tt.wantType, typ)
			assert.Equal(t, tt.wantData, data)
		})
	}
}

func TestDecodeColumn_Failures(t *testing.T) {
	tests := []struct {
		name     string
		dbType   native.DatabaseType
		typeName string
		in       any
		status   native.Status
		contains string
	}{
		{"tinyint overflow", native.DatabaseMySQL, "TINYINT", int64(128), native.ValueDecodeError, "outside"},
		{"unparsable int", native.DatabaseMySQL, "INT", []byte("x"), native.ValueDecodeError, "cannot parse"},
		{"negative unsigned", native.DatabaseMySQL, "UNSIGNED INT", int64(-1), native.ValueDecodeError, "negative"},
		{"decimal", native.DatabaseMySQL, "DECIMAL", []byte("1.10"), native.ColumnDecodeError, "no decoder implemented"},
		{"numeric", native.DatabasePostgres, "NUMERIC", "1.10", native.ColumnDecodeError, "no decoder implemented"},
		{"attach", native.DatabaseMySQL, "ATTACH", []byte{1}, native.ColumnDecodeError, "no decoder implemented"},
		{"unknown type", native.DatabaseMySQL, "GEOMETRY", []byte{1}, native.ColumnDecodeError, `"GEOMETRY"`},
		{"blob from int", native.DatabaseMySQL, "BLOB", int64(1), native.ValueDecodeError, "as bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := decodeColumn(tt.dbType, col(tt.dbType, tt.typeName), tt.in)
			require.NotNil(t, err)
			assert.Equal(t, tt.status, err.status)
			assert.Contains(t, err.msg, tt.contains)
		})
	}
}

func TestDecodeColumn_PostgresHasNoUnsigned(t *testing.T) {
	meta := columnMeta{name: "n", typeName: "INT UNSIGNED", typ: native.ColumnIntUnsigned}

	_, _, err := decodeColumn(native.DatabasePostgres, meta, int64(1))
	require.NotNil(t, err)
	assert.Equal(t, native.ColumnDecodeError, err.status)
	assert.Contains(t, err.msg, "postgres has no unsigned")

	typ, _, err := decodeColumn(native.DatabaseMySQL, meta, int64(1))
	require.Nil(t, err)
	assert.Equal(t, native.TypeUInt32, typ)
}

func TestColumnTypeFromName(t *testing.T) {
	tests := []struct {
		dbType native.DatabaseType
		name   string
		want   native.ColumnType
	}{
		{native.DatabaseMySQL, "varchar", native.ColumnVarCharN},
		{native.DatabaseMySQL, " INT ", native.ColumnInt},
		{native.DatabaseMySQL, "BIGINT UNSIGNED", native.ColumnBigIntUnsigned},
		{native.DatabaseMySQL, "UNSIGNED SMALLINT", native.ColumnSmallIntUnsigned},
		{native.DatabaseMySQL, "YEAR", native.ColumnSmallIntUnsigned},
		{native.DatabaseMySQL, "INT4", native.ColumnUnknown},
		{native.DatabasePostgres, "INT4", native.ColumnInt},
		{native.DatabasePostgres, "timestamptz", native.ColumnTimestamp},
		{native.DatabasePostgres, "BPCHAR", native.ColumnCharN},
		{native.DatabasePostgres, "JSONB", native.ColumnUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, columnTypeFromName(tt.dbType, tt.name), "%s %q", tt.dbType, tt.name)
	}
}
