// Package native describes the foreign-function boundary between the managed
// client (internal/core) and a native database engine.
//
// Everything that crosses the boundary is one of: an opaque handle, a
// numeric status, a fixed-width enum tag, or a flat byte buffer. Handles of
// different kinds are distinct types so the compiler rejects passing a row
// where a cursor is expected. The zero handle is null.
package native

// Opaque handle kinds. Each value is owned by exactly one party; the owner
// releases it with the matching *Free entry point.
type (
	Settings     uintptr
	Connection   uintptr
	ArgVector    uintptr
	Cursor       uintptr
	Row          uintptr
	ColumnRef    uintptr
	DecodedValue uintptr
	CString      uintptr
)

// Status is returned by every entry point that can fail. Zero is success.
type Status int32

const (
	Success Status = iota
	ConfigurationError
	UnknownDatabaseError
	IoError
	TlsError
	ProtocolError
	RowNotFound
	TypeNotFound
	ColumnIndexOutOfBounds
	ColumnNotFound
	ColumnDecodeError
	ValueDecodeError
	PoolTimedOut
	PoolClosed
	WorkerCrashed
	UnknownDriverError
	NotConnected
	NoMoreRows
	NullNotAllowed
	BufferNotEnough
	InvalidNativeType
	InvalidEnumArgument
	InvalidUTF8String
	UnsupportedNativeType
	StatementInProgress
)

var statusNames = [...]string{
	Success:                "success",
	ConfigurationError:     "configuration error",
	UnknownDatabaseError:   "unknown database error",
	IoError:                "i/o error",
	TlsError:               "tls error",
	ProtocolError:          "protocol error",
	RowNotFound:            "row not found",
	TypeNotFound:           "type not found",
	ColumnIndexOutOfBounds: "column index out of bounds",
	ColumnNotFound:         "column not found",
	ColumnDecodeError:      "column decode error",
	ValueDecodeError:       "value decode error",
	PoolTimedOut:           "pool timed out",
	PoolClosed:             "pool closed",
	WorkerCrashed:          "worker crashed",
	UnknownDriverError:     "unknown driver error",
	NotConnected:           "not connected",
	NoMoreRows:             "no more rows",
	NullNotAllowed:         "null not allowed",
	BufferNotEnough:        "buffer not large enough",
	InvalidNativeType:      "invalid native type",
	InvalidEnumArgument:    "invalid enum argument",
	InvalidUTF8String:      "invalid utf-8 string",
	UnsupportedNativeType:  "unsupported native type",
	StatementInProgress:    "statement in progress",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown status"
}

// NativeType tags a value staged in a DecodedValue or added to an ArgVector.
// Fixed-width numbers travel little-endian; String is UTF-8 without a
// terminator; Bytes is raw.
type NativeType int32

const (
	TypeNone NativeType = iota
	TypeNull
	TypeBool
	TypeInt8
	TypeUInt8
	TypeInt16
	TypeUInt16
	TypeInt32
	TypeUInt32
	TypeInt64
	TypeUInt64
	TypeString
	TypeFloat32
	TypeFloat64
	TypeBytes
)

var nativeTypeNames = [...]string{
	TypeNone:    "none",
	TypeNull:    "null",
	TypeBool:    "bool",
	TypeInt8:    "int8",
	TypeUInt8:   "uint8",
	TypeInt16:   "int16",
	TypeUInt16:  "uint16",
	TypeInt32:   "int32",
	TypeUInt32:  "uint32",
	TypeInt64:   "int64",
	TypeUInt64:  "uint64",
	TypeString:  "string",
	TypeFloat32: "float32",
	TypeFloat64: "float64",
	TypeBytes:   "bytes",
}

func (t NativeType) String() string {
	if t >= 0 && int(t) < len(nativeTypeNames) {
		return nativeTypeNames[t]
	}
	return "invalid"
}

// Width returns the encoded byte size of fixed-width tags, or -1 for
// variable-length ones.
func (t NativeType) Width() int {
	switch t {
	case TypeNone, TypeNull:
		return 0
	case TypeBool, TypeInt8, TypeUInt8:
		return 1
	case TypeInt16, TypeUInt16:
		return 2
	case TypeInt32, TypeUInt32, TypeFloat32:
		return 4
	case TypeInt64, TypeUInt64, TypeFloat64:
		return 8
	default:
		return -1
	}
}

// Valid reports whether t is one of the declared tags.
func (t NativeType) Valid() bool {
	return t >= TypeNone && t <= TypeBytes
}

// ColumnType is the DataJoint type of a result column, derived by the engine
// from the database's own type name.
type ColumnType int32

const (
	ColumnUnknown ColumnType = iota
	ColumnBoolean
	ColumnTinyInt
	ColumnTinyIntUnsigned
	ColumnSmallInt
	ColumnSmallIntUnsigned
	ColumnMediumInt
	ColumnMediumIntUnsigned
	ColumnInt
	ColumnIntUnsigned
	ColumnBigInt
	ColumnBigIntUnsigned
	ColumnEnum
	ColumnDate
	ColumnTime
	ColumnDateTime
	ColumnTimestamp
	ColumnCharN
	ColumnVarCharN
	ColumnFloat
	ColumnDouble
	ColumnDecimal
	ColumnTinyBlob
	ColumnMediumBlob
	ColumnBlob
	ColumnLongBlob
	ColumnAttach
	ColumnFilepathStore
)

var columnTypeNames = [...]string{
	ColumnUnknown:           "unknown",
	ColumnBoolean:           "boolean",
	ColumnTinyInt:           "tinyint",
	ColumnTinyIntUnsigned:   "tinyint unsigned",
	ColumnSmallInt:          "smallint",
	ColumnSmallIntUnsigned:  "smallint unsigned",
	ColumnMediumInt:         "mediumint",
	ColumnMediumIntUnsigned: "mediumint unsigned",
	ColumnInt:               "int",
	ColumnIntUnsigned:       "int unsigned",
	ColumnBigInt:            "bigint",
	ColumnBigIntUnsigned:    "bigint unsigned",
	ColumnEnum:              "enum",
	ColumnDate:              "date",
	ColumnTime:              "time",
	ColumnDateTime:          "datetime",
	ColumnTimestamp:         "timestamp",
	ColumnCharN:             "char",
	ColumnVarCharN:          "varchar",
	ColumnFloat:             "float",
	ColumnDouble:            "double",
	ColumnDecimal:           "decimal",
	ColumnTinyBlob:          "tinyblob",
	ColumnMediumBlob:        "mediumblob",
	ColumnBlob:              "blob",
	ColumnLongBlob:          "longblob",
	ColumnAttach:            "attach",
	ColumnFilepathStore:     "filepath@store",
}

func (c ColumnType) String() string {
	if c >= 0 && int(c) < len(columnTypeNames) {
		return columnTypeNames[c]
	}
	return "unknown"
}

// DatabaseType selects the engine backend.
type DatabaseType int32

const (
	DatabaseMySQL DatabaseType = iota
	DatabasePostgres
)

func (d DatabaseType) String() string {
	switch d {
	case DatabaseMySQL:
		return "mysql"
	case DatabasePostgres:
		return "postgres"
	default:
		return "invalid"
	}
}

// Valid reports whether d names a supported backend.
func (d DatabaseType) Valid() bool {
	return d == DatabaseMySQL || d == DatabasePostgres
}

// TLSMode is the tri-state TLS preference of a settings record.
type TLSMode int32

const (
	TLSPreferred TLSMode = iota
	TLSRequired
	TLSForbidden
)

func (m TLSMode) String() string {
	switch m {
	case TLSPreferred:
		return "preferred"
	case TLSRequired:
		return "required"
	case TLSForbidden:
		return "forbidden"
	default:
		return "invalid"
	}
}

// Valid reports whether m is one of the three declared modes.
func (m TLSMode) Valid() bool {
	return m >= TLSPreferred && m <= TLSForbidden
}
