package engine

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/koustreak/djcore/internal/native"
)

type decodeError struct {
	status native.Status
	msg    string
}

func decodeFailed(status native.Status, format string, args ...any) *decodeError {
	return &decodeError{status: status, msg: fmt.Sprintf(format, args...)}
}

const (
	dateLayout     = "2006-01-02"
	timeLayout     = "15:04:05.999999"
	dateTimeLayout = "2006-01-02 15:04:05.999999"
)

// decodeColumn converts a scanned driver value into its boundary encoding
// according to the column's DataJoint type.
func decodeColumn(dbType native.DatabaseType, col columnMeta, v any) (native.NativeType, []byte, *decodeError) {
	if v == nil {
		return native.TypeNull, nil, nil
	}

	le := binary.LittleEndian
	switch col.typ {
	case native.ColumnBoolean:
		b, err := toBool(v)
		if err != nil {
			return 0, nil, err
		}
		if b {
			return native.TypeBool, []byte{1}, nil
		}
		return native.TypeBool, []byte{0}, nil

	case native.ColumnTinyInt:
		n, err := toInt(v, math.MinInt8, math.MaxInt8)
		if err != nil {
			return 0, nil, err
		}
		return native.TypeInt8, []byte{byte(int8(n))}, nil
	case native.ColumnSmallInt:
		n, err := toInt(v, math.MinInt16, math.MaxInt16)
		if err != nil {
			return 0, nil, err
		}
		return native.TypeInt16, le.AppendUint16(nil, uint16(int16(n))), nil
	case native.ColumnMediumInt, native.ColumnInt:
		n, err := toInt(v, math.MinInt32, math.MaxInt32)
		if err != nil {
			return 0, nil, err
		}
		return native.TypeInt32, le.AppendUint32(nil, uint32(int32(n))), nil
	case native.ColumnBigInt:
		n, err := toInt(v, math.MinInt64, math.MaxInt64)
		if err != nil {
			return 0, nil, err
		}
		return native.TypeInt64, le.AppendUint64(nil, uint64(n)), nil

	case native.ColumnTinyIntUnsigned, native.ColumnSmallIntUnsigned,
		native.ColumnMediumIntUnsigned, native.ColumnIntUnsigned, native.ColumnBigIntUnsigned:
		if dbType == native.DatabasePostgres {
			return 0, nil, decodeFailed(native.ColumnDecodeError, "postgres has no unsigned %s type", col.typ)
		}
		return decodeUnsigned(col.typ, v)

	case native.ColumnEnum, native.ColumnCharN, native.ColumnVarCharN:
		s, err := toText(v)
		if err != nil {
			return 0, nil, err
		}
		return native.TypeString, []byte(s), nil

	case native.ColumnDate, native.ColumnTime, native.ColumnDateTime, native.ColumnTimestamp:
		s, err := toTemporal(col.typ, v)
		if err != nil {
			return 0, nil, err
		}
		return native.TypeString, []byte(s), nil

	case native.ColumnFloat:
		f, err := toFloat(v, 32)
		if err != nil {
			return 0, nil, err
		}
		return native.TypeFloat32, le.AppendUint32(nil, math.Float32bits(float32(f))), nil
	case native.ColumnDouble:
		f, err := toFloat(v, 64)
		if err != nil {
			return 0, nil, err
		}
		return native.TypeFloat64, le.AppendUint64(nil, math.Float64bits(f)), nil

	case native.ColumnTinyBlob, native.ColumnMediumBlob, native.ColumnBlob, native.ColumnLongBlob:
		switch b := v.(type) {
		case []byte:
			return native.TypeBytes, append([]byte(nil), b...), nil
		case string:
			return native.TypeBytes, []byte(b), nil
		}
		return 0, nil, decodeFailed(native.ValueDecodeError, "cannot read %T as bytes", v)

	case native.ColumnDecimal, native.ColumnAttach, native.ColumnFilepathStore:
		return 0, nil, decodeFailed(native.ColumnDecodeError, "no decoder implemented for %s columns", col.typ)
	}

	return 0, nil, decodeFailed(native.ColumnDecodeError, "unsupported column type %q", col.typeName)
}

func decodeUnsigned(t native.ColumnType, v any) (native.NativeType, []byte, *decodeError) {
	le := binary.LittleEndian
	switch t {
	case native.ColumnTinyIntUnsigned:
		n, err := toUint(v, math.MaxUint8)
		if err != nil {
			return 0, nil, err
		}
		return native.TypeUInt8, []byte{byte(n)}, nil
	case native.ColumnSmallIntUnsigned:
		n, err := toUint(v, math.MaxUint16)
		if err != nil {
			return 0, nil, err
		}
		return native.TypeUInt16, le.AppendUint16(nil, uint16(n)), nil
	case native.ColumnMediumIntUnsigned, native.ColumnIntUnsigned:
		n, err := toUint(v, math.MaxUint32)
		if err != nil {
			return 0, nil, err
		}
		return native.TypeUInt32, le.AppendUint32(nil, uint32(n)), nil
	default:
		n, err := toUint(v, math.MaxUint64)
		if err != nil {
			return 0, nil, err
		}
		return native.TypeUInt64, le.AppendUint64(nil, n), nil
	}
}

func toInt(v any, lo, hi int64) (int64, *decodeError) {
	var n int64
	switch x := v.(type) {
	case int64:
		n = x
	case int32:
		n = int64(x)
	case int16:
		n = int64(x)
	case int8:
		n = int64(x)
	case int:
		n = int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return 0, decodeFailed(native.ValueDecodeError, "%d overflows a signed integer", x)
		}
		n = int64(x)
	case []byte, string:
		s, _ := toText(x)
		parsed, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, decodeFailed(native.ValueDecodeError, "cannot parse %q as an integer", s)
		}
		n = parsed
	default:
		return 0, decodeFailed(native.ValueDecodeError, "cannot read %T as an integer", v)
	}
	if n < lo || n > hi {
		return 0, decodeFailed(native.ValueDecodeError, "%d is outside [%d, %d]", n, lo, hi)
	}
	return n, nil
}

func toUint(v any, hi uint64) (uint64, *decodeError) {
	var n uint64
	switch x := v.(type) {
	case uint64:
		n = x
	case int64:
		if x < 0 {
			return 0, decodeFailed(native.ValueDecodeError, "%d is negative", x)
		}
		n = uint64(x)
	case []byte, string:
		s, _ := toText(x)
		parsed, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, decodeFailed(native.ValueDecodeError, "cannot parse %q as an unsigned integer", s)
		}
		n = parsed
	default:
		return 0, decodeFailed(native.ValueDecodeError, "cannot read %T as an unsigned integer", v)
	}
	if n > hi {
		return 0, decodeFailed(native.ValueDecodeError, "%d is above %d", n, hi)
	}
	return n, nil
}

func toFloat(v any, bits int) (float64, *decodeError) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case []byte, string:
		s, _ := toText(x)
		f, err := strconv.ParseFloat(s, bits)
		if err != nil {
			return 0, decodeFailed(native.ValueDecodeError, "cannot parse %q as a float", s)
		}
		return f, nil
	}
	return 0, decodeFailed(native.ValueDecodeError, "cannot read %T as a float", v)
}

func toBool(v any) (bool, *decodeError) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case []byte, string:
		s, _ := toText(x)
		b, err := strconv.ParseBool(s)
		if err != nil {
			return false, decodeFailed(native.ValueDecodeError, "cannot parse %q as a boolean", s)
		}
		return b, nil
	}
	return false, decodeFailed(native.ValueDecodeError, "cannot read %T as a boolean", v)
}

func toText(v any) (string, *decodeError) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	}
	return "", decodeFailed(native.ValueDecodeError, "cannot read %T as text", v)
}

// toTemporal renders dates and times as text. MySQL already delivers text;
// pgx delivers time.Time.
func toTemporal(t native.ColumnType, v any) (string, *decodeError) {
	tm, ok := v.(time.Time)
	if !ok {
		return toText(v)
	}
	switch t {
	case native.ColumnDate:
		return tm.Format(dateLayout), nil
	case native.ColumnTime:
		return tm.Format(timeLayout), nil
	case native.ColumnTimestamp:
		return tm.UTC().Format(dateTimeLayout), nil
	default:
		return tm.Format(dateTimeLayout), nil
	}
}
