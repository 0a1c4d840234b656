package core

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/koustreak/djcore/internal/errs"
	"github.com/koustreak/djcore/internal/native"
)

// Value is a typed value crossing the native boundary, either as a query
// argument or as a decoded column. The set of implementations is closed.
type Value interface {
	NativeType() native.NativeType
	// Interface returns the plain Go value: nil, bool, a sized integer or
	// float, string or []byte. A DecodeFailure returns its error.
	Interface() any
	isValue()
}

type (
	Null    struct{}
	Bool    bool
	Int8    int8
	UInt8   uint8
	Int16   int16
	UInt16  uint16
	Int32   int32
	UInt32  uint32
	Int64   int64
	UInt64  uint64
	Float32 float32
	Float64 float64
	Text    string
	Bytes   []byte
)

// DecodeFailure stands in for a column that could not be decoded when a
// whole row is converted with ToValueMap.
type DecodeFailure struct {
	Err error
}

func (Null) NativeType() native.NativeType          { return native.TypeNull }
func (Bool) NativeType() native.NativeType          { return native.TypeBool }
func (Int8) NativeType() native.NativeType          { return native.TypeInt8 }
func (UInt8) NativeType() native.NativeType         { return native.TypeUInt8 }
func (Int16) NativeType() native.NativeType         { return native.TypeInt16 }
func (UInt16) NativeType() native.NativeType        { return native.TypeUInt16 }
func (Int32) NativeType() native.NativeType         { return native.TypeInt32 }
func (UInt32) NativeType() native.NativeType        { return native.TypeUInt32 }
func (Int64) NativeType() native.NativeType         { return native.TypeInt64 }
func (UInt64) NativeType() native.NativeType        { return native.TypeUInt64 }
func (Float32) NativeType() native.NativeType       { return native.TypeFloat32 }
func (Float64) NativeType() native.NativeType       { return native.TypeFloat64 }
func (Text) NativeType() native.NativeType          { return native.TypeString }
func (Bytes) NativeType() native.NativeType         { return native.TypeBytes }
func (DecodeFailure) NativeType() native.NativeType { return native.TypeNone }

func (Null) Interface() any            { return nil }
func (v Bool) Interface() any          { return bool(v) }
func (v Int8) Interface() any          { return int8(v) }
func (v UInt8) Interface() any         { return uint8(v) }
func (v Int16) Interface() any         { return int16(v) }
func (v UInt16) Interface() any        { return uint16(v) }
func (v Int32) Interface() any         { return int32(v) }
func (v UInt32) Interface() any        { return uint32(v) }
func (v Int64) Interface() any         { return int64(v) }
func (v UInt64) Interface() any        { return uint64(v) }
func (v Float32) Interface() any       { return float32(v) }
func (v Float64) Interface() any       { return float64(v) }
func (v Text) Interface() any          { return string(v) }
func (v Bytes) Interface() any         { return []byte(v) }
func (v DecodeFailure) Interface() any { return v.Err }

func (Null) isValue()          {}
func (Bool) isValue()          {}
func (Int8) isValue()          {}
func (UInt8) isValue()         {}
func (Int16) isValue()         {}
func (UInt16) isValue()        {}
func (Int32) isValue()         {}
func (UInt32) isValue()        {}
func (Int64) isValue()         {}
func (UInt64) isValue()        {}
func (Float32) isValue()       {}
func (Float64) isValue()       {}
func (Text) isValue()          {}
func (Bytes) isValue()         {}
func (DecodeFailure) isValue() {}

func (f DecodeFailure) Error() string {
	return f.Err.Error()
}

func (f DecodeFailure) Unwrap() error {
	return f.Err
}

// encodeValue produces the flat boundary encoding of v.
func encodeValue(v Value) ([]byte, error) {
	le := binary.LittleEndian
	switch x := v.(type) {
	case Null:
		return nil, nil
	case Bool:
		if x {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case Int8:
		return []byte{byte(x)}, nil
	case UInt8:
		return []byte{byte(x)}, nil
	case Int16:
		return le.AppendUint16(nil, uint16(x)), nil
	case UInt16:
		return le.AppendUint16(nil, uint16(x)), nil
	case Int32:
		return le.AppendUint32(nil, uint32(x)), nil
	case UInt32:
		return le.AppendUint32(nil, uint32(x)), nil
	case Int64:
		return le.AppendUint64(nil, uint64(x)), nil
	case UInt64:
		return le.AppendUint64(nil, uint64(x)), nil
	case Float32:
		return le.AppendUint32(nil, math.Float32bits(float32(x))), nil
	case Float64:
		return le.AppendUint64(nil, math.Float64bits(float64(x))), nil
	case Text:
		return []byte(x), nil
	case Bytes:
		return []byte(x), nil
	}
	return nil, errs.Wrap(errs.ErrKindArgument, fmt.Sprintf("cannot encode %T", v), errs.ErrUnsupportedArgumentType)
}

// decodeStaged reinterprets a staged buffer according to its tag. Text and
// bytes are copied out of the native buffer.
func decodeStaged(t native.NativeType, data []byte) (Value, error) {
	if !t.Valid() || t == native.TypeNone {
		return nil, errs.New(errs.ErrKindInvalidNativeType, fmt.Sprintf("unrecognized native type tag %d", int32(t)))
	}
	if w := t.Width(); w >= 0 && len(data) != w {
		return nil, errs.New(errs.ErrKindDecode, fmt.Sprintf("%s value has %d bytes, want %d", t, len(data), w))
	}

	le := binary.LittleEndian
	switch t {
	case native.TypeNull:
		return Null{}, nil
	case native.TypeBool:
		return Bool(data[0] != 0), nil
	case native.TypeInt8:
		return Int8(int8(data[0])), nil
	case native.TypeUInt8:
		return UInt8(data[0]), nil
	case native.TypeInt16:
		return Int16(int16(le.Uint16(data))), nil
	case native.TypeUInt16:
		return UInt16(le.Uint16(data)), nil
	case native.TypeInt32:
		return Int32(int32(le.Uint32(data))), nil
	case native.TypeUInt32:
		return UInt32(le.Uint32(data)), nil
	case native.TypeInt64:
		return Int64(int64(le.Uint64(data))), nil
	case native.TypeUInt64:
		return UInt64(le.Uint64(data)), nil
	case native.TypeFloat32:
		return Float32(math.Float32frombits(le.Uint32(data))), nil
	case native.TypeFloat64:
		return Float64(math.Float64frombits(le.Uint64(data))), nil
	case native.TypeString:
		if !utf8.Valid(data) {
			return nil, errs.New(errs.ErrKindDecode, "text value is not valid utf-8")
		}
		return Text(string(data)), nil
	default: // native.TypeBytes
		return Bytes(append([]byte{}, data...)), nil
	}
}
