package engine

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/koustreak/djcore/internal/native"
)

type argVector struct {
	values []any
}

func (e *Engine) ArgVectorNew() native.ArgVector {
	return native.ArgVector(e.put(&argVector{}))
}

func (e *Engine) ArgVectorFree(v native.ArgVector) {
	if _, ok := take[*argVector](e, uintptr(v)); !ok && v != 0 {
		e.reportMisuse("placeholder_argument_vector_free", uintptr(v))
	}
}

// ArgVectorAdd appends one value, encoded per t, to the end of v.
func (e *Engine) ArgVectorAdd(v native.ArgVector, data []byte, t native.NativeType) native.Status {
	vec, ok := get[*argVector](e, uintptr(v))
	if !ok {
		return e.fail(uintptr(v), native.NullNotAllowed, "argument vector is null or released")
	}
	value, status, msg := decodeArg(data, t)
	if status != native.Success {
		return e.fail(uintptr(v), status, fmt.Sprintf("argument %d: %s", len(vec.values), msg))
	}
	vec.values = append(vec.values, value)
	return native.Success
}

// consumeArgs removes v from the table and returns its values. A null
// vector means no arguments.
func (e *Engine) consumeArgs(c native.Connection, v native.ArgVector) ([]any, native.Status) {
	if v == 0 {
		return nil, native.Success
	}
	vec, ok := take[*argVector](e, uintptr(v))
	if !ok {
		return nil, e.fail(uintptr(c), native.NullNotAllowed, "argument vector is released")
	}
	return vec.values, native.Success
}

// decodeArg turns the flat boundary encoding into a driver argument.
func decodeArg(data []byte, t native.NativeType) (any, native.Status, string) {
	if w := t.Width(); w > 0 && len(data) != w {
		return nil, native.BufferNotEnough, fmt.Sprintf("%s needs %d bytes, got %d", t, w, len(data))
	}
	le := binary.LittleEndian
	switch t {
	case native.TypeNull:
		return nil, native.Success, ""
	case native.TypeBool:
		return data[0] != 0, native.Success, ""
	case native.TypeInt8:
		return int8(data[0]), native.Success, ""
	case native.TypeUInt8:
		return data[0], native.Success, ""
	case native.TypeInt16:
		return int16(le.Uint16(data)), native.Success, ""
	case native.TypeUInt16:
		return le.Uint16(data), native.Success, ""
	case native.TypeInt32:
		return int32(le.Uint32(data)), native.Success, ""
	case native.TypeUInt32:
		return le.Uint32(data), native.Success, ""
	case native.TypeInt64:
		return int64(le.Uint64(data)), native.Success, ""
	case native.TypeUInt64:
		return le.Uint64(data), native.Success, ""
	case native.TypeFloat32:
		return math.Float32frombits(le.Uint32(data)), native.Success, ""
	case native.TypeFloat64:
		return math.Float64frombits(le.Uint64(data)), native.Success, ""
	case native.TypeString:
		if !utf8.Valid(data) {
			return nil, native.InvalidUTF8String, "text is not valid utf-8"
		}
		return string(data), native.Success, ""
	case native.TypeBytes:
		b := make([]byte, len(data))
		copy(b, data)
		return b, native.Success, ""
	default:
		return nil, native.InvalidNativeType, fmt.Sprintf("cannot bind native type %d", int32(t))
	}
}
