package core

import (
	"fmt"
	"math"

	"github.com/koustreak/djcore/internal/errs"
	"github.com/koustreak/djcore/internal/native"
)

// Args is an ordered list of positional query arguments. It is consumed by
// exactly one Execute or Fetch call; afterwards Add fails with
// errs.ErrUseAfterMove and Close does nothing.
type Args struct {
	lib native.Library
	h   *OwnedHandle[native.ArgVector]
	n   int
}

// NewArgs allocates an empty argument list.
func NewArgs(lib native.Library) *Args {
	return &Args{lib: lib, h: Acquire(lib.ArgVectorNew(), lib.ArgVectorFree)}
}

// Len returns the number of arguments added so far.
func (a *Args) Len() int {
	return a.n
}

// Add appends one argument. Strings are bound as text, []byte as bytes, any
// float as a 64-bit float and any integer as a 32-bit integer; nil binds
// NULL. A core.Value is bound with its own type.
func (a *Args) Add(v any) error {
	if a.h.Moved() {
		return errs.Wrap(errs.ErrKindArgument, fmt.Sprintf("argument %d", a.n+1), errs.ErrUseAfterMove)
	}
	val, err := argValue(v)
	if err != nil {
		return errs.Wrap(errs.ErrKindArgument, fmt.Sprintf("argument %d", a.n+1), err)
	}
	ptr, err := a.h.Get()
	if err != nil {
		return err
	}
	data, err := encodeValue(val)
	if err != nil {
		return err
	}
	if err := Translate(a.lib, ptr, a.lib.ArgVectorAdd(ptr, data, val.NativeType())); err != nil {
		return err
	}
	a.n++
	return nil
}

// Close frees the list if it was never handed to a query.
func (a *Args) Close() {
	a.h.Release()
}

// take moves the native list out for a query call. A nil list is passed as
// the null handle.
func (a *Args) take() (native.ArgVector, error) {
	if a == nil {
		return 0, nil
	}
	if a.h.Moved() {
		return 0, errs.Wrap(errs.ErrKindArgument, "args", errs.ErrUseAfterMove)
	}
	return a.h.Transfer()
}

func argValue(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null{}, nil
	case DecodeFailure:
		return nil, errs.ErrUnsupportedArgumentType
	case Value:
		return x, nil
	case []byte:
		return Bytes(x), nil
	case string:
		return Text(x), nil
	case float32:
		return Float64(x), nil
	case float64:
		return Float64(x), nil
	case int:
		return int32Arg(int64(x))
	case int8:
		return Int32(x), nil
	case int16:
		return Int32(x), nil
	case int32:
		return Int32(x), nil
	case int64:
		return int32Arg(x)
	case uint:
		return uint32Arg(uint64(x))
	case uint8:
		return Int32(x), nil
	case uint16:
		return Int32(x), nil
	case uint32:
		return uint32Arg(uint64(x))
	case uint64:
		return uint32Arg(x)
	}
	return nil, fmt.Errorf("%w: %T", errs.ErrUnsupportedArgumentType, v)
}

func int32Arg(n int64) (Value, error) {
	if n < math.MinInt32 || n > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %d", errs.ErrArgumentRange, n)
	}
	return Int32(n), nil
}

func uint32Arg(n uint64) (Value, error) {
	if n > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %d", errs.ErrArgumentRange, n)
	}
	return Int32(n), nil
}
