// Package errs provides the unified error type used across all of djcore.
//
// Native status codes, driver errors and object-store failures are all
// wrapped into *errs.Error before they reach callers. Callers use the Is*
// predicates to branch on the category without importing driver packages
// or comparing raw status numbers.
//
// Usage:
//
//	// In the core, after a native call:
//	return errs.Wrap(errs.ErrKindArgument, "argument 3", errs.ErrArgumentRange)
//
//	// In application code:
//	if errs.IsNotConnected(err) {
//	    conn.Connect()
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing native status numbers.
type ErrKind int

const (
	ErrKindUnknown ErrKind = iota
	ErrKindConfiguration
	ErrKindConnection // I/O, TLS or protocol failure
	ErrKindNotConnected
	ErrKindAlreadyConnected
	ErrKindQuery // unknown database, failed statement
	ErrKindRowNotFound
	ErrKindNoMoreRows // end of iteration, not a failure
	ErrKindColumnNotFound
	ErrKindColumnIndexOutOfBounds
	ErrKindDecode
	ErrKindArgument
	ErrKindPoolTimeout
	ErrKindPoolClosed
	ErrKindInvalidNativeType
	ErrKindResource // use after free, use after move
	ErrKindNotFound
	ErrKindTimeout
	ErrKindPermissionDenied
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindConfiguration:
		return "configuration"
	case ErrKindConnection:
		return "connection"
	case ErrKindNotConnected:
		return "not_connected"
	case ErrKindAlreadyConnected:
		return "already_connected"
	case ErrKindQuery:
		return "query"
	case ErrKindRowNotFound:
		return "row_not_found"
	case ErrKindNoMoreRows:
		return "no_more_rows"
	case ErrKindColumnNotFound:
		return "column_not_found"
	case ErrKindColumnIndexOutOfBounds:
		return "column_index_out_of_bounds"
	case ErrKindDecode:
		return "decode"
	case ErrKindArgument:
		return "argument"
	case ErrKindPoolTimeout:
		return "pool_timeout"
	case ErrKindPoolClosed:
		return "pool_closed"
	case ErrKindInvalidNativeType:
		return "invalid_native_type"
	case ErrKindResource:
		return "resource"
	case ErrKindNotFound:
		return "not_found"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindPermissionDenied:
		return "permission_denied"
	default:
		return "unknown"
	}
}

// Sentinel causes. They are wrapped by an *Error carrying the matching kind,
// so both errors.Is(err, ErrUseAfterMove) and IsArgument(err) hold.
var (
	ErrTypeMismatch            = errors.New("value has the wrong type for this setting")
	ErrUnknownSetting          = errors.New("unknown setting")
	ErrArgumentRange           = errors.New("integer argument out of 32-bit range")
	ErrUnsupportedArgumentType = errors.New("unsupported argument type")
	ErrUseAfterMove            = errors.New("argument list already moved into a query")
	ErrAlreadyConnected        = errors.New("connection is already connected")
	ErrCursorExhausted         = errors.New("cursor is exhausted")
	ErrReleased                = errors.New("native handle already released")
)

// Error is the single error type returned by all djcore packages.
type Error struct {
	Kind    ErrKind
	Code    int32 // native status code, 0 when the error did not come from a status
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// FromStatus creates an *Error for a failed native call.
func FromStatus(kind ErrKind, code int32, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// --- Predicates ---

func IsConfiguration(err error) bool { return kindOf(err) == ErrKindConfiguration }

// IsConnection reports whether err is an I/O, TLS or protocol failure.
func IsConnection(err error) bool { return kindOf(err) == ErrKindConnection }

func IsNotConnected(err error) bool     { return kindOf(err) == ErrKindNotConnected }
func IsAlreadyConnected(err error) bool { return kindOf(err) == ErrKindAlreadyConnected }
func IsQuery(err error) bool            { return kindOf(err) == ErrKindQuery }
func IsRowNotFound(err error) bool      { return kindOf(err) == ErrKindRowNotFound }

// IsNoMoreRows reports whether err only signals that a cursor reached its end.
func IsNoMoreRows(err error) bool { return kindOf(err) == ErrKindNoMoreRows }

func IsColumnNotFound(err error) bool { return kindOf(err) == ErrKindColumnNotFound }
func IsColumnIndexOutOfBounds(err error) bool {
	return kindOf(err) == ErrKindColumnIndexOutOfBounds
}
func IsDecode(err error) bool            { return kindOf(err) == ErrKindDecode }
func IsArgument(err error) bool          { return kindOf(err) == ErrKindArgument }
func IsPoolTimeout(err error) bool       { return kindOf(err) == ErrKindPoolTimeout }
func IsPoolClosed(err error) bool        { return kindOf(err) == ErrKindPoolClosed }
func IsInvalidNativeType(err error) bool { return kindOf(err) == ErrKindInvalidNativeType }

// IsResource reports whether err is a tripped ownership guard. It always
// indicates a programming error in the caller.
func IsResource(err error) bool { return kindOf(err) == ErrKindResource }

// IsNotFound reports whether err is a missing object, bucket or key.
func IsNotFound(err error) bool { return kindOf(err) == ErrKindNotFound }

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool { return kindOf(err) == ErrKindTimeout }

func IsPermissionDenied(err error) bool { return kindOf(err) == ErrKindPermissionDenied }

// KindOf returns the ErrKind of the first *Error in err's chain.
func KindOf(err error) ErrKind {
	return kindOf(err)
}

// CodeOf returns the native status code carried by err, or 0.
func CodeOf(err error) int32 {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// kindOf extracts the ErrKind from any error in the chain.
func kindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
