package core

import (
	"github.com/koustreak/djcore/internal/errs"
	"github.com/koustreak/djcore/internal/native"
)

type statusInfo struct {
	kind  errs.ErrKind
	label string
}

var statusTable = map[native.Status]statusInfo{
	native.ConfigurationError:     {errs.ErrKindConfiguration, "configuration error"},
	native.UnknownDatabaseError:   {errs.ErrKindQuery, "database error"},
	native.IoError:                {errs.ErrKindConnection, "i/o error"},
	native.TlsError:               {errs.ErrKindConnection, "tls error"},
	native.ProtocolError:          {errs.ErrKindConnection, "protocol error"},
	native.RowNotFound:            {errs.ErrKindRowNotFound, "row not found"},
	native.TypeNotFound:           {errs.ErrKindDecode, "decode error"},
	native.ColumnIndexOutOfBounds: {errs.ErrKindColumnIndexOutOfBounds, "column index out of bounds"},
	native.ColumnNotFound:         {errs.ErrKindColumnNotFound, "column not found"},
	native.ColumnDecodeError:      {errs.ErrKindDecode, "decode error"},
	native.ValueDecodeError:       {errs.ErrKindDecode, "decode error"},
	native.PoolTimedOut:           {errs.ErrKindPoolTimeout, "pool timeout"},
	native.PoolClosed:             {errs.ErrKindPoolClosed, "pool closed"},
	native.WorkerCrashed:          {errs.ErrKindUnknown, "unknown"},
	native.UnknownDriverError:     {errs.ErrKindUnknown, "unknown"},
	native.NotConnected:           {errs.ErrKindNotConnected, "not connected"},
	native.NoMoreRows:             {errs.ErrKindNoMoreRows, "no more rows"},
	native.NullNotAllowed:         {errs.ErrKindResource, "null not allowed"},
	native.BufferNotEnough:        {errs.ErrKindDecode, "buffer too small"},
	native.InvalidNativeType:      {errs.ErrKindInvalidNativeType, "invalid native type"},
	native.InvalidEnumArgument:    {errs.ErrKindArgument, "invalid enum argument"},
	native.InvalidUTF8String:      {errs.ErrKindDecode, "invalid utf-8"},
	native.UnsupportedNativeType:  {errs.ErrKindInvalidNativeType, "invalid native type"},
	native.StatementInProgress:    {errs.ErrKindQuery, "statement in progress"},
}

// Translate turns the status of a call made on handle h into an error.
// Success yields nil. Any other status yields an *errs.Error whose message
// is the category label followed by the message the library recorded
// against h, which is read and freed here.
func Translate[P ~uintptr](lib native.Library, h P, status native.Status) error {
	if status == native.Success {
		return nil
	}
	info, ok := statusTable[status]
	if !ok {
		info = statusInfo{errs.ErrKindUnknown, "unknown"}
	}

	msg := info.label
	if s := lib.LastErrorMessage(uintptr(h)); s != 0 {
		text := string(lib.CStringRead(s))
		lib.CStringFree(s)
		if text != "" {
			msg = info.label + ": " + text
		}
	}
	return errs.FromStatus(info.kind, int32(status), msg)
}

// takeString decodes a string returned by the library and frees it.
func takeString(lib native.Library, s native.CString) (string, error) {
	if s == 0 {
		return "", errs.New(errs.ErrKindResource, "library returned a null string")
	}
	defer lib.CStringFree(s)
	return string(lib.CStringRead(s)), nil
}
