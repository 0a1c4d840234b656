package filestore

import (
	"io"
	"time"
)

// ObjectInfo describes a single stored object.
type ObjectInfo struct {
	// Key is the full object path within the bucket.
	Key string

	// Size is the byte size of the object. -1 if unknown.
	Size int64

	ContentType string

	// ETag is the object's entity tag, as returned by the backend.
	ETag string

	LastModified time.Time

	// Metadata holds user metadata set at upload time, such as the
	// original file name.
	Metadata map[string]string
}

// Object is a streaming handle to an object's content.
// The caller MUST call Close() after reading.
type Object interface {
	io.ReadCloser

	// Info returns the metadata for this object.
	Info() *ObjectInfo
}

// PutOptions carries the optional attributes of an upload.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// ListOptions controls how List filters results.
type ListOptions struct {
	// Prefix restricts results to keys starting with this string.
	Prefix string

	// Limit caps the number of results returned. 0 means no limit.
	Limit int
}
