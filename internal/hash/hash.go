// Package hash computes content identifiers for attachments and other
// blobs. An identifier is the MD5 digest of the content, carried as a UUID
// so it can be stored in a uuid column and used as an object key.
package hash

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/google/uuid"

	"github.com/koustreak/djcore/internal/errs"
)

// chunkSize is how much of a stream is fed to the digest at a time.
const chunkSize = 1 << 14

// UUIDFromStream digests r until EOF.
func UUIDFromStream(r io.Reader) (uuid.UUID, error) {
	h := md5.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return uuid.Nil, errs.Wrap(errs.ErrKindUnknown, "failed to read stream", err)
	}
	var id uuid.UUID
	copy(id[:], h.Sum(nil))
	return id, nil
}

// UUIDFromBuffer digests b.
func UUIDFromBuffer(b []byte) uuid.UUID {
	return uuid.UUID(md5.Sum(b))
}

// UUIDFromFile digests the file at path.
func UUIDFromFile(path string) (uuid.UUID, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return uuid.Nil, errs.Wrap(errs.ErrKindNotFound, "failed to open "+path, err)
		}
		if errors.Is(err, fs.ErrPermission) {
			return uuid.Nil, errs.Wrap(errs.ErrKindPermissionDenied, "failed to open "+path, err)
		}
		return uuid.Nil, errs.Wrap(errs.ErrKindUnknown, "failed to open "+path, err)
	}
	defer f.Close()
	return UUIDFromStream(f)
}

// Hex renders id as 32 lowercase hex digits without dashes.
func Hex(id uuid.UUID) string {
	return hex.EncodeToString(id[:])
}

// Parse accepts either the dashed UUID form or 32 bare hex digits.
func Parse(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, errs.Wrap(errs.ErrKindArgument, "invalid content id "+s, err)
	}
	return id, nil
}
