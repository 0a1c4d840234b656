package filestore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/koustreak/djcore/internal/errs"
	"github.com/koustreak/djcore/internal/hash"
)

// MetaFilename is the user metadata key holding an attachment's original
// file name.
const MetaFilename = "filename"

// Attachments stores blobs in a Store under content-hash keys of the form
// <location>/<h0h1>/<h2h3>/<hex>.
type Attachments struct {
	store    Store
	location string
}

// NewAttachments returns an attachment store rooted at location.
func NewAttachments(store Store, location string) *Attachments {
	return &Attachments{store: store, location: strings.Trim(location, "/")}
}

// Key returns the object key for id.
func (a *Attachments) Key(id uuid.UUID) string {
	h := hash.Hex(id)
	return path.Join(a.location, h[0:2], h[2:4], h)
}

// Put stores data under its content hash. Content that is already present
// is not uploaded again.
func (a *Attachments) Put(ctx context.Context, name string, data []byte) (uuid.UUID, error) {
	id := hash.UUIDFromBuffer(data)
	return id, a.put(ctx, id, name, bytes.NewReader(data), int64(len(data)))
}

// PutFile stores the file at p under its content hash.
func (a *Attachments) PutFile(ctx context.Context, p string) (uuid.UUID, error) {
	id, err := hash.UUIDFromFile(p)
	if err != nil {
		return uuid.Nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return uuid.Nil, errs.Wrap(errs.ErrKindUnknown, "failed to open "+p, err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return uuid.Nil, errs.Wrap(errs.ErrKindUnknown, "failed to stat "+p, err)
	}
	return id, a.put(ctx, id, filepath.Base(p), f, st.Size())
}

func (a *Attachments) put(ctx context.Context, id uuid.UUID, name string, r io.Reader, size int64) error {
	key := a.Key(id)
	_, err := a.store.Stat(ctx, key)
	if err == nil {
		return nil
	}
	if !errs.IsNotFound(err) {
		return err
	}
	_, err = a.store.Put(ctx, key, r, size, PutOptions{
		ContentType: "application/octet-stream",
		Metadata:    map[string]string{MetaFilename: name},
	})
	return err
}

// Get opens the attachment with the given id.
func (a *Attachments) Get(ctx context.Context, id uuid.UUID) (Object, error) {
	return a.store.Get(ctx, a.Key(id))
}

// Stat returns the stored metadata of an attachment.
func (a *Attachments) Stat(ctx context.Context, id uuid.UUID) (*ObjectInfo, error) {
	return a.store.Stat(ctx, a.Key(id))
}

// Download copies an attachment to w and checks that the content still
// hashes to id. It returns the original file name.
func (a *Attachments) Download(ctx context.Context, id uuid.UUID, w io.Writer) (string, error) {
	obj, err := a.Get(ctx, id)
	if err != nil {
		return "", err
	}
	defer obj.Close()

	got, err := hash.UUIDFromStream(io.TeeReader(obj, w))
	if err != nil {
		return "", err
	}
	if got != id {
		return "", errs.New(errs.ErrKindDecode, "attachment "+hash.Hex(id)+" is corrupt: content hashes to "+hash.Hex(got))
	}
	return obj.Info().Metadata[MetaFilename], nil
}

// List returns every attachment id under the location.
func (a *Attachments) List(ctx context.Context, limit int) ([]uuid.UUID, error) {
	prefix := a.location
	if prefix != "" {
		prefix += "/"
	}
	objs, err := a.store.List(ctx, ListOptions{Prefix: prefix, Limit: limit})
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(objs))
	for _, o := range objs {
		id, err := uuid.Parse(path.Base(o.Key))
		if err != nil {
			continue // not an attachment key
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Remove deletes an attachment.
func (a *Attachments) Remove(ctx context.Context, id uuid.UUID) error {
	return a.store.Remove(ctx, a.Key(id))
}

// Presign returns a time-limited download URL for an attachment.
func (a *Attachments) Presign(ctx context.Context, id uuid.UUID, ttl time.Duration) (string, error) {
	return a.store.PresignGetURL(ctx, a.Key(id), ttl)
}
