// Package filestoretest provides an in-memory filestore.Store for tests.
package filestoretest

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/koustreak/djcore/internal/errs"
	"github.com/koustreak/djcore/internal/filestore"
)

// Memory is a filestore.Store that keeps objects in a map.
type Memory struct {
	mu      sync.Mutex
	objects map[string]memObject
	puts    int
}

type memObject struct {
	data []byte
	info filestore.ObjectInfo
}

var _ filestore.Store = (*Memory)(nil)

func New() *Memory {
	return &Memory{objects: make(map[string]memObject)}
}

// Puts returns how many uploads reached the store.
func (m *Memory) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

// Corrupt overwrites the stored bytes of key without touching its metadata.
func (m *Memory) Corrupt(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.objects[key]
	o.data = data
	m.objects[key] = o
}

func (m *Memory) Ping(context.Context) error { return nil }
func (m *Memory) Close() error               { return nil }

func (m *Memory) Put(ctx context.Context, key string, r io.Reader, size int64, opts filestore.PutOptions) (*filestore.ObjectInfo, error) {
	data, err := io.ReadAll(io.LimitReader(r, size))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnection, "failed to put object", err)
	}
	sum := md5.Sum(data)
	info := filestore.ObjectInfo{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  opts.ContentType,
		ETag:         hex.EncodeToString(sum[:]),
		LastModified: time.Now(),
		Metadata:     maps.Clone(opts.Metadata),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memObject{data: data, info: info}
	m.puts++
	return &info, nil
}

func (m *Memory) Get(ctx context.Context, key string) (filestore.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "failed to get object: no such key "+key)
	}
	info := o.info
	return &object{Reader: bytes.NewReader(o.data), info: &info}, nil
}

func (m *Memory) Stat(ctx context.Context, key string) (*filestore.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "failed to stat object: no such key "+key)
	}
	info := o.info
	return &info, nil
}

func (m *Memory) List(ctx context.Context, opts filestore.ListOptions) ([]filestore.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []filestore.ObjectInfo
	for _, k := range slices.Sorted(maps.Keys(m.objects)) {
		if !strings.HasPrefix(k, opts.Prefix) {
			continue
		}
		out = append(out, m.objects[k].info)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *Memory) PresignGetURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "memory://" + key + "?ttl=" + ttl.String(), nil
}

type object struct {
	*bytes.Reader
	info *filestore.ObjectInfo
}

func (o *object) Close() error                { return nil }
func (o *object) Info() *filestore.ObjectInfo { return o.info }
