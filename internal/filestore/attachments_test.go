package filestore_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/djcore/internal/errs"
	"github.com/koustreak/djcore/internal/filestore"
	"github.com/koustreak/djcore/internal/filestore/filestoretest"
	"github.com/koustreak/djcore/internal/hash"
)

func TestAttachments_Key(t *testing.T) {
	att := filestore.NewAttachments(filestoretest.New(), "/external/")
	id := hash.UUIDFromBuffer([]byte("abc"))
	assert.Equal(t, "external/90/01/900150983cd24fb0d6963f7d28e17f72", att.Key(id))

	att = filestore.NewAttachments(filestoretest.New(), "")
	assert.Equal(t, "90/01/900150983cd24fb0d6963f7d28e17f72", att.Key(id))
}

func TestAttachments_PutIsContentAddressed(t *testing.T) {
	ctx := context.Background()
	mem := filestoretest.New()
	att := filestore.NewAttachments(mem, "external")

	id, err := att.Put(ctx, "a.txt", []byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, hash.UUIDFromBuffer([]byte("abc")), id)

	again, err := att.Put(ctx, "copy.txt", []byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, 1, mem.Puts(), "same content is uploaded once")

	info, err := att.Stat(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Size)
	assert.Equal(t, "a.txt", info.Metadata[filestore.MetaFilename])
}

func TestAttachments_PutFileAndDownload(t *testing.T) {
	ctx := context.Background()
	att := filestore.NewAttachments(filestoretest.New(), "external")

	content := strings.Repeat("spike train ", 4000)
	p := filepath.Join(t.TempDir(), "session1.dat")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))

	id, err := att.PutFile(ctx, p)
	require.NoError(t, err)

	var buf bytes.Buffer
	name, err := att.Download(ctx, id, &buf)
	require.NoError(t, err)
	assert.Equal(t, "session1.dat", name)
	assert.Equal(t, content, buf.String())
}

func TestAttachments_DownloadDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	mem := filestoretest.New()
	att := filestore.NewAttachments(mem, "external")

	id, err := att.Put(ctx, "a.txt", []byte("abc"))
	require.NoError(t, err)
	mem.Corrupt(att.Key(id), []byte("abd"))

	_, err = att.Download(ctx, id, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, errs.IsDecode(err))
	assert.Contains(t, err.Error(), "corrupt")
}

func TestAttachments_Missing(t *testing.T) {
	ctx := context.Background()
	att := filestore.NewAttachments(filestoretest.New(), "external")
	id := hash.UUIDFromBuffer([]byte("never stored"))

	_, err := att.Get(ctx, id)
	assert.True(t, errs.IsNotFound(err))
	_, err = att.Download(ctx, id, &bytes.Buffer{})
	assert.True(t, errs.IsNotFound(err))

	_, err = att.PutFile(ctx, filepath.Join(t.TempDir(), "nope"))
	assert.True(t, errs.IsNotFound(err))
}

func TestAttachments_ListRemovePresign(t *testing.T) {
	ctx := context.Background()
	mem := filestoretest.New()
	att := filestore.NewAttachments(mem, "external")

	a, err := att.Put(ctx, "a", []byte("a"))
	require.NoError(t, err)
	b, err := att.Put(ctx, "b", []byte("b"))
	require.NoError(t, err)
	_, err = mem.Put(ctx, "other/readme", strings.NewReader("x"), 1, filestore.PutOptions{})
	require.NoError(t, err)

	ids, err := att.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.ElementsMatch(t, []uuid.UUID{a, b}, ids)

	url, err := att.Presign(ctx, a, time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, att.Key(a))

	require.NoError(t, att.Remove(ctx, a))
	ids, err = att.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	assert.Equal(t, b, ids[0])
}
