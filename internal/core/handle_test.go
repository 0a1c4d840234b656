package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/djcore/internal/errs"
	"github.com/koustreak/djcore/internal/native"
)

type freeCounter map[native.Row]int

func (c freeCounter) free(r native.Row) { c[r]++ }

func TestOwnedHandle_ReleaseOnce(t *testing.T) {
	frees := freeCounter{}
	h := Acquire(native.Row(7), frees.free)
	assert.True(t, h.Owned())

	p, err := h.Get()
	require.NoError(t, err)
	assert.Equal(t, native.Row(7), p)

	h.Release()
	h.Release()
	h.Release()
	assert.Equal(t, 1, frees[7])

	_, err = h.Get()
	assert.True(t, errs.IsResource(err))
	assert.True(t, errors.Is(err, errs.ErrReleased))
}

func TestOwnedHandle_BorrowNeverFrees(t *testing.T) {
	h := Borrow(native.Row(3))
	assert.False(t, h.Owned())
	h.Release()

	_, err := h.Get()
	assert.True(t, errors.Is(err, errs.ErrReleased))

	_, err = h.Transfer()
	assert.True(t, errs.IsResource(err))
}

func TestOwnedHandle_Transfer(t *testing.T) {
	frees := freeCounter{}
	h := Acquire(native.Row(9), frees.free)

	p, err := h.Transfer()
	require.NoError(t, err)
	assert.Equal(t, native.Row(9), p)
	assert.True(t, h.Moved())
	assert.False(t, h.Owned())

	h.Release()
	assert.Zero(t, frees[9], "moved handle must not be freed by its old owner")
	assert.True(t, h.Moved())

	_, err = h.Transfer()
	assert.True(t, errors.Is(err, errs.ErrUseAfterMove))
	_, err = h.Get()
	assert.True(t, errors.Is(err, errs.ErrUseAfterMove))
}

func TestOwnedHandle_TransferBorrowed(t *testing.T) {
	h := Borrow(native.Row(4))
	_, err := h.Transfer()
	require.Error(t, err)
	assert.True(t, errs.IsResource(err))

	p, err := h.Get()
	require.NoError(t, err)
	assert.Equal(t, native.Row(4), p)
}
