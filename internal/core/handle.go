// Package core is the managed side of the native boundary. It wraps raw
// native handles in owning or borrowing Go values, encodes query arguments,
// drives cursors and decodes rows into typed values. Application code uses
// this package and never sees a handle, a status number or a staged buffer.
//
// Every type here follows the same lifecycle rule: whoever receives a value
// from a constructor or from Next/Column must Close it, normally with defer.
// Close is always safe to repeat.
//
// None of the types are safe for concurrent use; use one Connection per
// goroutine.
package core

import (
	"github.com/koustreak/djcore/internal/errs"
)

type handleState int

const (
	handleOwned handleState = iota
	handleBorrowed
	handleReleased
	handleMoved
)

// OwnedHandle wraps a native handle together with its ownership. An owning
// handle frees the native object exactly once; a borrowing one never does.
type OwnedHandle[P ~uintptr] struct {
	ptr   P
	state handleState
	free  func(P)
}

// Acquire wraps a handle the caller owns. free runs once, on Release.
func Acquire[P ~uintptr](ptr P, free func(P)) *OwnedHandle[P] {
	return &OwnedHandle[P]{ptr: ptr, state: handleOwned, free: free}
}

// Borrow wraps a handle owned elsewhere. Release only invalidates the
// wrapper.
func Borrow[P ~uintptr](ptr P) *OwnedHandle[P] {
	return &OwnedHandle[P]{ptr: ptr, state: handleBorrowed}
}

// Get returns the native handle while it is usable.
func (h *OwnedHandle[P]) Get() (P, error) {
	switch h.state {
	case handleReleased:
		return 0, errs.Wrap(errs.ErrKindResource, "use after release", errs.ErrReleased)
	case handleMoved:
		return 0, errs.Wrap(errs.ErrKindResource, "use after move", errs.ErrUseAfterMove)
	}
	return h.ptr, nil
}

// Owned reports whether Release will free the native object.
func (h *OwnedHandle[P]) Owned() bool {
	return h.state == handleOwned
}

// Moved reports whether ownership was transferred out of h.
func (h *OwnedHandle[P]) Moved() bool {
	return h.state == handleMoved
}

// Release frees the native object if h owns it, then invalidates h.
// Further calls do nothing.
func (h *OwnedHandle[P]) Release() {
	if h.state == handleOwned && h.free != nil {
		h.free(h.ptr)
	}
	if h.state != handleMoved {
		h.state = handleReleased
	}
	h.ptr = 0
}

// Transfer hands ownership to the caller, who passes it to a native call
// that takes ownership. h can no longer be used or freed afterwards.
func (h *OwnedHandle[P]) Transfer() (P, error) {
	ptr, err := h.Get()
	if err != nil {
		return 0, err
	}
	if h.state != handleOwned {
		return 0, errs.New(errs.ErrKindResource, "cannot transfer a borrowed handle")
	}
	h.state = handleMoved
	h.ptr = 0
	return ptr, nil
}
