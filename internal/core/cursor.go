package core

import (
	"iter"

	"github.com/koustreak/djcore/internal/errs"
	"github.com/koustreak/djcore/internal/native"
)

// Cursor is a forward-only stream of rows from one Fetch. It cannot be
// restarted; fetch again to re-read.
type Cursor struct {
	lib  native.Library
	h    *OwnedHandle[native.Cursor]
	done bool
	rows int
}

// Next returns the next row, which the caller must close. At the end of the
// result set it returns (nil, nil) once and releases the native cursor;
// calls after that fail with errs.ErrCursorExhausted. Any other failure
// also ends the cursor.
func (c *Cursor) Next() (*Row, error) {
	if c.done {
		return nil, errs.Wrap(errs.ErrKindResource, "next", errs.ErrCursorExhausted)
	}
	p, err := c.h.Get()
	if err != nil {
		c.done = true
		return nil, errs.Wrap(errs.ErrKindResource, "next", errs.ErrCursorExhausted)
	}

	var r native.Row
	st := c.lib.CursorNext(p, &r)
	switch st {
	case native.Success:
		c.rows++
		return newRow(c.lib, r), nil
	case native.NoMoreRows:
		// Consume the message so it cannot be attached to a later failure.
		_ = Translate(c.lib, p, st)
		c.finish()
		return nil, nil
	default:
		err := Translate(c.lib, p, st)
		c.finish()
		return nil, err
	}
}

// All yields the remaining rows. Each row is closed when the loop body
// returns, so a row must not be kept past its iteration. A failure is
// yielded once with a nil row and ends the sequence.
func (c *Cursor) All() iter.Seq2[*Row, error] {
	return func(yield func(*Row, error) bool) {
		for {
			row, err := c.Next()
			if err != nil {
				yield(nil, err)
				return
			}
			if row == nil {
				return
			}
			more := yield(row, nil)
			row.Close()
			if !more {
				return
			}
		}
	}
}

// Rest decodes every remaining row with ToValueMap.
func (c *Cursor) Rest() ([]map[string]Value, error) {
	var out []map[string]Value
	for row, err := range c.All() {
		if err != nil {
			return out, err
		}
		m, err := row.ToValueMap()
		if err != nil {
			return out, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Rows returns how many rows Next has produced.
func (c *Cursor) Rows() int {
	return c.rows
}

// Done reports whether the cursor has ended.
func (c *Cursor) Done() bool {
	return c.done
}

// Close releases the native cursor, discarding unread rows. The connection
// can then run another statement.
func (c *Cursor) Close() {
	c.finish()
}

func (c *Cursor) finish() {
	c.done = true
	c.h.Release()
}
