package core

import (
	"fmt"
	"strings"

	"github.com/koustreak/djcore/internal/errs"
	"github.com/koustreak/djcore/internal/native"
)

// Row is one result row. It owns its native handle.
type Row struct {
	lib     native.Library
	h       *OwnedHandle[native.Row]
	columns []*ColumnRef // borrowed, filled by Columns
}

func newRow(lib native.Library, r native.Row) *Row {
	return &Row{lib: lib, h: Acquire(r, lib.RowFree)}
}

// ColumnCount returns 0 once the row is closed.
func (r *Row) ColumnCount() int {
	p, err := r.h.Get()
	if err != nil {
		return 0
	}
	return r.lib.RowColumnCount(p)
}

func (r *Row) IsEmpty() bool {
	p, err := r.h.Get()
	if err != nil {
		return true
	}
	return r.lib.RowIsEmpty(p)
}

// Column looks up a column by ordinal (any Go integer) or by name. The
// returned reference is owned by the caller.
func (r *Row) Column(index any) (*ColumnRef, error) {
	switch x := index.(type) {
	case string:
		return r.ColumnByName(x)
	case int:
		return r.ColumnAt(x)
	}
	if n, ok := integerValue(index); ok {
		if n.neg || n.abs > uint64(^uint(0)>>1) {
			return nil, errs.FromStatus(errs.ErrKindColumnIndexOutOfBounds, int32(native.ColumnIndexOutOfBounds),
				fmt.Sprintf("column index out of bounds: %v", index))
		}
		return r.ColumnAt(int(n.abs))
	}
	return nil, typeMismatch("column index", "an integer or a name", index)
}

func (r *Row) ColumnAt(ordinal int) (*ColumnRef, error) {
	p, err := r.h.Get()
	if err != nil {
		return nil, err
	}
	var ref native.ColumnRef
	if err := Translate(r.lib, p, r.lib.RowColumnWithOrdinal(p, ordinal, &ref)); err != nil {
		return nil, err
	}
	return newColumnRef(r.lib, Acquire(ref, r.lib.ColumnRefFree), nil)
}

func (r *Row) ColumnByName(name string) (*ColumnRef, error) {
	p, err := r.h.Get()
	if err != nil {
		return nil, err
	}
	if strings.IndexByte(name, 0) >= 0 {
		return nil, errs.New(errs.ErrKindArgument, "column name must not contain a NUL byte")
	}
	var ref native.ColumnRef
	if err := Translate(r.lib, p, r.lib.RowColumnWithName(p, native.CStr(name), &ref)); err != nil {
		return nil, err
	}
	return newColumnRef(r.lib, Acquire(ref, r.lib.ColumnRefFree), nil)
}

// Columns returns references to every column in ordinal order. They belong
// to the row: closing them is a no-op and they become unusable when the row
// is closed.
func (r *Row) Columns() ([]*ColumnRef, error) {
	if r.columns != nil {
		return r.columns, nil
	}
	p, err := r.h.Get()
	if err != nil {
		return nil, err
	}
	raw := make([]native.ColumnRef, r.lib.RowColumnCount(p))
	if err := Translate(r.lib, p, r.lib.RowColumns(p, raw)); err != nil {
		return nil, err
	}
	cols := make([]*ColumnRef, 0, len(raw))
	for _, ref := range raw {
		col, err := newColumnRef(r.lib, Borrow(ref), r)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	r.columns = cols
	return cols, nil
}

// Decode converts the value of col in this row.
func (r *Row) Decode(col *ColumnRef) (Value, error) {
	dv := r.lib.DecodedValueNew()
	defer r.lib.DecodedValueFree(dv)
	return r.decodeInto(dv, col)
}

// Get looks a column up as Column does and decodes it.
func (r *Row) Get(index any) (Value, error) {
	col, err := r.Column(index)
	if err != nil {
		return nil, err
	}
	defer col.Close()
	return r.Decode(col)
}

// ToValueMap decodes every column into a map keyed by column name. When
// several columns share a name, as in "SELECT a.id, b.id", the first keeps
// the bare name and each later one is keyed "name#ordinal" ("id#1"). A
// column that cannot be decoded maps to a DecodeFailure and the others are
// still decoded. Only a closed row or column aborts the whole call.
func (r *Row) ToValueMap() (map[string]Value, error) {
	cols, err := r.Columns()
	if err != nil {
		return nil, err
	}
	dv := r.lib.DecodedValueNew()
	defer r.lib.DecodedValueFree(dv)

	out := make(map[string]Value, len(cols))
	for _, col := range cols {
		v, err := r.decodeInto(dv, col)
		if err != nil {
			if errs.IsResource(err) {
				return nil, err
			}
			v = DecodeFailure{Err: err}
		}
		key := col.name
		if _, dup := out[key]; dup {
			key = fmt.Sprintf("%s#%d", col.name, col.ordinal)
		}
		out[key] = v
	}
	return out, nil
}

// Close frees the row and invalidates the references from Columns.
func (r *Row) Close() {
	for _, col := range r.columns {
		col.h.Release()
	}
	r.columns = nil
	r.h.Release()
}

func (r *Row) decodeInto(dv native.DecodedValue, col *ColumnRef) (Value, error) {
	p, err := r.h.Get()
	if err != nil {
		return nil, err
	}
	cp, err := col.ptr()
	if err != nil {
		return nil, err
	}
	if dv == 0 {
		return nil, errs.New(errs.ErrKindResource, "decoded value allocation failed")
	}
	if err := Translate(r.lib, p, r.lib.RowDecodeToAllocation(p, cp, dv)); err != nil {
		return nil, err
	}
	data := r.lib.DecodedValueData(dv)
	if size := r.lib.DecodedValueSize(dv); size < len(data) {
		data = data[:size]
	}
	v, err := decodeStaged(r.lib.DecodedValueType(dv), data)
	if err != nil {
		return nil, fmt.Errorf("column %q: %w", col.name, err)
	}
	return v, nil
}

// ColumnRef describes one column of a row. Its metadata is read once when
// the reference is created.
type ColumnRef struct {
	lib     native.Library
	h       *OwnedHandle[native.ColumnRef]
	row     *Row // parent of a borrowed reference
	ordinal int
	name    string
	typ     native.ColumnType
}

func newColumnRef(lib native.Library, h *OwnedHandle[native.ColumnRef], row *Row) (*ColumnRef, error) {
	p, err := h.Get()
	if err != nil {
		return nil, err
	}
	name, err := takeString(lib, lib.ColumnRefName(p))
	if err != nil {
		h.Release()
		return nil, err
	}
	return &ColumnRef{
		lib:     lib,
		h:       h,
		row:     row,
		ordinal: lib.ColumnRefOrdinal(p),
		name:    name,
		typ:     lib.ColumnRefType(p),
	}, nil
}

func (c *ColumnRef) Ordinal() int            { return c.ordinal }
func (c *ColumnRef) Name() string            { return c.name }
func (c *ColumnRef) Type() native.ColumnType { return c.typ }

// Borrowed reports whether the reference belongs to its row.
func (c *ColumnRef) Borrowed() bool {
	return c.row != nil
}

// Close frees an owned reference. It does nothing for a borrowed one.
func (c *ColumnRef) Close() {
	if c.row != nil {
		return
	}
	c.h.Release()
}

func (c *ColumnRef) ptr() (native.ColumnRef, error) {
	if c.row != nil {
		if _, err := c.row.h.Get(); err != nil {
			return 0, err
		}
	}
	return c.h.Get()
}
