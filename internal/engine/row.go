package engine

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/koustreak/djcore/internal/native"
)

type columnMeta struct {
	name     string
	typeName string
	typ      native.ColumnType
}

type rowRecord struct {
	dbType  native.DatabaseType
	columns []columnMeta
	values  []any
	// refs are the borrowed column references handed out by RowColumns.
	refs []native.ColumnRef
}

type columnRef struct {
	row      native.Row
	ordinal  int
	meta     columnMeta
	borrowed bool
}

type decodedValue struct {
	typ  native.NativeType
	data []byte
}

// columnMetadata reads names and database type names once per result set.
func columnMetadata(dbType native.DatabaseType, rows *sql.Rows) ([]columnMeta, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	meta := make([]columnMeta, len(types))
	for i, ct := range types {
		name := strings.ToUpper(ct.DatabaseTypeName())
		meta[i] = columnMeta{
			name:     ct.Name(),
			typeName: name,
			typ:      columnTypeFromName(dbType, name),
		}
	}
	return meta, nil
}

func (e *Engine) row(r native.Row) (*rowRecord, native.Status) {
	row, ok := get[*rowRecord](e, uintptr(r))
	if !ok {
		return nil, e.fail(uintptr(r), native.NullNotAllowed, "row handle is null or released")
	}
	return row, native.Success
}

// RowFree releases r and every borrowed column reference it handed out.
func (e *Engine) RowFree(r native.Row) {
	row, ok := take[*rowRecord](e, uintptr(r))
	if !ok {
		if r != 0 {
			e.reportMisuse("table_row_free", uintptr(r))
		}
		return
	}
	for _, ref := range row.refs {
		e.drop(uintptr(ref))
	}
}

func (e *Engine) RowIsEmpty(r native.Row) bool {
	row, ok := get[*rowRecord](e, uintptr(r))
	return !ok || len(row.columns) == 0
}

func (e *Engine) RowColumnCount(r native.Row) int {
	row, ok := get[*rowRecord](e, uintptr(r))
	if !ok {
		return 0
	}
	return len(row.columns)
}

// RowColumnWithName looks name up linearly and allocates an owned column
// reference for it.
func (e *Engine) RowColumnWithName(r native.Row, name []byte, out *native.ColumnRef) native.Status {
	row, st := e.row(r)
	if st != native.Success {
		return st
	}
	n, st := e.decodeCString(uintptr(r), name)
	if st != native.Success {
		return st
	}
	if out == nil {
		return e.fail(uintptr(r), native.NullNotAllowed, "column output is null")
	}
	for i, col := range row.columns {
		if col.name == n {
			*out = native.ColumnRef(e.put(&columnRef{row: r, ordinal: i, meta: col}))
			return native.Success
		}
	}
	return e.fail(uintptr(r), native.ColumnNotFound, fmt.Sprintf("no column named %q", n))
}

// RowColumnWithOrdinal allocates an owned column reference for ordinal.
func (e *Engine) RowColumnWithOrdinal(r native.Row, ordinal int, out *native.ColumnRef) native.Status {
	row, st := e.row(r)
	if st != native.Success {
		return st
	}
	if out == nil {
		return e.fail(uintptr(r), native.NullNotAllowed, "column output is null")
	}
	if ordinal < 0 || ordinal >= len(row.columns) {
		return e.fail(uintptr(r), native.ColumnIndexOutOfBounds,
			fmt.Sprintf("column %d out of range for a row of %d columns", ordinal, len(row.columns)))
	}
	*out = native.ColumnRef(e.put(&columnRef{row: r, ordinal: ordinal, meta: row.columns[ordinal]}))
	return native.Success
}

// RowColumns fills out with references owned by the row.
func (e *Engine) RowColumns(r native.Row, out []native.ColumnRef) native.Status {
	row, st := e.row(r)
	if st != native.Success {
		return st
	}
	if len(out) < len(row.columns) {
		return e.fail(uintptr(r), native.BufferNotEnough,
			fmt.Sprintf("need room for %d columns, got %d", len(row.columns), len(out)))
	}
	if row.refs == nil {
		row.refs = make([]native.ColumnRef, len(row.columns))
		for i, col := range row.columns {
			row.refs[i] = native.ColumnRef(e.put(&columnRef{row: r, ordinal: i, meta: col, borrowed: true}))
		}
	}
	copy(out, row.refs)
	return native.Success
}

// RowDecodeToAllocation stages the value of col in dst, replacing whatever
// dst held before.
func (e *Engine) RowDecodeToAllocation(r native.Row, col native.ColumnRef, dst native.DecodedValue) native.Status {
	row, st := e.row(r)
	if st != native.Success {
		return st
	}
	ref, ok := get[*columnRef](e, uintptr(col))
	if !ok {
		return e.fail(uintptr(r), native.NullNotAllowed, "column handle is null or released")
	}
	dv, ok := get[*decodedValue](e, uintptr(dst))
	if !ok {
		return e.fail(uintptr(r), native.NullNotAllowed, "decoded value handle is null or released")
	}
	if ref.row != r {
		return e.fail(uintptr(r), native.InvalidEnumArgument, "column reference belongs to another row")
	}

	dv.typ, dv.data = native.TypeNone, nil
	typ, data, err := decodeColumn(row.dbType, ref.meta, row.values[ref.ordinal])
	if err != nil {
		return e.fail(uintptr(r), err.status, fmt.Sprintf("column %q: %s", ref.meta.name, err.msg))
	}
	dv.typ, dv.data = typ, data
	return native.Success
}

// ColumnRefFree releases an owned column reference. References borrowed
// from RowColumns are released with their row.
func (e *Engine) ColumnRefFree(c native.ColumnRef) {
	ref, ok := get[*columnRef](e, uintptr(c))
	if !ok {
		if c != 0 {
			e.reportMisuse("table_column_ref_free", uintptr(c))
		}
		return
	}
	if ref.borrowed {
		e.countMisuse()
		e.reportMisuse("table_column_ref_free", uintptr(c))
		return
	}
	e.drop(uintptr(c))
}

func (e *Engine) ColumnRefOrdinal(c native.ColumnRef) int {
	ref, ok := get[*columnRef](e, uintptr(c))
	if !ok {
		return -1
	}
	return ref.ordinal
}

func (e *Engine) ColumnRefName(c native.ColumnRef) native.CString {
	ref, ok := get[*columnRef](e, uintptr(c))
	if !ok {
		return 0
	}
	return e.newCString(ref.meta.name)
}

func (e *Engine) ColumnRefType(c native.ColumnRef) native.ColumnType {
	ref, ok := get[*columnRef](e, uintptr(c))
	if !ok {
		return native.ColumnUnknown
	}
	return ref.meta.typ
}

// --- decoded values ---

func (e *Engine) DecodedValueNew() native.DecodedValue {
	return native.DecodedValue(e.put(&decodedValue{}))
}

func (e *Engine) DecodedValueFree(v native.DecodedValue) {
	if _, ok := take[*decodedValue](e, uintptr(v)); !ok && v != 0 {
		e.reportMisuse("allocated_decoded_value_free", uintptr(v))
	}
}

// DecodedValueData returns the staged bytes. The slice stays valid until the
// next decode into v.
func (e *Engine) DecodedValueData(v native.DecodedValue) []byte {
	dv, ok := get[*decodedValue](e, uintptr(v))
	if !ok {
		return nil
	}
	return dv.data
}

func (e *Engine) DecodedValueSize(v native.DecodedValue) int {
	dv, ok := get[*decodedValue](e, uintptr(v))
	if !ok {
		return 0
	}
	return len(dv.data)
}

func (e *Engine) DecodedValueType(v native.DecodedValue) native.NativeType {
	dv, ok := get[*decodedValue](e, uintptr(v))
	if !ok {
		return native.TypeNone
	}
	return dv.typ
}
