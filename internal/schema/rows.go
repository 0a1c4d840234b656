package schema

import (
	"fmt"

	"github.com/koustreak/djcore/internal/core"
	"github.com/koustreak/djcore/internal/errs"
)

// query runs q and calls each with the decoded columns of every row.
func query(conn *core.Connection, q string, args []any, each func(vals []core.Value) error) error {
	cur, err := conn.Fetch(q, args...)
	if err != nil {
		return err
	}
	defer cur.Close()

	for row, err := range cur.All() {
		if err != nil {
			return err
		}
		vals := make([]core.Value, row.ColumnCount())
		for i := range vals {
			if vals[i], err = row.Get(i); err != nil {
				return err
			}
		}
		if err := each(vals); err != nil {
			return err
		}
	}
	return nil
}

func text(v core.Value) (string, error) {
	switch x := v.(type) {
	case core.Text:
		return string(x), nil
	case core.Bytes:
		return string(x), nil
	case core.Null:
		return "", nil
	}
	return "", unexpected("text", v)
}

func nullableText(v core.Value) (*string, error) {
	if _, ok := v.(core.Null); ok {
		return nil, nil
	}
	s, err := text(v)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// boolean accepts a native bool or an integer, which is how MySQL returns
// the result of a comparison.
func boolean(v core.Value) (bool, error) {
	if b, ok := v.(core.Bool); ok {
		return bool(b), nil
	}
	if _, ok := v.(core.Null); ok {
		return false, nil
	}
	n, err := integer(v)
	if err != nil {
		return false, unexpected("boolean", v)
	}
	return n != 0, nil
}

func integer(v core.Value) (int64, error) {
	switch x := v.(type) {
	case core.Int8:
		return int64(x), nil
	case core.UInt8:
		return int64(x), nil
	case core.Int16:
		return int64(x), nil
	case core.UInt16:
		return int64(x), nil
	case core.Int32:
		return int64(x), nil
	case core.UInt32:
		return int64(x), nil
	case core.Int64:
		return int64(x), nil
	case core.UInt64:
		return int64(x), nil
	}
	return 0, unexpected("integer", v)
}

func nullableInt(v core.Value) (*int, error) {
	if _, ok := v.(core.Null); ok {
		return nil, nil
	}
	n, err := integer(v)
	if err != nil {
		return nil, err
	}
	i := int(n)
	return &i, nil
}

func unexpected(want string, v core.Value) error {
	return errs.New(errs.ErrKindDecode, fmt.Sprintf("expected %s, got %T", want, v))
}

// scanColumn fills a ColumnInfo from the seven columns both dialects select.
func scanColumn(vals []core.Value) (ColumnInfo, error) {
	var col ColumnInfo
	if len(vals) != 7 {
		return col, errs.New(errs.ErrKindDecode, fmt.Sprintf("column query returned %d columns", len(vals)))
	}
	var err error
	if col.Name, err = text(vals[0]); err != nil {
		return col, err
	}
	if col.DataType, err = text(vals[1]); err != nil {
		return col, err
	}
	if col.IsNullable, err = boolean(vals[2]); err != nil {
		return col, err
	}
	if col.DefaultValue, err = nullableText(vals[3]); err != nil {
		return col, err
	}
	if col.MaxLength, err = nullableInt(vals[4]); err != nil {
		return col, err
	}
	if col.IsPrimaryKey, err = boolean(vals[5]); err != nil {
		return col, err
	}
	if col.IsUnique, err = boolean(vals[6]); err != nil {
		return col, err
	}
	return col, nil
}

func scanForeignKey(vals []core.Value) (ForeignKey, error) {
	var fk ForeignKey
	if len(vals) != 5 {
		return fk, errs.New(errs.ErrKindDecode, fmt.Sprintf("foreign key query returned %d columns", len(vals)))
	}
	dst := []*string{&fk.Name, &fk.FromTable, &fk.FromColumn, &fk.ToTable, &fk.ToColumn}
	for i, p := range dst {
		s, err := text(vals[i])
		if err != nil {
			return fk, err
		}
		*p = s
	}
	return fk, nil
}
