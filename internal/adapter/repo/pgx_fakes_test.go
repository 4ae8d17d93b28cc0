package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type simpleRow struct {
	scan func(dest ...any) error
}

func (r simpleRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

type sliceRows struct {
	data [][]any
	idx  int
	err  error
}

func (r *sliceRows) Close()                                       {}
func (r *sliceRows) Err() error                                   { return r.err }
func (r *sliceRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *sliceRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *sliceRows) Conn() *pgx.Conn                              { return nil }
func (r *sliceRows) RawValues() [][]byte                          { return nil }
func (r *sliceRows) Values() ([]any, error) {
	return nil, fmt.Errorf("values not supported in test rows")
}

func (r *sliceRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *sliceRows) Scan(dest ...any) error {
	return assign(dest, r.data[r.idx-1])
}

// assign copies values into scan destinations of matching pointer types.
func assign(dest []any, values []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(values))
	}
	for i, v := range values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int:
			*d = v.(int)
		case *[]string:
			*d = v.([]string)
		case *[]byte:
			*d = v.([]byte)
		case interface{ UnmarshalJSON([]byte) error }:
			if err := d.UnmarshalJSON(v.([]byte)); err != nil {
				return err
			}
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

type call struct {
	query string
	args  []any
}

type fakeSQL struct {
	calls    []call
	row      func(query string, args []any) pgx.Row
	rows     func(query string, args []any) (pgx.Rows, error)
	execErr  error
	affected int64
}

func (f *fakeSQL) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, call{query, args})
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", f.affected)), nil
}

func (f *fakeSQL) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	f.calls = append(f.calls, call{query, args})
	if f.row == nil {
		return simpleRow{}
	}
	return f.row(query, args)
}

func (f *fakeSQL) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	f.calls = append(f.calls, call{query, args})
	return f.rows(query, args)
}
