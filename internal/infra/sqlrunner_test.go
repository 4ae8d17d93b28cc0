package infra

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

const markedQuery = `--sql 0f8fad5b-d9cb-469f-a165-70867728950e
select 1;
`

type rowFunc func(dest ...any) error

func (f rowFunc) Scan(dest ...any) error { return f(dest...) }

type recordingDB struct {
	queries []string
	tag     pgconn.CommandTag
	err     error
	row     pgx.Row
}

func (d *recordingDB) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	d.queries = append(d.queries, query)
	return d.tag, d.err
}

func (d *recordingDB) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	d.queries = append(d.queries, query)
	return d.row
}

func (d *recordingDB) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	d.queries = append(d.queries, query)
	return nil, d.err
}

func TestSQLRunnerRejectsUnmarkedQueries(t *testing.T) {
	db := &recordingDB{}
	runner := NewSQLRunner(db, zerolog.Nop())

	for _, q := range []string{"select 1", "--sql not-a-uuid\nselect 1", ""} {
		if _, err := runner.Exec(context.Background(), q); !errors.Is(err, ErrSQLMarker) {
			t.Fatalf("exec %q: err = %v, want ErrSQLMarker", q, err)
		}
		if err := runner.QueryRow(context.Background(), q).Scan(); !errors.Is(err, ErrSQLMarker) {
			t.Fatalf("query row %q: err = %v, want ErrSQLMarker", q, err)
		}
		if _, err := runner.Query(context.Background(), q); !errors.Is(err, ErrSQLMarker) {
			t.Fatalf("query %q: err = %v, want ErrSQLMarker", q, err)
		}
	}
	if len(db.queries) != 0 {
		t.Fatalf("unmarked queries reached the database: %q", db.queries)
	}
}

func TestSQLRunnerStripsMarker(t *testing.T) {
	db := &recordingDB{tag: pgconn.NewCommandTag("UPDATE 2")}
	runner := NewSQLRunner(db, zerolog.Nop())

	tag, err := runner.Exec(context.Background(), markedQuery)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if tag.RowsAffected() != 2 {
		t.Fatalf("rows affected = %d", tag.RowsAffected())
	}
	if len(db.queries) != 1 || db.queries[0] != "select 1;" {
		t.Fatalf("queries = %q", db.queries)
	}
}

func TestSQLRunnerLogsFailuresButNotEmptyResults(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	db := &recordingDB{row: rowFunc(func(...any) error { return pgx.ErrNoRows })}
	runner := NewSQLRunner(db, logger)
	if err := runner.QueryRow(context.Background(), markedQuery).Scan(); !IsNoRows(err) {
		t.Fatalf("err = %v, want no rows", err)
	}
	if strings.Contains(buf.String(), "statement failed") {
		t.Fatalf("no rows must not be logged as a failure: %s", buf.String())
	}

	db.err = errors.New("connection reset")
	if _, err := runner.Exec(context.Background(), markedQuery); err == nil {
		t.Fatalf("expected exec error")
	}
	out := buf.String()
	if !strings.Contains(out, "statement failed") || !strings.Contains(out, "0f8fad5b-d9cb-469f-a165-70867728950e") {
		t.Fatalf("failure log missing marker: %s", out)
	}
}
