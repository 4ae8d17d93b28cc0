package infra

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SQLExecutor is the query surface shared by the repositories. Every query
// must start with a "--sql <uuid>" marker line.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

// ErrSQLMarker is returned for queries without a valid marker line. Such
// queries never reach the database.
var ErrSQLMarker = errors.New("sql marker missing or invalid")

// DefaultSlowQuery is the duration above which a statement is logged at warn.
const DefaultSlowQuery = 250 * time.Millisecond

var markerRegexp = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// SQLRunner checks markers, traces and times every statement. The marker is
// the span name and log key, so a slow query can be found in sqlinline by grep.
type SQLRunner struct {
	db        SQLExecutor
	logger    zerolog.Logger
	tracer    trace.Tracer
	slowQuery time.Duration
}

// NewSQLRunner wraps a pgxpool.Pool, a pgx.Tx or anything else with the pgx query surface.
func NewSQLRunner(db SQLExecutor, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{
		db:        db,
		logger:    logger,
		tracer:    otel.Tracer("studio/sql"),
		slowQuery: DefaultSlowQuery,
	}
}

func (r *SQLRunner) start(ctx context.Context, op, marker string) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "sql."+op, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.statement.marker", marker),
	))
}

func (r *SQLRunner) finish(span trace.Span, op, marker string, started time.Time, err error) {
	elapsed := time.Since(started)
	if err != nil && !IsNoRows(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		r.logger.Error().Err(err).Str("sql", marker).Str("op", op).Dur("elapsed", elapsed).Msg("sql: statement failed")
	} else if elapsed > r.slowQuery {
		r.logger.Warn().Str("sql", marker).Str("op", op).Dur("elapsed", elapsed).Msg("sql: slow statement")
	} else {
		r.logger.Debug().Str("sql", marker).Str("op", op).Dur("elapsed", elapsed).Msg("sql: statement ok")
	}
	span.End()
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	marker, body, err := extractMarker(query)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	ctx, span := r.start(ctx, "exec", marker)
	started := time.Now()
	tag, err := r.db.Exec(ctx, body, args...)
	span.SetAttributes(attribute.Int64("db.rows_affected", tag.RowsAffected()))
	r.finish(span, "exec", marker, started, err)
	return tag, err
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	marker, body, err := extractMarker(query)
	if err != nil {
		return errorRow{err: err}
	}
	ctx, span := r.start(ctx, "query_row", marker)
	return &tracedRow{row: r.db.QueryRow(ctx, body, args...), runner: r, span: span, marker: marker, started: time.Now()}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	marker, body, err := extractMarker(query)
	if err != nil {
		return nil, err
	}
	ctx, span := r.start(ctx, "query", marker)
	started := time.Now()
	rows, err := r.db.Query(ctx, body, args...)
	if err != nil {
		r.finish(span, "query", marker, started, err)
		return nil, err
	}
	return &tracedRows{Rows: rows, runner: r, span: span, marker: marker, started: started}, nil
}

// tracedRow ends its span on Scan, which is when pgx actually runs the query.
type tracedRow struct {
	row     pgx.Row
	runner  *SQLRunner
	span    trace.Span
	marker  string
	started time.Time
}

func (t *tracedRow) Scan(dest ...any) error {
	err := t.row.Scan(dest...)
	t.runner.finish(t.span, "query_row", t.marker, t.started, err)
	return err
}

type tracedRows struct {
	pgx.Rows
	runner  *SQLRunner
	span    trace.Span
	marker  string
	started time.Time
	closed  bool
}

func (t *tracedRows) Close() {
	t.Rows.Close()
	if t.closed {
		return
	}
	t.closed = true
	t.runner.finish(t.span, "query", t.marker, t.started, t.Rows.Err())
}

type errorRow struct {
	err error
}

func (e errorRow) Scan(dest ...any) error {
	return e.err
}

// extractMarker splits the marker line from the statement body.
func extractMarker(query string) (marker, body string, err error) {
	first, rest, _ := strings.Cut(strings.TrimSpace(query), "\n")
	first = strings.TrimSpace(first)
	if !markerRegexp.MatchString(first) {
		return "", "", ErrSQLMarker
	}
	return strings.TrimPrefix(first, "--sql "), strings.TrimSpace(rest), nil
}

// IsNoRows reports whether err means the query matched nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

var _ SQLExecutor = (*SQLRunner)(nil)
