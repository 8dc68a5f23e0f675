// Package postgres reads the columns of one PostgreSQL schema.
package postgres

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hupe1980/d4/source"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// Options configures the reader.
type Options struct {
	// Schema is the schema to read.
	Schema string
	// Tables restricts the read to these tables; empty reads all.
	Tables []string
	// Logger receives per-table progress. Nil disables logging.
	Logger *slog.Logger
}

// DefaultOptions reads the public schema.
var DefaultOptions = Options{
	Schema: "public",
}

// Querier is the query surface of a pgx pool or connection.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Column is a table column of the schema.
type Column struct {
	Table string
	Name  string
}

// Reader implements source.Reader on PostgreSQL.
type Reader struct {
	q     Querier
	pool  *pgxpool.Pool
	opts  Options
	allow func(string) bool
}

var _ source.Reader = (*Reader)(nil)

// Connect opens a pool for url.
func Connect(ctx context.Context, url string, optFns ...func(o *Options)) (*Reader, error) {
	pool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	r := New(pool, optFns...)
	r.pool = pool
	return r, nil
}

// New wraps a querier. The caller keeps ownership of q.
func New(q Querier, optFns ...func(o *Options)) *Reader {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reader{q: q, opts: opts, allow: source.Filter(opts.Tables)}
}

// Close closes the pool if Connect created it.
func (r *Reader) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

const columnsQuery = `SELECT table_name, column_name
FROM information_schema.columns
WHERE table_schema = $1
ORDER BY table_name, ordinal_position`

// Columns lists the schema's columns in table and ordinal order.
func (r *Reader) Columns(ctx context.Context) ([]Column, error) {
	rows, err := r.q.Query(ctx, columnsQuery, r.opts.Schema)
	if err != nil {
		return nil, fmt.Errorf("postgres: list columns: %w", err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Table, &c.Name); err != nil {
			return nil, err
		}
		if r.allow(c.Table) {
			cols = append(cols, c)
		}
	}
	return cols, rows.Err()
}

// ValueQuery returns the statement reading the non-null values of c as text.
func ValueQuery(schema string, c Column) string {
	col := pgx.Identifier{c.Name}.Sanitize()
	return fmt.Sprintf("SELECT CAST(%s AS TEXT) FROM %s WHERE %s IS NOT NULL",
		col, pgx.Identifier{schema, c.Table}.Sanitize(), col)
}

// Read emits every non-null cell of the schema, cast to text.
func (r *Reader) Read(ctx context.Context, fn source.ValueFunc) error {
	cols, err := r.Columns(ctx)
	if err != nil {
		return err
	}
	for _, c := range cols {
		if err := r.readColumn(ctx, c, fn); err != nil {
			return err
		}
	}
	r.opts.Logger.DebugContext(ctx, "schema read", "schema", r.opts.Schema, "columns", len(cols))
	return nil
}

func (r *Reader) readColumn(ctx context.Context, c Column, fn source.ValueFunc) error {
	rows, err := r.q.Query(ctx, ValueQuery(r.opts.Schema, c))
	if err != nil {
		return fmt.Errorf("postgres: read %s.%s: %w", c.Table, c.Name, err)
	}
	defer rows.Close()

	name := source.ColumnName(c.Table, c.Name)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return err
		}
		if err := fn(name, v); err != nil {
			return err
		}
	}
	return rows.Err()
}
