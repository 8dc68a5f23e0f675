// Package sqlite reads every column of every table of a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hupe1980/d4/source"

	_ "modernc.org/sqlite"
)

// Options configures the reader.
type Options struct {
	// Tables restricts the read to these tables; empty reads all.
	Tables []string
	// Logger receives per-table progress. Nil disables logging.
	Logger *slog.Logger
}

// Reader implements source.Reader on a SQLite database.
type Reader struct {
	db    *sql.DB
	owned bool
	opts  Options
}

var _ source.Reader = (*Reader)(nil)

// Open opens the database file at path.
func Open(path string, optFns ...func(o *Options)) (*Reader, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	r := New(db, optFns...)
	r.owned = true
	return r, nil
}

// New wraps an open database. The caller keeps ownership of db.
func New(db *sql.DB, optFns ...func(o *Options)) *Reader {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	// Reads are sequential; one connection also keeps ":memory:" databases intact.
	db.SetMaxOpenConns(1)
	return &Reader{db: db, opts: opts}
}

// Close closes the database if Open created it.
func (r *Reader) Close() error {
	if r.owned {
		return r.db.Close()
	}
	return nil
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Tables lists the user tables in name order.
func (r *Reader) Tables(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	keep := source.Filter(r.opts.Tables)
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if keep(name) {
			tables = append(tables, name)
		}
	}
	return tables, rows.Err()
}

// Columns lists the columns of table in declaration order.
func (r *Reader) Columns(ctx context.Context, table string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "PRAGMA table_info("+quote(table)+")")
	if err != nil {
		return nil, fmt.Errorf("listing columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// Read emits every non-null cell, cast to text.
func (r *Reader) Read(ctx context.Context, fn source.ValueFunc) error {
	tables, err := r.Tables(ctx)
	if err != nil {
		return err
	}
	for _, table := range tables {
		cols, err := r.Columns(ctx, table)
		if err != nil {
			return err
		}
		for _, col := range cols {
			if err := r.readColumn(ctx, table, col, fn); err != nil {
				return err
			}
		}
		r.opts.Logger.DebugContext(ctx, "table read", "table", table, "columns", len(cols))
	}
	return nil
}

func (r *Reader) readColumn(ctx context.Context, table, col string, fn source.ValueFunc) error {
	q := fmt.Sprintf("SELECT CAST(%s AS TEXT) FROM %s WHERE %s IS NOT NULL", quote(col), quote(table), quote(col))
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("reading %s.%s: %w", table, col, err)
	}
	defer rows.Close()

	name := source.ColumnName(table, col)
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return err
		}
		if !v.Valid {
			continue
		}
		if err := fn(name, v.String); err != nil {
			return err
		}
	}
	return rows.Err()
}
