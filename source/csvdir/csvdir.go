// Package csvdir reads a directory of CSV files, one table per file.
//
// The table name is the file name without ".csv" and codec suffix; the first
// row names the columns. Files may be compressed (".csv.gz", ".csv.zst",
// ".csv.lz4").
package csvdir

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/hupe1980/d4/internal/textio"
	"github.com/hupe1980/d4/source"
	"github.com/hupe1980/d4/storage"
)

// Options configures the reader.
type Options struct {
	// Comma is the field delimiter.
	Comma rune
	// Tables restricts the read to these tables; empty reads all.
	Tables []string
	// Logger receives per-file progress. Nil disables logging.
	Logger *slog.Logger
}

// DefaultOptions reads comma-separated files.
var DefaultOptions = Options{
	Comma: ',',
}

// Reader implements source.Reader over the CSV files below a store prefix.
type Reader struct {
	store  storage.Store
	prefix string
	opts   Options
}

var _ source.Reader = (*Reader)(nil)

// New creates a reader for the files of store below prefix.
func New(store storage.Store, prefix string, optFns ...func(o *Options)) *Reader {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reader{store: store, prefix: prefix, opts: opts}
}

// TableName returns the table of a file name and whether it is a CSV file.
func TableName(name string) (string, bool) {
	base := textio.TrimSuffix(path.Base(name))
	table, ok := strings.CutSuffix(base, ".csv")
	return table, ok && table != ""
}

// Files lists the CSV files in name order.
func (r *Reader) Files(ctx context.Context) ([]string, error) {
	names, err := r.store.List(ctx, r.prefix)
	if err != nil {
		return nil, err
	}
	keep := source.Filter(r.opts.Tables)
	var files []string
	for _, name := range names {
		if table, ok := TableName(name); ok && keep(table) {
			files = append(files, name)
		}
	}
	return files, nil
}

// Read emits every non-empty cell of every file.
func (r *Reader) Read(ctx context.Context, fn source.ValueFunc) error {
	files, err := r.Files(ctx)
	if err != nil {
		return err
	}
	for _, name := range files {
		if err := storage.Read(ctx, r.store, name, func(rd io.Reader) error {
			return r.readFile(name, rd, fn)
		}); err != nil {
			return fmt.Errorf("csvdir: %s: %w", name, err)
		}
	}
	return nil
}

func (r *Reader) readFile(name string, rd io.Reader, fn source.ValueFunc) error {
	dec, err := textio.Decompress(rd, name)
	if err != nil {
		return err
	}
	defer dec.Close()

	cr := csv.NewReader(dec)
	cr.Comma = r.opts.Comma
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return err
	}
	table, _ := TableName(name)
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = source.ColumnName(table, strings.TrimSpace(h))
	}

	rows := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		rows++
		for i, v := range rec {
			if i >= len(columns) || v == "" {
				continue
			}
			if err := fn(columns[i], v); err != nil {
				return err
			}
		}
	}
	r.opts.Logger.Debug("table read", "file", name, "rows", rows, "columns", len(columns))
	return nil
}
