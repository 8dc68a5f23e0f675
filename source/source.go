// Package source reads the values of relational columns.
//
// A Reader emits one (column, value) pair per cell; values are passed through
// as read and normalisation is left to eqindex.Builder. Column names are
// "table.column".
package source

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hupe1980/d4/eqindex"
)

// ValueFunc receives one cell value. Returning an error stops the read.
type ValueFunc func(column, value string) error

// Reader streams column values.
type Reader interface {
	Read(ctx context.Context, fn ValueFunc) error
}

// ColumnName returns the qualified column name.
func ColumnName(table, column string) string {
	return table + "." + column
}

// Filter reports whether a table is read. An empty include list admits every
// table; names are compared case-insensitively.
func Filter(include []string) func(table string) bool {
	if len(include) == 0 {
		return func(string) bool { return true }
	}
	set := make(map[string]struct{}, len(include))
	for _, t := range include {
		set[strings.ToLower(t)] = struct{}{}
	}
	return func(table string) bool {
		_, ok := set[strings.ToLower(table)]
		return ok
	}
}

// Load reads every value of r into b.
func Load(ctx context.Context, r Reader, b *eqindex.Builder, logger *slog.Logger) error {
	start := time.Now()
	cells := 0
	err := r.Read(ctx, func(column, value string) error {
		cells++
		if cells%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		b.Add(column, value)
		return nil
	})
	if err != nil {
		return err
	}
	if logger != nil {
		logger.InfoContext(ctx, "column values loaded", "cells", cells, "duration", time.Since(start))
	}
	return nil
}
