// Package textio reads and writes line-oriented, tab-delimited record files.
//
// Every persisted entity (columns, terms, EQs, signature blocks, expanded
// columns, domains) is one record per line. Fields are separated by a single
// tab; tabs, newlines and backslashes inside a field are escaped. Files may be
// wrapped in gzip, zstd or lz4 depending on their name suffix.
package textio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformedRecord is returned when a line has the wrong number of fields.
var ErrMalformedRecord = errors.New("textio: malformed record")

var (
	escaper   = strings.NewReplacer("\\", "\\\\", "\t", "\\t", "\n", "\\n", "\r", "\\r")
	unescaper = strings.NewReplacer("\\\\", "\\", "\\t", "\t", "\\n", "\n", "\\r", "\r")
)

// Escape makes a field safe to embed in a record.
func Escape(field string) string {
	return escaper.Replace(field)
}

// Unescape reverses Escape.
func Unescape(field string) string {
	if !strings.ContainsRune(field, '\\') {
		return field
	}
	return unescaper.Replace(field)
}

// Writer writes records to an underlying stream.
type Writer struct {
	codec io.WriteCloser
	buf   *bufio.Writer
	count int
}

// NewWriter wraps w with the given compression.
// Close must be called to flush; it does not close w.
func NewWriter(w io.Writer, c Compression) (*Writer, error) {
	codec, err := compressor(w, c)
	if err != nil {
		return nil, err
	}
	return &Writer{
		codec: codec,
		buf:   bufio.NewWriterSize(codec, 256*1024),
	}, nil
}

// Write writes one record. Fields are written as given; callers escape
// free-text fields with Escape.
func (w *Writer) Write(fields ...string) error {
	for i, f := range fields {
		if i > 0 {
			if err := w.buf.WriteByte('\t'); err != nil {
				return err
			}
		}
		if _, err := w.buf.WriteString(f); err != nil {
			return err
		}
	}
	w.count++
	return w.buf.WriteByte('\n')
}

// Count returns the number of records written so far.
func (w *Writer) Count() int {
	return w.count
}

// Close flushes buffered data and the compression codec.
func (w *Writer) Close() error {
	if err := w.buf.Flush(); err != nil {
		return err
	}
	return w.codec.Close()
}

// Reader reads records from an underlying stream.
type Reader struct {
	codec io.ReadCloser
	buf   *bufio.Reader
	line  int
}

// NewReader wraps r with the given compression. Close does not close r.
func NewReader(r io.Reader, c Compression) (*Reader, error) {
	codec, err := decompressor(r, c)
	if err != nil {
		return nil, err
	}
	return &Reader{
		codec: codec,
		buf:   bufio.NewReaderSize(codec, 256*1024),
	}, nil
}

// Read returns the next record split into fields. Empty lines are skipped.
// It returns io.EOF after the last record.
func (r *Reader) Read() ([]string, error) {
	for {
		text, err := r.buf.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if text == "" && errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		r.line++
		text = strings.TrimRight(text, "\r\n")
		if text == "" {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			continue
		}
		return strings.Split(text, "\t"), nil
	}
}

// ReadN is Read that additionally requires exactly n fields.
func (r *Reader) ReadN(n int) ([]string, error) {
	fields, err := r.Read()
	if err != nil {
		return nil, err
	}
	if len(fields) != n {
		return nil, fmt.Errorf("%w: line %d: expected %d fields, got %d", ErrMalformedRecord, r.line, n, len(fields))
	}
	return fields, nil
}

// Line returns the 1-based number of the line returned by the last Read.
func (r *Reader) Line() int {
	return r.line
}

// Close releases the decompression codec.
func (r *Reader) Close() error {
	return r.codec.Close()
}
