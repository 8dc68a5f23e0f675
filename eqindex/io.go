package eqindex

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/hupe1980/d4/internal/idset"
	"github.com/hupe1980/d4/internal/textio"
)

// RecordError reports a malformed record in an input file.
//
// The underlying parse error can be accessed via errors.Unwrap.
type RecordError struct {
	File  string
	Line  int
	cause error
}

// NewRecordError wraps cause with its file position.
func NewRecordError(file string, line int, cause error) *RecordError {
	return &RecordError{File: file, Line: line, cause: cause}
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.File, e.Line, e.cause)
}

func (e *RecordError) Unwrap() error { return e.cause }

// ParseID parses a decimal uint32 id.
func ParseID(field string) (uint32, error) {
	v, err := strconv.ParseUint(field, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid id %q", textio.ErrMalformedRecord, field)
	}
	return uint32(v), nil
}

// FormatID formats an id as decimal.
func FormatID(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}

// Records iterates the records of a named file, requiring n fields per record,
// and wraps every parse error returned by fn in a RecordError.
func Records(r io.Reader, name string, n int, fn func(fields []string) error) error {
	tr, err := textio.NewReader(r, textio.CompressionFor(name))
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer tr.Close()
	for {
		fields, err := tr.ReadN(n)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if errors.Is(err, textio.ErrMalformedRecord) {
				return NewRecordError(name, tr.Line(), err)
			}
			return fmt.Errorf("read %s: %w", name, err)
		}
		if err := fn(fields); err != nil {
			return NewRecordError(name, tr.Line(), err)
		}
	}
}

// Sink writes records to a named file, choosing compression by name.
// Close flushes the codec but does not close the underlying writer.
type Sink struct {
	*textio.Writer
}

// NewSink creates a record sink on w.
func NewSink(w io.Writer, name string) (*Sink, error) {
	tw, err := textio.NewWriter(w, textio.CompressionFor(name))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	return &Sink{Writer: tw}, nil
}

// WriteEQs writes one record per EQ: id, term count, column ids, term ids.
func WriteEQs(w io.Writer, name string, eqs []*EQ) error {
	sink, err := NewSink(w, name)
	if err != nil {
		return err
	}
	for _, eq := range eqs {
		if err := sink.Write(FormatID(eq.ID), FormatID(eq.TermCount), eq.Columns.Key(), eq.Terms.Key()); err != nil {
			return err
		}
	}
	return sink.Close()
}

// ReadEQs reads a file written by WriteEQs.
func ReadEQs(r io.Reader, name string) ([]EQ, error) {
	var out []EQ
	err := Records(r, name, 4, func(f []string) error {
		id, err := ParseID(f[0])
		if err != nil {
			return err
		}
		count, err := ParseID(f[1])
		if err != nil {
			return err
		}
		cols, err := idset.Parse(f[2])
		if err != nil {
			return err
		}
		terms, err := idset.Parse(f[3])
		if err != nil {
			return err
		}
		out = append(out, EQ{ID: id, TermCount: count, Columns: cols, Terms: terms})
		return nil
	})
	return out, err
}

// WriteColumns writes one record per column: id, name, EQ ids.
func WriteColumns(w io.Writer, name string, columns []*Column) error {
	sink, err := NewSink(w, name)
	if err != nil {
		return err
	}
	for _, c := range columns {
		if err := sink.Write(FormatID(c.ID), textio.Escape(c.Name), c.Nodes.Key()); err != nil {
			return err
		}
	}
	return sink.Close()
}

// ReadColumns reads a file written by WriteColumns.
func ReadColumns(r io.Reader, name string) ([]Column, error) {
	var out []Column
	err := Records(r, name, 3, func(f []string) error {
		id, err := ParseID(f[0])
		if err != nil {
			return err
		}
		nodes, err := idset.Parse(f[2])
		if err != nil {
			return err
		}
		out = append(out, Column{ID: id, Name: textio.Unescape(f[1]), Nodes: nodes})
		return nil
	})
	return out, err
}

// WriteTerms writes one record per term: id, value, EQ id.
func WriteTerms(w io.Writer, name string, terms []Term) error {
	sink, err := NewSink(w, name)
	if err != nil {
		return err
	}
	for _, t := range terms {
		if err := sink.Write(FormatID(t.ID), textio.Escape(t.Value), FormatID(t.EQ)); err != nil {
			return err
		}
	}
	return sink.Close()
}

// ReadTerms reads a file written by WriteTerms.
func ReadTerms(r io.Reader, name string) ([]Term, error) {
	var out []Term
	err := Records(r, name, 3, func(f []string) error {
		id, err := ParseID(f[0])
		if err != nil {
			return err
		}
		eq, err := ParseID(f[2])
		if err != nil {
			return err
		}
		out = append(out, Term{ID: id, Value: textio.Unescape(f[1]), EQ: eq})
		return nil
	})
	return out, err
}
