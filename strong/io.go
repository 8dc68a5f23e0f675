package strong

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hupe1980/d4/eqindex"
	"github.com/hupe1980/d4/internal/idset"
	"github.com/hupe1980/d4/internal/textio"
)

// Consumer receives a stream of strong domains: Open, then Consume per
// domain, then Close.
type Consumer interface {
	Open() error
	Consume(d *StrongDomain) error
	Close() error
}

// Emit pushes domains through c and always closes it after a successful Open.
func Emit(c Consumer, domains []*StrongDomain) (err error) {
	if err := c.Open(); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, c.Close())
	}()
	for _, d := range domains {
		if err := c.Consume(d); err != nil {
			return err
		}
	}
	return nil
}

// Collector keeps consumed strong domains in memory.
type Collector struct {
	Domains []*StrongDomain
}

// Open resets the collected domains.
func (c *Collector) Open() error { c.Domains = nil; return nil }

// Consume appends d.
func (c *Collector) Consume(d *StrongDomain) error {
	c.Domains = append(c.Domains, d)
	return nil
}

// Close is a no-op.
func (c *Collector) Close() error { return nil }

// Writer writes one record per strong domain: id, local domain ids,
// node:weight pairs in node order, column ids.
type Writer struct {
	w    io.Writer
	name string
	sink *eqindex.Sink
}

// NewWriter creates a strong domain writer; compression follows name.
func NewWriter(w io.Writer, name string) *Writer {
	return &Writer{w: w, name: name}
}

// Open starts the record sink.
func (w *Writer) Open() error {
	sink, err := eqindex.NewSink(w.w, w.name)
	if err != nil {
		return err
	}
	w.sink = sink
	return nil
}

// Consume writes one strong domain record.
func (w *Writer) Consume(d *StrongDomain) error {
	return w.sink.Write(
		eqindex.FormatID(d.ID),
		d.LocalDomains.Key(),
		formatMembers(d),
		d.Columns.Key(),
	)
}

// Close flushes the sink. The underlying writer stays open.
func (w *Writer) Close() error {
	return w.sink.Close()
}

// Count returns the number of written domains.
func (w *Writer) Count() int {
	if w.sink == nil {
		return 0
	}
	return w.sink.Count()
}

func formatMembers(d *StrongDomain) string {
	var b strings.Builder
	for n := range d.Nodes().All() {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(eqindex.FormatID(n))
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(d.Members[n], 'g', -1, 64))
	}
	return b.String()
}

func parseMembers(field string) (map[uint32]float64, error) {
	out := make(map[uint32]float64)
	if field == "" {
		return out, nil
	}
	for _, pair := range strings.Split(field, ",") {
		node, weight, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("%w: member %q", textio.ErrMalformedRecord, pair)
		}
		id, err := eqindex.ParseID(node)
		if err != nil {
			return nil, err
		}
		w, err := strconv.ParseFloat(weight, 64)
		if err != nil || w <= 0 || w > 1 {
			return nil, fmt.Errorf("%w: weight %q", textio.ErrMalformedRecord, weight)
		}
		out[id] = w
	}
	return out, nil
}

// ReadStrongDomains reads a file written by Writer.
func ReadStrongDomains(r io.Reader, name string) ([]*StrongDomain, error) {
	var out []*StrongDomain
	err := eqindex.Records(r, name, 4, func(f []string) error {
		id, err := eqindex.ParseID(f[0])
		if err != nil {
			return err
		}
		locals, err := idset.Parse(f[1])
		if err != nil {
			return err
		}
		members, err := parseMembers(f[2])
		if err != nil {
			return err
		}
		cols, err := idset.Parse(f[3])
		if err != nil {
			return err
		}
		out = append(out, &StrongDomain{ID: id, LocalDomains: locals, Members: members, Columns: cols})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
