package domain

import (
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/d4/eqindex"
	"github.com/hupe1980/d4/internal/idset"
	"github.com/hupe1980/d4/internal/textio"
)

// Consumer receives a stream of domains: Open, then Consume per domain, then
// Close.
type Consumer interface {
	Open() error
	Consume(d *Domain) error
	Close() error
}

// Emit pushes domains through c and always closes it after a successful Open.
func Emit(c Consumer, domains []*Domain) (err error) {
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

// Collector keeps consumed domains in memory.
type Collector struct {
	Domains []*Domain
}

// Open resets the collected domains.
func (c *Collector) Open() error { c.Domains = nil; return nil }

// Consume appends d.
func (c *Collector) Consume(d *Domain) error {
	c.Domains = append(c.Domains, d)
	return nil
}

// Close is a no-op.
func (c *Collector) Close() error { return nil }

// Writer writes one record per domain: id, column ids, node ids.
type Writer struct {
	w    io.Writer
	name string
	sink *eqindex.Sink
}

// NewWriter creates a domain writer; compression follows name.
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

// Consume writes one domain record.
func (w *Writer) Consume(d *Domain) error {
	return w.sink.Write(eqindex.FormatID(d.ID), d.Columns.Key(), d.Nodes.Key())
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

// ReadDomains reads a file written by Writer. Domains must have nodes, and
// ids and node sets must be unique.
func ReadDomains(r io.Reader, name string) ([]*Domain, error) {
	var out []*Domain
	ids := idset.New()
	keys := make(map[string]uint32)
	err := eqindex.Records(r, name, 3, func(f []string) error {
		id, err := eqindex.ParseID(f[0])
		if err != nil {
			return err
		}
		cols, err := idset.Parse(f[1])
		if err != nil {
			return err
		}
		nodes, err := idset.Parse(f[2])
		if err != nil {
			return err
		}
		if nodes.IsEmpty() {
			return fmt.Errorf("%w: domain %d without nodes", textio.ErrMalformedRecord, id)
		}
		if ids.Contains(id) {
			return fmt.Errorf("%w: duplicate domain %d", textio.ErrMalformedRecord, id)
		}
		key := nodes.Key()
		if prev, ok := keys[key]; ok {
			return fmt.Errorf("%w: domain %d repeats the nodes of domain %d", textio.ErrMalformedRecord, id, prev)
		}
		ids.Add(id)
		keys[key] = id
		out = append(out, &Domain{ID: id, Columns: cols, Nodes: nodes})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
