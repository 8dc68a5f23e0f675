// Package expand grows columns with EQs that are strongly supported by the
// signature blocks of the column's members.
//
// Expansion runs in synchronized rounds. In every round the blocks of all
// nodes of all still active columns are streamed once; each column trims the
// blocks of its own members and accumulates term-weighted support for every
// block element outside the column. When the stream has finished for every
// column, each column admits the candidates that pass the round's entry
// threshold in one batch. A column is done once a round admits nothing or the
// iteration limit is reached.
package expand

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hupe1980/d4/eqindex"
	"github.com/hupe1980/d4/internal/idset"
	"github.com/hupe1980/d4/internal/workpool"
	"github.com/hupe1980/d4/signature"
	"github.com/hupe1980/d4/threshold"
	"github.com/hupe1980/d4/trim"
)

// ErrEmptyColumn is returned for a column whose original nodes carry no terms.
var ErrEmptyColumn = errors.New("expand: column has zero term weight")

// Options configures the expander.
type Options struct {
	// Threshold is the base support threshold.
	Threshold threshold.Threshold
	// DecreaseFactor loosens the entry threshold by DecreaseFactor*r in round r.
	DecreaseFactor float64
	// Iterations bounds the number of rounds. Zero disables expansion.
	Iterations int
	// TrimPolicy selects the trimmer applied to member blocks.
	TrimPolicy trim.Policy
	// Logger receives round summaries. Nil disables logging.
	Logger *slog.Logger
}

// DefaultOptions are the expansion defaults.
var DefaultOptions = Options{
	Threshold:      threshold.GT(0.5),
	DecreaseFactor: 0.05,
	Iterations:     5,
	TrimPolicy:     trim.Centrist,
}

// Expander expands columns against a signature source.
type Expander struct {
	idx     *eqindex.Index
	src     signature.Source
	pool    *workpool.Pool
	factory trim.Factory
	opts    Options
}

// New creates an expander. It fails for an unknown trim policy or a
// negative iteration count.
func New(idx *eqindex.Index, src signature.Source, pool *workpool.Pool, optFns ...func(o *Options)) (*Expander, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Iterations < 0 {
		return nil, fmt.Errorf("expand: negative iterations %d", opts.Iterations)
	}
	if opts.DecreaseFactor < 0 {
		return nil, fmt.Errorf("expand: negative decrease factor %g", opts.DecreaseFactor)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	factory, err := trim.NewFactory(opts.TrimPolicy)
	if err != nil {
		return nil, err
	}
	return &Expander{idx: idx, src: src, pool: pool, factory: factory, opts: opts}, nil
}

// Options returns the effective configuration.
func (e *Expander) Options() Options {
	return e.opts
}

// EntryThreshold returns the threshold an original-support ratio must pass
// in round r.
func (e *Expander) EntryThreshold(r int) threshold.Threshold {
	if r == 0 {
		return e.opts.Threshold
	}
	return e.opts.Threshold.DecreasedBy(e.opts.DecreaseFactor * float64(r))
}

// ExpandIndex expands every column of the index.
func (e *Expander) ExpandIndex(ctx context.Context) ([]*ExpandedColumn, error) {
	out := FromIndex(e.idx)
	if err := e.Expand(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Expand runs all rounds for the given columns, growing their Expansion sets
// in place. Columns must have pairwise distinct ids.
func (e *Expander) Expand(ctx context.Context, cols []*ExpandedColumn) error {
	logger := e.opts.Logger
	sizes := e.idx.NodeSizes()

	states := make([]*state, 0, len(cols))
	for _, col := range cols {
		w := e.idx.Weight(col.Original)
		if w == 0 {
			logger.ErrorContext(ctx, "empty column", "column", col.ID, "nodes", col.Original.Len())
			return fmt.Errorf("%w: column %d", ErrEmptyColumn, col.ID)
		}
		states = append(states, newState(col, sizes, w))
	}
	if e.opts.Iterations == 0 {
		logger.InfoContext(ctx, "expansion disabled", "columns", len(cols))
		return nil
	}

	active := states
	for r := 0; r < e.opts.Iterations && len(active) > 0; r++ {
		start := time.Now()
		entry := e.EntryThreshold(r)

		d := signature.NewDispatcher()
		for _, s := range active {
			nodes := s.col.Nodes()
			s.trimmer = e.factory(nodes)
			d.Register(nodes, signature.ConsumerFunc(func(eq uint32, blocks []signature.Block) error {
				s.consume(eq, blocks)
				return nil
			}))
		}
		if err := d.Run(ctx, e.src); err != nil {
			return fmt.Errorf("expansion round %d: %w", r, err)
		}

		last := r+1 == e.opts.Iterations
		added := make([]int, len(active))
		err := workpool.Each(ctx, e.pool, indices(len(active)), func(_ context.Context, i int) error {
			s := active[i]
			added[i] = len(s.close(entry, e.opts.Threshold))
			s.done = added[i] == 0 || last
			return nil
		})
		if err != nil {
			return fmt.Errorf("expansion round %d: %w", r, err)
		}

		total := 0
		next := active[:0:0]
		for i, s := range active {
			total += added[i]
			if !s.done {
				next = append(next, s)
			}
		}
		logger.InfoContext(ctx, "expansion round",
			"round", r,
			"entry_threshold", entry.String(),
			"columns", len(active),
			"added", total,
			"remaining", len(next),
			"duration", time.Since(start),
		)
		active = next
	}
	return nil
}

func indices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// ExpansionNodes returns the union of all expansion sets.
func ExpansionNodes(cols []*ExpandedColumn) *idset.Set {
	sets := make([]*idset.Set, len(cols))
	for i, c := range cols {
		sets[i] = c.Expansion
	}
	return idset.Union(sets...)
}
