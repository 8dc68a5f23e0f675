package domain

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hupe1980/d4/eqindex"
	"github.com/hupe1980/d4/expand"
	"github.com/hupe1980/d4/internal/idset"
	"github.com/hupe1980/d4/internal/unionfind"
	"github.com/hupe1980/d4/internal/workpool"
	"github.com/hupe1980/d4/signature"
	"github.com/hupe1980/d4/trim"
)

// Options configures local domain generation.
type Options struct {
	// TrimPolicy selects the trimmer applied to node blocks.
	TrimPolicy trim.Policy
	// Logger receives a summary. Nil disables logging.
	Logger *slog.Logger
}

// DefaultOptions are the local domain defaults.
var DefaultOptions = Options{
	TrimPolicy: trim.Conservative,
}

// Generator derives local domains.
type Generator struct {
	idx     *eqindex.Index
	src     signature.Source
	pool    *workpool.Pool
	factory trim.Factory
	opts    Options
}

// NewGenerator creates a generator. It fails for an unknown trim policy.
func NewGenerator(idx *eqindex.Index, src signature.Source, pool *workpool.Pool, optFns ...func(o *Options)) (*Generator, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	factory, err := trim.NewFactory(opts.TrimPolicy)
	if err != nil {
		return nil, err
	}
	return &Generator{idx: idx, src: src, pool: pool, factory: factory, opts: opts}, nil
}

// graph is the per-column union-find over the column's nodes.
type graph struct {
	col     *expand.ExpandedColumn
	nodes   *idset.Set
	trimmer trim.Trimmer

	mu     sync.Mutex
	forest *unionfind.Forest
}

func newGraph(col *expand.ExpandedColumn, factory trim.Factory) *graph {
	nodes := col.Nodes()
	forest := unionfind.New()
	for id := range nodes.All() {
		forest.Add(id)
	}
	return &graph{col: col, nodes: nodes, trimmer: factory(nodes), forest: forest}
}

func (g *graph) consume(eq uint32, blocks []signature.Block) {
	blocks = g.trimmer.Trim(blocks)
	if len(blocks) == 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, b := range blocks {
		for _, id := range b.Elements {
			if g.nodes.Contains(id) {
				g.forest.Union(eq, id)
			}
		}
	}
}

// Generate computes the local domains of cols and returns them deduplicated
// and ordered by node set.
func (g *Generator) Generate(ctx context.Context, cols []*expand.ExpandedColumn) ([]*Domain, error) {
	start := time.Now()
	graphs := make([]*graph, len(cols))
	d := signature.NewDispatcher()
	for i, col := range cols {
		gr := newGraph(col, g.factory)
		graphs[i] = gr
		d.Register(gr.nodes, signature.ConsumerFunc(func(eq uint32, blocks []signature.Block) error {
			gr.consume(eq, blocks)
			return nil
		}))
	}
	if err := d.Run(ctx, g.src); err != nil {
		return nil, fmt.Errorf("local domains: %w", err)
	}

	unique := NewUniqueSet()
	err := workpool.Each(ctx, g.pool, graphs, func(_ context.Context, gr *graph) error {
		for _, members := range gr.forest.Components() {
			if !g.accept(gr.col, members) {
				continue
			}
			unique.Register(idset.FromSlice(members), gr.col.ID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("local domains: %w", err)
	}

	domains := unique.Domains()
	g.opts.Logger.InfoContext(ctx, "local domains",
		"columns", len(cols),
		"domains", len(domains),
		"duration", time.Since(start),
	)
	return domains, nil
}

// accept keeps components that overlap the original nodes. A singleton is
// only a domain if its EQ holds more than one term.
func (g *Generator) accept(col *expand.ExpandedColumn, members []uint32) bool {
	if len(members) == 1 && g.idx.TermCount(members[0]) <= 1 {
		return false
	}
	for _, id := range members {
		if col.IsOriginal(id) {
			return true
		}
	}
	return false
}

// Run generates the local domains and pushes them to c.
func (g *Generator) Run(ctx context.Context, cols []*expand.ExpandedColumn, c Consumer) error {
	domains, err := g.Generate(ctx, cols)
	if err != nil {
		return err
	}
	return Emit(c, domains)
}
