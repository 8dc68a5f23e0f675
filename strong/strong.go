// Package strong merges local domains into strong domains.
//
// Generation runs in two phases over the complete local domain set, followed
// by a merge:
//
//   - Frequency: every domain accumulates the columns of all domains whose
//     term-weighted Jaccard similarity satisfies MinSupport. The frequency of a
//     domain is the size of that accumulation minus one.
//   - Support: every domain accumulates the columns of all overlapping domains
//     whose similarity satisfies DomainOverlap and records them as supporters.
//     A domain is a strong candidate when its supported column count reaches
//     floor(frequency*SupportFraction)+1.
//   - Merge: strong candidates connected through mutual support form one
//     strong domain.
package strong

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/hupe1980/d4/domain"
	"github.com/hupe1980/d4/eqindex"
	"github.com/hupe1980/d4/internal/idset"
	"github.com/hupe1980/d4/internal/unionfind"
	"github.com/hupe1980/d4/internal/workpool"
	"github.com/hupe1980/d4/threshold"
)

// ErrEmptyDomain is returned for a local domain whose nodes carry no terms.
var ErrEmptyDomain = errors.New("strong: domain has zero term weight")

// StrongDomain is a merge of mutually supporting local domains.
type StrongDomain struct {
	ID uint32
	// LocalDomains holds the ids of the merged local domains.
	LocalDomains *idset.Set
	// Members maps every node to the fraction of member local domains that
	// contain it.
	Members map[uint32]float64
	// Columns is the union of the member domains' columns.
	Columns *idset.Set
}

// Nodes returns the member node ids.
func (s *StrongDomain) Nodes() *idset.Set {
	return idset.FromSlice(slices.Collect(maps.Keys(s.Members)))
}

// Options configures strong domain generation.
type Options struct {
	// MinSupport is the similarity constraint of the frequency phase.
	MinSupport threshold.Threshold
	// DomainOverlap is the similarity constraint of the support phase.
	DomainOverlap threshold.Threshold
	// SupportFraction scales the frequency into the required column count.
	SupportFraction float64
	// Logger receives phase summaries. Nil disables logging.
	Logger *slog.Logger
}

// DefaultOptions are the strong domain defaults.
var DefaultOptions = Options{
	MinSupport:      threshold.GT(0.1),
	DomainOverlap:   threshold.GEQ(0.5),
	SupportFraction: 0.25,
}

// Generator computes strong domains.
type Generator struct {
	idx  *eqindex.Index
	pool *workpool.Pool
	opts Options
}

// NewGenerator creates a generator.
func NewGenerator(idx *eqindex.Index, pool *workpool.Pool, optFns ...func(o *Options)) (*Generator, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.SupportFraction < 0 {
		return nil, fmt.Errorf("strong: negative support fraction %g", opts.SupportFraction)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Generator{idx: idx, pool: pool, opts: opts}, nil
}

// Candidate is the phase result of one local domain.
type Candidate struct {
	Domain *domain.Domain
	// Frequency estimates how many other columns carry the same type.
	Frequency int
	// Columns is the working column set of the support phase.
	Columns *idset.Set
	// Supporters holds the positions of the supporting domains.
	Supporters []int
	// Strong reports whether the domain is a strong candidate.
	Strong bool
}

// MinColumnCount returns floor(Frequency*fraction)+1.
func (c *Candidate) MinColumnCount(fraction float64) int {
	return int(float64(c.Frequency)*fraction) + 1
}

// neighbor is a domain with non-empty node overlap and its similarity.
type neighbor struct {
	pos int
	sim float64
}

// Analyze runs the frequency and support phases.
func (g *Generator) Analyze(ctx context.Context, domains []*domain.Domain) ([]*Candidate, error) {
	logger := g.opts.Logger
	weights := make([]uint64, len(domains))
	inverted := make(map[uint32][]int)
	allColumns := idset.New()
	for i, d := range domains {
		weights[i] = g.idx.Weight(d.Nodes)
		if weights[i] == 0 {
			logger.ErrorContext(ctx, "empty domain", "domain", d.ID, "nodes", d.Nodes.Len())
			return nil, fmt.Errorf("%w: domain %d", ErrEmptyDomain, d.ID)
		}
		for n := range d.Nodes.All() {
			inverted[n] = append(inverted[n], i)
		}
		allColumns.Or(d.Columns)
	}

	neighbors := func(i int) []neighbor {
		shared := make(map[int]uint64)
		for n := range domains[i].Nodes.All() {
			w := uint64(g.idx.TermCount(n))
			for _, j := range inverted[n] {
				if j != i {
					shared[j] += w
				}
			}
		}
		out := make([]neighbor, 0, len(shared))
		for j, inter := range shared {
			union := weights[i] + weights[j] - inter
			out = append(out, neighbor{pos: j, sim: float64(inter) / float64(union)})
		}
		slices.SortFunc(out, func(a, b neighbor) int { return a.pos - b.pos })
		return out
	}

	// Disjoint domains have similarity zero; only a constraint admitting
	// zero makes every pair count.
	supportAll := g.opts.MinSupport.IsSatisfied(0)

	cands := make([]*Candidate, len(domains))
	positions := make([]int, len(domains))
	for i := range positions {
		positions[i] = i
	}

	start := time.Now()
	progress := workpool.NewProgress(logger, "strong-domains", len(domains), 5*time.Second)
	err := workpool.Each(ctx, g.pool, positions, func(_ context.Context, i int) error {
		d := domains[i]
		near := neighbors(i)

		freq := d.Columns.Clone()
		if supportAll {
			freq = allColumns
		} else {
			for _, nb := range near {
				if g.opts.MinSupport.IsSatisfied(nb.sim) {
					freq.Or(domains[nb.pos].Columns)
				}
			}
		}

		c := &Candidate{Domain: d, Frequency: freq.Len() - 1, Columns: d.Columns.Clone()}
		for _, nb := range near {
			if g.opts.DomainOverlap.IsSatisfied(nb.sim) {
				c.Columns.Or(domains[nb.pos].Columns)
				c.Supporters = append(c.Supporters, nb.pos)
			}
		}
		c.Strong = c.Columns.Len()-1 >= c.MinColumnCount(g.opts.SupportFraction)
		cands[i] = c
		progress.Add(1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("strong domains: %w", err)
	}

	strong := 0
	for _, c := range cands {
		if c.Strong {
			strong++
		}
	}
	logger.InfoContext(ctx, "strong domain candidates",
		"domains", len(domains),
		"candidates", strong,
		"duration", time.Since(start),
	)
	return cands, nil
}

// Merge joins strong candidates connected by support into strong domains.
// Strong domains are numbered in order of their smallest local domain id.
func Merge(cands []*Candidate) []*StrongDomain {
	forest := unionfind.New()
	byID := make(map[uint32]*Candidate)
	for _, c := range cands {
		if !c.Strong {
			continue
		}
		forest.Add(c.Domain.ID)
		byID[c.Domain.ID] = c
	}
	for _, c := range cands {
		if !c.Strong {
			continue
		}
		for _, pos := range c.Supporters {
			if other := cands[pos]; other.Strong {
				forest.Union(c.Domain.ID, other.Domain.ID)
			}
		}
	}

	components := forest.Components()
	out := make([]*StrongDomain, len(components))
	for i, ids := range components {
		counts := make(map[uint32]int)
		cols := idset.New()
		for _, id := range ids {
			d := byID[id].Domain
			for n := range d.Nodes.All() {
				counts[n]++
			}
			cols.Or(d.Columns)
		}
		members := make(map[uint32]float64, len(counts))
		for n, k := range counts {
			members[n] = float64(k) / float64(len(ids))
		}
		out[i] = &StrongDomain{
			ID:           uint32(i),
			LocalDomains: idset.FromSlice(ids),
			Members:      members,
			Columns:      cols,
		}
	}
	return out
}

// Generate analyzes and merges the local domains.
func (g *Generator) Generate(ctx context.Context, domains []*domain.Domain) ([]*StrongDomain, error) {
	cands, err := g.Analyze(ctx, domains)
	if err != nil {
		return nil, err
	}
	out := Merge(cands)
	g.opts.Logger.InfoContext(ctx, "strong domains", "count", len(out))
	return out, nil
}

// Run generates the strong domains and pushes them to c.
func (g *Generator) Run(ctx context.Context, domains []*domain.Domain, c Consumer) error {
	out, err := g.Generate(ctx, domains)
	if err != nil {
		return err
	}
	return Emit(c, out)
}
