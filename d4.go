package d4

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"strconv"
	"time"

	"github.com/hupe1980/d4/domain"
	"github.com/hupe1980/d4/eqindex"
	"github.com/hupe1980/d4/expand"
	"github.com/hupe1980/d4/internal/workpool"
	"github.com/hupe1980/d4/manifest"
	"github.com/hupe1980/d4/signature"
	"github.com/hupe1980/d4/source"
	"github.com/hupe1980/d4/storage"
	"github.com/hupe1980/d4/strong"
)

// Pipeline runs the discovery steps against an input and an output store.
//
// The EQ index is read from the input store; every step writes its result to
// the output store and later steps read their inputs from there. Input and
// output may be the same store. A Pipeline is not safe for concurrent use.
type Pipeline struct {
	in   storage.Store
	out  storage.Store
	opts options
	pool *workpool.Pool

	idx *eqindex.Index
}

// New creates a pipeline.
func New(in, out storage.Store, opts ...Option) *Pipeline {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return &Pipeline{
		in:   in,
		out:  out,
		opts: o,
		pool: workpool.New(o.workers),
	}
}

// Logger returns the pipeline logger.
func (p *Pipeline) Logger() *Logger {
	return p.opts.logger
}

// track runs one step and reports its outcome to the metrics collector and
// the logger.
func (p *Pipeline) track(ctx context.Context, step Step, fn func() (int, error)) (int, time.Duration, error) {
	start := time.Now()
	n, err := fn()
	d := time.Since(start)
	err = stepError(step, err)
	p.opts.metrics.RecordStep(step, n, d, err)
	p.opts.logger.LogStep(ctx, step, n, d, err)
	return n, d, err
}

// locate returns the name under which base exists in s. The configured
// compression is tried first, then every supported suffix.
func (p *Pipeline) locate(ctx context.Context, s storage.Store, base string) (string, error) {
	candidates := []string{p.FileName(base), base, base + ".gz", base + ".zst", base + ".lz4"}
	for _, name := range candidates {
		b, err := s.Open(ctx, name)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		_ = b.Close()
		return name, nil
	}
	return "", fmt.Errorf("%s: %w", base, storage.ErrNotFound)
}

// readFile locates base in s and passes its content to fn.
func (p *Pipeline) readFile(ctx context.Context, s storage.Store, base string, fn func(r io.Reader, name string) error) error {
	name, err := p.locate(ctx, s, base)
	if err != nil {
		return err
	}
	return storage.Read(ctx, s, name, func(r io.Reader) error {
		return fn(r, name)
	})
}

// writeFile streams fn's output into the output file for base.
func (p *Pipeline) writeFile(ctx context.Context, base string, fn func(w io.Writer, name string) error) error {
	name := p.FileName(base)
	return storage.Write(ctx, p.out, name, func(w io.Writer) error {
		return fn(w, name)
	})
}

// BuildIndex reads every column value of r, builds the EQ index and writes
// its columns, terms and EQs files to the output store. Step outputs of an
// earlier index are removed.
func (p *Pipeline) BuildIndex(ctx context.Context, r source.Reader) (*eqindex.Index, error) {
	logger := p.opts.logger.WithStep(StepIndex)
	var idx *eqindex.Index
	_, _, err := p.track(ctx, StepIndex, func() (int, error) {
		b := eqindex.NewBuilder(func(o *eqindex.BuilderOptions) { *o = p.opts.index })
		if err := source.Load(ctx, r, b, logger.Logger); err != nil {
			return 0, err
		}
		built, terms, err := b.Build()
		if err != nil {
			return 0, err
		}
		logger.LogIndex(ctx, built.Len(), len(built.Columns()), len(terms), nil)

		err = p.writeFile(ctx, ColumnsFile, func(w io.Writer, name string) error {
			return eqindex.WriteColumns(w, name, built.Columns())
		})
		if err != nil {
			return 0, err
		}
		err = p.writeFile(ctx, TermsFile, func(w io.Writer, name string) error {
			return eqindex.WriteTerms(w, name, terms)
		})
		if err != nil {
			return 0, err
		}
		err = p.writeFile(ctx, EQsFile, func(w io.Writer, name string) error {
			return eqindex.WriteEQs(w, name, built.EQs())
		})
		if err != nil {
			return 0, err
		}
		if err := p.clearOutputs(ctx); err != nil {
			return 0, err
		}
		idx = built
		return built.Len(), nil
	})
	if err != nil {
		return nil, err
	}
	p.idx = idx
	return idx, nil
}

// LoadIndex reads the EQ index from the input store. The index is loaded
// once per pipeline.
func (p *Pipeline) LoadIndex(ctx context.Context) (*eqindex.Index, error) {
	if p.idx != nil {
		return p.idx, nil
	}
	var columns []eqindex.Column
	err := p.readFile(ctx, p.in, ColumnsFile, func(r io.Reader, name string) error {
		var err error
		columns, err = eqindex.ReadColumns(r, name)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	var eqs []eqindex.EQ
	err = p.readFile(ctx, p.in, EQsFile, func(r io.Reader, name string) error {
		var err error
		eqs, err = eqindex.ReadEQs(r, name)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	idx, err := eqindex.NewIndex(eqs, columns)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	p.opts.logger.LogIndex(ctx, idx.Len(), len(idx.Columns()), 0, nil)
	p.idx = idx
	return idx, nil
}

func (p *Pipeline) indexSource(idx *eqindex.Index, step Step) *signature.IndexSource {
	return signature.NewIndexSource(idx, p.opts.blocks, p.pool, p.opts.logger.WithStep(step).Logger)
}

// signatureSource streams the signatures file when it was computed from idx
// with the configured block options and computes blocks from the index
// otherwise.
func (p *Pipeline) signatureSource(ctx context.Context, idx *eqindex.Index, step Step) (signature.Source, error) {
	name, err := p.locate(ctx, p.out, SignaturesFile)
	if errors.Is(err, storage.ErrNotFound) {
		return p.indexSource(idx, step), nil
	}
	if err != nil {
		return nil, err
	}
	current, err := p.signaturesCurrent(ctx, idx)
	if err != nil {
		return nil, err
	}
	if !current {
		p.opts.logger.WithStep(step).InfoContext(ctx, "signatures file is stale, computing blocks from the index", "file", name)
		return p.indexSource(idx, step), nil
	}
	return signature.NewFileSource(name, func(ctx context.Context) (io.ReadCloser, error) {
		return storage.OpenReader(ctx, p.out, name)
	}, p.pool), nil
}

func (p *Pipeline) signatures(ctx context.Context, idx *eqindex.Index) (*signature.Store, int, error) {
	store := signature.NewStore(p.pool)
	if err := p.indexSource(idx, StepSignatures).Stream(ctx, nil, store); err != nil {
		return nil, 0, err
	}
	var n int
	err := p.writeFile(ctx, SignaturesFile, func(w io.Writer, name string) error {
		var err error
		n, err = signature.WriteBlocks(w, name, store)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	if err := p.writeSignaturesMeta(ctx, idx); err != nil {
		return nil, 0, err
	}
	return store, n, nil
}

// Signatures computes the blocks of every EQ and writes them to the
// signatures file. It returns the number of written blocks.
func (p *Pipeline) Signatures(ctx context.Context) (int, error) {
	idx, err := p.LoadIndex(ctx)
	if err != nil {
		return 0, stepError(StepSignatures, err)
	}
	n, _, err := p.track(ctx, StepSignatures, func() (int, error) {
		_, n, err := p.signatures(ctx, idx)
		return n, err
	})
	return n, err
}

func (p *Pipeline) expand(ctx context.Context, idx *eqindex.Index, src signature.Source) ([]*expand.ExpandedColumn, error) {
	logger := p.opts.logger.WithStep(StepExpand)
	e, err := expand.New(idx, src, p.pool, func(o *expand.Options) {
		*o = p.opts.expand
		o.Logger = logger.Logger
	})
	if err != nil {
		return nil, err
	}
	cols, err := e.ExpandIndex(ctx)
	if err != nil {
		return nil, err
	}
	expanded, added := 0, 0
	for _, c := range cols {
		if n := c.Expansion.Len(); n > 0 {
			expanded++
			added += n
		}
	}
	logger.LogExpansion(ctx, len(cols), expanded, added)

	err = p.writeFile(ctx, ExpandedColumnsFile, func(w io.Writer, name string) error {
		return expand.WriteColumns(w, name, cols)
	})
	if err != nil {
		return nil, err
	}
	return cols, nil
}

// Expand expands every column of the index and writes the expanded columns
// file. Signatures are read from the signatures file when present.
func (p *Pipeline) Expand(ctx context.Context) ([]*expand.ExpandedColumn, error) {
	idx, err := p.LoadIndex(ctx)
	if err != nil {
		return nil, stepError(StepExpand, err)
	}
	var cols []*expand.ExpandedColumn
	_, _, err = p.track(ctx, StepExpand, func() (int, error) {
		src, err := p.signatureSource(ctx, idx, StepExpand)
		if err != nil {
			return 0, err
		}
		cols, err = p.expand(ctx, idx, src)
		return len(cols), err
	})
	if err != nil {
		return nil, err
	}
	return cols, nil
}

func (p *Pipeline) localDomains(ctx context.Context, idx *eqindex.Index, src signature.Source, cols []*expand.ExpandedColumn) ([]*domain.Domain, int, error) {
	g, err := domain.NewGenerator(idx, src, p.pool, func(o *domain.Options) {
		*o = p.opts.domains
		o.Logger = p.opts.logger.WithStep(StepLocalDomains).Logger
	})
	if err != nil {
		return nil, 0, err
	}
	var c domain.Collector
	if err := g.Run(ctx, cols, &c); err != nil {
		return nil, 0, err
	}
	var n int
	err = p.writeFile(ctx, LocalDomainsFile, func(w io.Writer, name string) error {
		dw := domain.NewWriter(w, name)
		if err := domain.Emit(dw, c.Domains); err != nil {
			return err
		}
		n = dw.Count()
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return c.Domains, n, nil
}

// LocalDomains derives the local domains of the expanded columns file and
// writes the local domains file.
func (p *Pipeline) LocalDomains(ctx context.Context) ([]*domain.Domain, error) {
	idx, err := p.LoadIndex(ctx)
	if err != nil {
		return nil, stepError(StepLocalDomains, err)
	}
	var domains []*domain.Domain
	_, _, err = p.track(ctx, StepLocalDomains, func() (int, error) {
		var cols []*expand.ExpandedColumn
		err := p.readFile(ctx, p.out, ExpandedColumnsFile, func(r io.Reader, name string) error {
			var err error
			cols, err = expand.ReadColumns(r, name)
			return err
		})
		if err != nil {
			return 0, missingInput(StepExpand, err)
		}
		src, err := p.signatureSource(ctx, idx, StepLocalDomains)
		if err != nil {
			return 0, err
		}
		var n int
		domains, n, err = p.localDomains(ctx, idx, src, cols)
		return n, err
	})
	if err != nil {
		return nil, err
	}
	return domains, nil
}

func (p *Pipeline) strongDomains(ctx context.Context, idx *eqindex.Index, locals []*domain.Domain) ([]*strong.StrongDomain, int, error) {
	g, err := strong.NewGenerator(idx, p.pool, func(o *strong.Options) {
		*o = p.opts.strong
		o.Logger = p.opts.logger.WithStep(StepStrongDomains).Logger
	})
	if err != nil {
		return nil, 0, err
	}
	var c strong.Collector
	if err := g.Run(ctx, locals, &c); err != nil {
		return nil, 0, err
	}
	var n int
	err = p.writeFile(ctx, StrongDomainsFile, func(w io.Writer, name string) error {
		sw := strong.NewWriter(w, name)
		if err := strong.Emit(sw, c.Domains); err != nil {
			return err
		}
		n = sw.Count()
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return c.Domains, n, nil
}

// StrongDomains merges the local domains file into strong domains and writes
// the strong domains file.
func (p *Pipeline) StrongDomains(ctx context.Context) ([]*strong.StrongDomain, error) {
	idx, err := p.LoadIndex(ctx)
	if err != nil {
		return nil, stepError(StepStrongDomains, err)
	}
	var domains []*strong.StrongDomain
	_, _, err = p.track(ctx, StepStrongDomains, func() (int, error) {
		var locals []*domain.Domain
		err := p.readFile(ctx, p.out, LocalDomainsFile, func(r io.Reader, name string) error {
			var err error
			locals, err = domain.ReadDomains(r, name)
			return err
		})
		if err != nil {
			return 0, missingInput(StepLocalDomains, err)
		}
		var n int
		domains, n, err = p.strongDomains(ctx, idx, locals)
		return n, err
	})
	if err != nil {
		return nil, err
	}
	return domains, nil
}

func missingInput(producer Step, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: run %s first: %w", ErrMissingInput, producer, err)
	}
	return err
}

// Run executes all steps after the index in order, keeping intermediate
// results in memory, and commits a manifest of the written files.
func (p *Pipeline) Run(ctx context.Context) (*manifest.Manifest, error) {
	start := time.Now()
	m, err := p.run(ctx)
	id := uint64(0)
	if m != nil {
		id = m.ID
	}
	p.opts.logger.LogRun(ctx, id, time.Since(start), err)
	return m, err
}

func (p *Pipeline) run(ctx context.Context) (*manifest.Manifest, error) {
	idx, err := p.LoadIndex(ctx)
	if err != nil {
		return nil, stepError(StepIndex, err)
	}
	m := manifest.New()
	m.Input = p.opts.input
	p.describe(m)
	add := func(step Step, n int, d time.Duration) {
		m.Add(step.String(), p.FileName(stepFile(step)), n, d)
	}

	var blocks *signature.Store
	n, d, err := p.track(ctx, StepSignatures, func() (int, error) {
		var n int
		var err error
		blocks, n, err = p.signatures(ctx, idx)
		return n, err
	})
	if err != nil {
		return nil, err
	}
	add(StepSignatures, n, d)

	var cols []*expand.ExpandedColumn
	n, d, err = p.track(ctx, StepExpand, func() (int, error) {
		var err error
		cols, err = p.expand(ctx, idx, blocks)
		return len(cols), err
	})
	if err != nil {
		return nil, err
	}
	add(StepExpand, n, d)

	var locals []*domain.Domain
	n, d, err = p.track(ctx, StepLocalDomains, func() (int, error) {
		var n int
		var err error
		locals, n, err = p.localDomains(ctx, idx, blocks, cols)
		return n, err
	})
	if err != nil {
		return nil, err
	}
	add(StepLocalDomains, n, d)

	n, d, err = p.track(ctx, StepStrongDomains, func() (int, error) {
		_, n, err := p.strongDomains(ctx, idx, locals)
		return n, err
	})
	if err != nil {
		return nil, err
	}
	add(StepStrongDomains, n, d)

	if err := manifest.NewStore(p.out, p.opts.committer).Save(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// describe records the effective settings in m.
func (p *Pipeline) describe(m *manifest.Manifest) {
	o := p.opts
	m.Options["workers"] = strconv.Itoa(o.workers)
	maps.Copy(m.Options, blockSettings(o.blocks))
	m.Options["expand.threshold"] = o.expand.Threshold.String()
	m.Options["expand.decrease_factor"] = strconv.FormatFloat(o.expand.DecreaseFactor, 'g', -1, 64)
	m.Options["expand.iterations"] = strconv.Itoa(o.expand.Iterations)
	m.Options["expand.trimmer"] = o.expand.TrimPolicy.String()
	m.Options["domains.trimmer"] = o.domains.TrimPolicy.String()
	m.Options["strong.min_support"] = o.strong.MinSupport.String()
	m.Options["strong.domain_overlap"] = o.strong.DomainOverlap.String()
	m.Options["strong.support_fraction"] = strconv.FormatFloat(o.strong.SupportFraction, 'g', -1, 64)
}
