package d4

import (
	"runtime"

	"github.com/hupe1980/d4/domain"
	"github.com/hupe1980/d4/eqindex"
	"github.com/hupe1980/d4/expand"
	"github.com/hupe1980/d4/signature"
	"github.com/hupe1980/d4/storage"
	"github.com/hupe1980/d4/strong"
	"github.com/hupe1980/d4/trim"
)

type options struct {
	workers     int
	logger      *Logger
	metrics     MetricsCollector
	index       eqindex.BuilderOptions
	blocks      signature.BlockOptions
	expand      expand.Options
	domains     domain.Options
	strong      strong.Options
	compression string
	committer   storage.Committer
	input       string
}

func defaultOptions() options {
	return options{
		workers: runtime.GOMAXPROCS(0),
		logger:  NoopLogger(),
		metrics: NoopMetricsCollector{},
		index:   eqindex.DefaultBuilderOptions,
		blocks:  signature.DefaultBlockOptions,
		expand:  expand.DefaultOptions,
		domains: domain.DefaultOptions,
		strong:  strong.DefaultOptions,
	}
}

// Option configures a Pipeline.
type Option func(*options)

// WithWorkers sets the worker pool size. Values below 1 select GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = runtime.GOMAXPROCS(0)
		}
		o.workers = n
	}
}

// WithLogger sets the logger. If nil is passed, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m MetricsCollector) Option {
	return func(o *options) {
		if m == nil {
			m = NoopMetricsCollector{}
		}
		o.metrics = m
	}
}

// WithIndex configures how column values become terms.
func WithIndex(fn func(o *eqindex.BuilderOptions)) Option {
	return func(o *options) {
		fn(&o.index)
	}
}

// WithBlocks sets the block partitioner options.
func WithBlocks(b signature.BlockOptions) Option {
	return func(o *options) {
		o.blocks = b
	}
}

// WithTrimmer selects the trim policies of column expansion and local
// domain generation.
func WithTrimmer(expansion, local trim.Policy) Option {
	return func(o *options) {
		o.expand.TrimPolicy = expansion
		o.domains.TrimPolicy = local
	}
}

// WithExpansion configures column expansion.
//
// Example:
//
//	d4.WithExpansion(func(o *expand.Options) {
//	    o.Threshold = threshold.GT(0.6)
//	    o.Iterations = 3
//	})
func WithExpansion(fn func(o *expand.Options)) Option {
	return func(o *options) {
		fn(&o.expand)
	}
}

// WithLocalDomains configures local domain generation.
func WithLocalDomains(fn func(o *domain.Options)) Option {
	return func(o *options) {
		fn(&o.domains)
	}
}

// WithStrongDomains configures strong domain generation.
func WithStrongDomains(fn func(o *strong.Options)) Option {
	return func(o *options) {
		fn(&o.strong)
	}
}

// WithCompression appends suffix (".gz", ".zst" or ".lz4") to every output
// file name, which selects the codec.
func WithCompression(suffix string) Option {
	return func(o *options) {
		o.compression = suffix
	}
}

// WithCommitter sets where completed runs are committed. The default keeps
// the pointer in a CURRENT blob of the output store.
func WithCommitter(c storage.Committer) Option {
	return func(o *options) {
		o.committer = c
	}
}

// WithInput records the location of the EQ index in run manifests.
func WithInput(uri string) Option {
	return func(o *options) {
		o.input = uri
	}
}
