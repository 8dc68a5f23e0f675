package signature

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hupe1980/d4/eqindex"
	"github.com/hupe1980/d4/internal/idset"
	"github.com/hupe1980/d4/internal/workpool"
)

// Consumer receives the blocks of one EQ. Sources may call Consume from
// several goroutines at once, but never twice for the same EQ in one stream.
type Consumer interface {
	Consume(eq uint32, blocks []Block) error
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(eq uint32, blocks []Block) error

// Consume implements Consumer.
func (f ConsumerFunc) Consume(eq uint32, blocks []Block) error { return f(eq, blocks) }

// Source streams signature blocks.
type Source interface {
	// Stream calls c exactly once for every EQ in filter, in unspecified
	// order, and returns after the last call completed. A nil filter selects
	// every EQ the source knows. The first consumer error aborts the stream.
	Stream(ctx context.Context, filter *idset.Set, c Consumer) error
}

// Dispatcher fans one stream out to the consumers registered per EQ.
// Registration must finish before streaming starts.
type Dispatcher struct {
	targets map[uint32][]Consumer
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{targets: make(map[uint32][]Consumer)}
}

// Register routes the blocks of every EQ in nodes to c.
func (d *Dispatcher) Register(nodes *idset.Set, c Consumer) {
	for id := range nodes.All() {
		d.targets[id] = append(d.targets[id], c)
	}
}

// Filter returns the set of EQs that have at least one consumer.
func (d *Dispatcher) Filter() *idset.Set {
	s := idset.New()
	for id := range d.targets {
		s.Add(id)
	}
	return s
}

// Len returns the number of registered EQs.
func (d *Dispatcher) Len() int {
	return len(d.targets)
}

// Consume implements Consumer.
func (d *Dispatcher) Consume(eq uint32, blocks []Block) error {
	for _, c := range d.targets[eq] {
		if err := c.Consume(eq, blocks); err != nil {
			return err
		}
	}
	return nil
}

// Run streams src into the registered consumers.
func (d *Dispatcher) Run(ctx context.Context, src Source) error {
	if len(d.targets) == 0 {
		return nil
	}
	return src.Stream(ctx, d.Filter(), d)
}

// IndexSource computes signatures and blocks on demand from an EQ index.
type IndexSource struct {
	gen    *Generator
	part   *Partitioner
	idx    *eqindex.Index
	pool   *workpool.Pool
	logger *slog.Logger
}

// NewIndexSource creates a source that computes blocks with the given pool.
// A nil logger disables progress logging.
func NewIndexSource(idx *eqindex.Index, opts BlockOptions, pool *workpool.Pool, logger *slog.Logger) *IndexSource {
	return &IndexSource{
		gen:    NewGenerator(idx),
		part:   NewPartitioner(opts),
		idx:    idx,
		pool:   pool,
		logger: logger,
	}
}

// Blocks computes the blocks of a single EQ.
func (s *IndexSource) Blocks(id uint32) ([]Block, error) {
	sig, err := s.gen.Signature(id)
	if err != nil {
		return nil, err
	}
	return s.part.Blocks(sig), nil
}

// Stream implements Source.
func (s *IndexSource) Stream(ctx context.Context, filter *idset.Set, c Consumer) error {
	if filter == nil {
		filter = s.idx.IDs()
	}
	ids := filter.ToSlice()
	progress := workpool.NewProgress(s.logger, "signatures", len(ids), 5*time.Second)
	return workpool.Each(ctx, s.pool, ids, func(_ context.Context, id uint32) error {
		blocks, err := s.Blocks(id)
		if err != nil {
			return fmt.Errorf("signature of EQ %d: %w", id, err)
		}
		if err := c.Consume(id, blocks); err != nil {
			return err
		}
		progress.Add(1)
		return nil
	})
}

// Store is an in-memory block set. It is both a Consumer (to collect a
// stream) and a Source (to replay it).
type Store struct {
	mu     sync.RWMutex
	blocks map[uint32][]Block
	pool   *workpool.Pool
}

// NewStore creates an empty store that replays streams on pool.
func NewStore(pool *workpool.Pool) *Store {
	return &Store{blocks: make(map[uint32][]Block), pool: pool}
}

// Consume implements Consumer.
func (s *Store) Consume(eq uint32, blocks []Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[eq] = blocks
	return nil
}

// Get returns the blocks of eq and whether eq is known.
func (s *Store) Get(eq uint32) ([]Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[eq]
	return b, ok
}

// IDs returns the set of known EQs.
func (s *Store) IDs() *idset.Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := idset.New()
	for id := range s.blocks {
		ids.Add(id)
	}
	return ids
}

// Len returns the number of known EQs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks)
}

// Stream implements Source. EQs of the filter without stored blocks are
// delivered with no blocks.
func (s *Store) Stream(ctx context.Context, filter *idset.Set, c Consumer) error {
	if filter == nil {
		filter = s.IDs()
	}
	return workpool.Each(ctx, s.pool, filter.ToSlice(), func(_ context.Context, id uint32) error {
		blocks, _ := s.Get(id)
		return c.Consume(id, blocks)
	})
}
