package signature

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/hupe1980/d4/eqindex"
	"github.com/hupe1980/d4/internal/idset"
	"github.com/hupe1980/d4/internal/workpool"
)

// WriteBlocks writes the blocks of store in ascending EQ order, one block per
// record: EQ id, first similarity, last similarity, element ids.
func WriteBlocks(w io.Writer, name string, store *Store) (int, error) {
	sink, err := eqindex.NewSink(w, name)
	if err != nil {
		return 0, err
	}
	for eq := range store.IDs().All() {
		blocks, _ := store.Get(eq)
		for _, b := range blocks {
			err := sink.Write(
				eqindex.FormatID(eq),
				formatSim(b.First),
				formatSim(b.Last),
				idset.FromSlice(b.Elements).Key(),
			)
			if err != nil {
				return sink.Count(), err
			}
		}
	}
	return sink.Count(), sink.Close()
}

func formatSim(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseBlock(f []string) (uint32, Block, error) {
	eq, err := eqindex.ParseID(f[0])
	if err != nil {
		return 0, Block{}, err
	}
	first, err := strconv.ParseFloat(f[1], 64)
	if err != nil {
		return 0, Block{}, fmt.Errorf("invalid similarity %q: %w", f[1], err)
	}
	last, err := strconv.ParseFloat(f[2], 64)
	if err != nil {
		return 0, Block{}, fmt.Errorf("invalid similarity %q: %w", f[2], err)
	}
	if f[3] == "" {
		return 0, Block{}, fmt.Errorf("empty block for EQ %d", eq)
	}
	elems, err := idset.Parse(f[3])
	if err != nil {
		return 0, Block{}, err
	}
	return eq, Block{Elements: elems.ToSlice(), First: first, Last: last}, nil
}

// ReadBlocks loads a file written by WriteBlocks into a store.
func ReadBlocks(r io.Reader, name string, pool *workpool.Pool) (*Store, error) {
	store := NewStore(pool)
	err := eqindex.Records(r, name, 4, func(f []string) error {
		eq, b, err := parseBlock(f)
		if err != nil {
			return err
		}
		blocks, _ := store.Get(eq)
		return store.Consume(eq, append(blocks, b))
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

// FileSource streams blocks from a file written by WriteBlocks without
// loading it. Each Stream call reopens the file, so a FileSource can serve
// every round of column expansion.
type FileSource struct {
	name string
	open func(ctx context.Context) (io.ReadCloser, error)
	pool *workpool.Pool
}

// NewFileSource creates a file-backed source. open is called once per stream.
func NewFileSource(name string, open func(ctx context.Context) (io.ReadCloser, error), pool *workpool.Pool) *FileSource {
	return &FileSource{name: name, open: open, pool: pool}
}

type eqBlocks struct {
	eq     uint32
	blocks []Block
}

// Stream implements Source. The file is read sequentially; records of one
// EQ must be consecutive. Consumers run on the pool while reading continues.
func (s *FileSource) Stream(ctx context.Context, filter *idset.Set, c Consumer) error {
	rc, err := s.open(ctx)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.name, err)
	}
	defer rc.Close()

	// Batches bound the memory held between reader and workers.
	const batchSize = 1024
	seen := idset.New()
	var batch []eqBlocks
	var current *eqBlocks

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := workpool.Each(ctx, s.pool, batch, func(_ context.Context, item eqBlocks) error {
			return c.Consume(item.eq, item.blocks)
		})
		batch = batch[:0]
		return err
	}
	emit := func() error {
		if current == nil {
			return nil
		}
		item := *current
		current = nil
		if filter != nil && !filter.Contains(item.eq) {
			return nil
		}
		if seen.Contains(item.eq) {
			return fmt.Errorf("%s: records of EQ %d are not consecutive", s.name, item.eq)
		}
		seen.Add(item.eq)
		batch = append(batch, item)
		if len(batch) >= batchSize {
			return flush()
		}
		return nil
	}

	err = eqindex.Records(rc, s.name, 4, func(f []string) error {
		eq, b, err := parseBlock(f)
		if err != nil {
			return err
		}
		if current != nil && current.eq != eq {
			if err := emit(); err != nil {
				return err
			}
		}
		if current == nil {
			current = &eqBlocks{eq: eq}
		}
		current.blocks = append(current.blocks, b)
		return nil
	})
	if err != nil {
		return err
	}
	if err := emit(); err != nil {
		return err
	}
	if err := flush(); err != nil {
		return err
	}

	if filter == nil {
		return nil
	}
	missing := filter.Clone()
	missing.AndNot(seen)
	return workpool.Each(ctx, s.pool, missing.ToSlice(), func(_ context.Context, id uint32) error {
		return c.Consume(id, nil)
	})
}

// FormatBlocks renders blocks for diagnostics, e.g. "[2] [3,4]".
func FormatBlocks(blocks []Block) string {
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = idset.FromSlice(slices.Clone(b.Elements)).String()
	}
	return strings.Join(parts, " ")
}
