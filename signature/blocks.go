package signature

import (
	"slices"

	"github.com/hupe1980/d4/threshold"
)

// Block is a contiguous run of a ranked signature.
type Block struct {
	// Elements holds the EQ ids of the run in ascending id order.
	Elements []uint32
	// First is the similarity of the first (highest ranked) element.
	First float64
	// Last is the similarity of the last (lowest ranked) element.
	Last float64
}

// Len returns the number of elements.
func (b Block) Len() int {
	return len(b.Elements)
}

// Contains reports whether id is an element of the block.
func (b Block) Contains(id uint32) bool {
	_, ok := slices.BinarySearch(b.Elements, id)
	return ok
}

// NewBlock creates a block from a ranked run.
func NewBlock(run []Value) Block {
	ids := make([]uint32, len(run))
	for i, v := range run {
		ids[i] = v.ID
	}
	slices.Sort(ids)
	return Block{Elements: ids, First: run[0].Sim, Last: run[len(run)-1].Sim}
}

// Span is the half-open rank range [Start, End) of a block.
type Span struct {
	Start int
	End   int
}

// BlockOptions configures the steepest-drop partitioner.
type BlockOptions struct {
	// FullSignatureConstraint makes the drop from the last element to an
	// implicit trailing zero a candidate (unless IgnoreLastDrop is set), so
	// the whole signature can be covered by blocks.
	FullSignatureConstraint bool
	// IgnoreLastDrop excludes the trailing-zero drop from the candidates.
	IgnoreLastDrop bool
	// IgnoreMinorDrop treats a non-maximal drop as noise when the spread
	// inside the candidate block exceeds the drop itself.
	IgnoreMinorDrop bool
	// SwallowRemainder selects how noise after the first block is handled:
	// true emits everything from the current start as one final block, false
	// closes the current block at the drop and emits the rest as one
	// trailing block.
	SwallowRemainder bool
	// MinDrop is the constraint every accepted drop must satisfy.
	MinDrop threshold.Threshold
}

// DefaultBlockOptions are the partitioner defaults.
var DefaultBlockOptions = BlockOptions{
	FullSignatureConstraint: true,
	IgnoreLastDrop:          false,
	IgnoreMinorDrop:         true,
	SwallowRemainder:        false,
	MinDrop:                 threshold.GT(0),
}

// Partitioner splits ranked signatures into blocks. It is safe for concurrent use.
type Partitioner struct {
	opts BlockOptions
}

// NewPartitioner creates a partitioner.
func NewPartitioner(opts BlockOptions) *Partitioner {
	return &Partitioner{opts: opts}
}

// Options returns the partitioner configuration.
func (p *Partitioner) Options() BlockOptions {
	return p.opts
}

// Blocks partitions a ranked signature.
func (p *Partitioner) Blocks(sig []Value) []Block {
	values := make([]float64, len(sig))
	for i, v := range sig {
		values[i] = v.Sim
	}
	spans := p.Spans(values)
	blocks := make([]Block, len(spans))
	for i, s := range spans {
		blocks[i] = NewBlock(sig[s.Start:s.End])
	}
	return blocks
}

// Spans returns the block boundaries for descending similarity values.
// Spans are contiguous and start at rank 0; a low-similarity suffix that has
// no qualifying drop is left uncovered.
func (p *Partitioner) Spans(values []float64) []Span {
	n := len(values)
	var spans []Span
	start := 0
	for start < n {
		k, drop, ok := p.steepestDrop(values, start)
		if !ok {
			break
		}
		if p.opts.IgnoreMinorDrop && drop < values[start] {
			spread := values[start] - values[k-1]
			if spread > drop {
				if len(spans) == 0 || p.opts.SwallowRemainder {
					spans = append(spans, Span{Start: start, End: n})
				} else {
					spans = append(spans, Span{Start: start, End: k})
					if k < n {
						spans = append(spans, Span{Start: k, End: n})
					}
				}
				return spans
			}
		}
		spans = append(spans, Span{Start: start, End: k})
		start = k
	}
	return spans
}

// steepestDrop finds k > start maximizing values[k-1]-values[k] among drops
// that satisfy MinDrop. k == len(values) denotes the drop to the implicit
// trailing zero. The earliest k wins ties.
func (p *Partitioner) steepestDrop(values []float64, start int) (int, float64, bool) {
	n := len(values)
	best, bestDrop := -1, 0.0
	for k := start + 1; k < n; k++ {
		drop := values[k-1] - values[k]
		if p.opts.MinDrop.IsSatisfied(drop) && (best < 0 || drop > bestDrop) {
			best, bestDrop = k, drop
		}
	}
	if p.opts.FullSignatureConstraint && !p.opts.IgnoreLastDrop {
		drop := values[n-1]
		if p.opts.MinDrop.IsSatisfied(drop) && (best < 0 || drop > bestDrop) {
			best, bestDrop = n, drop
		}
	}
	return best, bestDrop, best >= 0
}
