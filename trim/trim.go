// Package trim implements the signature trimming policies.
//
// A Trimmer is bound to one column context and reduces the raw blocks of an
// EQ to the prefix that is relevant for that column. Trimmers only drop
// blocks; they never add EQ ids that were not part of the raw blocks, and an
// empty result is valid.
package trim

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/d4/internal/idset"
	"github.com/hupe1980/d4/signature"
)

// ErrUnknownPolicy is returned for an unsupported policy selector.
var ErrUnknownPolicy = errors.New("trim: unknown policy")

// Policy selects a trimming strategy.
type Policy string

const (
	// None keeps all blocks.
	None Policy = "NONE"
	// Conservative keeps blocks up to the first one overlapping the column.
	Conservative Policy = "CONSERVATIVE"
	// Liberal keeps blocks up to the last one overlapping the column.
	Liberal Policy = "LIBERAL"
	// Centrist keeps the block prefix with the best F1 score against the column.
	Centrist Policy = "CENTRIST"
)

// Policies lists the supported policies.
var Policies = []Policy{None, Conservative, Liberal, Centrist}

// ParsePolicy parses a case-insensitive selector.
func ParsePolicy(text string) (Policy, error) {
	p := Policy(strings.ToUpper(strings.TrimSpace(text)))
	for _, known := range Policies {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, text)
}

func (p Policy) String() string { return string(p) }

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(text []byte) error {
	v, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Trimmer trims the raw blocks of one EQ. Implementations are deterministic
// and safe for concurrent use.
type Trimmer interface {
	Trim(blocks []signature.Block) []signature.Block
}

// Factory binds a policy to a column context.
type Factory func(nodes *idset.Set) Trimmer

// NewFactory returns the factory for policy.
func NewFactory(policy Policy) (Factory, error) {
	switch policy {
	case None:
		return func(*idset.Set) Trimmer { return noTrim{} }, nil
	case Conservative:
		return func(nodes *idset.Set) Trimmer { return conservative{nodes: nodes} }, nil
	case Liberal:
		return func(nodes *idset.Set) Trimmer { return liberal{nodes: nodes} }, nil
	case Centrist:
		return func(nodes *idset.Set) Trimmer { return centrist{nodes: nodes} }, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, string(policy))
	}
}

// New creates a trimmer for policy bound to the column nodes.
func New(policy Policy, nodes *idset.Set) (Trimmer, error) {
	f, err := NewFactory(policy)
	if err != nil {
		return nil, err
	}
	return f(nodes), nil
}

type noTrim struct{}

func (noTrim) Trim(blocks []signature.Block) []signature.Block { return blocks }

type conservative struct{ nodes *idset.Set }

func (t conservative) Trim(blocks []signature.Block) []signature.Block {
	for i, b := range blocks {
		if overlaps(b, t.nodes) {
			return blocks[:i+1]
		}
	}
	return nil
}

type liberal struct{ nodes *idset.Set }

func (t liberal) Trim(blocks []signature.Block) []signature.Block {
	for i := len(blocks) - 1; i >= 0; i-- {
		if overlaps(blocks[i], t.nodes) {
			return blocks[:i+1]
		}
	}
	return nil
}

type centrist struct{ nodes *idset.Set }

// Trim maximizes F1 = 2·tp / (|prefix| + |nodes|) over block prefixes.
func (t centrist) Trim(blocks []signature.Block) []signature.Block {
	total := t.nodes.Len()
	if total == 0 {
		return nil
	}
	best, bestLen := 0.0, 0
	tp, size := 0, 0
	for i, b := range blocks {
		size += b.Len()
		for _, id := range b.Elements {
			if t.nodes.Contains(id) {
				tp++
			}
		}
		f1 := 2 * float64(tp) / float64(size+total)
		if f1 > best {
			best, bestLen = f1, i+1
		}
	}
	return blocks[:bestLen]
}

func overlaps(b signature.Block, nodes *idset.Set) bool {
	for _, id := range b.Elements {
		if nodes.Contains(id) {
			return true
		}
	}
	return false
}
