package d4

import (
	"context"
	"errors"
	"io"

	"github.com/hupe1980/d4/domain"
	"github.com/hupe1980/d4/eqindex"
	"github.com/hupe1980/d4/expand"
	"github.com/hupe1980/d4/manifest"
	"github.com/hupe1980/d4/storage"
	"github.com/hupe1980/d4/strong"
)

// Stats summarizes the index and the outputs written so far. Counts of
// steps that have not run are zero and the step is listed in Missing.
type Stats struct {
	EQs     int    `json:"eqs"`
	Columns int    `json:"columns"`
	Terms   uint64 `json:"terms"`

	Blocks          int `json:"blocks"`
	ExpandedColumns int `json:"expanded_columns"`
	ExpandedNodes   int `json:"expanded_nodes"`
	LocalDomains    int `json:"local_domains"`
	StrongDomains   int `json:"strong_domains"`

	// Manifest is the id of the latest committed run, zero if none.
	Manifest uint64   `json:"manifest"`
	Missing  []string `json:"missing,omitempty"`
}

// Stats collects the summary.
func (p *Pipeline) Stats(ctx context.Context) (*Stats, error) {
	idx, err := p.LoadIndex(ctx)
	if err != nil {
		return nil, err
	}
	st := &Stats{EQs: idx.Len(), Columns: len(idx.Columns()), Terms: idx.Weight(idx.IDs())}

	optional := func(step Step, fn func(r io.Reader, name string) error) error {
		err := p.readFile(ctx, p.out, stepFile(step), fn)
		if errors.Is(err, storage.ErrNotFound) {
			st.Missing = append(st.Missing, step.String())
			return nil
		}
		return err
	}

	err = optional(StepSignatures, func(r io.Reader, name string) error {
		return eqindex.Records(r, name, 4, func([]string) error {
			st.Blocks++
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	err = optional(StepExpand, func(r io.Reader, name string) error {
		cols, err := expand.ReadColumns(r, name)
		if err != nil {
			return err
		}
		st.ExpandedColumns = len(cols)
		st.ExpandedNodes = expand.ExpansionNodes(cols).Len()
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = optional(StepLocalDomains, func(r io.Reader, name string) error {
		ds, err := domain.ReadDomains(r, name)
		st.LocalDomains = len(ds)
		return err
	})
	if err != nil {
		return nil, err
	}
	err = optional(StepStrongDomains, func(r io.Reader, name string) error {
		ds, err := strong.ReadStrongDomains(r, name)
		st.StrongDomains = len(ds)
		return err
	})
	if err != nil {
		return nil, err
	}

	m, err := manifest.NewStore(p.out, p.opts.committer).Load(ctx)
	switch {
	case err == nil:
		st.Manifest = m.ID
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}
	return st, nil
}
