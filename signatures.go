package d4

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"maps"
	"strconv"

	"github.com/hupe1980/d4/eqindex"
	"github.com/hupe1980/d4/signature"
	"github.com/hupe1980/d4/storage"
)

// SignaturesMetaFile records the index and the block options the signatures
// file was computed from. A signatures file whose record does not match the
// current pipeline is not reused.
const SignaturesMetaFile = "signatures.json"

type signaturesMeta struct {
	EQs     int               `json:"eqs"`
	Columns int               `json:"columns"`
	Terms   uint64            `json:"terms"`
	Blocks  map[string]string `json:"blocks"`
}

func (m signaturesMeta) equal(other signaturesMeta) bool {
	return m.EQs == other.EQs &&
		m.Columns == other.Columns &&
		m.Terms == other.Terms &&
		maps.Equal(m.Blocks, other.Blocks)
}

func blockSettings(b signature.BlockOptions) map[string]string {
	return map[string]string{
		"blocks.full_signature":    strconv.FormatBool(b.FullSignatureConstraint),
		"blocks.ignore_last_drop":  strconv.FormatBool(b.IgnoreLastDrop),
		"blocks.ignore_minor_drop": strconv.FormatBool(b.IgnoreMinorDrop),
		"blocks.swallow_remainder": strconv.FormatBool(b.SwallowRemainder),
		"blocks.min_drop":          b.MinDrop.String(),
	}
}

func (p *Pipeline) signaturesMeta(idx *eqindex.Index) signaturesMeta {
	return signaturesMeta{
		EQs:     idx.Len(),
		Columns: len(idx.Columns()),
		Terms:   idx.Weight(idx.IDs()),
		Blocks:  blockSettings(p.opts.blocks),
	}
}

func (p *Pipeline) writeSignaturesMeta(ctx context.Context, idx *eqindex.Index) error {
	return storage.Write(ctx, p.out, SignaturesMetaFile, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p.signaturesMeta(idx))
	})
}

// signaturesCurrent reports whether the signatures file in the output store
// was computed from idx with the configured block options.
func (p *Pipeline) signaturesCurrent(ctx context.Context, idx *eqindex.Index) (bool, error) {
	var meta signaturesMeta
	err := storage.Read(ctx, p.out, SignaturesMetaFile, func(r io.Reader) error {
		return json.NewDecoder(r).Decode(&meta)
	})
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return meta.equal(p.signaturesMeta(idx)), nil
}

// clearOutputs removes the step outputs of an earlier index from the output
// store.
func (p *Pipeline) clearOutputs(ctx context.Context) error {
	names := []string{SignaturesMetaFile}
	for _, step := range Steps()[1:] {
		base := stepFile(step)
		names = append(names, base, base+".gz", base+".zst", base+".lz4")
	}
	for _, name := range names {
		if err := p.out.Delete(ctx, name); err != nil {
			return err
		}
	}
	return nil
}
