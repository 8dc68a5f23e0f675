// Package d4 discovers semantic domains in relational data.
//
// A domain is a set of values of one type (city names, ISO country codes)
// that appears across several columns. The pipeline works on an index of
// equivalence classes (EQs): every EQ groups the terms that occur in exactly
// the same set of columns.
//
// # Steps
//
//  1. Index: read (column, value) pairs from a source and build the EQ index.
//  2. Signatures: rank, for every EQ, all co-occurring EQs by column-set
//     similarity and cut the ranking into blocks at its steepest drops.
//  3. Expand: add EQs to each column that most of the column's members
//     support through their blocks.
//  4. Local domains: connect the nodes of each expanded column through their
//     trimmed blocks and keep the components anchored in the column.
//  5. Strong domains: merge local domains of different columns that support
//     each other.
//
// # Quick Start
//
//	ctx := context.Background()
//	in := storage.NewLocalStore("./index")
//	out := storage.NewLocalStore("./out")
//
//	p := d4.New(in, out, d4.WithWorkers(8), d4.WithLogger(d4.NewTextLogger(slog.LevelInfo)))
//	m, err := p.Run(ctx)
//
// Every step can also run on its own; each reads its inputs from and writes
// its output to the configured stores, so a run can be resumed or inspected
// step by step. Stores may be local directories, S3 or MinIO (see OpenStore).
package d4
