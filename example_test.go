package d4_test

import (
	"context"
	"fmt"

	"github.com/hupe1980/d4"
	"github.com/hupe1980/d4/source"
	"github.com/hupe1980/d4/storage"
)

type table map[string][]string

func (t table) Read(_ context.Context, fn source.ValueFunc) error {
	for _, col := range []string{"a.city", "b.town"} {
		for _, v := range t[col] {
			if err := fn(col, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func Example() {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	p := d4.New(store, store, d4.WithWorkers(2))

	idx, err := p.BuildIndex(ctx, table{
		"a.city": {"Berlin", "Paris", "Rome"},
		"b.town": {"berlin", "paris", "Oslo"},
	})
	if err != nil {
		panic(err)
	}
	fmt.Println("eqs:", idx.Len())

	m, err := p.Run(ctx)
	if err != nil {
		panic(err)
	}
	fmt.Println("manifest:", m.ID)
	// Output:
	// eqs: 3
	// manifest: 1
}
