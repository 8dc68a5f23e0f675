package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Committer records which run manifest is the latest complete output.
type Committer interface {
	// Commit records manifest as the next version and returns it.
	Commit(ctx context.Context, manifest string) (uint64, error)
	// Latest returns the newest version and manifest; version 0 means none.
	Latest(ctx context.Context) (uint64, string, error)
}

// CurrentName is the pointer blob written by BlobCommitter.
const CurrentName = "CURRENT"

// BlobCommitter keeps the commit pointer in a CURRENT blob of the store.
// It serializes commits within one process only.
type BlobCommitter struct {
	mu    sync.Mutex
	store Store
}

// NewBlobCommitter creates a committer on s.
func NewBlobCommitter(s Store) *BlobCommitter {
	return &BlobCommitter{store: s}
}

// Latest reads the CURRENT blob.
func (c *BlobCommitter) Latest(ctx context.Context) (uint64, string, error) {
	var data []byte
	err := Read(ctx, c.store, CurrentName, func(r io.Reader) error {
		var err error
		data, err = io.ReadAll(r)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", err
	}
	v, manifest, ok := strings.Cut(strings.TrimSpace(string(data)), "\t")
	if !ok {
		return 0, "", fmt.Errorf("storage: malformed %s %q", CurrentName, data)
	}
	version, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("storage: malformed %s version: %w", CurrentName, err)
	}
	return version, manifest, nil
}

// Commit replaces the CURRENT blob with the next version.
func (c *BlobCommitter) Commit(ctx context.Context, manifest string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	version, _, err := c.Latest(ctx)
	if err != nil {
		return 0, err
	}
	version++
	line := strconv.FormatUint(version, 10) + "\t" + manifest + "\n"
	if err := c.store.Put(ctx, CurrentName, []byte(line)); err != nil {
		return 0, err
	}
	return version, nil
}
