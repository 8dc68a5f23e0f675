// Package manifest records the outputs of completed pipeline runs.
//
// Each run writes a numbered MANIFEST-NNNNNN.json blob and then commits its
// name through a storage.Committer, so readers only ever see manifests of
// runs that finished.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hupe1980/d4/storage"
)

const (
	// FilePrefix starts every manifest blob name.
	FilePrefix = "MANIFEST"
	// CurrentVersion is the manifest format version.
	CurrentVersion = 1
)

// Manifest describes the outputs of one run.
type Manifest struct {
	Version   int       `json:"version"`
	ID        uint64    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	// Input is the location the EQ index was read from.
	Input string `json:"input,omitempty"`
	// Files maps each step to the blob it wrote.
	Files map[string]FileInfo `json:"files"`
	// Options holds the effective settings as text.
	Options map[string]string `json:"options,omitempty"`
}

// FileInfo describes one output blob.
type FileInfo struct {
	Name     string `json:"name"`
	Records  int    `json:"records"`
	Duration string `json:"duration,omitempty"`
}

// New creates an empty manifest.
func New() *Manifest {
	return &Manifest{
		Version: CurrentVersion,
		Files:   make(map[string]FileInfo),
		Options: make(map[string]string),
	}
}

// Add records the output of a step.
func (m *Manifest) Add(step, name string, records int, d time.Duration) {
	m.Files[step] = FileInfo{Name: name, Records: records, Duration: d.Round(time.Millisecond).String()}
}

// Store saves and loads manifests.
type Store struct {
	blobs     storage.Store
	committer storage.Committer
}

// NewStore creates a manifest store. A nil committer keeps the pointer in a
// CURRENT blob of blobs.
func NewStore(blobs storage.Store, committer storage.Committer) *Store {
	if committer == nil {
		committer = storage.NewBlobCommitter(blobs)
	}
	return &Store{blobs: blobs, committer: committer}
}

// FileName returns the blob name of manifest id.
func FileName(id uint64) string {
	return fmt.Sprintf("%s-%06d.json", FilePrefix, id)
}

// Load returns the latest committed manifest, or storage.ErrNotFound when
// no run was committed.
func (s *Store) Load(ctx context.Context) (*Manifest, error) {
	version, name, err := s.committer.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if version == 0 {
		return nil, fmt.Errorf("manifest: no committed run: %w", storage.ErrNotFound)
	}

	var m Manifest
	err = storage.Read(ctx, s.blobs, name, func(r io.Reader) error {
		return json.NewDecoder(r).Decode(&m)
	})
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", name, err)
	}
	if m.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported manifest version: %d (expected %d)", m.Version, CurrentVersion)
	}
	return &m, nil
}

// Save writes m under the next id and commits it.
func (s *Store) Save(ctx context.Context, m *Manifest) error {
	latest, _, err := s.committer.Latest(ctx)
	if err != nil {
		return err
	}
	m.Version = CurrentVersion
	m.ID = latest + 1
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	name := FileName(m.ID)
	if err := s.blobs.Put(ctx, name, data); err != nil {
		return fmt.Errorf("manifest: write %s: %w", name, err)
	}
	version, err := s.committer.Commit(ctx, name)
	if err != nil {
		_ = s.blobs.Delete(ctx, name)
		return fmt.Errorf("manifest: commit %s: %w", name, err)
	}
	if version != m.ID {
		return fmt.Errorf("manifest: committed %s as version %d", name, version)
	}
	return nil
}
