package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/d4/threshold"
	"github.com/hupe1980/d4/trim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "d4.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestResolve_Precedence(t *testing.T) {
	path := writeConfig(t, `output: ./from-config
workers: 4
expand:
  threshold: GT0.6
  iterations: 3
strong:
  support_fraction: 0.5
`)
	t.Setenv("D4_CONFIG", "")
	t.Setenv("D4_EXPAND_THRESHOLD", "GEQ0.7")
	t.Setenv("D4_WORKERS", "6")

	r, err := Resolve(ResolveOptions{
		ConfigPath: path,
		CLI:        map[string]string{KeyWorkers: "2", KeyOutput: ""},
	})
	require.NoError(t, err)

	assert.Equal(t, ResolvedValue{Value: "2", Source: SourceCLI, From: "--workers"}, r.Get(KeyWorkers))
	assert.Equal(t, ResolvedValue{Value: "GEQ0.7", Source: SourceEnv, From: "D4_EXPAND_THRESHOLD"}, r.Get(KeyThreshold))
	assert.Equal(t, SourceConfig, r.Get(KeyOutput).Source)
	assert.Equal(t, "3", r.Get(KeyIterations).Value)
	assert.Equal(t, SourceDefault, r.Get(KeyMinSupport).Source)

	s, err := r.Settings()
	require.NoError(t, err)
	assert.Equal(t, 2, s.Workers)
	assert.Equal(t, "./from-config", s.Output)
	assert.Equal(t, threshold.GEQ(0.7), s.Threshold)
	assert.Equal(t, 3, s.Iterations)
	assert.Equal(t, 0.5, s.SupportFraction)
}

func TestResolve_Defaults(t *testing.T) {
	t.Setenv("D4_CONFIG", "")
	r, err := Resolve(ResolveOptions{})
	require.NoError(t, err)

	s, err := r.Settings()
	require.NoError(t, err)
	assert.Equal(t, 0, s.Workers)
	assert.Equal(t, slog.LevelInfo, s.LogLevel)
	assert.Equal(t, "text", s.LogFormat)
	assert.Equal(t, threshold.GT(0.5), s.Threshold)
	assert.Equal(t, 0.05, s.DecreaseFactor)
	assert.Equal(t, 5, s.Iterations)
	assert.Equal(t, trim.Centrist, s.ExpandTrimmer)
	assert.Equal(t, trim.Conservative, s.DomainTrimmer)
	assert.Equal(t, threshold.GT(0.1), s.MinSupport)
	assert.Equal(t, threshold.GEQ(0.5), s.DomainOverlap)
	assert.Equal(t, 0.25, s.SupportFraction)
	assert.True(t, s.Blocks.FullSignatureConstraint)
	assert.False(t, s.Blocks.IgnoreLastDrop)
	assert.True(t, s.Blocks.IgnoreMinorDrop)
	assert.Equal(t, threshold.GT(0), s.Blocks.MinDrop)
}

func TestResolve_ConfigFromEnv(t *testing.T) {
	path := writeConfig(t, "domains:\n  trimmer: liberal\n")
	t.Setenv("D4_CONFIG", path)

	r, err := Resolve(ResolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, path, r.ConfigPath)

	s, err := r.Settings()
	require.NoError(t, err)
	assert.Equal(t, trim.Liberal, s.DomainTrimmer)
}

func TestResolve_Errors(t *testing.T) {
	t.Setenv("D4_CONFIG", "")

	_, err := Resolve(ResolveOptions{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Resolve(ResolveOptions{ConfigPath: writeConfig(t, "expand:\n  thresold: GT0.5\n")})
	assert.ErrorIs(t, err, ErrUnknownKey)

	_, err = Resolve(ResolveOptions{CLI: map[string]string{"nope": "1"}})
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestSettings_InvalidValueNamesOrigin(t *testing.T) {
	t.Setenv("D4_CONFIG", "")
	t.Setenv("D4_EXPAND_TRIMMER", "aggressive")

	r, err := Resolve(ResolveOptions{})
	require.NoError(t, err)
	_, err = r.Settings()
	require.ErrorIs(t, err, trim.ErrUnknownPolicy)
	assert.ErrorContains(t, err, "D4_EXPAND_TRIMMER")
}

func TestParse_RejectsLists(t *testing.T) {
	_, err := Parse([]byte("input: [a, b]\n"))
	assert.Error(t, err)
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "D4_STRONG_DOMAIN_OVERLAP", EnvName(KeyDomainOverlap))
}

func TestSettings_IndexAndCompression(t *testing.T) {
	t.Setenv("D4_CONFIG", "")
	r, err := Resolve(ResolveOptions{CLI: map[string]string{
		KeyCompression:    ".zst",
		KeyCaseSensitive:  "true",
		KeyMinColumnSize:  "3",
		KeyMaxValueLength: "0",
	}})
	require.NoError(t, err)
	s, err := r.Settings()
	require.NoError(t, err)
	assert.Equal(t, ".zst", s.Compression)
	assert.True(t, s.Index.CaseSensitive)
	assert.Equal(t, 3, s.Index.MinColumnSize)
	assert.Equal(t, 0, s.Index.MaxValueLength)

	r, err = Resolve(ResolveOptions{CLI: map[string]string{KeyCompression: ".bz2"}})
	require.NoError(t, err)
	_, err = r.Settings()
	assert.ErrorContains(t, err, KeyCompression)
}
