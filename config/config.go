// Package config resolves pipeline settings from flags, environment, a YAML
// file and built-in defaults, in that order of precedence.
//
// Every setting has a dotted name ("expand.threshold") that is also its YAML
// path. The environment variable is the name upper-cased with dots replaced by
// underscores and prefixed with D4_ (D4_EXPAND_THRESHOLD).
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownKey is returned for a setting name that does not exist.
var ErrUnknownKey = errors.New("config: unknown key")

// ValueSource tells where a resolved value came from.
type ValueSource string

const (
	SourceDefault ValueSource = "default"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
)

// ResolvedValue is a raw setting and its origin.
type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

// Setting names.
const (
	KeyInput            = "input"
	KeyOutput           = "output"
	KeyWorkers          = "workers"
	KeyLogLevel         = "log.level"
	KeyLogFormat        = "log.format"
	KeyCompression      = "compression"
	KeyMinColumnSize    = "index.min_column_size"
	KeyCaseSensitive    = "index.case_sensitive"
	KeyMaxValueLength   = "index.max_value_length"
	KeyFullSignature    = "blocks.full_signature"
	KeyIgnoreLastDrop   = "blocks.ignore_last_drop"
	KeyIgnoreMinorDrop  = "blocks.ignore_minor_drop"
	KeySwallowRemainder = "blocks.swallow_remainder"
	KeyMinDrop          = "blocks.min_drop"
	KeyThreshold        = "expand.threshold"
	KeyDecreaseFactor   = "expand.decrease_factor"
	KeyIterations       = "expand.iterations"
	KeyExpandTrimmer    = "expand.trimmer"
	KeyDomainTrimmer    = "domains.trimmer"
	KeyMinSupport       = "strong.min_support"
	KeyDomainOverlap    = "strong.domain_overlap"
	KeySupportFraction  = "strong.support_fraction"
	KeyCommitTable      = "commit.table"
	KeyMinioAccessKey   = "minio.access_key"
	KeyMinioSecretKey   = "minio.secret_key"
	KeyMinioSecure      = "minio.secure"
)

// Defaults holds the built-in value of every setting.
var Defaults = map[string]string{
	KeyInput:            "",
	KeyOutput:           "",
	KeyWorkers:          "0",
	KeyLogLevel:         "info",
	KeyLogFormat:        "text",
	KeyCompression:      "",
	KeyMinColumnSize:    "1",
	KeyCaseSensitive:    "false",
	KeyMaxValueLength:   "512",
	KeyFullSignature:    "true",
	KeyIgnoreLastDrop:   "false",
	KeyIgnoreMinorDrop:  "true",
	KeySwallowRemainder: "false",
	KeyMinDrop:          "GT0",
	KeyThreshold:        "GT0.5",
	KeyDecreaseFactor:   "0.05",
	KeyIterations:       "5",
	KeyExpandTrimmer:    "CENTRIST",
	KeyDomainTrimmer:    "CONSERVATIVE",
	KeyMinSupport:       "GT0.1",
	KeyDomainOverlap:    "GEQ0.5",
	KeySupportFraction:  "0.25",
	KeyCommitTable:      "",
	KeyMinioAccessKey:   "",
	KeyMinioSecretKey:   "",
	KeyMinioSecure:      "true",
}

// Keys returns all setting names in order.
func Keys() []string {
	keys := make([]string, 0, len(Defaults))
	for k := range Defaults {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// EnvName returns the environment variable of a setting.
func EnvName(key string) string {
	return "D4_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// ResolveOptions carries the command-line inputs.
type ResolveOptions struct {
	// ConfigPath is the YAML file; empty falls back to $D4_CONFIG, and no
	// file is read when both are empty.
	ConfigPath string
	// CLI maps setting names to flag values. Empty values are ignored.
	CLI map[string]string
}

// Resolved is the outcome of Resolve.
type Resolved struct {
	ConfigPath string                   `json:"config_path,omitempty"`
	Values     map[string]ResolvedValue `json:"values"`
}

// Get returns the resolved value of key.
func (r Resolved) Get(key string) ResolvedValue {
	return r.Values[key]
}

// Resolve merges defaults, file, environment and CLI values.
func Resolve(opts ResolveOptions) (Resolved, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	from := "--config"
	if path == "" {
		path = strings.TrimSpace(os.Getenv("D4_CONFIG"))
		from = "D4_CONFIG"
	}

	out := Resolved{ConfigPath: path, Values: make(map[string]ResolvedValue, len(Defaults))}
	for k, v := range Defaults {
		out.Values[k] = ResolvedValue{Value: v, Source: SourceDefault, From: "built-in default"}
	}

	if path != "" {
		file, err := Load(path)
		if err != nil {
			return out, fmt.Errorf("%s: %w", from, err)
		}
		for k, v := range file {
			apply(out.Values, k, v, SourceConfig, path)
		}
	}

	for _, k := range Keys() {
		env := EnvName(k)
		apply(out.Values, k, os.Getenv(env), SourceEnv, env)
	}

	for k, v := range opts.CLI {
		if _, ok := Defaults[k]; !ok {
			return out, fmt.Errorf("%w: %s", ErrUnknownKey, k)
		}
		apply(out.Values, k, v, SourceCLI, "--"+k)
	}
	return out, nil
}

func apply(dst map[string]ResolvedValue, key, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	dst[key] = ResolvedValue{Value: v, Source: source, From: from}
}

// Load reads a YAML file and flattens it into dotted setting names.
func Load(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(b)
}

// Parse flattens YAML content into dotted setting names. Unknown names and
// non-scalar leaves are rejected.
func Parse(data []byte) (map[string]string, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	out := make(map[string]string)
	if err := flatten("", doc, out); err != nil {
		return nil, err
	}
	return out, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) error {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			if err := flatten(key, val, out); err != nil {
				return err
			}
		case []any:
			return fmt.Errorf("config: %s: lists are not supported", key)
		case nil:
			if _, ok := Defaults[key]; !ok {
				return fmt.Errorf("%w: %s", ErrUnknownKey, key)
			}
		default:
			if _, ok := Defaults[key]; !ok {
				return fmt.Errorf("%w: %s", ErrUnknownKey, key)
			}
			out[key] = fmt.Sprint(val)
		}
	}
	return nil
}
