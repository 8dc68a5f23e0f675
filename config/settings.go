package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/hupe1980/d4/eqindex"
	"github.com/hupe1980/d4/signature"
	"github.com/hupe1980/d4/threshold"
	"github.com/hupe1980/d4/trim"
)

// Settings are the typed pipeline settings.
type Settings struct {
	Input     string
	Output    string
	Workers   int
	LogLevel  slog.Level
	LogFormat string

	Compression string
	Index       eqindex.BuilderOptions

	Blocks signature.BlockOptions

	Threshold      threshold.Threshold
	DecreaseFactor float64
	Iterations     int
	ExpandTrimmer  trim.Policy
	DomainTrimmer  trim.Policy

	MinSupport      threshold.Threshold
	DomainOverlap   threshold.Threshold
	SupportFraction float64

	CommitTable    string
	MinioAccessKey string
	MinioSecretKey string
	MinioSecure    bool
}

type parser struct {
	r   Resolved
	err error
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		v := p.r.Get(key)
		p.err = fmt.Errorf("config: %s=%q (from %s): %w", key, v.Value, v.From, err)
	}
}

func (p *parser) getStr(key string) string {
	return p.r.Get(key).Value
}

func (p *parser) getInt(key string) int {
	n, err := strconv.Atoi(p.getStr(key))
	if err != nil {
		p.fail(key, err)
	}
	return n
}

func (p *parser) getFloat(key string) float64 {
	f, err := strconv.ParseFloat(p.getStr(key), 64)
	if err != nil {
		p.fail(key, err)
	}
	return f
}

func (p *parser) getBool(key string) bool {
	b, err := strconv.ParseBool(p.getStr(key))
	if err != nil {
		p.fail(key, err)
	}
	return b
}

func (p *parser) getThreshold(key string) threshold.Threshold {
	t, err := threshold.Parse(p.getStr(key))
	if err != nil {
		p.fail(key, err)
	}
	return t
}

func (p *parser) getPolicy(key string) trim.Policy {
	pol, err := trim.ParsePolicy(p.getStr(key))
	if err != nil {
		p.fail(key, err)
	}
	return pol
}

func (p *parser) getLevel(key string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(p.getStr(key))); err != nil {
		p.fail(key, err)
	}
	return l
}

// Settings parses the resolved values. The first invalid value is reported
// together with its origin.
func (r Resolved) Settings() (Settings, error) {
	p := &parser{r: r}
	s := Settings{
		Input:       p.getStr(KeyInput),
		Output:      p.getStr(KeyOutput),
		Workers:     p.getInt(KeyWorkers),
		LogLevel:    p.getLevel(KeyLogLevel),
		LogFormat:   strings.ToLower(p.getStr(KeyLogFormat)),
		Compression: p.getStr(KeyCompression),
		Index: eqindex.BuilderOptions{
			MinColumnSize:  p.getInt(KeyMinColumnSize),
			CaseSensitive:  p.getBool(KeyCaseSensitive),
			MaxValueLength: p.getInt(KeyMaxValueLength),
		},
		Blocks: signature.BlockOptions{
			FullSignatureConstraint: p.getBool(KeyFullSignature),
			IgnoreLastDrop:          p.getBool(KeyIgnoreLastDrop),
			IgnoreMinorDrop:         p.getBool(KeyIgnoreMinorDrop),
			SwallowRemainder:        p.getBool(KeySwallowRemainder),
			MinDrop:                 p.getThreshold(KeyMinDrop),
		},
		Threshold:       p.getThreshold(KeyThreshold),
		DecreaseFactor:  p.getFloat(KeyDecreaseFactor),
		Iterations:      p.getInt(KeyIterations),
		ExpandTrimmer:   p.getPolicy(KeyExpandTrimmer),
		DomainTrimmer:   p.getPolicy(KeyDomainTrimmer),
		MinSupport:      p.getThreshold(KeyMinSupport),
		DomainOverlap:   p.getThreshold(KeyDomainOverlap),
		SupportFraction: p.getFloat(KeySupportFraction),
		CommitTable:     p.getStr(KeyCommitTable),
		MinioAccessKey:  p.getStr(KeyMinioAccessKey),
		MinioSecretKey:  p.getStr(KeyMinioSecretKey),
		MinioSecure:     p.getBool(KeyMinioSecure),
	}
	if p.err != nil {
		return Settings{}, p.err
	}
	if s.LogFormat != "text" && s.LogFormat != "json" {
		return Settings{}, fmt.Errorf("config: %s must be text or json, got %q", KeyLogFormat, s.LogFormat)
	}
	switch s.Compression {
	case "", ".gz", ".zst", ".lz4":
	default:
		return Settings{}, fmt.Errorf("config: %s must be one of .gz, .zst, .lz4, got %q", KeyCompression, s.Compression)
	}
	if s.Workers < 0 {
		return Settings{}, fmt.Errorf("config: %s must not be negative", KeyWorkers)
	}
	return s, nil
}
