package d4

import (
	"github.com/hupe1980/d4/config"
	"github.com/hupe1980/d4/domain"
	"github.com/hupe1980/d4/eqindex"
	"github.com/hupe1980/d4/expand"
	"github.com/hupe1980/d4/strong"
)

// SettingsOptions translates resolved settings into pipeline options.
func SettingsOptions(s config.Settings) []Option {
	return []Option{
		WithWorkers(s.Workers),
		WithCompression(s.Compression),
		WithInput(s.Input),
		WithIndex(func(o *eqindex.BuilderOptions) {
			*o = s.Index
		}),
		WithBlocks(s.Blocks),
		WithExpansion(func(o *expand.Options) {
			o.Threshold = s.Threshold
			o.DecreaseFactor = s.DecreaseFactor
			o.Iterations = s.Iterations
			o.TrimPolicy = s.ExpandTrimmer
		}),
		WithLocalDomains(func(o *domain.Options) {
			o.TrimPolicy = s.DomainTrimmer
		}),
		WithStrongDomains(func(o *strong.Options) {
			o.MinSupport = s.MinSupport
			o.DomainOverlap = s.DomainOverlap
			o.SupportFraction = s.SupportFraction
		}),
	}
}

// SettingsLogger creates the logger selected by the log settings.
func SettingsLogger(s config.Settings) *Logger {
	if s.LogFormat == "json" {
		return NewJSONLogger(s.LogLevel)
	}
	return NewTextLogger(s.LogLevel)
}
