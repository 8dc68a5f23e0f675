package workpool

import (
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Progress counts finished units of a phase and logs the count at most once
// per interval. It is safe for concurrent use by all workers of a phase.
type Progress struct {
	logger *slog.Logger
	phase  string
	total  int
	done   atomic.Int64
	every  rate.Sometimes
}

// NewProgress creates a progress reporter. A nil logger disables logging.
func NewProgress(logger *slog.Logger, phase string, total int, interval time.Duration) *Progress {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Progress{
		logger: logger,
		phase:  phase,
		total:  total,
		every:  rate.Sometimes{Interval: interval},
	}
}

// Add records n finished units.
func (p *Progress) Add(n int) {
	done := p.done.Add(int64(n))
	if p.logger == nil {
		return
	}
	p.every.Do(func() {
		p.logger.Debug("progress", "phase", p.phase, "done", done, "total", p.total)
	})
}

// Done returns the number of finished units.
func (p *Progress) Done() int {
	return int(p.done.Load())
}
