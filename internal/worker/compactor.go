package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Compactable drops state recorded before cutoff.
type Compactable interface {
	Compact(ctx context.Context, cutoff time.Time) (int, error)
}

// Compactor periodically trims the shared sync log so it does not grow without bound.
type Compactor struct {
	target    Compactable
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	logger    *zerolog.Logger
}

func NewCompactor(target Compactable, interval, retention time.Duration, logger *zerolog.Logger) *Compactor {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &Compactor{
		target:    target,
		interval:  interval,
		retention: retention,
		now:       time.Now,
		logger:    logger,
	}
}

// Start runs a compaction immediately and then on every tick until ctx is done.
func (c *Compactor) Start(ctx context.Context) {
	c.logger.Info().Dur("interval", c.interval).Dur("retention", c.retention).Msg("compactor started")
	defer c.logger.Info().Msg("compactor stopped")

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce compacts everything older than the retention window.
func (c *Compactor) RunOnce(ctx context.Context) int {
	cutoff := c.now().Add(-c.retention)
	removed, err := c.target.Compact(ctx, cutoff)
	if err != nil {
		c.logger.Error().Err(err).Time("cutoff", cutoff).Msg("compaction failed")
		return removed
	}
	if removed > 0 {
		c.logger.Info().Int("removed", removed).Time("cutoff", cutoff).Msg("compaction done")
	}
	return removed
}
