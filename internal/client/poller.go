package client

import (
	"context"
	"sync"
	"time"
)

// StartPolling probes the health endpoint every interval and calls callback
// after each successful probe. Failed probes are logged and skipped. The
// returned func stops polling; cancelling ctx does the same.
func (c *Client) StartPolling(ctx context.Context, interval time.Duration, callback func()) func() {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.get(ctx, "/api/health", nil); err != nil {
					if ctx.Err() == nil {
						c.logger.Debug().Err(err).Msg("Health probe failed")
					}
					continue
				}
				callback()
			}
		}
	}()

	return func() {
		cancel()
		wg.Wait()
	}
}
