package console

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/resource"
)

// clientCache holds the periodically refreshed client tenant list for the
// console's client switcher.
type clientCache struct {
	resources *resource.Client
	logger    *slog.Logger

	mu        sync.Mutex
	clients   []resource.Record
	refreshed time.Time
}

func newClientCache(resources *resource.Client, logger *slog.Logger) *clientCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &clientCache{resources: resources, logger: logger}
}

// run refreshes the cache immediately and then on the given interval
// until the context ends. Refresh failures keep the previous list.
func (c *clientCache) run(ctx context.Context, interval time.Duration) {
	c.refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refresh(ctx)
		}
	}
}

func (c *clientCache) refresh(ctx context.Context) {
	if c.resources == nil {
		return
	}
	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	clients, err := c.resources.List(fetchCtx, "clients")
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("client list refresh failed", "error", err)
		}
		return
	}
	c.mu.Lock()
	c.clients = clients
	c.refreshed = time.Now()
	c.mu.Unlock()
}

func (c *clientCache) snapshot() ([]resource.Record, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]resource.Record(nil), c.clients...), c.refreshed
}
