package console

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/resource"
	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/runner"
)

// Config captures the settings for serving the browser console.
type Config struct {
	Addr      string
	Runner    *runner.Runner
	Resources *resource.Client
	Hub       *Hub
	Logger    *slog.Logger
	// ClientRefreshInterval is the cadence of the background client tenant
	// list refresh.
	ClientRefreshInterval time.Duration
}

// Serve runs the console HTTP server until the context ends. The hub
// must be the one wired into the runner's observer so browser tabs see
// live updates.
func Serve(ctx context.Context, cfg Config) error {
	if ctx == nil {
		return errors.New("console: context is nil")
	}
	if cfg.Addr == "" {
		return errors.New("console: addr is required")
	}
	if cfg.Runner == nil {
		return errors.New("console: runner is required")
	}
	if cfg.Hub == nil {
		return errors.New("console: hub is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.ClientRefreshInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	clients := newClientCache(cfg.Resources, logger)
	go clients.run(serveCtx, interval)

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: newHandler(serveCtx, cfg.Runner, cfg.Hub, clients),
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	logger.Info("console listening", "addr", cfg.Addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
		cfg.Hub.Close()
		err := <-errCh
		if errors.Is(err, http.ErrServerClosed) || err == nil {
			return nil
		}
		return err
	}
}
