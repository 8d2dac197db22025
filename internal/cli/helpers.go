package cli

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/auth"
	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/config"
	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/resource"
	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/syncsvc"
)

// tokenExpiryLead is how far ahead of token expiry the CLI starts
// warning.
const tokenExpiryLead = 10 * time.Minute

// loadConfig resolves and loads the workspace config. An empty path
// triggers the upward search from the working directory.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		found, err := config.FindConfigPath("")
		if err != nil {
			return config.Config{}, err
		}
		path = found
	}
	return config.Load(path)
}

func newLogger(stderr io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(stderr, nil))
}

func newSyncClient(cfg config.Config) *syncsvc.Client {
	tokens := auth.EnvTokenSource{Var: cfg.Sync.TokenEnv}
	return syncsvc.NewWithTimeout(cfg.Sync.BaseURL, tokens, time.Duration(cfg.Sync.RequestTimeoutSeconds)*time.Second)
}

func newResourceClient(cfg config.Config) *resource.Client {
	tokens := auth.EnvTokenSource{Var: cfg.Platform.TokenEnv}
	return resource.New(cfg.Platform.BaseURL, tokens, time.Duration(cfg.Sync.RequestTimeoutSeconds)*time.Second)
}

// warnTokenExpiry prints a warning when the configured token is near or
// past its expiry. Missing or opaque tokens stay silent here; request
// errors surface the problem with more context.
func warnTokenExpiry(cfg config.Config, stderr io.Writer) {
	token, err := auth.EnvTokenSource{Var: cfg.Sync.TokenEnv}.Token()
	if err != nil {
		return
	}
	if warning := auth.ExpiryWarning(token, time.Now(), tokenExpiryLead); warning != "" {
		fmt.Fprintf(stderr, "Warning: %s\n", warning)
	}
}
