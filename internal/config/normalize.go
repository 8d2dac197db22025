package config

import (
	"path/filepath"
	"strings"
)

// Defaults applied by Normalize.
const (
	DefaultProgressIntervalMs    = 2000
	DefaultClientRefreshSeconds  = 15
	DefaultRequestTimeoutSeconds = 30
	DefaultConsoleAddr           = "127.0.0.1:8420"
	DefaultTokenEnv              = "PIPS_API_TOKEN"
)

// Normalize fills defaults and resolves relative paths against the
// workspace root.
func Normalize(cfg *Config, root string) {
	if cfg == nil {
		return
	}
	cfg.Platform.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Platform.BaseURL), "/")
	cfg.Sync.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Sync.BaseURL), "/")
	if cfg.Sync.BaseURL == "" {
		cfg.Sync.BaseURL = cfg.Platform.BaseURL
	}
	if cfg.Platform.TokenEnv == "" {
		cfg.Platform.TokenEnv = DefaultTokenEnv
	}
	if cfg.Sync.TokenEnv == "" {
		cfg.Sync.TokenEnv = cfg.Platform.TokenEnv
	}
	if cfg.Sync.ProgressIntervalMs <= 0 {
		cfg.Sync.ProgressIntervalMs = DefaultProgressIntervalMs
	}
	if cfg.Sync.ClientRefreshSeconds <= 0 {
		cfg.Sync.ClientRefreshSeconds = DefaultClientRefreshSeconds
	}
	if cfg.Sync.RequestTimeoutSeconds <= 0 {
		cfg.Sync.RequestTimeoutSeconds = DefaultRequestTimeoutSeconds
	}
	if cfg.Session.Path == "" {
		cfg.Session.Path = DefaultSessionFile
	}
	if cfg.History.Path == "" {
		cfg.History.Path = DefaultHistoryFile
	}
	if cfg.Console.Addr == "" {
		cfg.Console.Addr = DefaultConsoleAddr
	}
	cfg.Session.Path = resolvePath(root, cfg.Session.Path)
	cfg.History.Path = resolvePath(root, cfg.History.Path)
}

func resolvePath(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
