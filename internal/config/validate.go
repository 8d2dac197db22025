package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks a normalized config for the fields every command needs.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Version != 1 {
		return fmt.Errorf("config version: expected 1, got %d", cfg.Version)
	}
	if cfg.Platform.BaseURL == "" {
		return fmt.Errorf("platform.base_url is required")
	}
	if err := validateURL("platform.base_url", cfg.Platform.BaseURL); err != nil {
		return err
	}
	if err := validateURL("sync.base_url", cfg.Sync.BaseURL); err != nil {
		return err
	}
	if strings.ContainsAny(cfg.Platform.TokenEnv, " \t") {
		return fmt.Errorf("platform.token_env: %q is not an environment variable name", cfg.Platform.TokenEnv)
	}
	if strings.ContainsAny(cfg.Sync.TokenEnv, " \t") {
		return fmt.Errorf("sync.token_env: %q is not an environment variable name", cfg.Sync.TokenEnv)
	}
	return nil
}

func validateURL(field, raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s: unsupported scheme %q", field, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s: missing host", field)
	}
	return nil
}
