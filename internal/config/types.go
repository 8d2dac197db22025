// Package config loads the .pipsync/config.yml workspace configuration.
package config

// Config is the parsed configuration file.
type Config struct {
	Version  int            `yaml:"version"`
	Platform PlatformConfig `yaml:"platform"`
	Sync     SyncConfig     `yaml:"sync"`
	Session  SessionConfig  `yaml:"session"`
	History  HistoryConfig  `yaml:"history"`
	Console  ConsoleConfig  `yaml:"console"`
}

// PlatformConfig locates the platform API used for resource CRUD.
type PlatformConfig struct {
	BaseURL  string `yaml:"base_url"`
	TokenEnv string `yaml:"token_env"`
}

// SyncConfig locates the sync service and tunes run observation.
type SyncConfig struct {
	// BaseURL defaults to the platform base URL when empty.
	BaseURL               string `yaml:"base_url"`
	TokenEnv              string `yaml:"token_env"`
	ProgressIntervalMs    int    `yaml:"progress_interval_ms"`
	ClientRefreshSeconds  int    `yaml:"client_refresh_seconds"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
}

// SessionConfig locates the persisted session database.
type SessionConfig struct {
	Path string `yaml:"path"`
}

// HistoryConfig locates the run history database.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// ConsoleConfig tunes the browser console server.
type ConsoleConfig struct {
	Addr string `yaml:"addr"`
}
