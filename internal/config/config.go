// Package config handles loading and validating Osiris configuration.
package config

// Config is the top-level Osiris configuration.
type Config struct {
	Kernel   KernelConfig             `toml:"kernel"`
	Logging  LoggingConfig            `toml:"logging"`
	Server   ServerConfig             `toml:"server"`
	Webhooks map[string]WebhookConfig `toml:"webhooks"`
	Include  []string                 `toml:"include"`
}

// KernelConfig holds kernel-core tunables.
type KernelConfig struct {
	MaxProcesses    int `toml:"max_processes"`
	StdQueueSize    int `toml:"std_queue_size"`
	RTQueueSize     int `toml:"rt_queue_size"`
	MaxPending      int `toml:"max_pending"`
	SweepInterval   int `toml:"sweep_interval"`
	ZombieMaxAge    int `toml:"zombie_max_age"`
	ShutdownTimeout int `toml:"shutdown_timeout"`
}

// LoggingConfig holds daemon logging settings.
type LoggingConfig struct {
	File     string `toml:"file"`
	Level    string `toml:"level"`
	Format   string `toml:"format"`
	MaxBytes string `toml:"max_bytes"`
	Backups  int    `toml:"backups"`
}

// ServerConfig holds server listener settings.
type ServerConfig struct {
	Unix UnixServerConfig `toml:"unix"`
	HTTP HTTPServerConfig `toml:"http"`
}

// UnixServerConfig holds Unix domain socket settings.
type UnixServerConfig struct {
	File  string `toml:"file"`
	Chmod string `toml:"chmod"`
	Chown string `toml:"chown"`
}

// HTTPServerConfig holds HTTP server settings.
type HTTPServerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Listen   string `toml:"listen"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// WebhookConfig holds per-webhook settings.
type WebhookConfig struct {
	URL     string            `toml:"url"`
	Events  []string          `toml:"events"`
	Headers map[string]string `toml:"headers"`
	Timeout int               `toml:"timeout"`
	Retries int               `toml:"retries"`
}
