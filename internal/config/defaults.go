package config

// ApplyDefaults fills in zero-value fields with their default values.
func ApplyDefaults(cfg *Config) {
	// Kernel defaults.
	if cfg.Kernel.MaxProcesses == 0 {
		cfg.Kernel.MaxProcesses = 1024
	}
	if cfg.Kernel.StdQueueSize == 0 {
		cfg.Kernel.StdQueueSize = 32
	}
	if cfg.Kernel.RTQueueSize == 0 {
		cfg.Kernel.RTQueueSize = 128
	}
	if cfg.Kernel.MaxPending == 0 {
		cfg.Kernel.MaxPending = 1024
	}
	if cfg.Kernel.SweepInterval == 0 {
		cfg.Kernel.SweepInterval = 60
	}
	if cfg.Kernel.ZombieMaxAge == 0 {
		cfg.Kernel.ZombieMaxAge = 300
	}
	if cfg.Kernel.ShutdownTimeout == 0 {
		cfg.Kernel.ShutdownTimeout = 30
	}

	// Logging defaults.
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.MaxBytes == "" {
		cfg.Logging.MaxBytes = "50MB"
	}
	if cfg.Logging.Backups == 0 {
		cfg.Logging.Backups = 3
	}

	// Server defaults.
	if cfg.Server.Unix.File == "" {
		cfg.Server.Unix.File = "/var/run/osiris.sock"
	}
	if cfg.Server.Unix.Chmod == "" {
		cfg.Server.Unix.Chmod = "0700"
	}

	// Webhook defaults.
	for name, wh := range cfg.Webhooks {
		if wh.Timeout == 0 {
			wh.Timeout = 5
		}
		if wh.Retries == 0 {
			wh.Retries = 3
		}
		cfg.Webhooks[name] = wh
	}
}
