package config

import (
	"fmt"
)

// validLogLevels lists the supported log levels.
var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

// validLogFormats lists the supported log formats.
var validLogFormats = map[string]bool{
	"json": true, "text": true, "auto": true,
}

// Validate checks the config for semantic errors and returns all of them.
func Validate(cfg *Config) []error {
	var errs []error

	if cfg.Kernel.MaxProcesses < 2 {
		errs = append(errs, fmt.Errorf("kernel.max_processes must be >= 2, got %d", cfg.Kernel.MaxProcesses))
	}
	if cfg.Kernel.StdQueueSize < 1 {
		errs = append(errs, fmt.Errorf("kernel.std_queue_size must be >= 1, got %d", cfg.Kernel.StdQueueSize))
	}
	if cfg.Kernel.RTQueueSize < 1 {
		errs = append(errs, fmt.Errorf("kernel.rt_queue_size must be >= 1, got %d", cfg.Kernel.RTQueueSize))
	}
	if cfg.Kernel.MaxPending < cfg.Kernel.StdQueueSize {
		errs = append(errs, fmt.Errorf("kernel.max_pending must be >= kernel.std_queue_size, got %d", cfg.Kernel.MaxPending))
	}
	if cfg.Kernel.SweepInterval < 0 {
		errs = append(errs, fmt.Errorf("kernel.sweep_interval must be >= 0, got %d", cfg.Kernel.SweepInterval))
	}
	if cfg.Kernel.ZombieMaxAge < 0 {
		errs = append(errs, fmt.Errorf("kernel.zombie_max_age must be >= 0, got %d", cfg.Kernel.ZombieMaxAge))
	}

	if !validLogLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", cfg.Logging.Level))
	}
	if !validLogFormats[cfg.Logging.Format] {
		errs = append(errs, fmt.Errorf("logging.format must be json, text, or auto, got %q", cfg.Logging.Format))
	}

	if cfg.Server.HTTP.Enabled {
		if cfg.Server.HTTP.Listen == "" {
			errs = append(errs, fmt.Errorf("server.http.listen is required when server.http.enabled is true"))
		}
		if cfg.Server.HTTP.Username == "" || cfg.Server.HTTP.Password == "" {
			errs = append(errs, fmt.Errorf("server.http requires username and password when enabled"))
		}
	}

	for name, wh := range cfg.Webhooks {
		prefix := fmt.Sprintf("webhooks.%s", name)
		if wh.URL == "" {
			errs = append(errs, fmt.Errorf("%s: url is required", prefix))
		}
		if len(wh.Events) == 0 {
			errs = append(errs, fmt.Errorf("%s: at least one event is required", prefix))
		}
		if wh.Timeout < 0 {
			errs = append(errs, fmt.Errorf("%s: timeout must be >= 0, got %d", prefix, wh.Timeout))
		}
	}

	return errs
}
