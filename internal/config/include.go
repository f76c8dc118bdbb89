package config

import (
	"fmt"
	"path/filepath"
	"sort"
)

// ResolveIncludes processes the include directive in the config,
// loading and merging all matched files. Returns warnings for patterns
// that match no files. The configDir is the directory of the main config file.
func ResolveIncludes(cfg *Config, configDir string) ([]string, error) {
	if len(cfg.Include) == 0 {
		return nil, nil
	}

	var warnings []string
	seen := make(map[string]bool)

	for _, pattern := range cfg.Include {
		// Resolve relative patterns against config directory.
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(configDir, pattern)
		}

		matches, err := filepath.Glob(pattern)
		if err != nil {
			return warnings, fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}

		if len(matches) == 0 {
			warnings = append(warnings, fmt.Sprintf("include pattern %q matched no files", pattern))
			continue
		}

		// Sort for deterministic merge order.
		sort.Strings(matches)

		for _, path := range matches {
			absPath, err := filepath.Abs(path)
			if err != nil {
				return warnings, fmt.Errorf("cannot resolve include path %q: %w", path, err)
			}

			if seen[absPath] {
				return warnings, fmt.Errorf("circular include detected: %s", absPath)
			}
			seen[absPath] = true

			included, incWarnings, err := Load(absPath)
			if err != nil {
				return warnings, fmt.Errorf("include %s: %w", absPath, err)
			}
			warnings = append(warnings, incWarnings...)

			if err := mergeWebhooks(cfg, included, absPath); err != nil {
				return warnings, err
			}
		}
	}

	// Clear includes to prevent re-processing.
	cfg.Include = nil

	return warnings, nil
}

func mergeWebhooks(dst, src *Config, srcPath string) error {
	for name, wh := range src.Webhooks {
		if _, ok := dst.Webhooks[name]; ok {
			return fmt.Errorf("duplicate webhook name %q: defined in both main config and %s", name, srcPath)
		}
		if dst.Webhooks == nil {
			dst.Webhooks = make(map[string]WebhookConfig)
		}
		dst.Webhooks[name] = wh
	}
	return nil
}

// LoadWithIncludes loads a config file and resolves all includes.
func LoadWithIncludes(path string) (*Config, []string, error) {
	cfg, warnings, err := Load(path)
	if err != nil {
		return nil, warnings, err
	}

	configDir := filepath.Dir(path)

	// Expand variables before processing includes.
	if err := ExpandVariables(cfg, path); err != nil {
		return nil, warnings, fmt.Errorf("variable expansion failed: %w", err)
	}

	incWarnings, err := ResolveIncludes(cfg, configDir)
	warnings = append(warnings, incWarnings...)
	if err != nil {
		return nil, warnings, err
	}

	return cfg, warnings, nil
}
