package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExpandStringTemplateVars(t *testing.T) {
	ctx := ExpandContext{Here: "/etc/osiris"}

	result, err := ExpandString("%(here)s/logs/osiris.log", ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result != "/etc/osiris/logs/osiris.log" {
		t.Fatalf("result = %q, want /etc/osiris/logs/osiris.log", result)
	}
}

func TestExpandStringEnvVars(t *testing.T) {
	t.Setenv("OSIRIS_EXTRA_TEST_VAR", "myvalue")

	ctx := ExpandContext{Here: "/etc"}
	result, err := ExpandString("prefix-${OSIRIS_EXTRA_TEST_VAR}-suffix", ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result != "prefix-myvalue-suffix" {
		t.Fatalf("result = %q, want prefix-myvalue-suffix", result)
	}
}

func TestExpandStringEmpty(t *testing.T) {
	ctx := ExpandContext{}
	result, err := ExpandString("", ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result != "" {
		t.Fatalf("result = %q, want empty", result)
	}
}

func TestExpandStringEscapes(t *testing.T) {
	ctx := ExpandContext{}
	result, err := ExpandString("100%% done, cost $$5", ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result != "100% done, cost $5" {
		t.Fatalf("result = %q, want '100%% done, cost $5'", result)
	}
}

func TestExpandStringUnclosedTemplate(t *testing.T) {
	ctx := ExpandContext{}
	_, err := ExpandString("%(unclosed", ctx)
	if err == nil {
		t.Fatal("expected error for unclosed template")
	}
}

func TestExpandStringUnclosedEnvVar(t *testing.T) {
	ctx := ExpandContext{}
	_, err := ExpandString("${UNCLOSED", ctx)
	if err == nil {
		t.Fatal("expected error for unclosed env var")
	}
}

func TestExpandStringUnknownTemplateVar(t *testing.T) {
	ctx := ExpandContext{}
	_, err := ExpandString("%(bogus)s", ctx)
	if err == nil {
		t.Fatal("expected error for unknown template variable")
	}
}

func TestLoadWithIncludesHappyPath(t *testing.T) {
	dir := t.TempDir()

	mainCfg := `
include = ["conf.d/*.toml"]

[logging]
level = "info"
`
	confDir := filepath.Join(dir, "conf.d")
	if err := os.MkdirAll(confDir, 0755); err != nil {
		t.Fatal(err)
	}

	hookCfg := `[webhooks.alerts]
url = "https://example.com/hook"
events = ["SIGNAL_QUEUE_OVERFLOW"]
`
	if err := os.WriteFile(filepath.Join(confDir, "alerts.toml"), []byte(hookCfg), 0644); err != nil {
		t.Fatal(err)
	}

	mainPath := filepath.Join(dir, "osiris.toml")
	if err := os.WriteFile(mainPath, []byte(mainCfg), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := LoadWithIncludes(mainPath)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := cfg.Webhooks["alerts"]; !ok {
		t.Fatal("expected webhook 'alerts' after include")
	}
}

func TestLoadWithIncludesDuplicateWebhook(t *testing.T) {
	dir := t.TempDir()

	mainCfg := `
include = ["extra.toml"]

[webhooks.alerts]
url = "https://example.com/a"
events = ["PROCESS_FORCE_KILLED"]
`
	extraCfg := `[webhooks.alerts]
url = "https://example.com/b"
events = ["PROCESS_FORCE_KILLED"]
`
	if err := os.WriteFile(filepath.Join(dir, "extra.toml"), []byte(extraCfg), 0644); err != nil {
		t.Fatal(err)
	}
	mainPath := filepath.Join(dir, "osiris.toml")
	if err := os.WriteFile(mainPath, []byte(mainCfg), 0644); err != nil {
		t.Fatal(err)
	}

	_, _, err := LoadWithIncludes(mainPath)
	if err == nil {
		t.Fatal("expected error for duplicate webhook name")
	}
	if !strings.Contains(err.Error(), "duplicate webhook name") {
		t.Fatalf("error = %q", err)
	}
}

func TestLoadWithIncludesNonexistentFile(t *testing.T) {
	_, _, err := LoadWithIncludes("/nonexistent/osiris.toml")
	if err == nil {
		t.Fatal("expected error for nonexistent config")
	}
}

func TestLoadWithIncludesInvalidTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(path, []byte("[[invalid"), 0644); err != nil {
		t.Fatal(err)
	}

	_, _, err := LoadWithIncludes(path)
	if err == nil {
		t.Fatal("expected error for invalid TOML")
	}
}

func TestIncludePatternNoMatchWarns(t *testing.T) {
	dir := t.TempDir()
	mainCfg := `include = ["missing/*.toml"]`
	mainPath := filepath.Join(dir, "osiris.toml")
	if err := os.WriteFile(mainPath, []byte(mainCfg), 0644); err != nil {
		t.Fatal(err)
	}

	_, warnings, err := LoadWithIncludes(mainPath)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "matched no files") {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings = %v, want 'matched no files'", warnings)
	}
}

func TestMergeWebhooksNilInit(t *testing.T) {
	dst := &Config{}
	src := &Config{
		Webhooks: map[string]WebhookConfig{
			"notify": {URL: "https://example.com/hook"},
		},
	}

	if err := mergeWebhooks(dst, src, "extra.toml"); err != nil {
		t.Fatal(err)
	}

	if dst.Webhooks == nil {
		t.Fatal("expected webhooks map to be initialized")
	}
	if _, ok := dst.Webhooks["notify"]; !ok {
		t.Fatal("expected webhook 'notify'")
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "invalid.toml")
	if err := os.WriteFile(path, []byte("not valid toml [[["), 0644); err != nil {
		t.Fatal(err)
	}

	_, _, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid TOML")
	}
	if !strings.Contains(err.Error(), "parse error") {
		t.Fatalf("error = %q, want parse error", err)
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	_, _, err := Load("/nonexistent/file.toml")
	if err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestExpandVariablesServerField(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Unix: UnixServerConfig{
				File: "%(here)s/osiris.sock",
			},
		},
	}

	err := ExpandVariables(cfg, "/etc/osiris/osiris.toml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Unix.File != "/etc/osiris/osiris.sock" {
		t.Fatalf("server.unix.file = %q, want /etc/osiris/osiris.sock", cfg.Server.Unix.File)
	}
}

func TestExpandVariablesWebhookHeader(t *testing.T) {
	t.Setenv("OSIRIS_HOOK_TOKEN", "secret123")

	cfg := &Config{
		Webhooks: map[string]WebhookConfig{
			"alerts": {
				URL:     "https://example.com/hook",
				Headers: map[string]string{"Authorization": "Bearer ${OSIRIS_HOOK_TOKEN}"},
			},
		},
	}

	err := ExpandVariables(cfg, "/etc/osiris.toml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Webhooks["alerts"].Headers["Authorization"] != "Bearer secret123" {
		t.Fatalf("header = %q, want 'Bearer secret123'", cfg.Webhooks["alerts"].Headers["Authorization"])
	}
}
