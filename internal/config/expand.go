package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandContext holds the values substitutable into config strings.
type ExpandContext struct {
	Here string // directory containing the config file
}

// ExpandVariables rewrites every expandable string field of cfg in
// place. configPath anchors %(here)s to the directory the config was
// read from.
func ExpandVariables(cfg *Config, configPath string) error {
	ctx := ExpandContext{Here: filepath.Dir(configPath)}

	fields := []struct {
		name string
		val  *string
	}{
		{"logging.file", &cfg.Logging.File},
		{"server.unix.file", &cfg.Server.Unix.File},
	}
	for _, f := range fields {
		out, err := expand(*f.val, ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.val = out
	}

	// Webhook URLs and header values commonly carry secrets as ${ENV_VAR}.
	for name, wh := range cfg.Webhooks {
		out, err := expand(wh.URL, ctx)
		if err != nil {
			return fmt.Errorf("webhooks.%s.url: %w", name, err)
		}
		wh.URL = out
		for k, v := range wh.Headers {
			out, err := expand(v, ctx)
			if err != nil {
				return fmt.Errorf("webhooks.%s.headers.%s: %w", name, k, err)
			}
			wh.Headers[k] = out
		}
		cfg.Webhooks[name] = wh
	}
	return nil
}

// ExpandString expands a single value outside of config loading.
func ExpandString(s string, ctx ExpandContext) (string, error) {
	return expand(s, ctx)
}

// expand walks s once, substituting %(name)s template variables and
// ${NAME} environment references as it goes. %% and $$ unescape to a
// single % and $. Substituted values are inserted verbatim and never
// rescanned, so an env value containing %(here)s stays literal.
func expand(s string, ctx ExpandContext) (string, error) {
	if !strings.ContainsAny(s, "%$") {
		return s, nil
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		c := s[i]
		if (c != '%' && c != '$') || i+1 == len(s) {
			b.WriteByte(c)
			i++
			continue
		}
		switch next := s[i+1]; {
		case next == c: // %% or $$
			b.WriteByte(c)
			i += 2
		case c == '%' && next == '(':
			name, rest, err := scanRef(s, i+2, ")s", "template variable")
			if err != nil {
				return "", err
			}
			val, err := ctx.lookup(name)
			if err != nil {
				return "", err
			}
			b.WriteString(val)
			i = rest
		case c == '$' && next == '{':
			name, rest, err := scanRef(s, i+2, "}", "environment reference")
			if err != nil {
				return "", err
			}
			val, ok := os.LookupEnv(name)
			if !ok {
				return "", fmt.Errorf("undefined environment variable: ${%s}", name)
			}
			b.WriteString(val)
			i = rest
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

func (ctx ExpandContext) lookup(name string) (string, error) {
	if name == "here" {
		return ctx.Here, nil
	}
	return "", fmt.Errorf("unknown template variable: %%(%s)s", name)
}

// scanRef returns the text between start and the next occurrence of
// term, plus the index just past term.
func scanRef(s string, start int, term, what string) (string, int, error) {
	end := strings.Index(s[start:], term)
	if end < 0 {
		return "", 0, fmt.Errorf("unclosed %s in %q", what, s)
	}
	return s[start : start+end], start + end + len(term), nil
}
