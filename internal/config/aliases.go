package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// AliasConfig maps short names typed on the command line to package names,
// e.g. "maps=com.google.android.apps.maps".
type AliasConfig struct {
	Aliases map[string]string
}

// LoadAliases reads {dir}/aliases. A missing file yields an empty config.
// Lines are "alias=package"; blank lines, comments and malformed lines are
// skipped.
func LoadAliases(dir string) (*AliasConfig, error) {
	cfg := &AliasConfig{Aliases: make(map[string]string)}

	f, err := os.Open(filepath.Join(dir, "aliases"))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		alias, pkg, ok := strings.Cut(line, "=")
		alias, pkg = strings.TrimSpace(alias), strings.TrimSpace(pkg)
		if !ok || alias == "" || pkg == "" {
			continue
		}
		cfg.Aliases[alias] = pkg
	}

	return cfg, scanner.Err()
}

// Resolve returns the package an alias stands for, or name unchanged.
func (c *AliasConfig) Resolve(name string) string {
	if c == nil {
		return name
	}
	if pkg, ok := c.Aliases[name]; ok {
		return pkg
	}
	return name
}

// ResolveAll resolves every name in order.
func (c *AliasConfig) ResolveAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = c.Resolve(n)
	}
	return out
}
