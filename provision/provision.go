// Package provision materializes isolated bot working trees from the
// shared template and writes each instance's environment descriptor.
package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Subtrees never copied into an instance: session state, temp files and
// caches belong to exactly one bot, and a template must not leak them.
var excludedDirs = map[string]struct{}{
	"session":      {},
	"sessions":     {},
	"tmp":          {},
	"temp":         {},
	".cache":       {},
	".npm":         {},
	"node_modules": {},
}

// File suffixes never copied: embedded databases from whatever bot the
// template was snapshotted from.
var excludedSuffixes = []string{".db", ".sqlite", ".sqlite3", ".session"}

type Provisioner struct {
	TemplateDir  string
	InstancesDir string
	// SharedModulesDir, when set, is linked read-only into each instance
	// as node_modules instead of copying the dependency tree per bot.
	SharedModulesDir string
}

func (p *Provisioner) InstanceDir(handle string) string {
	return filepath.Join(p.InstancesDir, handle)
}

// Materialize copies the template into a fresh instance dir, skipping the
// excluded subtrees, and links the shared dependency cache if configured.
// On error the caller removes the partial tree via Remove.
func (p *Provisioner) Materialize(ctx context.Context, handle string) (string, error) {
	dst := p.InstanceDir(handle)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	err := filepath.WalkDir(p.TemplateDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(p.TemplateDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if _, skip := excludedDirs[d.Name()]; skip {
				return filepath.SkipDir
			}
			return os.MkdirAll(filepath.Join(dst, rel), 0o755)
		}

		if excludedFile(d.Name()) {
			return nil
		}
		return copyFile(path, filepath.Join(dst, rel))
	})
	if err != nil {
		return dst, fmt.Errorf("copy template: %w", err)
	}

	if p.SharedModulesDir != "" {
		if _, err := os.Stat(p.SharedModulesDir); err == nil {
			if err := os.Symlink(p.SharedModulesDir, filepath.Join(dst, "node_modules")); err != nil {
				return dst, fmt.Errorf("link shared modules: %w", err)
			}
		}
	}

	return dst, nil
}

// WriteEnv writes the instance's environment descriptor twice: a plain
// .env file and the pm2 ecosystem config, both carrying the real session
// secret. Neither file leaves the instance dir.
func (p *Provisioner) WriteEnv(handle string, env map[string]string) error {
	dir := p.InstanceDir(handle)

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, env[k])
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(b.String()), 0o600); err != nil {
		return err
	}

	envJSON, err := json.MarshalIndent(env, "      ", "  ")
	if err != nil {
		return err
	}
	ecosystem := fmt.Sprintf(`module.exports = {
  apps: [
    {
      name: %q,
      script: "index.js",
      cwd: %q,
      autorestart: true,
      env: %s,
    },
  ],
};
`, handle, dir, envJSON)
	return os.WriteFile(filepath.Join(dir, "ecosystem.config.js"), []byte(ecosystem), 0o600)
}

// Remove deletes an instance dir, best effort.
func (p *Provisioner) Remove(handle string) error {
	return os.RemoveAll(p.InstanceDir(handle))
}

func excludedFile(name string) bool {
	for _, suffix := range excludedSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
