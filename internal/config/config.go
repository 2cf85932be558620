// Package config loads bough configuration from ~/.config/bough/config.toml.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// AssistantConfig configures the AI coding assistant used for
// automated conflict resolution.
type AssistantConfig struct {
	Command string `toml:"command"` // binary to launch, default "claude"
	Enabled bool   `toml:"enabled"`
	// Headless runs the assistant non-interactively with the prompt on the
	// command line instead of attaching it to the terminal.
	Headless bool `toml:"headless"`
}

// DatabaseConfig configures the optional database-branching provider.
// If Project is empty, database cleanup is skipped.
type DatabaseConfig struct {
	Provider     string `toml:"provider"` // only "neon" is supported
	Project      string `toml:"project"`
	ParentBranch string `toml:"parent_branch"`
}

// Config holds the bough configuration.
type Config struct {
	// WorktreeDir is where per-issue/PR worktrees live.
	WorktreeDir string `toml:"worktree_dir"`

	// TrunkBranch is the long-lived integration branch. Default "main".
	TrunkBranch string `toml:"trunk_branch"`

	// ProtectedBranches are extra branch names that must never be deleted,
	// on top of the trunk and the legacy defaults (main, master, develop).
	ProtectedBranches []string `toml:"protected_branches"`

	// BasePort is the base for deterministic per-identifier dev server ports.
	BasePort int `toml:"base_port"`

	// DevServerPatterns are command-line substrings that classify a process
	// bound to a worktree's port as a dev server.
	DevServerPatterns []string `toml:"dev_server_patterns"`

	Assistant AssistantConfig `toml:"assistant"`
	Database  DatabaseConfig  `toml:"database"`
}

// DefaultBasePort is the base dev server port when none is configured.
const DefaultBasePort = 3000

// Default returns the default configuration.
func Default() Config {
	return Config{
		TrunkBranch: "main",
		BasePort:    DefaultBasePort,
		DevServerPatterns: []string{
			"next dev",
			"vite",
			"webpack",
			"npm run dev",
			"pnpm dev",
			"yarn dev",
			"nodemon",
		},
		Assistant: AssistantConfig{
			Command: "claude",
			Enabled: true,
		},
	}
}

// configPath returns the path to the config file.
func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "bough", "config.toml"), nil
}

// Load reads the config file, falling back to defaults if it doesn't exist.
func Load() (Config, error) {
	path, err := configPath()
	if err != nil {
		return Default(), err
	}
	return LoadFrom(path)
}

// LoadFrom reads configuration from an explicit path.
// A missing file is not an error: defaults are returned.
func LoadFrom(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Default(), fmt.Errorf("invalid config %s: %w", path, err)
	}

	cfg.WorktreeDir, err = ExpandPath(cfg.WorktreeDir)
	if err != nil {
		return Default(), err
	}

	return cfg, nil
}

// Validate checks config invariants.
func (c *Config) Validate() error {
	if c.TrunkBranch == "" {
		return fmt.Errorf("trunk_branch must not be empty")
	}
	if c.BasePort < 1024 || c.BasePort > 60000 {
		return fmt.Errorf("base_port must be between 1024 and 60000, got %d", c.BasePort)
	}
	if c.WorktreeDir != "" && c.WorktreeDir[0] != '~' && !filepath.IsAbs(c.WorktreeDir) {
		return fmt.Errorf("worktree_dir must be absolute or start with ~, got %q", c.WorktreeDir)
	}
	if c.Database.Project != "" && c.Database.Provider != "neon" {
		return fmt.Errorf("database.provider must be %q, got %q", "neon", c.Database.Provider)
	}
	return nil
}

// Protected returns the full protected branch set: the trunk, the configured
// extras, and the legacy defaults, de-duplicated.
func (c *Config) Protected() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	add(c.TrunkBranch)
	for _, b := range c.ProtectedBranches {
		add(b)
	}
	for _, b := range []string{"main", "master", "develop"} {
		add(b)
	}
	return out
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" {
		return os.UserHomeDir()
	}
	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand ~: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
