package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.TrunkBranch != "main" {
		t.Errorf("TrunkBranch = %q, want main", cfg.TrunkBranch)
	}
	if cfg.BasePort != DefaultBasePort {
		t.Errorf("BasePort = %d, want %d", cfg.BasePort, DefaultBasePort)
	}
	if cfg.Assistant.Command != "claude" || !cfg.Assistant.Enabled {
		t.Errorf("Assistant defaults = %+v", cfg.Assistant)
	}
}

func TestLoadFromParsesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
worktree_dir = "/tmp/trees"
trunk_branch = "develop"
protected_branches = ["release"]
base_port = 4000

[assistant]
command = "claude"
enabled = false

[database]
provider = "neon"
project = "proj-123"
parent_branch = "develop"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.TrunkBranch != "develop" || cfg.BasePort != 4000 {
		t.Errorf("parsed config = %+v", cfg)
	}
	if cfg.Assistant.Enabled {
		t.Error("assistant should be disabled")
	}
	if cfg.Database.Project != "proj-123" {
		t.Errorf("Database.Project = %q", cfg.Database.Project)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty trunk", func(c *Config) { c.TrunkBranch = "" }},
		{"low port", func(c *Config) { c.BasePort = 80 }},
		{"relative worktree dir", func(c *Config) { c.WorktreeDir = "trees" }},
		{"unknown db provider", func(c *Config) { c.Database = DatabaseConfig{Provider: "planetscale", Project: "x"} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestProtectedSetDeduplicates(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.TrunkBranch = "develop"
	cfg.ProtectedBranches = []string{"release", "main"}

	got := cfg.Protected()
	want := []string{"develop", "release", "main", "master"}
	for _, b := range want {
		if !slices.Contains(got, b) {
			t.Errorf("Protected() missing %q: %v", b, got)
		}
	}
	// develop is trunk and a legacy default: must appear once.
	count := 0
	for _, b := range got {
		if b == "develop" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("develop appears %d times in %v", count, got)
	}
}
