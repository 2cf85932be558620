// Package database integrates with a database-branching provider. Each
// issue/PR worktree may have a matching database branch; when no provider
// is configured, every operation degrades to a skipped outcome.
package database

import (
	"context"
	"fmt"

	"github.com/bough-dev/bough/internal/cmd"
	"github.com/bough-dev/bough/internal/config"
)

// Provider manages per-worktree database branches.
type Provider interface {
	// Configured reports whether a provider is set up. When false,
	// callers report database operations as skipped, never as failed.
	Configured() bool

	// CreateBranch creates a database branch for the identifier slug.
	CreateBranch(ctx context.Context, name string) error

	// DeleteBranch removes the database branch for the identifier slug.
	DeleteBranch(ctx context.Context, name string) error
}

// Neon drives the neonctl CLI.
type Neon struct {
	runner       cmd.Runner
	project      string
	parentBranch string
}

// NewNeon creates a Neon provider from config. A nil runner uses the real
// executor. An empty project means unconfigured.
func NewNeon(r cmd.Runner, cfg config.DatabaseConfig) *Neon {
	if r == nil {
		r = cmd.ExecRunner{}
	}
	return &Neon{runner: r, project: cfg.Project, parentBranch: cfg.ParentBranch}
}

func (n *Neon) Configured() bool {
	return n.project != ""
}

func (n *Neon) CreateBranch(ctx context.Context, name string) error {
	if !n.Configured() {
		return fmt.Errorf("no database provider configured")
	}
	args := []string{"branches", "create", "--project-id", n.project, "--name", name}
	if n.parentBranch != "" {
		args = append(args, "--parent", n.parentBranch)
	}
	if err := n.runner.Run(ctx, "", "neonctl", args...); err != nil {
		return fmt.Errorf("failed to create database branch %q: %w", name, err)
	}
	return nil
}

func (n *Neon) DeleteBranch(ctx context.Context, name string) error {
	if !n.Configured() {
		return fmt.Errorf("no database provider configured")
	}
	if err := n.runner.Run(ctx, "", "neonctl", "branches", "delete", name, "--project-id", n.project); err != nil {
		return fmt.Errorf("failed to delete database branch %q: %w", name, err)
	}
	return nil
}

var _ Provider = (*Neon)(nil)
