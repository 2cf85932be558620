package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/bough-dev/bough/internal/assistant"
	"github.com/bough-dev/bough/internal/cleanup"
	"github.com/bough-dev/bough/internal/config"
	"github.com/bough-dev/bough/internal/database"
	"github.com/bough-dev/bough/internal/forge"
	"github.com/bough-dev/bough/internal/git"
	"github.com/bough-dev/bough/internal/ident"
	"github.com/bough-dev/bough/internal/locate"
	"github.com/bough-dev/bough/internal/log"
	"github.com/bough-dev/bough/internal/ports"
)

// app wires the services every command needs. Built per command run so
// tests can construct commands against fakes.
type app struct {
	cfg      *config.Config
	repoPath string
	git      *git.Service
	locator  *locate.Locator
	ports    *ports.Supervisor
	forge    *forge.GitHub
	db       database.Provider
}

func newApp() *app {
	g := git.NewService(nil)
	return &app{
		cfg:      cfg,
		repoPath: workDir,
		git:      g,
		locator:  locate.New(g, workDir),
		ports:    ports.NewSupervisor(nil, cfg.DevServerPatterns),
		forge:    forge.NewGitHub(nil),
		db:       database.NewNeon(nil, cfg.Database),
	}
}

// resolveIdentifier parses the positional argument, or auto-detects the
// target from the current worktree when none is given.
func (a *app) resolveIdentifier(ctx context.Context, args []string) (ident.Identifier, error) {
	if len(args) > 0 {
		return ident.Parse(ctx, args[0], a.forge)
	}

	branch, err := a.git.CurrentBranch(ctx, a.repoPath)
	if err != nil {
		return ident.Identifier{}, err
	}
	id, err := ident.AutoDetect(filepath.Base(a.repoPath), branch)
	if err != nil {
		return ident.Identifier{}, fmt.Errorf("%w\npass an issue number, PR, or branch name explicitly", err)
	}
	log.FromContext(ctx).Debug("auto-detected target", "target", id.String())
	return id, nil
}

// resolveWorktree locates the worktree for an identifier. For PRs the forge
// is asked for the head branch first, which catches worktrees whose
// directory name doesn't carry the PR number.
func (a *app) resolveWorktree(ctx context.Context, id ident.Identifier) (*git.Worktree, error) {
	if id.Kind == ident.KindPR {
		if pr, err := a.forge.FetchPR(ctx, id.Number); err == nil && pr.Branch != "" {
			return a.locator.ResolveByPR(ctx, id.Number, pr.Branch)
		}
	}
	return a.locator.Resolve(ctx, id)
}

func (a *app) cleaner() *cleanup.Cleaner {
	protected := make(map[string]bool)
	for _, b := range a.cfg.Protected() {
		protected[b] = true
	}
	return cleanup.New(a.git, a.repoPath, a.ports, a.db, protected, a.cfg.BasePort)
}

func (a *app) launcher() assistant.Launcher {
	if !a.cfg.Assistant.Enabled {
		return assistant.Disabled{}
	}
	return &assistant.CLI{Command: a.cfg.Assistant.Command}
}
