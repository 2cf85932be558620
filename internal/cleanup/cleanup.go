// Package cleanup tears down a finished worktree: its dev server, the
// worktree itself, the branch, and the database branch, in that order.
// Each step is attempted independently so one failure never blocks the rest.
package cleanup

import (
	"context"
	"fmt"

	"github.com/bough-dev/bough/internal/database"
	"github.com/bough-dev/bough/internal/git"
	"github.com/bough-dev/bough/internal/ident"
	"github.com/bough-dev/bough/internal/log"
	"github.com/bough-dev/bough/internal/ports"
)

// OperationType names a cleanup step.
type OperationType string

const (
	OpDevServer OperationType = "dev-server"
	OpWorktree  OperationType = "worktree"
	OpBranch    OperationType = "branch"
	OpDatabase  OperationType = "database"
)

// Operation is the outcome of one attempted cleanup step.
type Operation struct {
	Type    OperationType
	Success bool
	Message string
	Err     error
}

// Result reports one identifier's cleanup. Operations holds only the steps
// that were attempted; steps that did not apply are listed in Skipped.
type Result struct {
	Identifier ident.Identifier
	Operations []Operation
	Skipped    []OperationType
	Success    bool

	// RollbackRequired is advisory: a step succeeded before a later one
	// failed, so resources were partially torn down. Nothing is rolled
	// back automatically.
	RollbackRequired bool
}

// Errors returns the errors of all failed operations.
func (r *Result) Errors() []error {
	var errs []error
	for _, op := range r.Operations {
		if op.Err != nil {
			errs = append(errs, op.Err)
		}
	}
	return errs
}

// SafetyError blocks deletion of a protected branch. The guard holds even
// under --force.
type SafetyError struct {
	Branch string
}

func (e *SafetyError) Error() string {
	return fmt.Sprintf("Cannot delete protected branch %q", e.Branch)
}

// Options controls which steps run and how.
type Options struct {
	// DeleteBranch enables the branch deletion step.
	DeleteBranch bool
	// Force forwards to worktree removal and uses branch -D for unmerged
	// branches. It never overrides the protected branch guard.
	Force bool
	// KeepDatabase skips the database branch deletion step.
	KeepDatabase bool
	DryRun       bool
}

// Cleaner runs the teardown pipeline.
type Cleaner struct {
	git       *git.Service
	repoPath  string
	ports     *ports.Supervisor
	db        database.Provider
	protected map[string]bool
	basePort  int
}

func New(g *git.Service, repoPath string, sup *ports.Supervisor, db database.Provider, protected map[string]bool, basePort int) *Cleaner {
	return &Cleaner{
		git:       g,
		repoPath:  repoPath,
		ports:     sup,
		db:        db,
		protected: protected,
		basePort:  basePort,
	}
}

// CheckProtected rejects branches that must never be deleted.
func (c *Cleaner) CheckProtected(branch string) error {
	if c.protected[branch] {
		return &SafetyError{Branch: branch}
	}
	return nil
}

// ValidateSafety blocks cleanup of the primary worktree and warns about
// uncommitted changes. Called before any step runs.
func (c *Cleaner) ValidateSafety(ctx context.Context, wt *git.Worktree, listing []git.Worktree) error {
	if wt.IsPrimary(listing) {
		return fmt.Errorf("refusing to clean up the primary worktree at %s", wt.Path)
	}
	dirty, err := c.git.IsDirty(ctx, wt.Path)
	if err == nil && dirty {
		log.FromContext(ctx).Warn("worktree has uncommitted changes that will be lost", "path", wt.Path)
	}
	return nil
}

// Cleanup tears down one worktree. It always returns a Result; the error
// return is reserved for safety violations that stop the run before any
// step is attempted.
func (c *Cleaner) Cleanup(ctx context.Context, id ident.Identifier, wt *git.Worktree, opts Options) (*Result, error) {
	listing, err := c.git.ListWorktrees(ctx, c.repoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to list worktrees: %w", err)
	}
	if err := c.ValidateSafety(ctx, wt, listing); err != nil {
		return nil, err
	}

	res := &Result{Identifier: id}

	c.stopDevServer(ctx, res, id, opts)
	c.removeWorktree(ctx, res, wt, opts)
	c.deleteBranch(ctx, res, wt, opts)
	c.deleteDatabase(ctx, res, id, opts)

	res.Success = true
	var succeeded bool
	for _, op := range res.Operations {
		if op.Success {
			succeeded = true
		} else {
			res.Success = false
		}
	}
	res.RollbackRequired = succeeded && !res.Success
	return res, nil
}

// CleanupMany runs Cleanup for each resolved worktree, collecting results.
// A safety violation for one identifier does not stop the others.
func (c *Cleaner) CleanupMany(ctx context.Context, targets []Target, opts Options) []*Result {
	results := make([]*Result, 0, len(targets))
	for _, t := range targets {
		res, err := c.Cleanup(ctx, t.ID, t.Worktree, opts)
		if err != nil {
			res = &Result{
				Identifier: t.ID,
				Operations: []Operation{{Type: OpWorktree, Message: err.Error(), Err: err}},
			}
		}
		results = append(results, res)
	}
	return results
}

// Target pairs an identifier with its resolved worktree.
type Target struct {
	ID       ident.Identifier
	Worktree *git.Worktree
}

func (c *Cleaner) stopDevServer(ctx context.Context, res *Result, id ident.Identifier, opts Options) {
	port := ports.Calculate(c.basePort, id)
	proc, err := c.ports.DetectDevServer(ctx, port)
	if err != nil {
		res.Operations = append(res.Operations, Operation{
			Type: OpDevServer, Message: fmt.Sprintf("failed to inspect port %d", port), Err: err,
		})
		return
	}
	if proc == nil {
		res.Skipped = append(res.Skipped, OpDevServer)
		return
	}
	if opts.DryRun {
		res.Operations = append(res.Operations, Operation{
			Type: OpDevServer, Success: true,
			Message: fmt.Sprintf("would stop dev server (pid %d) on port %d", proc.PID, port),
		})
		return
	}
	if err := c.ports.StopDevServer(ctx, proc); err != nil {
		res.Operations = append(res.Operations, Operation{
			Type: OpDevServer, Message: fmt.Sprintf("failed to stop dev server on port %d", port), Err: err,
		})
		return
	}
	res.Operations = append(res.Operations, Operation{
		Type: OpDevServer, Success: true,
		Message: fmt.Sprintf("stopped dev server (pid %d) on port %d", proc.PID, port),
	})
}

func (c *Cleaner) removeWorktree(ctx context.Context, res *Result, wt *git.Worktree, opts Options) {
	if opts.DryRun {
		res.Operations = append(res.Operations, Operation{
			Type: OpWorktree, Success: true,
			Message: fmt.Sprintf("would remove worktree %s", wt.Path),
		})
		return
	}
	if err := c.git.RemoveWorktree(ctx, c.repoPath, wt.Path, opts.Force); err != nil {
		msg := fmt.Sprintf("failed to remove worktree %s", wt.Path)
		if !opts.Force {
			msg += " (retry with --force to discard local changes)"
		}
		res.Operations = append(res.Operations, Operation{Type: OpWorktree, Message: msg, Err: err})
		return
	}
	res.Operations = append(res.Operations, Operation{
		Type: OpWorktree, Success: true,
		Message: fmt.Sprintf("removed worktree %s", wt.Path),
	})
}

func (c *Cleaner) deleteBranch(ctx context.Context, res *Result, wt *git.Worktree, opts Options) {
	if !opts.DeleteBranch || wt.Branch == "" {
		res.Skipped = append(res.Skipped, OpBranch)
		return
	}
	if err := c.CheckProtected(wt.Branch); err != nil {
		res.Operations = append(res.Operations, Operation{Type: OpBranch, Message: err.Error(), Err: err})
		return
	}
	if opts.DryRun {
		res.Operations = append(res.Operations, Operation{
			Type: OpBranch, Success: true,
			Message: fmt.Sprintf("would delete branch %s", wt.Branch),
		})
		return
	}
	if err := c.git.DeleteBranch(ctx, c.repoPath, wt.Branch, opts.Force); err != nil {
		msg := fmt.Sprintf("failed to delete branch %s", wt.Branch)
		if git.IsUnmergedBranchError(err) {
			msg = fmt.Sprintf("branch %s is not fully merged (pass --force to delete anyway)", wt.Branch)
		}
		res.Operations = append(res.Operations, Operation{Type: OpBranch, Message: msg, Err: err})
		return
	}
	res.Operations = append(res.Operations, Operation{
		Type: OpBranch, Success: true,
		Message: fmt.Sprintf("deleted branch %s", wt.Branch),
	})
}

func (c *Cleaner) deleteDatabase(ctx context.Context, res *Result, id ident.Identifier, opts Options) {
	if c.db == nil || !c.db.Configured() || opts.KeepDatabase {
		res.Skipped = append(res.Skipped, OpDatabase)
		return
	}
	name := id.Slug()
	if opts.DryRun {
		res.Operations = append(res.Operations, Operation{
			Type: OpDatabase, Success: true,
			Message: fmt.Sprintf("would delete database branch %s", name),
		})
		return
	}
	if err := c.db.DeleteBranch(ctx, name); err != nil {
		res.Operations = append(res.Operations, Operation{
			Type: OpDatabase, Message: fmt.Sprintf("failed to delete database branch %s", name), Err: err,
		})
		return
	}
	res.Operations = append(res.Operations, Operation{
		Type: OpDatabase, Success: true,
		Message: fmt.Sprintf("deleted database branch %s", name),
	})
}
