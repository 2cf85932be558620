// Package merge drives the finish flow: rebase a worktree's branch onto
// the trunk, optionally hand conflicts to the coding assistant once, then
// fast-forward the trunk from its own checkout.
package merge

import (
	"context"
	"fmt"
	"strings"

	"github.com/bough-dev/bough/internal/assistant"
	"github.com/bough-dev/bough/internal/git"
	"github.com/bough-dev/bough/internal/log"
)

// ConflictError reports a rebase that stopped on conflicts. The worktree
// is left with the rebase in progress so the user can finish by hand.
type ConflictError struct {
	Worktree            string
	Files               []string
	ResolutionAttempted bool
}

func (e *ConflictError) Error() string {
	var b strings.Builder
	if e.ResolutionAttempted {
		b.WriteString("rebase conflicts remain after assistant attempt")
	} else {
		b.WriteString("rebase stopped on conflicts")
	}
	if len(e.Files) > 0 {
		fmt.Fprintf(&b, " in %d file(s):\n", len(e.Files))
		for _, f := range e.Files {
			fmt.Fprintf(&b, "  %s\n", f)
		}
	} else {
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "resolve by hand, then:\n")
	fmt.Fprintf(&b, "  git -C %s rebase --continue\n", e.Worktree)
	fmt.Fprintf(&b, "or give up with:\n")
	fmt.Fprintf(&b, "  git -C %s rebase --abort", e.Worktree)
	return b.String()
}

// Session records what the orchestrator found and did for one finish run.
type Session struct {
	Trunk               string
	Branch              string
	PendingCommits      int
	UpToDate            bool
	Rebased             bool
	ResolutionAttempted bool
	Merged              bool
}

// Options configures an Orchestrator.
type Options struct {
	Trunk     string
	DryRun    bool
	Assistant assistant.Launcher
	Headless  bool
}

// Orchestrator merges one worktree's branch into the trunk.
type Orchestrator struct {
	git      *git.Service
	repoPath string
	opts     Options
}

func New(g *git.Service, repoPath string, opts Options) *Orchestrator {
	if opts.Assistant == nil {
		opts.Assistant = assistant.Disabled{}
	}
	return &Orchestrator{git: g, repoPath: repoPath, opts: opts}
}

// Finish runs the merge pipeline for the worktree. The returned session is
// populated even on failure so callers can report how far the run got.
func (o *Orchestrator) Finish(ctx context.Context, wt *git.Worktree) (*Session, error) {
	logger := log.FromContext(ctx)
	trunk := o.opts.Trunk
	sess := &Session{Trunk: trunk, Branch: wt.Branch}

	if wt.Branch == "" {
		return sess, fmt.Errorf("worktree %s has a detached HEAD, nothing to merge", wt.Path)
	}
	if wt.Branch == trunk {
		return sess, fmt.Errorf("worktree %s is the trunk checkout itself", wt.Path)
	}
	if !o.git.BranchExists(ctx, o.repoPath, trunk) {
		return sess, fmt.Errorf("trunk branch %q does not exist in this repository", trunk)
	}

	dirty, err := o.git.IsDirty(ctx, wt.Path)
	if err != nil {
		return sess, fmt.Errorf("failed to check working tree state: %w", err)
	}
	if dirty {
		return sess, fmt.Errorf("worktree has uncommitted changes, commit or stash them first:\n  git -C %s status", wt.Path)
	}

	pending, err := o.git.CommitsAhead(ctx, o.repoPath, trunk, wt.Branch)
	if err != nil {
		return sess, fmt.Errorf("failed to count pending commits: %w", err)
	}
	sess.PendingCommits = pending

	trunkHead, err := o.git.RevParse(ctx, o.repoPath, trunk)
	if err != nil {
		return sess, fmt.Errorf("failed to resolve trunk head: %w", err)
	}
	base, err := o.git.MergeBase(ctx, o.repoPath, trunk, wt.Branch)
	if err != nil {
		return sess, fmt.Errorf("failed to compute merge base: %w", err)
	}

	if pending == 0 && base == trunkHead {
		logger.Debug("branch already up to date", "branch", wt.Branch)
		sess.UpToDate = true
		return sess, nil
	}

	if base != trunkHead {
		if err := o.rebase(ctx, sess, wt); err != nil {
			return sess, err
		}
	} else {
		logger.Debug("branch already based on trunk head, skipping rebase", "branch", wt.Branch)
	}

	if err := o.validateFastForward(ctx, wt); err != nil {
		return sess, err
	}

	if err := o.fastForward(ctx, sess, wt); err != nil {
		return sess, err
	}
	return sess, nil
}

func (o *Orchestrator) rebase(ctx context.Context, sess *Session, wt *git.Worktree) error {
	logger := log.FromContext(ctx)
	trunk := o.opts.Trunk

	if o.opts.DryRun {
		logger.Printf("[dry-run] would rebase %s onto %s", wt.Branch, trunk)
		sess.Rebased = true
		return nil
	}

	logger.Debug("rebasing", "branch", wt.Branch, "onto", trunk)
	if err := o.git.Rebase(ctx, wt.Path, trunk); err == nil {
		sess.Rebased = true
		return nil
	}

	conflicted, cerr := o.git.ConflictedFiles(ctx, wt.Path)
	if cerr != nil || len(conflicted) == 0 {
		// The rebase failed for some other reason. Leave nothing half done.
		if aerr := o.git.RebaseAbort(ctx, wt.Path); aerr != nil {
			logger.Warn("rebase abort failed", "error", aerr)
		}
		return fmt.Errorf("rebase of %s onto %s failed", wt.Branch, trunk)
	}

	if err := o.resolveConflicts(ctx, sess, wt, conflicted); err != nil {
		return err
	}
	sess.Rebased = true
	return nil
}

// resolveConflicts makes at most one assistant attempt. Afterwards the
// worktree is re-checked; lingering markers or an in-progress rebase mean
// the attempt failed and the user takes over.
func (o *Orchestrator) resolveConflicts(ctx context.Context, sess *Session, wt *git.Worktree, conflicted []string) error {
	logger := log.FromContext(ctx)

	prompt := conflictPrompt(o.opts.Trunk, wt.Branch, conflicted)
	logger.Printf("rebase stopped on %d conflicted file(s), launching assistant", len(conflicted))

	err := o.opts.Assistant.Launch(ctx, prompt, assistant.Options{
		Dir:      wt.Path,
		Headless: o.opts.Headless,
	})
	if err != nil {
		logger.Warn("assistant launch failed", "error", err)
		return &ConflictError{Worktree: wt.Path, Files: conflicted}
	}
	sess.ResolutionAttempted = true

	remaining, cerr := o.git.ConflictedFiles(ctx, wt.Path)
	if cerr != nil {
		remaining = conflicted
	}
	// Scan the original conflicted set as well as the still-unmerged one:
	// a file staged with markers left inside drops off the unmerged list
	// but must still fail the check.
	seen := make(map[string]bool)
	var scan []string
	for _, f := range append(append([]string(nil), conflicted...), remaining...) {
		if f != "" && !seen[f] {
			seen[f] = true
			scan = append(scan, f)
		}
	}
	marked := git.FilesWithConflictMarkers(wt.Path, scan)
	if len(marked) > 0 || o.git.RebaseInProgress(ctx, wt.Path) {
		return &ConflictError{Worktree: wt.Path, Files: marked, ResolutionAttempted: true}
	}
	return nil
}

// validateFastForward confirms the branch now strictly contains the trunk
// head, which is what makes the upcoming merge a pure fast-forward.
func (o *Orchestrator) validateFastForward(ctx context.Context, wt *git.Worktree) error {
	if o.opts.DryRun {
		return nil
	}
	trunkHead, err := o.git.RevParse(ctx, o.repoPath, o.opts.Trunk)
	if err != nil {
		return fmt.Errorf("failed to resolve trunk head: %w", err)
	}
	base, err := o.git.MergeBase(ctx, o.repoPath, o.opts.Trunk, wt.Branch)
	if err != nil {
		return fmt.Errorf("failed to compute merge base: %w", err)
	}
	if base != trunkHead {
		return fmt.Errorf("branch %s does not contain the trunk head, cannot fast-forward; rerun after:\n  git -C %s rebase %s", wt.Branch, wt.Path, o.opts.Trunk)
	}
	return nil
}

// fastForward merges the branch into the trunk from the trunk's own
// checkout. The trunk worktree is looked up fresh; merging from anywhere
// else would move the wrong HEAD.
func (o *Orchestrator) fastForward(ctx context.Context, sess *Session, wt *git.Worktree) error {
	logger := log.FromContext(ctx)
	trunk := o.opts.Trunk

	worktrees, err := o.git.ListWorktrees(ctx, o.repoPath)
	if err != nil {
		return fmt.Errorf("failed to list worktrees: %w", err)
	}
	var trunkPath string
	for _, w := range worktrees {
		if w.Branch == trunk {
			trunkPath = w.Path
			break
		}
	}
	if trunkPath == "" {
		return fmt.Errorf("no worktree has %s checked out; check it out somewhere and rerun", trunk)
	}

	if o.opts.DryRun {
		logger.Printf("[dry-run] would fast-forward %s to %s in %s", trunk, wt.Branch, trunkPath)
		sess.Merged = true
		return nil
	}

	dirty, err := o.git.IsDirty(ctx, trunkPath)
	if err != nil {
		return fmt.Errorf("failed to check trunk checkout state: %w", err)
	}
	if dirty {
		return fmt.Errorf("trunk checkout %s has uncommitted changes, commit or stash them first", trunkPath)
	}

	logger.Debug("fast-forwarding trunk", "trunk", trunk, "to", wt.Branch, "in", trunkPath)
	if err := o.git.MergeFFOnly(ctx, trunkPath, wt.Branch); err != nil {
		return fmt.Errorf("fast-forward merge of %s into %s failed: %w", wt.Branch, trunk, err)
	}
	sess.Merged = true
	return nil
}

func conflictPrompt(trunk, branch string, files []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A rebase of branch %s onto %s stopped on conflicts.\n", branch, trunk)
	b.WriteString("Resolve every conflict, stage the files, and run `git rebase --continue` until the rebase completes.\n")
	b.WriteString("Conflicted files:\n")
	for _, f := range files {
		fmt.Fprintf(&b, "  %s\n", f)
	}
	return b.String()
}
