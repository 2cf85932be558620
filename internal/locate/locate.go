// Package locate resolves identifiers to worktree registry records.
package locate

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/bough-dev/bough/internal/git"
	"github.com/bough-dev/bough/internal/ident"
	"github.com/bough-dev/bough/internal/log"
)

// NotFoundError reports that no worktree matched an identifier.
type NotFoundError struct {
	Ident       ident.Identifier
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("no worktree found for %s", e.Ident)
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean: %s?)", strings.Join(e.Suggestions, ", "))
	}
	return msg
}

// Locator resolves identifiers against the live worktree registry.
// Every call re-reads the registry; records are never cached.
type Locator struct {
	git      *git.Service
	repoPath string
}

// New creates a Locator for the repository at repoPath.
func New(g *git.Service, repoPath string) *Locator {
	return &Locator{git: g, repoPath: repoPath}
}

// Resolve dispatches to the type-specific resolver for id.
func (l *Locator) Resolve(ctx context.Context, id ident.Identifier) (*git.Worktree, error) {
	switch id.Kind {
	case ident.KindIssue:
		return l.ResolveByIssue(ctx, id.Number)
	case ident.KindPR:
		return l.ResolveByPR(ctx, id.Number, "")
	default:
		return l.ResolveByBranch(ctx, id.Branch)
	}
}

// ResolveByIssue finds the worktree whose branch or directory carries an
// exact issue-<n> token. Substring search is deliberately avoided so issue 1
// never matches issue 12.
func (l *Locator) ResolveByIssue(ctx context.Context, n int) (*git.Worktree, error) {
	return l.resolve(ctx, ident.Issue(n), func(w git.Worktree) bool {
		return ident.IssueNumberFromRef(w.Branch) == n ||
			ident.IssueNumberFromRef(filepath.Base(w.Path)) == n
	})
}

// ResolveByPR finds the worktree whose branch carries the _pr_<n> suffix
// assigned at creation time, or whose branch equals branchHint when given.
func (l *Locator) ResolveByPR(ctx context.Context, n int, branchHint string) (*git.Worktree, error) {
	return l.resolve(ctx, ident.PR(n), func(w git.Worktree) bool {
		if ident.PRNumberFromBranch(w.Branch) == n {
			return true
		}
		if m := prDirSuffix(filepath.Base(w.Path)); m == n {
			return true
		}
		return branchHint != "" && w.Branch == branchHint
	})
}

// ResolveByBranch finds the worktree checked out on exactly this branch.
func (l *Locator) ResolveByBranch(ctx context.Context, name string) (*git.Worktree, error) {
	return l.resolve(ctx, ident.Branch(name), func(w git.Worktree) bool {
		return w.Branch == name
	})
}

// ListAll returns all current registry records.
func (l *Locator) ListAll(ctx context.Context) ([]git.Worktree, error) {
	return l.git.ListWorktrees(ctx, l.repoPath)
}

func (l *Locator) resolve(ctx context.Context, id ident.Identifier, match func(git.Worktree) bool) (*git.Worktree, error) {
	worktrees, err := l.git.ListWorktrees(ctx, l.repoPath)
	if err != nil {
		return nil, err
	}

	var matches []git.Worktree
	for _, w := range worktrees {
		if w.Bare {
			continue
		}
		if match(w) {
			matches = append(matches, w)
		}
	}

	switch len(matches) {
	case 0:
		return nil, &NotFoundError{Ident: id, Suggestions: l.suggestions(id, worktrees)}
	case 1:
		return &matches[0], nil
	default:
		// Accepted imprecision: deterministic first match, with a warning.
		var ignored []string
		for _, m := range matches[1:] {
			ignored = append(ignored, m.Path)
		}
		log.FromContext(ctx).Warn("multiple worktrees match, using first",
			"identifier", id, "using", matches[0].Path, "ignored", strings.Join(ignored, ","))
		return &matches[0], nil
	}
}

// suggestions fuzzy-matches the failed identifier against known branch
// names for the "did you mean" hint in NotFoundError.
func (l *Locator) suggestions(id ident.Identifier, worktrees []git.Worktree) []string {
	if id.Kind != ident.KindBranch {
		return nil
	}
	var branches []string
	for _, w := range worktrees {
		if w.Branch != "" {
			branches = append(branches, w.Branch)
		}
	}
	matches := fuzzy.Find(id.Branch, branches)
	var out []string
	for i, m := range matches {
		if i >= 3 {
			break
		}
		out = append(out, m.Str)
	}
	return out
}

func prDirSuffix(dir string) int {
	return ident.PRNumberFromBranch(dir)
}
