package git

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// CurrentBranch returns the current branch name at path.
// Returns an empty string for detached HEAD or unborn state.
func (s *Service) CurrentBranch(ctx context.Context, path string) (string, error) {
	out, err := s.output(ctx, path, "branch", "--show-current")
	if err != nil {
		return "", fmt.Errorf("failed to get branch: %w", err)
	}
	return out, nil
}

// BranchExists reports whether a local branch ref exists.
func (s *Service) BranchExists(ctx context.Context, repoPath, branch string) bool {
	return s.run(ctx, repoPath, "rev-parse", "--verify", "--quiet", "refs/heads/"+branch) == nil
}

// RevParse resolves a ref to a commit hash.
func (s *Service) RevParse(ctx context.Context, repoPath, ref string) (string, error) {
	out, err := s.output(ctx, repoPath, "rev-parse", ref)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", ref, err)
	}
	return out, nil
}

// MergeBase returns the merge base commit of two refs.
func (s *Service) MergeBase(ctx context.Context, repoPath, a, b string) (string, error) {
	out, err := s.output(ctx, repoPath, "merge-base", a, b)
	if err != nil {
		return "", fmt.Errorf("failed to get merge-base of %s and %s: %w", a, b, err)
	}
	return out, nil
}

// CommitsAhead returns the number of commits on ref that are not on base.
func (s *Service) CommitsAhead(ctx context.Context, repoPath, base, ref string) (int, error) {
	out, err := s.output(ctx, repoPath, "rev-list", "--count", base+".."+ref)
	if err != nil {
		return 0, fmt.Errorf("failed to count commits: %w", err)
	}
	n, err := strconv.Atoi(out)
	if err != nil {
		return 0, fmt.Errorf("unexpected rev-list output %q: %w", out, err)
	}
	return n, nil
}

// IsDirty reports whether the worktree at path has uncommitted changes.
func (s *Service) IsDirty(ctx context.Context, path string) (bool, error) {
	out, err := s.output(ctx, path, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("failed to get status: %w", err)
	}
	return out != "", nil
}

// Rebase rebases the checkout at dir onto the given ref.
func (s *Service) Rebase(ctx context.Context, dir, onto string) error {
	return s.run(ctx, dir, "rebase", onto)
}

// RebaseAbort aborts an in-progress rebase. Best effort.
func (s *Service) RebaseAbort(ctx context.Context, dir string) error {
	return s.run(ctx, dir, "rebase", "--abort")
}

// MergeFFOnly fast-forwards the branch checked out at dir to ref.
// Fails rather than creating a merge commit when history has diverged.
func (s *Service) MergeFFOnly(ctx context.Context, dir, ref string) error {
	return s.run(ctx, dir, "merge", "--ff-only", ref)
}

// DeleteBranch deletes a local branch. force uses -D, otherwise -d which
// refuses to delete unmerged branches.
func (s *Service) DeleteBranch(ctx context.Context, repoPath, branch string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	return s.run(ctx, repoPath, "branch", flag, branch)
}

// IsUnmergedBranchError reports whether a branch deletion failed because the
// branch is not fully merged (git's -d refusal).
func IsUnmergedBranchError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not fully merged")
}
