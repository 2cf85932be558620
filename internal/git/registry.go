package git

import (
	"context"
	"fmt"
	"strings"
)

// Worktree is one record from the worktree registry listing.
// Records are parsed fresh from `git worktree list --porcelain` on every
// query and never mutated in place.
type Worktree struct {
	Path       string
	Branch     string // empty when detached or bare
	Head       string // commit hash, empty for a bare entry
	Bare       bool
	Detached   bool
	Locked     bool
	LockReason string
	Prunable   bool
}

// IsPrimary reports whether this record is the repository's primary
// worktree. The primary entry is always listed first, so callers compare
// against the head of the listing; this helper covers the bare case.
func (w Worktree) IsPrimary(listing []Worktree) bool {
	return len(listing) > 0 && listing[0].Path == w.Path
}

// ListWorktrees parses the worktree registry of the repository at repoPath.
func (s *Service) ListWorktrees(ctx context.Context, repoPath string) ([]Worktree, error) {
	out, err := s.output(ctx, repoPath, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("failed to list worktrees: %w", err)
	}
	return ParseWorktrees(out), nil
}

// ParseWorktrees parses `git worktree list --porcelain` output.
func ParseWorktrees(out string) []Worktree {
	var worktrees []Worktree
	var current Worktree

	flush := func() {
		if current.Path != "" {
			worktrees = append(worktrees, current)
		}
		current = Worktree{}
	}

	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			flush()
			current.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "HEAD "):
			current.Head = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch refs/heads/"):
			current.Branch = strings.TrimPrefix(line, "branch refs/heads/")
		case line == "bare":
			current.Bare = true
		case line == "detached":
			current.Detached = true
		case line == "locked":
			current.Locked = true
		case strings.HasPrefix(line, "locked "):
			current.Locked = true
			current.LockReason = strings.TrimPrefix(line, "locked ")
		case line == "prunable" || strings.HasPrefix(line, "prunable "):
			current.Prunable = true
		}
	}
	flush()

	return worktrees
}

// SerializeWorktrees renders records back into the porcelain listing format.
// ParseWorktrees(SerializeWorktrees(w)) == w for every field.
func SerializeWorktrees(worktrees []Worktree) string {
	var b strings.Builder
	for _, w := range worktrees {
		fmt.Fprintf(&b, "worktree %s\n", w.Path)
		if w.Bare {
			b.WriteString("bare\n")
		}
		if w.Head != "" {
			fmt.Fprintf(&b, "HEAD %s\n", w.Head)
		}
		if w.Branch != "" {
			fmt.Fprintf(&b, "branch refs/heads/%s\n", w.Branch)
		}
		if w.Detached {
			b.WriteString("detached\n")
		}
		if w.Locked {
			if w.LockReason != "" {
				fmt.Fprintf(&b, "locked %s\n", w.LockReason)
			} else {
				b.WriteString("locked\n")
			}
		}
		if w.Prunable {
			b.WriteString("prunable\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// RemoveWorktree removes a checkout from the registry and disk.
func (s *Service) RemoveWorktree(ctx context.Context, repoPath, worktreePath string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, worktreePath)
	if err := s.run(ctx, repoPath, args...); err != nil {
		return fmt.Errorf("failed to remove worktree %s: %w", worktreePath, err)
	}
	return nil
}
