package git

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConflictedFiles returns paths (relative to dir) that are in an unmerged
// state after a failed rebase or merge.
func (s *Service) ConflictedFiles(ctx context.Context, dir string) ([]string, error) {
	out, err := s.output(ctx, dir, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicted files: %w", err)
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// FilesWithConflictMarkers filters files to those still containing a
// conflict marker at the start of a line. Unreadable files are reported as
// conflicted: a file we cannot inspect must not pass the post-resolution check.
func FilesWithConflictMarkers(dir string, files []string) []string {
	var remaining []string
	for _, f := range files {
		if f == "" {
			continue
		}
		if hasConflictMarker(filepath.Join(dir, f)) {
			remaining = append(remaining, f)
		}
	}
	return remaining
}

func hasConflictMarker(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "<<<<<<< ") || strings.HasPrefix(line, ">>>>>>> ") {
			return true
		}
	}
	return false
}

// RebaseInProgress reports whether dir has rebase state markers.
func (s *Service) RebaseInProgress(ctx context.Context, dir string) bool {
	for _, marker := range []string{"rebase-merge", "rebase-apply"} {
		out, err := s.output(ctx, dir, "rev-parse", "--git-path", marker)
		if err != nil || out == "" {
			continue
		}
		path := out
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		if _, err := os.Stat(path); err == nil {
			return true
		}
	}
	return false
}
