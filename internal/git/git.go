// Package git wraps the git binary behind a narrow, testable surface.
// Every query re-reads live repository state; nothing is cached.
package git

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bough-dev/bough/internal/cmd"
)

// ErrGitNotFound indicates git is not installed or not in PATH.
var ErrGitNotFound = fmt.Errorf("git not found: please install git (https://git-scm.com)")

// CheckGit verifies that git is available in PATH.
func CheckGit() error {
	if _, err := exec.LookPath("git"); err != nil {
		return ErrGitNotFound
	}
	return nil
}

// Service executes git operations through a command Runner.
type Service struct {
	runner cmd.Runner
}

// NewService creates a Service. A nil runner uses the real executor.
func NewService(r cmd.Runner) *Service {
	if r == nil {
		r = cmd.ExecRunner{}
	}
	return &Service{runner: r}
}

func (s *Service) run(ctx context.Context, dir string, args ...string) error {
	return s.runner.Run(ctx, dir, "git", args...)
}

func (s *Service) output(ctx context.Context, dir string, args ...string) (string, error) {
	out, err := s.runner.Output(ctx, dir, "git", args...)
	return strings.TrimSpace(string(out)), err
}
