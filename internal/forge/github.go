// Package forge talks to the source hosting platform through the gh CLI.
package forge

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bough-dev/bough/internal/cmd"
	"github.com/bough-dev/bough/internal/ident"
)

// Issue is the subset of issue metadata bough needs.
type Issue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"`
}

// PR is the subset of pull request metadata bough needs.
type PR struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"`
	Branch string `json:"headRefName"`
}

// GitHub fetches issue and PR metadata using the gh CLI.
type GitHub struct {
	runner cmd.Runner
}

// NewGitHub creates a GitHub client. A nil runner uses the real executor.
func NewGitHub(r cmd.Runner) *GitHub {
	if r == nil {
		r = cmd.ExecRunner{}
	}
	return &GitHub{runner: r}
}

// Check verifies that gh CLI is available and authenticated.
func (g *GitHub) Check(ctx context.Context) error {
	if _, err := exec.LookPath("gh"); err != nil {
		return fmt.Errorf("gh not found: please install GitHub CLI (https://cli.github.com)")
	}
	if err := g.runner.Run(ctx, "", "gh", "auth", "status"); err != nil {
		msg := err.Error()
		if strings.Contains(msg, "not logged") || strings.Contains(msg, "no accounts") {
			return fmt.Errorf("gh not authenticated: please run 'gh auth login'")
		}
		return fmt.Errorf("gh auth check failed: %s", msg)
	}
	return nil
}

// FetchIssue fetches issue metadata.
func (g *GitHub) FetchIssue(ctx context.Context, n int) (*Issue, error) {
	out, err := g.runner.Output(ctx, "", "gh", "issue", "view", fmt.Sprintf("%d", n),
		"--json", "number,title,state")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch issue #%d: %w", n, err)
	}
	var issue Issue
	if err := json.Unmarshal(out, &issue); err != nil {
		return nil, fmt.Errorf("failed to parse gh output: %w", err)
	}
	return &issue, nil
}

// FetchPR fetches pull request metadata, including its head branch.
func (g *GitHub) FetchPR(ctx context.Context, n int) (*PR, error) {
	out, err := g.runner.Output(ctx, "", "gh", "pr", "view", fmt.Sprintf("%d", n),
		"--json", "number,title,state,headRefName")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch PR #%d: %w", n, err)
	}
	var pr PR
	if err := json.Unmarshal(out, &pr); err != nil {
		return nil, fmt.Errorf("failed to parse gh output: %w", err)
	}
	return &pr, nil
}

// DetectNumber classifies a bare number as a PR or an issue by asking the
// platform. PRs are tried first since every PR number is also in the issue
// number space.
func (g *GitHub) DetectNumber(ctx context.Context, n int) (ident.Kind, error) {
	if _, err := g.FetchPR(ctx, n); err == nil {
		return ident.KindPR, nil
	}
	if _, err := g.FetchIssue(ctx, n); err == nil {
		return ident.KindIssue, nil
	}
	return ident.KindBranch, fmt.Errorf("#%d is neither an open PR nor an issue", n)
}

var _ ident.Detector = (*GitHub)(nil)
