// Package ident models the identifiers bough works with: issue numbers,
// PR numbers, and branch names.
package ident

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind discriminates the identifier union.
type Kind int

const (
	KindIssue Kind = iota
	KindPR
	KindBranch
)

func (k Kind) String() string {
	switch k {
	case KindIssue:
		return "issue"
	case KindPR:
		return "pr"
	default:
		return "branch"
	}
}

// Identifier is a parsed, immutable identifier. Exactly one of Number
// (for issues and PRs) or Branch is meaningful, selected by Kind.
type Identifier struct {
	Kind   Kind
	Number int
	Branch string

	// Raw is the original input text, kept for error messages.
	Raw string

	// AutoDetected is true when the identifier was derived from the
	// current directory or branch rather than explicit input.
	AutoDetected bool
}

// Issue constructs an issue identifier.
func Issue(n int) Identifier {
	return Identifier{Kind: KindIssue, Number: n, Raw: fmt.Sprintf("#%d", n)}
}

// PR constructs a pull request identifier.
func PR(n int) Identifier {
	return Identifier{Kind: KindPR, Number: n, Raw: fmt.Sprintf("pr/%d", n)}
}

// Branch constructs a branch identifier.
func Branch(name string) Identifier {
	return Identifier{Kind: KindBranch, Branch: name, Raw: name}
}

func (id Identifier) String() string {
	switch id.Kind {
	case KindIssue:
		return fmt.Sprintf("issue #%d", id.Number)
	case KindPR:
		return fmt.Sprintf("PR #%d", id.Number)
	default:
		return fmt.Sprintf("branch %q", id.Branch)
	}
}

// Slug returns a short stable name for the identifier, used for database
// branch names and similar derived resources.
func (id Identifier) Slug() string {
	switch id.Kind {
	case KindIssue:
		return fmt.Sprintf("issue-%d", id.Number)
	case KindPR:
		return fmt.Sprintf("pr-%d", id.Number)
	default:
		return strings.ReplaceAll(id.Branch, "/", "-")
	}
}

// Detector classifies a bare number as an issue or a PR, typically by
// asking the source hosting platform.
type Detector interface {
	DetectNumber(ctx context.Context, n int) (Kind, error)
}

var (
	bareNumberRe = regexp.MustCompile(`^#?(\d+)$`)
	prRefRe      = regexp.MustCompile(`(?i)^pr[-/](\d+)$`)
	branchNameRe = regexp.MustCompile(`^[A-Za-z0-9/_-]+$`)

	prSuffixRe   = regexp.MustCompile(`_pr_(\d+)$`)
	issueTokenRe = regexp.MustCompile(`(?:^|[^0-9A-Za-z])issue-(\d+)(?:[^0-9]|$)`)
)

// Parse turns raw input into an Identifier. A bare or #-prefixed number is
// ambiguous and is classified via the detector; pr/123, PR-123 and similar
// forms are unambiguous PR references; anything else must be a plain branch
// name.
func Parse(ctx context.Context, input string, detector Detector) (Identifier, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Identifier{}, fmt.Errorf("empty identifier")
	}

	if m := prRefRe.FindStringSubmatch(input); m != nil {
		n, _ := strconv.Atoi(m[1])
		id := PR(n)
		id.Raw = input
		return id, nil
	}

	if m := bareNumberRe.FindStringSubmatch(input); m != nil {
		n, _ := strconv.Atoi(m[1])
		if detector == nil {
			return Identifier{}, fmt.Errorf("%q is ambiguous (issue or PR) and no platform client is available; use pr/%d or a branch name", input, n)
		}
		kind, err := detector.DetectNumber(ctx, n)
		if err != nil {
			return Identifier{}, fmt.Errorf("failed to classify %q: %w", input, err)
		}
		id := Identifier{Kind: kind, Number: n, Raw: input}
		if kind == KindBranch {
			return Identifier{}, fmt.Errorf("%q is neither an issue nor a PR", input)
		}
		return id, nil
	}

	if branchNameRe.MatchString(input) {
		return Branch(input), nil
	}

	return Identifier{}, fmt.Errorf("invalid identifier %q: expected an issue/PR number, pr/<n>, or a branch name", input)
}

// AutoDetect derives an identifier from the current directory name and
// branch, in priority order: _pr_<N> directory suffix, issue-<N> in the
// directory name, issue-<N> in the branch name, then the branch itself.
// Fails only when no branch can be determined and no pattern matched.
func AutoDetect(dirName, currentBranch string) (Identifier, error) {
	if m := prSuffixRe.FindStringSubmatch(dirName); m != nil {
		n, _ := strconv.Atoi(m[1])
		id := PR(n)
		id.Raw = dirName
		id.AutoDetected = true
		return id, nil
	}

	if m := issueTokenRe.FindStringSubmatch(dirName); m != nil {
		n, _ := strconv.Atoi(m[1])
		id := Issue(n)
		id.Raw = dirName
		id.AutoDetected = true
		return id, nil
	}

	if m := issueTokenRe.FindStringSubmatch(currentBranch); m != nil {
		n, _ := strconv.Atoi(m[1])
		id := Issue(n)
		id.Raw = currentBranch
		id.AutoDetected = true
		return id, nil
	}

	if currentBranch != "" {
		id := Branch(currentBranch)
		id.AutoDetected = true
		return id, nil
	}

	return Identifier{}, fmt.Errorf("cannot detect identifier: directory %q matches no pattern and no branch is checked out", dirName)
}

// PRNumberFromBranch extracts the PR number from a branch carrying the
// _pr_<N> suffix assigned at creation time. Returns 0 when absent.
func PRNumberFromBranch(branch string) int {
	if m := prSuffixRe.FindStringSubmatch(branch); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

// IssueNumberFromRef extracts the issue number from a branch or directory
// name containing an issue-<N> token. Returns 0 when absent.
func IssueNumberFromRef(ref string) int {
	if m := issueTokenRe.FindStringSubmatch(ref); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}
