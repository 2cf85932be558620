package merge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bough-dev/bough/internal/assistant"
	"github.com/bough-dev/bough/internal/cmd"
	"github.com/bough-dev/bough/internal/git"
)

const listing = `worktree /repo
HEAD aaaa000000000000000000000000000000000000
branch refs/heads/main

worktree /repo_feature
HEAD bbbb000000000000000000000000000000000000
branch refs/heads/feature
`

type recordingLauncher struct {
	prompt string
	dir    string
	err    error
	called int
}

func (r *recordingLauncher) Launch(_ context.Context, prompt string, opts assistant.Options) error {
	r.called++
	r.prompt = prompt
	r.dir = opts.Dir
	return r.err
}

func featureWorktree() *git.Worktree {
	return &git.Worktree{Path: "/repo_feature", Branch: "feature"}
}

func newOrchestrator(runner *cmd.FakeRunner, opts Options) *Orchestrator {
	if opts.Trunk == "" {
		opts.Trunk = "main"
	}
	return New(git.NewService(runner), "/repo", opts)
}

func TestFinishUpToDate(t *testing.T) {
	t.Parallel()

	runner := cmd.NewFakeRunner()
	runner.On("git", []string{"rev-list", "--count"}, cmd.FakeResponse{Stdout: []byte("0\n")})
	runner.On("git", []string{"merge-base"}, cmd.FakeResponse{Stdout: []byte("head2\n")})
	runner.On("git", []string{"rev-parse", "main"}, cmd.FakeResponse{Stdout: []byte("head2\n")})

	sess, err := newOrchestrator(runner, Options{}).Finish(context.Background(), featureWorktree())
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if !sess.UpToDate {
		t.Error("expected session to be up to date")
	}
	if n := len(runner.CallsMatching("git rebase")); n != 0 {
		t.Errorf("expected no rebase calls, got %d", n)
	}
	if n := len(runner.CallsMatching("--ff-only")); n != 0 {
		t.Errorf("expected no merge calls, got %d", n)
	}
}

func TestFinishRebaseThenMerge(t *testing.T) {
	t.Parallel()

	runner := cmd.NewFakeRunner()
	runner.On("git", []string{"rev-list", "--count"}, cmd.FakeResponse{Stdout: []byte("2\n")})
	runner.On("git", []string{"rev-parse", "main"}, cmd.FakeResponse{Stdout: []byte("head2\n")})
	// merge base moves once the rebase has run
	runner.OnSeq("git", []string{"merge-base"},
		cmd.FakeResponse{Stdout: []byte("head1\n")},
		cmd.FakeResponse{Stdout: []byte("head2\n")})
	runner.On("git", []string{"worktree", "list", "--porcelain"}, cmd.FakeResponse{Stdout: []byte(listing)})

	sess, err := newOrchestrator(runner, Options{}).Finish(context.Background(), featureWorktree())
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if !sess.Rebased || !sess.Merged {
		t.Errorf("expected rebased and merged, got %+v", sess)
	}
	if sess.PendingCommits != 2 {
		t.Errorf("PendingCommits = %d, want 2", sess.PendingCommits)
	}

	rebases := runner.CallsMatching("git rebase main")
	if len(rebases) != 1 || rebases[0].Dir != "/repo_feature" {
		t.Fatalf("expected one rebase in the feature worktree, got %v", rebases)
	}
	merges := runner.CallsMatching("--ff-only feature")
	if len(merges) != 1 {
		t.Fatalf("expected one fast-forward merge, got %v", merges)
	}
	if merges[0].Dir != "/repo" {
		t.Errorf("merge ran in %s, want the trunk checkout /repo", merges[0].Dir)
	}
}

func TestFinishAlreadyRebasedSkipsRebase(t *testing.T) {
	t.Parallel()

	runner := cmd.NewFakeRunner()
	runner.On("git", []string{"rev-list", "--count"}, cmd.FakeResponse{Stdout: []byte("2\n")})
	runner.On("git", []string{"rev-parse", "main"}, cmd.FakeResponse{Stdout: []byte("head2\n")})
	runner.On("git", []string{"merge-base"}, cmd.FakeResponse{Stdout: []byte("head2\n")})
	runner.On("git", []string{"worktree", "list", "--porcelain"}, cmd.FakeResponse{Stdout: []byte(listing)})

	sess, err := newOrchestrator(runner, Options{}).Finish(context.Background(), featureWorktree())
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if sess.Rebased {
		t.Error("expected no rebase for a branch already on the trunk head")
	}
	if !sess.Merged {
		t.Error("expected the branch to be merged")
	}
	if n := len(runner.CallsMatching("git rebase")); n != 0 {
		t.Errorf("expected no rebase calls, got %d", n)
	}
}

func TestFinishConflictWithoutAssistant(t *testing.T) {
	t.Parallel()

	runner := cmd.NewFakeRunner()
	runner.On("git", []string{"rev-list", "--count"}, cmd.FakeResponse{Stdout: []byte("2\n")})
	runner.On("git", []string{"rev-parse", "main"}, cmd.FakeResponse{Stdout: []byte("head2\n")})
	runner.On("git", []string{"merge-base"}, cmd.FakeResponse{Stdout: []byte("head1\n")})
	runner.On("git", []string{"rebase", "main"}, cmd.FakeResponse{Err: errors.New("conflict")})
	runner.On("git", []string{"diff", "--name-only", "--diff-filter=U"}, cmd.FakeResponse{Stdout: []byte("app.go\nlib.go\n")})

	_, err := newOrchestrator(runner, Options{}).Finish(context.Background(), featureWorktree())

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.ResolutionAttempted {
		t.Error("no assistant was configured, attempt must not be reported")
	}
	if len(conflict.Files) != 2 {
		t.Errorf("Files = %v, want two entries", conflict.Files)
	}
	if !strings.Contains(conflict.Error(), "rebase --abort") {
		t.Errorf("error lacks recovery command: %q", conflict.Error())
	}
	if n := len(runner.CallsMatching("rebase --abort")); n != 0 {
		t.Errorf("conflicted rebase must stay in progress, got %d aborts", n)
	}
}

func TestFinishRebaseFailureWithoutConflictsAborts(t *testing.T) {
	t.Parallel()

	runner := cmd.NewFakeRunner()
	runner.On("git", []string{"rev-list", "--count"}, cmd.FakeResponse{Stdout: []byte("2\n")})
	runner.On("git", []string{"rev-parse", "main"}, cmd.FakeResponse{Stdout: []byte("head2\n")})
	runner.On("git", []string{"merge-base"}, cmd.FakeResponse{Stdout: []byte("head1\n")})
	runner.On("git", []string{"rebase", "main"}, cmd.FakeResponse{Err: errors.New("cannot rebase")})

	_, err := newOrchestrator(runner, Options{}).Finish(context.Background(), featureWorktree())
	if err == nil {
		t.Fatal("expected an error")
	}
	if n := len(runner.CallsMatching("rebase --abort")); n != 1 {
		t.Errorf("expected one rebase --abort, got %d", n)
	}
}

func TestFinishAssistantResolvesConflicts(t *testing.T) {
	t.Parallel()

	wtPath := t.TempDir()
	if err := os.WriteFile(filepath.Join(wtPath, "app.go"), []byte("package app\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	wt := &git.Worktree{Path: wtPath, Branch: "feature"}

	launcher := &recordingLauncher{}
	runner := cmd.NewFakeRunner()
	runner.On("git", []string{"rev-list", "--count"}, cmd.FakeResponse{Stdout: []byte("2\n")})
	runner.On("git", []string{"rev-parse", "main"}, cmd.FakeResponse{Stdout: []byte("head2\n")})
	runner.OnSeq("git", []string{"merge-base"},
		cmd.FakeResponse{Stdout: []byte("head1\n")},
		cmd.FakeResponse{Stdout: []byte("head2\n")})
	runner.On("git", []string{"rebase", "main"}, cmd.FakeResponse{Err: errors.New("conflict")})
	runner.OnSeq("git", []string{"diff", "--name-only", "--diff-filter=U"},
		cmd.FakeResponse{Stdout: []byte("app.go\n")},
		cmd.FakeResponse{Stdout: nil})
	runner.On("git", []string{"worktree", "list", "--porcelain"}, cmd.FakeResponse{Stdout: []byte(listing)})

	sess, err := newOrchestrator(runner, Options{Assistant: launcher}).Finish(context.Background(), wt)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if launcher.called != 1 {
		t.Fatalf("assistant launched %d times, want exactly 1", launcher.called)
	}
	if launcher.dir != wtPath {
		t.Errorf("assistant dir = %s, want the conflicted worktree", launcher.dir)
	}
	if !strings.Contains(launcher.prompt, "app.go") {
		t.Errorf("prompt does not name the conflicted file: %q", launcher.prompt)
	}
	if !sess.ResolutionAttempted || !sess.Merged {
		t.Errorf("expected attempted resolution and merge, got %+v", sess)
	}
}

func TestFinishAssistantStagesFileWithMarkers(t *testing.T) {
	t.Parallel()

	// The assistant stages app.go and finishes the rebase, but the file
	// still carries conflict markers. The unmerged list is empty, so only
	// a scan of the originally conflicted files can catch it.
	wtPath := t.TempDir()
	marked := "package app\n<<<<<<< HEAD\nvar x = 1\n=======\nvar x = 2\n>>>>>>> feature\n"
	if err := os.WriteFile(filepath.Join(wtPath, "app.go"), []byte(marked), 0o644); err != nil {
		t.Fatal(err)
	}
	wt := &git.Worktree{Path: wtPath, Branch: "feature"}

	launcher := &recordingLauncher{}
	runner := cmd.NewFakeRunner()
	runner.On("git", []string{"rev-list", "--count"}, cmd.FakeResponse{Stdout: []byte("2\n")})
	runner.On("git", []string{"rev-parse", "main"}, cmd.FakeResponse{Stdout: []byte("head2\n")})
	runner.On("git", []string{"merge-base"}, cmd.FakeResponse{Stdout: []byte("head1\n")})
	runner.On("git", []string{"rebase", "main"}, cmd.FakeResponse{Err: errors.New("conflict")})
	runner.OnSeq("git", []string{"diff", "--name-only", "--diff-filter=U"},
		cmd.FakeResponse{Stdout: []byte("app.go\n")},
		cmd.FakeResponse{Stdout: nil})

	_, err := newOrchestrator(runner, Options{Assistant: launcher}).Finish(context.Background(), wt)

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError for a staged file with markers, got %v", err)
	}
	if !conflict.ResolutionAttempted {
		t.Error("expected the attempt to be reported")
	}
	if len(conflict.Files) != 1 || conflict.Files[0] != "app.go" {
		t.Errorf("Files = %v, want [app.go]", conflict.Files)
	}
	if n := len(runner.CallsMatching("--ff-only")); n != 0 {
		t.Errorf("marker-laden branch must not be merged, got %d merge calls", n)
	}
}

func TestFinishAssistantLeavesConflicts(t *testing.T) {
	t.Parallel()

	launcher := &recordingLauncher{}
	runner := cmd.NewFakeRunner()
	runner.On("git", []string{"rev-list", "--count"}, cmd.FakeResponse{Stdout: []byte("2\n")})
	runner.On("git", []string{"rev-parse", "main"}, cmd.FakeResponse{Stdout: []byte("head2\n")})
	runner.On("git", []string{"merge-base"}, cmd.FakeResponse{Stdout: []byte("head1\n")})
	runner.On("git", []string{"rebase", "main"}, cmd.FakeResponse{Err: errors.New("conflict")})
	runner.On("git", []string{"diff", "--name-only", "--diff-filter=U"}, cmd.FakeResponse{Stdout: []byte("app.go\n")})

	_, err := newOrchestrator(runner, Options{Assistant: launcher}).Finish(context.Background(), featureWorktree())

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if !conflict.ResolutionAttempted {
		t.Error("expected the attempt to be reported")
	}
	if launcher.called != 1 {
		t.Errorf("assistant launched %d times, want exactly 1", launcher.called)
	}
	if !strings.Contains(err.Error(), "after assistant attempt") {
		t.Errorf("error does not mention the failed attempt: %q", err)
	}
}

func TestFinishDryRunMutatesNothing(t *testing.T) {
	t.Parallel()

	runner := cmd.NewFakeRunner()
	runner.On("git", []string{"rev-list", "--count"}, cmd.FakeResponse{Stdout: []byte("2\n")})
	runner.On("git", []string{"rev-parse", "main"}, cmd.FakeResponse{Stdout: []byte("head2\n")})
	runner.On("git", []string{"merge-base"}, cmd.FakeResponse{Stdout: []byte("head1\n")})
	runner.On("git", []string{"worktree", "list", "--porcelain"}, cmd.FakeResponse{Stdout: []byte(listing)})

	sess, err := newOrchestrator(runner, Options{DryRun: true}).Finish(context.Background(), featureWorktree())
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if !sess.Rebased || !sess.Merged {
		t.Errorf("dry run should report the planned steps, got %+v", sess)
	}
	if n := len(runner.CallsMatching("git rebase")); n != 0 {
		t.Errorf("dry run executed %d rebase calls", n)
	}
	if n := len(runner.CallsMatching("--ff-only")); n != 0 {
		t.Errorf("dry run executed %d merge calls", n)
	}
}

func TestFinishDirtyWorktree(t *testing.T) {
	t.Parallel()

	runner := cmd.NewFakeRunner()
	runner.On("git", []string{"status", "--porcelain"}, cmd.FakeResponse{Stdout: []byte(" M app.go\n")})

	_, err := newOrchestrator(runner, Options{}).Finish(context.Background(), featureWorktree())
	if err == nil || !strings.Contains(err.Error(), "uncommitted changes") {
		t.Fatalf("expected dirty tree error, got %v", err)
	}
}

func TestFinishMissingTrunk(t *testing.T) {
	t.Parallel()

	runner := cmd.NewFakeRunner()
	runner.OnExact("git", []string{"rev-parse", "--verify", "--quiet", "refs/heads/main"},
		cmd.FakeResponse{Err: errors.New("exit status 1")})

	_, err := newOrchestrator(runner, Options{}).Finish(context.Background(), featureWorktree())
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Fatalf("expected missing trunk error, got %v", err)
	}
}

func TestFinishTrunkNotCheckedOut(t *testing.T) {
	t.Parallel()

	bareListing := "worktree /repo_feature\nHEAD bbbb000000000000000000000000000000000000\nbranch refs/heads/feature\n"
	runner := cmd.NewFakeRunner()
	runner.On("git", []string{"rev-list", "--count"}, cmd.FakeResponse{Stdout: []byte("2\n")})
	runner.On("git", []string{"rev-parse", "main"}, cmd.FakeResponse{Stdout: []byte("head2\n")})
	runner.On("git", []string{"merge-base"}, cmd.FakeResponse{Stdout: []byte("head2\n")})
	runner.On("git", []string{"worktree", "list", "--porcelain"}, cmd.FakeResponse{Stdout: []byte(bareListing)})

	_, err := newOrchestrator(runner, Options{}).Finish(context.Background(), featureWorktree())
	if err == nil || !strings.Contains(err.Error(), "checked out") {
		t.Fatalf("expected trunk checkout error, got %v", err)
	}
}

func TestFinishRefusesTrunkWorktree(t *testing.T) {
	t.Parallel()

	wt := &git.Worktree{Path: "/repo", Branch: "main"}
	_, err := newOrchestrator(cmd.NewFakeRunner(), Options{}).Finish(context.Background(), wt)
	if err == nil || !strings.Contains(err.Error(), "trunk checkout itself") {
		t.Fatalf("expected trunk refusal, got %v", err)
	}
}
