package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/bough-dev/bough/internal/cleanup"
	"github.com/bough-dev/bough/internal/format"
	"github.com/bough-dev/bough/internal/log"
	"github.com/bough-dev/bough/internal/merge"
	"github.com/bough-dev/bough/internal/output"
	"github.com/bough-dev/bough/internal/ui/progress"
)

func newFinishCmd() *cobra.Command {
	var (
		dryRun       bool
		noCleanup    bool
		keepBranch   bool
		keepDatabase bool
	)

	cmd := &cobra.Command{
		Use:     "finish [issue|pr|branch]",
		Short:   "Merge a worktree's branch into the trunk and clean up",
		GroupID: GroupLifecycle,
		Args:    cobra.MaximumNArgs(1),
		Long: `Rebase the worktree's branch onto the trunk, fast-forward the trunk,
then tear down the worktree, branch, dev server, and database branch.

When rebasing hits conflicts the configured assistant gets one attempt
at resolving them before the command hands the worktree back to you.

Without an argument the target is detected from the current directory.`,
		Example: `  bough finish 45             # Finish issue 45 (or PR, asks the forge)
  bough finish pr/123         # Finish PR 123
  bough finish feat/login     # Finish a plain branch
  bough finish --dry-run      # Show what would happen
  bough finish --no-cleanup   # Merge only, keep the worktree`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := output.FromContext(ctx)
			a := newApp()

			id, err := a.resolveIdentifier(ctx, args)
			if err != nil {
				return err
			}
			wt, err := a.resolveWorktree(ctx, id)
			if err != nil {
				return err
			}
			log.FromContext(ctx).Debug("finishing", "target", id.String(), "worktree", wt.Path)

			orch := merge.New(a.git, a.repoPath, merge.Options{
				Trunk:     a.cfg.TrunkBranch,
				DryRun:    dryRun,
				Assistant: a.launcher(),
				Headless:  a.cfg.Assistant.Headless || !isatty.IsTerminal(os.Stdin.Fd()),
			})
			sess, err := orch.Finish(ctx, wt)
			if err != nil {
				return err
			}

			switch {
			case sess.UpToDate:
				out.Printf("%s is already merged into %s\n", id, sess.Trunk)
			case dryRun:
				out.Printf("[dry-run] would merge %d commit(s) from %s into %s\n", sess.PendingCommits, sess.Branch, sess.Trunk)
			default:
				out.Printf("Merged %d commit(s) from %s into %s\n", sess.PendingCommits, sess.Branch, sess.Trunk)
			}

			if noCleanup {
				return nil
			}

			spin := progress.NewSpinner(fmt.Sprintf("Cleaning up %s...", id))
			if isatty.IsTerminal(os.Stdout.Fd()) && !dryRun {
				spin.Start()
			}
			res, err := a.cleaner().Cleanup(ctx, id, wt, cleanup.Options{
				DeleteBranch: !keepBranch,
				KeepDatabase: keepDatabase,
				DryRun:       dryRun,
			})
			spin.Stop()
			if err != nil {
				return err
			}

			out.Print(format.RenderCleanup(res, !isatty.IsTerminal(os.Stdout.Fd())))
			if !res.Success {
				return fmt.Errorf("cleanup finished with errors")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show planned actions without mutating anything")
	cmd.Flags().BoolVar(&noCleanup, "no-cleanup", false, "Merge only, keep the worktree and branch")
	cmd.Flags().BoolVar(&keepBranch, "keep-branch", false, "Keep the branch after the merge")
	cmd.Flags().BoolVar(&keepDatabase, "keep-database", false, "Keep the database branch")

	return cmd
}
