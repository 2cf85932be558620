package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/bough-dev/bough/internal/cleanup"
	"github.com/bough-dev/bough/internal/format"
	"github.com/bough-dev/bough/internal/log"
	"github.com/bough-dev/bough/internal/output"
	"github.com/bough-dev/bough/internal/ui/prompt"
)

func newCleanupCmd() *cobra.Command {
	var (
		dryRun       bool
		deleteBranch bool
		keepDatabase bool
		force        bool
		yes          bool
	)

	cmd := &cobra.Command{
		Use:     "cleanup [issue|pr|branch]...",
		Short:   "Tear down worktrees without merging",
		GroupID: GroupLifecycle,
		Long: `Stop the dev server, remove the worktree, and optionally delete the
branch and database branch for each target. Steps run independently, a
failed step never blocks the remaining ones.

Protected branches (the trunk, main, master, develop, and any configured
extras) are never deleted, not even with --force.`,
		Example: `  bough cleanup 45                  # Tear down issue 45's worktree
  bough cleanup pr/123 issue-7      # Multiple targets
  bough cleanup 45 --delete-branch  # Also delete the branch
  bough cleanup 45 --force          # Discard local changes too
  bough cleanup --dry-run 45        # Show the plan`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := output.FromContext(ctx)
			a := newApp()

			var targets []cleanup.Target
			var names []string
			if len(args) == 0 {
				id, err := a.resolveIdentifier(ctx, args)
				if err != nil {
					return err
				}
				wt, err := a.resolveWorktree(ctx, id)
				if err != nil {
					return err
				}
				targets = append(targets, cleanup.Target{ID: id, Worktree: wt})
				names = append(names, id.String())
			}
			for _, arg := range args {
				id, err := a.resolveIdentifier(ctx, []string{arg})
				if err != nil {
					return err
				}
				wt, err := a.resolveWorktree(ctx, id)
				if err != nil {
					return err
				}
				targets = append(targets, cleanup.Target{ID: id, Worktree: wt})
				names = append(names, id.String())
			}

			if !dryRun && !yes && isatty.IsTerminal(os.Stdin.Fd()) {
				res, err := prompt.ConfirmCleanup(names)
				if err != nil {
					return err
				}
				if !res.Confirmed {
					log.FromContext(ctx).Println("aborted")
					return nil
				}
			}

			results := a.cleaner().CleanupMany(ctx, targets, cleanup.Options{
				DeleteBranch: deleteBranch,
				KeepDatabase: keepDatabase,
				Force:        force,
				DryRun:       dryRun,
			})

			plain := !isatty.IsTerminal(os.Stdout.Fd())
			failed := 0
			for _, res := range results {
				out.Print(format.RenderCleanup(res, plain))
				if !res.Success {
					failed++
				}
			}
			out.Print(format.RenderCleanupSummary(results, dryRun))

			if failed > 0 {
				return fmt.Errorf("%d of %d cleanups failed", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show planned actions without mutating anything")
	cmd.Flags().BoolVar(&deleteBranch, "delete-branch", false, "Also delete the branch")
	cmd.Flags().BoolVar(&keepDatabase, "keep-database", false, "Keep the database branch")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Remove worktrees with local changes, delete unmerged branches")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}
