package main

import (
	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/bough-dev/bough/internal/log"
	"github.com/bough-dev/bough/internal/output"
)

func newLocateCmd() *cobra.Command {
	var copyPath bool

	cmd := &cobra.Command{
		Use:     "locate [issue|pr|branch]",
		Short:   "Print the worktree path for an identifier",
		Aliases: []string{"cd"},
		GroupID: GroupUtility,
		Args:    cobra.MaximumNArgs(1),
		Long: `Resolve an issue number, PR reference, or branch name to its worktree
path. The path is printed on stdout so it composes with cd:

  cd $(bough locate 45)`,
		Example: `  bough locate 45
  bough locate pr/123
  bough locate feat/login --copy`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a := newApp()

			id, err := a.resolveIdentifier(ctx, args)
			if err != nil {
				return err
			}
			wt, err := a.resolveWorktree(ctx, id)
			if err != nil {
				return err
			}

			output.FromContext(ctx).Println(wt.Path)

			if copyPath {
				if err := clipboard.WriteAll(wt.Path); err != nil {
					log.FromContext(ctx).Warn("failed to copy to clipboard", "error", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&copyPath, "copy", "c", false, "Copy the path to the clipboard")

	return cmd
}
