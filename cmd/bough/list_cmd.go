package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bough-dev/bough/internal/format"
	"github.com/bough-dev/bough/internal/ident"
	"github.com/bough-dev/bough/internal/log"
	"github.com/bough-dev/bough/internal/output"
	"github.com/bough-dev/bough/internal/ports"
)

// WorktreeDisplay holds worktree info for display
type WorktreeDisplay struct {
	Branch    string `json:"branch"`
	Path      string `json:"path"`
	Port      int    `json:"port,omitempty"`
	DevServer string `json:"dev_server,omitempty"`
	Status    string `json:"status"`
}

func newListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List worktrees with their ports and dev servers",
		Aliases: []string{"ls"},
		GroupID: GroupUtility,
		Args:    cobra.NoArgs,
		Long: `List the repository's worktrees with the deterministic dev server port
for each and whether a dev server is currently bound to it.`,
		Example: `  bough list
  bough list --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			l := log.FromContext(ctx)
			out := output.FromContext(ctx)
			a := newApp()

			worktrees, err := a.locator.ListAll(ctx)
			if err != nil {
				return err
			}

			var display []WorktreeDisplay
			for _, wt := range worktrees {
				if wt.Bare {
					continue
				}

				d := WorktreeDisplay{Branch: wt.Branch, Path: wt.Path}
				if wt.Detached {
					d.Branch = "(detached)"
				}

				if dirty, err := a.git.IsDirty(ctx, wt.Path); err == nil && dirty {
					d.Status = "dirty"
				} else if ahead, err := a.git.CommitsAhead(ctx, a.repoPath, a.cfg.TrunkBranch, wt.Branch); err == nil && ahead > 0 {
					d.Status = fmt.Sprintf("%d ahead", ahead)
				} else {
					d.Status = "clean"
				}

				// The trunk checkout doesn't run a per-identifier dev server.
				if wt.Branch != "" && wt.Branch != a.cfg.TrunkBranch {
					id, err := ident.AutoDetect(filepath.Base(wt.Path), wt.Branch)
					if err != nil {
						id = ident.Branch(wt.Branch)
					}
					d.Port = ports.Calculate(a.cfg.BasePort, id)
					if proc, err := a.ports.DetectDevServer(ctx, d.Port); err != nil {
						l.Warn("dev server probe failed", "port", d.Port, "error", err)
					} else if proc != nil {
						d.DevServer = fmt.Sprintf("running (pid %d)", proc.PID)
					}
				}

				display = append(display, d)
			}

			if jsonOutput {
				enc := json.NewEncoder(out.Writer())
				enc.SetIndent("", "  ")
				return enc.Encode(display)
			}

			rows := make([]format.ListRow, 0, len(display))
			for _, d := range display {
				row := format.ListRow{Branch: d.Branch, Path: d.Path, Port: "-", DevServer: "-", Status: d.Status}
				if d.Port != 0 {
					row.Port = strconv.Itoa(d.Port)
				}
				if d.DevServer != "" {
					row.DevServer = d.DevServer
				}
				rows = append(rows, row)
			}
			out.Print(format.RenderWorktreeTable(rows))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
