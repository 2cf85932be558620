// Package format renders worktree listings and cleanup reports for the
// terminal, and owns the worktree directory naming scheme.
package format

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/bough-dev/bough/internal/cleanup"
	"github.com/bough-dev/bough/internal/ident"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

const (
	symbolOK      = "✓"
	symbolFailed  = "✗"
	symbolSkipped = "–"
)

// DirName returns the worktree directory name for an identifier:
// <repo>_pr_<N> for PRs, <repo>_issue-<N> for issues, and the slugged
// branch name otherwise.
func DirName(repoName string, id ident.Identifier) string {
	switch id.Kind {
	case ident.KindPR:
		return fmt.Sprintf("%s_pr_%d", repoName, id.Number)
	case ident.KindIssue:
		return fmt.Sprintf("%s_issue-%d", repoName, id.Number)
	default:
		return repoName + "_" + id.Slug()
	}
}

// RenderCleanup renders one cleanup result as a symbol-per-step report.
func RenderCleanup(res *cleanup.Result, plain bool) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", res.Identifier)
	for _, op := range res.Operations {
		if op.Success {
			fmt.Fprintf(&b, "  %s %s: %s\n", style(successStyle, symbolOK, plain), op.Type, op.Message)
		} else {
			fmt.Fprintf(&b, "  %s %s: %s\n", style(errorStyle, symbolFailed, plain), op.Type, op.Message)
		}
	}
	for _, skipped := range res.Skipped {
		fmt.Fprintf(&b, "  %s %s: skipped\n", style(mutedStyle, symbolSkipped, plain), skipped)
	}
	return b.String()
}

// RenderCleanupSummary renders the trailing line for a batch of results.
func RenderCleanupSummary(results []*cleanup.Result, dryRun bool) string {
	var ok, failed int
	for _, r := range results {
		if r.Success {
			ok++
		} else {
			failed++
		}
	}
	if dryRun {
		return fmt.Sprintf("Dry run complete - Would clean up: %d, Failed checks: %d\n", ok, failed)
	}
	return fmt.Sprintf("Cleanup complete - Cleaned up: %d, Failed: %d\n", ok, failed)
}

// ListRow is one worktree line in the list view.
type ListRow struct {
	Branch    string
	Path      string
	Port      string
	DevServer string
	Status    string
}

// RenderWorktreeTable renders the list view. Column widths follow the
// widest cell so the table stays readable in narrow terminals.
func RenderWorktreeTable(rows []ListRow) string {
	if len(rows) == 0 {
		return "no worktrees\n"
	}

	widths := map[string]int{
		"branch": len("BRANCH"),
		"path":   len("PATH"),
		"port":   len("PORT"),
		"server": len("DEV SERVER"),
		"status": len("STATUS"),
	}
	for _, r := range rows {
		widths["branch"] = max(widths["branch"], len(r.Branch))
		widths["path"] = max(widths["path"], len(r.Path))
		widths["port"] = max(widths["port"], len(r.Port))
		widths["server"] = max(widths["server"], len(r.DevServer))
		widths["status"] = max(widths["status"], len(r.Status))
	}

	columns := []table.Column{
		{Title: "BRANCH", Width: widths["branch"] + 2},
		{Title: "PATH", Width: widths["path"] + 2},
		{Title: "PORT", Width: widths["port"] + 2},
		{Title: "DEV SERVER", Width: widths["server"] + 2},
		{Title: "STATUS", Width: widths["status"]},
	}

	var tableRows []table.Row
	for _, r := range rows {
		tableRows = append(tableRows, table.Row{r.Branch, r.Path, r.Port, r.DevServer, r.Status})
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(tableRows),
		table.WithFocused(false),
		table.WithHeight(len(tableRows)+1),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true).
		Padding(0)
	s.Cell = lipgloss.NewStyle().Padding(0)
	s.Selected = lipgloss.NewStyle().Padding(0)
	t.SetStyles(s)

	return t.View() + "\n"
}

func style(s lipgloss.Style, text string, plain bool) string {
	if plain {
		return text
	}
	return s.Render(text)
}
