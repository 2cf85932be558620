package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bough-dev/bough/internal/config"
	"github.com/bough-dev/bough/internal/git"
	"github.com/bough-dev/bough/internal/log"
	"github.com/bough-dev/bough/internal/output"
)

var (
	// Global flags
	verbose bool
	quiet   bool

	// Shared state injected into commands
	cfg     *config.Config
	workDir string
)

// Command group IDs for organizing help output
const (
	GroupLifecycle = "lifecycle"
	GroupUtility   = "utility"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bough",
	Short: "Git worktree lifecycle manager",
	Long: `bough manages the full lifecycle of issue and PR worktrees: finding
them, merging their branches back into the trunk, and tearing down the
worktree, branch, dev server, and database branch when the work is done.`,
	SilenceUsage:               true,
	SilenceErrors:              true,
	SuggestionsMinimumDistance: 2,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "completion" || cmd.Name() == "__complete" || cmd.Name() == "help" {
			return nil
		}
		if verbose && quiet {
			return fmt.Errorf("--verbose and --quiet are mutually exclusive")
		}
		return git.CheckGit()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	loadedCfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	cfg = &loadedCfg

	workDir, err = os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "bough: failed to get working directory: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Logger on stderr for diagnostics, printer on stdout for primary data
	logger := log.New(os.Stderr, verbose, quiet)
	ctx = log.WithLogger(ctx, logger)
	ctx = output.WithPrinter(ctx, os.Stdout)

	rootCmd.SetContext(ctx)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Run 'bough -h' for help")
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show external commands being executed")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress all log output")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	rootCmd.Version = versionString()
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	rootCmd.AddGroup(
		&cobra.Group{ID: GroupLifecycle, Title: "Lifecycle Commands:"},
		&cobra.Group{ID: GroupUtility, Title: "Utility Commands:"},
	)

	rootCmd.AddCommand(newFinishCmd())
	rootCmd.AddCommand(newCleanupCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newLocateCmd())
}
