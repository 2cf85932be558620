// Package assistant launches an AI coding assistant for automated conflict
// resolution. The launcher is a narrow port: prompt in, success or failure
// out, so orchestration code can run without an assistant installed.
package assistant

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/bough-dev/bough/internal/log"
)

// Options controls how the assistant is launched.
type Options struct {
	// Dir is the working tree the assistant is scoped to.
	Dir string

	// Headless passes the prompt on the command line and detaches the
	// assistant from the terminal instead of running interactively.
	Headless bool
}

// Launcher starts the assistant and blocks until it exits.
type Launcher interface {
	Launch(ctx context.Context, prompt string, opts Options) error
}

// CLI launches the assistant binary (claude by default) as a subprocess.
type CLI struct {
	// Command is the binary name, e.g. "claude".
	Command string
}

// Launch runs the assistant scoped to opts.Dir. Interactive mode attaches
// the process to the caller's terminal so the user can watch or intervene.
func (c *CLI) Launch(ctx context.Context, prompt string, opts Options) error {
	bin := c.Command
	if bin == "" {
		bin = "claude"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return fmt.Errorf("assistant %q not found in PATH: %w", bin, err)
	}

	args := []string{"--add-dir", opts.Dir}
	if opts.Headless {
		args = append(args, "-p", prompt)
	} else {
		args = append(args, prompt)
	}

	log.FromContext(ctx).Command(bin, args...)

	proc := exec.CommandContext(ctx, bin, args...)
	proc.Dir = opts.Dir
	if !opts.Headless {
		proc.Stdin = os.Stdin
		proc.Stdout = os.Stdout
		proc.Stderr = os.Stderr
	}
	if err := proc.Run(); err != nil {
		return fmt.Errorf("assistant exited with error: %w", err)
	}
	return nil
}

// Disabled is a Launcher that always refuses. Used when the assistant is
// turned off in config or unavailable in CI.
type Disabled struct{}

func (Disabled) Launch(context.Context, string, Options) error {
	return fmt.Errorf("assistant is disabled")
}

var _ Launcher = (*CLI)(nil)
var _ Launcher = Disabled{}
