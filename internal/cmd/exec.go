// Package cmd provides the single execution boundary for external commands.
// All process spawning in bough goes through a Runner so orchestration logic
// can be tested against a fake.
package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bough-dev/bough/internal/log"
)

// ProcessError describes a failed or timed-out external command.
type ProcessError struct {
	Name   string
	Args   []string
	Stderr string
	Err    error
}

func (e *ProcessError) Error() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	return fmt.Sprintf("%s %s: %v", e.Name, strings.Join(e.Args, " "), e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Timeout reports whether the command was cut short by its context deadline.
func (e *ProcessError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// Runner executes external commands.
type Runner interface {
	// Run executes a command in dir and returns an error carrying stderr on failure.
	Run(ctx context.Context, dir, name string, args ...string) error

	// Output executes a command in dir and returns stdout,
	// with stderr carried in the error on failure.
	Output(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec. The zero value is ready to use.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) error {
	log.FromContext(ctx).Command(name, args...)

	c := exec.CommandContext(ctx, name, args...)
	c.Dir = dir
	var stderr bytes.Buffer
	c.Stderr = &stderr
	if err := c.Run(); err != nil {
		return wrapErr(ctx, name, args, stderr.String(), err)
	}
	return nil
}

func (ExecRunner) Output(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	log.FromContext(ctx).Command(name, args...)

	c := exec.CommandContext(ctx, name, args...)
	c.Dir = dir
	var stderr bytes.Buffer
	c.Stderr = &stderr
	out, err := c.Output()
	if err != nil {
		return nil, wrapErr(ctx, name, args, stderr.String(), err)
	}
	return out, nil
}

func wrapErr(ctx context.Context, name string, args []string, stderr string, err error) error {
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	return &ProcessError{
		Name:   name,
		Args:   args,
		Stderr: strings.TrimSpace(stderr),
		Err:    err,
	}
}

// RunContext executes a command with the default runner.
func RunContext(ctx context.Context, dir, name string, args ...string) error {
	return ExecRunner{}.Run(ctx, dir, name, args...)
}

// OutputContext executes a command with the default runner, returning stdout.
func OutputContext(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	return ExecRunner{}.Output(ctx, dir, name, args...)
}
