// Package ports assigns deterministic dev server ports to identifiers and
// supervises the processes bound to them.
package ports

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/bough-dev/bough/internal/cmd"
	"github.com/bough-dev/bough/internal/ident"
	"github.com/bough-dev/bough/internal/log"
)

// branchWindow is the range above basePort+1000 that branch-derived ports
// hash into, keeping them clear of issue/PR ports (base+N) for small N.
const branchWindow = 1000

// Calculate returns the deterministic port for an identifier: base plus the
// number for issues and PRs, or a stable hash of the branch name. No state
// is persisted; the same identifier always maps to the same port.
func Calculate(base int, id ident.Identifier) int {
	switch id.Kind {
	case ident.KindIssue, ident.KindPR:
		return base + id.Number
	default:
		h := fnv.New32a()
		h.Write([]byte(id.Branch))
		return base + branchWindow + int(h.Sum32()%branchWindow)
	}
}

// ProcessInfo describes a process bound to a port.
type ProcessInfo struct {
	PID     int
	Command string
	Port    int
}

// VerificationError reports that a termination appeared to succeed but the
// port did not become free.
type VerificationError struct {
	Port int
	PID  int
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("process %d was signalled but port %d is still bound; inspect with: lsof -i tcp:%d", e.PID, e.Port, e.Port)
}

// probeTimeout bounds each lsof/ps query.
const probeTimeout = 5 * time.Second

// Supervisor detects and terminates dev server processes.
type Supervisor struct {
	runner   cmd.Runner
	patterns []string

	// settleDelay is the wait between termination and port re-check.
	settleDelay time.Duration
}

// NewSupervisor creates a Supervisor. A nil runner uses the real executor;
// patterns are the command-line substrings that classify a dev server.
func NewSupervisor(r cmd.Runner, patterns []string) *Supervisor {
	if r == nil {
		r = cmd.ExecRunner{}
	}
	return &Supervisor{runner: r, patterns: patterns, settleDelay: 400 * time.Millisecond}
}

// DetectDevServer inspects the process listening on port. Returns nil when
// nothing is bound or the bound process doesn't look like a dev server;
// a foreign process on the port is never a candidate for termination.
func (s *Supervisor) DetectDevServer(ctx context.Context, port int) (*ProcessInfo, error) {
	pid, err := s.listeningPID(ctx, port)
	if err != nil {
		return nil, err
	}
	if pid == 0 {
		return nil, nil
	}

	command, err := s.commandLine(ctx, pid)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect process %d on port %d: %w", pid, port, err)
	}

	if !s.isDevServer(command) {
		log.FromContext(ctx).Debug("process on port is not a dev server", "port", port, "pid", pid, "command", command)
		return nil, nil
	}

	return &ProcessInfo{PID: pid, Command: command, Port: port}, nil
}

// StopDevServer terminates proc and verifies its port becomes free.
// Termination counts as successful only when the port is confirmed free;
// otherwise a *VerificationError is returned.
func (s *Supervisor) StopDevServer(ctx context.Context, proc *ProcessInfo) error {
	if err := s.signal(ctx, proc.PID, "-TERM"); err != nil {
		return fmt.Errorf("failed to terminate process %d: %w", proc.PID, err)
	}
	if s.waitPortFree(ctx, proc.Port, 5) {
		return nil
	}

	// Graceful shutdown didn't release the port; escalate once.
	if err := s.signal(ctx, proc.PID, "-KILL"); err != nil {
		return fmt.Errorf("failed to kill process %d: %w", proc.PID, err)
	}
	if s.waitPortFree(ctx, proc.Port, 5) {
		return nil
	}

	return &VerificationError{Port: proc.Port, PID: proc.PID}
}

// VerifyPortFree reports whether nothing is listening on port.
func (s *Supervisor) VerifyPortFree(ctx context.Context, port int) bool {
	pid, err := s.listeningPID(ctx, port)
	return err != nil || pid == 0
}

func (s *Supervisor) waitPortFree(ctx context.Context, port, attempts int) bool {
	for i := 0; i < attempts; i++ {
		if s.VerifyPortFree(ctx, port) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.settleDelay):
		}
	}
	return false
}

// listeningPID returns the PID listening on port, or 0 when the port is
// free. lsof exits non-zero for a free port, which is not an error here;
// lsof being absent from PATH is.
func (s *Supervisor) listeningPID(ctx context.Context, port int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := s.runner.Output(ctx, "", "lsof", "-ti", fmt.Sprintf("tcp:%d", port), "-sTCP:LISTEN")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return 0, fmt.Errorf("lsof not available: %w", err)
		}
		return 0, nil
	}
	first := strings.TrimSpace(strings.SplitN(strings.TrimSpace(string(out)), "\n", 2)[0])
	if first == "" {
		return 0, nil
	}
	pid, err := strconv.Atoi(first)
	if err != nil {
		return 0, fmt.Errorf("unexpected lsof output %q: %w", first, err)
	}
	return pid, nil
}

func (s *Supervisor) commandLine(ctx context.Context, pid int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := s.runner.Output(ctx, "", "ps", "-p", strconv.Itoa(pid), "-o", "command=")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (s *Supervisor) isDevServer(command string) bool {
	lower := strings.ToLower(command)
	for _, p := range s.patterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func (s *Supervisor) signal(ctx context.Context, pid int, sig string) error {
	return s.runner.Run(ctx, "", "kill", sig, strconv.Itoa(pid))
}
