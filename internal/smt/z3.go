package smt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Backend runs a complete script and returns the solver's standard output
type Backend interface {
	Run(ctx context.Context, script string) (string, error)
}

// ErrTimeout is returned when the solver does not finish in time
var ErrTimeout = errors.New("solver timed out")

// ErrSolverNotFound is returned when no solver binary is available
var ErrSolverNotFound = errors.New("z3 not found")

// Z3Backend runs scripts through the z3 binary, one process per script
type Z3Backend struct {
	Path    string
	Timeout time.Duration
}

// NewZ3Backend locates the z3 binary. An empty path searches PATH.
func NewZ3Backend(path string, timeout time.Duration) (*Z3Backend, error) {
	if path == "" {
		path = "z3"
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSolverNotFound, err)
	}
	return &Z3Backend{Path: resolved, Timeout: timeout}, nil
}

// Run pipes script into z3 and returns its output
func (z *Z3Backend) Run(ctx context.Context, script string) (string, error) {
	if z.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, z.Timeout)
		defer cancel()
	}

	args := []string{"-smt2", "-in"}
	if z.Timeout > 0 {
		args = append(args, fmt.Sprintf("-T:%d", max(1, int(z.Timeout.Seconds()))))
	}
	cmd := exec.CommandContext(ctx, z.Path, args...)
	cmd.Stdin = strings.NewReader(script)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%w after %s", ErrTimeout, z.Timeout)
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	// z3 exits non-zero after printing an (error ...) line; that output is still
	// meaningful to the parser
	var exitErr *exec.ExitError
	if err != nil && !(errors.As(err, &exitErr) && stdout.Len() > 0) {
		msg := fmt.Sprintf("z3 error: %v", err)
		if stderr.Len() > 0 {
			msg += "\n" + stderr.String()
		}
		return "", errors.New(msg)
	}
	return stdout.String(), nil
}
