// Package runtime drives the container engine that actually runs managed services.
// Every operation is keyed by the service's working directory.
package runtime

import (
	"context"
	"fmt"
	"strings"
)

// Runtime is the set of primitives the lifecycle controller needs from a container engine.
type Runtime interface {
	BringUp(ctx context.Context, dir string) error
	TearDown(ctx context.Context, dir string) error
	IsUp(ctx context.Context, dir string) (bool, error)
	FetchLogs(ctx context.Context, dir string, tail int) ([]string, error)
}

/**
 * Failure of one runtime command
 * @property {string} Command - Rendered command line
 * @property {int} ExitCode - Process exit code, 127 when the executable is missing
 * @property {string} Stderr - Trimmed standard error of the process
 * @property {error} Err - Underlying error, includes the context error on timeout
 */
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("'%s' exited with code %d", e.Command, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// CommandData is the template data available to runtime argument lists.
type CommandData struct {
	Dir  string
	Tail int
}

func splitLines(out []byte) []string {
	text := strings.TrimRight(string(out), "\r\n")
	if text == "" {
		return []string{}
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, "\r")
	}
	return lines
}
