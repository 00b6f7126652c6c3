package runtime

import (
	"context"
	"sync"
)

const (
	OpUp   = "up"
	OpDown = "down"
	OpPs   = "ps"
	OpLogs = "logs"
)

/**
 * In-memory runtime for tests
 * @description
 * - Tracks which directories are up and counts every call per operation and directory
 * - Errors can be injected per operation and directory
 * - BeforeUp runs before each bring-up outside the lock, tests use it to gate or stall starts
 */
type Fake struct {
	mu      sync.Mutex
	up      map[string]bool
	calls   map[string]int
	errs    map[string]error
	leaveUp map[string]bool
	logs    map[string][]string

	BeforeUp func(ctx context.Context, dir string) error
}

func NewFake() *Fake {
	return &Fake{
		up:      make(map[string]bool),
		calls:   make(map[string]int),
		errs:    make(map[string]error),
		leaveUp: make(map[string]bool),
		logs:    make(map[string][]string),
	}
}

func key(op, dir string) string {
	return op + ":" + dir
}

// SetError makes op fail for dir until cleared with a nil error.
func (f *Fake) SetError(op, dir string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, key(op, dir))
		return
	}
	f.errs[key(op, dir)] = err
}

// SetUpFailureLeavesRunning makes a failing bring-up still leave containers running.
func (f *Fake) SetUpFailureLeavesRunning(dir string, v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaveUp[dir] = v
}

// SetUp forces the observed state of dir, as if changed outside the orchestrator.
func (f *Fake) SetUp(dir string, v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.up[dir] = v
}

func (f *Fake) SetLogs(dir string, lines []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs[dir] = lines
}

func (f *Fake) Calls(op, dir string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key(op, dir)]
}

// Running reports the fake's own view, without counting a call.
func (f *Fake) Running(dir string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.up[dir]
}

// UpCount returns how many directories are up.
func (f *Fake) UpCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, v := range f.up {
		if v {
			n++
		}
	}
	return n
}

func (f *Fake) BringUp(ctx context.Context, dir string) error {
	f.mu.Lock()
	f.calls[key(OpUp, dir)]++
	hook := f.BeforeUp
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, dir); err != nil {
			return &ExitError{Command: "fake up", ExitCode: 1, Err: err}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[key(OpUp, dir)]; err != nil {
		if f.leaveUp[dir] {
			f.up[dir] = true
		}
		return &ExitError{Command: "fake up", ExitCode: 1, Stderr: err.Error(), Err: err}
	}
	f.up[dir] = true
	return nil
}

func (f *Fake) TearDown(ctx context.Context, dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[key(OpDown, dir)]++
	if err := f.errs[key(OpDown, dir)]; err != nil {
		return &ExitError{Command: "fake down", ExitCode: 1, Stderr: err.Error(), Err: err}
	}
	f.up[dir] = false
	return nil
}

func (f *Fake) IsUp(ctx context.Context, dir string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[key(OpPs, dir)]++
	if err := f.errs[key(OpPs, dir)]; err != nil {
		return false, &ExitError{Command: "fake ps", ExitCode: 1, Stderr: err.Error(), Err: err}
	}
	return f.up[dir], nil
}

func (f *Fake) FetchLogs(ctx context.Context, dir string, tail int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[key(OpLogs, dir)]++
	if err := f.errs[key(OpLogs, dir)]; err != nil {
		return nil, &ExitError{Command: "fake logs", ExitCode: 1, Stderr: err.Error(), Err: err}
	}
	lines := f.logs[dir]
	if tail > 0 && len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	out := make([]string, len(lines))
	copy(out, lines)
	return out, nil
}
