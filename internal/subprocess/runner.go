package subprocess

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	// ErrTimeout is returned when a command exceeds its deadline.
	ErrTimeout = errors.New("subprocess timed out")

	// ErrAborted is returned when a command was killed by StopAll.
	ErrAborted = errors.New("subprocess aborted")
)

// Config holds timeout configuration for subprocess execution.
type Config struct {
	// Timeout applies when the caller's context has no deadline.
	Timeout time.Duration

	// GracePeriod is the delay between the interrupt and the kill.
	GracePeriod time.Duration
}

// DefaultConfig returns the default runner settings.
func DefaultConfig() Config {
	return Config{
		Timeout:     10 * time.Second,
		GracePeriod: 500 * time.Millisecond,
	}
}

// Command describes one invocation.
type Command struct {
	Name  string
	Args  []string
	Stdin io.Reader
	Env   []string
	Dir   string
}

// Executor runs commands. Adapters depend on this interface so tests can
// substitute canned output.
type Executor interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
	StopAll()
}

// Runner executes commands and tracks the ones in flight.
type Runner struct {
	config Config

	mu     sync.Mutex
	active map[*exec.Cmd]context.CancelCauseFunc
}

// NewRunner creates a runner. Zero fields of cfg take their defaults.
func NewRunner(cfg Config) *Runner {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = def.GracePeriod
	}
	return &Runner{
		config: cfg,
		active: make(map[*exec.Cmd]context.CancelCauseFunc),
	}
}

// Run executes the command and returns its stdout. Stdin is attached before
// the process starts. On timeout or cancellation the process receives an
// interrupt and is killed once the grace period has passed.
func (r *Runner) Run(ctx context.Context, c Command) ([]byte, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}
	ctx, abort := context.WithCancelCause(ctx)
	defer abort(nil)

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Cancel = func() error {
		return interrupt(cmd.Process)
	}
	cmd.WaitDelay = r.config.GracePeriod
	cmd.Stdin = c.Stdin
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", c.Name, err)
	}
	r.track(cmd, abort)
	defer r.untrack(cmd)

	err := cmd.Wait()
	duration := time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		cause := context.Cause(ctx)
		log.Debug("Subprocess interrupted", "command", c.Name, "duration", duration, "cause", cause)
		switch {
		case errors.Is(cause, ErrAborted):
			return nil, ErrAborted
		case errors.Is(ctxErr, context.DeadlineExceeded):
			return nil, fmt.Errorf("%w: %s after %v", ErrTimeout, c.Name, duration.Round(time.Millisecond))
		default:
			return nil, fmt.Errorf("%s cancelled: %w", c.Name, ctxErr)
		}
	}

	log.Debug("Subprocess completed", "command", c.Name, "args", len(c.Args), "duration", duration, "error", err)
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s failed: %w\nstderr: %s", c.Name, err, msg)
		}
		return nil, fmt.Errorf("%s failed: %w", c.Name, err)
	}
	return stdout.Bytes(), nil
}

// StopAll aborts every command currently running through this runner.
func (r *Runner) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, abort := range r.active {
		abort(ErrAborted)
	}
}

// Active returns the number of commands in flight.
func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

func (r *Runner) track(cmd *exec.Cmd, abort context.CancelCauseFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[cmd] = abort
}

func (r *Runner) untrack(cmd *exec.Cmd) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, cmd)
}

// LookPath checks if a binary exists in the system PATH.
func LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("binary '%s' not found in PATH: %w", name, err)
	}
	return path, nil
}
