package stackhost

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status is the lifecycle state of the supervised stack host.
type Status string

const (
	StatusStopped    Status = "stopped"
	StatusRunning    Status = "running"
	StatusRestarting Status = "restarting"
	StatusFailed     Status = "failed"
)

// Defaults for zero Options fields.
const (
	DefaultRestartDelay    = 5 * time.Second
	DefaultGracefulTimeout = 10 * time.Second
)

// maxLineLength bounds one logged output line of the stack host.
const maxLineLength = 64 * 1024

// ErrNotRunning is returned by HealthCheck while the stack host is down.
var ErrNotRunning = errors.New("stackhost: not running")

// Logger is the logging interface used by the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Supervisor.
type Options struct {
	// Name labels log lines. Default: the binary path.
	Name string

	// Binary is the stack host executable. Required.
	Binary string
	Args   []string

	// Env is appended to the parent environment.
	Env []string

	WorkDir string

	// RestartDelay is the pause before a restart.
	RestartDelay time.Duration

	// MaxRestarts stops supervision after this many consecutive restarts.
	// Zero restarts forever.
	MaxRestarts int

	// GracefulTimeout is the wait between SIGTERM and SIGKILL on Stop.
	GracefulTimeout time.Duration

	// OnRestart is called after a restarted host is running again. The
	// restarted host has lost its provisioning sessions, so callers reset
	// the commissioning state here.
	OnRestart func(attempt int)

	Logger Logger
}

// Stats describes the supervised process.
type Stats struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	PID       int           `json:"pid,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
	Restarts  int           `json:"restarts"`
	LastError string        `json:"last_error,omitempty"`
}

// Supervisor runs the mesh stack host as a child process and restarts it
// when it exits unexpectedly.
//
// Thread Safety: All methods are safe for concurrent use.
type Supervisor struct {
	opts   Options
	logger Logger

	mu            sync.RWMutex
	cmd           *exec.Cmd
	status        Status
	restarts      int
	lastErr       error
	startedAt     time.Time
	stopRequested bool
	done          chan struct{}
}

// New creates a stopped Supervisor.
//
// Returns:
//   - *Supervisor: Ready to start
//   - error: If Binary is empty
func New(opts Options) (*Supervisor, error) {
	if opts.Binary == "" {
		return nil, errors.New("stackhost: binary is required")
	}
	if opts.Name == "" {
		opts.Name = opts.Binary
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = DefaultRestartDelay
	}
	if opts.GracefulTimeout <= 0 {
		opts.GracefulTimeout = DefaultGracefulTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Supervisor{
		opts:   opts,
		logger: logger,
		status: StatusStopped,
	}, nil
}

// Start launches the stack host and supervises it until ctx is cancelled
// or Stop is called.
//
// Returns:
//   - error: If already running or the first launch fails
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.status == StatusRunning || s.status == StatusRestarting {
		s.mu.Unlock()
		return fmt.Errorf("stackhost: %s is already running", s.opts.Name)
	}
	s.stopRequested = false
	s.restarts = 0
	s.done = make(chan struct{})
	s.mu.Unlock()

	if err := s.launch(ctx); err != nil {
		s.mu.Lock()
		s.status = StatusFailed
		s.lastErr = err
		close(s.done)
		s.mu.Unlock()
		return err
	}

	go s.supervise(ctx)
	return nil
}

// launch starts one instance of the stack host.
func (s *Supervisor) launch(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, s.opts.Binary, s.opts.Args...) //nolint:gosec // Binary comes from operator config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(s.opts.Env) > 0 {
		cmd.Env = append(os.Environ(), s.opts.Env...)
	}
	cmd.Dir = s.opts.WorkDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", s.opts.Name, err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.status = StatusRunning
	s.startedAt = time.Now()
	s.mu.Unlock()

	go s.logOutput("stdout", stdout)
	go s.logOutput("stderr", stderr)

	s.logger.Info("stack host started", "name", s.opts.Name, "pid", cmd.Process.Pid)
	return nil
}

// logOutput logs the stack host's output line by line.
func (s *Supervisor) logOutput(stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineLength)
	for scanner.Scan() {
		s.logger.Debug("stack host output", "name", s.opts.Name, "stream", stream, "line", scanner.Text())
	}
}

// supervise waits for each instance to exit and restarts it unless a stop
// was requested.
func (s *Supervisor) supervise(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		close(s.done)
		s.mu.Unlock()
	}()

	for {
		s.mu.RLock()
		cmd := s.cmd
		s.mu.RUnlock()

		err := cmd.Wait()

		s.mu.Lock()
		stopped := s.stopRequested || ctx.Err() != nil
		if stopped {
			s.status = StatusStopped
		} else {
			s.status = StatusRestarting
			s.lastErr = err
			s.restarts++
		}
		attempt := s.restarts
		s.mu.Unlock()

		if stopped {
			s.logger.Info("stack host stopped", "name", s.opts.Name)
			return
		}

		s.logger.Warn("stack host exited unexpectedly", "name", s.opts.Name, "error", err, "attempt", attempt)

		if s.opts.MaxRestarts > 0 && attempt > s.opts.MaxRestarts {
			s.logger.Error("stack host restart limit reached", "name", s.opts.Name, "restarts", attempt-1)
			s.setStatus(StatusFailed)
			return
		}

		if !s.restart(ctx, attempt) {
			return
		}
	}
}

// restart relaunches after the restart delay, retrying failed launches.
// It returns false when supervision should end.
func (s *Supervisor) restart(ctx context.Context, attempt int) bool {
	for {
		select {
		case <-ctx.Done():
			s.setStatus(StatusStopped)
			return false
		case <-time.After(s.opts.RestartDelay):
		}

		s.mu.RLock()
		stopRequested := s.stopRequested
		s.mu.RUnlock()
		if stopRequested {
			s.setStatus(StatusStopped)
			return false
		}

		if err := s.launch(ctx); err != nil {
			s.logger.Error("stack host restart failed", "name", s.opts.Name, "error", err)
			s.mu.Lock()
			s.lastErr = err
			s.mu.Unlock()
			continue
		}

		if s.opts.OnRestart != nil {
			s.opts.OnRestart(attempt)
		}
		return true
	}
}

// Stop sends SIGTERM to the stack host's process group, escalating to
// SIGKILL after the graceful timeout. Safe to call when not running.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	s.stopRequested = true
	cmd := s.cmd
	done := s.done
	running := s.status == StatusRunning
	s.mu.Unlock()

	if done == nil {
		return nil
	}
	if !running || cmd == nil || cmd.Process == nil {
		<-done
		return nil
	}

	pid := cmd.Process.Pid
	s.logger.Info("stopping stack host", "name", s.opts.Name, "pid", pid)
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.logger.Warn("SIGTERM failed", "name", s.opts.Name, "error", err)
	}

	select {
	case <-done:
		return nil
	case <-time.After(s.opts.GracefulTimeout):
		s.logger.Warn("stack host ignored SIGTERM, killing", "name", s.opts.Name, "timeout", s.opts.GracefulTimeout)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing stack host %s: %w", s.opts.Name, err)
	}
	<-done
	return nil
}

// HealthCheck reports ErrNotRunning unless the stack host is running.
func (s *Supervisor) HealthCheck(_ context.Context) error {
	status := s.Status()
	if status != StatusRunning {
		return fmt.Errorf("%w: %s", ErrNotRunning, status)
	}
	return nil
}

// Status returns the current lifecycle state.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Stats returns a snapshot of the supervised process.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Name:     s.opts.Name,
		Status:   s.status,
		Restarts: s.restarts,
	}
	if s.status == StatusRunning && s.cmd != nil && s.cmd.Process != nil {
		stats.PID = s.cmd.Process.Pid
		stats.Uptime = time.Since(s.startedAt)
	}
	if s.lastErr != nil {
		stats.LastError = s.lastErr.Error()
	}
	return stats
}

func (s *Supervisor) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}
