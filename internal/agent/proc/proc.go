// Package proc supervises agent child processes. An agent is spawned with
// piped stdin/stdout for the control protocol; stderr is scanned line by
// line into the log and kept in a small ring so spawn failures can be
// diagnosed after the fact.
package proc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/common/logger"
)

// LaunchSpec describes one agent process to start.
type LaunchSpec struct {
	// Path is the resolved agent binary.
	Path string

	// WorkDir is the workspace the agent operates in.
	WorkDir string

	// SandboxMode, when non-empty, is passed as --sandbox <mode>.
	SandboxMode string

	// Env holds additional environment variables merged over the parent's.
	Env map[string]string
}

// ExitStatus reports how a process ended.
type ExitStatus struct {
	Code int
	Err  error
}

// Handle is a running agent process. Done's channel receives exactly one
// ExitStatus, on every exit path: clean exit, crash, or Kill. It is meant
// for a single supervising consumer.
type Handle interface {
	Stdin() io.WriteCloser
	Stdout() io.ReadCloser
	Pid() int
	Done() <-chan ExitStatus
	// Kill terminates the process, escalating SIGTERM to SIGKILL.
	Kill()
	// RecentStderr returns the last stderr lines the process wrote.
	RecentStderr() []string
}

// Launcher starts agent processes.
type Launcher interface {
	Start(ctx context.Context, spec LaunchSpec) (Handle, error)
}

// killGracePeriod is how long a process gets to react to SIGTERM before
// SIGKILL.
const killGracePeriod = 2 * time.Second

// stderrRingSize is how many stderr lines are retained per process.
const stderrRingSize = 50

// ExecLauncher starts real agent processes via os/exec.
type ExecLauncher struct {
	logger *logger.Logger
}

// NewExecLauncher creates a launcher.
func NewExecLauncher(log *logger.Logger) *ExecLauncher {
	return &ExecLauncher{
		logger: log.WithFields(zap.String("component", "agent-launcher")),
	}
}

// Start spawns the agent and begins supervising it. The returned handle's
// stdin/stdout pipes carry the control protocol.
func (l *ExecLauncher) Start(ctx context.Context, spec LaunchSpec) (Handle, error) {
	var args []string
	if spec.SandboxMode != "" {
		args = append(args, "--sandbox", spec.SandboxMode)
	}

	cmd := exec.CommandContext(ctx, spec.Path, args...)
	cmd.Dir = spec.WorkDir
	cmd.Env = mergeEnv(spec.Env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to attach stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to attach stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to attach stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start agent process: %w", err)
	}

	p := &process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		done:   make(chan ExitStatus, 1),
		exited: make(chan struct{}),
		logger: l.logger.WithFields(zap.Int("pid", cmd.Process.Pid)),
	}

	l.logger.Info("agent process started",
		zap.String("path", spec.Path),
		zap.String("work_dir", spec.WorkDir),
		zap.Int("pid", cmd.Process.Pid))

	go p.scanStderr(stderr)
	go p.wait()

	return p, nil
}

type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	done   chan ExitStatus
	exited chan struct{}
	logger *logger.Logger

	stderrMu    sync.Mutex
	stderrLines []string

	killOnce sync.Once
}

func (p *process) Stdin() io.WriteCloser   { return p.stdin }
func (p *process) Stdout() io.ReadCloser   { return p.stdout }
func (p *process) Pid() int                { return p.cmd.Process.Pid }
func (p *process) Done() <-chan ExitStatus { return p.done }

// Kill terminates the process. SIGTERM first so the agent can flush; if it
// is still alive after the grace period, SIGKILL.
func (p *process) Kill() {
	p.killOnce.Do(func() {
		if p.cmd.Process == nil {
			return
		}
		_ = p.cmd.Process.Signal(syscall.SIGTERM)
		go func() {
			select {
			case <-p.exited:
			case <-time.After(killGracePeriod):
				_ = p.cmd.Process.Kill()
			}
		}()
	})
}

func (p *process) RecentStderr() []string {
	p.stderrMu.Lock()
	defer p.stderrMu.Unlock()
	lines := make([]string, len(p.stderrLines))
	copy(lines, p.stderrLines)
	return lines
}

// scanStderr logs each stderr line and keeps the most recent ones.
func (p *process) scanStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		p.logger.Debug("agent stderr", zap.String("line", line))

		p.stderrMu.Lock()
		p.stderrLines = append(p.stderrLines, line)
		if len(p.stderrLines) > stderrRingSize {
			p.stderrLines = p.stderrLines[len(p.stderrLines)-stderrRingSize:]
		}
		p.stderrMu.Unlock()
	}
}

// wait is the sole authority on exit status; it fires done exactly once.
func (p *process) wait() {
	err := p.cmd.Wait()

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = 1
		}
	}

	p.logger.Info("agent process exited",
		zap.Int("exit_code", exitCode),
		zap.Error(err))

	close(p.exited)
	p.done <- ExitStatus{Code: exitCode, Err: err}
}

// mergeEnv merges extra variables over the parent environment.
func mergeEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
