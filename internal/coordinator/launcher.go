package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"bundleeval/internal/config"
	"bundleeval/internal/services"
	"bundleeval/internal/worker"
)

// WorkerSpec identifies one worker of a prepared run.
type WorkerSpec struct {
	Index      int
	RunDir     string
	ConfigPath string
}

// Process is a running worker.
type Process interface {
	// Wait blocks until the worker exits and returns its error, if any.
	Wait() error
	// Stop asks the worker to shut down its service and exit.
	Stop()
}

// Launcher starts workers.
type Launcher interface {
	Launch(ctx context.Context, spec WorkerSpec) (Process, error)
}

// ExecLauncher re-executes a binary with the hidden worker command.
type ExecLauncher struct {
	Executable string
	// Args are inserted before the worker command, for example global flags.
	Args   []string
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecLauncher returns a launcher for the running executable.
func NewExecLauncher() (*ExecLauncher, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	return &ExecLauncher{Executable: exe}, nil
}

// WorkerArgs returns the command line that starts the worker for spec.
func WorkerArgs(spec WorkerSpec) []string {
	return []string{
		"worker",
		"--run-dir", spec.RunDir,
		"--index", strconv.Itoa(spec.Index),
		"--config", spec.ConfigPath,
	}
}

// Launch starts the worker process.
func (l *ExecLauncher) Launch(_ context.Context, spec WorkerSpec) (Process, error) {
	if strings.TrimSpace(l.Executable) == "" {
		return nil, errors.New("launch worker: executable path is empty")
	}
	args := append(append([]string(nil), l.Args...), WorkerArgs(spec)...)
	cmd := exec.Command(l.Executable, args...)
	// The snapshot already holds the effective base_port.
	cmd.Env = withoutEnv(os.Environ(), "PORT")
	cmd.Stdout = orStderr(l.Stdout)
	cmd.Stderr = orStderr(l.Stderr)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch worker %d: %w", spec.Index, err)
	}
	return &execProcess{index: spec.Index, cmd: cmd}, nil
}

func withoutEnv(env []string, name string) []string {
	out := env[:0:0]
	for _, kv := range env {
		if !strings.HasPrefix(kv, name+"=") {
			out = append(out, kv)
		}
	}
	return out
}

func orStderr(w io.Writer) io.Writer {
	if w == nil {
		return os.Stderr
	}
	return w
}

type execProcess struct {
	index int
	cmd   *exec.Cmd
}

func (p *execProcess) Wait() error {
	err := p.cmd.Wait()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return fmt.Errorf("worker %d killed by %s", p.index, status.Signal())
		}
		return worker.ErrorForExit(p.index, exitErr.ExitCode())
	}
	return fmt.Errorf("wait worker %d: %w", p.index, err)
}

func (p *execProcess) Stop() {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Signal(syscall.SIGTERM)
	}
}

// InProcessLauncher runs workers as goroutines of the current process. Each
// worker still owns its own service subprocess.
type InProcessLauncher struct {
	Logger *slog.Logger
}

// Launch starts worker.Serve for spec on its own goroutine.
func (l InProcessLauncher) Launch(_ context.Context, spec WorkerSpec) (Process, error) {
	cfg, _, _, err := config.Load(spec.ConfigPath)
	if err != nil {
		return nil, services.Wrap(services.ErrSetup, "coordinator", "load worker config", spec.ConfigPath, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &goroutineProcess{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		_, p.err = worker.Serve(ctx, cfg, spec.RunDir, spec.Index, l.Logger)
	}()
	return p, nil
}

type goroutineProcess struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
	once   sync.Once
}

func (p *goroutineProcess) Wait() error {
	<-p.done
	p.once.Do(p.cancel)
	return p.err
}

func (p *goroutineProcess) Stop() {
	p.once.Do(p.cancel)
}
