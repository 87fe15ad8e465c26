package identify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"bundleeval/internal/config"
	"bundleeval/internal/logging"
	"bundleeval/internal/services"
)

const crashSettle = 250 * time.Millisecond

// State is a service handle lifecycle state.
type State int

const (
	StateSpawned State = iota
	StateHealthChecking
	StateReady
	StateServing
	StateCrashed
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateSpawned:
		return "spawned"
	case StateHealthChecking:
		return "health_checking"
	case StateReady:
		return "ready"
	case StateServing:
		return "serving"
	case StateCrashed:
		return "crashed"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Options configures a Handle.
type Options struct {
	Command       []string
	WorkDir       string
	Host          string
	Port          int
	Headers       map[string]string
	ReadyAttempts int
	ReadyInterval time.Duration
	// RequestTimeout bounds each identification call.
	RequestTimeout time.Duration
	MaxRestarts    int
	StopGrace      time.Duration
	// Env is appended to the inherited environment before PORT.
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
	Doer   HTTPDoer
}

// OptionsFromConfig derives handle options for the given worker index.
func OptionsFromConfig(cfg *config.Config, workerIndex int) Options {
	return Options{
		Command:        cfg.Service.Command,
		WorkDir:        cfg.Service.WorkDir,
		Host:           cfg.Service.Host,
		Port:           cfg.ServicePort(workerIndex),
		Headers:        cfg.Service.Headers,
		ReadyAttempts:  cfg.Service.ReadyAttempts,
		ReadyInterval:  cfg.ReadyInterval(),
		RequestTimeout: cfg.RequestTimeout(),
		MaxRestarts:    cfg.Service.MaxRestarts,
		StopGrace:      cfg.StopGrace(),
	}
}

// Handle owns one service process.
type Handle struct {
	opts   Options
	logger *slog.Logger
	client *Client

	mu       sync.Mutex
	state    State
	restarts int
	proc     *process
}

type process struct {
	cmd    *exec.Cmd
	exited chan struct{}
	err    error
}

func (p *process) done() bool {
	if p == nil {
		return true
	}
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

// NewHandle returns an unstarted handle.
func NewHandle(opts Options, logger *slog.Logger) *Handle {
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.ReadyAttempts <= 0 {
		opts.ReadyAttempts = 1
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stderr
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	baseURL := "http://" + net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	return &Handle{
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "service"),
		client: NewClient(baseURL, opts.Headers, opts.RequestTimeout, opts.Doer),
	}
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Restarts returns how many times the process was restarted after a crash.
func (h *Handle) Restarts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.restarts
}

// Port returns the service port.
func (h *Handle) Port() int {
	return h.opts.Port
}

// Exited reports whether the service process is not running.
func (h *Handle) Exited() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.proc.done()
}

// PID returns the service process id, or 0 when none is running.
func (h *Handle) PID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.proc == nil || h.proc.cmd.Process == nil {
		return 0
	}
	return h.proc.cmd.Process.Pid
}

// Start spawns the service and waits until it is ready. A service that never
// answers /alive is reported as services.ErrServiceUnavailable.
func (h *Handle) Start(ctx context.Context) error {
	if err := h.spawn(); err != nil {
		return err
	}
	if err := h.waitReady(ctx); err != nil {
		h.Terminate()
		return err
	}
	return nil
}

func (h *Handle) spawn() error {
	if len(h.opts.Command) == 0 {
		return services.Wrap(services.ErrSetup, "service", "spawn", "no command configured", nil)
	}
	cmd := exec.Command(h.opts.Command[0], h.opts.Command[1:]...)
	cmd.Dir = h.opts.WorkDir
	cmd.Env = append(append(os.Environ(), h.opts.Env...), "PORT="+strconv.Itoa(h.opts.Port))
	cmd.Stdout = h.opts.Stdout
	cmd.Stderr = h.opts.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return services.Wrap(services.ErrServiceUnavailable, "service", "spawn", fmt.Sprintf("start %s", h.opts.Command[0]), err)
	}
	proc := &process{cmd: cmd, exited: make(chan struct{})}
	go func() {
		proc.err = cmd.Wait()
		close(proc.exited)
	}()

	h.mu.Lock()
	h.proc = proc
	h.state = StateSpawned
	h.mu.Unlock()

	h.logger.Debug("service spawned",
		logging.Int("pid", cmd.Process.Pid),
		logging.Int("port", h.opts.Port),
		logging.String(logging.FieldEventType, "service_spawned"),
	)
	return nil
}

func (h *Handle) waitReady(ctx context.Context) error {
	h.setState(StateHealthChecking)
	h.mu.Lock()
	proc := h.proc
	h.mu.Unlock()

	for attempt := 1; attempt <= h.opts.ReadyAttempts; attempt++ {
		if proc.done() {
			return services.Wrap(services.ErrServiceUnavailable, "service", "health check",
				fmt.Sprintf("process exited before becoming ready: %v", proc.err), nil)
		}
		if err := h.client.Alive(ctx); err == nil {
			h.setState(StateReady)
			h.logger.Info("service ready",
				logging.Int("port", h.opts.Port),
				logging.Int("attempts", attempt),
				logging.String(logging.FieldEventType, "service_ready"),
			)
			return nil
		}
		if attempt == h.opts.ReadyAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-proc.exited:
		case <-time.After(h.opts.ReadyInterval):
		}
	}
	return services.Wrap(services.ErrServiceUnavailable, "service", "health check",
		fmt.Sprintf("no answer on port %d after %d attempts", h.opts.Port, h.opts.ReadyAttempts), nil)
}

// Identify sends one request. HTTP answers and transport failures are both
// returned as an Outcome; the error is non-nil only when the handle can no
// longer serve (the restart budget is exhausted or ctx ended).
func (h *Handle) Identify(ctx context.Context, endpoint string, body Request) (Outcome, error) {
	h.setState(StateServing)
	outcome, err := h.client.Identify(ctx, endpoint, body)
	if err == nil {
		return outcome, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Outcome{}, ctxErr
	}

	failed := Outcome{Kind: KindFailed, Message: err.Error()}
	if !h.awaitExit(crashSettle) {
		return failed, nil
	}

	h.setState(StateCrashed)
	if restartErr := h.restart(ctx); restartErr != nil {
		return failed, restartErr
	}
	return failed, nil
}

func (h *Handle) restart(ctx context.Context) error {
	h.mu.Lock()
	h.restarts++
	restarts := h.restarts
	var exitErr error
	if h.proc != nil {
		exitErr = h.proc.err
	}
	h.mu.Unlock()

	if restarts > h.opts.MaxRestarts {
		return services.Wrap(services.ErrServiceCrash, "service", "restart",
			fmt.Sprintf("restart budget of %d exhausted", h.opts.MaxRestarts), exitErr)
	}
	logging.WarnWithContext(h.logger, "service crashed; restarting", "service_restart",
		logging.Int("port", h.opts.Port),
		logging.Int("restart", restarts),
		logging.Int("max_restarts", h.opts.MaxRestarts),
		logging.String("exit", fmt.Sprint(exitErr)),
		logging.String(logging.FieldImpact, "in-flight job recorded as error"),
	)
	if err := h.spawn(); err != nil {
		return services.Wrap(services.ErrServiceCrash, "service", "restart", "", err)
	}
	if err := h.waitReady(ctx); err != nil {
		h.Terminate()
		return services.Wrap(services.ErrServiceCrash, "service", "restart", "", err)
	}
	return nil
}

// awaitExit waits up to d for the current process to be reaped. A connection
// reset usually arrives before Wait returns.
func (h *Handle) awaitExit(d time.Duration) bool {
	h.mu.Lock()
	proc := h.proc
	h.mu.Unlock()
	if proc == nil {
		return true
	}
	select {
	case <-proc.exited:
		return true
	case <-time.After(d):
		return false
	}
}

// Terminate stops the service process group: SIGTERM, then SIGKILL once the
// grace period has passed. It is safe to call more than once.
func (h *Handle) Terminate() {
	h.mu.Lock()
	proc := h.proc
	h.state = StateTerminated
	h.mu.Unlock()

	if proc == nil || proc.done() {
		return
	}
	pid := proc.cmd.Process.Pid
	if err := unix.Kill(-pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		_ = proc.cmd.Process.Signal(syscall.SIGTERM)
	}
	select {
	case <-proc.exited:
		return
	case <-time.After(h.opts.StopGrace):
	}
	h.logger.Debug("service ignored SIGTERM; killing", logging.Int("pid", pid))
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		_ = proc.cmd.Process.Kill()
	}
	<-proc.exited
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateTerminated && s != StateSpawned {
		return
	}
	h.state = s
}
