// Package supervisor launches the bedrock dedicated server, relays console
// input to it and classifies its output into the structured log.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/siriusu/siriusu/internal/apperr"
	"github.com/siriusu/siriusu/internal/telemetry"
)

// DefaultExecutable is the server binary expected under the base directory.
const DefaultExecutable = "bedrock_server.exe"

// ScriptsDir is the behavior pack script directory, relative to the base
// directory.
var ScriptsDir = filepath.Join("behavior_packs", "siriusu", "scripts")

// Phase is a step in the supervisor lifecycle. Phases only move forward.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseStarting
	PhaseRunning
	PhaseStopped
)

var phaseNames = []string{"not_started", "starting", "running", "stopped"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// StopReason says why a supervisor reached PhaseStopped.
type StopReason string

const (
	ReasonNone               StopReason = ""
	ReasonPreconditionFailed StopReason = "precondition_failed"
	ReasonSpawnFailed        StopReason = "spawn_failed"
	ReasonExited             StopReason = "exited"
	ReasonCancelled          StopReason = "cancelled"
)

// Status is a snapshot of the supervisor.
type Status struct {
	Phase    Phase      `json:"-"`
	State    string     `json:"state"`
	Reason   StopReason `json:"reason,omitempty"`
	Pid      int        `json:"pid,omitempty"`
	ExitCode int        `json:"exit_code,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// Config locates the server and describes the artifact written before launch.
type Config struct {
	// Dir is the server's base directory and working directory.
	Dir string
	// Executable is the binary name inside Dir. Defaults to DefaultExecutable.
	Executable string
	Args       []string
	Artifact   PluginConfig
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger. Relayed output is tagged with label BDS.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = logger }
}

// WithMetrics records relayed lines and lifecycle state.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// WithConsole sets the source of console input forwarded to the child.
// A nil reader disables the input relay.
func WithConsole(r io.Reader) Option {
	return func(s *Supervisor) { s.console = r }
}

// WithStderr sets where the child's stderr goes. It is not classified.
func WithStderr(w io.Writer) Option {
	return func(s *Supervisor) { s.stderr = w }
}

// Supervisor owns a single child server process for its whole life. It is
// started at most once and never restarts the child.
type Supervisor struct {
	cfg     Config
	logger  *slog.Logger
	metrics *telemetry.Metrics
	console io.Reader
	stderr  io.Writer

	mu     sync.Mutex
	status Status
	done   chan struct{}
}

// New creates a supervisor in PhaseNotStarted.
func New(cfg Config, opts ...Option) *Supervisor {
	if cfg.Executable == "" {
		cfg.Executable = DefaultExecutable
	}
	s := &Supervisor{
		cfg:     cfg,
		logger:  slog.Default(),
		console: os.Stdin,
		stderr:  os.Stderr,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setPhase(PhaseNotStarted)
	return s
}

// Status returns the current lifecycle snapshot.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Done is closed once the supervisor reaches PhaseStopped.
func (s *Supervisor) Done() <-chan struct{} { return s.done }

// Start checks the server layout, writes the plugin artifact and launches
// the child with both relays attached. Cancelling ctx kills the child.
//
// A failed precondition leaves the supervisor stopped and is returned for
// the caller to report; it must not take the rest of the service down.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.status.Phase != PhaseNotStarted {
		s.mu.Unlock()
		return apperr.New(apperr.InvalidRequest, "start", "", errors.New("supervisor already started"))
	}
	s.status.Phase = PhaseStarting
	s.mu.Unlock()
	s.setPhase(PhaseStarting)

	log := telemetry.WithLabel(s.logger, "supervisor")

	exe, err := filepath.Abs(filepath.Join(s.cfg.Dir, s.cfg.Executable))
	if err != nil {
		return s.fail(log, ReasonPreconditionFailed, apperr.New(apperr.ExecutableNotFound, "start", s.cfg.Executable, err))
	}
	if info, err := os.Stat(exe); err != nil || info.IsDir() {
		if err == nil {
			err = errors.New("is a directory")
		}
		return s.fail(log, ReasonPreconditionFailed, apperr.New(apperr.ExecutableNotFound, "start", exe, err))
	}

	scripts := filepath.Join(s.cfg.Dir, ScriptsDir)
	if info, err := os.Stat(scripts); err != nil || !info.IsDir() {
		if err == nil {
			err = errors.New("not a directory")
		}
		return s.fail(log, ReasonPreconditionFailed, apperr.New(apperr.ResourceNotFound, "start", scripts, err))
	}

	artifact, err := RenderArtifact(s.cfg.Artifact)
	if err != nil {
		return s.fail(log, ReasonPreconditionFailed, apperr.New(apperr.IoError, "start", scripts, err))
	}
	artifactPath := filepath.Join(scripts, ArtifactName)
	if err := os.WriteFile(artifactPath, artifact, 0o644); err != nil {
		return s.fail(log, ReasonPreconditionFailed, apperr.New(apperr.IoError, "start", artifactPath, err))
	}
	log.Debug("plugin config written", "path", artifactPath)

	cmd := exec.CommandContext(ctx, exe, s.cfg.Args...)
	cmd.Dir = s.cfg.Dir
	cmd.Stderr = s.stderr
	killGroupOnCancel(cmd)

	stdin, stdout, err := openPipes(cmd)
	if err != nil {
		return s.fail(log, ReasonSpawnFailed, err)
	}
	if err := cmd.Start(); err != nil {
		spawnErr := apperr.New(apperr.ProcessSpawnFailed, "spawn", exe, err)
		telemetry.Fatal(log, "failed to spawn server", "error", spawnErr)
		s.stop(ReasonSpawnFailed, spawnErr, 0)
		return spawnErr
	}

	s.mu.Lock()
	s.status.Pid = cmd.Process.Pid
	s.mu.Unlock()
	s.setPhase(PhaseRunning)
	log.Info("server started", "pid", cmd.Process.Pid, "dir", s.cfg.Dir)

	relayCtx, cancelRelay := context.WithCancel(ctx)
	if s.console != nil {
		go relayInput(relayCtx, s.console, stdin)
	}
	go func() {
		defer cancelRelay()
		relayOutput(stdout, telemetry.WithLabel(s.logger, "BDS"), s.metrics)

		waitErr := cmd.Wait()
		reason := ReasonExited
		if ctx.Err() != nil {
			reason = ReasonCancelled
		}
		code := 0
		if cmd.ProcessState != nil {
			code = cmd.ProcessState.ExitCode()
		}
		var exitErr *exec.ExitError
		if waitErr != nil && !errors.As(waitErr, &exitErr) {
			log.Warn("wait for server", "error", waitErr)
		}
		log.Info("server stopped", "reason", string(reason), "exit_code", code)
		s.stop(reason, nil, code)
	}()
	return nil
}

// openPipes attaches the console and log pipes to cmd. Start releases them
// if spawning fails; before Start that is up to us.
func openPipes(cmd *exec.Cmd) (io.WriteCloser, io.ReadCloser, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, apperr.New(apperr.StreamUnavailable, "stdin", cmd.Path, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, nil, apperr.New(apperr.StreamUnavailable, "stdout", cmd.Path, err)
	}
	return stdin, stdout, nil
}

func (s *Supervisor) fail(log *slog.Logger, reason StopReason, err error) error {
	log.Error("server not started", "error", err)
	s.stop(reason, err, 0)
	return err
}

func (s *Supervisor) stop(reason StopReason, err error, code int) {
	s.mu.Lock()
	s.status.Reason = reason
	s.status.ExitCode = code
	if err != nil {
		s.status.Error = err.Error()
	}
	s.mu.Unlock()
	s.setPhase(PhaseStopped)
	close(s.done)
}

func (s *Supervisor) setPhase(p Phase) {
	s.mu.Lock()
	s.status.Phase = p
	s.status.State = p.String()
	s.mu.Unlock()
	s.metrics.SetServerState(p.String(), phaseNames)
}
