// Package runtime wires the path guard, file operations, server supervisor
// and HTTP API into one daemon lifecycle.
package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/siriusu/siriusu/internal/auth"
	"github.com/siriusu/siriusu/internal/config"
	"github.com/siriusu/siriusu/internal/fsops"
	"github.com/siriusu/siriusu/internal/sandbox"
	"github.com/siriusu/siriusu/internal/supervisor"
	"github.com/siriusu/siriusu/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// Runtime manages the full lifecycle of the daemon.
type Runtime struct {
	config     *config.Config
	files      *fsops.Files
	supervisor *supervisor.Supervisor
	server     *Server
	logger     *slog.Logger
}

// Options configures the runtime.
type Options struct {
	Config *config.Config
	// Root is the sandbox root. Defaults to the working directory.
	Root    string
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	// Console feeds the supervised server's stdin. Defaults to os.Stdin.
	Console io.Reader
	Version string
}

// New creates a runtime from the given options. The supervisor is created
// only when a server directory is configured.
func New(opts Options) (*Runtime, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("runtime: config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	root := opts.Root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		root = wd
	}
	guard, err := sandbox.NewGuard(root, opts.Config.SandboxEnabled())
	if err != nil {
		return nil, fmt.Errorf("sandbox root: %w", err)
	}
	files := fsops.NewFiles(guard)

	rt := &Runtime{
		config: opts.Config,
		files:  files,
		logger: logger,
	}

	serverOpts := []ServerOption{
		WithLogger(logger),
		WithToken(opts.Config.ServerToken),
		WithRateLimiter(auth.NewRateLimiter(auth.RateLimitConfig{
			RequestsPerSecond: opts.Config.RateLimit.RequestsPerSecond,
			Burst:             opts.Config.RateLimit.Burst,
		})),
	}
	if opts.Metrics != nil {
		serverOpts = append(serverOpts, WithMetrics(opts.Metrics))
	}
	if opts.Version != "" {
		serverOpts = append(serverOpts, WithVersion(opts.Version))
	}

	if opts.Config.BDSDirectory != "" {
		supOpts := []supervisor.Option{
			supervisor.WithLogger(logger),
			supervisor.WithMetrics(opts.Metrics),
		}
		if opts.Console != nil {
			supOpts = append(supOpts, supervisor.WithConsole(opts.Console))
		}
		rt.supervisor = supervisor.New(opts.Config.SupervisorConfig(), supOpts...)
		serverOpts = append(serverOpts, WithStatusReporter(rt.supervisor))
	}

	rt.server = NewServer(files, serverOpts...)
	return rt, nil
}

// Start launches the supervised server, if configured, and logs the
// startup warnings. A server that fails its preconditions is logged and
// left stopped; the file API keeps working. Cancelling ctx kills the child.
func (rt *Runtime) Start(ctx context.Context) {
	if rt.supervisor != nil {
		// Start logs its own failures and records them in Status.
		_ = rt.supervisor.Start(ctx)
	}
	if rt.config.ServerToken == "" {
		rt.logger.Warn("Authentication token is not set")
	}
	if !rt.config.SandboxEnabled() {
		rt.logger.Warn("Safe path is disabled, all files can be accessed")
	}
}

// Serve runs the HTTP API on ln until ctx is cancelled, then shuts down.
func (rt *Runtime) Serve(ctx context.Context, ln net.Listener) error {
	errc := make(chan error, 1)
	go func() { errc <- rt.server.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errc
}

// Shutdown gracefully stops the HTTP server and waits for a running child
// to exit.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	rt.logger.Info("shutting down")
	if err := rt.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	if rt.supervisor != nil && rt.supervisor.Status().Phase == supervisor.PhaseRunning {
		select {
		case <-rt.supervisor.Done():
		case <-ctx.Done():
			return fmt.Errorf("waiting for server to exit: %w", ctx.Err())
		}
	}
	return nil
}

// Handler returns the HTTP handler, mainly for tests.
func (rt *Runtime) Handler() http.Handler {
	return rt.server.Handler()
}

// Files returns the sandboxed file operations.
func (rt *Runtime) Files() *fsops.Files { return rt.files }

// Supervisor returns the server supervisor, or nil when none is configured.
func (rt *Runtime) Supervisor() *supervisor.Supervisor { return rt.supervisor }
