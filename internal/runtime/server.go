package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/siriusu/siriusu/internal/apperr"
	"github.com/siriusu/siriusu/internal/auth"
	"github.com/siriusu/siriusu/internal/fsops"
	"github.com/siriusu/siriusu/internal/supervisor"
	"github.com/siriusu/siriusu/internal/telemetry"
)

const (
	maxBodyBytes    = 64 << 20
	requestIDHeader = "X-Request-ID"
)

// StatusReporter reports the supervised server's lifecycle.
type StatusReporter interface {
	Status() supervisor.Status
}

// Server is the HTTP server for file operations and status.
type Server struct {
	files     *fsops.Files
	status    StatusReporter
	mux       *http.ServeMux
	server    *http.Server
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	limiter   *auth.RateLimiter
	startTime time.Time
	token     string
	version   string
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithToken sets the token clients must present. Empty disables auth.
func WithToken(token string) ServerOption {
	return func(s *Server) { s.token = token }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics enables request and operation metrics and GET /metrics.
func WithMetrics(m *telemetry.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithRateLimiter enables per-client rate limiting and auth failure blocking.
func WithRateLimiter(rl *auth.RateLimiter) ServerOption {
	return func(s *Server) { s.limiter = rl }
}

// WithStatusReporter exposes the supervisor state on /healthz and /status.
func WithStatusReporter(r StatusReporter) ServerOption {
	return func(s *Server) { s.status = r }
}

// WithVersion sets the version reported by /healthz.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// NewServer creates a server exposing files over HTTP.
func NewServer(files *fsops.Files, opts ...ServerOption) *Server {
	s := &Server{
		files:     files,
		logger:    slog.Default(),
		startTime: time.Now(),
		version:   "dev",
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /status", s.handleStatus)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	mux.HandleFunc("GET /io/file/{$}", s.handleReadFile)
	mux.HandleFunc("PUT /io/file/{$}", s.handleWriteFile)
	mux.HandleFunc("DELETE /io/file/{$}", s.handleDeleteFile)
	mux.HandleFunc("GET /io/exists/{$}", s.handleExists)
	mux.HandleFunc("GET /io/isFile/{$}", s.handleIsFile)
	mux.HandleFunc("GET /io/isDir/{$}", s.handleIsDir)
	mux.HandleFunc("POST /io/mkdir/{$}", s.handleMkdir)
	mux.HandleFunc("GET /io/list/{$}", s.handleList)
	mux.HandleFunc("DELETE /io/rmdir/{$}", s.handleRemoveDir)
	mux.HandleFunc("POST /io/copy", s.handleCopy)
	mux.HandleFunc("GET /io/resolve/{$}", s.handleResolve)

	s.mux = mux
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler for use with httptest or custom servers.
func (s *Server) Handler() http.Handler {
	var h http.Handler = targetPath(s.mux)
	h = auth.Middleware(s.token, []string{"/healthz", "/metrics"}, s.limiter)(h)
	if s.limiter != nil {
		h = s.limiter.Middleware(auth.ClientIP)(h)
	}
	if s.metrics != nil {
		h = s.metrics.InstrumentHandler(h)
	}
	return s.requestID(h)
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("server running", "url", "http://"+ln.Addr().String())
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := telemetry.WithRequestID(r.Context(), r.Header.Get(requestIDHeader))
		w.Header().Set(requestIDHeader, telemetry.RequestID(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type targetKey struct{}

// targetPath moves the path operand of /io/<op>/<path> into the request
// context and routes on /io/<op>/ alone. ServeMux would otherwise clean
// the operand, turning "/io/file//abs" into a relative path. A ?path=
// query parameter overrides the operand.
func targetPath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rest, ok := strings.CutPrefix(r.URL.Path, "/io/")
		if !ok || rest == "copy" {
			next.ServeHTTP(w, r)
			return
		}
		op, target, _ := strings.Cut(rest, "/")
		if q := r.URL.Query(); q.Has("path") {
			target = q.Get("path")
		}

		r2 := r.WithContext(context.WithValue(r.Context(), targetKey{}, target))
		u := *r.URL
		u.Path = "/io/" + op + "/"
		u.RawPath = ""
		r2.URL = &u
		next.ServeHTTP(w, r2)
	})
}

func target(r *http.Request) string {
	t, _ := r.Context().Value(targetKey{}).(string)
	return t
}

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error,omitempty"`
	Kind    string      `json:"kind,omitempty"`
}

// respond writes the outcome of op. Failures keep HTTP 200; the in-game
// client treats any other status as the server being unreachable.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, op string, data interface{}, err error) {
	if err != nil {
		kind := apperr.KindOf(err)
		s.metrics.RecordFSOp(op, kind.String())
		telemetry.RequestLogger(r.Context(), s.logger).Debug("operation failed", "op", op, "kind", kind.String(), "error", err)
		writeJSON(w, http.StatusOK, envelope{Success: false, Error: err.Error(), Kind: kind.String()})
		return
	}
	s.metrics.RecordFSOp(op, "ok")
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

// probe answers an existence or type question. A false answer is reported
// as a failure so clients that only look at success get the right result.
func (s *Server) probe(w http.ResponseWriter, r *http.Request, op string, ok bool, err error, negative string) {
	if err != nil || ok {
		s.respond(w, r, op, ok, err)
		return
	}
	s.metrics.RecordFSOp(op, "false")
	writeJSON(w, http.StatusOK, envelope{Success: false, Data: false, Error: negative})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	data := map[string]interface{}{
		"status":  "healthy",
		"uptime":  time.Since(s.startTime).String(),
		"version": s.version,
	}
	if s.status != nil {
		data["supervisor"] = s.status.Status().State
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	data := map[string]interface{}{
		"root":    s.files.Root(),
		"sandbox": s.files.SandboxEnabled(),
	}
	if s.status != nil {
		data["supervisor"] = s.status.Status()
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

// handleReadFile returns file content as parsed JSON when it is valid JSON and
// as a string otherwise. Files carry no type, so text written as "123",
// "true" or "null" reads back as a number, boolean or null.
func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	data, err := s.files.ReadFile(target(r))
	if err != nil {
		s.respond(w, r, "read", nil, err)
		return
	}
	if json.Valid(data) {
		s.respond(w, r, "read", json.RawMessage(data), nil)
		return
	}
	s.respond(w, r, "read", string(data), nil)
}

// handleWriteFile stores a JSON string body as its unquoted text and any
// other body verbatim.
func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.respond(w, r, "write", nil, apperr.New(apperr.InvalidRequest, "write", target(r), err))
		return
	}
	var text string
	if err := json.Unmarshal(body, &text); err == nil {
		body = []byte(text)
	}
	s.respond(w, r, "write", nil, s.files.WriteFile(target(r), body))
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, "delete", nil, s.files.DeleteFile(target(r)))
}

func (s *Server) handleExists(w http.ResponseWriter, r *http.Request) {
	ok, err := s.files.Exists(target(r))
	s.probe(w, r, "exists", ok, err, "path does not exist")
}

func (s *Server) handleIsFile(w http.ResponseWriter, r *http.Request) {
	ok, err := s.files.IsFile(target(r))
	s.probe(w, r, "isFile", ok, err, "not a file")
}

func (s *Server) handleIsDir(w http.ResponseWriter, r *http.Request) {
	ok, err := s.files.IsDir(target(r))
	s.probe(w, r, "isDir", ok, err, "not a directory")
}

func (s *Server) handleMkdir(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, "mkdir", nil, s.files.Mkdir(target(r)))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	names, err := s.files.List(target(r))
	s.respond(w, r, "list", names, err)
}

func (s *Server) handleRemoveDir(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, "rmdir", nil, s.files.RemoveDir(target(r)))
}

type copyRequest struct {
	Src  string `json:"src"`
	Dest string `json:"dest"`
}

func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	var req copyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.respond(w, r, "copy", nil, apperr.New(apperr.InvalidRequest, "copy", "", err))
		return
	}
	if req.Src == "" || req.Dest == "" {
		s.respond(w, r, "copy", nil, apperr.New(apperr.InvalidRequest, "copy", "", errors.New("src and dest are required")))
		return
	}
	s.respond(w, r, "copy", nil, s.files.Copy(req.Src, req.Dest))
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	resolved, err := s.files.Resolve(target(r))
	s.respond(w, r, "resolve", resolved, err)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
