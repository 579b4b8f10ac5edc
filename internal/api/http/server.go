package httpapi

import (
	stdcontext "context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Paintersrp/tether/internal/api"
	"github.com/Paintersrp/tether/internal/metrics"
)

const (
	defaultAddr            = "127.0.0.1:9464"
	defaultReadHeader      = 5 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// Config controls construction of the API server.
type Config struct {
	Addr              string
	Controller        api.Controller
	Listener          net.Listener
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server wraps an http.Server exposing supervisor status and metrics.
type Server struct {
	ctrl            api.Controller
	srv             *http.Server
	listener        net.Listener
	shutdownTimeout time.Duration
}

// NewServer constructs a Server with sane defaults.
func NewServer(cfg Config) (*Server, error) {
	if isNilController(cfg.Controller) {
		return nil, fmt.Errorf("controller is required (got %T)", cfg.Controller)
	}
	addr := normalizeAddr(cfg.Addr)
	mux := http.NewServeMux()
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	if srv.ReadHeaderTimeout == 0 {
		srv.ReadHeaderTimeout = defaultReadHeader
	}
	server := &Server{
		ctrl:            cfg.Controller,
		srv:             srv,
		listener:        cfg.Listener,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	if server.shutdownTimeout == 0 {
		server.shutdownTimeout = defaultShutdownTimeout
	}
	server.registerRoutes(mux)
	return server, nil
}

func isNilController(ctrl api.Controller) bool {
	if ctrl == nil {
		return true
	}
	v := reflect.ValueOf(ctrl)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

// Run serves until ctx is cancelled or Shutdown is called.
func (s *Server) Run(ctx stdcontext.Context) error {
	if ctx == nil {
		ctx = stdcontext.Background()
	}
	errCh := make(chan error, 1)
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Shutdown()
		case <-stop:
		}
	}()

	go func() {
		var err error
		if s.listener != nil {
			err = s.srv.Serve(s.listener)
		} else {
			err = s.srv.ListenAndServe()
		}
		errCh <- err
	}()

	err := <-errCh
	close(stop)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server within the configured timeout.
func (s *Server) Shutdown() error {
	ctx, cancel := stdcontext.WithTimeout(stdcontext.Background(), s.shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.srv.Addr
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/workers/", s.handleWorker)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	result, err := s.ctrl.Status(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleWorker(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	name := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/api/v1/workers/"))
	if name == "" || strings.Contains(name, "/") {
		s.writeErrorWithDetails(w, fmt.Errorf("%w: invalid worker path", api.ErrUnknownWorker), map[string]any{"worker": name})
		return
	}
	result, err := s.ctrl.Worker(r.Context(), name)
	if err != nil {
		s.writeErrorWithDetails(w, err, map[string]any{"worker": name})
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.ctrl.Status(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, method string) {
	w.Header().Set("Allow", method)
	s.writeJSON(w, http.StatusMethodNotAllowed, errorBody{
		Code:    "method_not_allowed",
		Message: fmt.Sprintf("method %s not allowed", method),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeErrorWithDetails(w, err, nil)
}

func (s *Server) writeErrorWithDetails(w http.ResponseWriter, err error, extra map[string]any) {
	status, code := classifyError(err)
	details := map[string]any{
		"timestamp": time.Now().UTC(),
	}
	for k, v := range extra {
		details[k] = v
	}
	s.writeJSON(w, status, errorBody{
		Code:    code,
		Message: err.Error(),
		Details: details,
	})
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, stdcontext.Canceled):
		return 499, "context_canceled"
	case errors.Is(err, api.ErrUnknownWorker):
		return http.StatusNotFound, "unknown_worker"
	case errors.Is(err, api.ErrNotRunning):
		return http.StatusServiceUnavailable, "not_running"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func normalizeAddr(addr string) string {
	if strings.TrimSpace(addr) == "" {
		return defaultAddr
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		// If parsing failed, trust caller.
		return addr
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
