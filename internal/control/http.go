// Package control implements the loopback HTTP surface operators use to
// inspect and drive a running relayd process: module lifecycle operations,
// a status endpoint, and Prometheus metrics.
package control

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"
)

// StatusResponse is the payload served from /control/status.
type StatusResponse struct {
	Uptime  string         `json:"uptime"`
	Modules []ModuleStatus `json:"modules"`
}

// ModuleStatus summarizes one loaded module for the status endpoint,
// including per-source health as reported by its source driver(s).
type ModuleStatus struct {
	Name    string                  `json:"name"`
	State   string                  `json:"state"`
	Sources map[string]SourceHealth `json:"sources,omitempty"`
}

// SourceHealth mirrors sourcedriver.Health for JSON exposure without the
// control package importing sourcedriver.
type SourceHealth struct {
	Status              string    `json:"status"`
	LastPollAt          time.Time `json:"last_poll_at"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	EventsInWindow      int       `json:"events_in_window"`
}

// Controller is the subset of runtime operations the control API exposes.
// Defined here, implemented by *runtime.Runtime, to avoid an import cycle
// between the control and runtime packages.
type Controller interface {
	Status(ctx context.Context) StatusResponse
	LoadModule(ctx context.Context, name string) error
	UnloadModule(ctx context.Context, name string) error
	ReloadModule(ctx context.Context, name string) error
	Shutdown(ctx context.Context) error
}

// Server exposes a Controller over a loopback HTTP API plus a /metrics
// endpoint for Prometheus scraping.
type Server struct {
	ctrl Controller
	srv  *http.Server
}

// New builds a Server bound to addr. Pass a port of 0 to let the OS choose
// an ephemeral port; Start returns the address actually bound.
func New(ctrl Controller, addr string) *Server {
	mux := http.NewServeMux()
	s := &Server{ctrl: ctrl, srv: &http.Server{Addr: addr, Handler: mux}}

	mux.HandleFunc("GET /control/status", s.handleStatus)
	mux.HandleFunc("POST /control/module/load", s.handleModuleOp(ctrl.LoadModule))
	mux.HandleFunc("POST /control/module/unload", s.handleModuleOp(ctrl.UnloadModule))
	mux.HandleFunc("POST /control/module/reload", s.handleModuleOp(ctrl.ReloadModule))
	mux.HandleFunc("POST /control/shutdown", s.handleShutdown)
	mux.Handle("GET /metrics", Handler())

	return s
}

type moduleRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status(r.Context()))
}

func (s *Server) handleModuleOp(op func(ctx context.Context, name string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req moduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
			writeJSONError(w, http.StatusBadRequest, "module name is required")
			return
		}
		if err := op(r.Context(), req.Name); err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "shutting down"})
	go func() {
		_ = s.ctrl.Shutdown(context.Background())
	}()
}

// Start binds the listener and begins serving in a background goroutine,
// returning the address actually bound.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return "", err
	}
	go func() {
		_ = s.srv.Serve(ln)
	}()
	return ln.Addr().String(), nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
