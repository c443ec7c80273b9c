package admin

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"aqua-monitor/internal/logging"
	"aqua-monitor/internal/monitor"
	"aqua-monitor/internal/telemetry"
)

// Controller is the part of monitor.Controller the admin surface drives.
type Controller interface {
	Snapshot() telemetry.MonitoringState
	Targets() []telemetry.SpeciesTarget
	Phase() monitor.Phase
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type Server struct {
	ctl     Controller
	metrics http.Handler
	log     *slog.Logger
	tpl     *template.Template
}

//go:embed templates/index.html
var content embed.FS

// NewServer wires the control surface. metrics may be nil.
func NewServer(ctl Controller, metrics http.Handler, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	tpl := template.Must(template.New("index.html").ParseFS(content, "templates/index.html"))
	return &Server{ctl: ctl, metrics: metrics, log: log, tpl: tpl}
}

// StateResponse is the body of GET /api/state.
type StateResponse struct {
	State  telemetry.MonitoringState `json:"state"`
	Phase  string                    `json:"phase"`
	Health telemetry.Health          `json:"health"`
}

type speciesRow struct {
	Name      string
	Count     int
	Threshold int
	Low       bool
}

// Handler returns the routed mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("POST /api/start", s.handleStart)
	mux.HandleFunc("POST /api/stop", s.handleStop)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	s.log.Info("admin server listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) snapshot() StateResponse {
	st := s.ctl.Snapshot()
	return StateResponse{
		State:  st,
		Phase:  s.ctl.Phase().String(),
		Health: telemetry.Summarize(st, s.ctl.Targets()),
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	resp := s.snapshot()
	var rows []speciesRow
	for _, t := range s.ctl.Targets() {
		n := resp.State.SpeciesCounts[t.Name]
		rows = append(rows, speciesRow{Name: t.Name, Count: n, Threshold: t.Threshold, Low: n < t.Threshold})
	}
	data := struct {
		StateResponse
		Rows []speciesRow
	}{resp, rows}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tpl.Execute(w, data); err != nil {
		s.log.Error("render index", "err", err)
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx := logging.NewContext(r.Context(), s.log)
	if err := s.ctl.Start(ctx); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, monitor.ErrAlreadyActive) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	s.respond(w, r, http.StatusAccepted)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	ctx := logging.NewContext(r.Context(), s.log)
	if err := s.ctl.Stop(ctx); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, monitor.ErrStopRejected) || errors.Is(err, monitor.ErrStopFailed) {
			status = http.StatusBadGateway
		}
		writeError(w, status, err)
		return
	}
	s.respond(w, r, http.StatusOK)
}

// respond redirects browser form posts back to the index and answers API
// clients with the current state.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int) {
	if r.Header.Get("Content-Type") == "application/x-www-form-urlencoded" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, status, s.snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
