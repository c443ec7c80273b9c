package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"aqua-monitor/internal/monitor"
	"aqua-monitor/internal/telemetry"
)

var targets = []telemetry.SpeciesTarget{{Name: "KOI", Threshold: 8}}

type fakeController struct {
	state    telemetry.MonitoringState
	phase    monitor.Phase
	startErr error
	stopErr  error
	starts   int
	stops    int
}

func newFakeController() *fakeController {
	return &fakeController{state: telemetry.NewMonitoringState(targets)}
}

func (f *fakeController) Snapshot() telemetry.MonitoringState { return f.state.Clone() }
func (f *fakeController) Targets() []telemetry.SpeciesTarget  { return targets }
func (f *fakeController) Phase() monitor.Phase                { return f.phase }

func (f *fakeController) Start(context.Context) error {
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.phase = monitor.PhaseConnecting
	return nil
}

func (f *fakeController) Stop(context.Context) error {
	f.stops++
	if f.stopErr != nil {
		return f.stopErr
	}
	f.phase = monitor.PhaseClosed
	return nil
}

func TestHandleState(t *testing.T) {
	ctl := newFakeController()
	ctl.state.TotalFish = 9
	ctl.state.SpeciesCounts["KOI"] = 9
	ctl.phase = monitor.PhaseOpen
	server := NewServer(ctl, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status OK, got %v", resp.StatusCode)
	}
	var data StateResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if data.State.TotalFish != 9 || data.Phase != "open" || data.Health != telemetry.HealthGood {
		t.Errorf("unexpected state response: %+v", data)
	}
}

func TestHandleStart(t *testing.T) {
	ctl := newFakeController()
	server := NewServer(ctl, nil, nil)

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/start", nil))
	if w.Code != http.StatusAccepted || ctl.starts != 1 {
		t.Fatalf("expected 202 and one start, got %d / %d", w.Code, ctl.starts)
	}

	ctl.startErr = monitor.ErrAlreadyActive
	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/start", nil))
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate start, got %d", w.Code)
	}
}

func TestHandleStop(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"confirmed", nil, http.StatusOK},
		{"rejected", &monitor.StopRejectedError{Message: "busy"}, http.StatusBadGateway},
		{"unreachable", fmt.Errorf("%w: dial tcp", monitor.ErrStopFailed), http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctl := newFakeController()
			ctl.phase = monitor.PhaseOpen
			ctl.stopErr = tc.err
			w := httptest.NewRecorder()
			NewServer(ctl, nil, nil).Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/stop", nil))
			if w.Code != tc.want {
				t.Fatalf("got %d, want %d", w.Code, tc.want)
			}
			if tc.err != nil && !strings.Contains(w.Body.String(), "error") {
				t.Fatalf("expected error body, got %s", w.Body.String())
			}
		})
	}
}

func TestFormPostRedirects(t *testing.T) {
	ctl := newFakeController()
	req := httptest.NewRequest(http.MethodPost, "/api/start", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	NewServer(ctl, nil, nil).Handler().ServeHTTP(w, req)
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect to index, got %d %q", w.Code, w.Header().Get("Location"))
	}
}

func TestHandleIndex(t *testing.T) {
	ctl := newFakeController()
	ctl.state.SpeciesCounts["KOI"] = 3
	ctl.state.Alerts = []telemetry.Alert{{Kind: telemetry.AlertWarning, Message: "KOI count below threshold (3/8)"}}
	w := httptest.NewRecorder()
	NewServer(ctl, nil, nil).Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "KOI count below threshold (3/8)") || !strings.Contains(body, "needs_attention") {
		t.Fatalf("index missing content:\n%s", body)
	}
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "aqua_total_fish 0\n")
	})
	w := httptest.NewRecorder()
	NewServer(newFakeController(), metrics, nil).Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), "aqua_total_fish") {
		t.Fatalf("metrics not served: %q", w.Body.String())
	}
}

func TestStartShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(newFakeController(), nil, nil).Start(ctx, "127.0.0.1:0") }()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start returned %v", err)
	}
}
