package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"aqua-monitor/internal/telemetry"
)

var targets = []telemetry.SpeciesTarget{{Name: "KOI", Threshold: 8}, {Name: "THILAPIAs", Threshold: 7}}

func sample() telemetry.MonitoringState {
	s := telemetry.NewMonitoringState(targets)
	frame := 12
	s.CurrentFrame = &frame
	s.TotalFish = 10
	s.SpeciesCounts["KOI"] = 3
	s.SpeciesCounts["THILAPIAs"] = 7
	s.ConnectionStatus = telemetry.StatusConnected
	s.Alerts = []telemetry.Alert{{ID: "a1", Kind: telemetry.AlertWarning, Source: telemetry.SourceThreshold, Subject: "KOI", Message: "KOI count below threshold (3/8)"}}
	return s
}

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf)
	if err := w.WriteState(sample()); err != nil {
		t.Fatalf("write: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid json %q: %v", buf.String(), err)
	}
	if got["total_fish"] != float64(10) || got["connection_status"] != "connected" || got["frame"] != float64(12) {
		t.Fatalf("unexpected encoding %v", got)
	}
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Fatalf("expected one line per snapshot")
	}
}

func TestFileWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "states.jsonl")
	fw, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	_ = fw.WriteState(sample())
	_ = fw.WriteState(telemetry.NewMonitoringState(targets))
	if err := fw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, _ := os.ReadFile(path)
	if n := strings.Count(string(data), "\n"); n != 2 {
		t.Fatalf("expected 2 lines, got %d", n)
	}
}

type failingWriter struct{ err error }

func (f failingWriter) WriteState(telemetry.MonitoringState) error { return f.err }

func TestMultiWriter(t *testing.T) {
	var a, b bytes.Buffer
	boom := errors.New("boom")
	mw := NewMultiWriter(NewJSONWriter(&a), nil, failingWriter{boom}, NewJSONWriter(&b))
	if err := mw.WriteState(sample()); !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if a.Len() == 0 || b.Len() == 0 {
		t.Fatalf("all writers should receive the snapshot")
	}
}

func TestColorWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewColorWriter(&buf, targets)
	w.now = func() time.Time { return time.Unix(0, 0).UTC() }
	s := sample()
	if err := w.WriteState(s); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"connected", "frame=12", "total=10", "KOI=3/8", "THILAPIAs=7/7", "WARNING", "KOI count below threshold (3/8)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q: %q", want, out)
		}
	}

	buf.Reset()
	_ = w.WriteState(s)
	if strings.Contains(buf.String(), "WARNING") {
		t.Fatalf("alerts already printed must not repeat: %q", buf.String())
	}
}

func TestDrain(t *testing.T) {
	ch := make(chan telemetry.MonitoringState, 2)
	ch <- sample()
	ch <- telemetry.NewMonitoringState(targets)
	close(ch)
	var buf bytes.Buffer
	if err := Drain(context.Background(), ch, NewJSONWriter(&buf)); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if n := strings.Count(buf.String(), "\n"); n != 2 {
		t.Fatalf("expected 2 snapshots, got %d", n)
	}
}

func TestDrainStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Drain(ctx, make(chan telemetry.MonitoringState), NewJSONWriter(nil)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDrainWriteError(t *testing.T) {
	ch := make(chan telemetry.MonitoringState, 1)
	ch <- sample()
	boom := errors.New("disk full")
	if err := Drain(context.Background(), ch, failingWriter{boom}); !errors.Is(err, boom) {
		t.Fatalf("expected write error, got %v", err)
	}
}
