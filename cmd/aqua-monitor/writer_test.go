package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"aqua-monitor/internal/sink"
	"aqua-monitor/internal/telemetry"
)

var targets = []telemetry.SpeciesTarget{{Name: "KOI", Threshold: 8}}

func TestNewStateWriterFormats(t *testing.T) {
	var buf bytes.Buffer
	w, cleanup, err := newStateWriter("json", targets, &buf, "")
	if err != nil {
		t.Fatalf("newStateWriter returned error: %v", err)
	}
	cleanup()
	if _, ok := w.(*sink.JSONWriter); !ok {
		t.Fatalf("expected *sink.JSONWriter, got %T", w)
	}

	w, _, err = newStateWriter("text", targets, &buf, "")
	if err != nil {
		t.Fatalf("newStateWriter returned error: %v", err)
	}
	if _, ok := w.(*sink.ColorWriter); !ok {
		t.Fatalf("expected *sink.ColorWriter, got %T", w)
	}

	if _, _, err := newStateWriter("xml", targets, &buf, ""); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestNewStateWriterRecordsToFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "snapshots.jsonl")
	w, cleanup, err := newStateWriter("text", targets, &buf, path)
	if err != nil {
		t.Fatalf("newStateWriter returned error: %v", err)
	}
	if _, ok := w.(*sink.MultiWriter); !ok {
		t.Fatalf("expected *sink.MultiWriter, got %T", w)
	}
	if err := w.WriteState(telemetry.NewMonitoringState(targets)); err != nil {
		t.Fatalf("write: %v", err)
	}
	cleanup()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"connection_status":"disconnected"`) {
		t.Fatalf("unexpected file content %q", data)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected text output as well")
	}
}
