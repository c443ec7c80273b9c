package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/analyze" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("missing Accept header")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"total_fish\":5}\n\n")
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/"})
	body, err := c.OpenStream(context.Background())
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	if string(data) != "data: {\"total_fish\":5}\n\n" {
		t.Fatalf("unexpected body %q", data)
	}
}

func TestOpenStreamHandshakeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":"Model not loaded."}`)
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).OpenStream(context.Background())
	if !errors.Is(err, ErrHandshake) {
		t.Fatalf("expected ErrHandshake, got %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusInternalServerError || se.Message != "Model not loaded." {
		t.Fatalf("expected status error with backend message, got %v", err)
	}
}

func TestOpenStreamWrongContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html></html>")
	}))
	defer srv.Close()

	if _, err := NewClient(Config{BaseURL: srv.URL}).OpenStream(context.Background()); !errors.Is(err, ErrHandshake) {
		t.Fatalf("expected ErrHandshake for html response, got %v", err)
	}
}

func TestOpenStreamUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	if _, err := NewClient(Config{BaseURL: url}).OpenStream(context.Background()); !errors.Is(err, ErrHandshake) {
		t.Fatalf("expected ErrHandshake for closed server, got %v", err)
	}
}

func TestStopAnalysis(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		want    StopResult
		wantErr bool
	}{
		{"confirmed", http.StatusOK, `{"success":true,"message":"Analysis stopped."}`, StopResult{Success: true, Message: "Analysis stopped."}, false},
		{"empty ok", http.StatusOK, ``, StopResult{Success: true}, false},
		{"explicit failure", http.StatusOK, `{"success":false,"message":"busy"}`, StopResult{Success: false, Message: "busy"}, false},
		{"error status", http.StatusConflict, `{"error":"No analysis running"}`, StopResult{Success: false, Message: "No analysis running"}, false},
		{"error status no body", http.StatusBadGateway, ``, StopResult{Success: false, Message: "failed to stop analysis"}, false},
		{"garbage", http.StatusOK, `not json`, StopResult{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/stop_analysis" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			}))
			defer srv.Close()

			got, err := NewClient(Config{BaseURL: srv.URL}).StopAnalysis(context.Background())
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.txt")
	if err := os.WriteFile(path, []byte("data: {\"frame\":1}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	src := &FileSource{Path: path}
	body, err := src.OpenStream(context.Background())
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	data, _ := io.ReadAll(body)
	body.Close()
	if string(data) != "data: {\"frame\":1}\n" {
		t.Fatalf("unexpected data %q", data)
	}
	res, err := src.StopAnalysis(context.Background())
	if err != nil || !res.Success {
		t.Fatalf("expected successful stop, got %+v %v", res, err)
	}
}

func TestFileSourceCancelledRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.txt")
	if err := os.WriteFile(path, []byte("data: {}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	body, err := (&FileSource{Path: path, Delay: 1 << 40}).OpenStream(ctx)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer body.Close()
	cancel()
	if _, err := body.Read(make([]byte, 8)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
