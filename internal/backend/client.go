// HTTP client for the detection backend
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

// ErrHandshake reports that the stream endpoint did not acknowledge the
// stream open.
var ErrHandshake = errors.New("stream handshake failed")

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: backend returned %d", e.Op, e.StatusCode)
}

// StopResult is the backend's answer to a stop-analysis request.
type StopResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Config holds the endpoints used by Client.
type Config struct {
	BaseURL     string
	StreamPath  string
	StopPath    string
	StopTimeout time.Duration
}

// Client talks to the detection backend over HTTP.
type Client struct {
	cfg         Config
	streamHTTP  *http.Client
	controlHTTP *http.Client
}

const defaultStopTimeout = 10 * time.Second

// NewClient returns a Client. The stream connection has no timeout; the stop
// call is bounded by cfg.StopTimeout.
func NewClient(cfg Config) *Client {
	if cfg.StreamPath == "" {
		cfg.StreamPath = "/analyze"
	}
	if cfg.StopPath == "" {
		cfg.StopPath = "/stop_analysis"
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:         cfg,
		streamHTTP:  &http.Client{},
		controlHTTP: &http.Client{Timeout: cfg.StopTimeout},
	}
}

// OpenStream starts an analysis run and returns its event stream. A
// successful return is the stream-open acknowledgement.
func (c *Client) OpenStream(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+c.cfg.StreamPath, bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamHTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, fmt.Errorf("%w: %w", ErrHandshake, &StatusError{
			Op:         "open stream",
			StatusCode: resp.StatusCode,
			Message:    readErrorMessage(resp.Body),
		})
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err == nil && mt != "text/event-stream" {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: unexpected content type %q", ErrHandshake, ct)
		}
	}
	return resp.Body, nil
}

// StopAnalysis asks the backend to stop the running analysis. A backend that
// answers with an error status yields Success=false and a nil error; err is
// reserved for requests that never got an answer.
func (c *Client) StopAnalysis(ctx context.Context) (StopResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+c.cfg.StopPath, nil)
	if err != nil {
		return StopResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.controlHTTP.Do(req)
	if err != nil {
		return StopResult{}, fmt.Errorf("stop analysis: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Success *bool  `json:"success"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := body.Error
		if msg == "" {
			msg = body.Message
		}
		if msg == "" {
			msg = "failed to stop analysis"
		}
		return StopResult{Success: false, Message: msg}, nil
	}
	if decodeErr != nil && !errors.Is(decodeErr, io.EOF) {
		return StopResult{}, fmt.Errorf("stop analysis: decode response: %w", decodeErr)
	}
	// A 2xx without an explicit success flag counts as confirmation.
	ok := body.Success == nil || *body.Success
	msg := body.Message
	if !ok && msg == "" {
		msg = body.Error
	}
	return StopResult{Success: ok, Message: msg}, nil
}

func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4<<10))
	if err != nil || len(data) == 0 {
		return ""
	}
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(data))
}
