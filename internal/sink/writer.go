// Snapshot writers for headless monitoring
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"

	"aqua-monitor/internal/telemetry"
)

// StateWriter receives every state replacement.
type StateWriter interface {
	WriteState(telemetry.MonitoringState) error
}

// JSONWriter prints each snapshot as one JSON line.
type JSONWriter struct {
	enc *json.Encoder
}

// NewJSONWriter creates a JSONWriter on out, or os.Stdout when out is nil.
func NewJSONWriter(out io.Writer) *JSONWriter {
	if out == nil {
		out = os.Stdout
	}
	return &JSONWriter{enc: json.NewEncoder(out)}
}

// WriteState outputs the snapshot in JSON format.
func (w *JSONWriter) WriteState(s telemetry.MonitoringState) error {
	return w.enc.Encode(s)
}

// FileWriter appends snapshots to a JSONL file.
type FileWriter struct {
	f *os.File
	*JSONWriter
}

// NewFileWriter creates or truncates path.
func NewFileWriter(path string) (*FileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &FileWriter{f: f, JSONWriter: NewJSONWriter(f)}, nil
}

// Close closes the underlying file.
func (w *FileWriter) Close() error { return w.f.Close() }

// MultiWriter fans snapshots out to several writers.
type MultiWriter struct {
	writers []StateWriter
}

// NewMultiWriter creates a MultiWriter. Nil writers are skipped.
func NewMultiWriter(ws ...StateWriter) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range ws {
		if w != nil {
			mw.writers = append(mw.writers, w)
		}
	}
	return mw
}

// WriteState sends the snapshot to every writer and joins their errors.
func (mw *MultiWriter) WriteState(s telemetry.MonitoringState) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.WriteState(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Drain writes every snapshot from updates until the channel closes or ctx
// is cancelled. Write errors stop the loop.
func Drain(ctx context.Context, updates <-chan telemetry.MonitoringState, w StateWriter) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-updates:
			if !ok {
				return nil
			}
			if err := w.WriteState(s); err != nil {
				return err
			}
		}
	}
}
