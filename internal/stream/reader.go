package stream

import (
	"context"
	"errors"
	"io"

	"aqua-monitor/internal/logging"
	"aqua-monitor/internal/telemetry"
)

const defaultChunkSize = 4096

type readOptions struct {
	chunkSize int
	onDrop    func(payload string, err error)
}

// Option configures Read.
type Option func(*readOptions)

// WithChunkSize sets the transport read size.
func WithChunkSize(n int) Option {
	return func(o *readOptions) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithDropHook registers a callback for payloads that failed to decode.
func WithDropHook(fn func(payload string, err error)) Option {
	return func(o *readOptions) { o.onDrop = fn }
}

// Read pulls chunks from r, decodes them and hands every event to apply until
// the stream ends, the context is cancelled, or apply returns false. A clean
// EOF returns nil; the pending partial line is discarded in every case.
func Read(ctx context.Context, r io.Reader, apply func(telemetry.StreamEvent) bool, opts ...Option) error {
	o := readOptions{chunkSize: defaultChunkSize}
	for _, opt := range opts {
		opt(&o)
	}
	log := logging.FromContext(ctx)

	dec := &Decoder{Overflow: func(n int) {
		log.Warn("dropping oversized stream line", "bytes", n)
	}}
	defer func() {
		if n := dec.Finish(); n > 0 {
			log.Debug("discarded partial stream line", "bytes", n)
		}
	}()

	buf := make([]byte, o.chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := r.Read(buf)
		if n > 0 {
			for payload := range dec.Feed(buf[:n]) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				ev, err := ParseEvent(payload)
				if err != nil {
					log.Warn("skipping malformed payload", "payload", payload, "err", err)
					if o.onDrop != nil {
						o.onDrop(payload, err)
					}
					continue
				}
				if !ev.Recognized() {
					continue
				}
				if !apply(ev) {
					return nil
				}
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return readErr
		}
	}
}
