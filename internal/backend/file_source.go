package backend

import (
	"context"
	"io"
	"os"
	"time"
)

// FileSource serves a captured stream from disk in place of the live backend.
// Stop requests always succeed.
type FileSource struct {
	Path string
	// Delay paces reads to approximate live delivery. Zero reads as fast as possible.
	Delay time.Duration
}

// OpenStream opens the capture file.
func (f *FileSource) OpenStream(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	if f.Delay <= 0 {
		return file, nil
	}
	return &pacedReader{ctx: ctx, rc: file, delay: f.Delay}, nil
}

// StopAnalysis always confirms.
func (f *FileSource) StopAnalysis(context.Context) (StopResult, error) {
	return StopResult{Success: true, Message: "replay stopped"}, nil
}

type pacedReader struct {
	ctx   context.Context
	rc    io.ReadCloser
	delay time.Duration
}

func (p *pacedReader) Read(b []byte) (int, error) {
	t := time.NewTimer(p.delay)
	defer t.Stop()
	select {
	case <-p.ctx.Done():
		return 0, p.ctx.Err()
	case <-t.C:
	}
	return p.rc.Read(b)
}

func (p *pacedReader) Close() error { return p.rc.Close() }
