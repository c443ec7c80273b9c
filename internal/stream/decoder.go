// Line decoder for the analysis push stream
package stream

import (
	"bytes"
	"iter"
)

// DataPrefix marks a line that carries one JSON payload.
const DataPrefix = "data:"

// MaxLineBytes caps the pending partial line. Longer lines are dropped.
const MaxLineBytes = 1 << 20

// Decoder splits raw stream chunks into payload strings. Chunks need not be
// aligned to line boundaries; the trailing partial line is kept until the next
// Feed. A Decoder belongs to a single connection and is not safe for
// concurrent use.
type Decoder struct {
	pending []byte
	// Overflow is called when a partial line exceeds MaxLineBytes and is dropped.
	Overflow func(dropped int)
}

// Feed appends chunk to the pending buffer and returns the payloads of every
// complete prefixed line. Lines are consumed as the sequence is iterated;
// lines left unread when iteration stops are returned by the next Feed.
func (d *Decoder) Feed(chunk []byte) iter.Seq[string] {
	d.pending = append(d.pending, chunk...)
	return func(yield func(string) bool) {
		for {
			i := bytes.IndexByte(d.pending, '\n')
			if i < 0 {
				d.trimOverflow()
				return
			}
			line := d.pending[:i]
			d.pending = d.pending[i+1:]
			payload, ok := extractPayload(line)
			if !ok {
				continue
			}
			if !yield(payload) {
				return
			}
		}
	}
}

// Finish discards any non-terminated pending bytes and returns how many were
// dropped. The Decoder can be reused afterwards.
func (d *Decoder) Finish() int {
	n := len(d.pending)
	d.pending = nil
	return n
}

// Pending returns the number of buffered bytes not yet terminated by a newline.
func (d *Decoder) Pending() int { return len(d.pending) }

func (d *Decoder) trimOverflow() {
	if len(d.pending) == 0 {
		d.pending = nil
		return
	}
	if len(d.pending) <= MaxLineBytes {
		return
	}
	n := len(d.pending)
	d.pending = nil
	if d.Overflow != nil {
		d.Overflow(n)
	}
}

func extractPayload(line []byte) (string, bool) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	rest, ok := bytes.CutPrefix(line, []byte(DataPrefix))
	if !ok {
		return "", false
	}
	rest = bytes.TrimPrefix(rest, []byte{' '})
	if len(bytes.TrimSpace(rest)) == 0 {
		return "", false
	}
	return string(rest), true
}
