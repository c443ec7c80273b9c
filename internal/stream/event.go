package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"aqua-monitor/internal/telemetry"
)

// ErrInvalidPayload reports a payload that is valid JSON but not a usable event.
var ErrInvalidPayload = errors.New("invalid event payload")

// wirePayload is the JSON shape emitted by the analysis backend.
type wirePayload struct {
	Frame           *int           `json:"frame"`
	TotalFish       *int           `json:"total_fish"`
	SpeciesCount    map[string]int `json:"species_count"`
	Species         map[string]int `json:"species"`
	GeofenceCrossed *bool          `json:"geofence_crossed"`
	Event           string         `json:"event"`
	Message         string         `json:"message"`
	Error           *string        `json:"error"`
}

// ParseEvent decodes one payload into a sparse StreamEvent.
func ParseEvent(payload string) (telemetry.StreamEvent, error) {
	if bytes.Equal(bytes.TrimSpace([]byte(payload)), []byte("null")) {
		return telemetry.StreamEvent{}, fmt.Errorf("%w: null payload", ErrInvalidPayload)
	}
	var w wirePayload
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return telemetry.StreamEvent{}, fmt.Errorf("decode payload: %w", err)
	}
	if w.Frame != nil && *w.Frame < 0 {
		return telemetry.StreamEvent{}, fmt.Errorf("%w: negative frame %d", ErrInvalidPayload, *w.Frame)
	}
	if w.TotalFish != nil && *w.TotalFish < 0 {
		return telemetry.StreamEvent{}, fmt.Errorf("%w: negative total_fish %d", ErrInvalidPayload, *w.TotalFish)
	}
	counts := w.SpeciesCount
	if counts == nil {
		counts = w.Species
	}
	for name, n := range counts {
		if n < 0 {
			return telemetry.StreamEvent{}, fmt.Errorf("%w: negative count %d for %q", ErrInvalidPayload, n, name)
		}
	}

	ev := telemetry.StreamEvent{
		Frame:           w.Frame,
		TotalFish:       w.TotalFish,
		SpeciesCounts:   counts,
		GeofenceCrossed: w.GeofenceCrossed,
		BackendError:    w.Error,
	}
	if w.Event == "end" {
		msg := w.Message
		if msg == "" {
			msg = "Analysis ended."
		}
		ev.End = &msg
	}
	return ev, nil
}
