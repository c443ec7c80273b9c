// Monitoring state and stream event types
package telemetry

import (
	"maps"
	"slices"
)

// ConnectionStatus is the externally visible state of the push connection.
type ConnectionStatus string

// Connection status constants.
const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
)

// SpeciesTarget is a configured species with its minimum expected count.
type SpeciesTarget struct {
	Name      string `json:"name"`
	Threshold int    `json:"threshold"`
	Color     string `json:"color,omitempty"`
}

// MonitoringState is the aggregate view of one monitoring session.
// Values are replaced on every update; holders must not mutate the
// SpeciesCounts map or the Alerts slice.
type MonitoringState struct {
	TotalFish        int              `json:"total_fish"`
	SpeciesCounts    map[string]int   `json:"species_count"`
	CurrentFrame     *int             `json:"frame,omitempty"`
	GeofenceCrossed  bool             `json:"geofence_crossed"`
	Alerts           []Alert          `json:"alerts"`
	ConnectionStatus ConnectionStatus `json:"connection_status"`
}

// NewMonitoringState returns the zero state for the given targets: every
// configured species at 0, no alerts, disconnected.
func NewMonitoringState(targets []SpeciesTarget) MonitoringState {
	counts := make(map[string]int, len(targets))
	for _, t := range targets {
		counts[t.Name] = 0
	}
	return MonitoringState{
		SpeciesCounts:    counts,
		Alerts:           []Alert{},
		ConnectionStatus: StatusDisconnected,
	}
}

// Clone returns a deep copy safe to modify.
func (s MonitoringState) Clone() MonitoringState {
	out := s
	out.SpeciesCounts = maps.Clone(s.SpeciesCounts)
	if out.SpeciesCounts == nil {
		out.SpeciesCounts = map[string]int{}
	}
	out.Alerts = slices.Clone(s.Alerts)
	if out.Alerts == nil {
		out.Alerts = []Alert{}
	}
	if s.CurrentFrame != nil {
		f := *s.CurrentFrame
		out.CurrentFrame = &f
	}
	return out
}

// StreamEvent is one decoded sparse update. Nil fields were absent from the
// payload. An event with every field nil is unrecognized and changes nothing.
type StreamEvent struct {
	Frame           *int
	TotalFish       *int
	SpeciesCounts   map[string]int
	GeofenceCrossed *bool
	// End carries the backend's end-of-analysis notice.
	End *string
	// BackendError carries an error reported in-band by the backend.
	BackendError *string
}

// Recognized reports whether the event carries any field the reducer uses.
func (e StreamEvent) Recognized() bool {
	return e.Frame != nil || e.TotalFish != nil || e.SpeciesCounts != nil ||
		e.GeofenceCrossed != nil || e.End != nil || e.BackendError != nil
}
