// Event reducer and alert derivation for monitoring sessions
package monitor

import (
	"slices"
	"time"

	"aqua-monitor/internal/telemetry"
)

const (
	geofenceMessage   = "Geofence boundary crossed!"
	geofenceSubject   = "geofence"
	connectionMessage = "Connection error - please retry"
)

// Reducer folds stream events into monitoring state.
type Reducer struct {
	Targets []telemetry.SpeciesTarget
	// Now stamps new alerts; nil means time.Now.
	Now func() time.Time
}

// NewReducer returns a Reducer for the given targets.
func NewReducer(targets []telemetry.SpeciesTarget) Reducer {
	return Reducer{Targets: slices.Clone(targets)}
}

func (r Reducer) mint(kind telemetry.AlertKind, source telemetry.AlertSource, subject, message string) telemetry.Alert {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	return telemetry.NewAlert(kind, source, subject, message, now().UTC())
}

// Apply returns the state after ev together with the alerts ev raised. Fields
// absent from ev keep their previous value. The input state is not modified.
func (r Reducer) Apply(s telemetry.MonitoringState, ev telemetry.StreamEvent) (telemetry.MonitoringState, []telemetry.Alert) {
	next := s
	alerts := s.Alerts

	if ev.Frame != nil {
		f := *ev.Frame
		next.CurrentFrame = &f
	}
	if ev.TotalFish != nil {
		next.TotalFish = *ev.TotalFish
	}
	if ev.SpeciesCounts != nil {
		counts := make(map[string]int, len(r.Targets))
		for _, t := range r.Targets {
			counts[t.Name] = ev.SpeciesCounts[t.Name]
		}
		next.SpeciesCounts = counts
		alerts = DeriveAlerts(counts, r.Targets, alerts, r.mint)
	}
	if ev.GeofenceCrossed != nil {
		crossed := *ev.GeofenceCrossed
		if crossed && !s.GeofenceCrossed {
			alerts = appendAlert(alerts, r.mint(telemetry.AlertWarning, telemetry.SourceGeofence, geofenceSubject, geofenceMessage))
		}
		next.GeofenceCrossed = crossed
	}
	if ev.BackendError != nil {
		alerts = appendAlert(alerts, r.mint(telemetry.AlertError, telemetry.SourceBackend, "", *ev.BackendError))
	}
	if ev.End != nil {
		alerts = appendAlert(alerts, r.mint(telemetry.AlertInfo, telemetry.SourceBackend, "end", *ev.End))
	}

	next.Alerts = alerts
	return next, raised(s.Alerts, next.Alerts)
}

// ConnectionFailed returns s in the error status with one connection alert
// appended.
func (r Reducer) ConnectionFailed(s telemetry.MonitoringState, detail string) (telemetry.MonitoringState, telemetry.Alert) {
	msg := connectionMessage
	if detail != "" {
		msg += ": " + detail
	}
	a := r.mint(telemetry.AlertError, telemetry.SourceConnection, "stream", msg)
	next := s
	next.Alerts = appendAlert(s.Alerts, a)
	next.ConnectionStatus = telemetry.StatusError
	return next, a
}

// appendAlert never writes into a backing array that an older state may share.
func appendAlert(alerts []telemetry.Alert, a telemetry.Alert) []telemetry.Alert {
	out := make([]telemetry.Alert, len(alerts), len(alerts)+1)
	copy(out, alerts)
	return append(out, a)
}

func raised(before, after []telemetry.Alert) []telemetry.Alert {
	known := make(map[string]bool, len(before))
	for _, a := range before {
		known[a.ID] = true
	}
	var out []telemetry.Alert
	for _, a := range after {
		if !known[a.ID] {
			out = append(out, a)
		}
	}
	return out
}
