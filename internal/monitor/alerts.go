package monitor

import (
	"fmt"

	"aqua-monitor/internal/telemetry"
)

// AlertMinter creates a new alert. Reducers take it as a parameter so tests can
// pin IDs and timestamps.
type AlertMinter func(kind telemetry.AlertKind, source telemetry.AlertSource, subject, message string) telemetry.Alert

// DeriveAlerts reconciles threshold warnings against the current counts.
// Every target below its threshold ends up with exactly one warning, every
// other target with none. Alerts from other sources are kept in place and
// new warnings are appended. Calling it again with the same inputs returns
// an identical list.
func DeriveAlerts(counts map[string]int, targets []telemetry.SpeciesTarget, existing []telemetry.Alert, mint AlertMinter) []telemetry.Alert {
	below := make(map[string]telemetry.SpeciesTarget, len(targets))
	for _, t := range targets {
		if counts[t.Name] < t.Threshold {
			below[thresholdKey(t.Name)] = t
		}
	}

	out := make([]telemetry.Alert, 0, len(existing)+len(below))
	seen := make(map[string]bool, len(below))
	for _, a := range existing {
		if a.Source != telemetry.SourceThreshold {
			out = append(out, a)
			continue
		}
		k := a.Key()
		if _, ok := below[k]; !ok || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, a)
	}
	for _, t := range targets {
		k := thresholdKey(t.Name)
		if _, ok := below[k]; !ok || seen[k] {
			continue
		}
		seen[k] = true
		msg := fmt.Sprintf("%s count below threshold (%d/%d)", t.Name, counts[t.Name], t.Threshold)
		out = append(out, mint(telemetry.AlertWarning, telemetry.SourceThreshold, t.Name, msg))
	}
	return out
}

func thresholdKey(species string) string {
	return telemetry.Alert{Kind: telemetry.AlertWarning, Source: telemetry.SourceThreshold, Subject: species}.Key()
}
