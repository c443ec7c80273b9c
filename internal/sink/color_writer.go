package sink

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"aqua-monitor/internal/telemetry"
)

const (
	colorReset  = "\x1b[0m"
	colorRed    = "\x1b[31m"
	colorGreen  = "\x1b[32m"
	colorYellow = "\x1b[33m"
	colorBlue   = "\x1b[34m"
	colorCyan   = "\x1b[36m"
	colorGray   = "\x1b[90m"
)

// ColorWriter prints a one-line colorized summary per snapshot and each new
// alert on its own line.
type ColorWriter struct {
	out     io.Writer
	targets []telemetry.SpeciesTarget
	seen    map[string]bool
	now     func() time.Time
}

// NewColorWriter creates a ColorWriter on out, or os.Stdout when out is nil.
func NewColorWriter(out io.Writer, targets []telemetry.SpeciesTarget) *ColorWriter {
	if out == nil {
		out = os.Stdout
	}
	return &ColorWriter{out: out, targets: targets, seen: make(map[string]bool), now: time.Now}
}

// WriteState implements StateWriter.
func (w *ColorWriter) WriteState(s telemetry.MonitoringState) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%s]%s ", colorGray, w.now().Format(time.RFC3339), colorReset)
	fmt.Fprintf(&b, "%s%s%s ", statusColor(s.ConnectionStatus), s.ConnectionStatus, colorReset)
	if s.CurrentFrame != nil {
		fmt.Fprintf(&b, "%sframe=%d%s ", colorBlue, *s.CurrentFrame, colorReset)
	}
	fmt.Fprintf(&b, "%stotal=%d%s", colorCyan, s.TotalFish, colorReset)
	for _, t := range w.targets {
		n := s.SpeciesCounts[t.Name]
		c := colorGreen
		if n < t.Threshold {
			c = colorRed
		}
		fmt.Fprintf(&b, " %s%s=%d/%d%s", c, t.Name, n, t.Threshold, colorReset)
	}
	if s.GeofenceCrossed {
		fmt.Fprintf(&b, " %sgeofence%s", colorRed, colorReset)
	}
	b.WriteByte('\n')

	live := make(map[string]bool, len(s.Alerts))
	for _, a := range s.Alerts {
		live[a.ID] = true
		if w.seen[a.ID] {
			continue
		}
		fmt.Fprintf(&b, "  %s%s%s %s\n", alertColor(a.Kind), strings.ToUpper(string(a.Kind)), colorReset, a.Message)
	}
	w.seen = live

	_, err := io.WriteString(w.out, b.String())
	return err
}

func statusColor(s telemetry.ConnectionStatus) string {
	switch s {
	case telemetry.StatusConnected:
		return colorGreen
	case telemetry.StatusConnecting:
		return colorYellow
	case telemetry.StatusError:
		return colorRed
	}
	return colorGray
}

func alertColor(k telemetry.AlertKind) string {
	switch k {
	case telemetry.AlertError:
		return colorRed
	case telemetry.AlertWarning:
		return colorYellow
	}
	return colorBlue
}
