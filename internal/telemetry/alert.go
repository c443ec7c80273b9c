package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// AlertKind classifies an alert's severity.
type AlertKind string

// Alert kinds.
const (
	AlertWarning AlertKind = "warning"
	AlertError   AlertKind = "error"
	AlertInfo    AlertKind = "info"
)

// AlertSource names the component that raised an alert.
type AlertSource string

// Alert sources.
const (
	SourceThreshold  AlertSource = "threshold"
	SourceGeofence   AlertSource = "geofence"
	SourceConnection AlertSource = "connection"
	SourceBackend    AlertSource = "backend"
)

// Alert is an immutable user-visible notice.
type Alert struct {
	ID        string      `json:"id"`
	Kind      AlertKind   `json:"type"`
	Source    AlertSource `json:"source"`
	Subject   string      `json:"subject,omitempty"`
	Message   string      `json:"message"`
	CreatedAt time.Time   `json:"created_at"`
}

// Key is the identity used to de-duplicate derived alerts. It ignores the
// message text so two species with similar wording never collide.
func (a Alert) Key() string {
	return string(a.Kind) + "/" + string(a.Source) + "/" + a.Subject
}

// NewAlert builds an alert with a time-ordered random ID.
func NewAlert(kind AlertKind, source AlertSource, subject, message string, at time.Time) Alert {
	return Alert{
		ID:        newAlertID(),
		Kind:      kind,
		Source:    source,
		Subject:   subject,
		Message:   message,
		CreatedAt: at,
	}
}

func newAlertID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
