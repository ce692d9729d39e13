package model

import "time"

// Severity grades an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertEvent is a single rule match. ID is zero until the event is persisted.
type AlertEvent struct {
	ID        int64     `json:"id"`
	Rule      string    `json:"rule"`
	Subject   string    `json:"subject,omitempty"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Key identifies the condition an alert reports on, independent of its values.
func (a AlertEvent) Key() string {
	if a.Subject == "" {
		return a.Rule
	}
	return a.Rule + ":" + a.Subject
}
