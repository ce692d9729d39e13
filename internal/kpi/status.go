package kpi

import (
	"time"

	"github.com/shopspring/decimal"
)

// StatusReport summarises feed health for display.
type StatusReport struct {
	Stable       bool       `json:"stable"`
	Fresh        bool       `json:"fresh"`
	LastUpdate   *time.Time `json:"last_update"`
	DelayMinutes *float64   `json:"delay_minutes"`
	Message      string     `json:"system_status"`
}

// healthy, degraded
var statusMessages = map[string][2]string{
	"fr": {"Le système est disponible.", "Il y a un problème dans le système."},
	"en": {"The system is available.", "There is a problem in the system."},
}

// Status derives the health summary of a snapshot. An unstable or stale feed
// is reported as a problem.
func Status(snap Snapshot, now time.Time, locale string) StatusReport {
	st := StatusReport{
		Stable:     snap.SystemStable,
		Fresh:      snap.DataFresh,
		LastUpdate: snap.LastTimestamp,
		Message:    statusMessage(locale, snap.SystemStable && snap.DataFresh),
	}
	if snap.LastTimestamp != nil {
		delay := decimal.NewFromFloat(now.Sub(*snap.LastTimestamp).Minutes()).Round(2).InexactFloat64()
		st.DelayMinutes = &delay
	}
	return st
}

// EmptyStatus is reported when the store holds no records at all.
func EmptyStatus(locale string) StatusReport {
	return StatusReport{Message: statusMessage(locale, false)}
}

func statusMessage(locale string, healthy bool) string {
	msgs, ok := statusMessages[locale]
	if !ok {
		msgs = statusMessages["fr"]
	}
	if healthy {
		return msgs[0]
	}
	return msgs[1]
}
