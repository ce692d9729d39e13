// Package alerting persists alert events and fans them out to live
// subscribers and external channels.
package alerting

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"svfe-monitor/internal/model"
	"svfe-monitor/internal/telemetry"
)

// Message is the payload pushed to live subscribers.
type Message struct {
	Type string           `json:"type"`
	Data model.AlertEvent `json:"data"`
}

// DispatchReport summarises one Dispatch call.
type DispatchReport struct {
	Persisted     int                `json:"persisted"`
	PersistFailed int                `json:"persist_failed"`
	Suppressed    int                `json:"suppressed"`
	Deliveries    int                `json:"deliveries"`
	Notified      int                `json:"notified"`
	NotifyFailed  int                `json:"notify_failed"`
	Events        []model.AlertEvent `json:"events"`
}

// Dispatcher is the alert sink.
type Dispatcher struct {
	store      AlertStore
	hub        Broadcaster
	notifiers  []Notifier
	suppressor Suppressor
	logger     zerolog.Logger
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithNotifiers sets the external channels used for critical alerts.
func WithNotifiers(n ...Notifier) Option {
	return func(d *Dispatcher) { d.notifiers = append(d.notifiers, n...) }
}

// WithSuppressor enables duplicate suppression.
func WithSuppressor(s Suppressor) Option {
	return func(d *Dispatcher) { d.suppressor = s }
}

// NewDispatcher wires the sink. store and hub may be nil, which skips that step.
func NewDispatcher(store AlertStore, hub Broadcaster, logger zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:  store,
		hub:    hub,
		logger: logger.With().Str("component", "dispatcher").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch handles each event in turn: suppression check, persist, broadcast
// and, for critical events, external notification. No failure stops the batch.
func (d *Dispatcher) Dispatch(ctx context.Context, events []model.AlertEvent) DispatchReport {
	var report DispatchReport
	for _, event := range events {
		log := d.logger.With().Str("rule", event.Rule).Str("subject", event.Subject).Logger()

		if d.suppressor != nil {
			allowed, err := d.suppressor.Allow(ctx, event.Key())
			if err != nil {
				log.Warn().Err(err).Msg("suppression check failed, dispatching anyway")
			} else if !allowed {
				report.Suppressed++
				telemetry.AlertsDispatched.WithLabelValues(event.Rule, "suppressed").Inc()
				log.Debug().Msg("alert suppressed")
				continue
			}
		}

		if d.store != nil {
			saved, err := d.store.InsertAlert(ctx, event)
			if err != nil {
				report.PersistFailed++
				telemetry.AlertsDispatched.WithLabelValues(event.Rule, "persist_failed").Inc()
				log.Error().Err(err).Msg("failed to persist alert")
			} else {
				event = saved
				report.Persisted++
				telemetry.AlertsDispatched.WithLabelValues(event.Rule, "persisted").Inc()
			}
		}
		report.Events = append(report.Events, event)

		if d.hub != nil {
			payload, err := json.Marshal(Message{Type: "alert", Data: event})
			if err != nil {
				log.Error().Err(err).Msg("failed to encode alert")
			} else {
				report.Deliveries += d.hub.Broadcast(payload)
			}
		}

		if event.Severity == model.SeverityCritical {
			for _, n := range d.notifiers {
				if err := n.Notify(ctx, event); err != nil {
					report.NotifyFailed++
					log.Error().Err(err).Str("channel", n.Name()).Msg("notification failed")
					continue
				}
				report.Notified++
			}
		}

		log.Info().Str("severity", string(event.Severity)).Int64("id", event.ID).Msg(event.Message)
	}
	return report
}
