package alerting

import (
	"context"

	"svfe-monitor/internal/model"
)

// Notifier delivers a critical alert to an external channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, event model.AlertEvent) error
}

// AlertStore persists alerts and assigns their id.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert model.AlertEvent) (model.AlertEvent, error)
}

// Broadcaster fans a message out to live subscribers.
type Broadcaster interface {
	Broadcast(msg []byte) int
}

// Suppressor decides whether an alert key fired recently. Allow records the
// key when it returns true.
type Suppressor interface {
	Allow(ctx context.Context, key string) (bool, error)
}
