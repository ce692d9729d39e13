package storage

import (
	"context"
	"fmt"

	"svfe-monitor/internal/model"
)

const (
	insertAlertSQL = `INSERT INTO alerts (
        rule,
        subject,
        severity,
        message
    ) VALUES (
        $1,$2,$3,$4
    )
    RETURNING id, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        rule,
        subject,
        severity,
        message,
        created_at
    FROM alerts
    ORDER BY created_at DESC, id DESC
    LIMIT $1;`
)

// InsertAlert appends an alert and returns it with its assigned id and
// creation time.
func (s *Store) InsertAlert(ctx context.Context, alert model.AlertEvent) (model.AlertEvent, error) {
	db, err := s.getDB()
	if err != nil {
		return model.AlertEvent{}, fmt.Errorf("%w: %v", model.ErrPersistenceFailure, err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := db.QueryRow(ctx, insertAlertSQL,
		alert.Rule,
		alert.Subject,
		string(alert.Severity),
		alert.Message,
	)
	if scanErr := row.Scan(&alert.ID, &alert.CreatedAt); scanErr != nil {
		return model.AlertEvent{}, fmt.Errorf("%w: insert alert: %v", model.ErrPersistenceFailure, scanErr)
	}
	return alert, nil
}

// ListRecentAlerts lists the most recent alerts, newest first.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]model.AlertEvent, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDataUnavailable, err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, queryErr := db.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("%w: list recent alerts: %v", model.ErrDataUnavailable, queryErr)
	}
	defer rows.Close()

	alerts := make([]model.AlertEvent, 0, limit)
	for rows.Next() {
		var (
			rec      model.AlertEvent
			severity string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.Rule,
			&rec.Subject,
			&severity,
			&rec.Message,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: scan alert: %v", model.ErrDataUnavailable, err)
		}
		rec.Severity = model.Severity(severity)
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%w: read alerts: %v", model.ErrDataUnavailable, rows.Err())
	}
	return alerts, nil
}
