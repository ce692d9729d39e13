package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"svfe-monitor/internal/model"
)

const listRecipientsSQL = `SELECT DISTINCT email FROM %s WHERE email IS NOT NULL AND email <> '' ORDER BY email;`

// ListRecipients returns the email address of every registered user.
func (s *Store) ListRecipients(ctx context.Context) ([]string, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDataUnavailable, err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(listRecipientsSQL, pgx.Identifier{s.tables.Recipients}.Sanitize())
	rows, queryErr := db.Query(ctx, query)
	if queryErr != nil {
		return nil, fmt.Errorf("%w: list recipients: %v", model.ErrDataUnavailable, queryErr)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("%w: scan recipient: %v", model.ErrDataUnavailable, err)
		}
		if email = strings.TrimSpace(email); email != "" {
			emails = append(emails, email)
		}
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%w: read recipients: %v", model.ErrDataUnavailable, rows.Err())
	}
	return emails, nil
}
