package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"svfe-monitor/internal/model"
)

const selectTransactionsSQL = `SELECT
        COALESCE(udate::text, ''),
        COALESCE(time::text, ''),
        COALESCE(iss_inst::text, ''),
        COALESCE(acq_inst::text, ''),
        COALESCE(terminal_type::text, ''),
        COALESCE(resp::text, ''),
        COALESCE(transx_number::text, '')
    FROM %s;`

// LoadTransactions reads every row of the table backing source. Rows whose
// date or time cannot be parsed are kept with a nil timestamp.
func (s *Store) LoadTransactions(ctx context.Context, source model.Source) ([]model.TransactionRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDataUnavailable, err)
	}

	table, err := s.transactionTable(source)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(selectTransactionsSQL, pgx.Identifier{table}.Sanitize())
	rows, queryErr := db.Query(ctx, query)
	if queryErr != nil {
		return nil, fmt.Errorf("%w: load %s transactions: %v", model.ErrDataUnavailable, source, queryErr)
	}
	defer rows.Close()

	records := make([]model.TransactionRecord, 0)
	for rows.Next() {
		var raw rawTransaction
		if scanErr := rows.Scan(
			&raw.Date,
			&raw.Time,
			&raw.Issuer,
			&raw.Acquirer,
			&raw.Channel,
			&raw.Response,
			&raw.Sequence,
		); scanErr != nil {
			return nil, fmt.Errorf("%w: scan transaction: %v", model.ErrDataUnavailable, scanErr)
		}
		records = append(records, normalizeTransaction(raw, s.location))
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%w: read transactions: %v", model.ErrDataUnavailable, rows.Err())
	}
	return records, nil
}

func (s *Store) transactionTable(source model.Source) (string, error) {
	switch source {
	case model.SourceCurrent, "":
		return s.tables.Current, nil
	case model.SourceHistorical:
		return s.tables.Historical, nil
	default:
		return "", fmt.Errorf("unknown transaction source %q", source)
	}
}
