package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"svfe-monitor/internal/model"
)

var transactionColumns = []string{"udate", "time", "iss_inst", "acq_inst", "terminal_type", "resp", "transx_number"}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store := NewStore(mock, Tables{}, time.Second)
	store.SetLocation(time.UTC)
	return store, mock
}

func TestLoadTransactionsReadsSelectedTable(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM "transactions_hist"`).
		WillReturnRows(mock.NewRows(transactionColumns).
			AddRow("2024-05-01", "10:00:00", "103", "201", "1", "0", "1").
			AddRow("20240501", "100030", "104", "201", "8", "802", "2").
			AddRow("bad", "", "105.0", "", "2", "x", ""))

	records, err := store.LoadTransactions(context.Background(), model.SourceHistorical)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.True(t, records[0].IsSuccess())
	require.NotNil(t, records[1].Timestamp)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 30, 0, time.UTC), *records[1].Timestamp)
	assert.Equal(t, 802, records[1].ResponseCode)
	assert.Equal(t, model.ChannelECommerce, records[1].Channel)

	assert.Nil(t, records[2].Timestamp)
	assert.False(t, records[2].ResponseValid)
	assert.Equal(t, 105, records[2].IssuerCode)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadTransactionsWrapsQueryFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM "transactions"`).WillReturnError(errors.New("connection refused"))

	_, err := store.LoadTransactions(context.Background(), model.SourceCurrent)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrDataUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadTransactionsWithoutPool(t *testing.T) {
	var store *Store
	_, err := store.LoadTransactions(context.Background(), model.SourceCurrent)
	assert.ErrorIs(t, err, model.ErrDataUnavailable)
}

func TestInsertAlertAssignsID(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO alerts`).
		WithArgs("issuer_refusal_spike", "103", "warning", "issuer 103 at 85.00%").
		WillReturnRows(mock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), created))

	saved, err := store.InsertAlert(context.Background(), model.AlertEvent{
		Rule:     "issuer_refusal_spike",
		Subject:  "103",
		Severity: model.SeverityWarning,
		Message:  "issuer 103 at 85.00%",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), saved.ID)
	assert.Equal(t, created, saved.CreatedAt)
	assert.Equal(t, "issuer 103 at 85.00%", saved.Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAlertFailureIsPersistenceFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO alerts`).
		WithArgs("stale_data", "", "critical", "stale").
		WillReturnError(errors.New("relation \"alerts\" does not exist"))

	_, err := store.InsertAlert(context.Background(), model.AlertEvent{
		Rule: "stale_data", Severity: model.SeverityCritical, Message: "stale",
	})
	assert.ErrorIs(t, err, model.ErrPersistenceFailure)
}

func TestListRecentAlertsNewestFirst(t *testing.T) {
	store, mock := newMockStore(t)
	newer := time.Date(2024, 5, 1, 10, 1, 0, 0, time.UTC)
	older := newer.Add(-time.Minute)

	mock.ExpectQuery(`FROM alerts`).
		WithArgs(2).
		WillReturnRows(mock.NewRows([]string{"id", "rule", "subject", "severity", "message", "created_at"}).
			AddRow(int64(2), "refusal_spike", "", "warning", "b", newer).
			AddRow(int64(1), "success_collapse", "", "critical", "a", older))

	alerts, err := store.ListRecentAlerts(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, int64(2), alerts[0].ID)
	assert.Equal(t, model.SeverityCritical, alerts[1].Severity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecipients(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT DISTINCT email FROM "users"`).
		WillReturnRows(mock.NewRows([]string{"email"}).AddRow("ops@example.com").AddRow(" noc@example.com "))

	emails, err := store.ListRecipients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ops@example.com", "noc@example.com"}, emails)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateRequiresDSN(t *testing.T) {
	_, err := Migrate("")
	assert.Error(t, err)
}

func TestEmbeddedMigrations(t *testing.T) {
	src, err := iofs.New(migrationFiles, "migrations")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	body, ident, err := src.ReadUp(first)
	require.NoError(t, err)
	defer body.Close()
	assert.Equal(t, "create_alerts", ident)
}
