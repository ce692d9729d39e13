package app

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"svfe-monitor/internal/model"
	"svfe-monitor/internal/service"
	"svfe-monitor/internal/storage"
)

// simulatedRefusals are the decline codes drawn for synthetic refusals.
var simulatedRefusals = []int{802, 803, 840, 910, 915, 51, 55, 61}

var defaultSimulatedIssuers = []int{103, 104, 105, 110}

var simulatedChannels = []int{int(model.ChannelATM), int(model.ChannelPOS), int(model.ChannelECommerce)}

// memoryFeed serves a fixed record set as the current table.
type memoryFeed struct {
	records []model.TransactionRecord
}

func (m memoryFeed) LoadTransactions(_ context.Context, source model.Source) ([]model.TransactionRecord, error) {
	if source != model.SourceCurrent {
		return nil, nil
	}
	return m.records, nil
}

// Simulate evaluates the rules against a synthetic feed. With Dispatch set
// the resulting alerts go through the real sink.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	if opts.Count <= 0 {
		return errors.New("--count must be greater than zero")
	}
	if opts.SuccessRatio < 0 || opts.SuccessRatio > 1 {
		return errors.New("--success-ratio must be within [0, 1]")
	}

	loc, err := a.Config.Location()
	if err != nil {
		return err
	}

	faker := gofakeit.New(opts.Seed)
	records := generateTransactions(faker, time.Now().In(loc), opts, a.simulatedIssuers())

	var dispatcher service.Dispatcher
	if opts.Dispatch {
		var store *storage.Store
		if a.Config.Database.DSN != "" {
			store, err = a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
		} else {
			a.Logger.Warn().Msg("database.dsn not configured; simulated alerts will not be persisted")
		}

		d, closeDispatcher, err := a.newDispatcher(ctx, store, nil)
		if err != nil {
			return err
		}
		defer closeDispatcher()
		dispatcher = d
	}

	svc, err := a.newService(memoryFeed{records: records}, nil, dispatcher)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Int("count", opts.Count).
		Float64("success_ratio", opts.SuccessRatio).
		Bool("dispatch", opts.Dispatch).
		Msg("simulating transaction feed")

	result, err := svc.Evaluate(ctx, model.SourceCurrent, !opts.Dispatch)
	if err != nil {
		return err
	}
	a.printEvaluation(result)
	return nil
}

func (a *App) simulatedIssuers() []int {
	names, err := a.Config.IssuerNames()
	if err != nil || len(names) == 0 {
		return defaultSimulatedIssuers
	}
	codes := make([]int, 0, len(names))
	for code := range names {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}

// generateTransactions builds opts.Count records ending shortly before now.
// Exactly round(Count*SuccessRatio) of them are approvals. Consecutive
// timestamps are 1 to 29 seconds apart, so the feed reads as stable.
func generateTransactions(faker *gofakeit.Faker, now time.Time, opts SimulateOptions, issuers []int) []model.TransactionRecord {
	successes := int(math.Round(float64(opts.Count) * opts.SuccessRatio))
	order := make([]int, opts.Count)
	for i := range order {
		order[i] = i
	}
	faker.ShuffleInts(order)
	approved := make(map[int]bool, successes)
	for _, idx := range order[:successes] {
		approved[idx] = true
	}

	records := make([]model.TransactionRecord, opts.Count)
	ts := now.Add(-time.Duration(faker.Number(5, 90)) * time.Second).Truncate(time.Second)
	sequence := int64(faker.Number(100000, 900000))

	for i := opts.Count - 1; i >= 0; i-- {
		stamp := ts
		resp := -1
		if !approved[i] {
			resp = faker.RandomInt(simulatedRefusals)
		}
		records[i] = model.TransactionRecord{
			Date:          stamp.Format("2006-01-02"),
			Time:          stamp.Format("15:04:05"),
			Timestamp:     &stamp,
			IssuerCode:    faker.RandomInt(issuers),
			AcquirerCode:  faker.RandomInt(issuers),
			Channel:       model.Channel(faker.RandomInt(simulatedChannels)),
			ResponseCode:  resp,
			ResponseValid: true,
			Sequence:      sequence + int64(i),
		}
		ts = ts.Add(-time.Duration(faker.Number(1, 29)) * time.Second)
	}
	return records
}
