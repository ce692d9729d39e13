package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"svfe-monitor/internal/alerting"
	"svfe-monitor/internal/catalog"
	"svfe-monitor/internal/kpi"
	"svfe-monitor/internal/model"
	"svfe-monitor/internal/rules"
	"svfe-monitor/internal/telemetry"
)

// TransactionStore loads the transaction log.
type TransactionStore interface {
	LoadTransactions(ctx context.Context, source model.Source) ([]model.TransactionRecord, error)
}

// AlertReader lists persisted alerts.
type AlertReader interface {
	ListRecentAlerts(ctx context.Context, limit int) ([]model.AlertEvent, error)
}

// Dispatcher is the alert sink used by the cycle.
type Dispatcher interface {
	Dispatch(ctx context.Context, events []model.AlertEvent) alerting.DispatchReport
}

// Options carry the computation settings shared by the cycle and queries.
type Options struct {
	FreshnessThreshold  time.Duration
	RefusalExcludesZero bool
	WatchedCodes        []int
	CurrentBucket       time.Duration
	HistoricalBucket    time.Duration
	Locale              string
	Now                 func() time.Time
}

// Service orchestrates loading, computation and alerting. It keeps no state
// between calls, so the scheduled cycle and on-demand queries never share data.
type Service struct {
	store      TransactionStore
	alerts     AlertReader
	evaluator  *rules.Evaluator
	dispatcher Dispatcher
	names      *catalog.Catalog
	opts       Options
	logger     zerolog.Logger
}

// New constructs the monitoring service.
func New(store TransactionStore, alerts AlertReader, evaluator *rules.Evaluator, dispatcher Dispatcher, names *catalog.Catalog, opts Options, logger zerolog.Logger) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CurrentBucket <= 0 {
		opts.CurrentBucket = time.Minute
	}
	if opts.HistoricalBucket <= 0 {
		opts.HistoricalBucket = 30 * time.Minute
	}
	return &Service{
		store:      store,
		alerts:     alerts,
		evaluator:  evaluator,
		dispatcher: dispatcher,
		names:      names,
		opts:       opts,
		logger:     logger.With().Str("component", "service").Logger(),
	}
}

// CycleResult describes one evaluation.
type CycleResult struct {
	Source   model.Source
	Snapshot kpi.Snapshot
	Events   []model.AlertEvent
	Report   alerting.DispatchReport
	DryRun   bool
}

// RunCycle is the scheduled job: evaluate the current feed and dispatch.
func (s *Service) RunCycle(ctx context.Context) error {
	_, err := s.Evaluate(ctx, model.SourceCurrent, false)
	return err
}

// Evaluate loads source, computes the snapshot, applies the rules and, unless
// dryRun is set, dispatches the resulting events. An empty current table raises
// a single stale_data alert; an empty historical table raises nothing.
func (s *Service) Evaluate(ctx context.Context, source model.Source, dryRun bool) (CycleResult, error) {
	result := CycleResult{Source: source, DryRun: dryRun}

	snap, err := s.Snapshot(ctx, source)
	if errors.Is(err, model.ErrInsufficientData) {
		s.logger.Warn().Str("source", string(source)).Msg("no transactions to evaluate")
		if source != model.SourceCurrent {
			return result, nil
		}
		result.Events = []model.AlertEvent{s.evaluator.EmptyFeed(s.opts.Now())}
		return s.dispatch(ctx, result), nil
	}
	if err != nil {
		return result, err
	}
	result.Snapshot = snap
	s.observe(source, snap)

	result.Events = s.evaluator.Evaluate(snap)
	s.logger.Info().
		Str("source", string(source)).
		Int("total", snap.Total).
		Float64("success_rate", snap.SuccessRate).
		Float64("refusal_rate", snap.RefusalRate).
		Bool("fresh", snap.DataFresh).
		Bool("stable", snap.SystemStable).
		Int("alerts", len(result.Events)).
		Msg("snapshot evaluated")

	return s.dispatch(ctx, result), nil
}

func (s *Service) dispatch(ctx context.Context, result CycleResult) CycleResult {
	if result.DryRun || len(result.Events) == 0 || s.dispatcher == nil {
		return result
	}
	result.Report = s.dispatcher.Dispatch(ctx, result.Events)
	result.Events = result.Report.Events
	return result
}

func (s *Service) observe(source model.Source, snap kpi.Snapshot) {
	telemetry.LastSnapshot.WithLabelValues(string(source), "success_rate").Set(snap.SuccessRate)
	telemetry.LastSnapshot.WithLabelValues(string(source), "refusal_rate").Set(snap.RefusalRate)
	for code, rate := range snap.CodeRates {
		telemetry.LastSnapshot.WithLabelValues(string(source), "rate_of_code_"+strconv.Itoa(code)).Set(rate)
	}
}

// Transactions returns the normalized rows of source.
func (s *Service) Transactions(ctx context.Context, source model.Source) ([]model.TransactionRecord, error) {
	return s.store.LoadTransactions(ctx, source)
}

// Snapshot loads source and computes its KPIs.
func (s *Service) Snapshot(ctx context.Context, source model.Source) (kpi.Snapshot, error) {
	records, err := s.store.LoadTransactions(ctx, source)
	if err != nil {
		return kpi.Snapshot{}, err
	}
	return kpi.Compute(records, s.kpiOptions())
}

func (s *Service) kpiOptions() kpi.Options {
	return kpi.Options{
		Now:                 s.opts.Now(),
		FreshnessThreshold:  s.opts.FreshnessThreshold,
		RefusalExcludesZero: s.opts.RefusalExcludesZero,
		WatchedCodes:        s.opts.WatchedCodes,
	}
}

// ChannelStat is one row of the terminal distribution.
type ChannelStat struct {
	Channel     model.Channel `json:"terminal_type"`
	Name        string        `json:"name"`
	Count       int           `json:"count"`
	RefusalRate float64       `json:"refusal_rate"`
}

// Distribution is the per-channel breakdown of a source.
type Distribution struct {
	Channels     []ChannelStat `json:"channels"`
	LatestUpdate *time.Time    `json:"latest_update"`
}

// TerminalDistribution reports per-channel counts and refusal rates, known
// channels first.
func (s *Service) TerminalDistribution(ctx context.Context, source model.Source) (Distribution, error) {
	snap, err := s.Snapshot(ctx, source)
	if errors.Is(err, model.ErrInsufficientData) {
		return Distribution{Channels: []ChannelStat{}}, nil
	}
	if err != nil {
		return Distribution{}, err
	}

	out := Distribution{LatestUpdate: snap.LastTimestamp}
	seen := make(map[model.Channel]bool)
	for _, ch := range model.KnownChannels {
		if n, ok := snap.ChannelCounts[ch]; ok {
			out.Channels = append(out.Channels, s.channelStat(snap, ch, n))
			seen[ch] = true
		}
	}
	others := make([]model.Channel, 0)
	for ch := range snap.ChannelCounts {
		if !seen[ch] {
			others = append(others, ch)
		}
	}
	sort.Slice(others, func(i, j int) bool { return others[i] < others[j] })
	for _, ch := range others {
		out.Channels = append(out.Channels, s.channelStat(snap, ch, snap.ChannelCounts[ch]))
	}
	return out, nil
}

func (s *Service) channelStat(snap kpi.Snapshot, ch model.Channel, n int) ChannelStat {
	return ChannelStat{
		Channel:     ch,
		Name:        s.names.ChannelName(ch),
		Count:       n,
		RefusalRate: snap.ChannelRefusal[ch],
	}
}

// IssuerRefusal returns per-issuer refusal rates keyed by code, or by
// resolved name when byName is set.
func (s *Service) IssuerRefusal(ctx context.Context, source model.Source, byName bool) (map[string]float64, error) {
	snap, err := s.Snapshot(ctx, source)
	if errors.Is(err, model.ErrInsufficientData) {
		return map[string]float64{}, nil
	}
	if err != nil {
		return nil, err
	}
	if byName {
		return s.names.IssuerRates(snap.IssuerRefusal), nil
	}
	out := make(map[string]float64, len(snap.IssuerRefusal))
	for code, rate := range snap.IssuerRefusal {
		out[strconv.Itoa(code)] = rate
	}
	return out, nil
}

// Status reports stability and freshness of source.
func (s *Service) Status(ctx context.Context, source model.Source) (kpi.StatusReport, error) {
	snap, err := s.Snapshot(ctx, source)
	if errors.Is(err, model.ErrInsufficientData) {
		return kpi.EmptyStatus(s.opts.Locale), nil
	}
	if err != nil {
		return kpi.StatusReport{}, err
	}
	return kpi.Status(snap, snap.ComputedAt, s.opts.Locale), nil
}

// TrendQuery selects the trend window. A zero Bucket uses the source default.
type TrendQuery struct {
	Bucket        time.Duration
	LatestDayOnly bool
}

// Trends returns the bucketed trend series of source. No timestamped data
// yields ErrInsufficientData.
func (s *Service) Trends(ctx context.Context, source model.Source, q TrendQuery) ([]kpi.TrendPoint, error) {
	records, err := s.store.LoadTransactions(ctx, source)
	if err != nil {
		return nil, err
	}
	bucket := q.Bucket
	if bucket <= 0 {
		bucket = s.DefaultBucket(source)
	}
	return kpi.Trends(records, kpi.TrendOptions{Bucket: bucket, LatestDayOnly: q.LatestDayOnly})
}

// DefaultBucket is the trend width used for source when none is requested.
func (s *Service) DefaultBucket(source model.Source) time.Duration {
	if source == model.SourceHistorical {
		return s.opts.HistoricalBucket
	}
	return s.opts.CurrentBucket
}

// RecentAlerts lists persisted alerts newest first.
func (s *Service) RecentAlerts(ctx context.Context, limit int) ([]model.AlertEvent, error) {
	if s.alerts == nil {
		return nil, fmt.Errorf("%w: alert store not configured", model.ErrDataUnavailable)
	}
	return s.alerts.ListRecentAlerts(ctx, limit)
}
