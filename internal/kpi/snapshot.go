// Package kpi computes success and refusal indicators over a set of
// transaction records. Every function here is pure; callers own the records.
package kpi

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"svfe-monitor/internal/model"
)

// DefaultFreshnessThreshold is the maximum age of the newest record for the
// feed to count as fresh.
const DefaultFreshnessThreshold = 15 * time.Minute

// stallIntervals are the exact gaps that betray a feed replaying one poll.
var stallIntervals = []time.Duration{30 * time.Second, 60 * time.Second}

// Options tune snapshot computation.
type Options struct {
	Now                time.Time
	FreshnessThreshold time.Duration
	// RefusalExcludesZero counts only non-approvals as refused. When false a
	// refusal is any response other than -1, so code 0 is both a success and
	// a refusal.
	RefusalExcludesZero bool
	WatchedCodes        []int
}

// Snapshot is the set of indicators derived from one record set.
type Snapshot struct {
	Total             int                       `json:"total_transactions"`
	SuccessCount      int                       `json:"successful_transactions"`
	RefusalCount      int                       `json:"refused_transactions"`
	SuccessRate       float64                   `json:"success_rate"`
	RefusalRate       float64                   `json:"refusal_rate"`
	RefusalCodes      map[int]int               `json:"refusal_code_distribution"`
	MostFrequentCode  int                       `json:"most_frequent_refusal_code"`
	MostFrequentCount int                       `json:"most_frequent_refusal_count"`
	IssuerRefusal     map[int]float64           `json:"refusal_rate_per_issuer"`
	ChannelRefusal    map[model.Channel]float64 `json:"refusal_rate_per_channel"`
	ChannelCounts     map[model.Channel]int     `json:"terminal_distribution"`
	CodeRates         map[int]float64           `json:"critical_code_rates"`
	FirstTimestamp    *time.Time                `json:"first_timestamp"`
	LastTimestamp     *time.Time                `json:"last_timestamp"`
	DataFresh         bool                      `json:"data_fresh"`
	SystemStable      bool                      `json:"system_stable"`
	ComputedAt        time.Time                 `json:"computed_at"`
}

// HasRefusalCode reports whether any specific decline code was observed.
func (s Snapshot) HasRefusalCode() bool {
	return s.MostFrequentCount > 0
}

type groupCount struct {
	total   int
	refused int
}

// Compute derives a Snapshot. An empty record set yields ErrInsufficientData.
func Compute(records []model.TransactionRecord, opts Options) (Snapshot, error) {
	if len(records) == 0 {
		return Snapshot{}, fmt.Errorf("compute snapshot: %w", model.ErrInsufficientData)
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	if opts.FreshnessThreshold <= 0 {
		opts.FreshnessThreshold = DefaultFreshnessThreshold
	}

	snap := Snapshot{
		Total:          len(records),
		RefusalCodes:   make(map[int]int),
		IssuerRefusal:  make(map[int]float64),
		ChannelRefusal: make(map[model.Channel]float64),
		ChannelCounts:  make(map[model.Channel]int),
		CodeRates:      make(map[int]float64, len(opts.WatchedCodes)),
		ComputedAt:     opts.Now,
	}

	issuers := make(map[int]*groupCount)
	channels := make(map[model.Channel]*groupCount)
	codeHits := make(map[int]int)

	for _, rec := range records {
		success := rec.IsSuccess()
		if success {
			snap.SuccessCount++
		}
		if isRefused(rec, opts.RefusalExcludesZero) {
			snap.RefusalCount++
		}
		if rec.IsRefusalCode() {
			snap.RefusalCodes[rec.ResponseCode]++
		}
		if rec.ResponseValid {
			codeHits[rec.ResponseCode]++
		}

		tally(issuers, rec.IssuerCode, success)
		tally(channels, rec.Channel, success)
	}

	snap.SuccessRate = Rate(snap.SuccessCount, snap.Total)
	snap.RefusalRate = Rate(snap.RefusalCount, snap.Total)
	snap.MostFrequentCode, snap.MostFrequentCount = mostFrequent(snap.RefusalCodes)

	for code, g := range issuers {
		snap.IssuerRefusal[code] = Rate(g.refused, g.total)
	}
	for ch, g := range channels {
		snap.ChannelRefusal[ch] = Rate(g.refused, g.total)
		snap.ChannelCounts[ch] = g.total
	}
	for _, code := range opts.WatchedCodes {
		snap.CodeRates[code] = Rate(codeHits[code], snap.Total)
	}

	stamps := Timestamps(records)
	if len(stamps) > 0 {
		first, last := stamps[0], stamps[len(stamps)-1]
		snap.FirstTimestamp = &first
		snap.LastTimestamp = &last
	}
	snap.DataFresh = IsFresh(stamps, opts.Now, opts.FreshnessThreshold)
	snap.SystemStable = IsStable(stamps)

	return snap, nil
}

func isRefused(rec model.TransactionRecord, excludesZero bool) bool {
	if excludesZero {
		return !rec.IsSuccess()
	}
	return !rec.ResponseValid || rec.ResponseCode != -1
}

func tally[K comparable](groups map[K]*groupCount, key K, success bool) {
	g, ok := groups[key]
	if !ok {
		g = &groupCount{}
		groups[key] = g
	}
	g.total++
	if !success {
		g.refused++
	}
}

// mostFrequent returns the arg-max of the distribution; ties go to the lowest code.
func mostFrequent(dist map[int]int) (int, int) {
	bestCode, bestCount := 0, 0
	for code, count := range dist {
		if count > bestCount || (count == bestCount && code < bestCode) {
			bestCode, bestCount = code, count
		}
	}
	return bestCode, bestCount
}

// Rate returns part/whole as a percentage rounded half away from zero to two
// decimals. A zero whole yields zero.
func Rate(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return decimal.NewFromInt(int64(part)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(whole))).
		Round(2).
		InexactFloat64()
}

// Timestamps returns the valid timestamps of records in ascending order.
func Timestamps(records []model.TransactionRecord) []time.Time {
	stamps := make([]time.Time, 0, len(records))
	for _, rec := range records {
		if rec.Timestamp != nil {
			stamps = append(stamps, *rec.Timestamp)
		}
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
	return stamps
}

// IsFresh reports whether the newest of the sorted stamps is at most threshold
// old at now. No stamps means not fresh.
func IsFresh(sorted []time.Time, now time.Time, threshold time.Duration) bool {
	if len(sorted) == 0 {
		return false
	}
	return now.Sub(sorted[len(sorted)-1]) <= threshold
}

// IsStable reports false when two consecutive sorted stamps are exactly 30s or
// 60s apart. This flags a stalled feed replaying one poll; it is not an uptime
// check.
func IsStable(sorted []time.Time) bool {
	for i := 1; i < len(sorted); i++ {
		delta := sorted[i].Sub(sorted[i-1])
		for _, stall := range stallIntervals {
			if delta == stall {
				return false
			}
		}
	}
	return true
}
