// Package rules turns a KPI snapshot into alert events.
package rules

import (
	"sort"
	"strconv"
	"time"

	"svfe-monitor/internal/catalog"
	"svfe-monitor/internal/kpi"
	"svfe-monitor/internal/model"
)

// Rule identifiers, in evaluation order.
const (
	RuleSuccessCollapse     = "success_collapse"
	RuleRefusalSpike        = "refusal_spike"
	RuleCriticalRefusalCode = "critical_refusal_code"
	RuleIssuerRefusalSpike  = "issuer_refusal_spike"
	RuleChannelRefusalSpike = "channel_refusal_spike"
	RuleMissingChannel      = "missing_channel"
	RuleStaleData           = "stale_data"
	RuleInstability         = "instability"
)

// Thresholds configures every rule. Rates are percentages.
type Thresholds struct {
	MinSuccessRate        float64
	MaxRefusalRate        float64
	MaxIssuerRefusalRate  float64
	MaxChannelRefusalRate float64
	CriticalCodes         []int
	ExpectedChannels      []model.Channel
}

// DefaultThresholds mirrors the production settings.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinSuccessRate:        70,
		MaxRefusalRate:        35,
		MaxIssuerRefusalRate:  70,
		MaxChannelRefusalRate: 60,
		CriticalCodes:         []int{802, 803, 910, 915},
		ExpectedChannels:      []model.Channel{model.ChannelATM, model.ChannelPOS, model.ChannelECommerce},
	}
}

// Evaluator applies the rule set. It holds no mutable state and is safe for
// concurrent use.
type Evaluator struct {
	th       Thresholds
	messages Messages
	names    *catalog.Catalog
}

// NewEvaluator builds an evaluator. Unknown locales fall back to French.
func NewEvaluator(th Thresholds, locale string, names *catalog.Catalog) *Evaluator {
	return &Evaluator{th: th, messages: MessagesFor(locale), names: names}
}

// EmptyFeed is the stale_data event for a live table that returned no rows,
// which is how the feed looks once the upstream rolling window has drained.
func (e *Evaluator) EmptyFeed(at time.Time) model.AlertEvent {
	return model.AlertEvent{
		Rule:      RuleStaleData,
		Severity:  model.SeverityCritical,
		Message:   e.messages.NoTimestamps(),
		CreatedAt: at,
	}
}

// Evaluate returns one event per matched rule condition, ordered by rule and
// then by ascending subject code. Every rule is evaluated.
func (e *Evaluator) Evaluate(snap kpi.Snapshot) []model.AlertEvent {
	var events []model.AlertEvent
	add := func(rule, subject string, sev model.Severity, msg string) {
		events = append(events, model.AlertEvent{
			Rule:      rule,
			Subject:   subject,
			Severity:  sev,
			Message:   msg,
			CreatedAt: snap.ComputedAt,
		})
	}

	if snap.SuccessRate < e.th.MinSuccessRate {
		add(RuleSuccessCollapse, "", model.SeverityCritical, e.messages.SuccessCollapse(snap.SuccessRate))
	}

	if snap.RefusalRate > e.th.MaxRefusalRate {
		add(RuleRefusalSpike, "", model.SeverityWarning, e.messages.RefusalSpike(snap.RefusalRate))
	}

	if snap.HasRefusalCode() && containsInt(e.th.CriticalCodes, snap.MostFrequentCode) {
		add(RuleCriticalRefusalCode, strconv.Itoa(snap.MostFrequentCode), model.SeverityCritical,
			e.messages.CriticalCode(snap.MostFrequentCode, snap.MostFrequentCount))
	}

	for _, code := range sortedKeys(snap.IssuerRefusal) {
		rate := snap.IssuerRefusal[code]
		if rate > e.th.MaxIssuerRefusalRate {
			add(RuleIssuerRefusalSpike, strconv.Itoa(code), model.SeverityWarning,
				e.messages.IssuerSpike(e.issuerLabel(code), rate))
		}
	}

	for _, ch := range sortedKeys(snap.ChannelRefusal) {
		if !ch.Known() {
			continue
		}
		rate := snap.ChannelRefusal[ch]
		if rate > e.th.MaxChannelRefusalRate {
			add(RuleChannelRefusalSpike, strconv.Itoa(int(ch)), model.SeverityWarning,
				e.messages.ChannelSpike(e.names.ChannelName(ch), rate))
		}
	}

	expected := append([]model.Channel(nil), e.th.ExpectedChannels...)
	sort.Slice(expected, func(i, j int) bool { return expected[i] < expected[j] })
	for _, ch := range expected {
		if snap.ChannelCounts[ch] == 0 {
			add(RuleMissingChannel, strconv.Itoa(int(ch)), model.SeverityWarning,
				e.messages.MissingChannel(e.names.ChannelName(ch)))
		}
	}

	if !snap.DataFresh {
		if snap.LastTimestamp == nil {
			add(RuleStaleData, "", model.SeverityCritical, e.messages.NoTimestamps())
		} else {
			delay := snap.ComputedAt.Sub(*snap.LastTimestamp)
			add(RuleStaleData, "", model.SeverityCritical,
				e.messages.StaleData(delay.Minutes(), *snap.LastTimestamp))
		}
	}

	if !snap.SystemStable {
		add(RuleInstability, "", model.SeverityCritical, e.messages.Instability())
	}

	return events
}

func (e *Evaluator) issuerLabel(code int) string {
	if e.names.HasIssuer(code) {
		return strconv.Itoa(code) + " (" + e.names.IssuerName(code) + ")"
	}
	return strconv.Itoa(code)
}

func containsInt(set []int, v int) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func sortedKeys[K ~int, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
