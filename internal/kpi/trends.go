package kpi

import (
	"fmt"
	"sort"
	"time"

	"svfe-monitor/internal/model"
)

// TrendOptions controls bucketing of the trend series.
type TrendOptions struct {
	// Bucket is the bucket width, truncated to whole minutes. Defaults to one minute.
	Bucket time.Duration
	// LatestDayOnly keeps only records from the most recent calendar date.
	LatestDayOnly bool
}

// TrendPoint aggregates the records falling in one time-of-day bucket.
type TrendPoint struct {
	Bucket       string  `json:"time"`
	Total        int     `json:"total_transactions"`
	SuccessCount int     `json:"successful_transactions"`
	RefusalCount int     `json:"refused_transactions"`
	SuccessRate  float64 `json:"success_rate"`
	RefusalRate  float64 `json:"refusal_rate"`
}

// Trends groups timestamped records by HH:MM bucket, ordered by label.
// Records without a timestamp are dropped; if none remain the result is
// ErrInsufficientData.
func Trends(records []model.TransactionRecord, opts TrendOptions) ([]TrendPoint, error) {
	width := int(opts.Bucket / time.Minute)
	if width <= 0 {
		width = 1
	}

	var latestDay time.Time
	if opts.LatestDayOnly {
		for _, rec := range records {
			if rec.Timestamp == nil {
				continue
			}
			if day := dayOf(*rec.Timestamp); day.After(latestDay) {
				latestDay = day
			}
		}
	}

	buckets := make(map[string]*TrendPoint)
	for _, rec := range records {
		if rec.Timestamp == nil {
			continue
		}
		ts := *rec.Timestamp
		if opts.LatestDayOnly && !dayOf(ts).Equal(latestDay) {
			continue
		}

		minutes := ts.Hour()*60 + ts.Minute()
		minutes -= minutes % width
		label := fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)

		p, ok := buckets[label]
		if !ok {
			p = &TrendPoint{Bucket: label}
			buckets[label] = p
		}
		p.Total++
		if rec.IsSuccess() {
			p.SuccessCount++
		}
	}

	if len(buckets) == 0 {
		return nil, fmt.Errorf("compute trends: %w", model.ErrInsufficientData)
	}

	series := make([]TrendPoint, 0, len(buckets))
	for _, p := range buckets {
		p.RefusalCount = p.Total - p.SuccessCount
		p.SuccessRate = Rate(p.SuccessCount, p.Total)
		p.RefusalRate = Rate(p.RefusalCount, p.Total)
		series = append(series, *p)
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Bucket < series[j].Bucket })
	return series, nil
}

func dayOf(ts time.Time) time.Time {
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, ts.Location())
}
