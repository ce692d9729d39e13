package storage

import (
	"math"
	"strconv"
	"strings"
	"time"

	"svfe-monitor/internal/model"
)

var dateLayouts = []string{"2006-01-02", "20060102"}

var joinedLayouts = []string{
	"20060102:150405",
	"20060102150405",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// rawTransaction holds one row exactly as read, every column cast to text.
type rawTransaction struct {
	Date     string
	Time     string
	Issuer   string
	Acquirer string
	Channel  string
	Response string
	Sequence string
}

func normalizeTransaction(raw rawTransaction, loc *time.Location) model.TransactionRecord {
	rec := model.TransactionRecord{
		Date: strings.TrimSpace(raw.Date),
		Time: strings.TrimSpace(raw.Time),
	}
	rec.Timestamp = parseTimestamp(rec.Date, rec.Time, loc)

	rec.IssuerCode, _ = parseCode(raw.Issuer)
	rec.AcquirerCode, _ = parseCode(raw.Acquirer)
	channel, _ := parseCode(raw.Channel)
	rec.Channel = model.Channel(channel)
	rec.ResponseCode, rec.ResponseValid = parseCode(raw.Response)
	if seq, ok := parseInt64(raw.Sequence); ok {
		rec.Sequence = seq
	}
	return rec
}

// parseTimestamp combines the date and time columns. A nil result means the
// row cannot take part in time-ordered computations.
func parseTimestamp(date, clock string, loc *time.Location) *time.Time {
	if loc == nil {
		loc = time.Local
	}
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if date == "" {
		return nil
	}

	if clock == "" {
		for _, layout := range joinedLayouts {
			if ts, err := time.ParseInLocation(layout, date, loc); err == nil {
				return &ts
			}
		}
		return nil
	}

	day, ok := parseDate(date, loc)
	if !ok {
		return nil
	}
	h, m, sec, ok := parseClock(clock)
	if !ok {
		return nil
	}
	// Wall clock, not elapsed time since midnight: DST days are 23h or 25h long.
	ts := time.Date(day.Year(), day.Month(), day.Day(), h, m, sec, 0, loc)
	return &ts
}

func parseDate(v string, loc *time.Location) (time.Time, bool) {
	// date::text of a timestamp column carries a time part; keep the day only.
	if len(v) > 10 && v[4] == '-' {
		v = v[:10]
	}
	for _, layout := range dateLayouts {
		if d, err := time.ParseInLocation(layout, v, loc); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// parseClock accepts HH:MM:SS, HHMMSS (left padded to six digits) and the
// "0 days HH:MM:SS" rendering of a duration.
func parseClock(v string) (h, m, s int, ok bool) {
	if idx := strings.LastIndex(v, " "); idx >= 0 && strings.Contains(v, "day") {
		v = v[idx+1:]
	}
	if dot := strings.IndexByte(v, '.'); dot >= 0 {
		v = v[:dot]
	}

	var err error
	if strings.Contains(v, ":") {
		parts := strings.Split(v, ":")
		if len(parts) != 3 {
			return 0, 0, 0, false
		}
		if h, err = strconv.Atoi(parts[0]); err != nil {
			return 0, 0, 0, false
		}
		if m, err = strconv.Atoi(parts[1]); err != nil {
			return 0, 0, 0, false
		}
		if s, err = strconv.Atoi(parts[2]); err != nil {
			return 0, 0, 0, false
		}
	} else {
		if len(v) > 6 {
			return 0, 0, 0, false
		}
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 0 {
			return 0, 0, 0, false
		}
		h, m, s = n/10000, (n/100)%100, n%100
	}

	if h < 0 || h > 23 || m < 0 || m > 59 || s < 0 || s > 59 {
		return 0, 0, 0, false
	}
	return h, m, s, true
}

// parseCode reads an integer code that may have been stored as float text.
func parseCode(v string) (int, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func parseInt64(v string) (int64, bool) {
	v = strings.TrimSpace(v)
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}
