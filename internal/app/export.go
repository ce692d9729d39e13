package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"svfe-monitor/internal/kpi"
	"svfe-monitor/internal/service"
)

// trendDay anchors HH:MM bucket labels on a time axis.
var trendDay = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Export renders the trend series of a table as CSV and/or PNG, and the
// channel distribution as a donut chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" && opts.DistributionPNGPath == "" {
		return errors.New("at least one of --csv, --png or --distribution-png must be provided")
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := a.newService(store, store, nil)
	if err != nil {
		return err
	}

	if opts.DistributionPNGPath != "" {
		dist, err := svc.TerminalDistribution(ctx, opts.Source)
		if err != nil {
			return err
		}
		title := fmt.Sprintf("%s transactions by terminal type", opts.Source)
		if err := writeDistributionPNG(opts.DistributionPNGPath, title, dist.Channels, a.Config.Export.Width, a.Config.Export.Height); err != nil {
			return err
		}
		a.Logger.Info().
			Str("source", string(opts.Source)).
			Int("channels", len(dist.Channels)).
			Str("path", opts.DistributionPNGPath).
			Msg("exported terminal distribution")
	}
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return nil
	}

	points, err := svc.Trends(ctx, opts.Source, service.TrendQuery{Bucket: opts.Bucket, LatestDayOnly: opts.LatestDayOnly})
	if err != nil {
		return err
	}
	bucket := opts.Bucket
	if bucket <= 0 {
		bucket = svc.DefaultBucket(opts.Source)
	}
	a.Logger.Info().
		Str("source", string(opts.Source)).
		Int("points", len(points)).
		Dur("bucket", bucket).
		Msg("exporting trends")

	if opts.CSVPath != "" {
		if err := writeTrendsCSV(opts.CSVPath, points); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		title := fmt.Sprintf("%s transactions, %s buckets", opts.Source, bucket)
		if err := writeTrendsPNG(opts.PNGPath, title, points, a.Config.Export.Width, a.Config.Export.Height); err != nil {
			return err
		}
	}

	return nil
}

func writeTrendsCSV(path string, points []kpi.TrendPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"time", "total_transactions", "successful_transactions", "refused_transactions", "success_rate", "refusal_rate"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, p := range points {
		record := []string{
			p.Bucket,
			strconv.Itoa(p.Total),
			strconv.Itoa(p.SuccessCount),
			strconv.Itoa(p.RefusalCount),
			strconv.FormatFloat(p.SuccessRate, 'f', 2, 64),
			strconv.FormatFloat(p.RefusalRate, 'f', 2, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// bucketTime places an HH:MM label on trendDay.
func bucketTime(label string) (time.Time, error) {
	t, err := time.Parse("15:04", label)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid bucket label %q: %w", label, err)
	}
	return trendDay.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute), nil
}

func writeTrendsPNG(path, title string, points []kpi.TrendPoint, width, height int) error {
	if len(points) < 2 {
		return fmt.Errorf("need at least two trend points to draw a chart, got %d", len(points))
	}
	if err := ensureDir(path); err != nil {
		return err
	}
	if width <= 0 {
		width = 1280
	}
	if height <= 0 {
		height = 720
	}

	x := make([]time.Time, len(points))
	success := make([]float64, len(points))
	refusal := make([]float64, len(points))
	volume := make([]float64, len(points))

	for i, p := range points {
		ts, err := bucketTime(p.Bucket)
		if err != nil {
			return err
		}
		x[i] = ts
		success[i] = p.SuccessRate
		refusal[i] = p.RefusalRate
		volume[i] = float64(p.Total)
	}

	pctFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f%%")
	}
	graph := chart.Chart{
		Title:  title,
		Width:  width,
		Height: height,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatterWithFormat("15:04"),
		},
		YAxis: chart.YAxis{
			Name:           "Rate (%)",
			ValueFormatter: pctFormatter,
			Range:          &chart.ContinuousRange{Min: 0, Max: 100},
		},
		YAxisSecondary: chart.YAxis{
			Name: "Transactions",
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Success rate",
				XValues: x,
				YValues: success,
			},
			chart.TimeSeries{
				Name:    "Refusal rate",
				XValues: x,
				YValues: refusal,
			},
			chart.TimeSeries{
				Name:    "Volume",
				XValues: x,
				YValues: volume,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

// writeDistributionPNG draws one donut slice per channel that saw traffic.
func writeDistributionPNG(path, title string, channels []service.ChannelStat, width, height int) error {
	values := make([]chart.Value, 0, len(channels))
	for _, ch := range channels {
		if ch.Count <= 0 {
			continue
		}
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s: %d (%.1f%% refused)", ch.Name, ch.Count, ch.RefusalRate),
			Value: float64(ch.Count),
		})
	}
	if len(values) == 0 {
		return errors.New("no channel traffic to draw")
	}
	if err := ensureDir(path); err != nil {
		return err
	}
	if width <= 0 {
		width = 1280
	}
	if height <= 0 {
		height = 720
	}

	donut := chart.DonutChart{
		Title:  title,
		Width:  width,
		Height: height,
		Values: values,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return donut.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
