package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"svfe-monitor/internal/model"
	"svfe-monitor/internal/service"
)

// ShowAlerts prints the most recent persisted alerts.
func (a *App) ShowAlerts(ctx context.Context, opts AlertsOptions) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.ListRecentAlerts(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(a.Out, "no alerts found")
		return nil
	}
	a.printAlerts(events)
	return nil
}

func (a *App) printAlerts(events []model.AlertEvent) {
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tTime (UTC)\tRule\tSeverity\tSubject\tMessage")
	for _, event := range events {
		id := "-"
		if event.ID > 0 {
			id = fmt.Sprintf("%d", event.ID)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			id,
			event.CreatedAt.UTC().Format(time.RFC3339),
			event.Rule,
			event.Severity,
			event.Subject,
			sanitizeInline(event.Message),
		)
	}
	writer.Flush()
}

// printEvaluation renders a cycle outcome for the evaluate and simulate commands.
func (a *App) printEvaluation(res service.CycleResult) {
	if res.Snapshot.Total == 0 {
		fmt.Fprintf(a.Out, "source %s: no transactions\n", res.Source)
		return
	}

	snap := res.Snapshot
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Source\t%s\n", res.Source)
	fmt.Fprintf(writer, "Transactions\t%d\n", snap.Total)
	fmt.Fprintf(writer, "Success rate\t%.2f%%\n", snap.SuccessRate)
	fmt.Fprintf(writer, "Refusal rate\t%.2f%%\n", snap.RefusalRate)
	if snap.HasRefusalCode() {
		fmt.Fprintf(writer, "Top refusal code\t%d (%d)\n", snap.MostFrequentCode, snap.MostFrequentCount)
	}
	fmt.Fprintf(writer, "Fresh\t%t\n", snap.DataFresh)
	fmt.Fprintf(writer, "Stable\t%t\n", snap.SystemStable)
	writer.Flush()

	if len(res.Events) == 0 {
		fmt.Fprintln(a.Out, "no alert raised")
		return
	}
	fmt.Fprintln(a.Out)
	a.printAlerts(res.Events)

	if res.DryRun {
		fmt.Fprintln(a.Out, "dry run: alerts were not dispatched")
		return
	}
	r := res.Report
	fmt.Fprintf(a.Out, "persisted=%d persist_failed=%d suppressed=%d notified=%d notify_failed=%d\n",
		r.Persisted, r.PersistFailed, r.Suppressed, r.Notified, r.NotifyFailed)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
