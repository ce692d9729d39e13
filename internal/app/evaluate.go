package app

import (
	"context"

	"svfe-monitor/internal/service"
)

// Evaluate runs a single evaluation cycle against the chosen table.
func (a *App) Evaluate(ctx context.Context, opts EvaluateOptions) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	var dispatcher service.Dispatcher
	if opts.DryRun {
		a.Logger.Warn().Msg("evaluate dry-run: alerts will not be stored or sent")
	} else {
		d, closeDispatcher, err := a.newDispatcher(ctx, store, nil)
		if err != nil {
			return err
		}
		defer closeDispatcher()
		dispatcher = d
	}

	svc, err := a.newService(store, store, dispatcher)
	if err != nil {
		return err
	}

	result, err := svc.Evaluate(ctx, opts.Source, opts.DryRun)
	if err != nil {
		return err
	}
	a.printEvaluation(result)
	return nil
}
