package main

import (
	"context"
	"errors"
	"time"

	"ledger/internal/cli"
	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/log"
	"ledger/internal/services"
)

func main() {
	logger, cfg := cli.Bootstrap(log.ComponentRecurring)
	logger.Info("Starting recurring-worker")

	ctx, stop := cli.GracefulShutdown(logger)
	defer stop()

	be := cli.OpenBackend(ctx, logger, cfg)
	defer be.Close(logger)

	// Materializations are announced so the mirror worker picks them up.
	var publisher ledger.EventPublisher = ledger.NopPublisher{}
	pub, err := be.Factory.CreatePublisher(ctx, be.Config)
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err)
	} else if pub != nil {
		defer pub.Cleanup()
		publisher = pub.Client
	}

	svc := services.NewLedgerService(be.Store.Store, services.WithEventPublisher(publisher))
	processor := svc.Recurring()

	interval := cfg.RecurringInterval
	logger.Info("Recurring processor configured", "interval", interval, "backend", cfg.DataBackend)

	process := func(now time.Time) {
		result, err := processor.ProcessDue(ctx, now)
		switch {
		case errors.Is(err, core.ErrMonthClosed):
			logger.Warn("Current month is closed, nothing generated", log.FieldCompetency, core.CompetencyOf(core.DateOf(now)).String())
		case errors.Is(err, context.Canceled):
			// shutting down
		case err != nil:
			logger.Error("Recurring processing failed", log.FieldError, err)
		default:
			logger.Info("Recurring processing complete",
				log.FieldCompetency, result.Competency.String(),
				"generated", len(result.Generated),
				"skipped", len(result.Skipped),
				"failed", len(result.Failed),
				"next_check", now.Add(interval).Format("15:04:05"))
		}
	}

	process(time.Now())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Recurring-worker shutdown complete")
			return
		case now := <-ticker.C:
			process(now)
		}
	}
}
