package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"ledger/internal/backend"
	"ledger/internal/cli"
	"ledger/internal/log"
	"ledger/internal/worker"
)

func main() {
	logger, cfg := cli.Bootstrap(log.ComponentWorker)
	logger.Info("Starting ledger-worker")

	ctx, stop := cli.GracefulShutdown(logger)
	defer stop()

	be := cli.OpenBackend(ctx, logger, cfg)
	defer be.Close(logger)
	if be.Config.Type != backend.SQLiteBackend {
		logger.Warn("Mirror worker reads its own store; with the memory backend it sees no API writes")
	}

	mirror, err := be.Factory.CreateMirror(ctx, be.Config)
	if err != nil {
		logger.Error("Failed to initialize ledger mirror", log.FieldError, err)
		os.Exit(1)
	}

	mcfg := worker.DefaultMirrorConfig()
	mcfg.ResyncInterval = cfg.MirrorResyncInterval
	mw := worker.NewMirrorWorker(be.Store.Store, mirror, mcfg)
	if err := mw.Start(ctx); err != nil {
		logger.Error("Failed to start mirror worker", log.FieldError, err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)

	pub, err := be.Factory.CreatePublisher(ctx, be.Config)
	switch {
	case err != nil:
		logger.Warn("AMQP unavailable, mirroring on resync only", log.FieldError, err)
	case pub == nil:
		logger.Info("Mirroring on resync only", "interval", mcfg.ResyncInterval)
	default:
		defer pub.Cleanup()
		g.Go(func() error {
			return pub.Client.ConsumeEvents(gctx, mw.HandleEvent)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := cli.ShutdownContext()
		defer cancel()
		return mw.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Ledger-worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Ledger-worker shutdown complete")
}
