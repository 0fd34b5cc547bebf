package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"golang.org/x/sync/errgroup"

	"ledger/internal/backend"
	"ledger/internal/cache"
	"ledger/internal/cli"
	"ledger/internal/core"
	apphttp "ledger/internal/http"
	"ledger/internal/ledger"
	"ledger/internal/log"
	"ledger/internal/services"
)

func main() {
	logger, cfg := cli.Bootstrap(log.ComponentApp)

	ctx, stop := cli.GracefulShutdown(logger)
	defer stop()

	be := cli.OpenBackend(ctx, logger, cfg)
	defer be.Close(logger)

	// The list cache is evicted by ledger events, so it is built before the
	// service. CACHE_TTL=0 serves every list from the store.
	var (
		listCache   *apphttp.TransactionListCache
		invalidator ledger.EventPublisher = ledger.NopPublisher{}
	)
	if cfg.CacheTTL > 0 {
		listCache = apphttp.NewTransactionListCache(cfg.CacheTTL)
		invalidator = cache.NewInvalidator[[]core.Transaction](listCache)
	}
	publishers := ledger.Publishers{invalidator}

	pub, err := be.Factory.CreatePublisher(ctx, be.Config)
	if err != nil {
		logger.Warn("AMQP unavailable, ledger events will not reach the mirror worker", log.FieldError, err)
	} else if pub != nil {
		defer pub.Cleanup()
		publishers = append(publishers, pub.Client)
	}

	svc := services.NewLedgerService(be.Store.Store,
		services.WithEventPublisher(publishers))

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               cfg.Addr(),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
		ListCache:          listCache,
		Ready:              be.Store.Ping,
	}, svc)

	g, gctx := errgroup.WithContext(ctx)

	// Other processes write to the same store; their events evict our cache too.
	var (
		sub    *backend.PublisherResult
		subErr error
	)
	if listCache != nil {
		sub, subErr = be.Factory.CreateSubscriber(ctx, be.Config)
	}
	switch {
	case subErr != nil:
		logger.Warn("AMQP subscriber unavailable, worker writes reach the list cache only after its TTL",
			log.FieldError, subErr, "ttl", cfg.CacheTTL)
	case sub != nil:
		defer sub.Cleanup()
		g.Go(func() error {
			return sub.Client.ConsumeEvents(gctx, invalidator.Publish)
		})
	}
	g.Go(func() error {
		logger.Info("Starting ledger server", "addr", cfg.Addr(), "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := cli.ShutdownContext()
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server error", log.FieldError, err, "addr", cfg.Addr())
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
