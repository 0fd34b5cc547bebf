// Package worker keeps the spreadsheet mirror in step with the ledger.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/sheets"
)

// MirrorConfig holds configuration for the mirror worker
type MirrorConfig struct {
	// ResyncInterval is how often the recent months are rewritten (default: 1h)
	ResyncInterval time.Duration

	// LookbackMonths and LookaheadMonths bound the resync window around the
	// current month. Installments reach into future months, hence the lookahead.
	LookbackMonths  int
	LookaheadMonths int

	Now func() time.Time
}

// DefaultMirrorConfig returns sensible defaults
func DefaultMirrorConfig() MirrorConfig {
	return MirrorConfig{
		ResyncInterval:  time.Hour,
		LookbackMonths:  1,
		LookaheadMonths: 3,
		Now:             time.Now,
	}
}

// MirrorWorker rewrites mirrored months from the ledger. Events name the
// months to rewrite; the periodic resync covers events that were lost.
type MirrorWorker struct {
	reader ledger.Reader
	mirror sheets.LedgerMirror
	config MirrorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewMirrorWorker(reader ledger.Reader, mirror sheets.LedgerMirror, config MirrorConfig) *MirrorWorker {
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.ResyncInterval <= 0 {
		config.ResyncInterval = DefaultMirrorConfig().ResyncInterval
	}
	return &MirrorWorker{reader: reader, mirror: mirror, config: config}
}

// HandleEvent mirrors every competency the event touched.
func (w *MirrorWorker) HandleEvent(ctx context.Context, e ledger.Event) error {
	slog.InfoContext(ctx, "Processing ledger event",
		"kind", e.Kind,
		"competencies", len(e.Competencies))

	var errs []error
	for _, c := range e.Competencies {
		if err := w.SyncCompetency(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SyncCompetency replaces the mirrored rows of c with the ledger's.
func (w *MirrorWorker) SyncCompetency(ctx context.Context, c core.Competency) error {
	txs, err := w.reader.ListByCompetency(ctx, c)
	if err != nil {
		return fmt.Errorf("list %s: %w", c, err)
	}
	if err := w.mirror.ReplaceCompetency(ctx, c, txs); err != nil {
		slog.ErrorContext(ctx, "Failed to mirror competency",
			"competency", c.String(),
			"error", err)
		return fmt.Errorf("mirror %s: %w", c, err)
	}
	slog.DebugContext(ctx, "Mirrored competency", "competency", c.String(), "transactions", len(txs))
	return nil
}

// ResyncRecent rewrites every month of the resync window, continuing past failures.
func (w *MirrorWorker) ResyncRecent(ctx context.Context) error {
	current := core.CompetencyOf(core.DateOf(w.config.Now()))
	synced, failed := 0, 0
	var errs []error
	for i := -w.config.LookbackMonths; i <= w.config.LookaheadMonths; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.SyncCompetency(ctx, current.AddMonths(i)); err != nil {
			failed++
			errs = append(errs, err)
			continue
		}
		synced++
	}
	slog.InfoContext(ctx, "Mirror resync completed",
		"current", current.String(),
		"synced", synced,
		"errors", failed)
	return errors.Join(errs...)
}

// Start begins the resync loop. Returns an error if already running.
func (w *MirrorWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("mirror worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.runLoop(ctx)

	slog.InfoContext(ctx, "Mirror worker started",
		"resync_interval", w.config.ResyncInterval,
		"lookback_months", w.config.LookbackMonths,
		"lookahead_months", w.config.LookaheadMonths)
	return nil
}

// Stop gracefully stops the worker and waits for the loop to exit.
func (w *MirrorWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Mirror worker stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Mirror worker stop timed out")
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

func (w *MirrorWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *MirrorWorker) runLoop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.ResyncInterval)
	defer ticker.Stop()

	// Resync immediately on startup to recover from worker downtime
	w.resync(ctx)

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.resync(ctx)
		}
	}
}

func (w *MirrorWorker) resync(ctx context.Context) {
	if err := w.ResyncRecent(ctx); err != nil && ctx.Err() == nil {
		slog.WarnContext(ctx, "Mirror resync finished with errors", "error", err)
	}
}
