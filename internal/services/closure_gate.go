package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

// Operation names the mutating entry point a gate check guards.
type Operation string

const (
	OpCreate      Operation = "create"
	OpUpdate      Operation = "update"
	OpDelete      Operation = "delete"
	OpReplan      Operation = "replan"
	OpDeleteGroup Operation = "delete-group"
	OpGenerate    Operation = "generate"
)

// ClosureGate owns the closed month set. Guard is called first by every
// mutating operation, with the reader of the transaction doing the mutation,
// so a month closed concurrently is never missed.
type ClosureGate struct {
	store ledger.Store
	now   func() time.Time
}

func NewClosureGate(store ledger.Store) *ClosureGate {
	return &ClosureGate{store: store, now: time.Now}
}

// Guard rejects op when any of the competencies is closed.
func (g *ClosureGate) Guard(ctx context.Context, r ledger.Reader, op Operation, comps ...core.Competency) error {
	for _, c := range comps {
		closed, err := r.IsClosed(ctx, c)
		if err != nil {
			return fmt.Errorf("check closed month: %w", err)
		}
		if closed {
			slog.WarnContext(ctx, "Mutation rejected by closed month",
				"operation", op,
				"competency", c.String())
			return fmt.Errorf("%w: %s", core.ErrMonthClosed, c)
		}
	}
	return nil
}

func (g *ClosureGate) IsClosed(ctx context.Context, c core.Competency) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, err
	}
	return g.store.IsClosed(ctx, c)
}

// Close adds c to the closed set and returns the resulting set.
// Closing a closed month fails with core.ErrMonthAlreadyClosed.
func (g *ClosureGate) Close(ctx context.Context, c core.Competency) ([]core.ClosedMonth, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	err := g.store.WithinTx(ctx, func(tx ledger.Tx) error {
		return tx.CloseMonth(ctx, c, g.now())
	})
	if err != nil {
		return nil, fmt.Errorf("close month: %w", err)
	}
	slog.InfoContext(ctx, "Competency month closed", "competency", c.String())
	return g.List(ctx)
}

// Reopen removes c from the closed set. Reopening an open month changes nothing.
func (g *ClosureGate) Reopen(ctx context.Context, c core.Competency) ([]core.ClosedMonth, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	err := g.store.WithinTx(ctx, func(tx ledger.Tx) error {
		return tx.ReopenMonth(ctx, c)
	})
	if err != nil {
		return nil, fmt.Errorf("reopen month: %w", err)
	}
	slog.InfoContext(ctx, "Competency month reopened", "competency", c.String())
	return g.List(ctx)
}

// List returns the closed months in chronological order.
func (g *ClosureGate) List(ctx context.Context) ([]core.ClosedMonth, error) {
	months, err := g.store.ListClosedMonths(ctx)
	if err != nil {
		return nil, fmt.Errorf("list closed months: %w", err)
	}
	return months, nil
}
