// Package ledger declares the contract between the mutation core and the
// stores and event sinks behind it.
package ledger

import (
	"context"
	"errors"
	"time"

	"ledger/internal/core"
)

// Ports for outbound adapters.
type (
	// Reader answers the queries both the core and read-only consumers need.
	// Implementations return core.ErrTransactionNotFound / core.ErrTemplateNotFound
	// for missing ids; list queries return an empty slice, never an error, when
	// nothing matches.
	Reader interface {
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
		// ListByCompetency returns the transactions of a month ordered by date, then id.
		ListByCompetency(ctx context.Context, c core.Competency) ([]core.Transaction, error)
		// ListByGroup returns the installments of a group ordered by installment number.
		ListByGroup(ctx context.Context, groupID string) ([]core.Transaction, error)
		// ListByDateRange returns transactions dated within [from, to].
		ListByDateRange(ctx context.Context, from, to core.Date) ([]core.Transaction, error)
		// FindMaterialization looks up the transaction generated from a template for a month.
		FindMaterialization(ctx context.Context, templateID string, c core.Competency) (core.Transaction, bool, error)

		GetTemplate(ctx context.Context, id string) (core.RecurringTemplate, error)
		ListTemplates(ctx context.Context) ([]core.RecurringTemplate, error)

		IsClosed(ctx context.Context, c core.Competency) (bool, error)
		// ListClosedMonths returns the closed set in chronological order.
		ListClosedMonths(ctx context.Context) ([]core.ClosedMonth, error)
	}

	// Tx is one atomic unit of work. Reads through a Tx observe its own writes.
	Tx interface {
		Reader

		// InsertTransactions fails with core.ErrDuplicateMaterialization when a
		// (SourceTemplateID, Competency) pair already exists.
		InsertTransactions(ctx context.Context, txs ...core.Transaction) error
		UpdateTransaction(ctx context.Context, t core.Transaction) error
		DeleteTransaction(ctx context.Context, id string) error
		// DeleteGroup removes every installment of a group and returns how many were removed.
		DeleteGroup(ctx context.Context, groupID string) (int, error)

		// SaveTemplate inserts or replaces a template by id.
		SaveTemplate(ctx context.Context, rt core.RecurringTemplate) error
		DeleteTemplate(ctx context.Context, id string) error

		// CloseMonth fails with core.ErrMonthAlreadyClosed when the month is in the set.
		CloseMonth(ctx context.Context, c core.Competency, at time.Time) error
		// ReopenMonth removes the month from the set; reopening an open month is a no-op.
		ReopenMonth(ctx context.Context, c core.Competency) error
	}

	// Store is the durable ledger. WithinTx commits when fn returns nil and
	// rolls back otherwise, returning fn's error unchanged.
	Store interface {
		Reader
		WithinTx(ctx context.Context, fn func(tx Tx) error) error
		Close() error
	}

	// EventPublisher fans out ledger changes after they are committed.
	// Publishing is best effort; the ledger never depends on delivery.
	EventPublisher interface {
		Publish(ctx context.Context, e Event) error
	}
)

// EventKind names what happened to the ledger.
type EventKind string

const (
	TransactionsCreated EventKind = "transactions.created"
	TransactionUpdated  EventKind = "transaction.updated"
	TransactionsDeleted EventKind = "transactions.deleted"
	GroupReplanned      EventKind = "group.replanned"
	RecurringGenerated  EventKind = "recurring.generated"
	MonthClosed         EventKind = "month.closed"
	MonthReopened       EventKind = "month.reopened"
)

// Event describes a committed change. Competencies lists every month whose
// contents changed so consumers can refresh them.
type Event struct {
	Kind           EventKind         `json:"kind"`
	Competencies   []core.Competency `json:"competencies"`
	TransactionIDs []string          `json:"transactionIds,omitempty"`
	GroupID        string            `json:"groupId,omitempty"`
	TemplateID     string            `json:"templateId,omitempty"`
	OccurredAt     time.Time         `json:"occurredAt"`
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Publishers fans an event out to every publisher and joins their errors.
type Publishers []EventPublisher

func (ps Publishers) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range ps {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
