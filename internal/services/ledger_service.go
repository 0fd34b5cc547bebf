package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

// LedgerService is the single entry point for ledger mutations. Every mutation
// runs as one store transaction that starts with a ClosureGate check.
// Committed changes are then published best effort.
type LedgerService struct {
	store     ledger.Store
	gate      *ClosureGate
	planner   *InstallmentPlanner
	recurring *RecurringProcessor
	events    ledger.EventPublisher
	locks     *keyLocker
	now       func() time.Time
	newID     func() string
}

type Option func(*LedgerService)

// WithEventPublisher sets where committed changes are announced.
func WithEventPublisher(p ledger.EventPublisher) Option {
	return func(s *LedgerService) {
		if p != nil {
			s.events = p
		}
	}
}

// WithClock overrides the time source, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) {
		s.now = now
		s.gate.now = now
		s.planner.now = now
	}
}

// WithIDGenerator overrides id generation, mostly for tests.
func WithIDGenerator(newID func() string) Option {
	return func(s *LedgerService) {
		s.newID = newID
		s.planner.newID = newID
	}
}

func NewLedgerService(store ledger.Store, opts ...Option) *LedgerService {
	s := &LedgerService{
		store:   store,
		gate:    NewClosureGate(store),
		planner: NewInstallmentPlanner(),
		events:  ledger.NopPublisher{},
		locks:   newKeyLocker(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.recurring = NewRecurringProcessor(s, MonthlyChecker{})
	return s
}

// Gate exposes the closed month set.
func (s *LedgerService) Gate() *ClosureGate { return s.gate }

// Recurring exposes the recurring template processor.
func (s *LedgerService) Recurring() *RecurringProcessor { return s.recurring }

// CreateTransaction records a purchase as one transaction or, when Count > 1,
// as an installment group. Nothing is stored if any resulting month is closed.
func (s *LedgerService) CreateTransaction(ctx context.Context, in Purchase) ([]core.Transaction, error) {
	if err := in.Details.Validate(); err != nil {
		return nil, err
	}
	planned, err := s.planner.Plan(in)
	if err != nil {
		return nil, err
	}
	if planned[0].GroupID != "" {
		defer s.locks.Lock(groupKey(planned[0].GroupID))()
	}

	err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		if err := s.gate.Guard(ctx, tx, OpCreate, competenciesOf(planned)...); err != nil {
			return err
		}
		return tx.InsertTransactions(ctx, planned...)
	})
	if err != nil {
		return nil, s.fail(ctx, "create transaction", err)
	}

	slog.InfoContext(ctx, "Transaction created",
		"transaction_id", planned[0].ID,
		"group_id", planned[0].GroupID,
		"installments", len(planned),
		"value", in.Total.String(),
		"competency", planned[0].Competency.String())
	s.publish(ctx, ledger.Event{
		Kind:           ledger.TransactionsCreated,
		Competencies:   competenciesOf(planned),
		TransactionIDs: idsOf(planned),
		GroupID:        planned[0].GroupID,
	})
	return planned, nil
}

// TransactionUpdate replaces the editable fields of a transaction. Zero
// Date, Competency or Value keep the stored one. The installment fields are
// only accepted when they repeat the stored values.
type TransactionUpdate struct {
	Date       core.Date
	Competency core.Competency
	Value      core.Money
	Details    core.Details

	InstallmentNumber int
	TotalInstallments int
	GroupID           *string
}

// UpdateTransaction edits one transaction. Installment group members only
// accept descriptive changes; value and dates move through ReplanGroup.
func (s *LedgerService) UpdateTransaction(ctx context.Context, id string, in TransactionUpdate) (core.Transaction, error) {
	current, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	keys := []string{transactionKey(id)}
	if current.GroupID != "" {
		keys = append(keys, groupKey(current.GroupID))
	}
	defer s.locks.Lock(keys...)()

	var updated core.Transaction
	err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		fresh, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		current = fresh
		if err := s.gate.Guard(ctx, tx, OpUpdate, current.Competency); err != nil {
			return err
		}
		if !in.Competency.IsZero() && in.Competency != current.Competency {
			if err := in.Competency.Validate(); err != nil {
				return err
			}
			if err := s.gate.Guard(ctx, tx, OpUpdate, in.Competency); err != nil {
				return err
			}
		}
		updated, err = applyUpdate(current, in, s.now().UTC())
		if err != nil {
			return err
		}
		return tx.UpdateTransaction(ctx, updated)
	})
	if err != nil {
		return core.Transaction{}, s.fail(ctx, "update transaction", err)
	}

	slog.InfoContext(ctx, "Transaction updated",
		"transaction_id", id,
		"competency", updated.Competency.String(),
		"value", updated.Value.String())
	s.publish(ctx, ledger.Event{
		Kind:           ledger.TransactionUpdated,
		Competencies:   uniqueCompetencies(current.Competency, updated.Competency),
		TransactionIDs: []string{id},
		GroupID:        updated.GroupID,
	})
	return updated, nil
}

func applyUpdate(current core.Transaction, in TransactionUpdate, now time.Time) (core.Transaction, error) {
	next := current
	if !in.Date.IsEmpty() {
		next.Date = in.Date
	}
	if !in.Competency.IsZero() {
		next.Competency = in.Competency
	}
	if in.Value.Cents != 0 {
		next.Value = in.Value
	}
	next.Details = in.Details
	next.UpdatedAt = now

	if (in.InstallmentNumber != 0 && in.InstallmentNumber != current.InstallmentNumber) ||
		(in.TotalInstallments != 0 && in.TotalInstallments != current.TotalInstallments) ||
		(in.GroupID != nil && *in.GroupID != current.GroupID) {
		return core.Transaction{}, fmt.Errorf("%w: installment layout of %s is fixed, use a group re-plan", core.ErrGroupMemberEdit, current.ID)
	}
	if current.IsInstallment() &&
		(!next.Date.Equal(current.Date.Time) || next.Competency != current.Competency || next.Value != current.Value) {
		return core.Transaction{}, fmt.Errorf("%w: transaction %s belongs to group %s", core.ErrGroupMemberEdit, current.ID, current.GroupID)
	}
	if err := next.Validate(); err != nil {
		return core.Transaction{}, err
	}
	return next, nil
}

func (s *LedgerService) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

// ListTransactions returns the transactions counting toward a month.
func (s *LedgerService) ListTransactions(ctx context.Context, c core.Competency) ([]core.Transaction, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListByCompetency(ctx, c)
}

// ListTransactionsBetween returns transactions dated within [from, to].
func (s *LedgerService) ListTransactionsBetween(ctx context.Context, from, to core.Date) ([]core.Transaction, error) {
	if err := from.Validate(); err != nil {
		return nil, err
	}
	if err := to.Validate(); err != nil {
		return nil, err
	}
	if to.Before(from.Time) {
		return nil, fmt.Errorf("%w: %s is before %s", core.ErrInvalidDate, to, from)
	}
	return s.store.ListByDateRange(ctx, from, to)
}

// DeleteTransaction removes a single transaction. Installments are removed
// only together with their group.
func (s *LedgerService) DeleteTransaction(ctx context.Context, id string) error {
	defer s.locks.Lock(transactionKey(id))()

	var removed core.Transaction
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		var err error
		removed, err = tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if err := s.gate.Guard(ctx, tx, OpDelete, removed.Competency); err != nil {
			return err
		}
		if removed.IsInstallment() {
			return fmt.Errorf("%w: delete group %s instead of installment %s", core.ErrGroupMemberEdit, removed.GroupID, id)
		}
		return tx.DeleteTransaction(ctx, id)
	})
	if err != nil {
		return s.fail(ctx, "delete transaction", err)
	}

	slog.InfoContext(ctx, "Transaction deleted",
		"transaction_id", id,
		"competency", removed.Competency.String())
	s.publish(ctx, ledger.Event{
		Kind:           ledger.TransactionsDeleted,
		Competencies:   []core.Competency{removed.Competency},
		TransactionIDs: []string{id},
	})
	return nil
}

// ListInstallments returns a group ordered by installment number after
// checking the group invariant.
func (s *LedgerService) ListInstallments(ctx context.Context, groupID string) ([]core.Transaction, error) {
	members, err := s.store.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrGroupNotFound, groupID)
	}
	if err := ValidateGroup(groupID, members); err != nil {
		return nil, s.fail(ctx, "list installments", err)
	}
	return members, nil
}

// ReplanGroup recomputes every installment of a group for a new total and/or
// purchase date. Both the old and the new months of every member must be open.
func (s *LedgerService) ReplanGroup(ctx context.Context, groupID string, newTotal *core.Money, newDate *core.Date) ([]core.Transaction, error) {
	defer s.locks.Lock(groupKey(groupID))()

	var before, after []core.Transaction
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		var err error
		before, err = tx.ListByGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if len(before) == 0 {
			return fmt.Errorf("%w: %s", core.ErrGroupNotFound, groupID)
		}
		if after, err = s.planner.Replan(before, newTotal, newDate); err != nil {
			return err
		}
		if err := s.gate.Guard(ctx, tx, OpReplan, competenciesOf(before, after)...); err != nil {
			return err
		}
		for _, m := range after {
			if err := tx.UpdateTransaction(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "replan group", err)
	}

	slog.InfoContext(ctx, "Installment group replanned",
		"group_id", groupID,
		"installments", len(after),
		"value", core.Sum(valuesOf(after)...).String(),
		"competency", after[0].Competency.String())
	s.publish(ctx, ledger.Event{
		Kind:           ledger.GroupReplanned,
		Competencies:   competenciesOf(before, after),
		TransactionIDs: idsOf(after),
		GroupID:        groupID,
	})
	return after, nil
}

// DeleteGroup removes every installment of a group, or none of them when any
// member counts toward a closed month.
func (s *LedgerService) DeleteGroup(ctx context.Context, groupID string) error {
	defer s.locks.Lock(groupKey(groupID))()

	var members []core.Transaction
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		var err error
		members, err = tx.ListByGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if len(members) == 0 {
			return fmt.Errorf("%w: %s", core.ErrGroupNotFound, groupID)
		}
		if err := s.gate.Guard(ctx, tx, OpDeleteGroup, competenciesOf(members)...); err != nil {
			return err
		}
		_, err = tx.DeleteGroup(ctx, groupID)
		return err
	})
	if err != nil {
		return s.fail(ctx, "delete group", err)
	}

	slog.InfoContext(ctx, "Installment group deleted",
		"group_id", groupID,
		"installments", len(members))
	s.publish(ctx, ledger.Event{
		Kind:           ledger.TransactionsDeleted,
		Competencies:   competenciesOf(members),
		TransactionIDs: idsOf(members),
		GroupID:        groupID,
	})
	return nil
}

// GenerateRecurring materializes every due recurring template into c.
func (s *LedgerService) GenerateRecurring(ctx context.Context, c core.Competency) (GenerationResult, error) {
	return s.recurring.Generate(ctx, c)
}

// CloseMonth closes c and announces it.
func (s *LedgerService) CloseMonth(ctx context.Context, c core.Competency) ([]core.ClosedMonth, error) {
	months, err := s.gate.Close(ctx, c)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, ledger.Event{Kind: ledger.MonthClosed, Competencies: []core.Competency{c}})
	return months, nil
}

// ReopenMonth reopens c and announces it.
func (s *LedgerService) ReopenMonth(ctx context.Context, c core.Competency) ([]core.ClosedMonth, error) {
	months, err := s.gate.Reopen(ctx, c)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, ledger.Event{Kind: ledger.MonthReopened, Competencies: []core.Competency{c}})
	return months, nil
}

// TemplateState reports whether a template is due or generated in c.
func (s *LedgerService) TemplateState(ctx context.Context, templateID string, c core.Competency) (ScheduleState, error) {
	return s.recurring.State(ctx, templateID, c)
}

func (s *LedgerService) ListClosedMonths(ctx context.Context) ([]core.ClosedMonth, error) {
	return s.gate.List(ctx)
}

func (s *LedgerService) IsClosed(ctx context.Context, c core.Competency) (bool, error) {
	return s.gate.IsClosed(ctx, c)
}

// Close closes the underlying store.
func (s *LedgerService) Close() error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("close ledger store: %w", err)
	}
	return nil
}

// fail logs the error by kind and returns it wrapped with op. Rejections show
// at debug level only; the gate already warned about closed months.
func (s *LedgerService) fail(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, core.ErrInconsistentGroup):
		slog.ErrorContext(ctx, "Installment group invariant violated", "operation", op, "error", err)
	case errors.Is(err, core.ErrMonthClosed), errors.Is(err, core.ErrDuplicateMaterialization),
		core.IsInvalidInput(err), core.IsNotFound(err):
		slog.DebugContext(ctx, "Ledger operation rejected", "operation", op, "error", err)
	default:
		slog.ErrorContext(ctx, "Ledger operation failed", "operation", op, "error", err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *LedgerService) publish(ctx context.Context, e ledger.Event) {
	e.OccurredAt = s.now().UTC()
	if err := s.events.Publish(ctx, e); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"kind", e.Kind,
			"error", err)
	}
}

func idsOf(txs []core.Transaction) []string {
	out := make([]string, len(txs))
	for i, t := range txs {
		out[i] = t.ID
	}
	return out
}

func uniqueCompetencies(cs ...core.Competency) []core.Competency {
	out := make([]core.Competency, 0, len(cs))
	for _, c := range cs {
		dup := false
		for _, o := range out {
			if o == c {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}
