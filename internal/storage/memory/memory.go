// Package memory is an in-process ledger store for tests and DATA_BACKEND=memory.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

type state struct {
	txs       map[string]core.Transaction
	templates map[string]core.RecurringTemplate
	closed    map[core.Competency]time.Time
}

func newState() state {
	return state{
		txs:       map[string]core.Transaction{},
		templates: map[string]core.RecurringTemplate{},
		closed:    map[core.Competency]time.Time{},
	}
}

func (s state) clone() state {
	return state{
		txs:       maps.Clone(s.txs),
		templates: maps.Clone(s.templates),
		closed:    maps.Clone(s.closed),
	}
}

// Store keeps the ledger in maps guarded by one mutex. A transaction works on
// a copy of the state that replaces the live state only on commit.
type Store struct {
	mu sync.Mutex
	st state
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState()}
}

// WithinTx runs fn against a private copy of the ledger. fn must use the Tx it
// receives; calling the Store from inside fn deadlocks.
func (s *Store) WithinTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{view: view{st: s.st.clone()}}
	if err := fn(tx); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) read() view {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Maps are replaced wholesale on commit, never mutated in place, so the
	// snapshot stays valid after the lock is released.
	return view{st: s.st}
}

func (s *Store) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return s.read().GetTransaction(ctx, id)
}

func (s *Store) ListByCompetency(ctx context.Context, c core.Competency) ([]core.Transaction, error) {
	return s.read().ListByCompetency(ctx, c)
}

func (s *Store) ListByGroup(ctx context.Context, groupID string) ([]core.Transaction, error) {
	return s.read().ListByGroup(ctx, groupID)
}

func (s *Store) ListByDateRange(ctx context.Context, from, to core.Date) ([]core.Transaction, error) {
	return s.read().ListByDateRange(ctx, from, to)
}

func (s *Store) FindMaterialization(ctx context.Context, templateID string, c core.Competency) (core.Transaction, bool, error) {
	return s.read().FindMaterialization(ctx, templateID, c)
}

func (s *Store) GetTemplate(ctx context.Context, id string) (core.RecurringTemplate, error) {
	return s.read().GetTemplate(ctx, id)
}

func (s *Store) ListTemplates(ctx context.Context) ([]core.RecurringTemplate, error) {
	return s.read().ListTemplates(ctx)
}

func (s *Store) IsClosed(ctx context.Context, c core.Competency) (bool, error) {
	return s.read().IsClosed(ctx, c)
}

func (s *Store) ListClosedMonths(ctx context.Context) ([]core.ClosedMonth, error) {
	return s.read().ListClosedMonths(ctx)
}

type view struct {
	st state
}

func (v view) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	t, ok := v.st.txs[id]
	if !ok {
		return core.Transaction{}, fmt.Errorf("%w: %s", core.ErrTransactionNotFound, id)
	}
	return t, nil
}

func (v view) filter(keep func(core.Transaction) bool) []core.Transaction {
	out := []core.Transaction{}
	for _, t := range v.st.txs {
		if keep(t) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, byDateThenID)
	return out
}

func byDateThenID(a, b core.Transaction) int {
	if c := a.Date.Compare(b.Date.Time); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func (v view) ListByCompetency(_ context.Context, c core.Competency) ([]core.Transaction, error) {
	return v.filter(func(t core.Transaction) bool { return t.Competency == c }), nil
}

func (v view) ListByGroup(_ context.Context, groupID string) ([]core.Transaction, error) {
	out := v.filter(func(t core.Transaction) bool { return t.GroupID == groupID })
	slices.SortFunc(out, func(a, b core.Transaction) int {
		if a.InstallmentNumber != b.InstallmentNumber {
			return a.InstallmentNumber - b.InstallmentNumber
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (v view) ListByDateRange(_ context.Context, from, to core.Date) ([]core.Transaction, error) {
	return v.filter(func(t core.Transaction) bool {
		return !t.Date.Before(from.Time) && !t.Date.After(to.Time)
	}), nil
}

func (v view) FindMaterialization(_ context.Context, templateID string, c core.Competency) (core.Transaction, bool, error) {
	for _, t := range v.st.txs {
		if t.SourceTemplateID == templateID && t.Competency == c {
			return t, true, nil
		}
	}
	return core.Transaction{}, false, nil
}

func (v view) GetTemplate(_ context.Context, id string) (core.RecurringTemplate, error) {
	rt, ok := v.st.templates[id]
	if !ok {
		return core.RecurringTemplate{}, fmt.Errorf("%w: %s", core.ErrTemplateNotFound, id)
	}
	return rt, nil
}

func (v view) ListTemplates(_ context.Context) ([]core.RecurringTemplate, error) {
	out := slices.Collect(maps.Values(v.st.templates))
	slices.SortFunc(out, func(a, b core.RecurringTemplate) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if out == nil {
		out = []core.RecurringTemplate{}
	}
	return out, nil
}

func (v view) IsClosed(_ context.Context, c core.Competency) (bool, error) {
	_, ok := v.st.closed[c]
	return ok, nil
}

func (v view) ListClosedMonths(_ context.Context) ([]core.ClosedMonth, error) {
	out := make([]core.ClosedMonth, 0, len(v.st.closed))
	for c, at := range v.st.closed {
		out = append(out, core.ClosedMonth{Month: c, ClosedAt: at})
	}
	slices.SortFunc(out, func(a, b core.ClosedMonth) int {
		return core.MonthsBetween(b.Month, a.Month)
	})
	return out, nil
}

type memTx struct {
	view
}

func (tx *memTx) materializationTaken(t core.Transaction) bool {
	if t.SourceTemplateID == "" {
		return false
	}
	for id, other := range tx.st.txs {
		if id != t.ID && other.SourceTemplateID == t.SourceTemplateID && other.Competency == t.Competency {
			return true
		}
	}
	return false
}

func (tx *memTx) InsertTransactions(_ context.Context, txs ...core.Transaction) error {
	for _, t := range txs {
		if t.ID == "" {
			return fmt.Errorf("insert transaction: empty id")
		}
		if _, exists := tx.st.txs[t.ID]; exists {
			return fmt.Errorf("insert transaction: duplicate id %s", t.ID)
		}
		if tx.materializationTaken(t) {
			return fmt.Errorf("%w: template %s, %s", core.ErrDuplicateMaterialization, t.SourceTemplateID, t.Competency)
		}
		tx.st.txs[t.ID] = t
	}
	return nil
}

func (tx *memTx) UpdateTransaction(_ context.Context, t core.Transaction) error {
	if _, ok := tx.st.txs[t.ID]; !ok {
		return fmt.Errorf("%w: %s", core.ErrTransactionNotFound, t.ID)
	}
	if tx.materializationTaken(t) {
		return fmt.Errorf("%w: template %s, %s", core.ErrDuplicateMaterialization, t.SourceTemplateID, t.Competency)
	}
	tx.st.txs[t.ID] = t
	return nil
}

func (tx *memTx) DeleteTransaction(_ context.Context, id string) error {
	if _, ok := tx.st.txs[id]; !ok {
		return fmt.Errorf("%w: %s", core.ErrTransactionNotFound, id)
	}
	delete(tx.st.txs, id)
	return nil
}

func (tx *memTx) DeleteGroup(_ context.Context, groupID string) (int, error) {
	n := 0
	for id, t := range tx.st.txs {
		if t.GroupID == groupID {
			delete(tx.st.txs, id)
			n++
		}
	}
	return n, nil
}

func (tx *memTx) SaveTemplate(_ context.Context, rt core.RecurringTemplate) error {
	if rt.ID == "" {
		return fmt.Errorf("save template: empty id")
	}
	tx.st.templates[rt.ID] = rt
	return nil
}

func (tx *memTx) DeleteTemplate(_ context.Context, id string) error {
	if _, ok := tx.st.templates[id]; !ok {
		return fmt.Errorf("%w: %s", core.ErrTemplateNotFound, id)
	}
	delete(tx.st.templates, id)
	return nil
}

func (tx *memTx) CloseMonth(_ context.Context, c core.Competency, at time.Time) error {
	if _, ok := tx.st.closed[c]; ok {
		return fmt.Errorf("%w: %s", core.ErrMonthAlreadyClosed, c)
	}
	tx.st.closed[c] = at.UTC()
	return nil
}

func (tx *memTx) ReopenMonth(_ context.Context, c core.Competency) error {
	delete(tx.st.closed, c)
	return nil
}
