// Package memory is an in-process LedgerMirror for local runs and tests.
package memory

import (
	"context"
	"slices"
	"sync"

	"ledger/internal/core"
	ports "ledger/internal/sheets"
)

type Mirror struct {
	mu     sync.Mutex
	rows   map[core.Competency][]ports.Row
	writes int
}

var (
	_ ports.LedgerMirror = (*Mirror)(nil)
	_ ports.MirrorReader = (*Mirror)(nil)
)

func New() *Mirror {
	return &Mirror{rows: map[core.Competency][]ports.Row{}}
}

func (m *Mirror) ReplaceCompetency(_ context.Context, c core.Competency, txs []core.Transaction) error {
	if err := c.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if len(txs) == 0 {
		delete(m.rows, c)
		return nil
	}
	rows := make([]ports.Row, len(txs))
	for i, tx := range txs {
		rows[i] = ports.RowOf(tx)
	}
	m.rows[c] = rows
	return nil
}

func (m *Mirror) ListCompetency(_ context.Context, c core.Competency) ([]ports.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.rows[c]), nil
}

// Competencies returns the mirrored months in chronological order.
func (m *Mirror) Competencies() []core.Competency {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.Competency, 0, len(m.rows))
	for c := range m.rows {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b core.Competency) int { return core.MonthsBetween(b, a) })
	return out
}

// Writes counts ReplaceCompetency calls.
func (m *Mirror) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
