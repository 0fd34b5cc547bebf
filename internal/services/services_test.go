package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/storage/memory"
)

var fixedNow = time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC)

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []ledger.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e ledger.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) kinds() []ledger.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ledger.EventKind, len(p.events))
	for i, e := range p.events {
		out[i] = e.Kind
	}
	return out
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%03d", n)
	}
}

type fixture struct {
	svc    *LedgerService
	store  *memory.Store
	events *recordingPublisher
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	events := &recordingPublisher{}
	svc := NewLedgerService(store,
		WithEventPublisher(events),
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(sequentialIDs()),
	)
	return fixture{svc: svc, store: store, events: events}
}

func details() core.Details {
	return core.Details{
		Type:          core.Expense,
		PaymentMethod: core.Credit,
		CreditCardRef: "card-1",
		Category:      "Casa",
		Description:   "Geladeira",
	}
}

func comp(s string) core.Competency { return core.MustParseCompetency(s) }

func money(s string) core.Money {
	m, err := core.ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (f fixture) closeMonth(t *testing.T, c string) {
	t.Helper()
	_, err := f.svc.CloseMonth(context.Background(), comp(c))
	require.NoError(t, err)
}
