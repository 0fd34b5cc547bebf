package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

func purchase(total string, date core.Date, count int) Purchase {
	return Purchase{Total: money(total), Date: date, Count: count, Details: details()}
}

func TestCreateTransactionInstallmentScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	txs, err := f.svc.CreateTransaction(ctx, purchase("100.00", core.NewDate(2025, 1, 10), 3))
	require.NoError(t, err)
	require.Len(t, txs, 3)

	members, err := f.svc.ListInstallments(ctx, txs[0].GroupID)
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, "33.34", members[0].Value.String())
	assert.Equal(t, "03/2025", members[2].Competency.String())
	assert.Equal(t, fixedNow, members[0].CreatedAt)

	assert.Equal(t, []ledger.EventKind{ledger.TransactionsCreated}, f.events.kinds())
	assert.Len(t, f.events.events[0].Competencies, 3)
}

func TestCreateTransactionRejectedByClosedMonth(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.closeMonth(t, "02/2025")

	// The second installment lands in the closed month, so nothing is stored.
	_, err := f.svc.CreateTransaction(ctx, purchase("100.00", core.NewDate(2025, 1, 10), 3))
	assert.ErrorIs(t, err, core.ErrMonthClosed)

	for _, m := range []string{"01/2025", "02/2025", "03/2025"} {
		list, err := f.svc.ListTransactions(ctx, comp(m))
		require.NoError(t, err)
		assert.Empty(t, list, m)
	}

	_, err = f.svc.CreateTransaction(ctx, purchase("10", core.NewDate(2025, 2, 1), 1))
	assert.ErrorIs(t, err, core.ErrMonthClosed)
}

func TestCreateTransactionValidatesInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.CreateTransaction(ctx, purchase("10", core.NewDate(2025, 1, 1), 0))
	assert.ErrorIs(t, err, core.ErrInvalidInstallmentCount)

	bad := purchase("10", core.NewDate(2025, 1, 1), 1)
	bad.Details.CreditCardRef = ""
	_, err = f.svc.CreateTransaction(ctx, bad)
	assert.ErrorIs(t, err, core.ErrCreditCardRequired)
	assert.True(t, core.IsInvalidInput(err))
	assert.Empty(t, f.events.kinds())
}

func TestDeleteInClosedMonthIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	txs, err := f.svc.CreateTransaction(ctx, purchase("80", core.NewDate(2025, 5, 20), 1))
	require.NoError(t, err)
	f.closeMonth(t, "05/2025")

	err = f.svc.DeleteTransaction(ctx, txs[0].ID)
	assert.ErrorIs(t, err, core.ErrMonthClosed)

	_, err = f.svc.GetTransaction(ctx, txs[0].ID)
	assert.NoError(t, err, "transaction must still exist")

	_, err = f.svc.ReopenMonth(ctx, comp("05/2025"))
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteTransaction(ctx, txs[0].ID))
	_, err = f.svc.GetTransaction(ctx, txs[0].ID)
	assert.ErrorIs(t, err, core.ErrTransactionNotFound)
}

func TestDeleteSingleInstallmentIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	txs, err := f.svc.CreateTransaction(ctx, purchase("90", core.NewDate(2025, 1, 1), 3))
	require.NoError(t, err)

	err = f.svc.DeleteTransaction(ctx, txs[1].ID)
	assert.ErrorIs(t, err, core.ErrGroupMemberEdit)

	members, err := f.svc.ListInstallments(ctx, txs[0].GroupID)
	require.NoError(t, err)
	assert.Len(t, members, 3)
}

func TestClosedMonthIsReportedBeforeInputProblems(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	group, err := f.svc.CreateTransaction(ctx, purchase("90", core.NewDate(2025, 5, 1), 2))
	require.NoError(t, err)
	single, err := f.svc.CreateTransaction(ctx, purchase("40", core.NewDate(2025, 5, 3), 1))
	require.NoError(t, err)
	f.closeMonth(t, "05/2025")

	err = f.svc.DeleteTransaction(ctx, group[0].ID)
	assert.ErrorIs(t, err, core.ErrMonthClosed)
	assert.False(t, core.IsInvalidInput(err))

	_, err = f.svc.UpdateTransaction(ctx, group[0].ID, TransactionUpdate{Value: money("1"), Details: details()})
	assert.ErrorIs(t, err, core.ErrMonthClosed)

	bad := details()
	bad.Description = ""
	_, err = f.svc.UpdateTransaction(ctx, single[0].ID, TransactionUpdate{Details: bad})
	assert.ErrorIs(t, err, core.ErrMonthClosed)

	// A move into a closed month is a closure conflict even for a group member.
	_, err = f.svc.UpdateTransaction(ctx, group[1].ID, TransactionUpdate{Competency: comp("05/2025"), Details: details()})
	assert.ErrorIs(t, err, core.ErrMonthClosed)

	members, err := f.svc.ListInstallments(ctx, group[0].GroupID)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestMoveMaterializationOntoGeneratedMonth(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.CreateTemplate(ctx, templateInput(10, core.NewDate(2025, 1, 1)))
	require.NoError(t, err)
	june, err := f.svc.GenerateRecurring(ctx, comp("06/2025"))
	require.NoError(t, err)
	_, err = f.svc.GenerateRecurring(ctx, comp("07/2025"))
	require.NoError(t, err)

	moved := june.Generated[0]
	_, err = f.svc.UpdateTransaction(ctx, moved.ID, TransactionUpdate{Competency: comp("07/2025"), Details: moved.Details})
	assert.ErrorIs(t, err, core.ErrDuplicateMaterialization)

	got, err := f.svc.GetTransaction(ctx, moved.ID)
	require.NoError(t, err)
	assert.Equal(t, comp("06/2025"), got.Competency)
}

func TestUpdateTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	single, err := f.svc.CreateTransaction(ctx, purchase("50", core.NewDate(2025, 3, 3), 1))
	require.NoError(t, err)

	d := details()
	d.Description = "Supermercado"
	updated, err := f.svc.UpdateTransaction(ctx, single[0].ID, TransactionUpdate{
		Value:      money("55.50"),
		Competency: comp("04/2025"),
		Details:    d,
	})
	require.NoError(t, err)
	assert.Equal(t, "55.50", updated.Value.String())
	assert.Equal(t, "04/2025", updated.Competency.String())
	assert.Equal(t, "2025-03-03", updated.Date.String(), "zero date keeps the stored one")
	assert.Equal(t, "Supermercado", updated.Description)

	last := f.events.events[len(f.events.events)-1]
	assert.Equal(t, ledger.TransactionUpdated, last.Kind)
	assert.ElementsMatch(t, []core.Competency{comp("03/2025"), comp("04/2025")}, last.Competencies)

	_, err = f.svc.UpdateTransaction(ctx, "missing", TransactionUpdate{Details: d})
	assert.ErrorIs(t, err, core.ErrTransactionNotFound)
}

func TestUpdateTransactionIntoOrOutOfClosedMonth(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	single, err := f.svc.CreateTransaction(ctx, purchase("50", core.NewDate(2025, 3, 3), 1))
	require.NoError(t, err)

	f.closeMonth(t, "04/2025")
	_, err = f.svc.UpdateTransaction(ctx, single[0].ID, TransactionUpdate{Competency: comp("04/2025"), Details: details()})
	assert.ErrorIs(t, err, core.ErrMonthClosed)

	f.closeMonth(t, "03/2025")
	_, err = f.svc.UpdateTransaction(ctx, single[0].ID, TransactionUpdate{Details: details()})
	assert.ErrorIs(t, err, core.ErrMonthClosed)

	got, err := f.svc.GetTransaction(ctx, single[0].ID)
	require.NoError(t, err)
	assert.Equal(t, single[0], got)
}

func TestUpdateGroupMemberOnlyDescriptive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	txs, err := f.svc.CreateTransaction(ctx, purchase("90", core.NewDate(2025, 1, 1), 3))
	require.NoError(t, err)

	d := details()
	d.Person = "Bia"
	updated, err := f.svc.UpdateTransaction(ctx, txs[1].ID, TransactionUpdate{Details: d})
	require.NoError(t, err)
	assert.Equal(t, "Bia", updated.Person)
	assert.Equal(t, txs[1].Value, updated.Value)

	// Sending the stored values back is accepted.
	_, err = f.svc.UpdateTransaction(ctx, txs[1].ID, TransactionUpdate{
		Date: txs[1].Date, Competency: txs[1].Competency, Value: txs[1].Value, Details: d,
	})
	require.NoError(t, err)

	_, err = f.svc.UpdateTransaction(ctx, txs[1].ID, TransactionUpdate{Value: money("1"), Details: d})
	assert.ErrorIs(t, err, core.ErrGroupMemberEdit)
	_, err = f.svc.UpdateTransaction(ctx, txs[1].ID, TransactionUpdate{Date: core.NewDate(2025, 2, 2), Details: d})
	assert.ErrorIs(t, err, core.ErrGroupMemberEdit)
	_, err = f.svc.UpdateTransaction(ctx, txs[1].ID, TransactionUpdate{Competency: comp("09/2025"), Details: d})
	assert.ErrorIs(t, err, core.ErrGroupMemberEdit)

	_, err = f.svc.UpdateTransaction(ctx, txs[1].ID, TransactionUpdate{TotalInstallments: 5, Details: d})
	assert.ErrorIs(t, err, core.ErrGroupMemberEdit)
	other := "other-group"
	_, err = f.svc.UpdateTransaction(ctx, txs[1].ID, TransactionUpdate{GroupID: &other, Details: d})
	assert.ErrorIs(t, err, core.ErrGroupMemberEdit)
	_, err = f.svc.UpdateTransaction(ctx, txs[1].ID, TransactionUpdate{
		InstallmentNumber: 2, TotalInstallments: 3, GroupID: &txs[1].GroupID, Details: d,
	})
	require.NoError(t, err)

	members, err := f.svc.ListInstallments(ctx, txs[0].GroupID)
	require.NoError(t, err)
	assert.Equal(t, money("90"), core.Sum(valuesOf(members)...))
}

func TestReplanGroup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	txs, err := f.svc.CreateTransaction(ctx, purchase("100.00", core.NewDate(2025, 1, 10), 3))
	require.NoError(t, err)
	groupID := txs[0].GroupID

	total := money("120.00")
	date := core.NewDate(2025, 12, 1)
	replanned, err := f.svc.ReplanGroup(ctx, groupID, &total, &date)
	require.NoError(t, err)
	assert.Equal(t, "12/2025", replanned[0].Competency.String())
	assert.Equal(t, "02/2026", replanned[2].Competency.String())

	members, err := f.svc.ListInstallments(ctx, groupID)
	require.NoError(t, err)
	assert.Equal(t, replanned, members)
	assert.Equal(t, total, core.Sum(valuesOf(members)...))

	old, err := f.svc.ListTransactions(ctx, comp("01/2025"))
	require.NoError(t, err)
	assert.Empty(t, old)

	last := f.events.events[len(f.events.events)-1]
	assert.Equal(t, ledger.GroupReplanned, last.Kind)
	assert.Len(t, last.Competencies, 6)
}

func TestReplanGroupRejectedWhenAnyMonthClosed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	txs, err := f.svc.CreateTransaction(ctx, purchase("100.00", core.NewDate(2025, 1, 10), 3))
	require.NoError(t, err)
	groupID := txs[0].GroupID

	// The new schedule would touch a closed month.
	f.closeMonth(t, "07/2025")
	date := core.NewDate(2025, 6, 1)
	_, err = f.svc.ReplanGroup(ctx, groupID, nil, &date)
	assert.ErrorIs(t, err, core.ErrMonthClosed)

	// An old member sits in a closed month.
	f.closeMonth(t, "03/2025")
	total := money("1000")
	_, err = f.svc.ReplanGroup(ctx, groupID, &total, nil)
	assert.ErrorIs(t, err, core.ErrMonthClosed)

	members, err := f.svc.ListInstallments(ctx, groupID)
	require.NoError(t, err)
	assert.Equal(t, txs, members, "group unchanged")
}

func TestReplanUnknownGroup(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ReplanGroup(context.Background(), "nope", nil, nil)
	assert.ErrorIs(t, err, core.ErrGroupNotFound)
	_, err = f.svc.ListInstallments(context.Background(), "nope")
	assert.ErrorIs(t, err, core.ErrGroupNotFound)
	assert.ErrorIs(t, f.svc.DeleteGroup(context.Background(), "nope"), core.ErrGroupNotFound)
}

func TestInconsistentGroupIsReportedNotRepaired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	txs, err := f.svc.CreateTransaction(ctx, purchase("90", core.NewDate(2025, 1, 1), 3))
	require.NoError(t, err)

	// Corrupt the group behind the service's back.
	require.NoError(t, f.store.WithinTx(ctx, func(tx ledger.Tx) error {
		return tx.DeleteTransaction(ctx, txs[1].ID)
	}))

	_, err = f.svc.ListInstallments(ctx, txs[0].GroupID)
	assert.ErrorIs(t, err, core.ErrInconsistentGroup)
	_, err = f.svc.ReplanGroup(ctx, txs[0].GroupID, nil, nil)
	assert.ErrorIs(t, err, core.ErrInconsistentGroup)

	left, err := f.store.ListByGroup(ctx, txs[0].GroupID)
	require.NoError(t, err)
	assert.Len(t, left, 2)
}

func TestDeleteGroup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	txs, err := f.svc.CreateTransaction(ctx, purchase("90", core.NewDate(2025, 1, 1), 3))
	require.NoError(t, err)
	groupID := txs[0].GroupID

	f.closeMonth(t, "03/2025")
	assert.ErrorIs(t, f.svc.DeleteGroup(ctx, groupID), core.ErrMonthClosed)
	members, err := f.svc.ListInstallments(ctx, groupID)
	require.NoError(t, err)
	assert.Len(t, members, 3, "no member removed")

	_, err = f.svc.ReopenMonth(ctx, comp("03/2025"))
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteGroup(ctx, groupID))
	_, err = f.svc.ListInstallments(ctx, groupID)
	assert.ErrorIs(t, err, core.ErrGroupNotFound)
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.events.err = errors.New("broker down")

	txs, err := f.svc.CreateTransaction(ctx, purchase("10", core.NewDate(2025, 1, 1), 1))
	require.NoError(t, err)
	_, err = f.svc.GetTransaction(ctx, txs[0].ID)
	assert.NoError(t, err)
}

func TestListTransactionsBetween(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.CreateTransaction(ctx, purchase("10", core.NewDate(2025, 1, 5), 1))
	require.NoError(t, err)
	_, err = f.svc.CreateTransaction(ctx, purchase("10", core.NewDate(2025, 2, 5), 1))
	require.NoError(t, err)

	got, err := f.svc.ListTransactionsBetween(ctx, core.NewDate(2025, 1, 1), core.NewDate(2025, 1, 31))
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = f.svc.ListTransactionsBetween(ctx, core.NewDate(2025, 2, 1), core.NewDate(2025, 1, 1))
	assert.ErrorIs(t, err, core.ErrInvalidDate)
}
