package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type TransactionRow struct {
	ID                string
	Date              string
	CompetencyYear    int64
	CompetencyMonth   int64
	ValueCents        int64
	Type              string
	PaymentMethod     string
	CreditCardRef     string
	Person            string
	Category          string
	Description       string
	InstallmentNumber int64
	TotalInstallments int64
	GroupID           sql.NullString
	SourceTemplateID  sql.NullString
	CreatedAt         string
	UpdatedAt         string
}

type TemplateRow struct {
	ID                  string
	ValueCents          int64
	Type                string
	PaymentMethod       string
	CreditCardRef       string
	Person              string
	Category            string
	Description         string
	DayOfMonth          int64
	StartDate           string
	EndDate             sql.NullString
	Active              bool
	BaseCompetencyYear  sql.NullInt64
	BaseCompetencyMonth sql.NullInt64
	CreatedAt           string
	UpdatedAt           string
}

type ClosedMonthRow struct {
	CompetencyYear  int64
	CompetencyMonth int64
	ClosedAt        string
}

const transactionColumns = `id, date, competency_year, competency_month, value_cents, type, payment_method,
credit_card_ref, person, category, description, installment_number, total_installments,
group_id, source_template_id, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (TransactionRow, error) {
	var r TransactionRow
	err := s.Scan(
		&r.ID, &r.Date, &r.CompetencyYear, &r.CompetencyMonth, &r.ValueCents, &r.Type, &r.PaymentMethod,
		&r.CreditCardRef, &r.Person, &r.Category, &r.Description, &r.InstallmentNumber, &r.TotalInstallments,
		&r.GroupID, &r.SourceTemplateID, &r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

func (q *Queries) listTransactions(ctx context.Context, query string, args ...any) ([]TransactionRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []TransactionRow{}
	for rows.Next() {
		r, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}

const insertTransaction = `INSERT INTO transactions (` + transactionColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertTransaction(ctx context.Context, r TransactionRow) error {
	_, err := q.db.ExecContext(ctx, insertTransaction,
		r.ID, r.Date, r.CompetencyYear, r.CompetencyMonth, r.ValueCents, r.Type, r.PaymentMethod,
		r.CreditCardRef, r.Person, r.Category, r.Description, r.InstallmentNumber, r.TotalInstallments,
		r.GroupID, r.SourceTemplateID, r.CreatedAt, r.UpdatedAt,
	)
	return err
}

const updateTransaction = `UPDATE transactions SET
date = ?, competency_year = ?, competency_month = ?, value_cents = ?, type = ?, payment_method = ?,
credit_card_ref = ?, person = ?, category = ?, description = ?, installment_number = ?,
total_installments = ?, group_id = ?, source_template_id = ?, updated_at = ?
WHERE id = ?`

func (q *Queries) UpdateTransaction(ctx context.Context, r TransactionRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateTransaction,
		r.Date, r.CompetencyYear, r.CompetencyMonth, r.ValueCents, r.Type, r.PaymentMethod,
		r.CreditCardRef, r.Person, r.Category, r.Description, r.InstallmentNumber,
		r.TotalInstallments, r.GroupID, r.SourceTemplateID, r.UpdatedAt,
		r.ID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteTransaction = `DELETE FROM transactions WHERE id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteTransaction, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteGroup = `DELETE FROM transactions WHERE group_id = ?`

func (q *Queries) DeleteGroup(ctx context.Context, groupID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteGroup, groupID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

func (q *Queries) GetTransaction(ctx context.Context, id string) (TransactionRow, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, getTransaction, id))
}

const listTransactionsByCompetency = `SELECT ` + transactionColumns + ` FROM transactions
WHERE competency_year = ? AND competency_month = ?
ORDER BY date, id`

func (q *Queries) ListTransactionsByCompetency(ctx context.Context, year, month int64) ([]TransactionRow, error) {
	return q.listTransactions(ctx, listTransactionsByCompetency, year, month)
}

const listTransactionsByGroup = `SELECT ` + transactionColumns + ` FROM transactions
WHERE group_id = ?
ORDER BY installment_number, id`

func (q *Queries) ListTransactionsByGroup(ctx context.Context, groupID string) ([]TransactionRow, error) {
	return q.listTransactions(ctx, listTransactionsByGroup, groupID)
}

const listTransactionsByDateRange = `SELECT ` + transactionColumns + ` FROM transactions
WHERE date >= ? AND date <= ?
ORDER BY date, id`

func (q *Queries) ListTransactionsByDateRange(ctx context.Context, from, to string) ([]TransactionRow, error) {
	return q.listTransactions(ctx, listTransactionsByDateRange, from, to)
}

const getMaterialization = `SELECT ` + transactionColumns + ` FROM transactions
WHERE source_template_id = ? AND competency_year = ? AND competency_month = ?`

func (q *Queries) GetMaterialization(ctx context.Context, templateID string, year, month int64) (TransactionRow, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, getMaterialization, templateID, year, month))
}

const templateColumns = `id, value_cents, type, payment_method, credit_card_ref, person, category, description,
day_of_month, start_date, end_date, active, base_competency_year, base_competency_month, created_at, updated_at`

func scanTemplate(s scanner) (TemplateRow, error) {
	var r TemplateRow
	err := s.Scan(
		&r.ID, &r.ValueCents, &r.Type, &r.PaymentMethod, &r.CreditCardRef, &r.Person, &r.Category, &r.Description,
		&r.DayOfMonth, &r.StartDate, &r.EndDate, &r.Active, &r.BaseCompetencyYear, &r.BaseCompetencyMonth,
		&r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

const upsertTemplate = `INSERT INTO recurring_templates (` + templateColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
value_cents = excluded.value_cents, type = excluded.type, payment_method = excluded.payment_method,
credit_card_ref = excluded.credit_card_ref, person = excluded.person, category = excluded.category,
description = excluded.description, day_of_month = excluded.day_of_month, start_date = excluded.start_date,
end_date = excluded.end_date, active = excluded.active, base_competency_year = excluded.base_competency_year,
base_competency_month = excluded.base_competency_month, updated_at = excluded.updated_at`

func (q *Queries) UpsertTemplate(ctx context.Context, r TemplateRow) error {
	_, err := q.db.ExecContext(ctx, upsertTemplate,
		r.ID, r.ValueCents, r.Type, r.PaymentMethod, r.CreditCardRef, r.Person, r.Category, r.Description,
		r.DayOfMonth, r.StartDate, r.EndDate, r.Active, r.BaseCompetencyYear, r.BaseCompetencyMonth,
		r.CreatedAt, r.UpdatedAt,
	)
	return err
}

const getTemplate = `SELECT ` + templateColumns + ` FROM recurring_templates WHERE id = ?`

func (q *Queries) GetTemplate(ctx context.Context, id string) (TemplateRow, error) {
	return scanTemplate(q.db.QueryRowContext(ctx, getTemplate, id))
}

const listTemplates = `SELECT ` + templateColumns + ` FROM recurring_templates ORDER BY created_at, id`

func (q *Queries) ListTemplates(ctx context.Context) ([]TemplateRow, error) {
	rows, err := q.db.QueryContext(ctx, listTemplates)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []TemplateRow{}
	for rows.Next() {
		r, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}

const deleteTemplate = `DELETE FROM recurring_templates WHERE id = ?`

func (q *Queries) DeleteTemplate(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteTemplate, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const insertClosedMonth = `INSERT INTO closed_months (competency_year, competency_month, closed_at)
VALUES (?, ?, ?)
ON CONFLICT (competency_year, competency_month) DO NOTHING`

// InsertClosedMonth returns 0 affected rows when the month was already closed.
func (q *Queries) InsertClosedMonth(ctx context.Context, year, month int64, closedAt string) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertClosedMonth, year, month, closedAt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteClosedMonth = `DELETE FROM closed_months WHERE competency_year = ? AND competency_month = ?`

func (q *Queries) DeleteClosedMonth(ctx context.Context, year, month int64) error {
	_, err := q.db.ExecContext(ctx, deleteClosedMonth, year, month)
	return err
}

const isMonthClosed = `SELECT EXISTS (
SELECT 1 FROM closed_months WHERE competency_year = ? AND competency_month = ?)`

func (q *Queries) IsMonthClosed(ctx context.Context, year, month int64) (bool, error) {
	var closed bool
	err := q.db.QueryRowContext(ctx, isMonthClosed, year, month).Scan(&closed)
	return closed, err
}

const listClosedMonths = `SELECT competency_year, competency_month, closed_at FROM closed_months
ORDER BY competency_year, competency_month`

func (q *Queries) ListClosedMonths(ctx context.Context) ([]ClosedMonthRow, error) {
	rows, err := q.db.QueryContext(ctx, listClosedMonths)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ClosedMonthRow{}
	for rows.Next() {
		var r ClosedMonthRow
		if err := rows.Scan(&r.CompetencyYear, &r.CompetencyMonth, &r.ClosedAt); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}
