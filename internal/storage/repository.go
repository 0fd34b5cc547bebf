package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledger"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = time.RFC3339Nano
)

// SQLiteRepository is the durable ledger store. It holds a single connection,
// so every transaction is serialized by SQLite's single writer.
type SQLiteRepository struct {
	reader
	db *sql.DB
}

var _ ledger.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{reader: reader{q: New(db)}, db: db}, nil
}

func dsn(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// WithinTx runs fn inside a database transaction. fn must only use tx; the
// repository's own methods would wait on the connection held by tx.
func (r *SQLiteRepository) WithinTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	tx := &sqliteTx{reader: reader{q: r.q.WithTx(sqlTx)}}

	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Failed to roll back transaction", "error", rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type reader struct {
	q *Queries
}

func (r reader) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row, err := r.q.GetTransaction(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("%w: %s", core.ErrTransactionNotFound, id)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return transactionFromRow(row)
}

func (r reader) ListByCompetency(ctx context.Context, c core.Competency) ([]core.Transaction, error) {
	rows, err := r.q.ListTransactionsByCompetency(ctx, int64(c.Year), int64(c.Month))
	if err != nil {
		return nil, fmt.Errorf("list transactions for %s: %w", c, err)
	}
	return transactionsFromRows(rows)
}

func (r reader) ListByGroup(ctx context.Context, groupID string) ([]core.Transaction, error) {
	rows, err := r.q.ListTransactionsByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group %s: %w", groupID, err)
	}
	return transactionsFromRows(rows)
}

func (r reader) ListByDateRange(ctx context.Context, from, to core.Date) ([]core.Transaction, error) {
	rows, err := r.q.ListTransactionsByDateRange(ctx, from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("list transactions %s..%s: %w", from, to, err)
	}
	return transactionsFromRows(rows)
}

func (r reader) FindMaterialization(ctx context.Context, templateID string, c core.Competency) (core.Transaction, bool, error) {
	row, err := r.q.GetMaterialization(ctx, templateID, int64(c.Year), int64(c.Month))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, false, nil
	}
	if err != nil {
		return core.Transaction{}, false, fmt.Errorf("find materialization of %s in %s: %w", templateID, c, err)
	}
	t, err := transactionFromRow(row)
	return t, err == nil, err
}

func (r reader) GetTemplate(ctx context.Context, id string) (core.RecurringTemplate, error) {
	row, err := r.q.GetTemplate(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringTemplate{}, fmt.Errorf("%w: %s", core.ErrTemplateNotFound, id)
	}
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("get template %s: %w", id, err)
	}
	return templateFromRow(row)
}

func (r reader) ListTemplates(ctx context.Context) ([]core.RecurringTemplate, error) {
	rows, err := r.q.ListTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	out := make([]core.RecurringTemplate, 0, len(rows))
	for _, row := range rows {
		rt, err := templateFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, nil
}

func (r reader) IsClosed(ctx context.Context, c core.Competency) (bool, error) {
	closed, err := r.q.IsMonthClosed(ctx, int64(c.Year), int64(c.Month))
	if err != nil {
		return false, fmt.Errorf("check closed month %s: %w", c, err)
	}
	return closed, nil
}

func (r reader) ListClosedMonths(ctx context.Context) ([]core.ClosedMonth, error) {
	rows, err := r.q.ListClosedMonths(ctx)
	if err != nil {
		return nil, fmt.Errorf("list closed months: %w", err)
	}
	out := make([]core.ClosedMonth, 0, len(rows))
	for _, row := range rows {
		at, err := time.Parse(timestampLayout, row.ClosedAt)
		if err != nil {
			return nil, fmt.Errorf("parse closed_at %q: %w", row.ClosedAt, err)
		}
		out = append(out, core.ClosedMonth{
			Month:    core.Competency{Year: int(row.CompetencyYear), Month: int(row.CompetencyMonth)},
			ClosedAt: at,
		})
	}
	return out, nil
}

type sqliteTx struct {
	reader
}

func (tx *sqliteTx) InsertTransactions(ctx context.Context, txs ...core.Transaction) error {
	for _, t := range txs {
		if err := tx.q.InsertTransaction(ctx, transactionToRow(t)); err != nil {
			if isMaterializationConflict(err) {
				return fmt.Errorf("%w: template %s, %s", core.ErrDuplicateMaterialization, t.SourceTemplateID, t.Competency)
			}
			return fmt.Errorf("insert transaction %s: %w", t.ID, err)
		}
	}
	slog.DebugContext(ctx, "Transactions inserted", "count", len(txs))
	return nil
}

func (tx *sqliteTx) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	n, err := tx.q.UpdateTransaction(ctx, transactionToRow(t))
	if err != nil {
		if isMaterializationConflict(err) {
			return fmt.Errorf("%w: template %s, %s", core.ErrDuplicateMaterialization, t.SourceTemplateID, t.Competency)
		}
		return fmt.Errorf("update transaction %s: %w", t.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrTransactionNotFound, t.ID)
	}
	return nil
}

func (tx *sqliteTx) DeleteTransaction(ctx context.Context, id string) error {
	n, err := tx.q.DeleteTransaction(ctx, id)
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrTransactionNotFound, id)
	}
	return nil
}

func (tx *sqliteTx) DeleteGroup(ctx context.Context, groupID string) (int, error) {
	n, err := tx.q.DeleteGroup(ctx, groupID)
	if err != nil {
		return 0, fmt.Errorf("delete group %s: %w", groupID, err)
	}
	return int(n), nil
}

func (tx *sqliteTx) SaveTemplate(ctx context.Context, rt core.RecurringTemplate) error {
	if err := tx.q.UpsertTemplate(ctx, templateToRow(rt)); err != nil {
		return fmt.Errorf("save template %s: %w", rt.ID, err)
	}
	return nil
}

func (tx *sqliteTx) DeleteTemplate(ctx context.Context, id string) error {
	n, err := tx.q.DeleteTemplate(ctx, id)
	if err != nil {
		return fmt.Errorf("delete template %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrTemplateNotFound, id)
	}
	return nil
}

func (tx *sqliteTx) CloseMonth(ctx context.Context, c core.Competency, at time.Time) error {
	n, err := tx.q.InsertClosedMonth(ctx, int64(c.Year), int64(c.Month), at.UTC().Format(timestampLayout))
	if err != nil {
		return fmt.Errorf("close month %s: %w", c, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrMonthAlreadyClosed, c)
	}
	return nil
}

func (tx *sqliteTx) ReopenMonth(ctx context.Context, c core.Competency) error {
	if err := tx.q.DeleteClosedMonth(ctx, int64(c.Year), int64(c.Month)); err != nil {
		return fmt.Errorf("reopen month %s: %w", c, err)
	}
	return nil
}

// isMaterializationConflict reports a violation of ux_transactions_materialization.
func isMaterializationConflict(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) || se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return false
	}
	return strings.Contains(se.Error(), "source_template_id")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func transactionToRow(t core.Transaction) TransactionRow {
	return TransactionRow{
		ID:                t.ID,
		Date:              t.Date.Format(dateLayout),
		CompetencyYear:    int64(t.Competency.Year),
		CompetencyMonth:   int64(t.Competency.Month),
		ValueCents:        t.Value.Cents,
		Type:              string(t.Type),
		PaymentMethod:     string(t.PaymentMethod),
		CreditCardRef:     t.CreditCardRef,
		Person:            t.Person,
		Category:          t.Category,
		Description:       t.Description,
		InstallmentNumber: int64(t.InstallmentNumber),
		TotalInstallments: int64(t.TotalInstallments),
		GroupID:           nullString(t.GroupID),
		SourceTemplateID:  nullString(t.SourceTemplateID),
		CreatedAt:         t.CreatedAt.UTC().Format(timestampLayout),
		UpdatedAt:         t.UpdatedAt.UTC().Format(timestampLayout),
	}
}

func transactionFromRow(r TransactionRow) (core.Transaction, error) {
	date, err := core.ParseDate(r.Date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", r.ID, err)
	}
	created, err := time.Parse(timestampLayout, r.CreatedAt)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s created_at: %w", r.ID, err)
	}
	updated, err := time.Parse(timestampLayout, r.UpdatedAt)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s updated_at: %w", r.ID, err)
	}
	return core.Transaction{
		ID:         r.ID,
		Date:       date,
		Competency: core.Competency{Year: int(r.CompetencyYear), Month: int(r.CompetencyMonth)},
		Value:      core.Money{Cents: r.ValueCents},
		Details: core.Details{
			Type:          core.TransactionType(r.Type),
			PaymentMethod: core.PaymentMethod(r.PaymentMethod),
			CreditCardRef: r.CreditCardRef,
			Person:        r.Person,
			Category:      r.Category,
			Description:   r.Description,
		},
		InstallmentNumber: int(r.InstallmentNumber),
		TotalInstallments: int(r.TotalInstallments),
		GroupID:           r.GroupID.String,
		SourceTemplateID:  r.SourceTemplateID.String,
		CreatedAt:         created,
		UpdatedAt:         updated,
	}, nil
}

func transactionsFromRows(rows []TransactionRow) ([]core.Transaction, error) {
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		t, err := transactionFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func templateToRow(rt core.RecurringTemplate) TemplateRow {
	row := TemplateRow{
		ID:            rt.ID,
		ValueCents:    rt.Value.Cents,
		Type:          string(rt.Type),
		PaymentMethod: string(rt.PaymentMethod),
		CreditCardRef: rt.CreditCardRef,
		Person:        rt.Person,
		Category:      rt.Category,
		Description:   rt.Description,
		DayOfMonth:    int64(rt.DayOfMonth),
		StartDate:     rt.StartDate.Format(dateLayout),
		Active:        rt.Active,
		CreatedAt:     rt.CreatedAt.UTC().Format(timestampLayout),
		UpdatedAt:     rt.UpdatedAt.UTC().Format(timestampLayout),
	}
	if !rt.EndDate.IsEmpty() {
		row.EndDate = sql.NullString{String: rt.EndDate.Format(dateLayout), Valid: true}
	}
	if !rt.BaseCompetency.IsZero() {
		row.BaseCompetencyYear = sql.NullInt64{Int64: int64(rt.BaseCompetency.Year), Valid: true}
		row.BaseCompetencyMonth = sql.NullInt64{Int64: int64(rt.BaseCompetency.Month), Valid: true}
	}
	return row
}

func templateFromRow(r TemplateRow) (core.RecurringTemplate, error) {
	start, err := core.ParseDate(r.StartDate)
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("template %s start_date: %w", r.ID, err)
	}
	var end core.Date
	if r.EndDate.Valid {
		if end, err = core.ParseDate(r.EndDate.String); err != nil {
			return core.RecurringTemplate{}, fmt.Errorf("template %s end_date: %w", r.ID, err)
		}
	}
	created, err := time.Parse(timestampLayout, r.CreatedAt)
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("template %s created_at: %w", r.ID, err)
	}
	updated, err := time.Parse(timestampLayout, r.UpdatedAt)
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("template %s updated_at: %w", r.ID, err)
	}
	rt := core.RecurringTemplate{
		ID:    r.ID,
		Value: core.Money{Cents: r.ValueCents},
		Details: core.Details{
			Type:          core.TransactionType(r.Type),
			PaymentMethod: core.PaymentMethod(r.PaymentMethod),
			CreditCardRef: r.CreditCardRef,
			Person:        r.Person,
			Category:      r.Category,
			Description:   r.Description,
		},
		DayOfMonth: int(r.DayOfMonth),
		StartDate:  start,
		EndDate:    end,
		Active:     r.Active,
		CreatedAt:  created,
		UpdatedAt:  updated,
	}
	if r.BaseCompetencyYear.Valid && r.BaseCompetencyMonth.Valid {
		rt.BaseCompetency = core.Competency{Year: int(r.BaseCompetencyYear.Int64), Month: int(r.BaseCompetencyMonth.Int64)}
	}
	return rt, nil
}
