package sheets

import (
	"fmt"
	"strconv"
	"strings"

	"ledger/internal/core"
)

// Columns of the mirror sheet, A through K.
var Header = []string{
	"Competency", "Date", "Description", "Category", "Value", "Type",
	"Payment", "Card", "Person", "Installment", "ID",
}

// Row is one mirrored transaction as it appears in the sheet.
type Row struct {
	Competency    core.Competency
	Date          core.Date
	Description   string
	Category      string
	Value         core.Money
	Type          core.TransactionType
	PaymentMethod core.PaymentMethod
	CreditCardRef string
	Person        string
	Installment   string // "2/3", empty for single transactions
	TransactionID string
}

func RowOf(tx core.Transaction) Row {
	r := Row{
		Competency:    tx.Competency,
		Date:          tx.Date,
		Description:   tx.Description,
		Category:      tx.Category,
		Value:         tx.Value,
		Type:          tx.Type,
		PaymentMethod: tx.PaymentMethod,
		CreditCardRef: tx.CreditCardRef,
		Person:        tx.Person,
		TransactionID: tx.ID,
	}
	if tx.TotalInstallments > 1 {
		r.Installment = fmt.Sprintf("%d/%d", tx.InstallmentNumber, tx.TotalInstallments)
	}
	return r
}

func (r Row) Values() []string {
	return []string{
		r.Competency.String(), r.Date.String(), r.Description, r.Category, r.Value.String(),
		string(r.Type), string(r.PaymentMethod), r.CreditCardRef, r.Person, r.Installment, r.TransactionID,
	}
}

// ParseRow reads a sheet row back. Missing trailing cells are treated as empty.
func ParseRow(cols []string) (Row, error) {
	get := func(i int) string {
		if i < len(cols) {
			return strings.TrimSpace(cols[i])
		}
		return ""
	}
	c, err := core.ParseCompetency(get(0))
	if err != nil {
		return Row{}, err
	}
	d, err := core.ParseDate(get(1))
	if err != nil {
		return Row{}, err
	}
	v, err := core.ParseMoney(get(4))
	if err != nil {
		return Row{}, fmt.Errorf("value %q: %w", get(4), err)
	}
	if inst := get(9); inst != "" {
		if n, total, ok := strings.Cut(inst, "/"); !ok || !isNumber(n) || !isNumber(total) {
			return Row{}, fmt.Errorf("%w: installment %q", core.ErrInvalidInstallmentCount, inst)
		}
	}
	return Row{
		Competency:    c,
		Date:          d,
		Description:   get(2),
		Category:      get(3),
		Value:         v,
		Type:          core.TransactionType(get(5)),
		PaymentMethod: core.PaymentMethod(get(6)),
		CreditCardRef: get(7),
		Person:        get(8),
		Installment:   get(9),
		TransactionID: get(10),
	}, nil
}

func isNumber(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

// MergeRows drops the header and every row of month c from existing, keeps
// the other rows in their order and appends txs as the new rows of c.
// Rows that do not start with a competency are dropped as well.
func MergeRows(existing [][]string, c core.Competency, txs []core.Transaction) [][]string {
	out := make([][]string, 0, len(existing)+len(txs))
	for _, cols := range existing {
		if len(cols) == 0 {
			continue
		}
		rc, err := core.ParseCompetency(cols[0])
		if err != nil || rc == c {
			continue
		}
		out = append(out, cols)
	}
	for _, tx := range txs {
		out = append(out, RowOf(tx).Values())
	}
	return out
}
