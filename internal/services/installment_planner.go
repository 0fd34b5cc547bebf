package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"ledger/internal/core"
)

// Purchase is a request to record value spread over Count monthly installments.
type Purchase struct {
	Total core.Money
	Date  core.Date
	// Competency is the month of the first installment; zero means the month of Date.
	Competency core.Competency
	Count      int
	Details    core.Details
}

// InstallmentPlanner turns purchases into installment groups and recomputes
// existing groups. It never touches a store.
type InstallmentPlanner struct {
	newID func() string
	now   func() time.Time
}

func NewInstallmentPlanner() *InstallmentPlanner {
	return &InstallmentPlanner{
		newID: uuid.NewString,
		now:   time.Now,
	}
}

// Plan builds the transactions of a purchase. A count of 1 yields a single
// transaction without a group id. Values are split to the cent with the
// residue on the first installment; installment i counts toward base month + i.
func (p *InstallmentPlanner) Plan(in Purchase) ([]core.Transaction, error) {
	if in.Count < 1 {
		return nil, fmt.Errorf("%w: %d", core.ErrInvalidInstallmentCount, in.Count)
	}
	if err := in.Date.Validate(); err != nil {
		return nil, err
	}
	if err := in.Total.Validate(); err != nil {
		return nil, err
	}
	base := in.Competency
	if base.IsZero() {
		base = core.CompetencyOf(in.Date)
	}
	if err := base.Validate(); err != nil {
		return nil, err
	}

	values, err := in.Total.Split(in.Count)
	if err != nil {
		return nil, err
	}

	var groupID string
	if in.Count > 1 {
		groupID = p.newID()
	}
	now := p.now().UTC()
	out := make([]core.Transaction, in.Count)
	for i := range out {
		out[i] = core.Transaction{
			ID:                p.newID(),
			Date:              in.Date,
			Competency:        base.AddMonths(i),
			Value:             values[i],
			Details:           in.Details,
			InstallmentNumber: i + 1,
			TotalInstallments: in.Count,
			GroupID:           groupID,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := out[i].Validate(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Replan recomputes an existing group for a new total and/or purchase date,
// keeping the installment count, ids and member #1's descriptive fields.
// Without a new date the group keeps its current first competency.
func (p *InstallmentPlanner) Replan(members []core.Transaction, newTotal *core.Money, newDate *core.Date) ([]core.Transaction, error) {
	if len(members) == 0 {
		return nil, core.ErrGroupNotFound
	}
	if err := ValidateGroup(members[0].GroupID, members); err != nil {
		return nil, err
	}
	first := members[0]

	total := core.Sum(valuesOf(members)...)
	if newTotal != nil {
		if err := newTotal.Validate(); err != nil {
			return nil, err
		}
		total = *newTotal
	}
	date, base := first.Date, first.Competency
	if newDate != nil {
		if err := newDate.Validate(); err != nil {
			return nil, err
		}
		date, base = *newDate, core.CompetencyOf(*newDate)
	}

	values, err := total.Split(len(members))
	if err != nil {
		return nil, err
	}
	now := p.now().UTC()
	out := make([]core.Transaction, len(members))
	for i, m := range members {
		out[i] = core.Transaction{
			ID:                m.ID,
			Date:              date,
			Competency:        base.AddMonths(i),
			Value:             values[i],
			Details:           first.Details,
			InstallmentNumber: i + 1,
			TotalInstallments: len(members),
			GroupID:           first.GroupID,
			SourceTemplateID:  m.SourceTemplateID,
			CreatedAt:         m.CreatedAt,
			UpdatedAt:         now,
		}
	}
	return out, nil
}

// ValidateGroup checks the installment invariant on members ordered by
// installment number: one group id, one group size equal to the member count
// and the numbers 1..N without gaps or duplicates.
func ValidateGroup(groupID string, members []core.Transaction) error {
	if groupID == "" {
		return fmt.Errorf("%w: empty group id", core.ErrInconsistentGroup)
	}
	if len(members) == 0 {
		return fmt.Errorf("%w: %s", core.ErrGroupNotFound, groupID)
	}
	n := len(members)
	for i, m := range members {
		switch {
		case m.GroupID != groupID:
			return fmt.Errorf("%w: %s contains member of group %q", core.ErrInconsistentGroup, groupID, m.GroupID)
		case m.TotalInstallments != n:
			return fmt.Errorf("%w: %s has %d members but member %s declares %d", core.ErrInconsistentGroup, groupID, n, m.ID, m.TotalInstallments)
		case m.InstallmentNumber != i+1:
			return fmt.Errorf("%w: %s expected installment %d, found %d", core.ErrInconsistentGroup, groupID, i+1, m.InstallmentNumber)
		}
	}
	return nil
}

func valuesOf(txs []core.Transaction) []core.Money {
	out := make([]core.Money, len(txs))
	for i, t := range txs {
		out[i] = t.Value
	}
	return out
}

func competenciesOf(txs ...[]core.Transaction) []core.Competency {
	seen := map[core.Competency]bool{}
	var out []core.Competency
	for _, list := range txs {
		for _, t := range list {
			if !seen[t.Competency] {
				seen[t.Competency] = true
				out = append(out, t.Competency)
			}
		}
	}
	return out
}
