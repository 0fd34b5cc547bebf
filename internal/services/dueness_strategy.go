// Package services provides business logic and orchestration services.
//
// This file holds the strategy that decides when a recurring template is due
// in a competency month.

package services

import (
	"ledger/internal/core"
)

// ScheduleState is the state of a (template, competency month) pair.
type ScheduleState string

const (
	NotDue          ScheduleState = "not-due"
	DueNotGenerated ScheduleState = "due-not-generated"
	Generated       ScheduleState = "generated"
)

// Skip reasons reported by recurring generation.
const (
	ReasonInactive         = "inactive"
	ReasonOutsideWindow    = "outside window"
	ReasonNotYetDue        = "not yet due"
	ReasonAlreadyGenerated = "already generated"
)

// DuenessChecker decides whether a template materializes in a month and on which date.
type DuenessChecker interface {
	// DueDate returns the date the template materializes on in c, or a skip
	// reason when it does not materialize there at all.
	DueDate(rt core.RecurringTemplate, c core.Competency) (core.Date, string, bool)
}

// MonthlyChecker implements DuenessChecker for day-of-month templates.
type MonthlyChecker struct{}

// DueDate clamps the template day to the month length (31 in February is the
// 28th or 29th) and requires the clamped date to lie inside the template window.
func (MonthlyChecker) DueDate(rt core.RecurringTemplate, c core.Competency) (core.Date, string, bool) {
	if !rt.Active {
		return core.Date{}, ReasonInactive, false
	}
	date := c.ClampDay(rt.DayOfMonth)
	if !rt.InWindow(date) {
		return core.Date{}, ReasonOutsideWindow, false
	}
	return date, "", true
}

// Evaluate reports the schedule state of rt in c given whether a
// materialization already exists.
func Evaluate(checker DuenessChecker, rt core.RecurringTemplate, c core.Competency, materialized bool) ScheduleState {
	if materialized {
		return Generated
	}
	if _, _, due := checker.DueDate(rt, c); !due {
		return NotDue
	}
	return DueNotGenerated
}

// Materialize stamps the concrete transaction of rt for month c.
func Materialize(rt core.RecurringTemplate, c core.Competency, date core.Date, id string) core.Transaction {
	return core.Transaction{
		ID:                id,
		Date:              date,
		Competency:        c,
		Value:             rt.Value,
		Details:           rt.Details,
		InstallmentNumber: 1,
		TotalInstallments: 1,
		SourceTemplateID:  rt.ID,
	}
}
