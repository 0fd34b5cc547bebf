package services

import (
	"context"
	"fmt"
	"log/slog"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

// TemplateInput carries the editable fields of a recurring template.
// A nil Active means active.
type TemplateInput struct {
	Value          core.Money
	Details        core.Details
	DayOfMonth     int
	StartDate      core.Date
	EndDate        core.Date
	Active         *bool
	BaseCompetency core.Competency
}

func (in TemplateInput) apply(rt core.RecurringTemplate) core.RecurringTemplate {
	rt.Value = in.Value
	rt.Details = in.Details
	rt.DayOfMonth = in.DayOfMonth
	rt.StartDate = in.StartDate
	rt.EndDate = in.EndDate
	rt.Active = in.Active == nil || *in.Active
	rt.BaseCompetency = in.BaseCompetency
	return rt
}

// CreateTemplate stores a new recurring template. Templates never appear in
// the ledger themselves, so no month gate applies.
func (s *LedgerService) CreateTemplate(ctx context.Context, in TemplateInput) (core.RecurringTemplate, error) {
	now := s.now().UTC()
	rt := in.apply(core.RecurringTemplate{ID: s.newID(), CreatedAt: now, UpdatedAt: now})
	if err := rt.Validate(); err != nil {
		return core.RecurringTemplate{}, err
	}
	if err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		return tx.SaveTemplate(ctx, rt)
	}); err != nil {
		return core.RecurringTemplate{}, s.fail(ctx, "create template", err)
	}
	slog.InfoContext(ctx, "Recurring template created",
		"template_id", rt.ID,
		"day_of_month", rt.DayOfMonth,
		"value", rt.Value.String())
	return rt, nil
}

// UpdateTemplate replaces a template's fields. Already generated transactions
// keep the values they were stamped with.
func (s *LedgerService) UpdateTemplate(ctx context.Context, id string, in TemplateInput) (core.RecurringTemplate, error) {
	var rt core.RecurringTemplate
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		current, err := tx.GetTemplate(ctx, id)
		if err != nil {
			return err
		}
		rt = in.apply(current)
		rt.UpdatedAt = s.now().UTC()
		if err := rt.Validate(); err != nil {
			return err
		}
		return tx.SaveTemplate(ctx, rt)
	})
	if err != nil {
		return core.RecurringTemplate{}, s.fail(ctx, "update template", err)
	}
	slog.InfoContext(ctx, "Recurring template updated", "template_id", id, "active", rt.Active)
	return rt, nil
}

func (s *LedgerService) GetTemplate(ctx context.Context, id string) (core.RecurringTemplate, error) {
	return s.store.GetTemplate(ctx, id)
}

func (s *LedgerService) ListTemplates(ctx context.Context) ([]core.RecurringTemplate, error) {
	templates, err := s.store.ListTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

// DeleteTemplate removes a template; its materializations stay in the ledger.
func (s *LedgerService) DeleteTemplate(ctx context.Context, id string) error {
	if err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		return tx.DeleteTemplate(ctx, id)
	}); err != nil {
		return s.fail(ctx, "delete template", err)
	}
	slog.InfoContext(ctx, "Recurring template deleted", "template_id", id)
	return nil
}
