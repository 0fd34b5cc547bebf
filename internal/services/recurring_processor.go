package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

// RecurringProcessor materializes recurring templates into competency months.
// Each template is handled in its own store transaction, so one failing
// template never blocks the others.
type RecurringProcessor struct {
	ledger  *LedgerService
	checker DuenessChecker
}

func NewRecurringProcessor(svc *LedgerService, checker DuenessChecker) *RecurringProcessor {
	return &RecurringProcessor{ledger: svc, checker: checker}
}

type SkippedTemplate struct {
	TemplateID string `json:"templateId"`
	Reason     string `json:"reason"`
}

type FailedTemplate struct {
	TemplateID string `json:"templateId"`
	Error      string `json:"error"`
}

// GenerationResult reports a batch run for one month.
type GenerationResult struct {
	Competency core.Competency    `json:"competency"`
	Generated  []core.Transaction `json:"generated"`
	Skipped    []SkippedTemplate  `json:"skipped"`
	Failed     []FailedTemplate   `json:"failed,omitempty"`
}

// Generate materializes every template due in c regardless of the current day.
func (p *RecurringProcessor) Generate(ctx context.Context, c core.Competency) (GenerationResult, error) {
	return p.run(ctx, c, core.Date{})
}

// ProcessDue generates the current month's templates whose date has been
// reached by now. It is what the recurring worker runs on every tick.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, now time.Time) (GenerationResult, error) {
	today := core.DateOf(now)
	return p.run(ctx, core.CompetencyOf(today), today)
}

// State reports where a template stands for month c.
func (p *RecurringProcessor) State(ctx context.Context, templateID string, c core.Competency) (ScheduleState, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	store := p.ledger.store
	rt, err := store.GetTemplate(ctx, templateID)
	if err != nil {
		return "", err
	}
	_, found, err := store.FindMaterialization(ctx, templateID, c)
	if err != nil {
		return "", err
	}
	return Evaluate(p.checker, rt, c, found), nil
}

func (p *RecurringProcessor) run(ctx context.Context, c core.Competency, asOf core.Date) (GenerationResult, error) {
	if err := c.Validate(); err != nil {
		return GenerationResult{}, err
	}
	svc := p.ledger
	result := GenerationResult{Competency: c, Generated: []core.Transaction{}, Skipped: []SkippedTemplate{}}

	closed, err := svc.store.IsClosed(ctx, c)
	if err != nil {
		return result, fmt.Errorf("generate recurring: %w", err)
	}
	if closed {
		slog.WarnContext(ctx, "Recurring generation rejected by closed month", "competency", c.String())
		return result, fmt.Errorf("generate recurring: %w: %s", core.ErrMonthClosed, c)
	}

	templates, err := svc.store.ListTemplates(ctx)
	if err != nil {
		return result, fmt.Errorf("generate recurring: list templates: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring templates",
		"total_templates", len(templates),
		"competency", c.String())

	for _, rt := range templates {
		generated, reason, err := p.generateOne(ctx, rt.ID, c, asOf)
		switch {
		case err != nil:
			slog.ErrorContext(ctx, "Failed to generate recurring transaction",
				"template_id", rt.ID,
				"competency", c.String(),
				"error", err)
			result.Failed = append(result.Failed, FailedTemplate{TemplateID: rt.ID, Error: err.Error()})
		case reason != "":
			result.Skipped = append(result.Skipped, SkippedTemplate{TemplateID: rt.ID, Reason: reason})
		default:
			result.Generated = append(result.Generated, generated)
			slog.InfoContext(ctx, "Created transaction from recurring template",
				"template_id", rt.ID,
				"transaction_id", generated.ID,
				"value", generated.Value.String(),
				"date", generated.Date.String())
		}
	}

	slog.InfoContext(ctx, "Recurring generation complete",
		"competency", c.String(),
		"generated", len(result.Generated),
		"skipped", len(result.Skipped),
		"failed", len(result.Failed))

	if len(result.Generated) > 0 {
		svc.publish(ctx, ledger.Event{
			Kind:           ledger.RecurringGenerated,
			Competencies:   []core.Competency{c},
			TransactionIDs: idsOf(result.Generated),
		})
	}
	return result, nil
}

// generateOne returns either the generated transaction, a skip reason or an error.
func (p *RecurringProcessor) generateOne(ctx context.Context, templateID string, c core.Competency, asOf core.Date) (core.Transaction, string, error) {
	svc := p.ledger
	defer svc.locks.Lock(materializationKey(templateID, c.String()))()

	var generated core.Transaction
	var reason string
	err := svc.store.WithinTx(ctx, func(tx ledger.Tx) error {
		if err := svc.gate.Guard(ctx, tx, OpGenerate, c); err != nil {
			return err
		}
		rt, err := tx.GetTemplate(ctx, templateID)
		if err != nil {
			return err
		}
		date, skip, due := p.checker.DueDate(rt, c)
		if !due {
			reason = skip
			return nil
		}
		if !asOf.IsEmpty() && date.After(asOf.Time) {
			reason = ReasonNotYetDue
			return nil
		}
		if _, found, err := tx.FindMaterialization(ctx, templateID, c); err != nil {
			return err
		} else if found {
			reason = ReasonAlreadyGenerated
			return nil
		}

		generated = Materialize(rt, c, date, svc.newID())
		now := svc.now().UTC()
		generated.CreatedAt, generated.UpdatedAt = now, now
		if err := generated.Validate(); err != nil {
			return err
		}
		return tx.InsertTransactions(ctx, generated)
	})
	if errors.Is(err, core.ErrDuplicateMaterialization) {
		return core.Transaction{}, ReasonAlreadyGenerated, nil
	}
	if err != nil {
		return core.Transaction{}, "", err
	}
	return generated, reason, nil
}
