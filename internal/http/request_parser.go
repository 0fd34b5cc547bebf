// Package http exposes the ledger as a JSON API.
//
// This file implements request decoding: JSON bodies into the ledger's
// inputs and query parameters into competencies and dates.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ledger/internal/core"
	"ledger/internal/services"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

var (
	// errBadJSON marks bodies that are not the JSON the endpoint expects.
	errBadJSON      = errors.New("malformed JSON body")
	errBodyTooLarge = errors.New("request body too large")
)

// decodeJSON reads a single JSON value into dst. Field values that are
// syntactically fine but invalid for the ledger (a bad amount or month)
// keep their ledger error so they map to 422; everything else is errBadJSON.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if core.IsInvalidInput(err) {
			return err
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: limit is %d bytes", errBodyTooLarge, tooLarge.Limit)
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadJSON)
		}
		return fmt.Errorf("%w: %v", errBadJSON, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON value", errBadJSON)
	}
	return nil
}

// writeDecodeError answers a failed decodeJSON.
func writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errBadJSON):
		BadRequestError(err.Error()).Write(w)
		return
	case errors.Is(err, errBodyTooLarge):
		ErrorResponse(http.StatusRequestEntityTooLarge, KindBadRequest, err.Error()).Write(w)
		return
	}
	writeServiceError(w, r, err)
}

// sanitizeInput removes control characters except tab and newlines, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// detailsPayload is the descriptive part of transaction and template bodies.
type detailsPayload struct {
	Type          core.TransactionType `json:"type"`
	PaymentMethod core.PaymentMethod   `json:"paymentMethod"`
	CreditCardRef string               `json:"creditCardRef"`
	Person        string               `json:"person"`
	Category      string               `json:"category"`
	Description   string               `json:"description"`
}

func (p detailsPayload) details() core.Details {
	return core.Details{
		Type:          core.TransactionType(strings.ToLower(sanitizeInput(string(p.Type)))),
		PaymentMethod: core.PaymentMethod(strings.ToLower(sanitizeInput(string(p.PaymentMethod)))),
		CreditCardRef: sanitizeInput(p.CreditCardRef),
		Person:        sanitizeInput(p.Person),
		Category:      sanitizeInput(p.Category),
		Description:   sanitizeInput(p.Description),
	}
}

// CreateTransactionRequest is the body of POST /api/transactions.
type CreateTransactionRequest struct {
	Date       core.Date       `json:"date"`
	Competency core.Competency `json:"competency"`
	Value      core.Money      `json:"value"`
	// Installments defaults to 1.
	Installments int `json:"installments"`
	detailsPayload
}

func (req CreateTransactionRequest) purchase() services.Purchase {
	count := req.Installments
	if count == 0 {
		count = 1
	}
	return services.Purchase{
		Total:      req.Value,
		Date:       req.Date,
		Competency: req.Competency,
		Count:      count,
		Details:    req.details(),
	}
}

// UpdateTransactionRequest is the body of PUT /api/transactions/{id}.
type UpdateTransactionRequest struct {
	Date       core.Date       `json:"date"`
	Competency core.Competency `json:"competency"`
	Value      core.Money      `json:"value"`
	detailsPayload

	InstallmentNumber int     `json:"installmentNumber"`
	TotalInstallments int     `json:"totalInstallments"`
	GroupID           *string `json:"groupId"`
}

func (req UpdateTransactionRequest) update() services.TransactionUpdate {
	return services.TransactionUpdate{
		Date:              req.Date,
		Competency:        req.Competency,
		Value:             req.Value,
		Details:           req.details(),
		InstallmentNumber: req.InstallmentNumber,
		TotalInstallments: req.TotalInstallments,
		GroupID:           req.GroupID,
	}
}

// ReplanRequest is the body of PUT /api/installments/{groupId}. Omitted
// fields keep the group's current total or purchase date.
type ReplanRequest struct {
	Value *core.Money `json:"value"`
	Date  *core.Date  `json:"date"`
}

// TemplateRequest is the body of recurring template create and update.
type TemplateRequest struct {
	Value          core.Money      `json:"value"`
	DayOfMonth     int             `json:"dayOfMonth"`
	StartDate      core.Date       `json:"startDate"`
	EndDate        core.Date       `json:"endDate"`
	Active         *bool           `json:"active"`
	BaseCompetency core.Competency `json:"baseCompetency"`
	detailsPayload
}

func (req TemplateRequest) input() services.TemplateInput {
	return services.TemplateInput{
		Value:          req.Value,
		Details:        req.details(),
		DayOfMonth:     req.DayOfMonth,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		Active:         req.Active,
		BaseCompetency: req.BaseCompetency,
	}
}

// CloseMonthRequest is the body of POST /api/closed-months.
type CloseMonthRequest struct {
	Month core.Competency `json:"month"`
}

// ParseCompetencyParam reads a required MM/YYYY query parameter.
func ParseCompetencyParam(query url.Values, key string) (core.Competency, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return core.Competency{}, fmt.Errorf("%w: missing %s parameter", core.ErrInvalidCompetency, key)
	}
	return core.ParseCompetency(v)
}

// ParseCompetencyParamOrNow reads an optional MM/YYYY query parameter,
// defaulting to the month of now.
func ParseCompetencyParamOrNow(query url.Values, key string, now time.Time) (core.Competency, error) {
	if strings.TrimSpace(query.Get(key)) == "" {
		return core.CompetencyOf(core.DateOf(now)), nil
	}
	return ParseCompetencyParam(query, key)
}

// DateRange is an inclusive from/to filter.
type DateRange struct {
	From core.Date
	To   core.Date
}

// ParseDateRange reads from and to. ok is false when neither is present.
func ParseDateRange(query url.Values) (DateRange, bool, error) {
	from, to := strings.TrimSpace(query.Get("from")), strings.TrimSpace(query.Get("to"))
	if from == "" && to == "" {
		return DateRange{}, false, nil
	}
	if from == "" || to == "" {
		return DateRange{}, true, fmt.Errorf("%w: from and to must be given together", core.ErrInvalidDate)
	}
	var (
		rng DateRange
		err error
	)
	if rng.From, err = core.ParseDate(from); err != nil {
		return DateRange{}, true, err
	}
	if rng.To, err = core.ParseDate(to); err != nil {
		return DateRange{}, true, err
	}
	return rng, true, nil
}
