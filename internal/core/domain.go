package core

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

const (
	Expense TransactionType = "expense"
	Income  TransactionType = "income"
)

const (
	Credit PaymentMethod = "credit"
	Debit  PaymentMethod = "debit"
	Cash   PaymentMethod = "cash"
	Pix    PaymentMethod = "pix"
)

const (
	dateLayout           = "2006-01-02"
	maxDescriptionLength = 500
)

type (
	TransactionType string
	PaymentMethod   string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Details are the descriptive fields shared by transactions and the
	// recurring templates that stamp them.
	Details struct {
		Type          TransactionType `json:"type"`
		PaymentMethod PaymentMethod   `json:"paymentMethod"`
		CreditCardRef string          `json:"creditCardRef,omitempty"`
		Person        string          `json:"person,omitempty"`
		Category      string          `json:"category"`
		Description   string          `json:"description"`
	}

	Transaction struct {
		ID         string     `json:"id"`
		Date       Date       `json:"date"`
		Competency Competency `json:"competency"`
		Value      Money      `json:"value"`
		Details

		InstallmentNumber int    `json:"installmentNumber"`
		TotalInstallments int    `json:"totalInstallments"`
		GroupID           string `json:"groupId,omitempty"`
		// SourceTemplateID is set on recurring materializations; together with
		// Competency it is unique in the ledger.
		SourceTemplateID string `json:"sourceTemplateId,omitempty"`

		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	RecurringTemplate struct {
		ID    string `json:"id"`
		Value Money  `json:"value"`
		Details

		DayOfMonth int  `json:"dayOfMonth"`
		StartDate  Date `json:"startDate"`
		EndDate    Date `json:"endDate"` // zero means open-ended
		Active     bool `json:"active"`
		// BaseCompetency is informational, kept for clients that track the
		// month the template was first planned for.
		BaseCompetency Competency `json:"baseCompetency"`

		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a date in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// DateOf truncates a timestamp to its UTC calendar day.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// IsEmpty returns true if the date is zero (optional dates such as a template end date)
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) || bytes.Equal(b, []byte(`""`)) {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t TransactionType) Validate() error {
	switch t {
	case Expense, Income:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidType, string(t))
	}
}

func (p PaymentMethod) Validate() error {
	switch p {
	case Credit, Debit, Cash, Pix:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, string(p))
	}
}

func (d Details) Validate() error {
	if err := d.Type.Validate(); err != nil {
		return err
	}
	if err := d.PaymentMethod.Validate(); err != nil {
		return err
	}
	if d.PaymentMethod == Credit && strings.TrimSpace(d.CreditCardRef) == "" {
		return ErrCreditCardRequired
	}
	if d.PaymentMethod != Credit && strings.TrimSpace(d.CreditCardRef) != "" {
		return ErrUnexpectedCreditCard
	}
	if len(strings.TrimSpace(d.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(d.Description) > maxDescriptionLength {
		return fmt.Errorf("%w: description too long (max %d characters)", ErrEmptyDescription, maxDescriptionLength)
	}
	if strings.TrimSpace(d.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

// IsInstallment reports whether the transaction belongs to an installment group.
func (t Transaction) IsInstallment() bool {
	return t.GroupID != ""
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if err := t.Competency.Validate(); err != nil {
		return err
	}
	if err := t.Value.Validate(); err != nil {
		return err
	}
	if err := t.Details.Validate(); err != nil {
		return err
	}
	if t.TotalInstallments < 1 || t.InstallmentNumber < 1 || t.InstallmentNumber > t.TotalInstallments {
		return fmt.Errorf("%w: installment %d of %d", ErrInvalidInstallmentCount, t.InstallmentNumber, t.TotalInstallments)
	}
	if (t.TotalInstallments > 1) != (t.GroupID != "") {
		return fmt.Errorf("%w: group id must be set exactly when there is more than one installment", ErrInvalidInstallmentCount)
	}
	return nil
}

func (rt RecurringTemplate) Validate() error {
	if err := rt.StartDate.Validate(); err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}
	if !rt.EndDate.IsEmpty() {
		if err := rt.EndDate.Validate(); err != nil {
			return fmt.Errorf("invalid end date: %w", err)
		}
		if rt.EndDate.Before(rt.StartDate.Time) {
			return ErrInvalidWindow
		}
	}
	if rt.DayOfMonth < 1 || rt.DayOfMonth > 31 {
		return ErrInvalidDayOfMonth
	}
	if !rt.BaseCompetency.IsZero() {
		if err := rt.BaseCompetency.Validate(); err != nil {
			return err
		}
	}
	if err := rt.Value.Validate(); err != nil {
		return err
	}
	return rt.Details.Validate()
}

// InWindow reports whether d lies within [StartDate, EndDate], EndDate open when zero.
func (rt RecurringTemplate) InWindow(d Date) bool {
	if d.Before(rt.StartDate.Time) {
		return false
	}
	if !rt.EndDate.IsEmpty() && d.After(rt.EndDate.Time) {
		return false
	}
	return true
}

// ClosedMonth is a member of the closed competency set.
type ClosedMonth struct {
	Month    Competency `json:"month"`
	ClosedAt time.Time  `json:"closedAt"`
}
