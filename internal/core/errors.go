package core

import "errors"

// Ledger error kinds. Callers match them with errors.Is; wrapped errors carry
// the offending competency, group or id in their message.
var (
	// ErrMonthClosed rejects a mutation that targets a closed competency month.
	ErrMonthClosed = errors.New("competency month is closed")
	// ErrMonthAlreadyClosed is returned when closing a month twice.
	ErrMonthAlreadyClosed = errors.New("competency month already closed")

	ErrInvalidInstallmentCount = errors.New("invalid installment count")
	ErrGroupNotFound           = errors.New("installment group not found")
	// ErrInconsistentGroup means a stored group violates the installment invariant.
	// It is never repaired silently.
	ErrInconsistentGroup = errors.New("installment group is inconsistent")
	// ErrGroupMemberEdit rejects value/date edits of a single installment.
	ErrGroupMemberEdit = errors.New("installment value and dates can only change through a group re-plan")

	ErrTransactionNotFound = errors.New("transaction not found")
	ErrTemplateNotFound    = errors.New("recurring template not found")
	// ErrDuplicateMaterialization is raised by stores when (template, competency) already exists.
	ErrDuplicateMaterialization = errors.New("recurring template already materialized for competency")

	ErrInvalidCompetency    = errors.New("invalid competency, expected MM/YYYY")
	ErrInvalidDay           = errors.New("invalid day")
	ErrInvalidMonth         = errors.New("invalid month")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidDate          = errors.New("invalid date")
	ErrEmptyDescription     = errors.New("empty description")
	ErrEmptyCategory        = errors.New("empty category")
	ErrInvalidType          = errors.New("invalid transaction type")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrCreditCardRequired   = errors.New("credit card reference required for credit payments")
	ErrUnexpectedCreditCard = errors.New("credit card reference only allowed for credit payments")
	ErrInvalidDayOfMonth    = errors.New("day of month must be between 1 and 31")
	ErrInvalidWindow        = errors.New("end date must not be before start date")
)

// IsInvalidInput reports whether err is a client input problem rather than a
// ledger state conflict or an internal failure.
func IsInvalidInput(err error) bool {
	for _, target := range []error{
		ErrInvalidInstallmentCount, ErrGroupMemberEdit, ErrInvalidCompetency,
		ErrInvalidDay, ErrInvalidMonth, ErrInvalidAmount, ErrInvalidDate,
		ErrEmptyDescription, ErrEmptyCategory, ErrInvalidType, ErrInvalidPaymentMethod,
		ErrCreditCardRequired, ErrUnexpectedCreditCard, ErrInvalidDayOfMonth, ErrInvalidWindow,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err names a missing transaction, group or template.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrGroupNotFound) ||
		errors.Is(err, ErrTemplateNotFound)
}
