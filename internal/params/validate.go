package params

import (
	"errors"

	"github.com/punchamoorthee/pursledger/internal/domain"
)

var ErrInvalidParameter = errors.New("invalid parameter")

// ValidationError carries the message of the last rule that failed.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidParameter
}

// Validation is the result of a single pass over a builder's rules.
// Rules run in a fixed order and a later failure overwrites an earlier one.
type Validation struct {
	OK      bool
	Message string
}

func newValidation() Validation {
	return Validation{OK: true}
}

func (v *Validation) check(ok bool, message string) {
	if !ok {
		v.OK = false
		v.Message = message
	}
}

// Err returns nil when every rule passed.
func (v Validation) Err() error {
	if v.OK {
		return nil
	}
	return &ValidationError{Message: v.Message}
}

// Identifier fields are typed strings, so only the numeric rules can fail.
// Identifiers of any shape are accepted and hex-decoded leniently.

func ValidatePayment(in PaymentInput) Validation {
	v := newValidation()
	v.check(in.InteractionType >= 0, "interactionType parameter must be a non-negative number")
	v.check(in.PaymentMethod == domain.PaymentMethodFedNow || in.PaymentMethod == domain.PaymentMethodCard,
		"paymentMethod parameter must be 0 or 1")
	v.check(in.Amount.IsPositive(), "amount parameter must be greater than 0")
	return v
}

func ValidateLedgerEntry(in LedgerEntryInput) Validation {
	v := newValidation()
	v.check(!in.Amount.IsNegative(), "promoAmount parameter must be greater than 0")
	v.check(in.InteractionType >= 0, "interactionType parameter must be a non-negative number")
	return v
}
