package params

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/pursledger/internal/domain"
)

// DatePaidLayout is the timestamp layout the store expects for datePaid.
const DatePaidLayout = "2006-01-02 15:04:05"

const (
	StatusCompleted = "completed"
	StatusPending   = "pending"
)

type PaymentInput struct {
	Payor           string
	Payee           string
	Amount          decimal.Decimal
	InteractionType int
	PaymentID       string
	PaymentMethod   domain.PaymentMethod
	LedgerEntryID   string
	DeveloperID     string

	// Now stamps datePaid. The current time is used when zero.
	Now time.Time
}

// Payment builds the ten parameters of the payment insert.
//
// A real-time payment with a positive amount is still pending: it gets a null
// datePaid and the "pending" status. Everything else is completed at once.
func Payment(in PaymentInput) ([]Field, error) {
	if err := ValidatePayment(in).Err(); err != nil {
		return nil, err
	}

	pending := in.PaymentMethod == domain.PaymentMethodFedNow && in.Amount.IsPositive()

	datePaid := NullValue()
	if !pending {
		now := in.Now
		if now.IsZero() {
			now = time.Now()
		}
		datePaid = StringValue(now.UTC().Format(DatePaidLayout))
	}

	status := StatusPending
	if in.PaymentMethod != domain.PaymentMethodFedNow || in.Amount.IsZero() {
		status = StatusCompleted
	}

	return []Field{
		hexField("payerId", in.Payor),
		hexField("payeeId", in.Payee),
		{Name: "paymentAmount", Value: DoubleValue(in.Amount.InexactFloat64())},
		{Name: "interactionTypeId", Value: DoubleValue(float64(in.InteractionType))},
		hexField("paymentId", in.PaymentID),
		{Name: "datePaid", Value: datePaid},
		hexField("ledgerId", in.LedgerEntryID),
		hexField("developerId", in.DeveloperID),
		{Name: "paymentMethod", Value: DoubleValue(float64(in.PaymentMethod))},
		{Name: "paymentStatus", Value: StringValue(status)},
	}, nil
}
