package domain

import (
	"github.com/shopspring/decimal"
)

// PaymentMethod selects how the payor settles a purchase.
type PaymentMethod int

const (
	// PaymentMethodFedNow is a real-time transfer; it settles asynchronously.
	PaymentMethodFedNow PaymentMethod = 0
	// PaymentMethodCard settles at purchase time.
	PaymentMethodCard PaymentMethod = 1
)

// InteractionMobile is the interaction type code for purchases made in the mobile app.
const InteractionMobile = 0

// Purchase describes a single user purchase. Identifiers are stored as the
// bytes of their leading hex pairs.
type Purchase struct {
	Payor              string          `json:"payor"`
	Payee              string          `json:"payee"`
	PayorBankAccountID string          `json:"payorBankAccountId"`
	PayeeBankAccountID string          `json:"payeeBankAccountId"`
	DeveloperID        string          `json:"dev"`
	Amount             decimal.Decimal `json:"amount"`
	InteractionType    int             `json:"interactionType"`
	PaymentMethod      PaymentMethod   `json:"paymentMethod"`
}

// IsRealTime reports whether the purchase needs a FedNow payment record.
func (p Purchase) IsRealTime() bool {
	return p.PaymentMethod == PaymentMethodFedNow && p.Amount.IsPositive()
}

// Promotion carries the promotional amount accompanying a purchase. Zero means none.
type Promotion struct {
	Amount decimal.Decimal `json:"promoAmount"`
}

func (p Promotion) Applies() bool {
	return p.Amount.IsPositive()
}

// BundleResult holds the identifiers written for one Purs Transaction Bundle.
// Optional identifiers are empty when the matching record was not created.
type BundleResult struct {
	PrimaryPaymentID       string `json:"primaryPaymentId"`
	CustomerLedgerEntryID  string `json:"customerLedgerEntryId"`
	PrimaryFedNowPaymentID string `json:"primaryFedNowPaymentId,omitempty"`
	PromotionLedgerEntryID string `json:"promotionLedgerEntryId,omitempty"`
	PursTransactionID      string `json:"pursTransactionId"`

	// Failures holds statements that failed while the bundle was allowed to
	// continue past them.
	Failures []error `json:"-"`
}

// LedgerEntryIDs returns every ledger entry id of the bundle in generation order.
func (r BundleResult) LedgerEntryIDs() []string {
	ids := []string{r.CustomerLedgerEntryID}
	if r.PromotionLedgerEntryID != "" {
		ids = append(ids, r.PromotionLedgerEntryID)
	}
	return ids
}

// BundleRequest is the DTO for incoming HTTP requests. The required tags are an
// HTTP-layer rule: the API refuses to record a purchase without a payor, payee
// or developer. The builders themselves accept any identifier string.
type BundleRequest struct {
	Payor              string          `json:"payor" validate:"required"`
	Payee              string          `json:"payee" validate:"required"`
	PayorBankAccountID string          `json:"payorBankAccountId"`
	PayeeBankAccountID string          `json:"payeeBankAccountId"`
	DeveloperID        string          `json:"dev" validate:"required"`
	Amount             decimal.Decimal `json:"amount"`
	InteractionType    int             `json:"interactionType"`
	PaymentMethod      PaymentMethod   `json:"paymentMethod"`
	PromoAmount        decimal.Decimal `json:"promoAmount"`
}

func (r BundleRequest) Purchase() Purchase {
	return Purchase{
		Payor:              r.Payor,
		Payee:              r.Payee,
		PayorBankAccountID: r.PayorBankAccountID,
		PayeeBankAccountID: r.PayeeBankAccountID,
		DeveloperID:        r.DeveloperID,
		Amount:             r.Amount,
		InteractionType:    r.InteractionType,
		PaymentMethod:      r.PaymentMethod,
	}
}

func (r BundleRequest) Promotion() Promotion {
	return Promotion{Amount: r.PromoAmount}
}

// LedgerEntry is a ledger entry as read back from the store.
type LedgerEntry struct {
	ID              string          `json:"id"`
	PayerID         string          `json:"payerId"`
	PayeeID         string          `json:"payeeId"`
	Amount          decimal.Decimal `json:"amount"`
	InteractionType int             `json:"interactionType"`
	DeveloperID     string          `json:"dev"`
}
