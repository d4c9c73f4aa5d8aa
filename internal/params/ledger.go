package params

import "github.com/shopspring/decimal"

type LedgerEntryInput struct {
	Payor           string
	Payee           string
	Amount          decimal.Decimal
	InteractionType int
	LedgerEntryID   string
	DeveloperID     string
}

// LedgerEntry builds the six parameters of a ledger entry insert. The amount is
// whatever the entry records: the purchase amount or a promotion amount.
func LedgerEntry(in LedgerEntryInput) ([]Field, error) {
	if err := ValidateLedgerEntry(in).Err(); err != nil {
		return nil, err
	}

	return []Field{
		hexField("payerId", in.Payor),
		hexField("payeeId", in.Payee),
		{Name: "amount", Value: DoubleValue(in.Amount.InexactFloat64())},
		{Name: "interactionTypeId", Value: DoubleValue(float64(in.InteractionType))},
		hexField("ledgerId", in.LedgerEntryID),
		hexField("developerId", in.DeveloperID),
	}, nil
}
