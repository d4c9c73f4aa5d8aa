package params

type FedNowInput struct {
	FedNowPaymentID    string
	PayorBankAccountID string
	PayeeBankAccountID string
}

// FedNow returns existing extended with the FedNow payment fields.
// existing is never modified.
func FedNow(existing []Field, in FedNowInput) []Field {
	out := make([]Field, 0, len(existing)+3)
	out = append(out, existing...)
	return append(out,
		hexField("fedNowPaymentId", in.FedNowPaymentID),
		hexField("payorBankAccountId", in.PayorBankAccountID),
		hexField("payeeBankAccountId", in.PayeeBankAccountID),
	)
}
