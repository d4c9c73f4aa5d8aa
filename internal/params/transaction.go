package params

// PursTransaction builds one (transactionId, ledgerId) row per ledger entry,
// preserving the order of ledgerEntryIDs.
func PursTransaction(ledgerEntryIDs []string, pursTransactionID string) [][]Field {
	sets := make([][]Field, 0, len(ledgerEntryIDs))
	for _, ledgerID := range ledgerEntryIDs {
		sets = append(sets, []Field{
			hexField("transactionId", pursTransactionID),
			hexField("ledgerId", ledgerID),
		})
	}
	return sets
}
