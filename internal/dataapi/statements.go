package dataapi

import "github.com/punchamoorthee/pursledger/internal/bundle"

// Aurora MySQL flavour, :name placeholders.
var statements = map[bundle.StatementID]string{
	bundle.StmtInsertPayment: `INSERT INTO payment
		(payment_id, payer_id, payee_id, amount, interaction_type_id, date_paid, ledger_id, developer_id, payment_method, payment_status)
		VALUES (:paymentId, :payerId, :payeeId, :paymentAmount, :interactionTypeId, :datePaid, :ledgerId, :developerId, :paymentMethod, :paymentStatus)`,

	bundle.StmtInsertFedNowPayment: `INSERT INTO fednow_payment
		(fednow_payment_id, payment_id, payor_bank_account_id, payee_bank_account_id)
		VALUES (:fedNowPaymentId, :paymentId, :payorBankAccountId, :payeeBankAccountId)`,

	bundle.StmtInsertLedgerEntry: `INSERT INTO ledger_entry
		(ledger_id, payer_id, payee_id, amount, interaction_type_id, developer_id)
		VALUES (:ledgerId, :payerId, :payeeId, :paymentAmount, :interactionTypeId, :developerId)`,

	bundle.StmtInsertPromoLedgerEntry: `INSERT INTO ledger_entry
		(ledger_id, payer_id, payee_id, amount, interaction_type_id, developer_id)
		VALUES (:ledgerId, :payerId, :payeeId, :amount, :interactionTypeId, :developerId)`,

	bundle.StmtInsertPursTransaction: `INSERT INTO purs_transaction (transaction_id, ledger_id)
		VALUES (:transactionId, :ledgerId)`,
}
