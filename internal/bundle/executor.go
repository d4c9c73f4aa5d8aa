package bundle

import (
	"context"
	"fmt"

	"github.com/punchamoorthee/pursledger/internal/params"
)

// StatementID names a statement the store knows how to run. Each Executor maps
// ids to its own SQL.
type StatementID string

const (
	StmtInsertPayment          StatementID = "insert_payment"
	StmtInsertFedNowPayment    StatementID = "insert_fednow_payment"
	StmtInsertLedgerEntry      StatementID = "insert_ledger_entry"
	StmtInsertPromoLedgerEntry StatementID = "insert_promo_ledger_entry"
	StmtInsertPursTransaction  StatementID = "insert_purs_transaction"
)

// Target identifies the remote store a request runs against.
type Target struct {
	Database    string
	SecretARN   string
	ResourceARN string
}

type StatementRequest struct {
	Target
	TransactionID string
	Statement     StatementID
	Parameters    []params.Field
}

type BatchRequest struct {
	Target
	TransactionID string
	Statement     StatementID
	ParameterSets [][]params.Field
}

// Outcome reports how a remote call went. A nil Err is success.
type Outcome struct {
	Statement StatementID
	Err       error
}

func (o Outcome) OK() bool {
	return o.Err == nil
}

func Succeeded(stmt StatementID) Outcome {
	return Outcome{Statement: stmt}
}

func Failed(stmt StatementID, err error) Outcome {
	return Outcome{Statement: stmt, Err: err}
}

// Executor runs statements under a transaction token owned by the caller.
// Implementations report failures through the Outcome instead of panicking or
// retrying; retries belong to the underlying client.
type Executor interface {
	ExecuteStatement(ctx context.Context, req StatementRequest) Outcome
	BatchExecuteStatement(ctx context.Context, req BatchRequest) Outcome
}

// StatementError is returned under PolicyAbort when a remote call fails.
type StatementError struct {
	Statement StatementID
	Err       error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("statement %s failed: %v", e.Statement, e.Err)
}

func (e *StatementError) Unwrap() error {
	return e.Err
}
