package domain

import "errors"

// ErrTransactionNotFound is returned when a transaction token is unknown to the
// store, or was already committed or rolled back.
var ErrTransactionNotFound = errors.New("transaction not found")

var ErrPursTransactionNotFound = errors.New("purs transaction not found")

// ErrTransactionBusy is returned when a token is already running a bundle or
// statement. A transaction serves one caller at a time.
var ErrTransactionBusy = errors.New("transaction is in use")

// ErrTransactionAborted is returned when the store rolled a transaction back at
// commit because an earlier statement failed.
var ErrTransactionAborted = errors.New("transaction aborted")
