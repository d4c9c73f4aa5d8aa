package store

import (
	"context"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/pursledger/internal/bundle"
	"github.com/punchamoorthee/pursledger/internal/domain"
	"github.com/punchamoorthee/pursledger/internal/params"
)

//go:embed schema.sql
var Schema string

// Store runs bundle statements against Postgres. Open transactions are kept by
// token until the owner commits or rolls them back, or until they sit idle past
// the reaper's timeout.
type Store struct {
	db  *pgxpool.Pool
	log zerolog.Logger
	now func() time.Time

	mu  sync.Mutex
	txs map[string]*openTx
}

// openTx is a transaction held under a token. A pgx.Tx is not safe for
// concurrent use, so busy marks one running statement at a time.
type openTx struct {
	tx       pgx.Tx
	busy     bool
	lastUsed time.Time
}

// Open connects to connString and pings it, retrying with exponential backoff
// while the database comes up.
func Open(ctx context.Context, connString string, log zerolog.Logger) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	ping := func() error {
		err := pool.Ping(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("waiting for database")
		}
		return err
	}
	if err := backoff.Retry(ping, backoff.WithContext(backoff.WithMaxRetries(b, 5), ctx)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return New(pool, log), nil
}

func New(pool *pgxpool.Pool, log zerolog.Logger) *Store {
	return &Store{db: pool, log: log, now: time.Now, txs: make(map[string]*openTx)}
}

// Close rolls back every transaction still open and closes the pool.
func (s *Store) Close() {
	s.mu.Lock()
	txs := s.txs
	s.txs = make(map[string]*openTx)
	s.mu.Unlock()

	for token, t := range txs {
		if err := t.tx.Rollback(context.Background()); err != nil {
			s.log.Warn().Err(err).Str("token", token).Msg("rollback on close failed")
		}
	}
	s.db.Close()
}

// Migrate applies the embedded schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Begin opens a transaction and returns its token.
func (s *Store) Begin(ctx context.Context) (string, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return "", fmt.Errorf("tx begin failed: %w", err)
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.txs[token] = &openTx{tx: tx, lastUsed: s.now()}
	s.mu.Unlock()
	return token, nil
}

// Commit commits the transaction behind token. When Postgres rolled it back
// instead, because an earlier statement failed, the error wraps
// domain.ErrTransactionAborted.
func (s *Store) Commit(ctx context.Context, token string) error {
	tx, err := s.take(token)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if errors.Is(err, pgx.ErrTxCommitRollback) {
			return fmt.Errorf("%w: %w", domain.ErrTransactionAborted, err)
		}
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

func (s *Store) Rollback(ctx context.Context, token string) error {
	tx, err := s.take(token)
	if err != nil {
		return err
	}
	if err := tx.Rollback(ctx); err != nil {
		return fmt.Errorf("tx rollback failed: %w", err)
	}
	return nil
}

// take removes an idle transaction from the registry.
func (s *Store) take(token string) (pgx.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[token]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	if t.busy {
		return nil, domain.ErrTransactionBusy
	}
	delete(s.txs, token)
	return t.tx, nil
}

// acquire marks the transaction busy for one statement. Every successful
// acquire must be paired with release.
func (s *Store) acquire(token string) (*openTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[token]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	if t.busy {
		return nil, domain.ErrTransactionBusy
	}
	t.busy = true
	return t, nil
}

func (s *Store) release(t *openTx) {
	s.mu.Lock()
	t.busy = false
	t.lastUsed = s.now()
	s.mu.Unlock()
}

// ReapIdle rolls back every transaction that has not run a statement for
// longer than idle and returns how many it closed.
func (s *Store) ReapIdle(ctx context.Context, idle time.Duration) int {
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	stale := make(map[string]pgx.Tx)
	for token, t := range s.txs {
		if !t.busy && t.lastUsed.Before(cutoff) {
			stale[token] = t.tx
			delete(s.txs, token)
		}
	}
	s.mu.Unlock()

	for token, tx := range stale {
		if err := tx.Rollback(ctx); err != nil {
			s.log.Warn().Err(err).Str("token", token).Msg("rollback of idle transaction failed")
			continue
		}
		s.log.Warn().Str("token", token).Dur("idle", idle).Msg("rolled back idle transaction")
	}
	return len(stale)
}

// RunReaper calls ReapIdle twice per idle period until ctx is done.
func (s *Store) RunReaper(ctx context.Context, idle time.Duration) {
	ticker := time.NewTicker(idle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ReapIdle(ctx, idle)
		}
	}
}

// ExecuteStatement implements bundle.Executor.
func (s *Store) ExecuteStatement(ctx context.Context, req bundle.StatementRequest) bundle.Outcome {
	query, err := statementSQL(req.Statement)
	if err != nil {
		return bundle.Failed(req.Statement, err)
	}
	t, err := s.acquire(req.TransactionID)
	if err != nil {
		return bundle.Failed(req.Statement, err)
	}
	defer s.release(t)

	if _, err := t.tx.Exec(ctx, query, NamedArgs(req.Parameters)); err != nil {
		return bundle.Failed(req.Statement, describe(err))
	}
	return bundle.Succeeded(req.Statement)
}

// BatchExecuteStatement implements bundle.Executor. Every parameter set is
// queued against the same statement and sent in one round trip.
func (s *Store) BatchExecuteStatement(ctx context.Context, req bundle.BatchRequest) bundle.Outcome {
	query, err := statementSQL(req.Statement)
	if err != nil {
		return bundle.Failed(req.Statement, err)
	}
	t, err := s.acquire(req.TransactionID)
	if err != nil {
		return bundle.Failed(req.Statement, err)
	}
	defer s.release(t)

	batch := &pgx.Batch{}
	for _, set := range req.ParameterSets {
		batch.Queue(query, NamedArgs(set))
	}

	br := t.tx.SendBatch(ctx, batch)
	for i := range req.ParameterSets {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return bundle.Failed(req.Statement, fmt.Errorf("parameter set %d: %w", i, describe(err)))
		}
	}
	if err := br.Close(); err != nil {
		return bundle.Failed(req.Statement, describe(err))
	}
	return bundle.Succeeded(req.Statement)
}

// NamedArgs converts record parameters into pgx named arguments.
func NamedArgs(fields []params.Field) pgx.NamedArgs {
	args := make(pgx.NamedArgs, len(fields))
	for _, f := range fields {
		switch f.Value.Kind {
		case params.KindBlob:
			args[f.Name] = f.Value.Blob
		case params.KindDouble:
			args[f.Name] = f.Value.Double
		case params.KindString:
			args[f.Name] = f.Value.String
		default:
			args[f.Name] = nil
		}
	}
	return args
}

// describe adds the SQLSTATE to Postgres errors.
func describe(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s (SQLSTATE %s): %w", pgErr.Message, pgErr.Code, err)
	}
	return err
}

// LedgerEntries retrieves the ledger entries linked to a purs transaction.
func (s *Store) LedgerEntries(ctx context.Context, pursTransactionID string) ([]domain.LedgerEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT le.ledger_id, le.payer_id, le.payee_id, le.amount::text, le.interaction_type_id, le.developer_id
		FROM purs_transaction pt
		JOIN ledger_entry le ON le.ledger_id = pt.ledger_id
		WHERE pt.transaction_id = $1
		ORDER BY le.created_at, le.ledger_id`,
		params.DecodeHex(pursTransactionID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var (
			id, payer, payee, dev []byte
			amount                string
			entry                 domain.LedgerEntry
		)
		if err := rows.Scan(&id, &payer, &payee, &amount, &entry.InteractionType, &dev); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entry.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse ledger amount: %w", err)
		}
		entry.ID = hex.EncodeToString(id)
		entry.PayerID = hex.EncodeToString(payer)
		entry.PayeeID = hex.EncodeToString(payee)
		entry.DeveloperID = hex.EncodeToString(dev)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, domain.ErrPursTransactionNotFound
	}
	return entries, nil
}
