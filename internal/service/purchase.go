package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/punchamoorthee/pursledger/internal/bundle"
	"github.com/punchamoorthee/pursledger/internal/domain"
)

// TxStore is a bundle.Executor whose transactions can be opened and closed by token.
type TxStore interface {
	bundle.Executor
	Begin(ctx context.Context) (string, error)
	Commit(ctx context.Context, token string) error
	Rollback(ctx context.Context, token string) error
}

type PurchaseService struct {
	store TxStore
	orch  *bundle.Orchestrator
	log   zerolog.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

func NewPurchaseService(store TxStore, orch *bundle.Orchestrator, log zerolog.Logger) *PurchaseService {
	return &PurchaseService{store: store, orch: orch, log: log, active: make(map[string]struct{})}
}

// claim reserves token for one caller. A second caller gets
// domain.ErrTransactionBusy until the returned release runs.
func (s *PurchaseService) claim(token string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[token]; ok {
		return nil, domain.ErrTransactionBusy
	}
	s.active[token] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.active, token)
		s.mu.Unlock()
	}, nil
}

// RecordPurchase writes a whole bundle in a transaction of its own. The
// transaction is committed when the orchestrator returns without error and
// rolled back otherwise.
func (s *PurchaseService) RecordPurchase(ctx context.Context, purchase domain.Purchase, promo domain.Promotion) (*domain.BundleResult, error) {
	token, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.orch.Execute(ctx, purchase, promo, token)
	if err != nil {
		if rbErr := s.store.Rollback(context.WithoutCancel(ctx), token); rbErr != nil {
			s.log.Error().Err(rbErr).Str("token", token).Msg("rollback failed")
			return nil, errors.Join(err, rbErr)
		}
		return nil, err
	}

	if err := s.store.Commit(ctx, token); err != nil {
		// The error carries every statement the bundle continued past.
		return nil, fmt.Errorf("commit bundle: %w", errors.Join(append(result.Failures, err)...))
	}
	return result, nil
}

// RecordInTransaction writes a bundle under a token the caller already holds.
// Commit and rollback stay with the caller.
func (s *PurchaseService) RecordInTransaction(ctx context.Context, token string, purchase domain.Purchase, promo domain.Promotion) (*domain.BundleResult, error) {
	release, err := s.claim(token)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.orch.Execute(ctx, purchase, promo, token)
}

func (s *PurchaseService) Begin(ctx context.Context) (string, error) {
	return s.store.Begin(ctx)
}

func (s *PurchaseService) Commit(ctx context.Context, token string) error {
	release, err := s.claim(token)
	if err != nil {
		return err
	}
	defer release()
	return s.store.Commit(ctx, token)
}

func (s *PurchaseService) Rollback(ctx context.Context, token string) error {
	release, err := s.claim(token)
	if err != nil {
		return err
	}
	defer release()
	return s.store.Rollback(ctx, token)
}
