package bundle

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/punchamoorthee/pursledger/internal/domain"
	"github.com/punchamoorthee/pursledger/internal/ident"
	"github.com/punchamoorthee/pursledger/internal/params"
)

const tracerName = "github.com/punchamoorthee/pursledger/internal/bundle"

// Policy decides what happens when a remote statement reports a failure.
type Policy int

const (
	// PolicyContinue logs the failure and proceeds with the next step.
	PolicyContinue Policy = iota
	// PolicyAbort stops the bundle at the first failed statement.
	PolicyAbort
)

func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "continue":
		return PolicyContinue, nil
	case "abort":
		return PolicyAbort, nil
	}
	return PolicyContinue, fmt.Errorf("unknown failure policy %q", s)
}

func (p Policy) String() string {
	if p == PolicyAbort {
		return "abort"
	}
	return "continue"
}

// Builders turns business fields into statement parameters.
type Builders struct {
	Payment         func(params.PaymentInput) ([]params.Field, error)
	FedNow          func([]params.Field, params.FedNowInput) []params.Field
	LedgerEntry     func(params.LedgerEntryInput) ([]params.Field, error)
	PursTransaction func([]string, string) [][]params.Field
}

func DefaultBuilders() Builders {
	return Builders{
		Payment:         params.Payment,
		FedNow:          params.FedNow,
		LedgerEntry:     params.LedgerEntry,
		PursTransaction: params.PursTransaction,
	}
}

// Orchestrator assembles Purs Transaction Bundles. It holds no per-bundle state,
// so one instance serves concurrent purchases.
type Orchestrator struct {
	exec     Executor
	target   Target
	gen      ident.Generator
	builders Builders
	policy   Policy
	log      zerolog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

type Option func(*Orchestrator)

func WithTarget(t Target) Option {
	return func(o *Orchestrator) { o.target = t }
}

func WithGenerator(g ident.Generator) Option {
	return func(o *Orchestrator) { o.gen = g }
}

func WithBuilders(b Builders) Option {
	return func(o *Orchestrator) { o.builders = b }
}

func WithPolicy(p Policy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) { o.tracer = tp.Tracer(tracerName) }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func New(exec Executor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		exec:     exec,
		gen:      ident.BinaryGenerator{},
		builders: DefaultBuilders(),
		policy:   PolicyContinue,
		log:      zerolog.Nop(),
		tracer:   otel.GetTracerProvider().Tracer(tracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute records one purchase as a bundle under the caller's transaction token.
//
// Steps run strictly in order and each remote call is awaited before the next.
// Nothing is rolled back here: records written before an error stay in the
// caller's transaction, and undoing them is the token owner's job.
func (o *Orchestrator) Execute(ctx context.Context, purchase domain.Purchase, promo domain.Promotion, token string) (*domain.BundleResult, error) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "bundle.Execute", trace.WithAttributes(
		attribute.Int("purchase.payment_method", int(purchase.PaymentMethod)),
		attribute.Bool("purchase.real_time", purchase.IsRealTime()),
		attribute.Bool("promotion.applies", promo.Applies()),
	))
	defer span.End()

	log := o.log
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		log = *l
	}
	log = log.With().Str("token", token).Logger()

	result, err := o.execute(ctx, log, purchase, promo, token)
	bundleDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		bundlesTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Msg("bundle aborted")
		return nil, err
	}

	bundlesTotal.WithLabelValues("ok").Inc()
	log.Info().
		Str("payment_id", result.PrimaryPaymentID).
		Str("purs_transaction_id", result.PursTransactionID).
		Int("ledger_entries", len(result.LedgerEntryIDs())).
		Int("failed_statements", len(result.Failures)).
		Msg("bundle recorded")
	return result, nil
}

func (o *Orchestrator) execute(ctx context.Context, log zerolog.Logger, purchase domain.Purchase, promo domain.Promotion, token string) (*domain.BundleResult, error) {
	// 1. Identifiers for the payment and the customer ledger entry
	paymentID := o.gen.Generate(ident.IDLength)
	ledgerEntryID := o.gen.Generate(ident.IDLength)

	result := &domain.BundleResult{
		PrimaryPaymentID:      paymentID,
		CustomerLedgerEntryID: ledgerEntryID,
	}
	ledgerEntries := []string{ledgerEntryID}

	// 2. Payment
	fields, err := o.builders.Payment(params.PaymentInput{
		Payor:           purchase.Payor,
		Payee:           purchase.Payee,
		Amount:          purchase.Amount,
		InteractionType: purchase.InteractionType,
		PaymentID:       paymentID,
		PaymentMethod:   purchase.PaymentMethod,
		LedgerEntryID:   ledgerEntryID,
		DeveloperID:     purchase.DeveloperID,
		Now:             o.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("payment parameters: %w", err)
	}
	if err := o.proceed(log, result, o.run(ctx, log, token, StmtInsertPayment, fields)); err != nil {
		return nil, err
	}

	// 3. FedNow record for pending real-time payments
	if purchase.IsRealTime() {
		fedNowID := o.gen.Generate(ident.IDLength)
		fields = o.builders.FedNow(fields, params.FedNowInput{
			FedNowPaymentID:    fedNowID,
			PayorBankAccountID: purchase.PayorBankAccountID,
			PayeeBankAccountID: purchase.PayeeBankAccountID,
		})
		if err := o.proceed(log, result, o.run(ctx, log, token, StmtInsertFedNowPayment, fields)); err != nil {
			return nil, err
		}
		result.PrimaryFedNowPaymentID = fedNowID
	}

	// 4. Customer ledger entry, from the current parameter set
	if err := o.proceed(log, result, o.run(ctx, log, token, StmtInsertLedgerEntry, fields)); err != nil {
		return nil, err
	}

	// 5. Promotion ledger entry
	if promo.Applies() {
		promoLedgerID := o.gen.Generate(ident.IDLength)
		ledgerEntries = append(ledgerEntries, promoLedgerID)

		promoFields, err := o.builders.LedgerEntry(params.LedgerEntryInput{
			Payor:           purchase.Payor,
			Payee:           purchase.Payee,
			Amount:          promo.Amount,
			InteractionType: purchase.InteractionType,
			LedgerEntryID:   promoLedgerID,
			DeveloperID:     purchase.DeveloperID,
		})
		if err != nil {
			return nil, fmt.Errorf("promotion ledger entry parameters: %w", err)
		}
		if err := o.proceed(log, result, o.run(ctx, log, token, StmtInsertPromoLedgerEntry, promoFields)); err != nil {
			return nil, err
		}
		result.PromotionLedgerEntryID = promoLedgerID
	}

	// 6. Purs transaction linking every ledger entry
	pursTransactionID := o.gen.Generate(ident.IDLength)
	sets := o.builders.PursTransaction(ledgerEntries, pursTransactionID)
	if err := o.proceed(log, result, o.runBatch(ctx, log, token, StmtInsertPursTransaction, sets)); err != nil {
		return nil, err
	}
	result.PursTransactionID = pursTransactionID

	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, log zerolog.Logger, token string, stmt StatementID, fields []params.Field) error {
	ctx, span := o.tracer.Start(ctx, string(stmt), trace.WithAttributes(
		attribute.Int("statement.parameters", len(fields)),
	))
	defer span.End()

	log.Debug().Str("statement", string(stmt)).Int("parameters", len(fields)).Msg("executing statement")
	outcome := o.exec.ExecuteStatement(ctx, StatementRequest{
		Target:        o.target,
		TransactionID: token,
		Statement:     stmt,
		Parameters:    fields,
	})
	return o.settle(span, stmt, outcome)
}

func (o *Orchestrator) runBatch(ctx context.Context, log zerolog.Logger, token string, stmt StatementID, sets [][]params.Field) error {
	ctx, span := o.tracer.Start(ctx, string(stmt), trace.WithAttributes(
		attribute.Int("statement.parameter_sets", len(sets)),
	))
	defer span.End()

	log.Debug().Str("statement", string(stmt)).Int("parameter_sets", len(sets)).Msg("executing batch statement")
	outcome := o.exec.BatchExecuteStatement(ctx, BatchRequest{
		Target:        o.target,
		TransactionID: token,
		Statement:     stmt,
		ParameterSets: sets,
	})
	return o.settle(span, stmt, outcome)
}

// settle records the outcome on the metrics and the span. A failure comes back
// as a *StatementError.
func (o *Orchestrator) settle(span trace.Span, stmt StatementID, outcome Outcome) error {
	if outcome.OK() {
		statementsTotal.WithLabelValues(string(stmt), "ok").Inc()
		return nil
	}

	statementsTotal.WithLabelValues(string(stmt), "error").Inc()
	span.RecordError(outcome.Err)
	span.SetStatus(codes.Error, outcome.Err.Error())
	return &StatementError{Statement: stmt, Err: outcome.Err}
}

// proceed applies the failure policy. Under PolicyContinue the failure is kept
// on the result and the bundle goes on.
func (o *Orchestrator) proceed(log zerolog.Logger, result *domain.BundleResult, err error) error {
	if err == nil || o.policy == PolicyAbort {
		return err
	}
	result.Failures = append(result.Failures, err)
	log.Warn().Err(err).Msg("statement failed, continuing")
	return nil
}
