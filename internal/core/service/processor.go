package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sinhadeepak1115/MilTrack/internal/core/domain"
	"github.com/sinhadeepak1115/MilTrack/internal/infra/metrics"
	"github.com/sinhadeepak1115/MilTrack/internal/port"
)

const (
	defaultMaxAttempts = 5
	defaultBackoff     = 10 * time.Millisecond
)

// TransactionProcessor is the single entry point for quantity-changing
// actions. It validates, authorizes, locks the affected balance keys in a
// fixed global order, applies optimistic deltas with bounded retry, and
// appends the audit entry as the commit point. Balance mutation and audit
// append form one commit unit: if the append fails the deltas are rolled
// back before the error is surfaced.
type TransactionProcessor struct {
	ledger   port.LedgerStore
	audit    port.AuditLog
	catalog  port.Catalog
	locks    port.KeyLocker
	gate     *AuthorizationGate
	fence    port.IdempotencyFence
	metrics  *metrics.Ledger
	log      *slog.Logger
	validate *validator.Validate

	maxAttempts int
	backoff     time.Duration
}

type ProcessorOption func(*TransactionProcessor)

// WithIdempotencyFence enables duplicate-request fencing for actions that
// carry a RequestID.
func WithIdempotencyFence(fence port.IdempotencyFence) ProcessorOption {
	return func(p *TransactionProcessor) { p.fence = fence }
}

func WithMetrics(m *metrics.Ledger) ProcessorOption {
	return func(p *TransactionProcessor) { p.metrics = m }
}

// WithRetryPolicy overrides the conflict retry bound and base backoff.
func WithRetryPolicy(maxAttempts int, backoff time.Duration) ProcessorOption {
	return func(p *TransactionProcessor) {
		p.maxAttempts = maxAttempts
		p.backoff = backoff
	}
}

func NewTransactionProcessor(
	ledger port.LedgerStore,
	audit port.AuditLog,
	catalog port.Catalog,
	locks port.KeyLocker,
	log *slog.Logger,
	opts ...ProcessorOption,
) *TransactionProcessor {
	p := &TransactionProcessor{
		ledger:      ledger,
		audit:       audit,
		catalog:     catalog,
		locks:       locks,
		gate:        NewAuthorizationGate(),
		log:         log,
		validate:    validator.New(),
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// deltaStep is one signed balance mutation. TRANSFER produces two steps,
// debit first.
type deltaStep struct {
	baseID      string
	assetTypeID string
	delta       int64
}

// Submit validates and commits one action, returning the committed audit
// entry. Failures before any mutation leave zero side effects; once the
// first delta has been applied the transaction runs to completion even if
// the caller cancels.
func (p *TransactionProcessor) Submit(ctx context.Context, action domain.Action, user domain.User) (domain.Entry, error) {
	if err := p.validateAction(ctx, action); err != nil {
		p.metrics.Failed("validation")
		return domain.Entry{}, err
	}
	if err := p.gate.Check(user, action); err != nil {
		p.metrics.Failed("authorization")
		return domain.Entry{}, err
	}

	if action.Kind == domain.ActionAssign {
		// The asset must already be recorded at the acting base. This is
		// a version check, not a quantity threshold.
		_, version, err := p.ledger.GetBalance(ctx, action.SourceBaseID, action.AssetTypeID)
		if err != nil {
			return domain.Entry{}, fmt.Errorf("read balance: %w", err)
		}
		if version == 0 {
			p.metrics.Failed("authorization")
			return domain.Entry{}, fmt.Errorf("%w: %s", domain.ErrAuthorization, domain.ReasonAssetNotAtBase)
		}
	}

	if p.fence != nil && action.RequestID != "" {
		ok, err := p.fence.Reserve(ctx, "txn:"+action.RequestID)
		if err != nil {
			return domain.Entry{}, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			p.metrics.Failed("duplicate")
			return domain.Entry{}, domain.ErrDuplicateRequest
		}
	}

	entry := domain.Entry{
		Kind:         action.Kind,
		AssetTypeID:  action.AssetTypeID,
		Quantity:     action.Quantity,
		SourceBaseID: action.SourceBaseID,
		TargetBaseID: action.TargetBaseID,
		UserID:       user.ID,
		Note:         action.Note,
		RefSequence:  action.RefSequence,
		CommittedAt:  time.Now().UTC(),
	}

	steps := actionSteps(action)
	if len(steps) == 0 {
		// Metadata-only action: the append is the whole commit.
		seq, err := p.audit.Append(ctx, entry)
		if err != nil {
			p.metrics.Failed("commit")
			return domain.Entry{}, fmt.Errorf("%w: %v", domain.ErrCommitFailed, err)
		}
		entry.Sequence = seq
		p.metrics.Committed(string(entry.Kind))
		return entry, nil
	}

	release, err := p.locks.Lock(ctx, lockKeys(steps))
	if err != nil {
		return domain.Entry{}, fmt.Errorf("acquire key locks: %w", err)
	}
	defer release()

	applied, err := p.applyWithRetry(ctx, steps)
	if err != nil {
		p.metrics.Failed(failureLabel(err))
		return domain.Entry{}, err
	}

	// Past this point the transaction must run to completion; caller
	// cancellation no longer aborts it.
	detached := context.WithoutCancel(ctx)

	seq, err := p.audit.Append(detached, entry)
	if err != nil {
		if rbErr := p.compensate(detached, applied); rbErr != nil {
			p.log.Error("CRITICAL: rollback failed after append failure, ledger and audit log diverge",
				"kind", entry.Kind, "asset_type", entry.AssetTypeID, "err", rbErr)
			p.metrics.Failed("commit")
			return domain.Entry{}, fmt.Errorf("%w: append failed (%v) and rollback failed: %v", domain.ErrCommitFailed, err, rbErr)
		}
		p.metrics.Failed("commit")
		return domain.Entry{}, fmt.Errorf("%w: %v", domain.ErrCommitFailed, err)
	}
	entry.Sequence = seq
	p.metrics.Committed(string(entry.Kind))
	return entry, nil
}

// applyWithRetry runs the delta steps against fresh version reads,
// retrying whole-step on version conflicts up to the retry bound with
// jittered backoff. It returns the applied deltas for later rollback.
func (p *TransactionProcessor) applyWithRetry(ctx context.Context, steps []deltaStep) ([]appliedDelta, error) {
	for attempt := 1; ; attempt++ {
		applied, err := p.applyAll(ctx, steps)
		if err == nil {
			return applied, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, err
		}
		if attempt >= p.maxAttempts {
			return nil, fmt.Errorf("%w after %d attempts: %v", domain.ErrTransactionTimeout, attempt, err)
		}
		p.metrics.Retried()
		time.Sleep(p.backoff + time.Duration(rand.Int63n(int64(p.backoff))))
	}
}

type appliedDelta struct {
	step deltaStep
}

// applyAll applies every step once. On any failure the steps already
// applied are compensated before returning, so the ledger is never left
// half-applied between attempts or on a terminal failure.
func (p *TransactionProcessor) applyAll(ctx context.Context, steps []deltaStep) ([]appliedDelta, error) {
	applied := make([]appliedDelta, 0, len(steps))
	for _, st := range steps {
		stepCtx := ctx
		if len(applied) == 0 {
			// Cancellation is only honored before the first mutation.
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		} else {
			stepCtx = context.WithoutCancel(ctx)
		}

		_, version, err := p.ledger.GetBalance(stepCtx, st.baseID, st.assetTypeID)
		if err == nil {
			_, err = p.ledger.ApplyDelta(stepCtx, st.baseID, st.assetTypeID, st.delta, version)
		}
		if err != nil {
			if rbErr := p.compensate(context.WithoutCancel(ctx), applied); rbErr != nil {
				p.log.Error("CRITICAL: rollback failed, ledger left half-applied",
					"base", st.baseID, "asset_type", st.assetTypeID, "err", rbErr)
				return nil, fmt.Errorf("%w: rollback failed: %v (after %v)", domain.ErrCommitFailed, rbErr, err)
			}
			return nil, err
		}
		applied = append(applied, appliedDelta{step: st})
	}
	return applied, nil
}

// compensate reverses applied deltas in reverse order. Version conflicts
// are retried; the affected keys are still locked, so contention can only
// come from other process instances.
func (p *TransactionProcessor) compensate(ctx context.Context, applied []appliedDelta) error {
	for i := len(applied) - 1; i >= 0; i-- {
		st := applied[i].step
		var lastErr error
		for attempt := 0; attempt < p.maxAttempts; attempt++ {
			_, version, err := p.ledger.GetBalance(ctx, st.baseID, st.assetTypeID)
			if err == nil {
				_, err = p.ledger.ApplyDelta(ctx, st.baseID, st.assetTypeID, -st.delta, version)
			}
			if err == nil {
				lastErr = nil
				break
			}
			lastErr = err
			if !errors.Is(err, domain.ErrVersionConflict) {
				break
			}
		}
		if lastErr != nil {
			return fmt.Errorf("compensate %d at %s/%s: %w", -st.delta, st.baseID, st.assetTypeID, lastErr)
		}
	}
	return nil
}

func (p *TransactionProcessor) validateAction(ctx context.Context, action domain.Action) error {
	if err := p.validate.Struct(action); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	switch action.Kind {
	case domain.ActionAcquire:
		if action.TargetBaseID == "" || action.SourceBaseID != "" {
			return invalid("ACQUIRE requires a target base and no source base")
		}
	case domain.ActionExpend, domain.ActionAssign:
		if action.SourceBaseID == "" || action.TargetBaseID != "" {
			return invalid(string(action.Kind) + " requires a source base and no target base")
		}
	case domain.ActionTransfer:
		if action.SourceBaseID == "" || action.TargetBaseID == "" {
			return invalid("TRANSFER requires source and target bases")
		}
		if action.SourceBaseID == action.TargetBaseID {
			return invalid("TRANSFER source and target must differ")
		}
	case domain.ActionAdjustment:
		if (action.SourceBaseID == "") == (action.TargetBaseID == "") {
			return invalid("ADJUSTMENT requires exactly one of source or target base")
		}
		if action.RefSequence <= 0 {
			return invalid("ADJUSTMENT requires the corrected entry's sequence")
		}
		refs, err := p.audit.Range(ctx, domain.EntryFilter{FromSeq: action.RefSequence, ToSeq: action.RefSequence})
		if err != nil {
			return fmt.Errorf("look up referenced entry: %w", err)
		}
		if len(refs) == 0 {
			return invalid(fmt.Sprintf("ADJUSTMENT references unknown sequence %d", action.RefSequence))
		}
	}

	assetType, err := p.catalog.GetAssetType(ctx, action.AssetTypeID)
	if err != nil {
		return fmt.Errorf("look up asset type: %w", err)
	}
	if assetType == nil {
		return invalid(fmt.Sprintf("unknown asset type %q", action.AssetTypeID))
	}

	for _, baseID := range []string{action.SourceBaseID, action.TargetBaseID} {
		if baseID == "" {
			continue
		}
		base, err := p.catalog.GetBase(ctx, baseID)
		if err != nil {
			return fmt.Errorf("look up base: %w", err)
		}
		if base == nil {
			return invalid(fmt.Sprintf("unknown base %q", baseID))
		}
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, msg)
}

// actionSteps maps an action onto its signed deltas, debit before credit.
// ASSIGN is metadata-only and produces none.
func actionSteps(action domain.Action) []deltaStep {
	switch action.Kind {
	case domain.ActionAcquire:
		return []deltaStep{{action.TargetBaseID, action.AssetTypeID, action.Quantity}}
	case domain.ActionExpend:
		return []deltaStep{{action.SourceBaseID, action.AssetTypeID, -action.Quantity}}
	case domain.ActionTransfer:
		return []deltaStep{
			{action.SourceBaseID, action.AssetTypeID, -action.Quantity},
			{action.TargetBaseID, action.AssetTypeID, action.Quantity},
		}
	case domain.ActionAdjustment:
		if action.SourceBaseID != "" {
			return []deltaStep{{action.SourceBaseID, action.AssetTypeID, -action.Quantity}}
		}
		return []deltaStep{{action.TargetBaseID, action.AssetTypeID, action.Quantity}}
	}
	return nil
}

// lockKeys returns the affected balance keys sorted ascending, the fixed
// global acquisition order that prevents circular wait between transfers
// touching the same key pair in opposite directions.
func lockKeys(steps []deltaStep) []string {
	keys := make([]string, 0, len(steps))
	for _, st := range steps {
		keys = append(keys, st.baseID+"/"+st.assetTypeID)
	}
	sort.Strings(keys)
	return keys
}

func failureLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "insufficient-balance"
	case errors.Is(err, domain.ErrTransactionTimeout):
		return "conflict-timeout"
	case errors.Is(err, domain.ErrCommitFailed):
		return "commit"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
