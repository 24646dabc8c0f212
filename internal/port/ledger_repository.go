package port

import (
	"context"

	"github.com/sinhadeepak1115/MilTrack/internal/core/domain"
)

type LedgerStore interface {
	// GetBalance returns the current quantity and version for a key.
	// Unseen keys report (0, 0) with no error.
	GetBalance(ctx context.Context, baseID, assetTypeID string) (quantity, version int64, err error)

	// ApplyDelta atomically sets quantity += delta and version += 1 iff
	// the stored version equals expectedVersion and the result stays
	// non-negative. Fails with domain.ErrVersionConflict or
	// domain.ErrInsufficientBalance; quantity and version move together
	// or not at all.
	ApplyDelta(ctx context.Context, baseID, assetTypeID string, delta, expectedVersion int64) (newVersion int64, err error)

	// Balances lists every stored balance record, for reconciliation.
	Balances(ctx context.Context) ([]domain.BalanceRecord, error)
}
