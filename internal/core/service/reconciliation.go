package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/sinhadeepak1115/MilTrack/internal/core/domain"
	"github.com/sinhadeepak1115/MilTrack/internal/port"
)

// ReconciliationService replays the full audit log into derived balances
// and reports drift against the ledger store. It only reads, never
// corrects: a fix is an ADJUSTMENT submitted through the processor so the
// fix is itself audited.
type ReconciliationService struct {
	ledger port.LedgerStore
	audit  port.AuditLog
}

func NewReconciliationService(ledger port.LedgerStore, audit port.AuditLog) *ReconciliationService {
	return &ReconciliationService{ledger: ledger, audit: audit}
}

// Reconcile replays every committed entry in sequence order, then compares
// the derived balances against the store. It may run concurrently with
// live traffic; entries committed during the scan can show up as
// discrepancies, so a non-empty report under load means "rerun" before
// treating it as drift.
func (s *ReconciliationService) Reconcile(ctx context.Context) ([]domain.Discrepancy, error) {
	entries, err := s.audit.Range(ctx, domain.EntryFilter{})
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	derived := make(map[domain.BalanceKey]int64)
	for _, e := range entries {
		for key, delta := range e.Effects() {
			derived[key] += delta
		}
	}

	stored, err := s.ledger.Balances(ctx)
	if err != nil {
		return nil, fmt.Errorf("read balances: %w", err)
	}
	actual := make(map[domain.BalanceKey]int64, len(stored))
	for _, rec := range stored {
		actual[rec.Key()] = rec.Quantity
	}

	// Compare over the union of keys: drift can be a stored balance with
	// no explaining entries just as well as the reverse.
	keys := make(map[domain.BalanceKey]struct{}, len(derived)+len(actual))
	for k := range derived {
		keys[k] = struct{}{}
	}
	for k := range actual {
		keys[k] = struct{}{}
	}

	var report []domain.Discrepancy
	for key := range keys {
		if derived[key] != actual[key] {
			report = append(report, domain.Discrepancy{
				BaseID:      key.BaseID,
				AssetTypeID: key.AssetTypeID,
				Expected:    derived[key],
				Actual:      actual[key],
			})
		}
	}
	sort.Slice(report, func(i, j int) bool {
		if report[i].BaseID != report[j].BaseID {
			return report[i].BaseID < report[j].BaseID
		}
		return report[i].AssetTypeID < report[j].AssetTypeID
	})
	return report, nil
}
