package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sinhadeepak1115/MilTrack/internal/core/domain"
)

// MemoryAdapter backs the ledger, audit log and catalog with in-process
// maps. It is the default store for tests and single-node deployments
// without MySQL; all invariants (versioning, non-negativity, gap-free
// sequences) hold identically to the durable adapter.
type MemoryAdapter struct {
	mu         sync.Mutex
	balances   map[domain.BalanceKey]domain.BalanceRecord
	entries    []domain.Entry
	bases      map[string]domain.Base
	assetTypes map[string]domain.AssetType
	typeNames  map[string]string
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		balances:   make(map[domain.BalanceKey]domain.BalanceRecord),
		bases:      make(map[string]domain.Base),
		assetTypes: make(map[string]domain.AssetType),
		typeNames:  make(map[string]string),
	}
}

func (m *MemoryAdapter) GetBalance(_ context.Context, baseID, assetTypeID string) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.balances[domain.BalanceKey{BaseID: baseID, AssetTypeID: assetTypeID}]
	return rec.Quantity, rec.Version, nil
}

func (m *MemoryAdapter) ApplyDelta(_ context.Context, baseID, assetTypeID string, delta, expectedVersion int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := domain.BalanceKey{BaseID: baseID, AssetTypeID: assetTypeID}
	rec := m.balances[key]
	if rec.Version != expectedVersion {
		return 0, fmt.Errorf("%w: expected version %d, have %d", domain.ErrVersionConflict, expectedVersion, rec.Version)
	}
	if rec.Quantity+delta < 0 {
		return 0, fmt.Errorf("%w: %d available, delta %d", domain.ErrInsufficientBalance, rec.Quantity, delta)
	}

	rec.BaseID = baseID
	rec.AssetTypeID = assetTypeID
	rec.Quantity += delta
	rec.Version++
	m.balances[key] = rec
	return rec.Version, nil
}

func (m *MemoryAdapter) Balances(_ context.Context) ([]domain.BalanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := make([]domain.BalanceRecord, 0, len(m.balances))
	for _, rec := range m.balances {
		records = append(records, rec)
	}
	return records, nil
}

func (m *MemoryAdapter) Append(_ context.Context, entry domain.Entry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry.Sequence = int64(len(m.entries)) + 1
	if entry.CommittedAt.IsZero() {
		entry.CommittedAt = time.Now().UTC()
	}
	m.entries = append(m.entries, entry)
	return entry.Sequence, nil
}

func (m *MemoryAdapter) Range(_ context.Context, filter domain.EntryFilter) ([]domain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Entry
	for _, e := range m.entries {
		if filter.FromSeq > 0 && e.Sequence < filter.FromSeq {
			continue
		}
		if filter.ToSeq > 0 && e.Sequence > filter.ToSeq {
			continue
		}
		if filter.BaseID != "" && e.SourceBaseID != filter.BaseID && e.TargetBaseID != filter.BaseID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *MemoryAdapter) CreateBase(_ context.Context, name, location string) (domain.Base, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	base := domain.Base{ID: uuid.NewString(), Name: name, Location: location}
	m.bases[base.ID] = base
	return base, nil
}

func (m *MemoryAdapter) GetBase(_ context.Context, id string) (*domain.Base, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	base, ok := m.bases[id]
	if !ok {
		return nil, nil
	}
	return &base, nil
}

func (m *MemoryAdapter) ListBases(_ context.Context) ([]domain.Base, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Base, 0, len(m.bases))
	for _, b := range m.bases {
		out = append(out, b)
	}
	return out, nil
}

func (m *MemoryAdapter) CreateAssetType(_ context.Context, name string) (domain.AssetType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.typeNames[name]; taken {
		return domain.AssetType{}, fmt.Errorf("%w: asset type %q already exists", domain.ErrValidation, name)
	}
	assetType := domain.AssetType{ID: uuid.NewString(), Name: name}
	m.assetTypes[assetType.ID] = assetType
	m.typeNames[name] = assetType.ID
	return assetType, nil
}

func (m *MemoryAdapter) GetAssetType(_ context.Context, id string) (*domain.AssetType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	assetType, ok := m.assetTypes[id]
	if !ok {
		return nil, nil
	}
	return &assetType, nil
}

func (m *MemoryAdapter) ListAssetTypes(_ context.Context) ([]domain.AssetType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.AssetType, 0, len(m.assetTypes))
	for _, t := range m.assetTypes {
		out = append(out, t)
	}
	return out, nil
}
