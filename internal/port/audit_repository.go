package port

import (
	"context"

	"github.com/sinhadeepak1115/MilTrack/internal/core/domain"
)

type AuditLog interface {
	// Append assigns the next sequence number and commit timestamp and
	// persists the entry. Entries are immutable once appended.
	Append(ctx context.Context, entry domain.Entry) (sequence int64, err error)

	// Range returns committed entries matching the filter in ascending
	// sequence order. Read-only.
	Range(ctx context.Context, filter domain.EntryFilter) ([]domain.Entry, error)
}
