package port

import (
	"context"

	"github.com/sinhadeepak1115/MilTrack/internal/core/domain"
)

type Catalog interface {
	CreateBase(ctx context.Context, name, location string) (domain.Base, error)

	// GetBase returns nil with no error when the base does not exist.
	GetBase(ctx context.Context, id string) (*domain.Base, error)

	ListBases(ctx context.Context) ([]domain.Base, error)

	// CreateAssetType fails with domain.ErrValidation when the name is
	// already taken; asset type names are globally unique.
	CreateAssetType(ctx context.Context, name string) (domain.AssetType, error)

	// GetAssetType returns nil with no error when the type does not exist.
	GetAssetType(ctx context.Context, id string) (*domain.AssetType, error)

	ListAssetTypes(ctx context.Context) ([]domain.AssetType, error)
}
