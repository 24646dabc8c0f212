package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/sinhadeepak1115/MilTrack/internal/core/domain"
)

const mysqlErrDuplicateEntry = 1062

// MySQLAdapter is the durable ledger, audit log and catalog. Balance
// mutations use optimistic versioning: the UPDATE predicates on the
// expected version and on the result staying non-negative, so quantity
// and version always move together.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) GetBalance(ctx context.Context, baseID, assetTypeID string) (int64, int64, error) {
	var quantity, version int64
	err := m.db.QueryRowContext(ctx, `
		SELECT quantity, version FROM balances
		WHERE base_id = ? AND asset_type_id = ?`, baseID, assetTypeID,
	).Scan(&quantity, &version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("query balance: %w", err)
	}
	return quantity, version, nil
}

func (m *MySQLAdapter) ApplyDelta(ctx context.Context, baseID, assetTypeID string, delta, expectedVersion int64) (int64, error) {
	if expectedVersion == 0 {
		// Unseen key: the first write creates the row at version 1. A
		// concurrent first write loses on the primary key and reports a
		// version conflict like any other stale writer.
		if delta < 0 {
			return 0, fmt.Errorf("%w: 0 available, delta %d", domain.ErrInsufficientBalance, delta)
		}
		_, err := m.db.ExecContext(ctx, `
			INSERT INTO balances (base_id, asset_type_id, quantity, version)
			VALUES (?, ?, ?, 1)`,
			baseID, assetTypeID, delta,
		)
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
			return 0, fmt.Errorf("%w: balance created concurrently", domain.ErrVersionConflict)
		}
		if err != nil {
			return 0, fmt.Errorf("insert balance: %w", err)
		}
		return 1, nil
	}

	result, err := m.db.ExecContext(ctx, `
		UPDATE balances
		SET quantity = quantity + ?, version = version + 1, updated_at = NOW()
		WHERE base_id = ? AND asset_type_id = ? AND version = ? AND quantity + ? >= 0`,
		delta, baseID, assetTypeID, expectedVersion, delta,
	)
	if err != nil {
		return 0, fmt.Errorf("update balance: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Distinguish a stale version from an insufficient balance.
		_, current, err := m.GetBalance(ctx, baseID, assetTypeID)
		if err != nil {
			return 0, err
		}
		if current != expectedVersion {
			return 0, fmt.Errorf("%w: expected version %d, have %d", domain.ErrVersionConflict, expectedVersion, current)
		}
		return 0, fmt.Errorf("%w: delta %d would go negative", domain.ErrInsufficientBalance, delta)
	}
	return expectedVersion + 1, nil
}

func (m *MySQLAdapter) Balances(ctx context.Context) ([]domain.BalanceRecord, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT base_id, asset_type_id, quantity, version FROM balances`)
	if err != nil {
		return nil, fmt.Errorf("query balances: %w", err)
	}
	defer rows.Close()

	var records []domain.BalanceRecord
	for rows.Next() {
		var rec domain.BalanceRecord
		if err := rows.Scan(&rec.BaseID, &rec.AssetTypeID, &rec.Quantity, &rec.Version); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (m *MySQLAdapter) Append(ctx context.Context, entry domain.Entry) (int64, error) {
	if entry.CommittedAt.IsZero() {
		entry.CommittedAt = time.Now().UTC()
	}
	result, err := m.db.ExecContext(ctx, `
		INSERT INTO ledger_entries
			(kind, asset_type_id, quantity, source_base_id, target_base_id, user_id, note, ref_sequence, committed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Kind, entry.AssetTypeID, entry.Quantity,
		nullable(entry.SourceBaseID), nullable(entry.TargetBaseID),
		entry.UserID, entry.Note, nullableInt(entry.RefSequence), entry.CommittedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert entry: %w", err)
	}
	sequence, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read entry sequence: %w", err)
	}
	return sequence, nil
}

func (m *MySQLAdapter) Range(ctx context.Context, filter domain.EntryFilter) ([]domain.Entry, error) {
	query := `
		SELECT sequence, kind, asset_type_id, quantity, source_base_id, target_base_id,
		       user_id, note, ref_sequence, committed_at
		FROM ledger_entries`
	var conditions []string
	var args []any
	if filter.BaseID != "" {
		conditions = append(conditions, "(source_base_id = ? OR target_base_id = ?)")
		args = append(args, filter.BaseID, filter.BaseID)
	}
	if filter.FromSeq > 0 {
		conditions = append(conditions, "sequence >= ?")
		args = append(args, filter.FromSeq)
	}
	if filter.ToSeq > 0 {
		conditions = append(conditions, "sequence <= ?")
		args = append(args, filter.ToSeq)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY sequence ASC"

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		var e domain.Entry
		var source, target sql.NullString
		var refSequence sql.NullInt64
		if err := rows.Scan(&e.Sequence, &e.Kind, &e.AssetTypeID, &e.Quantity,
			&source, &target, &e.UserID, &e.Note, &refSequence, &e.CommittedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.SourceBaseID = source.String
		e.TargetBaseID = target.String
		e.RefSequence = refSequence.Int64
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (m *MySQLAdapter) CreateBase(ctx context.Context, name, location string) (domain.Base, error) {
	base := domain.Base{ID: uuid.NewString(), Name: name, Location: location}
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO bases (id, name, location) VALUES (?, ?, ?)`,
		base.ID, base.Name, base.Location,
	)
	if err != nil {
		return domain.Base{}, fmt.Errorf("insert base: %w", err)
	}
	return base, nil
}

func (m *MySQLAdapter) GetBase(ctx context.Context, id string) (*domain.Base, error) {
	var base domain.Base
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, location FROM bases WHERE id = ?`, id,
	).Scan(&base.ID, &base.Name, &base.Location)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query base: %w", err)
	}
	return &base, nil
}

func (m *MySQLAdapter) ListBases(ctx context.Context) ([]domain.Base, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT id, name, location FROM bases ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query bases: %w", err)
	}
	defer rows.Close()

	var bases []domain.Base
	for rows.Next() {
		var b domain.Base
		if err := rows.Scan(&b.ID, &b.Name, &b.Location); err != nil {
			return nil, fmt.Errorf("scan base: %w", err)
		}
		bases = append(bases, b)
	}
	return bases, rows.Err()
}

func (m *MySQLAdapter) CreateAssetType(ctx context.Context, name string) (domain.AssetType, error) {
	assetType := domain.AssetType{ID: uuid.NewString(), Name: name}
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO asset_types (id, name) VALUES (?, ?)`,
		assetType.ID, assetType.Name,
	)
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
		return domain.AssetType{}, fmt.Errorf("%w: asset type %q already exists", domain.ErrValidation, name)
	}
	if err != nil {
		return domain.AssetType{}, fmt.Errorf("insert asset type: %w", err)
	}
	return assetType, nil
}

func (m *MySQLAdapter) GetAssetType(ctx context.Context, id string) (*domain.AssetType, error) {
	var assetType domain.AssetType
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name FROM asset_types WHERE id = ?`, id,
	).Scan(&assetType.ID, &assetType.Name)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query asset type: %w", err)
	}
	return &assetType, nil
}

func (m *MySQLAdapter) ListAssetTypes(ctx context.Context) ([]domain.AssetType, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT id, name FROM asset_types ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query asset types: %w", err)
	}
	defer rows.Close()

	var types []domain.AssetType
	for rows.Next() {
		var t domain.AssetType
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("scan asset type: %w", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableInt(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}
