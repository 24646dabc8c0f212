package service

import (
	"context"
	"testing"

	"github.com/sinhadeepak1115/MilTrack/internal/core/domain"
)

func TestReconcile_CleanAfterTraffic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.mustAcquire(t, env.baseA.ID, env.rifle.ID, 10)
	if _, err := env.proc.Submit(ctx, domain.Action{
		Kind:         domain.ActionTransfer,
		AssetTypeID:  env.rifle.ID,
		Quantity:     4,
		SourceBaseID: env.baseA.ID,
		TargetBaseID: env.baseB.ID,
	}, env.logistics); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	env.mustAcquire(t, env.baseC.ID, env.jeep.ID, 1000)
	if _, err := env.proc.Submit(ctx, domain.Action{
		Kind:         domain.ActionAssign,
		AssetTypeID:  env.rifle.ID,
		Quantity:     2,
		SourceBaseID: env.baseA.ID,
	}, env.commander); err != nil {
		t.Fatalf("assign failed: %v", err)
	}

	reconciler := NewReconciliationService(env.store, env.store)
	report, err := reconciler.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if len(report) != 0 {
		t.Errorf("expected zero discrepancies, got %v", report)
	}
}

func TestReconcile_DetectsDrift(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.mustAcquire(t, env.baseA.ID, env.rifle.ID, 10)

	// A direct mutation that bypasses the processor leaves the audit log
	// unable to explain the balance.
	_, _, err := env.store.GetBalance(ctx, env.baseA.ID, env.rifle.ID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if _, err := env.store.ApplyDelta(ctx, env.baseA.ID, env.rifle.ID, -3, 1); err != nil {
		t.Fatalf("apply drift: %v", err)
	}

	reconciler := NewReconciliationService(env.store, env.store)
	report, err := reconciler.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if len(report) != 1 {
		t.Fatalf("expected one discrepancy, got %v", report)
	}
	d := report[0]
	if d.BaseID != env.baseA.ID || d.AssetTypeID != env.rifle.ID {
		t.Errorf("discrepancy names wrong key: %+v", d)
	}
	if d.Expected != 10 || d.Actual != 7 {
		t.Errorf("expected 10 vs 7, got %d vs %d", d.Expected, d.Actual)
	}
}

func TestReconcile_StoredBalanceWithoutEntries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// A balance row with no audit history at all is drift too.
	if _, err := env.store.ApplyDelta(ctx, env.baseB.ID, env.jeep.ID, 5, 0); err != nil {
		t.Fatalf("apply drift: %v", err)
	}

	reconciler := NewReconciliationService(env.store, env.store)
	report, err := reconciler.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if len(report) != 1 {
		t.Fatalf("expected one discrepancy, got %v", report)
	}
	if report[0].Expected != 0 || report[0].Actual != 5 {
		t.Errorf("expected 0 vs 5, got %d vs %d", report[0].Expected, report[0].Actual)
	}
}
