package domain

import "time"

type ActionKind string

const (
	ActionAcquire    ActionKind = "ACQUIRE"
	ActionExpend     ActionKind = "EXPEND"
	ActionAssign     ActionKind = "ASSIGN"
	ActionTransfer   ActionKind = "TRANSFER"
	ActionAdjustment ActionKind = "ADJUSTMENT"
)

// Action is a quantity-changing command submitted against the ledger.
// Which base fields are required depends on Kind:
//
//	ACQUIRE    credit TargetBaseID
//	EXPEND     debit SourceBaseID
//	ASSIGN     recorded against SourceBaseID, no balance effect
//	TRANSFER   debit SourceBaseID, credit TargetBaseID
//	ADJUSTMENT debit SourceBaseID or credit TargetBaseID, referencing
//	           an earlier entry via RefSequence
type Action struct {
	Kind         ActionKind `validate:"required,oneof=ACQUIRE EXPEND ASSIGN TRANSFER ADJUSTMENT"`
	AssetTypeID  string     `validate:"required"`
	Quantity     int64      `validate:"required,gt=0"`
	SourceBaseID string
	TargetBaseID string
	RefSequence  int64
	Note         string

	// RequestID, when set, fences duplicate submissions of the same
	// client request. It is not persisted on the entry.
	RequestID string
}

// Entry is the immutable audit record of one committed action. Sequence
// numbers are assigned at commit time and form a gap-free ascending run
// starting at 1. Corrections never modify an entry; they are new
// ADJUSTMENT entries referencing the original sequence.
type Entry struct {
	Sequence     int64
	Kind         ActionKind
	AssetTypeID  string
	Quantity     int64
	SourceBaseID string
	TargetBaseID string
	UserID       string
	Note         string
	RefSequence  int64
	CommittedAt  time.Time
}

// Effects returns the signed balance deltas the entry applies, keyed by
// balance record. ASSIGN entries are metadata-only and return nothing.
func (e Entry) Effects() map[BalanceKey]int64 {
	effects := make(map[BalanceKey]int64, 2)
	switch e.Kind {
	case ActionAcquire:
		effects[BalanceKey{e.TargetBaseID, e.AssetTypeID}] += e.Quantity
	case ActionExpend:
		effects[BalanceKey{e.SourceBaseID, e.AssetTypeID}] -= e.Quantity
	case ActionTransfer:
		effects[BalanceKey{e.SourceBaseID, e.AssetTypeID}] -= e.Quantity
		effects[BalanceKey{e.TargetBaseID, e.AssetTypeID}] += e.Quantity
	case ActionAdjustment:
		if e.SourceBaseID != "" {
			effects[BalanceKey{e.SourceBaseID, e.AssetTypeID}] -= e.Quantity
		} else {
			effects[BalanceKey{e.TargetBaseID, e.AssetTypeID}] += e.Quantity
		}
	}
	return effects
}

// EntryFilter narrows AuditLog.Range. Zero values mean "no bound".
// BaseID matches entries whose source or target is the given base.
type EntryFilter struct {
	BaseID  string
	FromSeq int64
	ToSeq   int64
}

// Discrepancy is one drift report line from reconciliation: the balance
// derived by replaying the audit log versus the stored balance.
type Discrepancy struct {
	BaseID      string
	AssetTypeID string
	Expected    int64
	Actual      int64
}
