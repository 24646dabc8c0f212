package domain

import "errors"

var (
	// ErrValidation marks a malformed or incomplete action. Not retried;
	// the client must fix the request.
	ErrValidation = errors.New("invalid action")

	// ErrAuthorization marks a role or base rule denial. Not retried.
	ErrAuthorization = errors.New("not authorized")

	// ErrInsufficientBalance marks a debit that would take a balance
	// below zero. Business-level failure, never silently clamped.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrVersionConflict marks an optimistic version mismatch: another
	// writer committed first. Retried internally by the processor.
	ErrVersionConflict = errors.New("version conflict")

	// ErrTransactionTimeout marks exhaustion of the conflict retry
	// bound. The caller may resubmit the whole action.
	ErrTransactionTimeout = errors.New("transaction retry limit exceeded")

	// ErrCommitFailed marks an audit append failure after the balance
	// deltas succeeded. The deltas are rolled back before this is
	// surfaced; if the rollback itself fails the wrapped error says so
	// and operator intervention is required.
	ErrCommitFailed = errors.New("commit failed")

	// ErrDuplicateRequest marks a submission whose RequestID was
	// already accepted.
	ErrDuplicateRequest = errors.New("duplicate request")
)

// Authorization denial reasons.
const (
	ReasonInsufficientRole   = "insufficient-role"
	ReasonCrossBaseForbidden = "cross-base-forbidden"
	ReasonAssetNotAtBase     = "asset-not-at-base"
)
