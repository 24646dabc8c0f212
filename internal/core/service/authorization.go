package service

import (
	"fmt"

	"github.com/sinhadeepak1115/MilTrack/internal/core/domain"
)

// AuthorizationGate decides whether a role may perform an action against
// the bases it references. Rules are evaluated first-match-wins; it is
// pure and touches no state.
type AuthorizationGate struct{}

func NewAuthorizationGate() *AuthorizationGate {
	return &AuthorizationGate{}
}

// Check returns nil when the user may perform the action, or an error
// wrapping domain.ErrAuthorization with a denial reason.
func (g *AuthorizationGate) Check(user domain.User, action domain.Action) error {
	switch user.Role {
	case domain.RoleAdmin:
		return nil

	case domain.RoleCommander:
		switch action.Kind {
		case domain.ActionAssign, domain.ActionExpend:
			if action.SourceBaseID != user.HomeBaseID {
				return deny(domain.ReasonCrossBaseForbidden)
			}
			return nil
		default:
			return deny(domain.ReasonInsufficientRole)
		}

	case domain.RoleLogistics:
		switch action.Kind {
		case domain.ActionAcquire:
			if action.TargetBaseID != user.HomeBaseID {
				return deny(domain.ReasonCrossBaseForbidden)
			}
		case domain.ActionExpend:
			if action.SourceBaseID != user.HomeBaseID {
				return deny(domain.ReasonCrossBaseForbidden)
			}
		case domain.ActionTransfer:
			// Source must be home; the target may be any base.
			if action.SourceBaseID != user.HomeBaseID {
				return deny(domain.ReasonCrossBaseForbidden)
			}
		default:
			return deny(domain.ReasonInsufficientRole)
		}
		return nil
	}

	return deny(domain.ReasonInsufficientRole)
}

func deny(reason string) error {
	return fmt.Errorf("%w: %s", domain.ErrAuthorization, reason)
}
