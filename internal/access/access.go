// Package access is the single authorization chokepoint. Evaluate is a pure
// decision function; services consult it through a Guard before touching state.
package access

import (
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/loandocs/internal/errs"
	"github.com/and161185/loandocs/internal/model"
)

// Action names an operation subject to authorization.
type Action string

// Actions.
const (
	ActionCreateOrder Action = "order.create"
	ActionListOrders  Action = "order.list"
	ActionReadOrder   Action = "order.read"
	ActionUpdateOrder Action = "order.update"
	ActionDeleteOrder Action = "order.delete"

	ActionListArtifacts  Action = "artifact.list"
	ActionReadArtifact   Action = "artifact.read"
	ActionCreateArtifact Action = "artifact.create"
	ActionDeleteArtifact Action = "artifact.delete"

	ActionMintToken   Action = "collab.mint"
	ActionListTokens  Action = "collab.list"
	ActionRevokeToken Action = "collab.revoke"
	ActionPurgeTokens Action = "collab.purge"

	ActionReadChecklist   Action = "material.read"
	ActionManageMaterials Action = "material.manage"

	ActionManageUsers Action = "user.manage"
)

// Reason explains a denial.
type Reason string

// Denial reasons.
const (
	ReasonForbidden Reason = "forbidden"
	ReasonExpired   Reason = "expired"
)

// Decision is the outcome of an evaluation.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Err translates a denial into a sentinel error; nil when allowed.
func (d Decision) Err() error {
	switch {
	case d.Allowed:
		return nil
	case d.Reason == ReasonExpired:
		return errs.ErrExpired
	default:
		return errs.ErrForbidden
	}
}

var (
	allow = Decision{Allowed: true}
	deny  = Decision{Reason: ReasonForbidden}
)

// Principal is either an authenticated user or a validated collaboration token.
// The zero value is an anonymous principal that is denied everything.
type Principal struct {
	user  *model.User
	token *model.CollabToken
}

// ForUser wraps an authenticated user.
func ForUser(u model.User) Principal { return Principal{user: &u} }

// ForToken wraps a resolved collaboration token.
func ForToken(t model.CollabToken) Principal { return Principal{token: &t} }

// User returns the wrapped user, if any.
func (p Principal) User() (model.User, bool) {
	if p.user == nil {
		return model.User{}, false
	}
	return *p.user, true
}

// Token returns the wrapped token, if any.
func (p Principal) Token() (model.CollabToken, bool) {
	if p.token == nil {
		return model.CollabToken{}, false
	}
	return *p.token, true
}

// IsAdmin reports whether the principal is an active admin.
func (p Principal) IsAdmin() bool {
	return p.user != nil && p.user.Active && p.user.Role == model.RoleAdmin
}

// operator actions that require ownership of the target order.
var ownedOrderActions = map[Action]bool{
	ActionReadOrder:      true,
	ActionUpdateOrder:    true,
	ActionDeleteOrder:    true,
	ActionListArtifacts:  true,
	ActionReadArtifact:   true,
	ActionCreateArtifact: true,
	ActionDeleteArtifact: true,
	ActionMintToken:      true,
	ActionListTokens:     true,
	ActionRevokeToken:    true,
}

// operator actions without a target order.
var untargetedOperatorActions = map[Action]bool{
	ActionCreateOrder:   true,
	ActionListOrders:    true,
	ActionReadChecklist: true,
}

// the complete capability set of a collaboration token.
var tokenActions = map[Action]bool{
	ActionReadOrder:      true,
	ActionListArtifacts:  true,
	ActionCreateArtifact: true,
}

// Evaluate decides whether p may perform a on target at now. target is nil for
// actions that are not bound to a single order.
func Evaluate(p Principal, a Action, target *model.Order, now time.Time) Decision {
	switch {
	case p.user != nil:
		return evaluateUser(*p.user, a, target)
	case p.token != nil:
		return evaluateToken(*p.token, a, target, now)
	}
	return deny
}

func evaluateUser(u model.User, a Action, target *model.Order) Decision {
	if !u.Active {
		return deny
	}
	switch u.Role {
	case model.RoleAdmin:
		return allow
	case model.RoleOperator:
		if untargetedOperatorActions[a] {
			return allow
		}
		if ownedOrderActions[a] && target != nil && target.CreatorID == u.ID {
			return allow
		}
	}
	return deny
}

func evaluateToken(t model.CollabToken, a Action, target *model.Order, now time.Time) Decision {
	if !tokenActions[a] || target == nil || target.ID != t.OrderID {
		return deny
	}
	if !t.LiveAt(now) {
		return Decision{Reason: ReasonExpired}
	}
	return allow
}

// ListScope returns the creator filter a listing by p must apply. uuid.Nil
// means unrestricted. ok is false when p may not list orders at all.
func ListScope(p Principal) (creator uuid.UUID, ok bool) {
	if Evaluate(p, ActionListOrders, nil, time.Time{}) != allow {
		return uuid.Nil, false
	}
	if p.IsAdmin() {
		return uuid.Nil, true
	}
	return p.user.ID, true
}
