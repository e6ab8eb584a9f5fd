package rbac

import "github.com/inkpress/inkpress/internal/shared"

// Resource is anything owned by a single user.
type Resource interface {
	OwnerID() int64
}

// OwnedBy adapts a bare owner id to Resource.
type OwnedBy int64

// OwnerID implements Resource.
func (o OwnedBy) OwnerID() int64 { return int64(o) }

// Can reports whether p may perform action on res. res may be nil for
// actions that are not ownership scoped. Unknown actions are denied.
func Can(p *Principal, action Action, res Resource) bool {
	if p == nil {
		return false
	}
	switch p.Grants().Scope(action) {
	case ScopeAll:
		return true
	case ScopeOwn:
		return res != nil && p.UserID != 0 && res.OwnerID() == p.UserID
	default:
		return false
	}
}

// DecisionObserver is notified of every decision made through an Authorizer.
type DecisionObserver interface {
	ObserveDecision(action string, allowed bool)
}

// Authorizer wraps Can with error reporting and an optional observer.
type Authorizer struct {
	Observer DecisionObserver
}

// Can evaluates and observes a decision.
func (a Authorizer) Can(p *Principal, action Action, res Resource) bool {
	allowed := Can(p, action, res)
	if a.Observer != nil {
		a.Observer.ObserveDecision(string(action), allowed)
	}
	return allowed
}

// Authorize returns shared.ErrForbidden when the decision is negative.
func (a Authorizer) Authorize(p *Principal, action Action, res Resource) error {
	if !a.Can(p, action, res) {
		return shared.ErrForbidden
	}
	return nil
}

// Abilities lists global decisions for layout navigation.
func Abilities(p *Principal) map[string]bool {
	return map[string]bool{
		string(ActionCreatePosts):  Can(p, ActionCreatePosts, nil),
		string(ActionPublishPosts): Can(p, ActionPublishPosts, nil),
		string(ActionManageUsers):  Can(p, ActionManageUsers, nil),
		string(ActionManageRoles):  Can(p, ActionManageRoles, nil),
	}
}
