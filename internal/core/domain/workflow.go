package domain

import "strings"

type Action string

const (
	ActionAccept   Action = "accept"
	ActionForward  Action = "forward"
	ActionComplete Action = "complete"
	ActionReject   Action = "reject"

	// ActionCreate is recorded on the initial history row.
	ActionCreate Action = "create"
)

func ParseAction(raw string) (Action, bool) {
	switch a := Action(strings.TrimSpace(raw)); a {
	case ActionAccept, ActionForward, ActionComplete, ActionReject:
		return a, true
	default:
		return "", false
	}
}

// Guard is an extra precondition attached to a transition.
type Guard int

const (
	GuardNone Guard = iota
	GuardFeedback
	GuardFullyApproved
)

type Transition struct {
	From   DocumentStatus
	Action Action
	To     DocumentStatus
	Roles  []Role
	Guard  Guard
}

func (t Transition) Allows(role Role) bool {
	for _, r := range t.Roles {
		if r == role {
			return true
		}
	}
	return false
}

var reviewers = []Role{RoleNotary, RoleSecretary, RoleAdmin}

// Transitions is the complete document state machine.
var Transitions = []Transition{
	{From: StatusPending, Action: ActionAccept, To: StatusProcessing, Roles: []Role{RoleNotary, RoleAdmin}},
	{From: StatusProcessing, Action: ActionForward, To: StatusDigitalSignature, Roles: []Role{RoleSecretary, RoleAdmin}},
	{From: StatusDigitalSignature, Action: ActionComplete, To: StatusCompleted, Roles: []Role{RoleSecretary, RoleAdmin}, Guard: GuardFullyApproved},
	{From: StatusPending, Action: ActionReject, To: StatusRejected, Roles: reviewers, Guard: GuardFeedback},
	{From: StatusProcessing, Action: ActionReject, To: StatusRejected, Roles: reviewers, Guard: GuardFeedback},
	{From: StatusDigitalSignature, Action: ActionReject, To: StatusRejected, Roles: reviewers, Guard: GuardFeedback},
}

// LookupTransition finds the row for (from, action) regardless of role.
func LookupTransition(from DocumentStatus, action Action) (Transition, bool) {
	for _, t := range Transitions {
		if t.From == from && t.Action == action {
			return t, true
		}
	}
	return Transition{}, false
}

// ResolveTransition validates (from, action, role) and returns the matching row.
// Guards are left to the caller since they need state outside the document.
func ResolveTransition(from DocumentStatus, action Action, role Role) (Transition, error) {
	const op = "resolve transition"
	if from.Terminal() {
		return Transition{}, Errorf(ErrInvalidInput, op, "document is already %s", from)
	}
	t, ok := LookupTransition(from, action)
	if !ok {
		return Transition{}, Errorf(ErrInvalidInput, op, "action %s is not valid for status %s", action, from)
	}
	if !t.Allows(role) {
		return Transition{}, Errorf(ErrForbidden, op, "role %s cannot %s a %s document", role, action, from)
	}
	return t, nil
}

// InboxStatuses returns the statuses a role can advance, ignoring rejections.
func InboxStatuses(role Role) []DocumentStatus {
	out := make([]DocumentStatus, 0, len(DocumentStatuses))
	for _, status := range DocumentStatuses {
		for _, t := range Transitions {
			if t.From == status && t.Action != ActionReject && t.Allows(role) {
				out = append(out, status)
				break
			}
		}
	}
	return out
}
