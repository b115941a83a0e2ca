package flow

import (
	"flowdesk/authority"
	"flowdesk/bizerror"
)

type State string

const (
	StateCreated  State = "CREATED"
	StateReviewed State = "REVIEWED"
	StateApproved State = "APPROVED"
	StateRejected State = "REJECTED"
	StateReopened State = "REOPENED"
)

var States = []State{StateCreated, StateReviewed, StateApproved, StateRejected, StateReopened}

// IsTerminal APPROVED accepts no further transition
func (s State) IsTerminal() bool {
	return s == StateApproved
}

func (s State) IsValid() bool {
	for _, state := range States {
		if s == state {
			return true
		}
	}
	return false
}

type Action string

const (
	ActionSubmit  Action = "SUBMIT"
	ActionApprove Action = "APPROVE"
	ActionReject  Action = "REJECT"
	ActionReopen  Action = "REOPEN"
)

type Transition struct {
	Action Action  `json:"action"`
	From   []State `json:"from"`
	To     State   `json:"to"`

	Roles []authority.Role `json:"roles"`
	// AllowEditors the item's creator and assignee may perform the action
	// regardless of role
	AllowEditors bool `json:"allowEditors"`
}

var Lifecycle = []Transition{
	{Action: ActionSubmit, From: []State{StateCreated, StateReopened}, To: StateReviewed,
		Roles: []authority.Role{authority.RoleAdmin, authority.RoleManager}, AllowEditors: true},
	{Action: ActionApprove, From: []State{StateReviewed}, To: StateApproved,
		Roles: []authority.Role{authority.RoleManager, authority.RoleAdmin}},
	{Action: ActionReject, From: []State{StateReviewed}, To: StateRejected,
		Roles: []authority.Role{authority.RoleManager, authority.RoleAdmin}},
	{Action: ActionReopen, From: []State{StateRejected}, To: StateReopened,
		Roles: []authority.Role{authority.RoleManager, authority.RoleViewer}},
}

func FindTransition(action Action) (Transition, bool) {
	for _, t := range Lifecycle {
		if t.Action == action {
			return t, true
		}
	}
	return Transition{}, false
}

func (t Transition) Permits(role authority.Role, editor bool) bool {
	if t.AllowEditors && editor {
		return true
	}
	return role.In(t.Roles...)
}

func (t Transition) AcceptsFrom(state State) bool {
	for _, from := range t.From {
		if from == state {
			return true
		}
	}
	return false
}

// Validate computes the target state of an action against the current
// state and the actor. Check order: action, then authorization, then
// current state; an authorization failure is reported regardless of
// whether the state would match.
func Validate(current State, action Action, role authority.Role, editor bool) (State, error) {
	t, found := FindTransition(action)
	if !found {
		return "", bizerror.ErrUnknownAction
	}
	if !t.Permits(role, editor) {
		return "", bizerror.ErrForbidden
	}
	if !t.AcceptsFrom(current) {
		return "", bizerror.ErrInvalidTransition
	}
	return t.To, nil
}

// AllowedActions the presentation twin of Validate: the actions an actor
// may attempt from the given state. Kept behaviorally identical to
// Validate through shared test vectors.
func AllowedActions(current State, role authority.Role, editor bool) []Action {
	actions := []Action{}
	for _, t := range Lifecycle {
		if t.AcceptsFrom(current) && t.Permits(role, editor) {
			actions = append(actions, t.Action)
		}
	}
	return actions
}
