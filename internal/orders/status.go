package orders

type Status string

const (
	StatusDraft        Status = "DRAFT"
	StatusSubmitted    Status = "SUBMITTED"
	StatusApproved     Status = "APPROVED"
	StatusRejected     Status = "REJECTED"
	StatusOrdered      Status = "ORDERED"
	StatusAccepted     Status = "ACCEPTED"
	StatusInProduction Status = "IN_PRODUCTION"
	StatusReady        Status = "READY"
	StatusCompleted    Status = "COMPLETED"
	StatusCancelled    Status = "CANCELLED"
)

// AllStatuses in pipeline order, side branches last.
var AllStatuses = []Status{
	StatusDraft, StatusSubmitted, StatusApproved, StatusOrdered, StatusAccepted,
	StatusInProduction, StatusReady, StatusCompleted, StatusRejected, StatusCancelled,
}

func (s Status) Valid() bool {
	for _, x := range AllStatuses {
		if x == s {
			return true
		}
	}
	return false
}

// Terminal statuses accept no further action. REJECTED is editable, not terminal.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsOrder reports whether the quote has been converted (orderNumber assigned).
func (s Status) IsOrder() bool {
	switch s {
	case StatusOrdered, StatusAccepted, StatusInProduction, StatusReady, StatusCompleted:
		return true
	}
	return false
}

type Action string

const (
	ActionSubmit    Action = "SUBMIT"
	ActionApprove   Action = "APPROVE"
	ActionReject    Action = "REJECT"
	ActionOrder     Action = "ORDER"
	ActionAccept    Action = "ACCEPT"
	ActionStartWork Action = "START_WORK"
	ActionReady     Action = "READY"
	ActionComplete  Action = "COMPLETE"
	ActionCancel    Action = "CANCEL"
)

var AllActions = []Action{
	ActionSubmit, ActionApprove, ActionReject, ActionOrder, ActionAccept,
	ActionStartWork, ActionReady, ActionComplete, ActionCancel,
}

// Rule is one row of the transition table. Guards and side effects that need
// storage live in the lifecycle engine; the row only carries what can be
// decided from (role, status, action) alone.
type Rule struct {
	Action          Action
	From            []Status
	Roles           []Role // Admin is implied
	Next            Status
	CommentRequired bool
}

// transitions is the single declarative role × status × action table.
var transitions = map[Action]Rule{
	ActionSubmit: {
		Action: ActionSubmit,
		From:   []Status{StatusDraft, StatusRejected},
		Roles:  []Role{RoleSalesRep, RoleManager},
		Next:   StatusSubmitted,
	},
	ActionApprove: {
		Action: ActionApprove,
		From:   []Status{StatusSubmitted},
		Roles:  []Role{RoleManager},
		Next:   StatusApproved,
	},
	ActionReject: {
		Action:          ActionReject,
		From:            []Status{StatusSubmitted},
		Roles:           []Role{RoleManager},
		Next:            StatusRejected,
		CommentRequired: true,
	},
	ActionOrder: {
		Action: ActionOrder,
		From:   []Status{StatusApproved},
		Roles:  []Role{RoleSalesRep, RoleManager},
		Next:   StatusOrdered,
	},
	ActionAccept: {
		Action: ActionAccept,
		From:   []Status{StatusOrdered},
		Roles:  []Role{RoleFactory},
		Next:   StatusAccepted,
	},
	ActionStartWork: {
		Action: ActionStartWork,
		From:   []Status{StatusAccepted},
		Roles:  []Role{RoleFactory},
		Next:   StatusInProduction,
	},
	ActionReady: {
		Action: ActionReady,
		From:   []Status{StatusInProduction},
		Roles:  []Role{RoleFactory},
		Next:   StatusReady,
	},
	ActionComplete: {
		Action: ActionComplete,
		From:   []Status{StatusReady},
		Roles:  []Role{RoleSalesRep, RoleManager, RoleFinance, RoleFactory},
		Next:   StatusCompleted,
	},
	ActionCancel: {
		Action: ActionCancel,
		From: []Status{
			StatusDraft, StatusSubmitted, StatusApproved, StatusRejected,
			StatusOrdered, StatusAccepted, StatusInProduction, StatusReady,
		},
		Roles:           []Role{RoleManager},
		Next:            StatusCancelled,
		CommentRequired: true,
	},
}

// RuleFor returns the table row for an action.
func RuleFor(a Action) (Rule, bool) {
	r, ok := transitions[a]
	return r, ok
}

// Allows reports whether the rule may fire from s. Role is checked separately.
func (r Rule) Allows(s Status) bool {
	for _, f := range r.From {
		if f == s {
			return true
		}
	}
	return false
}

// Decide evaluates the table once for (role, status, action) and returns the
// next status, or a structured rejection. It never looks at storage.
func Decide(role Role, from Status, a Action) (Rule, error) {
	r, ok := transitions[a]
	if !ok {
		return Rule{}, &ValidationError{Field: "action", Message: "unknown action " + string(a)}
	}
	if !r.Allows(from) {
		return Rule{}, &IllegalTransition{From: from, Action: a}
	}
	if !role.Can(r.Roles...) {
		return Rule{}, &NotPermitted{Role: role, Action: string(a)}
	}
	return r, nil
}

// CanTransition reports whether some action moves from one status to the other.
func CanTransition(from, to Status) bool {
	for _, r := range transitions {
		if r.Next == to && r.Allows(from) {
			return true
		}
	}
	return false
}
