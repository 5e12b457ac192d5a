package orders

import "strings"

type Role string

const (
	RoleAdmin    Role = "Admin"
	RoleSalesRep Role = "SalesRep"
	RoleManager  Role = "Manager"
	RoleFinance  Role = "Finance"
	RoleFactory  Role = "Factory"
)

var AllRoles = []Role{RoleAdmin, RoleSalesRep, RoleManager, RoleFinance, RoleFactory}

// ParseRole accepts the canonical names and the long display names used by the
// identity provider ("Senior Manager", "Factory Foreman", ...).
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin, true
	case "salesrep", "sales", "sales representative":
		return RoleSalesRep, true
	case "manager", "senior manager":
		return RoleManager, true
	case "finance", "finance officer":
		return RoleFinance, true
	case "factory", "factory foreman":
		return RoleFactory, true
	}
	return "", false
}

// Can reports whether the role is one of allowed. Admin always can.
func (r Role) Can(allowed ...Role) bool {
	if r == RoleAdmin {
		return true
	}
	for _, a := range allowed {
		if a == r {
			return true
		}
	}
	return false
}

// Actor is the caller identity supplied with every engine call.
type Actor struct {
	ID   string `json:"actor_id"`
	Name string `json:"actor_name"`
	Role Role   `json:"role"`
}

// SystemActor stamps work started by the scheduler rather than a person.
var SystemActor = Actor{ID: "system", Name: "scheduler", Role: RoleAdmin}

func (a Actor) Validate() error {
	if a.ID == "" {
		return &ValidationError{Field: "actor_id", Message: "required"}
	}
	switch a.Role {
	case RoleAdmin, RoleSalesRep, RoleManager, RoleFinance, RoleFactory:
		return nil
	}
	return &ValidationError{Field: "role", Message: "unknown role " + string(a.Role)}
}

// editable: role -> statuses in which header and line items may be written.
// Admin gets the union via Role.Can semantics below.
var editable = map[Role][]Status{
	RoleSalesRep: {StatusDraft, StatusRejected},
	RoleManager:  {StatusDraft, StatusSubmitted},
}

// CanEdit is the editability predicate. Finance and Factory never edit.
func CanEdit(role Role, s Status) bool {
	if role == RoleAdmin {
		for _, ss := range editable {
			for _, x := range ss {
				if x == s {
					return true
				}
			}
		}
		return false
	}
	for _, x := range editable[role] {
		if x == s {
			return true
		}
	}
	return false
}

// Non-transition permissions.
type Permission string

const (
	PermCreateQuote    Permission = "quote.create"
	PermToggleItem     Permission = "quote.item.toggle"
	PermIssueInvoice   Permission = "invoice.issue"
	PermRecordPayment  Permission = "payment.record"
	PermVoidInvoice    Permission = "invoice.void"
	PermSweepOverdue   Permission = "invoice.sweep"
	PermAdjustStock    Permission = "stock.adjust"
	PermUpdateSettings Permission = "settings.update"
	PermViewAudit      Permission = "audit.view"
	PermViewFinance    Permission = "finance.view"
)

var permissions = map[Permission][]Role{
	PermCreateQuote:    {RoleSalesRep, RoleManager},
	PermToggleItem:     {RoleFactory},
	PermIssueInvoice:   {RoleFinance},
	PermRecordPayment:  {RoleFinance},
	PermVoidInvoice:    {RoleFinance},
	PermSweepOverdue:   {RoleFinance},
	PermAdjustStock:    {RoleManager, RoleFactory},
	PermUpdateSettings: {},
	PermViewAudit:      {RoleManager},
	PermViewFinance:    {RoleFinance, RoleManager, RoleSalesRep},
}

// Require returns NotPermitted unless role holds p.
func Require(role Role, p Permission) error {
	if role.Can(permissions[p]...) {
		return nil
	}
	return &NotPermitted{Role: role, Action: string(p)}
}
