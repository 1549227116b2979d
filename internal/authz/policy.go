package authz

import "github.com/farmacias-vallenar/backoffice-service/internal/domain"

// Operation names a privileged action that the gate knows a policy for.
type Operation string

const (
	OpLocationCreate       Operation = "location.create"
	OpLocationDeactivate   Operation = "location.deactivate"
	OpLocationConfigUpdate Operation = "location.config.update"
	OpTerminalCreate       Operation = "terminal.create"
	OpAccountCreate        Operation = "account.create"
	OpAccountUpdate        Operation = "account.update"
	OpAccountDeactivate    Operation = "account.deactivate"
	OpStaffAssign          Operation = "staff.assign"
	OpStaffPINSet          Operation = "staff.pin.set"
	OpAuditQuery           Operation = "audit.query"
)

// Policy is the role requirement for one operation. With RequirePIN the PIN owner must hold one
// of Roles and the session role is ignored; without it the session role itself must be in Roles.
type Policy struct {
	Roles      domain.RoleSet
	RequirePIN bool
}

// DefaultPolicies is the static policy table of the back office.
func DefaultPolicies() map[Operation]Policy {
	return map[Operation]Policy{
		OpLocationCreate:       {Roles: domain.AdminRoles, RequirePIN: true},
		OpLocationDeactivate:   {Roles: domain.AdminRoles, RequirePIN: true},
		OpLocationConfigUpdate: {Roles: domain.AdminRoles, RequirePIN: true},
		OpTerminalCreate:       {Roles: domain.ManagerRoles, RequirePIN: true},
		OpAccountCreate:        {Roles: domain.AdminRoles, RequirePIN: true},
		OpAccountUpdate:        {Roles: domain.ManagerRoles, RequirePIN: true},
		OpAccountDeactivate:    {Roles: domain.AdminRoles, RequirePIN: true},
		OpStaffAssign:          {Roles: domain.ManagerRoles, RequirePIN: true},
		OpStaffPINSet:          {Roles: domain.AdminRoles, RequirePIN: true},
		OpAuditQuery:           {Roles: domain.AdminRoles},
	}
}
