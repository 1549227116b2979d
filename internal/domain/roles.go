package domain

import "strings"

// Role is the staff role stored on users.role and carried in the session header.
type Role string

const (
	RoleAdmin          Role = "ADMIN"
	RoleGeneralManager Role = "GENERAL_MANAGER"
	RoleManager        Role = "MANAGER"
	RoleCashier        Role = "CASHIER"
	RoleWarehouse      Role = "WAREHOUSE"
)

// RoleSet is an unordered set of roles.
type RoleSet []Role

var (
	// AdminRoles may approve topology and financial changes.
	AdminRoles = RoleSet{RoleAdmin, RoleGeneralManager}
	// ManagerRoles may approve day-to-day location changes.
	ManagerRoles = RoleSet{RoleManager, RoleAdmin, RoleGeneralManager}
)

// ParseRole normalizes a role claim. Unknown roles come back with ok=false.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	switch role {
	case RoleAdmin, RoleGeneralManager, RoleManager, RoleCashier, RoleWarehouse:
		return role, true
	}
	return "", false
}

func (s RoleSet) Contains(role Role) bool {
	for _, r := range s {
		if r == role {
			return true
		}
	}
	return false
}

// Strings returns the set as plain strings, e.g. for an ANY($1) query parameter.
func (s RoleSet) Strings() []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = string(r)
	}
	return out
}
