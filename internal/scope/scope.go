// Package scope is the single source of truth for role-based visibility
// and mutation rights. Everything here is a pure function over the role
// enum so the rules are testable without a database; handlers translate
// false into 403s.
package scope

import "github.com/tracevec/backend/internal/models"

// CanUseAdminAPI gates the whole /admin surface.
func CanUseAdminAPI(actor models.Role) bool {
	return actor.IsElevated()
}

// ExcludesSuperusers reports whether account and log listings for the
// actor must hide superuser-owned records. Admins never see superusers;
// superusers see the universe.
func ExcludesSuperusers(actor models.Role) bool {
	return actor == models.RoleAdmin
}

// CanViewAccount reports whether the actor may read the target's record
// through the admin API. Standard users only ever see themselves, which
// the non-admin endpoints already guarantee.
func CanViewAccount(actor, target models.Role) bool {
	switch actor {
	case models.RoleSuperuser:
		return true
	case models.RoleAdmin:
		return target != models.RoleSuperuser
	}
	return false
}

// CanManageAccount reports whether the actor may mutate the target:
// profile edits, password changes and security-question changes all share
// this rule. Admins cannot touch admin or superuser targets.
func CanManageAccount(actor, target models.Role) bool {
	switch actor {
	case models.RoleSuperuser:
		return true
	case models.RoleAdmin:
		return target == models.RoleUser
	}
	return false
}

// CanDelete applies the deletion rules: self-deletion is forbidden for
// every role, admins delete only standard users, superusers delete anyone
// else (including other superusers).
func CanDelete(actor, target *models.Account) bool {
	if actor.ID == target.ID {
		return false
	}
	switch actor.Role {
	case models.RoleSuperuser:
		return true
	case models.RoleAdmin:
		return target.Role == models.RoleUser
	}
	return false
}

// CanEditRole reports whether the actor may set the target's role to
// newRole. Role elevation is superuser-exclusive: an admin may never
// assign admin or superuser, and may only act on standard users at all.
func CanEditRole(actor, target *models.Account, newRole models.Role) bool {
	switch actor.Role {
	case models.RoleSuperuser:
		return true
	case models.RoleAdmin:
		return target.Role == models.RoleUser && newRole == models.RoleUser
	}
	return false
}

// CanPurgeLogs restricts bulk activity-log deletion to the highest
// privilege role.
func CanPurgeLogs(actor models.Role) bool {
	return actor == models.RoleSuperuser
}
