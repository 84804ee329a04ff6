package scope

import (
	"testing"

	"github.com/google/uuid"

	"github.com/tracevec/backend/internal/models"
)

func account(role models.Role) *models.Account {
	return &models.Account{ID: uuid.New(), Role: role}
}

func TestCanUseAdminAPI(t *testing.T) {
	if CanUseAdminAPI(models.RoleUser) {
		t.Error("standard users must not reach the admin API")
	}
	if !CanUseAdminAPI(models.RoleAdmin) || !CanUseAdminAPI(models.RoleSuperuser) {
		t.Error("elevated roles must reach the admin API")
	}
}

func TestExcludesSuperusers(t *testing.T) {
	if !ExcludesSuperusers(models.RoleAdmin) {
		t.Error("admin listings must hide superusers")
	}
	if ExcludesSuperusers(models.RoleSuperuser) {
		t.Error("superuser listings must not be filtered")
	}
}

func TestCanViewAccount(t *testing.T) {
	cases := []struct {
		actor, target models.Role
		want          bool
	}{
		{models.RoleSuperuser, models.RoleSuperuser, true},
		{models.RoleSuperuser, models.RoleAdmin, true},
		{models.RoleSuperuser, models.RoleUser, true},
		{models.RoleAdmin, models.RoleSuperuser, false},
		{models.RoleAdmin, models.RoleAdmin, true},
		{models.RoleAdmin, models.RoleUser, true},
		{models.RoleUser, models.RoleUser, false},
	}
	for _, c := range cases {
		if got := CanViewAccount(c.actor, c.target); got != c.want {
			t.Errorf("CanViewAccount(%s, %s) = %v, want %v", c.actor, c.target, got, c.want)
		}
	}
}

func TestCanManageAccount(t *testing.T) {
	cases := []struct {
		actor, target models.Role
		want          bool
	}{
		{models.RoleSuperuser, models.RoleSuperuser, true},
		{models.RoleSuperuser, models.RoleUser, true},
		{models.RoleAdmin, models.RoleUser, true},
		{models.RoleAdmin, models.RoleAdmin, false},
		{models.RoleAdmin, models.RoleSuperuser, false},
		{models.RoleUser, models.RoleUser, false},
	}
	for _, c := range cases {
		if got := CanManageAccount(c.actor, c.target); got != c.want {
			t.Errorf("CanManageAccount(%s, %s) = %v, want %v", c.actor, c.target, got, c.want)
		}
	}
}

func TestCanDelete_SelfAlwaysForbidden(t *testing.T) {
	for _, role := range []models.Role{models.RoleUser, models.RoleAdmin, models.RoleSuperuser} {
		actor := account(role)
		if CanDelete(actor, actor) {
			t.Errorf("%s must not delete itself", role)
		}
	}
}

func TestCanDelete_Matrix(t *testing.T) {
	cases := []struct {
		actor, target models.Role
		want          bool
	}{
		{models.RoleSuperuser, models.RoleUser, true},
		{models.RoleSuperuser, models.RoleAdmin, true},
		{models.RoleSuperuser, models.RoleSuperuser, true},
		{models.RoleAdmin, models.RoleUser, true},
		{models.RoleAdmin, models.RoleAdmin, false},
		{models.RoleAdmin, models.RoleSuperuser, false},
		{models.RoleUser, models.RoleUser, false},
	}
	for _, c := range cases {
		if got := CanDelete(account(c.actor), account(c.target)); got != c.want {
			t.Errorf("CanDelete(%s, %s) = %v, want %v", c.actor, c.target, got, c.want)
		}
	}
}

func TestCanEditRole(t *testing.T) {
	cases := []struct {
		actor, target, newRole models.Role
		want                   bool
	}{
		{models.RoleSuperuser, models.RoleUser, models.RoleAdmin, true},
		{models.RoleSuperuser, models.RoleAdmin, models.RoleSuperuser, true},
		{models.RoleAdmin, models.RoleUser, models.RoleAdmin, false},
		{models.RoleAdmin, models.RoleUser, models.RoleUser, true},
		{models.RoleAdmin, models.RoleAdmin, models.RoleUser, false},
		{models.RoleUser, models.RoleUser, models.RoleAdmin, false},
	}
	for _, c := range cases {
		if got := CanEditRole(account(c.actor), account(c.target), c.newRole); got != c.want {
			t.Errorf("CanEditRole(%s, %s, %s) = %v, want %v", c.actor, c.target, c.newRole, got, c.want)
		}
	}
}

func TestCanPurgeLogs(t *testing.T) {
	if CanPurgeLogs(models.RoleAdmin) || CanPurgeLogs(models.RoleUser) {
		t.Error("purge must be superuser-only")
	}
	if !CanPurgeLogs(models.RoleSuperuser) {
		t.Error("superuser must be able to purge")
	}
}
