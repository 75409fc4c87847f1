package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/karatlane/karat/pkg/auth"
)

func TestResolveAdminRoles(t *testing.T) {
	for _, role := range []auth.Role{auth.RolePlatformAdmin, auth.RoleBusinessAdmin} {
		t.Run(string(role), func(t *testing.T) {
			p := &auth.Principal{ID: "u1", Role: role}
			s := Resolve(p)

			assert.Equal(t, TypeAll, s.Type)
			assert.Empty(t, s.Filters)
			assert.Equal(t, "Full access to all data", s.Description)
			assert.True(t, CanAccessAllData(p))
			assert.True(t, CanAccessStoreData(p))
			assert.True(t, CanAccessOwnData(p))
		})
	}
}

func TestResolveManager(t *testing.T) {
	p := &auth.Principal{ID: "u2", Role: auth.RoleManager, StoreID: "s42"}
	s := Resolve(p)

	assert.Equal(t, TypeStore, s.Type)
	assert.Equal(t, "s42", s.Filters[FilterStoreID])
	assert.Equal(t, "Access to store-specific data", s.Description)
	assert.False(t, CanAccessAllData(p))
	assert.True(t, CanAccessStoreData(p))
	assert.True(t, CanAccessOwnData(p))
}

func TestResolveOwnDataRoles(t *testing.T) {
	for _, role := range []auth.Role{auth.RoleInhouseSales, auth.RoleTeleCalling} {
		t.Run(string(role), func(t *testing.T) {
			p := &auth.Principal{ID: "u3", Role: role}
			s := Resolve(p)

			assert.Equal(t, TypeOwn, s.Type)
			assert.Equal(t, "u3", s.Filters[FilterUserID])
			assert.Equal(t, "Access to own data only", s.Description)
			assert.False(t, CanAccessAllData(p))
			assert.False(t, CanAccessStoreData(p))
			assert.True(t, CanAccessOwnData(p))
		})
	}
}

func TestResolveUnknownRole(t *testing.T) {
	for _, role := range []auth.Role{"", "warehouse", auth.RoleSalesAssociate} {
		p := &auth.Principal{ID: "u4", Role: role}
		s := Resolve(p)

		assert.Equal(t, TypeNone, s.Type)
		assert.Empty(t, s.Filters)
		assert.False(t, CanAccessAllData(p))
		assert.False(t, CanAccessStoreData(p))
		assert.False(t, CanAccessOwnData(p))
	}
}

func TestResolveNilPrincipal(t *testing.T) {
	s := Resolve(nil)

	assert.Equal(t, TypeNone, s.Type)
	assert.Empty(t, s.Filters)
	assert.Equal(t, "No access - user not authenticated", s.Description)
}

func TestResolveIdempotent(t *testing.T) {
	p := &auth.Principal{ID: "u5", Role: auth.RoleManager, StoreID: "s1"}

	first := Resolve(p)
	second := Resolve(p)

	assert.Equal(t, first, second)
}

func TestStoreIsolationAgreesWithScopeForAdmins(t *testing.T) {
	// The two resolvers must never disagree for admin-class roles.
	for _, role := range []auth.Role{auth.RolePlatformAdmin, auth.RoleBusinessAdmin} {
		p := &auth.Principal{ID: "u1", Role: role, StoreID: "s9"}

		assert.Equal(t, TypeAll, Resolve(p).Type)
		iso := ResolveStoreIsolation(p)
		assert.True(t, iso.CanSeeAllStores)
		assert.Empty(t, iso.StoreFilter)
	}
}

func TestStoreIsolationRestricted(t *testing.T) {
	p := &auth.Principal{ID: "u2", Role: auth.RoleManager, StoreID: "s7"}

	iso := ResolveStoreIsolation(p)
	assert.False(t, iso.CanSeeAllStores)
	assert.Equal(t, map[string]string{FilterStoreID: "s7"}, iso.StoreFilter)
}

func TestStoreIsolationNilPrincipal(t *testing.T) {
	iso := ResolveStoreIsolation(nil)
	assert.False(t, iso.CanSeeAllStores)
	assert.Empty(t, iso.StoreFilter)
}
