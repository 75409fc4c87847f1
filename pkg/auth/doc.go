// Package auth defines the authenticated principal and the role model for
// the Karat CRM.
//
// # Overview
//
// Every request is made by a Principal carrying a role and an optional
// store/floor assignment. Roles are never compared directly anywhere else in
// the codebase: Classify maps a role to exactly one access Class, and the
// scope resolvers, the store isolation resolver, and the access guard all
// branch on that class. Keeping the mapping in one place is what guarantees
// the resolvers agree about which roles are admin-class.
//
// # Classes
//
//	ClassAdmin        - platform_admin, business_admin: unrestricted
//	ClassStoreManager - manager, floor_manager: limited to assigned store
//	ClassOwnData      - inhouse_sales, tele_calling: limited to own records
//	ClassNoAccess     - everything else, including unknown roles
//
// # Usage
//
//	p := &auth.Principal{ID: "u1", Role: auth.RoleManager, StoreID: "s1"}
//	if p.Class() == auth.ClassAdmin {
//		// unrestricted path
//	}
package auth
