package scope

import (
	"github.com/karatlane/karat/pkg/auth"
)

// Type is the access class of a computed scope.
type Type string

const (
	// TypeAll grants unrestricted access to every record.
	TypeAll Type = "all"
	// TypeStore limits access to records belonging to one store.
	TypeStore Type = "store"
	// TypeOwn limits access to records owned by the principal.
	TypeOwn Type = "own"
	// TypeNone grants no access at all.
	TypeNone Type = "none"
)

// Filter keys used in UserScope.Filters and in query parameters.
const (
	FilterStoreID = "store_id"
	FilterUserID  = "user_id"
)

// UserScope describes what a principal may see: the access class, the
// filter parameters it implies, and a human description for diagnostics.
// It is derived, never persisted, and must be recomputed whenever the
// principal changes.
type UserScope struct {
	Type        Type              `json:"type"`
	Filters     map[string]string `json:"filters"`
	Description string            `json:"description"`
}

// Resolve computes the scope for a principal. It is a pure function of the
// principal's role and assignment: no I/O, and two calls with the same
// input yield structurally identical scopes.
func Resolve(p *auth.Principal) UserScope {
	if p == nil {
		return UserScope{
			Type:        TypeNone,
			Filters:     map[string]string{},
			Description: "No access - user not authenticated",
		}
	}

	switch p.Class() {
	case auth.ClassAdmin:
		return UserScope{
			Type:        TypeAll,
			Filters:     map[string]string{},
			Description: "Full access to all data",
		}
	case auth.ClassStoreManager:
		return UserScope{
			Type:        TypeStore,
			Filters:     map[string]string{FilterStoreID: p.StoreID},
			Description: "Access to store-specific data",
		}
	case auth.ClassOwnData:
		return UserScope{
			Type:        TypeOwn,
			Filters:     map[string]string{FilterUserID: p.ID},
			Description: "Access to own data only",
		}
	default:
		return UserScope{
			Type:        TypeNone,
			Filters:     map[string]string{},
			Description: "No access",
		}
	}
}

// CanAccessAllData reports whether the principal sees every record.
func CanAccessAllData(p *auth.Principal) bool {
	return p.Class() == auth.ClassAdmin
}

// CanAccessStoreData reports whether the principal sees store-level data.
func CanAccessStoreData(p *auth.Principal) bool {
	switch p.Class() {
	case auth.ClassAdmin, auth.ClassStoreManager:
		return true
	default:
		return false
	}
}

// CanAccessOwnData reports whether the principal sees at least their own
// records. Every class except no-access qualifies.
func CanAccessOwnData(p *auth.Principal) bool {
	return p.Class() != auth.ClassNoAccess
}
