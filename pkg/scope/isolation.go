package scope

import (
	"github.com/karatlane/karat/pkg/auth"
)

// StoreIsolation is the narrower, store-only variant of scoping applied to
// store-owned entities such as floors, counters, and announcements.
type StoreIsolation struct {
	// CanSeeAllStores is true for admin-class principals.
	CanSeeAllStores bool `json:"can_see_all_stores"`
	// StoreFilter is empty when unrestricted, otherwise a store_id filter.
	StoreFilter map[string]string `json:"store_filter"`
}

// ResolveStoreIsolation computes store isolation for a principal. It
// branches on the same auth.Classify result as Resolve, so the two
// resolvers cannot disagree about which roles are unrestricted.
func ResolveStoreIsolation(p *auth.Principal) StoreIsolation {
	if p.Class() == auth.ClassAdmin {
		return StoreIsolation{
			CanSeeAllStores: true,
			StoreFilter:     map[string]string{},
		}
	}

	filter := map[string]string{}
	if p != nil {
		filter[FilterStoreID] = p.StoreID
	}
	return StoreIsolation{
		CanSeeAllStores: false,
		StoreFilter:     filter,
	}
}
