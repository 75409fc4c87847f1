package stores

// Store is one retail location.
type Store struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	City     string `json:"city"`
	Address  string `json:"address,omitempty"`
	Phone    string `json:"phone,omitempty"`
	IsActive bool   `json:"is_active"`
}

// DefaultStoreID is the selection used before a user ever picks a store.
const DefaultStoreID = 1

// placeholderStores keeps store-dependent features usable when the store
// list cannot be fetched. Consumers can tell the difference through
// Degraded().
var placeholderStores = []Store{
	{ID: 1, Name: "Flagship Store", City: "Mumbai", IsActive: true},
	{ID: 2, Name: "City Centre Store", City: "Delhi", IsActive: true},
	{ID: 3, Name: "Mall Store", City: "Bengaluru", IsActive: true},
}
