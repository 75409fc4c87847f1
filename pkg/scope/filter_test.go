package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func storeScope(storeID string) UserScope {
	return UserScope{Type: TypeStore, Filters: map[string]string{FilterStoreID: storeID}}
}

func ownScope(userID string) UserScope {
	return UserScope{Type: TypeOwn, Filters: map[string]string{FilterUserID: userID}}
}

func TestFilterByScopeAll(t *testing.T) {
	records := []Record{{"store_id": "1"}, {"store_id": "2"}}

	got := FilterByScope(records, UserScope{Type: TypeAll})

	assert.Equal(t, records, got)
}

func TestFilterByScopeStore(t *testing.T) {
	records := []Record{{"store_id": 1, "name": "a"}, {"store_id": 2, "name": "b"}}

	got := FilterByScope(records, storeScope("1"))

	assert.Len(t, got, 1)
	assert.Equal(t, "a", got[0]["name"])
}

func TestFilterByScopeOwnMatchesAnyOwnershipField(t *testing.T) {
	records := []Record{
		{"assigned_to": "u1", "name": "first"},
		{"sales_representative": "u2", "name": "second"},
		{"user_id": "u1", "name": "third"},
	}

	got := FilterByScope(records, ownScope("u1"))

	assert.Len(t, got, 2)
	assert.Equal(t, "first", got[0]["name"])
	assert.Equal(t, "third", got[1]["name"])
}

func TestFilterByScopeNone(t *testing.T) {
	records := []Record{{"store_id": "1"}}

	got := FilterByScope(records, UserScope{Type: TypeNone})

	assert.Empty(t, got)
}

func TestFilterByScopeFieldOverrides(t *testing.T) {
	records := []Record{
		{"branch": "s1", "name": "keep"},
		{"branch": "s2", "name": "drop"},
	}

	got := FilterByScope(records, storeScope("s1"), FieldNames{StoreField: "branch"})

	assert.Len(t, got, 1)
	assert.Equal(t, "keep", got[0]["name"])
}

func TestFilterByScopeMissingFilterValue(t *testing.T) {
	// A store scope with no store_id must match nothing rather than leak.
	records := []Record{{"store_id": ""}, {"store_id": "1"}}

	got := FilterByScope(records, UserScope{Type: TypeStore, Filters: map[string]string{}})

	assert.Empty(t, got)
}

func TestQueryParams(t *testing.T) {
	assert.Empty(t, QueryParams(UserScope{Type: TypeAll}))
	assert.Empty(t, QueryParams(UserScope{Type: TypeNone}))
	assert.Equal(t, map[string]string{"store_id": "s1"}, QueryParams(storeScope("s1")))
	assert.Equal(t, map[string]string{"user_id": "u1"}, QueryParams(ownScope("u1")))
}

func TestCanPerformActionViewHierarchy(t *testing.T) {
	all := UserScope{Type: TypeAll}
	store := storeScope("s1")
	own := ownScope("u1")
	none := UserScope{Type: TypeNone}

	assert.True(t, CanPerformAction(ActionViewAll, all, nil))
	assert.False(t, CanPerformAction(ActionViewAll, store, nil))
	assert.False(t, CanPerformAction(ActionViewAll, own, nil))

	assert.True(t, CanPerformAction(ActionViewStore, all, nil))
	assert.True(t, CanPerformAction(ActionViewStore, store, nil))
	assert.False(t, CanPerformAction(ActionViewStore, own, nil))

	assert.True(t, CanPerformAction(ActionViewOwn, all, nil))
	assert.True(t, CanPerformAction(ActionViewOwn, store, nil))
	assert.True(t, CanPerformAction(ActionViewOwn, own, nil))
	assert.False(t, CanPerformAction(ActionViewOwn, none, nil))
}

func TestCanPerformActionEditOwn(t *testing.T) {
	own := ownScope("u1")

	assert.True(t, CanPerformAction(ActionEditOwn, UserScope{Type: TypeAll}, nil))
	assert.True(t, CanPerformAction(ActionDeleteOwn, storeScope("s1"), nil))

	// Own scope needs the item as evidence.
	assert.False(t, CanPerformAction(ActionEditOwn, own, nil))
	assert.True(t, CanPerformAction(ActionEditOwn, own, Record{"assigned_to": "u1"}))
	assert.True(t, CanPerformAction(ActionDeleteOwn, own, Record{"sales_representative": "u1"}))
	assert.False(t, CanPerformAction(ActionEditOwn, own, Record{"assigned_to": "u2"}))
}

func TestCanPerformActionUnknownAction(t *testing.T) {
	assert.False(t, CanPerformAction(Action("export_everything"), UserScope{Type: TypeAll}, nil))
}

func TestValidateStoreAccess(t *testing.T) {
	tests := []struct {
		name        string
		target      string
		userStore   string
		role        string
		wantAllowed bool
		wantReason  string
	}{
		{"business admin any store", "storeA", "storeB", "business_admin", true, ""},
		{"business admin no assignment", "storeX", "", "business_admin", true, ""},
		{"platform admin any store", "storeA", "", "platform_admin", true, ""},
		{"manager own store", "storeA", "storeA", "manager", true, ""},
		{"manager wrong store", "storeA", "storeB", "manager", false, ReasonWrongStore},
		{"manager unassigned", "storeA", "", "manager", false, ReasonNoStore},
		{"no target store", "", "storeB", "manager", true, ""},
		{"neither store known", "", "", "inhouse_sales", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateStoreAccess("update", tt.target, tt.userStore, tt.role)
			assert.Equal(t, tt.wantAllowed, got.Allowed)
			assert.Equal(t, tt.wantReason, got.Reason)
		})
	}
}

func TestStringifyNumericValues(t *testing.T) {
	assert.Equal(t, "1", stringify(1))
	assert.Equal(t, "1", stringify(int64(1)))
	assert.Equal(t, "1", stringify(float64(1)))
	assert.Equal(t, "1.5", stringify(1.5))
	assert.Equal(t, "s1", stringify("s1"))
	assert.Equal(t, "", stringify(struct{}{}))
}
