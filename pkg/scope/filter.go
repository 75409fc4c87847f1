package scope

import (
	"strconv"

	"github.com/karatlane/karat/pkg/auth"
)

// Record is a row fetched from the data store. The filtering utilities only
// inspect the ownership and store fields; everything else passes through
// untouched.
type Record = map[string]any

// Action is an operation a caller wants to perform on scoped data.
type Action string

const (
	ActionViewAll   Action = "view_all"
	ActionViewStore Action = "view_store"
	ActionViewOwn   Action = "view_own"
	ActionEditOwn   Action = "edit_own"
	ActionDeleteOwn Action = "delete_own"
)

// FieldNames configures which record fields carry store and ownership
// information. Zero values fall back to the defaults.
type FieldNames struct {
	StoreField    string // default "store_id"
	UserField     string // default "user_id"
	AssignedField string // default "assigned_to"
	SalesRepField string // default "sales_representative"
}

// DefaultFieldNames returns the conventional field names used across the
// CRM tables.
func DefaultFieldNames() FieldNames {
	return FieldNames{
		StoreField:    "store_id",
		UserField:     "user_id",
		AssignedField: "assigned_to",
		SalesRepField: "sales_representative",
	}
}

func (f FieldNames) withDefaults() FieldNames {
	d := DefaultFieldNames()
	if f.StoreField == "" {
		f.StoreField = d.StoreField
	}
	if f.UserField == "" {
		f.UserField = d.UserField
	}
	if f.AssignedField == "" {
		f.AssignedField = d.AssignedField
	}
	if f.SalesRepField == "" {
		f.SalesRepField = d.SalesRepField
	}
	return f
}

// FilterByScope returns the subset of records visible under the scope.
//
// For TypeAll the input is returned unmodified. For TypeStore only records
// whose store field matches the scope's store_id survive. For TypeOwn a
// record survives if ANY of the user, assigned-to, or sales-representative
// fields matches the scope's user_id; most tables populate only one of the
// three, but the OR is deliberate so a single helper serves customers,
// escalations, and follow-ups alike. TypeNone yields an empty set.
func FilterByScope(records []Record, s UserScope, fields ...FieldNames) []Record {
	switch s.Type {
	case TypeAll:
		return records
	case TypeNone:
		return []Record{}
	}

	f := DefaultFieldNames()
	if len(fields) > 0 {
		f = fields[0].withDefaults()
	}

	out := make([]Record, 0, len(records))
	switch s.Type {
	case TypeStore:
		want := s.Filters[FilterStoreID]
		for _, r := range records {
			if fieldEquals(r, f.StoreField, want) {
				out = append(out, r)
			}
		}
	case TypeOwn:
		want := s.Filters[FilterUserID]
		for _, r := range records {
			if ownedBy(r, f, want) {
				out = append(out, r)
			}
		}
	}
	return out
}

// QueryParams maps a scope to flat string parameters suitable for a
// server-side query. TypeAll and TypeNone contribute nothing; callers must
// still gate TypeNone before issuing a query at all.
func QueryParams(s UserScope) map[string]string {
	params := map[string]string{}
	switch s.Type {
	case TypeStore:
		if v, ok := s.Filters[FilterStoreID]; ok {
			params[FilterStoreID] = v
		}
	case TypeOwn:
		if v, ok := s.Filters[FilterUserID]; ok {
			params[FilterUserID] = v
		}
	}
	return params
}

// CanPerformAction decides whether a scope permits an action, deny by
// default. View actions form a strict hierarchy (all ⊃ store ⊃ own). Edit
// and delete are unconditional for all- and store-scoped callers; an
// own-scoped caller must present the item so ownership can be verified,
// and without an item the answer is no.
func CanPerformAction(action Action, s UserScope, item Record, fields ...FieldNames) bool {
	switch action {
	case ActionViewAll:
		return s.Type == TypeAll
	case ActionViewStore:
		return s.Type == TypeAll || s.Type == TypeStore
	case ActionViewOwn:
		return s.Type == TypeAll || s.Type == TypeStore || s.Type == TypeOwn
	case ActionEditOwn, ActionDeleteOwn:
		switch s.Type {
		case TypeAll, TypeStore:
			return true
		case TypeOwn:
			if item == nil {
				return false
			}
			f := DefaultFieldNames()
			if len(fields) > 0 {
				f = fields[0].withDefaults()
			}
			return ownedBy(item, f, s.Filters[FilterUserID])
		}
	}
	return false
}

// StoreAccessResult is the outcome of a store access validation.
type StoreAccessResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Denial reasons for store access checks. The exact wording is part of the
// API surface; the UI renders these verbatim.
const (
	ReasonWrongStore = "You can only perform this action on your assigned store"
	ReasonNoStore    = "You are not assigned to any store"
)

// ValidateStoreAccess checks whether a principal assigned to userStoreID
// may perform a write against targetStoreID. Business admins are always
// allowed. Every create/update/delete of a store-scoped record must consult
// this before writing.
func ValidateStoreAccess(action string, targetStoreID, userStoreID string, role string) StoreAccessResult {
	if auth.Classify(auth.Role(role)) == auth.ClassAdmin {
		return StoreAccessResult{Allowed: true}
	}

	switch {
	case userStoreID != "" && targetStoreID != "":
		if userStoreID == targetStoreID {
			return StoreAccessResult{Allowed: true}
		}
		return StoreAccessResult{Allowed: false, Reason: ReasonWrongStore}
	case userStoreID == "" && targetStoreID != "":
		return StoreAccessResult{Allowed: false, Reason: ReasonNoStore}
	default:
		// No store constraint applicable.
		return StoreAccessResult{Allowed: true}
	}
}

// ownedBy reports whether any of the three ownership fields matches userID.
func ownedBy(r Record, f FieldNames, userID string) bool {
	return fieldEquals(r, f.UserField, userID) ||
		fieldEquals(r, f.AssignedField, userID) ||
		fieldEquals(r, f.SalesRepField, userID)
}

// fieldEquals compares a record field to want, tolerating the mixed string
// and numeric representations that come back from row queries.
func fieldEquals(r Record, field, want string) bool {
	if want == "" {
		return false
	}
	v, ok := r[field]
	if !ok || v == nil {
		return false
	}
	return stringify(v) == want
}

// stringify renders the scalar values row queries produce (strings plus
// the numeric types database/sql hands back) as comparable strings.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		// JSON numbers decode as float64; render integral values without
		// a fraction so {"store_id": 1} matches "1".
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
