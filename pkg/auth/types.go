package auth

import "time"

// Role represents a user's role within the CRM.
type Role string

const (
	RolePlatformAdmin  Role = "platform_admin"
	RoleBusinessAdmin  Role = "business_admin"
	RoleManager        Role = "manager"
	RoleFloorManager   Role = "floor_manager"
	RoleInhouseSales   Role = "inhouse_sales"
	RoleTeleCalling    Role = "tele_calling"
	RoleSalesAssociate Role = "sales_associate"
)

// Class is the access class a role maps to. All scope decisions in the
// codebase go through Classify so the resolvers can never disagree about
// role membership.
type Class int

const (
	// ClassNoAccess is the default for unknown, empty, or unclassified roles.
	ClassNoAccess Class = iota
	// ClassAdmin covers platform and business admins: unrestricted access.
	ClassAdmin
	// ClassStoreManager covers managers: access limited to their store.
	ClassStoreManager
	// ClassOwnData covers sales roles: access limited to their own records.
	ClassOwnData
)

// String returns a human-readable name for the class.
func (c Class) String() string {
	switch c {
	case ClassAdmin:
		return "admin"
	case ClassStoreManager:
		return "store_manager"
	case ClassOwnData:
		return "own_data"
	default:
		return "no_access"
	}
}

// Classify maps a role to its access class.
func Classify(role Role) Class {
	switch role {
	case RolePlatformAdmin, RoleBusinessAdmin:
		return ClassAdmin
	case RoleManager, RoleFloorManager:
		return ClassStoreManager
	case RoleInhouseSales, RoleTeleCalling:
		return ClassOwnData
	default:
		return ClassNoAccess
	}
}

// Principal is the authenticated identity making a request. It is supplied
// by the identity provider and cached by the auth state store; nothing else
// in the codebase mutates it.
type Principal struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Role    Role   `json:"role"`
	StoreID string `json:"store_id,omitempty"`
	Floor   string `json:"floor,omitempty"`
}

// Class returns the access class of the principal's role.
func (p *Principal) Class() Class {
	if p == nil {
		return ClassNoAccess
	}
	return Classify(p.Role)
}

// Session holds the provider-issued session tokens for a principal.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Principal    Principal `json:"principal"`
}

// Expired reports whether the session's access token has expired.
func (s *Session) Expired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// ChangeEvent is the kind of identity change emitted by the provider.
type ChangeEvent string

const (
	EventSignedIn       ChangeEvent = "SIGNED_IN"
	EventSignedOut      ChangeEvent = "SIGNED_OUT"
	EventTokenRefreshed ChangeEvent = "TOKEN_REFRESHED"
	EventUserUpdated    ChangeEvent = "USER_UPDATED"
)
