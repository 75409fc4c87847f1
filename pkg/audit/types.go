package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthSignIn         EventType = "auth.sign_in"
	EventTypeAuthSignOut        EventType = "auth.sign_out"
	EventTypeAuthSignInFailed   EventType = "auth.sign_in_failed"
	EventTypeAuthTokenRefresh   EventType = "auth.token_refresh"
	EventTypeAuthHydrate        EventType = "auth.session_hydrate"
	EventTypeAuthHydrateFailed  EventType = "auth.session_hydrate_failed"

	// Authorization events
	EventTypeAuthzScopeResolve      EventType = "authz.scope_resolve"
	EventTypeAuthzAccessDenied      EventType = "authz.access_denied"
	EventTypeAuthzStoreDenied       EventType = "authz.store_access_denied"
	EventTypeAuthzRoleChange        EventType = "authz.role_change"

	// Data mutation events
	EventTypeDataCustomerCreate     EventType = "data.customer_create"
	EventTypeDataCustomerUpdate     EventType = "data.customer_update"
	EventTypeDataCustomerDelete     EventType = "data.customer_delete"
	EventTypeDataEscalationCreate   EventType = "data.escalation_create"
	EventTypeDataEscalationUpdate   EventType = "data.escalation_update"
	EventTypeDataAnnouncementCreate EventType = "data.announcement_create"
	EventTypeDataAnnouncementDelete EventType = "data.announcement_delete"
	EventTypeDataProductImageSet    EventType = "data.product_image_set"
	EventTypeDataExport             EventType = "data.export"

	// Store context events
	EventTypeStoreSwitch        EventType = "store.switch"
	EventTypeStorePreferenceSet EventType = "store.preference_set"
	EventTypeStoreRefreshFailed EventType = "store.refresh_failed"

	// Request-level event emitted by the audit middleware
	EventTypeHTTPRequest EventType = "http.request"

	// Read/access events (for sensitive operations)
	EventTypeAccessCustomerRead EventType = "access.customer_read"
	EventTypeAccessAuditSearch  EventType = "access.audit_search"
	EventTypeAccessAuditExport  EventType = "access.audit_export"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being accessed
type ResourceType string

const (
	ResourceTypeCustomer     ResourceType = "customer"
	ResourceTypeEscalation   ResourceType = "escalation"
	ResourceTypeAnnouncement ResourceType = "announcement"
	ResourceTypeProduct      ResourceType = "product"
	ResourceTypeStore        ResourceType = "store"
	ResourceTypeFloor        ResourceType = "floor"
	ResourceTypeTeamMember   ResourceType = "team_member"
	ResourceTypeSession      ResourceType = "session"
	ResourceTypeExport       ResourceType = "export"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	// Core fields
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	UserID    string `json:"user_id,omitempty"`
	UserEmail string `json:"user_email,omitempty"`
	Role      string `json:"role,omitempty"`
	StoreID   string `json:"store_id,omitempty"`

	// Resource information
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`
	ResourceName string       `json:"resource_name,omitempty"`

	// Request context
	IPAddress  string `json:"ip_address,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	Method     string `json:"method,omitempty"`
	Path       string `json:"path,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`

	// Additional details
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`

	// Changes tracking (before/after for updates)
	Changes *ChangeDetails `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *AuditEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*AuditEvent, error) {
	var event AuditEvent
	err := json.Unmarshal(data, &event)
	return &event, err
}

// SearchFilter represents filters for searching audit logs
type SearchFilter struct {
	// Time range
	StartTime *time.Time
	EndTime   *time.Time

	// Actor filters
	UserID    string
	UserEmail string
	StoreID   string

	// Event filters
	EventTypes []EventType
	Status     *EventStatus

	// Resource filters
	ResourceType ResourceType
	ResourceID   string

	// Request context filters
	IPAddress string
	Method    string
	Path      string

	// Pagination
	Limit  int
	Offset int

	// Sorting
	SortBy    string // field name to sort by
	SortOrder string // "asc" or "desc"
}

// ExportFormat represents the format for exporting audit logs
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson" // Newline-delimited JSON
)

// AuditStats represents statistics about audit logs
type AuditStats struct {
	TotalEvents        int64                 `json:"total_events"`
	EventsByType       map[EventType]int64   `json:"events_by_type"`
	EventsByStatus     map[EventStatus]int64 `json:"events_by_status"`
	UniqueUsers        int64                 `json:"unique_users"`
	UniqueIPs          int64                 `json:"unique_ips"`
	FailedAuthAttempts int64                 `json:"failed_auth_attempts"`
	AccessDenials      int64                 `json:"access_denials"`
	TimeRange          *TimeRange            `json:"time_range,omitempty"`
}

// TimeRange represents a time range for statistics
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// RetentionPolicy defines how long audit logs should be kept
type RetentionPolicy struct {
	// RetentionDays is the number of days to keep audit logs
	RetentionDays int

	// ArchiveEnabled determines if old logs should be archived before deletion
	ArchiveEnabled bool

	// ArchivePath is where archived logs should be stored
	ArchivePath string
}

// DefaultRetentionPolicy returns a default retention policy (90 days)
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		RetentionDays:  90,
		ArchiveEnabled: true,
		ArchivePath:    "/var/karat/audit-archive",
	}
}
