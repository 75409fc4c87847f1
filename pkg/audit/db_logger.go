package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lib/pq"
)

// DBLogger writes audit events to PostgreSQL. It is the durable sink;
// the table doubles as the query surface for the audit API.
type DBLogger struct {
	db *sql.DB
}

func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	logger := &DBLogger{db: db}
	if err := logger.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_events table: %w", err)
	}
	return logger, nil
}

func (l *DBLogger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL,
		user_id VARCHAR(100),
		user_email VARCHAR(255),
		role VARCHAR(50),
		store_id VARCHAR(50),
		resource_type VARCHAR(50),
		resource_id VARCHAR(255),
		resource_name VARCHAR(255),
		ip_address VARCHAR(45),
		user_agent TEXT,
		request_id VARCHAR(100),
		method VARCHAR(10),
		path TEXT,
		status_code INTEGER,
		message TEXT,
		error_message TEXT,
		metadata JSONB,
		changes JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_events_event_type ON audit_events(event_type);
	CREATE INDEX IF NOT EXISTS idx_audit_events_user_id ON audit_events(user_id);
	CREATE INDEX IF NOT EXISTS idx_audit_events_store_id ON audit_events(store_id);
	CREATE INDEX IF NOT EXISTS idx_audit_events_resource ON audit_events(resource_type, resource_id);
	CREATE INDEX IF NOT EXISTS idx_audit_events_status ON audit_events(status);
	CREATE INDEX IF NOT EXISTS idx_audit_events_ip_address ON audit_events(ip_address);
	`
	_, err := l.db.Exec(query)
	return err
}

// eventColumns is every persisted column except the generated id, in the
// order the INSERT and SELECT statements use.
const eventColumns = `timestamp, event_type, status,
		user_id, user_email, role, store_id,
		resource_type, resource_id, resource_name,
		ip_address, user_agent, request_id,
		method, path, status_code,
		message, error_message, metadata, changes`

// Log inserts one event and fills in its generated ID.
func (l *DBLogger) Log(ctx context.Context, event *AuditEvent) error {
	metadataJSON, changesJSON, err := marshalEventBlobs(event)
	if err != nil {
		return err
	}

	query := `INSERT INTO audit_events (` + eventColumns + `) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10,
			$11, $12, $13,
			$14, $15, $16,
			$17, $18, $19, $20
		) RETURNING id`

	err = l.db.QueryRowContext(ctx, query,
		event.Timestamp, event.EventType, event.Status,
		event.UserID, event.UserEmail, event.Role, event.StoreID,
		event.ResourceType, event.ResourceID, event.ResourceName,
		event.IPAddress, event.UserAgent, event.RequestID,
		event.Method, event.Path, event.StatusCode,
		event.Message, event.ErrorMessage, metadataJSON, changesJSON,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

func marshalEventBlobs(event *AuditEvent) (metadata, changes []byte, err error) {
	if event.Metadata != nil {
		if metadata, err = json.Marshal(event.Metadata); err != nil {
			return nil, nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}
	if event.Changes != nil {
		if changes, err = json.Marshal(event.Changes); err != nil {
			return nil, nil, fmt.Errorf("failed to marshal changes: %w", err)
		}
	}
	return metadata, changes, nil
}

func (l *DBLogger) LogAuthentication(ctx context.Context, eventType EventType, userID, userEmail string, status EventStatus, message string) error {
	return l.Log(ctx, authenticationEvent(ctx, eventType, userID, userEmail, status, message))
}

func (l *DBLogger) LogAuthorization(ctx context.Context, eventType EventType, userID string, resourceType ResourceType, resourceID string, status EventStatus, message string) error {
	return l.Log(ctx, authorizationEvent(ctx, eventType, userID, resourceType, resourceID, status, message))
}

func (l *DBLogger) LogDataMutation(ctx context.Context, eventType EventType, userID string, resourceType ResourceType, resourceID string, changes *ChangeDetails, message string) error {
	return l.Log(ctx, mutationEvent(ctx, eventType, userID, resourceType, resourceID, changes, message))
}

func (l *DBLogger) LogStoreAction(ctx context.Context, eventType EventType, userID, storeID, message string) error {
	return l.Log(ctx, storeActionEvent(ctx, eventType, userID, storeID, message))
}

func (l *DBLogger) LogAccess(ctx context.Context, eventType EventType, userID string, resourceType ResourceType, resourceID string, message string) error {
	return l.Log(ctx, accessEvent(ctx, eventType, userID, resourceType, resourceID, message))
}

func (l *DBLogger) LogHTTPRequest(ctx context.Context, r *http.Request, statusCode int, duration time.Duration, err error) error {
	return l.Log(ctx, httpRequestEvent(ctx, r, statusCode, duration, err))
}

// whereBuilder accumulates "AND column = $n" clauses with positional args.
// It always starts from "WHERE 1=1" so callers can append unconditionally.
type whereBuilder struct {
	sql  strings.Builder
	args []interface{}
}

func newWhere() *whereBuilder {
	w := &whereBuilder{}
	w.sql.WriteString("WHERE 1=1")
	return w
}

// and appends " AND <expr>" where expr contains one %d placeholder index.
func (w *whereBuilder) and(expr string, arg interface{}) {
	w.args = append(w.args, arg)
	fmt.Fprintf(&w.sql, " AND "+expr, len(w.args))
}

// next registers an arg and returns its positional index, for clauses
// appended outside the WHERE (LIMIT, OFFSET).
func (w *whereBuilder) next(arg interface{}) int {
	w.args = append(w.args, arg)
	return len(w.args)
}

func (w *whereBuilder) clause() string { return w.sql.String() }

func buildSearchWhere(filter SearchFilter) *whereBuilder {
	w := newWhere()
	if filter.StartTime != nil {
		w.and("timestamp >= $%d", *filter.StartTime)
	}
	if filter.EndTime != nil {
		w.and("timestamp <= $%d", *filter.EndTime)
	}
	if filter.UserID != "" {
		w.and("user_id = $%d", filter.UserID)
	}
	if filter.UserEmail != "" {
		w.and("user_email = $%d", filter.UserEmail)
	}
	if filter.StoreID != "" {
		w.and("store_id = $%d", filter.StoreID)
	}
	if len(filter.EventTypes) > 0 {
		types := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			types[i] = string(et)
		}
		w.and("event_type = ANY($%d)", pq.Array(types))
	}
	if filter.Status != nil {
		w.and("status = $%d", string(*filter.Status))
	}
	if filter.ResourceType != "" {
		w.and("resource_type = $%d", string(filter.ResourceType))
	}
	if filter.ResourceID != "" {
		w.and("resource_id = $%d", filter.ResourceID)
	}
	if filter.IPAddress != "" {
		w.and("ip_address = $%d", filter.IPAddress)
	}
	if filter.Method != "" {
		w.and("method = $%d", filter.Method)
	}
	if filter.Path != "" {
		w.and("path LIKE $%d", "%"+filter.Path+"%")
	}
	return w
}

// sortableColumns lists the columns Search accepts in SortBy.
var sortableColumns = map[string]bool{
	"timestamp":  true,
	"event_type": true,
	"status":     true,
	"user_id":    true,
	"store_id":   true,
}

// Search returns events matching the filter, newest first unless the
// filter asks otherwise.
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error) {
	w := buildSearchWhere(filter)
	query := `SELECT id, ` + eventColumns + ` FROM audit_events ` + w.clause()

	if filter.SortBy != "" && sortableColumns[filter.SortBy] {
		order := "DESC"
		if filter.SortOrder == "asc" {
			order = "ASC"
		}
		query += fmt.Sprintf(" ORDER BY %s %s", filter.SortBy, order)
	} else {
		query += " ORDER BY timestamp DESC"
	}

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", w.next(filter.Limit))
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", w.next(filter.Offset))
	}

	rows, err := l.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer rows.Close()

	events := make([]*AuditEvent, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (*AuditEvent, error) {
	event := &AuditEvent{Metadata: make(map[string]interface{})}
	var metadataJSON, changesJSON []byte

	err := rows.Scan(
		&event.ID, &event.Timestamp, &event.EventType, &event.Status,
		&event.UserID, &event.UserEmail, &event.Role, &event.StoreID,
		&event.ResourceType, &event.ResourceID, &event.ResourceName,
		&event.IPAddress, &event.UserAgent, &event.RequestID,
		&event.Method, &event.Path, &event.StatusCode,
		&event.Message, &event.ErrorMessage, &metadataJSON, &changesJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit event: %w", err)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	if len(changesJSON) > 0 {
		event.Changes = &ChangeDetails{}
		if err := json.Unmarshal(changesJSON, event.Changes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
		}
	}
	return event, nil
}

// GetStats aggregates event counts for the dashboard, optionally bounded
// to a time range.
func (l *DBLogger) GetStats(ctx context.Context, startTime, endTime *time.Time) (*AuditStats, error) {
	stats := &AuditStats{
		EventsByType:   make(map[EventType]int64),
		EventsByStatus: make(map[EventStatus]int64),
	}

	w := newWhere()
	if startTime != nil {
		w.and("timestamp >= $%d", *startTime)
		stats.TimeRange = &TimeRange{Start: *startTime}
	}
	if endTime != nil {
		w.and("timestamp <= $%d", *endTime)
		if stats.TimeRange == nil {
			stats.TimeRange = &TimeRange{}
		}
		stats.TimeRange.End = *endTime
	}
	whereClause, args := w.clause(), w.args

	countInto := func(query string, dest *int64, label string) error {
		if err := l.db.QueryRowContext(ctx, query, args...).Scan(dest); err != nil {
			return fmt.Errorf("failed to get %s: %w", label, err)
		}
		return nil
	}

	if err := countInto("SELECT COUNT(*) FROM audit_events "+whereClause, &stats.TotalEvents, "total events"); err != nil {
		return nil, err
	}

	rows, err := l.db.QueryContext(ctx, "SELECT event_type, COUNT(*) FROM audit_events "+whereClause+" GROUP BY event_type", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get events by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var eventType EventType
		var count int64
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, err
		}
		stats.EventsByType[eventType] = count
	}

	rows, err = l.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM audit_events "+whereClause+" GROUP BY status", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get events by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status EventStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.EventsByStatus[status] = count
	}

	if err := countInto("SELECT COUNT(DISTINCT user_id) FROM audit_events "+whereClause+" AND user_id IS NOT NULL", &stats.UniqueUsers, "unique users"); err != nil {
		return nil, err
	}
	if err := countInto("SELECT COUNT(DISTINCT ip_address) FROM audit_events "+whereClause+" AND ip_address IS NOT NULL", &stats.UniqueIPs, "unique IPs"); err != nil {
		return nil, err
	}
	if err := countInto("SELECT COUNT(*) FROM audit_events "+whereClause+" AND event_type LIKE 'auth.%' AND status = 'failure'", &stats.FailedAuthAttempts, "failed auth attempts"); err != nil {
		return nil, err
	}
	if err := countInto("SELECT COUNT(*) FROM audit_events "+whereClause+" AND status = 'denied'", &stats.AccessDenials, "access denials"); err != nil {
		return nil, err
	}

	return stats, nil
}

// Close is a no-op. The *sql.DB is owned by the caller and may be shared
// with other stores.
func (l *DBLogger) Close() error {
	return nil
}
