// Package audit provides the audit trail for the CRM: who did what,
// from where, and with what outcome.
//
// Events cover authentication, authorization decisions, data mutations,
// store-context changes and sensitive reads. Loggers write to PostgreSQL
// (DBLogger), append-only JSON files (FileLogger), or both at once
// (MultiLogger). DBStore adds search, statistics, export (JSON, CSV,
// NDJSON) and retention cleanup on top of the database logger, and
// Handlers exposes those over HTTP.
//
// The HTTP middleware records mutations, failures and sensitive reads
// automatically; handlers record domain-level events through the
// context helpers (LogSuccess, LogFailure, LogDenied). An audit write
// failure never fails the request that produced it.
package audit
