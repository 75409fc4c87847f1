// Package api assembles the CRM's HTTP surface: session endpoints backed
// by the identity provider, scoped record access for customers,
// escalations, announcements and products, store and floor context, and
// the audit trail.
//
// Every list handler resolves the caller's scope into SQL filters and
// re-filters the fetched rows, so the database query is an optimization,
// not the enforcement point. Every mutation consults the store access
// check and writes an audit event.
package api
