// Package scope computes what data an authenticated principal may see and
// touch.
//
// # Overview
//
// A UserScope is a pure function of the principal's role and assignment:
// admins resolve to "all", store managers to "store" (filtered by their
// store_id), sales roles to "own" (filtered by their user id), and
// everything else to "none". Resolution is synchronous and never performs
// I/O, so it can run on every request without a round-trip.
//
// Two gates consume the scope:
//
//   - record-level: FilterByScope prunes in-memory row sets, QueryParams
//     turns a scope into server-side query parameters, and
//     CanPerformAction answers per-action questions (deny by default).
//   - write-level: ValidateStoreAccess guards every create/update/delete of
//     a store-scoped record and returns an {allowed, reason} result rather
//     than an error; denial is a normal outcome, not an exception.
//
// ResolveStoreIsolation is the narrower store-only variant used for
// store-owned entities. Both resolvers branch on auth.Classify, the single
// source of truth for role membership.
//
// # Ownership fields
//
// An "own"-scoped principal owns a record if any of user_id, assigned_to,
// or sales_representative matches their id. The OR across all three is
// deliberate: customers carry assigned_to, escalations carry user_id, and
// sales follow-ups carry sales_representative, and one helper serves all
// of them. Field names can be overridden per table via FieldNames.
package scope
