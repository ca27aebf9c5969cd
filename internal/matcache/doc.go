// Package matcache holds the in-memory, concurrently-refreshed cache of
// expanded materialization descriptors consumed by a query planner.
//
// The cache keeps a single immutable snapshot (EntryID -> ExpandedDescriptor)
// behind a CAS cell, refreshed by diffing a provider's current set of
// materializations and external reflections against the snapshot, reusing
// whatever is unchanged and re-expanding whatever is new or stale. Entries
// that repeatedly fail to expand are escalated to a durable FAILED state
// once their retry window elapses, unless the failure is classified as the
// upstream source being down, in which case retries continue indefinitely.
package matcache
