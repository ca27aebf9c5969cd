package matcache

// EntryID identifies either an internal materialization or an external
// reflection. Both namespaces share this id-space in the cache's snapshot
// map; collisions are assumed impossible by construction in the provider.
type EntryID string

// MaterializationState is the durable lifecycle state of a materialization
// as recorded by the MaterializationStore.
type MaterializationState string

// MaterializationStateFailed marks a materialization whose expansion has
// exhausted its retry budget and been escalated.
const MaterializationStateFailed MaterializationState = "FAILED"

// RawDescriptor is the stored, unexpanded form of a materialization or an
// external reflection's resolved descriptor: identifiers, target schema
// version tag, staleness flag, and an opaque serialized plan blob. It is
// immutable from the cache's point of view.
type RawDescriptor struct {
	ID               EntryID
	DatasetKey       string
	SchemaVersionTag string
	IsStale          bool
	PlanBlob         []byte
}

// Materialization is a provider-supplied internal materialization: its raw
// descriptor plus whatever durable state the MaterializationStore tracks
// for it (populated on load, mutated only through failure escalation).
type Materialization struct {
	RawDescriptor
	State          MaterializationState
	FailureMessage string
}

// ExternalReflection is a materialization whose physical data is managed
// outside the engine; its cache-relevant identity is just its id and the
// dataset key used to look up catalog metadata for change detection.
type ExternalReflection struct {
	ID         EntryID
	DatasetKey string
}

// ReflectionConfigStatus is the sync status the StatusService reports for
// an external reflection.
type ReflectionConfigStatus string

// ReflectionStatusOutOfSync marks an external reflection whose physical
// data no longer matches what the engine last observed.
const ReflectionStatusOutOfSync ReflectionConfigStatus = "OUT_OF_SYNC"

// ReflectionStatus is the StatusService's answer for a single reflection.
type ReflectionStatus struct {
	ConfigStatus ReflectionConfigStatus
}

// Schema is a minimal structural schema snapshot, compared by deep equality
// for change detection. Field order matters for equality, matching a
// deserialized schema's natural ordering.
type Schema struct {
	Fields []SchemaField
}

// SchemaField is a single column/field within a Schema.
type SchemaField struct {
	Name string
	Type string
}

// DatasetConfig is the catalog's current configuration for a dataset key:
// its live schema and its current version tag.
type DatasetConfig struct {
	Schema *Schema
	Tag    string
}

// ExpandedDescriptor is the computed artifact held in the cache snapshot: a
// reference to its source entry, the expanded plan tree, the schema
// snapshot captured at expansion time, a staleness flag, and a version tag.
//
// The staleness flag and tag are mutated only via copy-on-write:
// withStalenessAndTag returns a new ExpandedDescriptor wrapping the same Plan. Reuse across
// refreshes is keyed on this object's identity, not on a value comparison.
type ExpandedDescriptor struct {
	SourceID       EntryID
	DatasetKey     string
	Plan           PlanNode
	SchemaSnapshot *Schema
	IsStale        bool
	Tag            string
}

// withStalenessAndTag returns a copy of d with IsStale/Tag replaced,
// wrapping the same expanded plan. It never mutates d.
func (d *ExpandedDescriptor) withStalenessAndTag(isStale bool, tag string) *ExpandedDescriptor {
	cp := *d
	cp.IsStale = isStale
	cp.Tag = tag
	return &cp
}

// snapshot is the immutable mapping held by the Snapshot Cell. A *snapshot
// is never mutated after publication; every update builds a fresh map.
type snapshot = map[EntryID]*ExpandedDescriptor
