package matcache

import "context"

// CatalogView is a per-refresh view acquired from CatalogService. It is
// exclusive to the refresh invocation that acquired it and must be
// released (ClearCaches) exactly once, whether the refresh succeeds or
// fails.
type CatalogView interface {
	// DatasetConfig returns the current configuration for a dataset key,
	// or false if the dataset is no longer known to the catalog.
	DatasetConfig(key string) (*DatasetConfig, bool)

	// ClearCaches releases any per-dataset caches this view accumulated.
	ClearCaches()
}

// CatalogService yields a fresh CatalogView for each refresh pass.
type CatalogService interface {
	NewView(ctx context.Context) (CatalogView, error)
}

// StatusService reports external reflections' sync status against their
// physical data.
type StatusService interface {
	ExternalReflectionStatus(ctx context.Context, id EntryID) (ReflectionStatus, error)
}

// MaterializationStore is the durable store of record for materializations,
// used only for failure escalation (§4.7). Save may fail with
// ErrConcurrentModification when a peer coordinator already escalated the
// same entry.
type MaterializationStore interface {
	Get(ctx context.Context, id EntryID) (*Materialization, error)
	Save(ctx context.Context, m *Materialization) error
}

// Expander turns stored descriptors into expanded plans and enumerates the
// provider's current universe of materializations and external reflections.
//
// ExpandMaterialization and ExpandDescriptor may return (nil, nil) to mean
// "absent": a non-fatal result that the caller must silently drop, as
// distinct from a non-nil error, which is retryable unless classified
// otherwise. Descriptor follows the same absent convention.
type Expander interface {
	ValidMaterializations(ctx context.Context) ([]*Materialization, error)
	ExternalReflections(ctx context.Context) ([]*ExternalReflection, error)

	Descriptor(ctx context.Context, r *ExternalReflection, view CatalogView) (*RawDescriptor, error)

	ExpandMaterialization(ctx context.Context, m *Materialization, view CatalogView) (*ExpandedDescriptor, error)
	ExpandDescriptor(ctx context.Context, d *RawDescriptor, view CatalogView) (*ExpandedDescriptor, error)
}

// Recognized OptionManager option names (§6).
const (
	OptionCacheEnabled      = "cache-enabled"
	OptionInitTimeoutSeconds = "init-timeout-seconds"
	OptionRetryMinutes      = "retry-minutes"
	OptionMaxRetryHours     = "max-retry-hours"
)

// OptionManager supplies the cache's tunables. Implementations are free to
// source these from any config backend; the cache only ever reads the four
// option names above.
type OptionManager interface {
	BoolOption(name string) bool
	IntOption(name string) int
}

// Metrics is the cache's metrics sink. PrometheusMetrics (metrics.go) is
// the concrete implementation this module wires in; callers may supply
// their own for testing or for a different metrics backend.
type Metrics interface {
	IncError(reasonClass string, sourceDown bool)
	IncRetryFailed(reasonClass string, sourceDown bool)
	ObserveSync(seconds float64, initial bool)
	SetEntries(n int)
}
