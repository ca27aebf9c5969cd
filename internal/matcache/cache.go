package matcache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// updateBarrierCeiling is the fixed wait budget update() applies to the
// init barrier, distinct from the configurable InitTimeoutSeconds getAll()
// uses, so a direct producer update can never race the cold-start CAS
// loop indefinitely but also never blocks as long as a misconfigured
// InitTimeoutSeconds might.
const updateBarrierCeiling = 10 * time.Minute

// RefreshStats is a snapshot of the Refresh Engine's bookkeeping from its
// most recently completed pass. Not part of the spec's public surface, but
// a low-risk operability addition with no bearing on any cache invariant.
type RefreshStats struct {
	LastRefresh         time.Time
	LastDuration        time.Duration
	ConsecutiveFailures int
	EntriesExpanded     int
	EntriesReused       int
	EntriesFailed       int
}

// Cache is the Materialization Cache: Snapshot Cell + Retry Ledger +
// Refresh Engine + Init Barrier wired together behind the public surface
// spec'd in §6 (refresh, reset, get, getAll, contains, invalidate, update,
// isInitialized).
type Cache struct {
	expander Expander
	catalog  CatalogService
	status   StatusService
	store    MaterializationStore
	options  OptionManager
	metrics  Metrics
	logger   *slog.Logger
	throttle *updateThrottle

	cell    *snapshotCell
	ledger  *retryLedger
	barrier *initBarrier

	// now is the clock used for retry-ledger bookkeeping. Defaults to
	// time.Now; overridable in tests so RetryMinutes-elapsed logic can be
	// exercised without sleeping real wall-clock minutes.
	now func() time.Time

	invokeMu    sync.Mutex
	refreshing  bool

	statsMu sync.RWMutex
	stats   RefreshStats
}

// Deps groups the Cache's external collaborators (§6). Metrics and Logger
// may be left nil; Cache supplies safe defaults (a no-op-equivalent nil
// *PrometheusMetrics and slog.Default()).
type Deps struct {
	Expander Expander
	Catalog  CatalogService
	Status   StatusService
	Store    MaterializationStore
	Options  OptionManager
	Metrics  Metrics
	Logger   *slog.Logger

	// UpdatesPerSecond/UpdateBurst, if UpdatesPerSecond > 0, throttle the
	// direct Update path (see ratelimit.go). Zero disables throttling.
	UpdatesPerSecond float64
	UpdateBurst      int
}

// New constructs a Cache with an empty snapshot and a closed init barrier.
func New(deps Deps) *Cache {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxRetryHours := loadOptions(deps.Options).MaxRetryHours
	if maxRetryHours <= 0 {
		maxRetryHours = 1
	}

	// deps.Metrics is the Metrics interface; an explicit nil (as opposed to
	// a typed nil *PrometheusMetrics) is a true nil interface value, and
	// calling a method on it panics. Fall back to a typed nil
	// *PrometheusMetrics, whose methods are nil-receiver safe.
	metrics := deps.Metrics
	if metrics == nil {
		metrics = (*PrometheusMetrics)(nil)
	}

	return &Cache{
		expander: deps.Expander,
		catalog:  deps.Catalog,
		status:   deps.Status,
		store:    deps.Store,
		options:  deps.Options,
		metrics:  metrics,
		logger:   logger,
		throttle: newUpdateThrottle(deps.UpdatesPerSecond, deps.UpdateBurst),
		cell:     newSnapshotCell(),
		ledger:   newRetryLedger(maxRetryHours),
		barrier:  newInitBarrier(),
		now:      time.Now,
	}
}

// Get returns the descriptor for id from the current snapshot, or false if
// absent. Never blocks.
func (c *Cache) Get(id EntryID) (*ExpandedDescriptor, bool) {
	snap := *c.cell.load()
	d, ok := snap[id]
	return d, ok
}

// Contains is a membership test against the current snapshot. Never
// blocks.
func (c *Cache) Contains(id EntryID) bool {
	_, ok := c.Get(id)
	return ok
}

// GetAll waits on the init barrier up to InitTimeoutSeconds, then returns
// every expanded descriptor in the current snapshot. On timeout it returns
// ErrCacheTimeout. When cache-enabled is false, the barrier is treated as
// already open and this never blocks or fails, regardless of whether a
// refresh has ever run.
func (c *Cache) GetAll(ctx context.Context) ([]*ExpandedDescriptor, error) {
	opts := loadOptions(c.options)
	if opts.CacheEnabled {
		timeout := time.Duration(opts.InitTimeoutSeconds) * time.Second
		if err := c.barrier.wait(ctx, timeout); err != nil {
			return nil, err
		}
	}

	snap := *c.cell.load()
	out := make([]*ExpandedDescriptor, 0, len(snap))
	for _, d := range snap {
		out = append(out, d)
	}
	return out, nil
}

// Invalidate removes id from the snapshot via a CAS-retry loop. If id is
// already absent it returns immediately without looping. It does not touch
// the Retry Ledger.
func (c *Cache) Invalidate(id EntryID) {
	for {
		old := c.cell.load()
		if _, ok := (*old)[id]; !ok {
			return
		}

		updated := make(snapshot, len(*old))
		for k, v := range *old {
			if k == id {
				continue
			}
			updated[k] = v
		}

		if c.cell.compareAndSwap(old, &updated) {
			c.metrics.SetEntries(len(updated))
			return
		}
	}
}

// Update blocks on the init barrier up to a fixed 10-minute ceiling (to
// avoid racing the cold-start CAS loop, not to wait indefinitely), expands
// m against a fresh catalog view outside any CAS loop, and CAS-inserts the
// result if expansion succeeded. Expansion failures propagate to the
// caller; an absent expansion result is a no-op.
func (c *Cache) Update(ctx context.Context, m *Materialization) error {
	_ = c.barrier.wait(ctx, updateBarrierCeiling) // best-effort: proceed regardless, per §5

	if !c.throttle.allow() {
		return nil
	}

	view, err := c.catalog.NewView(ctx)
	if err != nil {
		return &CacheError{Op: "update.NewView", EntryID: m.ID, Err: err}
	}
	defer view.ClearCaches()

	expanded, err := c.expander.ExpandMaterialization(ctx, m, view)
	if err != nil {
		return &CacheError{Op: "update.ExpandMaterialization", EntryID: m.ID, Err: err}
	}
	if expanded == nil {
		return nil
	}

	for {
		old := c.cell.load()
		updated := make(snapshot, len(*old)+1)
		for k, v := range *old {
			updated[k] = v
		}
		updated[m.ID] = expanded

		if c.cell.compareAndSwap(old, &updated) {
			c.metrics.SetEntries(len(updated))
			return nil
		}
	}
}

// IsInitialized reports whether cache-enabled is false or at least one
// refresh has returned.
func (c *Cache) IsInitialized() bool {
	if !loadOptions(c.options).CacheEnabled {
		return true
	}
	return c.barrier.isOpen()
}

// Reset CAS-swaps the snapshot to empty. It does not touch the Retry
// Ledger and does not re-close the init barrier (open question #3,
// invariant 5).
func (c *Cache) Reset() {
	empty := snapshot{}
	for {
		old := c.cell.load()
		if c.cell.compareAndSwap(old, &empty) {
			c.metrics.SetEntries(0)
			return
		}
	}
}

// LastRefreshStats returns a copy of the bookkeeping from the most
// recently completed refresh pass.
func (c *Cache) LastRefreshStats() RefreshStats {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.stats
}

func (c *Cache) recordStats(mutate func(*RefreshStats)) {
	c.statsMu.Lock()
	mutate(&c.stats)
	c.statsMu.Unlock()
}

// beginInvocation guards against a refresh being invoked while another is
// already running in this process (spec §5's "debug path" — production
// scheduling is assumed single-owner; correctness never depends on this
// guard, only on Snapshot Cell CAS).
func (c *Cache) beginInvocation() bool {
	c.invokeMu.Lock()
	defer c.invokeMu.Unlock()
	if c.refreshing {
		return false
	}
	c.refreshing = true
	return true
}

func (c *Cache) endInvocation() {
	c.invokeMu.Lock()
	c.refreshing = false
	c.invokeMu.Unlock()
}
