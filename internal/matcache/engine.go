package matcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jordanallenlewis/matcache/pkg/logger"
)

// Refresh performs one full reconciliation pass (§4.3): fetch the
// provider's current materializations and external reflections, diff them
// against the snapshot, expand what's new or changed, reuse what isn't,
// and CAS-swap the result in. The init barrier is released when this call
// returns, success or failure — mirroring a finally-block countdown, not a
// success-only one.
func (c *Cache) Refresh(ctx context.Context) error {
	if !c.beginInvocation() {
		c.logger.Debug("refresh already in progress in this process, skipping concurrent invocation")
		return nil
	}
	defer c.endInvocation()

	start := time.Now()
	wasOpen := c.barrier.isOpen()
	defer func() {
		c.barrier.open()
		c.metrics.ObserveSync(time.Since(start).Seconds(), !wasOpen)
		c.recordStats(func(s *RefreshStats) {
			s.LastRefresh = start
			s.LastDuration = time.Since(start)
		})
	}()

	opts := loadOptions(c.options)
	if err := opts.Validate(); err != nil {
		c.recordStats(func(s *RefreshStats) { s.ConsecutiveFailures++ })
		return err
	}
	if !opts.CacheEnabled {
		return nil
	}

	refreshID := uuid.NewString()
	ctx = logger.WithRequestID(ctx, refreshID)
	log := logger.FromContext(ctx, c.logger)

	view, err := c.catalog.NewView(ctx)
	if err != nil {
		c.recordStats(func(s *RefreshStats) { s.ConsecutiveFailures++ })
		return fmt.Errorf("matcache: acquire catalog view: %w", err)
	}
	defer view.ClearCaches()

	mats, err := c.expander.ValidMaterializations(ctx)
	if err != nil {
		c.recordStats(func(s *RefreshStats) { s.ConsecutiveFailures++ })
		return fmt.Errorf("matcache: list materializations: %w", err)
	}
	refls, err := c.expander.ExternalReflections(ctx)
	if err != nil {
		c.recordStats(func(s *RefreshStats) { s.ConsecutiveFailures++ })
		return fmt.Errorf("matcache: list external reflections: %w", err)
	}

	var counts refreshCounts
	var finalLen int
	for {
		oldPtr := c.cell.load()
		old := *oldPtr
		updated := make(snapshot, len(old))
		counts = refreshCounts{}

		for _, m := range mats {
			c.reconcileInternal(ctx, m, old, updated, view, opts, log, &counts)
		}
		for _, r := range refls {
			c.reconcileExternal(ctx, r, old, updated, view, log, &counts)
		}

		if c.cell.compareAndSwap(oldPtr, &updated) {
			finalLen = len(updated)
			break
		}
		log.Warn("snapshot cas lost, rebuilding from latest snapshot")
	}

	c.metrics.SetEntries(finalLen)
	c.recordStats(func(s *RefreshStats) {
		s.ConsecutiveFailures = 0
		s.EntriesExpanded = counts.expanded
		s.EntriesReused = counts.reused
		s.EntriesFailed = counts.failed
	})
	log.Info("refresh complete",
		"entries", finalLen,
		"expanded", counts.expanded,
		"reused", counts.reused,
		"failed", counts.failed,
		"duration", time.Since(start))
	return nil
}

type refreshCounts struct {
	expanded int
	reused   int
	failed   int
}

// reconcileInternal implements §4.3 step 5 for one internal materialization.
func (c *Cache) reconcileInternal(
	ctx context.Context,
	m *Materialization,
	old snapshot,
	updated snapshot,
	view CatalogView,
	opts Options,
	log *slog.Logger,
	counts *refreshCounts,
) {
	existing, ok := old[m.ID]
	if ok && !schemaChanged(existing, m, view) {
		if existing.IsStale != m.IsStale || existing.Tag != m.SchemaVersionTag {
			updated[m.ID] = existing.withStalenessAndTag(m.IsStale, m.SchemaVersionTag)
		} else {
			updated[m.ID] = existing
		}
		counts.reused++
		return
	}

	expanded, err := c.expander.ExpandMaterialization(ctx, m, view)
	if err != nil {
		counts.failed++
		c.handleInternalFailure(ctx, m.ID, err, opts, log)
		return
	}
	if expanded == nil {
		// Absent: non-fatal drop, no retry record (§4.3.1/§6).
		return
	}

	updated[m.ID] = expanded
	c.ledger.clear(m.ID)
	c.ledger.clearEscalated(m.ID)
	counts.expanded++
}

// handleInternalFailure implements §4.3.1's failure path: count the error,
// consult the Retry Ledger, and escalate once RetryMinutes has elapsed for
// a non-source-down failure. Source-down failures retry indefinitely.
func (c *Cache) handleInternalFailure(ctx context.Context, id EntryID, err error, opts Options, log *slog.Logger) {
	reasonClass, sourceDown := classifyFailure(err)
	c.metrics.IncError(reasonClass, sourceDown)

	now := c.now()
	firstFailure := c.ledger.firstFailureTime(id, now)

	log.Warn("expansion failed",
		"entry_id", id,
		"reason_class", reasonClass,
		"source_down", sourceDown,
		"error", err)

	if sourceDown {
		return
	}

	elapsed := now.Sub(firstFailure)
	retryWindow := time.Duration(opts.RetryMinutes) * time.Minute
	if elapsed < retryWindow {
		return
	}

	if c.ledger.recentlyEscalated(id) {
		log.Debug("entry already escalated and still failing, suppressing re-save", "entry_id", id)
		return
	}

	c.escalate(ctx, id, err, reasonClass, sourceDown, log)
}

// escalate implements §4.7: load the raw form from the materialization
// store, mark it FAILED with a message derived from the expansion error,
// save it, swallowing a concurrent-modification failure, and clear the
// ledger entry regardless of how the save went.
func (c *Cache) escalate(ctx context.Context, id EntryID, cause error, reasonClass string, sourceDown bool, log *slog.Logger) {
	defer func() {
		c.metrics.IncRetryFailed(reasonClass, sourceDown)
		c.ledger.clear(id)
		c.ledger.markEscalated(id, c.now())
	}()

	m, err := c.store.Get(ctx, id)
	if err != nil {
		log.Error("failure escalation: load raw form failed", "entry_id", id, "error", err)
		return
	}
	if m == nil {
		return
	}

	m.State = MaterializationStateFailed
	m.FailureMessage = fmt.Sprintf("materialization expansion failed: %v", cause)

	if err := c.store.Save(ctx, m); err != nil {
		if errors.Is(err, ErrConcurrentModification) {
			log.Debug("failure escalation: concurrent save, a peer coordinator already escalated this entry", "entry_id", id)
			return
		}
		log.Error("failure escalation: save failed", "entry_id", id, "error", err)
		return
	}

	log.Info("materialization escalated to FAILED", "entry_id", id, "reason_class", reasonClass)
}

// reconcileExternal implements §4.3 step 6 for one external reflection.
func (c *Cache) reconcileExternal(
	ctx context.Context,
	r *ExternalReflection,
	old snapshot,
	updated snapshot,
	view CatalogView,
	log *slog.Logger,
	counts *refreshCounts,
) {
	existing, ok := old[r.ID]

	needExpand := !ok
	if ok {
		if status, err := c.status.ExternalReflectionStatus(ctx, r.ID); err == nil && status.ConfigStatus == ReflectionStatusOutOfSync {
			needExpand = true
		}
		if !needExpand && isExternalMetadataUpdated(existing, view) {
			needExpand = true
		}
	}

	if !needExpand {
		updated[r.ID] = existing
		counts.reused++
		return
	}

	raw, err := c.expander.Descriptor(ctx, r, view)
	if err != nil {
		counts.failed++
		reasonClass, sourceDown := classifyFailure(err)
		c.metrics.IncError(reasonClass, sourceDown)
		log.Warn("external descriptor fetch failed", "entry_id", r.ID, "error", err)
		return
	}
	if raw == nil {
		return // absent: silently drop, no retry tracking
	}

	expanded, err := c.expander.ExpandDescriptor(ctx, raw, view)
	if err != nil {
		counts.failed++
		reasonClass, sourceDown := classifyFailure(err)
		c.metrics.IncError(reasonClass, sourceDown)
		log.Warn("external expansion failed", "entry_id", r.ID, "error", err)
		return
	}
	if expanded == nil {
		return // absent: silently drop, no retry tracking
	}

	updated[r.ID] = expanded
	counts.expanded++
}
