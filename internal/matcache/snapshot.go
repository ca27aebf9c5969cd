package matcache

import "sync/atomic"

// snapshotCell is the Snapshot Cell: a single shared cell holding an
// immutable map. It always stores a *snapshot so CompareAndSwap compares
// pointer identity rather than attempting (and panicking on) map equality.
//
// All writers follow a CAS-retry loop: load, compute an updated copy, CAS;
// on failure, retry. Because every refresh rebuilds its updated map from
// the provider's current view in a single pass, a losing retry naturally
// reconverges rather than compounding drift.
type snapshotCell struct {
	v atomic.Value
}

func newSnapshotCell() *snapshotCell {
	c := &snapshotCell{}
	empty := snapshot{}
	c.v.Store(&empty)
	return c
}

// load returns the current snapshot. The returned map is never mutated by
// the cache; callers must treat it as read-only.
func (c *snapshotCell) load() *snapshot {
	return c.v.Load().(*snapshot)
}

// compareAndSwap atomically replaces the cell's contents iff they still
// equal old by reference.
func (c *snapshotCell) compareAndSwap(old, updated *snapshot) bool {
	return c.v.CompareAndSwap(old, updated)
}
