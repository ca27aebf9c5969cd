package matcache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// retryRecord is a (first-attempt wall-time) pair for one still-failing
// entry.
type retryRecord struct {
	firstFailure time.Time
}

// retryLedger is the Retry Ledger: a keyed EntryID -> first-failure-time
// store with write-time expiry of maxRetryHours+1, so an entry deprecated
// upstream without ever succeeding or exhausting retries doesn't linger
// forever. Expiry is swept lazily on access, bounded by the total entry
// count, rather than run on a background ticker.
//
// escalated is a small auxiliary de-dup set: an entry escalated to FAILED
// that keeps failing gets a fresh ledger record on its next failure, and
// without this set it would be escalated (and saved) again each time a new
// RetryMinutes window elapses. While an id is in the set, further
// escalation is suppressed until a successful expansion removes it.
// Bounding it with an LRU keeps memory flat regardless of how flappy a
// source is.
type retryLedger struct {
	mu            sync.Mutex
	records       map[EntryID]retryRecord
	maxRetryHours int
	escalated     *lru.Cache[EntryID, time.Time]
}

func newRetryLedger(maxRetryHours int) *retryLedger {
	escalated, _ := lru.New[EntryID, time.Time](1024)
	return &retryLedger{
		records:       make(map[EntryID]retryRecord),
		maxRetryHours: maxRetryHours,
		escalated:     escalated,
	}
}

// firstFailureTime returns the stored first-failure time for id, inserting
// now if absent.
func (l *retryLedger) firstFailureTime(id EntryID, now time.Time) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.expireLocked(now)

	rec, ok := l.records[id]
	if !ok {
		rec = retryRecord{firstFailure: now}
		l.records[id] = rec
	}
	return rec.firstFailure
}

// clear removes any retry record for id (called on successful expansion or
// after escalation).
func (l *retryLedger) clear(id EntryID) {
	l.mu.Lock()
	delete(l.records, id)
	l.mu.Unlock()
}

func (l *retryLedger) expireLocked(now time.Time) {
	horizon := time.Duration(l.maxRetryHours+1) * time.Hour
	for id, rec := range l.records {
		if now.Sub(rec.firstFailure) > horizon {
			delete(l.records, id)
		}
	}
}

// markEscalated records that id was just escalated to FAILED.
func (l *retryLedger) markEscalated(id EntryID, now time.Time) {
	l.escalated.Add(id, now)
}

// recentlyEscalated reports whether id was escalated recently enough to
// still be tracked in the de-dup set.
func (l *retryLedger) recentlyEscalated(id EntryID) bool {
	_, ok := l.escalated.Get(id)
	return ok
}

// clearEscalated drops id from the de-dup set, called on successful
// expansion so a recovered entry isn't permanently barred from escalating
// again if it starts failing at some later, unrelated time.
func (l *retryLedger) clearEscalated(id EntryID) {
	l.escalated.Remove(id)
}
