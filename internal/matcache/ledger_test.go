package matcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryLedger_FirstFailureTimeIsStable(t *testing.T) {
	l := newRetryLedger(24)
	t0 := time.Unix(1000, 0)
	first := l.firstFailureTime("a", t0)
	assert.Equal(t, t0, first)

	t1 := t0.Add(5 * time.Minute)
	again := l.firstFailureTime("a", t1)
	assert.Equal(t, t0, again, "first-failure time must not move on subsequent failures")
}

func TestRetryLedger_ClearRemovesRecord(t *testing.T) {
	l := newRetryLedger(24)
	t0 := time.Unix(1000, 0)
	l.firstFailureTime("a", t0)
	l.clear("a")

	t1 := t0.Add(time.Minute)
	again := l.firstFailureTime("a", t1)
	assert.Equal(t, t1, again, "after clear, the next failure starts a fresh window")
}

func TestRetryLedger_ExpiresAfterMaxRetryHoursPlusOne(t *testing.T) {
	l := newRetryLedger(1) // MaxRetryHours=1 -> expiry horizon = 2h
	t0 := time.Unix(0, 0)
	l.firstFailureTime("a", t0)

	withinHorizon := t0.Add(119 * time.Minute)
	l.firstFailureTime("b", withinHorizon) // triggers expiry sweep
	l.mu.Lock()
	_, stillThere := l.records["a"]
	l.mu.Unlock()
	assert.True(t, stillThere)

	pastHorizon := t0.Add(121 * time.Minute)
	l.firstFailureTime("c", pastHorizon)
	l.mu.Lock()
	_, expired := l.records["a"]
	l.mu.Unlock()
	assert.False(t, expired, "record must expire once MaxRetryHours+1 has elapsed since the write")
}

func TestRetryLedger_EscalationDedup(t *testing.T) {
	l := newRetryLedger(24)
	assert.False(t, l.recentlyEscalated("a"))
	l.markEscalated("a", time.Now())
	assert.True(t, l.recentlyEscalated("a"))
}
