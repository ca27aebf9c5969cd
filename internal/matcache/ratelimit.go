package matcache

import "golang.org/x/time/rate"

// updateThrottle optionally bounds how often a hot producer loop may push
// direct Update calls, so a mis-behaving caller can't turn update into a
// refresh-rate expansion storm. It has no bearing on refresh correctness:
// a denied update is a no-op, and the next scheduled refresh still
// converges on the provider's current state.
type updateThrottle struct {
	limiter *rate.Limiter
}

// newUpdateThrottle builds a throttle allowing perSecond steady-state
// updates with a burst allowance of burst. A nil receiver (no throttle
// configured) always allows.
func newUpdateThrottle(perSecond float64, burst int) *updateThrottle {
	if perSecond <= 0 {
		return nil
	}
	return &updateThrottle{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (t *updateThrottle) allow() bool {
	if t == nil || t.limiter == nil {
		return true
	}
	return t.limiter.Allow()
}
