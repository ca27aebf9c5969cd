package matcache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrCacheTimeout is returned by GetAll (and treated as the outcome of a
// barrier wait interrupted by context cancellation) when the init barrier
// does not open within the configured timeout.
var ErrCacheTimeout = errors.New("matcache: timed out waiting for cache initialization")

// ErrConcurrentModification is the sentinel a MaterializationStore.Save
// implementation should wrap or return verbatim when a peer coordinator
// has already saved a newer version of the same materialization.
var ErrConcurrentModification = errors.New("matcache: concurrent modification")

// SourceError lets an Expander tag a failure as "the upstream data source
// is down" explicitly, bypassing string-based classification. Wrap any
// error with SourceError when the cause is known to be an outage rather
// than guessed from its message.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string { return "source down: " + e.Err.Error() }
func (e *SourceError) Unwrap() error { return e.Err }

// CacheError wraps a collaborator failure with the operation and entry it
// occurred against, for logging and for callers that want structured
// context rather than a bare error string.
type CacheError struct {
	Op      string
	EntryID EntryID
	Err     error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("matcache: %s %s: %v", e.Op, e.EntryID, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// ConfigError reports an invalid Options field, mirroring how this
// codebase's other config structs surface validation failures.
type ConfigError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("matcache: invalid option %q (value=%v): %s", e.Field, e.Value, e.Reason)
}

// classifyFailure classifies an expansion failure for metrics tagging and
// retry-escalation decisions. It never returns an error itself; err==nil
// yields ("", false).
func classifyFailure(err error) (reasonClass string, sourceDown bool) {
	if err == nil {
		return "", false
	}

	sourceDown = classifySourceDown(err)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout", sourceDown
	case errors.Is(err, context.Canceled):
		return "cancelled", sourceDown
	case sourceDown:
		return "source_down", true
	case isParseFailure(err):
		return "parse", false
	default:
		return "unknown", sourceDown
	}
}

// classifySourceDown identifies expansion failures caused by an outage of
// the upstream data source a materialization or reflection depends on.
// Such failures retry indefinitely rather than escalating to FAILED.
func classifySourceDown(err error) bool {
	if err == nil {
		return false
	}

	var se *SourceError
	if errors.As(err, &se) {
		return true
	}

	// context.DeadlineExceeded itself satisfies net.Error; a bare context
	// deadline is a timeout, not evidence that the source is down.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr != context.DeadlineExceeded {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, needle := range []string{
		"source unavailable",
		"source down",
		"connection refused",
		"no route to host",
		"upstream unreachable",
		"service unavailable",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// isParseFailure identifies expansion failures caused by malformed stored
// data (a corrupt plan blob, an undecodable schema) rather than an
// infrastructure problem. These are permanent in nature but still follow
// the normal retry-then-escalate path; the classification only affects the
// metrics tag.
func isParseFailure(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unmarshal") ||
		strings.Contains(msg, "decode") ||
		strings.Contains(msg, "invalid plan") ||
		strings.Contains(msg, "parse error")
}
