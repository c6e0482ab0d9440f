// Package staleness implements the Staleness Controller (spec §4.5):
// the fresh/stale-acceptable/expired/discard state machine applied to
// a retrieved L2 candidate, plus background-refresh scheduling with
// exactly one refresh in flight per L1 key.
package staleness

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cacheforge/semcache/cacheentry"
)

// Verdict is the state machine's outcome for one candidate.
type Verdict int

const (
	// Discard means the candidate must not be served — it is either
	// version-mismatched or past max_stale.
	Discard Verdict = iota
	// Fresh means age <= ttl.
	Fresh
	// StaleAcceptable means ttl < age <= ttl+tol: serve, and schedule
	// a background refresh if enabled.
	StaleAcceptable
	// ExpiredServable means ttl+tol < age <= max_stale and
	// stale-while-revalidate is active: serve, and schedule a refresh.
	ExpiredServable
)

// Reason classifies why a Discard verdict was reached, for metrics
// (stale_refused vs version_mismatch are distinct counters in spec
// §4.6.5).
type Reason int

const (
	ReasonNone Reason = iota
	ReasonVersionMismatch
	ReasonStaleRefused
)

// Params bundles the config-derived thresholds the state machine
// needs (spec §4.5: "config (ttl, tol, max_stale, version)").
type Params struct {
	TTL                     time.Duration
	Tolerance               time.Duration
	MaxStale                time.Duration
	Version                 string
	EnableVersionChecking   bool
	EnableStaleRevalidation bool
	HasRefreshCallback      bool
}

// Evaluate applies the spec §4.5 precondition table to entry as of
// now.
func Evaluate(entry *cacheentry.Entry, now time.Time, p Params) (Verdict, Reason) {
	if p.EnableVersionChecking && entry.Version != p.Version {
		return Discard, ReasonVersionMismatch
	}

	age := entry.Age(now)
	switch {
	case age <= p.TTL:
		return Fresh, ReasonNone
	case age <= p.TTL+p.Tolerance:
		return StaleAcceptable, ReasonNone
	case age <= p.MaxStale:
		if p.EnableStaleRevalidation && p.HasRefreshCallback {
			return ExpiredServable, ReasonNone
		}
		return Discard, ReasonStaleRefused
	default:
		return Discard, ReasonStaleRefused
	}
}

// ShouldRefresh reports whether verdict should trigger a background
// refresh, per spec §4.5's "if enable_stale_while_revalidate and
// refresh callback is present, schedule a background refresh".
func ShouldRefresh(v Verdict, p Params) bool {
	if !p.EnableStaleRevalidation || !p.HasRefreshCallback {
		return false
	}
	return v == StaleAcceptable || v == ExpiredServable
}

// RefreshRequest describes the prompt+scope a stale hit was served
// for, passed to the refresh callback (spec §4.5).
type RefreshRequest struct {
	Prompt string
	UserID string
	Scope  cacheentry.Scope
}

// RefreshFunc regenerates a response for a stale cache hit. Errors are
// swallowed by the Scheduler — a failed refresh simply leaves the
// stale entry in place until it next expires.
type RefreshFunc func(ctx context.Context, req RefreshRequest) (response string, err error)

// StoreFunc persists a refreshed response, replacing the L2 record
// and populating L1, preserving the original tags (spec §4.5).
type StoreFunc func(ctx context.Context, req RefreshRequest, response string, tags []string) error

// Scheduler dedups concurrent refreshes of the same l1_key using
// singleflight, so "additional requests that hit the same stale entry
// observe the in-flight flag and do not re-enqueue" (spec §4.5).
// Background refresh ignores caller cancellation (spec §5), so it
// runs against context.Background() rather than the triggering
// request's context.
type Scheduler struct {
	group   singleflight.Group
	refresh RefreshFunc
	store   StoreFunc
}

// NewScheduler builds a refresh Scheduler. refresh may be nil, in
// which case Trigger is a no-op — this is how "refresh callback
// present" is represented at the Params level via HasRefreshCallback.
func NewScheduler(refresh RefreshFunc, store StoreFunc) *Scheduler {
	return &Scheduler{refresh: refresh, store: store}
}

// Trigger schedules a background refresh for l1Key if one is not
// already in flight. It returns immediately; the refresh itself runs
// on its own goroutine.
func (s *Scheduler) Trigger(l1Key string, req RefreshRequest, tags []string) {
	if s == nil || s.refresh == nil {
		return
	}
	s.group.DoChan(l1Key, func() (interface{}, error) {
		ctx := context.Background()
		response, err := s.refresh(ctx, req)
		if err != nil {
			return nil, err
		}
		return nil, s.store(ctx, req, response, tags)
	})
}
