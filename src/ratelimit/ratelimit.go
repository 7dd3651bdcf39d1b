// Package ratelimit tracks server-imposed REST rate limits.
//
// The limiter is pure bookkeeping: it maps a bucket key to the instant before which
// requests in that bucket are known to be rejected. It performs no I/O and never
// sleeps; callers consult it before a request and record new limits after a 429.
package ratelimit

import (
	"sync"
	"time"
)

// GlobalBucket is the key under which a global limit is stored. While it is active
// it is consulted instead of any per-route bucket.
const GlobalBucket = "global"

// Limiter maps bucket keys to retry-not-before instants. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]time.Time
	now     func() time.Time
}

// New creates an empty Limiter using the wall clock.
func New() *Limiter {
	return NewWithClock(time.Now)
}

// NewWithClock creates an empty Limiter that reads time from now.
func NewWithClock(now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		buckets: make(map[string]time.Time),
		now:     now,
	}
}

// IsLimited reports whether requests in bucket must be refused right now.
func (l *Limiter) IsLimited(bucket string) bool {
	limited, _, _ := l.Check(bucket)
	return limited
}

// Check is IsLimited with details: the key that is limiting (bucket or GlobalBucket)
// and how long until it expires. Expired entries are evicted as they are found.
func (l *Limiter) Check(bucket string) (limited bool, key string, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if until, ok := l.active(GlobalBucket, now); ok {
		return true, GlobalBucket, until.Sub(now)
	}
	if until, ok := l.active(bucket, now); ok {
		return true, bucket, until.Sub(now)
	}
	return false, "", 0
}

// active must be called with mu held.
func (l *Limiter) active(bucket string, now time.Time) (time.Time, bool) {
	until, ok := l.buckets[bucket]
	if !ok {
		return time.Time{}, false
	}
	if now.Before(until) {
		return until, true
	}
	delete(l.buckets, bucket)
	return time.Time{}, false
}

// SetLimited records that bucket is limited for retryAfter from now, replacing any
// earlier entry. Non-positive durations clear the bucket.
func (l *Limiter) SetLimited(bucket string, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if retryAfter <= 0 {
		delete(l.buckets, bucket)
		return
	}
	l.buckets[bucket] = l.now().Add(retryAfter)
}

// SetLimitedSeconds is SetLimited for the fractional seconds the API reports.
func (l *Limiter) SetLimitedSeconds(bucket string, seconds float64) {
	l.SetLimited(bucket, time.Duration(seconds*float64(time.Second)))
}

// Len returns the number of stored entries, expired or not.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
