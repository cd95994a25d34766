package tracker

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// Tracks failure timestamps per address within a sliding time window.
//
// Updates for the same address are linearizable, updates for different addresses
// do not block each other.
//
// Use NewTracker for an in-memory tracker or NewRedisTracker to share the failures
// between several processes.
type Tracker interface {
	// Removes all timestamps older than now - window for the address,
	// appends the timestamp and returns the number of tracked timestamps.
	RecordAndCount(address string, timestamp time.Time, window time.Duration) (int, error)
	// Returns the number of timestamps of the address within the window.
	Count(address string, window time.Duration) (int, error)
	// Removes timestamps older than now - window for all addresses
	// and drops addresses without remaining timestamps.
	// Returns the number of dropped addresses.
	Compact(window time.Duration) (int, error)
}

// Creates a new in-memory tracker.
// The function now returns the current time, time.Now is used if nil.
func NewTracker(now func() time.Time) Tracker {
	var t memory_impl
	t.now = nowOrDefault(now)
	t.entries = make(map[string]*entry)
	return &t
}

// Creates a new tracker that stores the failures as sorted sets in redis.
// Keys are built from the prefix and the address.
func NewRedisTracker(client redis.UniversalClient, prefix string, now func() time.Time) Tracker {
	var t redis_impl
	t.client = client
	t.prefix = prefix
	t.now = nowOrDefault(now)
	t.instance = time.Now().UnixNano()
	return &t
}

func nowOrDefault(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}
