package engine

import (
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/nylssoft/goadaptivefirewall/internal/event"
	"github.com/nylssoft/goadaptivefirewall/internal/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingTracker struct {
	tracker.Tracker
}

func (failingTracker) RecordAndCount(string, time.Time, time.Duration) (int, error) {
	return 0, errors.New("unavailable")
}

func TestSessionFailureBlocksImmediately(t *testing.T) {
	tr := tracker.NewTracker(nil)
	e := NewEngine(tr, 5, time.Hour, nil)
	addr := netip.MustParseAddr("185.143.223.77")
	req, ok, err := e.Decide(event.SecurityFailure{Kind: event.KIND_SESSION_FAILURE, Address: "185.143.223.77"}, addr)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, BlockRequest{Address: addr, Reason: REASON_IMMEDIATE_BLOCK}, req)
	// the counter is not consulted
	cnt, err := tr.Count(addr.String(), time.Hour)
	assert.NoError(t, err)
	assert.Equal(t, 0, cnt)
}

func TestLogonFailureThreshold(t *testing.T) {
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	now := start
	clock := func() time.Time { return now }
	e := NewEngine(tracker.NewTracker(clock), 5, time.Hour, clock)
	addr := netip.MustParseAddr("192.168.9.9")
	decide := func(offset time.Duration) (BlockRequest, bool) {
		now = start.Add(offset)
		ts := now
		req, ok, err := e.Decide(event.SecurityFailure{Kind: event.KIND_LOGON_FAILURE, Address: addr.String(), Timestamp: &ts}, addr)
		require.NoError(t, err)
		return req, ok
	}
	for i := range 4 {
		_, ok := decide(time.Duration(i) * time.Minute)
		assert.False(t, ok)
	}
	req, ok := decide(30 * time.Minute)
	assert.True(t, ok)
	assert.Equal(t, BlockRequest{Address: addr, Reason: REASON_THRESHOLD_EXCEEDED, ObservedCount: 5}, req)

	// the first four failures left the window
	_, ok = decide(64 * time.Minute)
	assert.False(t, ok)
}

func TestLogonFailureWithoutTimestamp(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	tr := tracker.NewTracker(clock)
	e := NewEngine(tr, 2, time.Hour, clock)
	addr := netip.MustParseAddr("2001:db8::7")
	_, ok, err := e.Decide(event.SecurityFailure{Kind: event.KIND_LOGON_FAILURE}, addr)
	assert.NoError(t, err)
	assert.False(t, ok)
	req, ok, err := e.Decide(event.SecurityFailure{Kind: event.KIND_LOGON_FAILURE}, addr)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, req.ObservedCount)
}

func TestUnknownKind(t *testing.T) {
	e := NewEngine(failingTracker{}, 1, time.Hour, nil)
	_, ok, err := e.Decide(event.SecurityFailure{Kind: event.KIND_UNKNOWN}, netip.MustParseAddr("192.0.2.1"))
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestTrackerError(t *testing.T) {
	e := NewEngine(failingTracker{}, 1, time.Hour, nil)
	_, ok, err := e.Decide(event.SecurityFailure{Kind: event.KIND_LOGON_FAILURE}, netip.MustParseAddr("192.0.2.1"))
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestDefaults(t *testing.T) {
	e := NewEngine(tracker.NewTracker(nil), 0, 0, nil).(*engine_impl)
	assert.Equal(t, DefaultThreshold, e.threshold)
	assert.Equal(t, DefaultWindow, e.window)
	assert.Equal(t, "threshold-exceeded", REASON_THRESHOLD_EXCEEDED.String())
	assert.Equal(t, "immediate-block", REASON_IMMEDIATE_BLOCK.String())
}
