package engine

import (
	"net/netip"
	"time"

	"github.com/nylssoft/goadaptivefirewall/internal/event"
	"github.com/nylssoft/goadaptivefirewall/internal/tracker"
)

// Defaults used by the RDP brute force policy.
const (
	DefaultThreshold = 5
	DefaultWindow    = time.Hour
)

type Reason int

const (
	REASON_IMMEDIATE_BLOCK Reason = iota
	REASON_THRESHOLD_EXCEEDED
)

// Decision to block an address. The engine never executes it.
type BlockRequest struct {
	Address       netip.Addr
	Reason        Reason
	ObservedCount int
}

// Decides per security failure whether the remote address has to be blocked.
//
// Session failures are blocked immediately, logon failures once the number of failures
// of the address within the window reaches the threshold. Other failures are ignored.
type Engine interface {
	// Returns a block request and true if the address has to be blocked.
	// The address must be the canonical form of failure.Address.
	Decide(failure event.SecurityFailure, addr netip.Addr) (BlockRequest, bool, error)
}

// Creates a new engine that counts logon failures with the tracker.
// Non-positive threshold or window values are replaced by the defaults.
// The function now is used for failures without timestamp, time.Now is used if nil.
func NewEngine(tracker tracker.Tracker, threshold int, window time.Duration, now func() time.Time) Engine {
	var e engine_impl
	e.tracker = tracker
	e.threshold = threshold
	if e.threshold <= 0 {
		e.threshold = DefaultThreshold
	}
	e.window = window
	if e.window <= 0 {
		e.window = DefaultWindow
	}
	e.now = now
	if e.now == nil {
		e.now = time.Now
	}
	return &e
}

func (r Reason) String() string {
	switch r {
	case REASON_IMMEDIATE_BLOCK:
		return "immediate-block"
	case REASON_THRESHOLD_EXCEEDED:
		return "threshold-exceeded"
	}
	return "unknown"
}
