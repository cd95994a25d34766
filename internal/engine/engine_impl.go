package engine

import (
	"net/netip"
	"time"

	"github.com/nylssoft/goadaptivefirewall/internal/event"
	"github.com/nylssoft/goadaptivefirewall/internal/tracker"
)

type engine_impl struct {
	tracker   tracker.Tracker
	threshold int
	window    time.Duration
	now       func() time.Time
}

func (e *engine_impl) Decide(failure event.SecurityFailure, addr netip.Addr) (BlockRequest, bool, error) {
	switch failure.Kind {
	case event.KIND_SESSION_FAILURE:
		return BlockRequest{Address: addr, Reason: REASON_IMMEDIATE_BLOCK}, true, nil
	case event.KIND_LOGON_FAILURE:
		timestamp := e.now()
		if failure.Timestamp != nil {
			timestamp = *failure.Timestamp
		}
		cnt, err := e.tracker.RecordAndCount(addr.String(), timestamp, e.window)
		if err != nil {
			return BlockRequest{}, false, err
		}
		if cnt >= e.threshold {
			return BlockRequest{Address: addr, Reason: REASON_THRESHOLD_EXCEEDED, ObservedCount: cnt}, true, nil
		}
	}
	return BlockRequest{}, false, nil
}
