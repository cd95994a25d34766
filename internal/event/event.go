package event

import (
	"errors"
	"time"
)

// Event type codes of the watched event logs.
const (
	LogonFailureID   = 4625 // Security log, an account failed to log on
	SessionFailureID = 140  // RemoteDesktopServices-RdpCoreTS, connection failed
)

type Kind int

const (
	KIND_UNKNOWN Kind = iota
	KIND_LOGON_FAILURE
	KIND_SESSION_FAILURE
)

var ErrMissingEventRecord = errors.New("missing event record")

// A raw event delivered by an event source.
type Record interface {
	// Returns the event type code.
	ID() int
	// Returns the creation time declared by the event or nil if absent.
	TimeCreated() *time.Time
	// Returns the text of the named data field.
	Field(name string) (string, bool)
}

// Canonical failure extracted from a raw event.
// Empty strings and a nil timestamp mean that the value was not present in the event.
type SecurityFailure struct {
	Address   string
	Timestamp *time.Time
	Username  string
	Domain    string
	EventID   int
	Kind      Kind
}

// Maps a raw event into a security failure.
//
// Logon failures provide address, user name and domain, session failures only the address.
// Events with other type codes result in a failure without any fields.
// Fails with ErrMissingEventRecord if no record is given.
func Parse(rec Record) (SecurityFailure, error) {
	if isNil(rec) {
		return SecurityFailure{}, ErrMissingEventRecord
	}
	failure := SecurityFailure{EventID: rec.ID(), Timestamp: rec.TimeCreated()}
	switch rec.ID() {
	case LogonFailureID:
		failure.Kind = KIND_LOGON_FAILURE
		failure.Address, _ = rec.Field("IpAddress")
		failure.Username, _ = rec.Field("TargetUserName")
		failure.Domain, _ = rec.Field("TargetDomainName")
	case SessionFailureID:
		failure.Kind = KIND_SESSION_FAILURE
		failure.Address, _ = rec.Field("IPString")
	}
	return failure, nil
}

func (k Kind) String() string {
	switch k {
	case KIND_LOGON_FAILURE:
		return "logon-failure"
	case KIND_SESSION_FAILURE:
		return "session-failure"
	}
	return "unknown"
}

func isNil(rec Record) bool {
	switch r := rec.(type) {
	case nil:
		return true
	case *XMLRecord:
		return r == nil
	case *Fields:
		return r == nil
	}
	return false
}
