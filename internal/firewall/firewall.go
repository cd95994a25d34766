package firewall

import (
	"time"

	"github.com/nylssoft/goadaptivefirewall/internal/executer"
)

// Blocks remote addresses with REJECT rules of the uncomplicated firewall (ufw).
//
// Each rule has an expiration date. The rule expires after the configured delay if the
// address is blocked for the first time. The block time doubles with every repeated block
// up to delay * (1 << maxFailures).
//
// All rules are tagged with the configured comment, rules without the comment are never touched.
// Calls are safe for concurrent use, firewall commands are executed one at a time.
//
// Requires sudo permissions.
//
// Use NewFirewall to create a new firewall object.
type Firewall interface {
	// Reads all blocked addresses from REJECT rules tagged with the comment.
	Init()
	// Returns whether the address is blocked by a firewall rule.
	IsBlocked(ip string) bool
	// Adds a REJECT rule for the address unless it is already blocked.
	// Returns false if the rule could not be added.
	Block(ip string) bool
	// Deletes the REJECT rule for the address.
	Release(ip string)
	// Deletes all REJECT rules created for blocked addresses.
	ReleaseAll()
	// Deletes all REJECT rules that are expired.
	ReleaseIfExpired()
	// Returns the blocked addresses.
	Blocked() []string
}

// Options of the firewall.
type Options struct {
	// Comment used to tag the rules.
	Comment string
	// Block time used for the first block.
	Delay time.Duration
	// Cap for the exponent of the block time.
	MaxFailures int
	// Destination port of the rules, all ports if 0.
	Port int
	// Returns the current time, time.Now if nil.
	Now func() time.Time
}

// Creates a new firewall object that executes ufw commands with the executer.
func NewFirewall(executer executer.Executer, options Options) Firewall {
	var fw firewall_impl
	fw.executer = executer
	fw.comment = options.Comment
	fw.delay = options.Delay
	fw.maxFailures = options.MaxFailures
	fw.port = options.Port
	fw.now = options.Now
	if fw.now == nil {
		fw.now = time.Now
	}
	fw.ips = make(map[string]info)
	return &fw
}
