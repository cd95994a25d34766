package config

import (
	"time"

	"github.com/nylssoft/goadaptivefirewall/internal/subnet"
)

// Provides the configuration read from a JSON file.
//
// Init validates the file, sets up the rotating log file and logs the active settings.
// Malformed entries in localSubnets are skipped with a warning.
//
// Use NewConfig to create a new configuration object.
type Config interface {
	// Reads and validates the specified config file.
	Init(filename string) error
	// Reads the local subnets again from the config file used by Init.
	ReloadLocalSubnets() ([]subnet.Subnet, error)
	// Returns whether verbose logging is enabled.
	IsVerbose() bool
	// Returns the configured event export files.
	EventFilenames() []string
	// Returns the processing schedule.
	PollInterval() time.Duration
	// Returns the sqlite database file.
	DatabaseFilename() string
	// Returns how long processed events are kept in the database.
	DatabaseRetention() time.Duration
	// Returns the comment used to tag firewall rules.
	FirewallComment() string
	// Returns the block time for the first block.
	FirewallDelay() time.Duration
	// Returns the cap for the exponent of the block time.
	FirewallMaxFailures() int
	// Returns the destination port of firewall rules, 0 for all ports.
	FirewallPort() int
	// Returns the timeout for firewall commands.
	FirewallTimeout() time.Duration
	// Returns the number of logon failures within the window that leads to a block.
	Threshold() int
	// Returns the window in which logon failures are counted.
	Window() time.Duration
	// Returns the configured local subnets.
	LocalSubnets() []subnet.Subnet
	// Returns the redis address of a shared tracker, empty for an in-memory tracker.
	RedisAddr() string
	// Returns the key prefix used by the redis tracker.
	RedisKeyPrefix() string
	// Returns whether a failure matches any of the ignore rules.
	IsIgnoredFailure(ip string, user string, domain string, eventID int) bool
}

// Creates a new configuration object with defaults.
func NewConfig() Config {
	var cfg config_impl
	cfg.setDefaults()
	return &cfg
}
