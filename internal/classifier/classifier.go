package classifier

import (
	"github.com/nylssoft/goadaptivefirewall/internal/subnet"
)

// Decides whether an address is local and therefore exempt from blocking.
//
// An address is local if it is part of a permanent baseline range (link-local addresses)
// or of any configured subnet.
//
// The configured subnets can be replaced at any time with Reload.
// Classification running concurrently sees either the old or the new list, never a mix.
//
// Use NewClassifier to create a new classifier.
type Classifier interface {
	// Returns whether the address is local.
	// Fails with subnet.ErrInvalidAddress if the address cannot be parsed.
	IsLocal(address string) (bool, error)
	// Replaces the configured subnets.
	Reload(subnets []subnet.Subnet)
	// Returns a copy of the configured subnets without the baseline ranges.
	Subnets() []subnet.Subnet
}

// Creates a new classifier for the specified configured subnets.
func NewClassifier(subnets []subnet.Subnet) Classifier {
	var c classifier_impl
	c.Reload(subnets)
	return &c
}
