package subnet

import (
	"fmt"
	"strconv"
	"strings"
)

// Skipped describes a configuration entry that could not be turned into a subnet.
type Skipped struct {
	Entry string
	Err   error
}

// Parses a comma separated list of address/maskbits entries.
// Invalid entries do not stop the parsing, they are returned as skipped entries.
func ParseSubnets(setting string) ([]Subnet, []Skipped) {
	var subnets []Subnet
	var skipped []Skipped
	if len(strings.TrimSpace(setting)) == 0 {
		return subnets, skipped
	}
	for entry := range strings.SplitSeq(setting, ",") {
		s, err := ParseSubnet(entry)
		if err != nil {
			skipped = append(skipped, Skipped{Entry: entry, Err: err})
			continue
		}
		subnets = append(subnets, s)
	}
	return subnets, skipped
}

// Parses a single address/maskbits entry.
func ParseSubnet(entry string) (Subnet, error) {
	entry = strings.TrimSpace(entry)
	parts := strings.Split(entry, "/")
	if len(parts) != 2 {
		return Subnet{}, fmt.Errorf("%w: '%s' is not in CIDR notation (address/maskbits), for example '18.42.124.13/20'", ErrMalformedSubnetEntry, entry)
	}
	maskBits, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Subnet{}, fmt.Errorf("%w: cannot convert '%s' to an int for entry '%s'", ErrMalformedSubnetEntry, parts[1], entry)
	}
	return NewSubnet(strings.TrimSpace(parts[0]), maskBits)
}

func (s Skipped) String() string {
	return fmt.Sprintf("%s: %s", s.Entry, s.Err.Error())
}

func newAddressError(address string) error {
	return fmt.Errorf("%w: '%s'", ErrInvalidAddress, address)
}

func newMaskBitsError(address string, maskBits int, maxBits int) error {
	return fmt.Errorf("%w: %d for address '%s', must be between 0 and %d", ErrInvalidMaskBits, maskBits, address, maxBits)
}
