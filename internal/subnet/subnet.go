package subnet

import (
	"errors"
	"net/netip"
)

// Represents a single CIDR block used to classify trusted addresses.
//
// A subnet stores the network address as configured (host bits are not cleared)
// together with the number of mask bits. Subnets are immutable values and can be compared with ==.
//
// Use NewSubnet to create a validated subnet and ParseSubnets to read a configuration setting.
type Subnet struct {
	address  netip.Addr
	maskBits int
}

var (
	ErrInvalidAddress       = errors.New("invalid ip address")
	ErrInvalidMaskBits      = errors.New("invalid subnet mask bits")
	ErrMalformedSubnetEntry = errors.New("malformed subnet entry")
)

// Creates a subnet for the specified address and mask bits.
// Mask bits must be in [0,32] for IPv4 addresses and in [0,128] for IPv6 addresses.
func NewSubnet(address string, maskBits int) (Subnet, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return Subnet{}, err
	}
	if maskBits < 0 || maskBits > addr.BitLen() {
		return Subnet{}, newMaskBitsError(address, maskBits, addr.BitLen())
	}
	return Subnet{address: addr, maskBits: maskBits}, nil
}

// Parses an IP literal into its canonical form.
// IPv4-mapped IPv6 addresses are treated as IPv4 addresses, zones are dropped.
func ParseAddress(address string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(address)
	if err != nil {
		return netip.Addr{}, newAddressError(address)
	}
	return addr.Unmap().WithZone(""), nil
}

// Returns the subnet in CIDR notation, e.g. 192.168.1.0/24.
func (s Subnet) String() string {
	if !s.address.IsValid() {
		return "invalid"
	}
	return netip.PrefixFrom(s.address, s.maskBits).String()
}

// Returns whether the specified canonical address is part of the subnet.
// Addresses of a different address family never match.
func (s Subnet) Contains(addr netip.Addr) bool {
	if !s.address.IsValid() || !addr.IsValid() || s.address.Is4() != addr.Is4() {
		return false
	}
	netBytes := s.address.AsSlice()
	addrBytes := addr.AsSlice()
	maskBytes := Mask(s.maskBits, len(netBytes))
	for i := range netBytes {
		if netBytes[i]&maskBytes[i] != addrBytes[i]&maskBytes[i] {
			return false
		}
	}
	return true
}

// Returns a mask of the specified length in bytes with the high-order maskBits bits set.
func Mask(maskBits int, size int) []byte {
	mask := make([]byte, size)
	for i := range mask {
		switch {
		case maskBits >= 8:
			mask[i] = 0xff
			maskBits -= 8
		case maskBits > 0:
			mask[i] = byte(0xff << (8 - maskBits))
			maskBits = 0
		}
	}
	return mask
}
