package subnet

import (
	"encoding/binary"
	"math/rand"
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSubnet(t *testing.T) {
	s, err := NewSubnet("192.168.1.0", 24)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.0/24", s.String())
	assert.Equal(t, Subnet{address: netip.MustParseAddr("192.168.1.0"), maskBits: 24}, s)

	s, err = NewSubnet("fe80::", 10)
	require.NoError(t, err)
	assert.Equal(t, "fe80::/10", s.String())
	assert.True(t, s.address.Is6())

	// bounds are inclusive
	_, err = NewSubnet("10.0.0.0", 0)
	assert.NoError(t, err)
	_, err = NewSubnet("10.0.0.1", 32)
	assert.NoError(t, err)
	_, err = NewSubnet("2001:db8::", 0)
	assert.NoError(t, err)
	_, err = NewSubnet("2001:db8::1", 128)
	assert.NoError(t, err)

	// equal values compare equal
	a, _ := NewSubnet("10.0.0.0", 8)
	b, _ := NewSubnet("10.0.0.0", 8)
	assert.Equal(t, a, b)
	assert.True(t, a == b)

	// invalid address
	_, err = NewSubnet("yo", 24)
	assert.ErrorIs(t, err, ErrInvalidAddress)
	_, err = NewSubnet("", 24)
	assert.ErrorIs(t, err, ErrInvalidAddress)
	_, err = NewSubnet("192.168.1.256", 24)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestNewSubnetInvalidMaskBits(t *testing.T) {
	for _, bits := range []int{-1, 33, 64, 99, 128, 129} {
		s, err := NewSubnet("192.168.1.0", bits)
		assert.ErrorIs(t, err, ErrInvalidMaskBits, "bits %d", bits)
		assert.Equal(t, Subnet{}, s)
	}
	for _, bits := range []int{-1, 129, 200} {
		s, err := NewSubnet("2001:db8::", bits)
		assert.ErrorIs(t, err, ErrInvalidMaskBits, "bits %d", bits)
		assert.Equal(t, Subnet{}, s)
	}
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("::ffff:192.168.1.1")
	require.NoError(t, err)
	assert.True(t, addr.Is4())
	assert.Equal(t, "192.168.1.1", addr.String())

	addr, err = ParseAddress("fe80::1%eth0")
	require.NoError(t, err)
	assert.Equal(t, "fe80::1", addr.String())

	addr, err = ParseAddress("2001:0DB8:0000::0001")
	require.NoError(t, err)
	assert.Equal(t, "2001:db8::1", addr.String())

	_, err = ParseAddress("-")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestContains(t *testing.T) {
	s, err := NewSubnet("192.168.1.0", 24)
	require.NoError(t, err)
	assert.True(t, s.Contains(netip.MustParseAddr("192.168.1.111")))
	assert.False(t, s.Contains(netip.MustParseAddr("192.168.0.111")))
	// family mismatch is never compared
	assert.False(t, s.Contains(netip.MustParseAddr("c0a8:0100::1")))
	assert.False(t, s.Contains(netip.Addr{}))

	// host bits of the configured address are ignored
	s, err = NewSubnet("192.168.1.77", 24)
	require.NoError(t, err)
	assert.True(t, s.Contains(netip.MustParseAddr("192.168.1.1")))

	s, err = NewSubnet("10.1.2.3", 0)
	require.NoError(t, err)
	assert.True(t, s.Contains(netip.MustParseAddr("8.8.8.8")))

	s, err = NewSubnet("2001:db8:abcd::", 48)
	require.NoError(t, err)
	assert.True(t, s.Contains(netip.MustParseAddr("2001:db8:abcd:12::1")))
	assert.False(t, s.Contains(netip.MustParseAddr("2001:db8:abce::1")))
	assert.False(t, s.Contains(netip.MustParseAddr("10.0.0.1")))
}

func TestMask(t *testing.T) {
	assert.Equal(t, []byte{0, 0, 0, 0}, Mask(0, 4))
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0}, Mask(24, 4))
	assert.Equal(t, []byte{0xff, 0xf0, 0, 0}, Mask(12, 4))
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, Mask(32, 4))
	m := Mask(10, 16)
	assert.Equal(t, byte(0xff), m[0])
	assert.Equal(t, byte(0xc0), m[1])
	assert.Equal(t, byte(0), m[15])
}

func TestContainsAgreesWithBitwiseIPv4(t *testing.T) {
	rnd := rand.New(rand.NewSource(4625))
	for i := 0; i < 5000; i++ {
		network := rnd.Uint32()
		address := rnd.Uint32()
		if i%2 == 0 {
			// share a random prefix so matches are likely
			address = network ^ (rnd.Uint32() >> uint(rnd.Intn(33)))
		}
		bits := rnd.Intn(33)
		mask := ^uint32(0) << (32 - uint(bits))
		expected := network&mask == address&mask

		s, err := NewSubnet(uint32ToAddr(network).String(), bits)
		require.NoError(t, err)
		assert.Equal(t, expected, s.Contains(uint32ToAddr(address)), "%s contains %s", s, uint32ToAddr(address))
	}
}

func TestContainsAgreesWithBitwiseIPv6(t *testing.T) {
	rnd := rand.New(rand.NewSource(140))
	for i := 0; i < 5000; i++ {
		var network, address [16]byte
		rnd.Read(network[:])
		rnd.Read(address[:])
		if i%2 == 0 {
			keep := rnd.Intn(17)
			copy(address[:keep], network[:keep])
		}
		network[0] |= 0x20 // avoid IPv4-mapped addresses
		address[0] |= 0x20
		bits := rnd.Intn(129)
		ipnet := net.IPNet{IP: net.IP(network[:]), Mask: net.CIDRMask(bits, 128)}
		expected := ipnet.Contains(net.IP(address[:]))

		s, err := NewSubnet(netip.AddrFrom16(network).String(), bits)
		require.NoError(t, err)
		assert.Equal(t, expected, s.Contains(netip.AddrFrom16(address)))
	}
}

func TestParseSubnets(t *testing.T) {
	subnets, skipped := ParseSubnets("")
	assert.Empty(t, subnets)
	assert.Empty(t, skipped)

	subnets, skipped = ParseSubnets("192.168.1.0/24")
	assert.Len(t, subnets, 1)
	assert.Empty(t, skipped)

	subnets, skipped = ParseSubnets("yo/fucker")
	assert.Empty(t, subnets)
	require.Len(t, skipped, 1)
	assert.ErrorIs(t, skipped[0].Err, ErrMalformedSubnetEntry)

	subnets, skipped = ParseSubnets("192.168.1.0/24, 192.168.2.0/24")
	assert.Len(t, subnets, 2)
	assert.Empty(t, skipped)
	assert.Equal(t, "192.168.2.0/24", subnets[1].String())

	// a bad entry does not blank the rest of the list
	subnets, skipped = ParseSubnets("10.0.0.0/8,192.168.1.0/99,fd00::/8,172.16.0.0,bad/12")
	require.Len(t, subnets, 2)
	assert.Equal(t, "10.0.0.0/8", subnets[0].String())
	assert.Equal(t, "fd00::/8", subnets[1].String())
	require.Len(t, skipped, 3)
	assert.ErrorIs(t, skipped[0].Err, ErrInvalidMaskBits)
	assert.Equal(t, "192.168.1.0/99", skipped[0].Entry)
	assert.ErrorIs(t, skipped[1].Err, ErrMalformedSubnetEntry)
	assert.ErrorIs(t, skipped[2].Err, ErrInvalidAddress)
	assert.Contains(t, skipped[0].String(), "192.168.1.0/99")
}

func uint32ToAddr(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}
