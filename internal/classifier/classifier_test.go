package classifier

import (
	"fmt"
	"sync"
	"testing"

	"github.com/nylssoft/goadaptivefirewall/internal/subnet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsLocal(t *testing.T) {
	subnets, skipped := subnet.ParseSubnets("192.168.1.0/24")
	require.Empty(t, skipped)

	local, err := IsLocal("192.168.1.111", subnets)
	assert.NoError(t, err)
	assert.True(t, local)

	local, err = IsLocal("192.168.0.111", subnets)
	assert.NoError(t, err)
	assert.False(t, local)

	// baseline link-local ranges
	local, err = IsLocal("fe80::60fb:646c:d365:36ba", nil)
	assert.NoError(t, err)
	assert.True(t, local)
	local, err = IsLocal("169.254.12.1", nil)
	assert.NoError(t, err)
	assert.True(t, local)
	local, err = IsLocal("169.255.12.1", nil)
	assert.NoError(t, err)
	assert.False(t, local)

	// IPv4-mapped addresses are classified as IPv4
	local, err = IsLocal("::ffff:192.168.1.5", subnets)
	assert.NoError(t, err)
	assert.True(t, local)

	_, err = IsLocal("not-an-ip", subnets)
	assert.ErrorIs(t, err, subnet.ErrInvalidAddress)
	_, err = IsLocal("", subnets)
	assert.ErrorIs(t, err, subnet.ErrInvalidAddress)
}

func TestIsLocalAnySubnet(t *testing.T) {
	subnets, skipped := subnet.ParseSubnets("10.0.0.0/8,2001:db8::/32,172.16.0.0/12")
	require.Empty(t, skipped)
	for _, ip := range []string{"10.200.1.1", "2001:db8:1::5", "172.31.255.255"} {
		local, err := IsLocal(ip, subnets)
		assert.NoError(t, err)
		assert.True(t, local, ip)
	}
	for _, ip := range []string{"11.0.0.1", "2001:db9::1", "172.32.0.1", "185.143.223.77"} {
		local, err := IsLocal(ip, subnets)
		assert.NoError(t, err)
		assert.False(t, local, ip)
	}
}

func TestClassifier(t *testing.T) {
	subnets, _ := subnet.ParseSubnets("192.168.1.0/24")
	c := NewClassifier(subnets)
	assert.Equal(t, subnets, c.Subnets())

	// same answer without reload in between
	for i := 0; i < 2; i++ {
		local, err := c.IsLocal("192.168.1.111")
		assert.NoError(t, err)
		assert.True(t, local)
	}

	// the classifier keeps its own copy
	subnets[0], _ = subnet.NewSubnet("10.0.0.0", 8)
	local, _ := c.IsLocal("192.168.1.111")
	assert.True(t, local)

	reloaded, _ := subnet.ParseSubnets("10.0.0.0/8")
	c.Reload(reloaded)
	local, _ = c.IsLocal("192.168.1.111")
	assert.False(t, local)
	local, _ = c.IsLocal("10.1.1.1")
	assert.True(t, local)

	c.Reload(nil)
	assert.Empty(t, c.Subnets())
	local, _ = c.IsLocal("fe80::1")
	assert.True(t, local)
	local, _ = c.IsLocal("10.1.1.1")
	assert.False(t, local)
}

func TestClassifierConcurrentReload(t *testing.T) {
	// both lists contain 10.0.0.0/8, so 10.x is local regardless of the active list
	first, _ := subnet.ParseSubnets("10.0.0.0/8,192.168.1.0/24")
	second, _ := subnet.ParseSubnets("172.16.0.0/12,10.0.0.0/8")
	c := NewClassifier(first)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if i%2 == 0 {
				c.Reload(second)
			} else {
				c.Reload(first)
			}
		}
	}()
	errs := make(chan error, 4)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				local, err := c.IsLocal(fmt.Sprintf("10.0.%d.%d", i%256, w))
				if err != nil || !local {
					errs <- fmt.Errorf("10.0.%d.%d not local: %v", i%256, w, err)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
