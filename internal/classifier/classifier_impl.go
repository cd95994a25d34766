package classifier

import (
	"slices"
	"sync/atomic"

	"github.com/nylssoft/goadaptivefirewall/internal/subnet"
)

type classifier_impl struct {
	subnets atomic.Pointer[[]subnet.Subnet]
}

// link-local ranges are always local
var baseline = mustParse("fe80::/10,169.254.0.0/16")

func (c *classifier_impl) IsLocal(address string) (bool, error) {
	return IsLocal(address, *c.subnets.Load())
}

func (c *classifier_impl) Reload(subnets []subnet.Subnet) {
	list := slices.Clone(subnets)
	c.subnets.Store(&list)
}

func (c *classifier_impl) Subnets() []subnet.Subnet {
	return slices.Clone(*c.subnets.Load())
}

// Returns whether the address is part of a baseline range or of any of the specified subnets.
func IsLocal(address string, subnets []subnet.Subnet) (bool, error) {
	addr, err := subnet.ParseAddress(address)
	if err != nil {
		return false, err
	}
	for _, list := range [][]subnet.Subnet{baseline, subnets} {
		for _, s := range list {
			if s.Contains(addr) {
				return true, nil
			}
		}
	}
	return false, nil
}

func mustParse(setting string) []subnet.Subnet {
	subnets, skipped := subnet.ParseSubnets(setting)
	if len(skipped) > 0 {
		panic(skipped[0].String())
	}
	return subnets
}
