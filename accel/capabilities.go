package accel

import "strings"

// Capabilities is the set of tiers a host can run. None is always a member.
type Capabilities struct {
	mask uint8
}

func NewCapabilities(tiers ...Tier) Capabilities {
	c := Capabilities{mask: 1 << None}
	for _, t := range tiers {
		c.mask |= 1 << t.clamp()
	}
	return c
}

func (c Capabilities) Has(t Tier) bool {
	return c.mask&(1<<t.clamp()) != 0 || t.clamp() == None
}

// Tiers lists the supported tiers in fallback order.
func (c Capabilities) Tiers() []Tier {
	var tiers []Tier
	for _, t := range Tiers() {
		if c.Has(t) {
			tiers = append(tiers, t)
		}
	}
	return tiers
}

// Best is the most specialized supported tier.
func (c Capabilities) Best() Tier {
	return Select(AVX512, c)
}

func (c Capabilities) String() string {
	names := make([]string, 0, len(tierNames))
	for _, t := range c.Tiers() {
		names = append(names, t.String())
	}
	return strings.Join(names, ",")
}
