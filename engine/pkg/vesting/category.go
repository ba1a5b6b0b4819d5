package vesting

import "fmt"

// SourceCategory tags a schedule's allocation bucket for accounting. It has
// no behavioral effect; the tag is carried through records and audit events.
type SourceCategory uint8

const (
	CategorySeed SourceCategory = iota
	CategoryStrategic
	CategoryPublicIDO
	CategoryTeam
	CategoryAdvisors
	CategoryEcosystem
	CategoryMarketing
	CategoryTreasury
	CategoryLiquidity
	CategoryOther
)

var categoryNames = map[SourceCategory]string{
	CategorySeed:      "seed",
	CategoryStrategic: "strategic",
	CategoryPublicIDO: "public_ido",
	CategoryTeam:      "team",
	CategoryAdvisors:  "advisors",
	CategoryEcosystem: "ecosystem",
	CategoryMarketing: "marketing",
	CategoryTreasury:  "treasury",
	CategoryLiquidity: "liquidity",
	CategoryOther:     "other",
}

func (c SourceCategory) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

func (c SourceCategory) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(c))
}

// ParseSourceCategory maps a category name back to its tag.
func ParseSourceCategory(s string) (SourceCategory, error) {
	for c, name := range categoryNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown source category %q", s)
}
