package tier

import (
	"github.com/vietddude/genledger/internal/core/domain"
)

// Spec describes one subscription tier: its credit capacity, monthly
// price and regeneration yield. Tiers are ordered by Rank for
// upgrade/downgrade comparisons.
type Spec struct {
	Tier             domain.Tier
	Rank             int
	Capacity         int64
	PriceCents       int64
	RegenPerInterval int64
}

var specs = map[domain.Tier]Spec{
	domain.TierFree:    {Tier: domain.TierFree, Rank: 0, Capacity: 20, PriceCents: 0, RegenPerInterval: 1},
	domain.TierStarter: {Tier: domain.TierStarter, Rank: 1, Capacity: 120, PriceCents: 900, RegenPerInterval: 2},
	domain.TierPro:     {Tier: domain.TierPro, Rank: 2, Capacity: 500, PriceCents: 2900, RegenPerInterval: 5},
	domain.TierStudio:  {Tier: domain.TierStudio, Rank: 3, Capacity: 2000, PriceCents: 9900, RegenPerInterval: 12},
}

// jobCosts maps a job kind to its credit cost per tier. Cost is captured
// at admission time; catalog changes never affect in-flight jobs.
var jobCosts = map[domain.JobKind]map[domain.Tier]int64{
	domain.JobKindGenerate: {
		domain.TierFree:    5,
		domain.TierStarter: 5,
		domain.TierPro:     4,
		domain.TierStudio:  3,
	},
	domain.JobKindModify: {
		domain.TierFree:    3,
		domain.TierStarter: 3,
		domain.TierPro:     2,
		domain.TierStudio:  2,
	},
}

// Floor is the tier assigned to accounts created lazily by the ledger.
func Floor() domain.Tier {
	return domain.TierFree
}

// Lookup returns the spec for t, falling back to the floor tier for
// unknown values so a corrupt row cannot panic the ledger.
func Lookup(t domain.Tier) Spec {
	if s, ok := specs[t]; ok {
		return s
	}
	return specs[Floor()]
}

// Known reports whether t is a catalog tier.
func Known(t domain.Tier) bool {
	_, ok := specs[t]
	return ok
}

// Capacity returns the credit capacity of t.
func Capacity(t domain.Tier) int64 {
	return Lookup(t).Capacity
}

// JobCost returns the admission cost of running kind at tier t.
func JobCost(kind domain.JobKind, t domain.Tier) int64 {
	costs, ok := jobCosts[kind]
	if !ok {
		return jobCosts[domain.JobKindGenerate][Floor()]
	}
	if c, ok := costs[t]; ok {
		return c
	}
	return costs[Floor()]
}

// Above reports whether a is strictly above b in the tier ordering.
func Above(a, b domain.Tier) bool {
	return Lookup(a).Rank > Lookup(b).Rank
}

// Below reports whether a is strictly below b in the tier ordering.
func Below(a, b domain.Tier) bool {
	return Lookup(a).Rank < Lookup(b).Rank
}

// All returns the catalog tiers in ascending order.
func All() []Spec {
	out := make([]Spec, 0, len(specs))
	for _, t := range []domain.Tier{domain.TierFree, domain.TierStarter, domain.TierPro, domain.TierStudio} {
		out = append(out, specs[t])
	}
	return out
}
