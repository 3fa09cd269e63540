package tier

import (
	"testing"

	"github.com/vietddude/genledger/internal/core/domain"
)

func TestLookupKnownTiers(t *testing.T) {
	cases := []struct {
		tier     domain.Tier
		capacity int64
		rank     int
	}{
		{domain.TierFree, 20, 0},
		{domain.TierStarter, 120, 1},
		{domain.TierPro, 500, 2},
		{domain.TierStudio, 2000, 3},
	}

	for _, tc := range cases {
		spec := Lookup(tc.tier)
		if spec.Capacity != tc.capacity {
			t.Errorf("Lookup(%s).Capacity = %d, want %d", tc.tier, spec.Capacity, tc.capacity)
		}
		if spec.Rank != tc.rank {
			t.Errorf("Lookup(%s).Rank = %d, want %d", tc.tier, spec.Rank, tc.rank)
		}
		if !Known(tc.tier) {
			t.Errorf("Known(%s) = false, want true", tc.tier)
		}
	}
}

func TestLookupUnknownFallsBackToFloor(t *testing.T) {
	spec := Lookup(domain.Tier("platinum"))
	if spec.Tier != Floor() {
		t.Errorf("unknown tier resolved to %s, want floor %s", spec.Tier, Floor())
	}
	if Known(domain.Tier("platinum")) {
		t.Error("Known(platinum) = true, want false")
	}
}

func TestJobCost(t *testing.T) {
	cases := []struct {
		kind domain.JobKind
		tier domain.Tier
		want int64
	}{
		{domain.JobKindGenerate, domain.TierFree, 5},
		{domain.JobKindGenerate, domain.TierStarter, 5},
		{domain.JobKindGenerate, domain.TierPro, 4},
		{domain.JobKindGenerate, domain.TierStudio, 3},
		{domain.JobKindModify, domain.TierFree, 3},
		{domain.JobKindModify, domain.TierStarter, 3},
		{domain.JobKindModify, domain.TierPro, 2},
		{domain.JobKindModify, domain.TierStudio, 2},
	}

	for _, tc := range cases {
		if got := JobCost(tc.kind, tc.tier); got != tc.want {
			t.Errorf("JobCost(%s, %s) = %d, want %d", tc.kind, tc.tier, got, tc.want)
		}
	}
}

func TestJobCostUnknownFallsBack(t *testing.T) {
	if got := JobCost(domain.JobKind("upscale"), domain.TierPro); got != 5 {
		t.Errorf("unknown kind cost = %d, want floor generate cost 5", got)
	}
	if got := JobCost(domain.JobKindModify, domain.Tier("platinum")); got != 3 {
		t.Errorf("unknown tier cost = %d, want floor modify cost 3", got)
	}
}

func TestOrdering(t *testing.T) {
	if !Above(domain.TierPro, domain.TierFree) {
		t.Error("pro should be above free")
	}
	if Above(domain.TierFree, domain.TierFree) {
		t.Error("a tier is not above itself")
	}
	if !Below(domain.TierStarter, domain.TierStudio) {
		t.Error("starter should be below studio")
	}
	if Below(domain.TierStudio, domain.TierStudio) {
		t.Error("a tier is not below itself")
	}
}

func TestAllAscending(t *testing.T) {
	all := All()
	if len(all) != 4 {
		t.Fatalf("All() returned %d tiers, want 4", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Rank <= all[i-1].Rank {
			t.Errorf("All() not ascending at index %d: rank %d after %d", i, all[i].Rank, all[i-1].Rank)
		}
	}
}
