package domain

import (
	"testing"
	"time"
)

func TestAssetLive(t *testing.T) {
	asset := Asset{ID: 1, Owner: "ava"}
	if !asset.Live() {
		t.Fatalf("unburned asset should be live")
	}
	now := time.Now().UTC()
	asset.BurnedAt = &now
	if asset.Live() {
		t.Fatalf("burned asset should not be live")
	}
}

func TestSupplyCountersClone(t *testing.T) {
	counters := NewSupplyCounters()
	counters.Minted[TierRare] = 5
	counters.Global = 5

	cp := counters.Clone()
	cp.Minted[TierRare] = 9
	cp.Global = 9

	if counters.Minted[TierRare] != 5 || counters.Global != 5 {
		t.Fatalf("clone mutation leaked into original: %+v", counters)
	}
}

func TestNewSupplyCountersAllocatorsStartAtOne(t *testing.T) {
	counters := NewSupplyCounters()
	if counters.NextAssetID != 1 || counters.NextFusionID != 1 {
		t.Fatalf("allocators should start at 1, got %d/%d", counters.NextAssetID, counters.NextFusionID)
	}
}

func TestResultMergeAndBlocking(t *testing.T) {
	var res Result
	res.Merge(Result{Violations: []Violation{{Rule: "a", Severity: SeverityWarn}}})
	if res.HasBlocking() {
		t.Fatalf("warn-only result should not block")
	}
	res.Merge(Result{Violations: []Violation{{Rule: "b", Severity: SeverityBlock}}})
	if !res.HasBlocking() {
		t.Fatalf("expected blocking result after block violation")
	}
	if len(res.Violations) != 2 {
		t.Fatalf("expected merged violations, got %d", len(res.Violations))
	}
}
