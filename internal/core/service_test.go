package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"relicforge/internal/blob"
	"relicforge/pkg/domain"
)

// seqEntropy issues deterministic correlation IDs for tests.
type seqEntropy struct {
	n int
}

func (s *seqEntropy) Request(context.Context, EntropyKind) (string, error) {
	s.n++
	return fmt.Sprintf("cid-%d", s.n), nil
}

type failingEntropy struct{}

func (failingEntropy) Request(context.Context, EntropyKind) (string, error) {
	return "", errors.New("beacon unreachable")
}

// pausedPolicy halts all mutating operations.
type pausedPolicy struct{}

func (pausedPolicy) IsAuthorized(string, string) bool { return true }
func (pausedPolicy) IsPaused() bool                   { return true }

// denyPolicy rejects a single action.
type denyPolicy struct{ action string }

func (p denyPolicy) IsAuthorized(_, action string) bool { return action != p.action }
func (denyPolicy) IsPaused() bool                       { return false }

type halfOff struct{}

func (halfOff) IsValid(code string) bool { return code == "LAUNCH" }
func (halfOff) PriceAfterDiscount(_ string, base uint64) uint64 {
	return base / 2
}

func tinySchedule() SupplySchedule {
	return SupplySchedule{
		TierCeilings: map[Tier]uint64{
			domain.TierCommon:    4,
			domain.TierRare:      4,
			domain.TierEpic:      2,
			domain.TierMythic:    1,
			domain.TierExalted:   1,
			domain.TierLegendary: 1,
		},
		GlobalCeiling: 6,
		BasePrices: map[Tier]uint64{
			domain.TierCommon:    100,
			domain.TierRare:      300,
			domain.TierEpic:      800,
			domain.TierMythic:    2000,
			domain.TierExalted:   5000,
			domain.TierLegendary: 10000,
		},
		EarlyMintThreshold: 2,
		EarlyMintTier:      domain.TierRare,
		BaseMintTier:       domain.TierCommon,
	}
}

func newTestService(opts ...Option) *Service {
	base := []Option{
		WithSchedule(tinySchedule()),
		WithEntropySource(&seqEntropy{}),
	}
	return NewInMemoryService(append(base, opts...)...)
}

func TestReserveAndMint(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	asset, _, err := svc.ReserveAndMint(ctx, "ava", domain.TierRare, "ipfs://m1", 300)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if asset.Tier != domain.TierRare || asset.Owner != "ava" {
		t.Fatalf("unexpected asset: %+v", asset)
	}
	supply := svc.Supply()
	if supply.Global != 1 || supply.Minted[domain.TierRare] != 1 {
		t.Fatalf("counters: %+v", supply)
	}
}

func TestReserveAndMintUnderpaid(t *testing.T) {
	svc := newTestService()
	_, _, err := svc.ReserveAndMint(context.Background(), "ava", domain.TierRare, "", 299)
	var underpaid domain.ErrUnderpaid
	if !errors.As(err, &underpaid) {
		t.Fatalf("expected underpaid, got %v", err)
	}
	if underpaid.Required != 300 {
		t.Fatalf("required %d", underpaid.Required)
	}
	if svc.Supply().Global != 0 {
		t.Fatalf("failed mint must not consume supply")
	}
}

func TestReserveAndMintTierCeiling(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	if _, _, err := svc.ReserveAndMint(ctx, "ava", domain.TierMythic, "", 2000); err != nil {
		t.Fatalf("first mythic: %v", err)
	}
	_, _, err := svc.ReserveAndMint(ctx, "ava", domain.TierMythic, "", 2000)
	var exhausted domain.ErrSupplyExhausted
	if !errors.As(err, &exhausted) || exhausted.Tier != domain.TierMythic {
		t.Fatalf("expected mythic exhaustion, got %v", err)
	}
}

func TestReserveAndMintGlobalCeiling(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if _, _, err := svc.ReserveAndMint(ctx, "ava", domain.TierCommon, "", 100); err != nil {
			t.Fatalf("common %d: %v", i, err)
		}
	}
	for i := 0; i < 2; i++ {
		if _, _, err := svc.ReserveAndMint(ctx, "ava", domain.TierRare, "", 300); err != nil {
			t.Fatalf("rare %d: %v", i, err)
		}
	}
	_, _, err := svc.ReserveAndMint(ctx, "ava", domain.TierEpic, "", 800)
	var exhausted domain.ErrSupplyExhausted
	if !errors.As(err, &exhausted) || !exhausted.Global {
		t.Fatalf("expected global exhaustion, got %v", err)
	}
}

func TestPausedServiceRejectsMutations(t *testing.T) {
	svc := newTestService(WithAccessPolicy(pausedPolicy{}))
	_, _, err := svc.ReserveAndMint(context.Background(), "ava", domain.TierCommon, "", 100)
	var paused domain.ErrPaused
	if !errors.As(err, &paused) {
		t.Fatalf("expected paused error, got %v", err)
	}
	if _, err := svc.RequestStandardMint(context.Background(), "ava", "", "", 100); !errors.As(err, &paused) {
		t.Fatalf("expected paused on standard mint, got %v", err)
	}
}

func TestPriceForAppliesDiscount(t *testing.T) {
	svc := newTestService(WithDiscountService(halfOff{}))
	if got := svc.PriceFor(domain.TierCommon, "LAUNCH"); got != 50 {
		t.Fatalf("discounted price %d, want 50", got)
	}
	if got := svc.PriceFor(domain.TierCommon, "EXPIRED"); got != 100 {
		t.Fatalf("invalid code should keep base price, got %d", got)
	}
}

func mintPair(t *testing.T, svc *Service, owner string, tier Tier, price uint64) (uint64, uint64) {
	t.Helper()
	ctx := context.Background()
	a, _, err := svc.ReserveAndMint(ctx, owner, tier, "", price)
	if err != nil {
		t.Fatalf("mint a: %v", err)
	}
	b, _, err := svc.ReserveAndMint(ctx, owner, tier, "", price)
	if err != nil {
		t.Fatalf("mint b: %v", err)
	}
	return a.ID, b.ID
}

func TestFusionLifecycle(t *testing.T) {
	archive := blob.NewMemory()
	svc := newTestService(WithReceiptArchive(NewBlobArchive(archive)))
	ctx := context.Background()

	aID, bID := mintPair(t, svc, "ava", domain.TierRare, 300)
	fusionID, err := svc.RequestFusion(ctx, "ava", []uint64{aID, bID}, "ipfs://child")
	if err != nil {
		t.Fatalf("request fusion: %v", err)
	}
	// Parents stay live until finalization.
	if owner, err := svc.OwnerOf(aID); err != nil || owner != "ava" {
		t.Fatalf("parent should remain live: %v %s", err, owner)
	}

	receipt, err := svc.FinalizeFusion(ctx, "operator", fusionID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if receipt.ChildTier != domain.TierEpic {
		t.Fatalf("two rares should fuse into epic, got %s", receipt.ChildTier)
	}
	child, ok := svc.GetAsset(receipt.ChildID)
	if !ok || child.AncestryScore != 6 {
		t.Fatalf("child ancestry: %+v", child)
	}
	if len(child.Lineage) != 2 {
		t.Fatalf("child lineage: %+v", child.Lineage)
	}
	for _, id := range []uint64{aID, bID} {
		if _, err := svc.OwnerOf(id); err == nil {
			t.Fatalf("parent %d should be burned", id)
		}
	}

	// Finalizing again is rejected; the pending record was consumed.
	_, err = svc.FinalizeFusion(ctx, "operator", fusionID)
	var notFound domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected not found on replay, got %v", err)
	}

	infos, err := archive.List(ctx, "fusions/")
	if err != nil || len(infos) != 1 {
		t.Fatalf("expected archived fusion receipt: %v %d", err, len(infos))
	}
}

func TestFusionAncestryAccumulatesAcrossGenerations(t *testing.T) {
	schedule := tinySchedule()
	schedule.GlobalCeiling = 50
	schedule.TierCeilings[domain.TierRare] = 10
	svc := newTestService(WithSchedule(schedule))
	ctx := context.Background()

	aID, bID := mintPair(t, svc, "ava", domain.TierRare, 300)
	cID, dID := mintPair(t, svc, "ava", domain.TierRare, 300)

	f1, err := svc.RequestFusion(ctx, "ava", []uint64{aID, bID}, "")
	if err != nil {
		t.Fatalf("f1: %v", err)
	}
	r1, err := svc.FinalizeFusion(ctx, "op", f1)
	if err != nil {
		t.Fatalf("finalize f1: %v", err)
	}
	f2, err := svc.RequestFusion(ctx, "ava", []uint64{cID, dID}, "")
	if err != nil {
		t.Fatalf("f2: %v", err)
	}
	r2, err := svc.FinalizeFusion(ctx, "op", f2)
	if err != nil {
		t.Fatalf("finalize f2: %v", err)
	}

	f3, err := svc.RequestFusion(ctx, "ava", []uint64{r1.ChildID, r2.ChildID}, "")
	if err != nil {
		t.Fatalf("f3: %v", err)
	}
	r3, err := svc.FinalizeFusion(ctx, "op", f3)
	if err != nil {
		t.Fatalf("finalize f3: %v", err)
	}
	if score, err := svc.AncestryOf(r3.ChildID); err != nil || score != 12 {
		t.Fatalf("grandchild score %d (%v), want 12", score, err)
	}
	// 12 has no exact table entry and sits below the legendary floor.
	if r3.ChildTier != domain.TierCommon {
		t.Fatalf("score 12 should classify common, got %s", r3.ChildTier)
	}
}

func TestRequestFusionValidation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	aID, bID := mintPair(t, svc, "ava", domain.TierCommon, 100)

	if _, err := svc.RequestFusion(ctx, "ava", []uint64{aID}, ""); err == nil {
		t.Fatalf("single parent should be rejected")
	}
	if _, err := svc.RequestFusion(ctx, "ava", []uint64{aID, aID}, ""); err == nil {
		t.Fatalf("duplicate parent should be rejected")
	}
	var notOwner domain.ErrNotOwner
	if _, err := svc.RequestFusion(ctx, "mallory", []uint64{aID, bID}, ""); !errors.As(err, &notOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	if _, err := svc.BurnAsset(ctx, aID); err != nil {
		t.Fatalf("burn: %v", err)
	}
	var notFound domain.ErrNotFound
	if _, err := svc.RequestFusion(ctx, "ava", []uint64{aID, bID}, ""); !errors.As(err, &notFound) {
		t.Fatalf("expected not found for burned parent, got %v", err)
	}
}

func TestFinalizeFusionUnauthorized(t *testing.T) {
	svc := newTestService(WithAccessPolicy(denyPolicy{action: ActionFinalizeFusion}))
	ctx := context.Background()
	aID, bID := mintPair(t, svc, "ava", domain.TierCommon, 100)
	fusionID, err := svc.RequestFusion(ctx, "ava", []uint64{aID, bID}, "")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var unauthorized domain.ErrUnauthorized
	if _, err := svc.FinalizeFusion(ctx, "mallory", fusionID); !errors.As(err, &unauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	// The pending record survives the rejection.
	if _, ok := svc.Store().GetPendingFusion(fusionID); !ok {
		t.Fatalf("pending fusion should remain")
	}
}

func TestStandardMintTierDecidedAtFulfillment(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	// Requested while the global count is below the early threshold.
	cid, err := svc.RequestStandardMint(ctx, "ava", "ipfs://m", "", 100)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, ok := svc.Store().GetPendingEntropy(cid); !ok {
		t.Fatalf("pending record missing")
	}

	// Unrelated mints push the count past the threshold before fulfillment.
	mintPair(t, svc, "bob", domain.TierCommon, 100)

	receipt, err := svc.OnEntropyFulfilled(ctx, cid, []byte("beacon"))
	if err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if receipt.Outcome != OutcomeMinted {
		t.Fatalf("outcome %s", receipt.Outcome)
	}
	// The threshold was crossed, so the mint lands on the base tier even
	// though it was requested during the early window.
	if receipt.Tier != domain.TierCommon {
		t.Fatalf("tier decided at fulfillment should be common, got %s", receipt.Tier)
	}
}

func TestStandardMintEarlyWindow(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	cid, err := svc.RequestStandardMint(ctx, "ava", "", "", 100)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	receipt, err := svc.OnEntropyFulfilled(ctx, cid, nil)
	if err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if receipt.Tier != domain.TierRare {
		t.Fatalf("below-threshold mint should land on the early tier, got %s", receipt.Tier)
	}
}

func TestDuplicateFulfillmentIsIgnored(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	cid, err := svc.RequestStandardMint(ctx, "ava", "", "", 100)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := svc.OnEntropyFulfilled(ctx, cid, nil); err != nil {
		t.Fatalf("first fulfill: %v", err)
	}
	before := svc.Supply()

	receipt, err := svc.OnEntropyFulfilled(ctx, cid, nil)
	if err != nil {
		t.Fatalf("duplicate fulfill should not error: %v", err)
	}
	if receipt.Outcome != OutcomeIgnored {
		t.Fatalf("outcome %s, want ignored", receipt.Outcome)
	}
	if after := svc.Supply(); after.Global != before.Global {
		t.Fatalf("duplicate fulfillment mutated supply")
	}
}

func TestUnknownCorrelationIDIsIgnored(t *testing.T) {
	svc := newTestService()
	receipt, err := svc.OnEntropyFulfilled(context.Background(), "never-issued", nil)
	if err != nil {
		t.Fatalf("unknown cid should not error: %v", err)
	}
	if receipt.Outcome != OutcomeIgnored {
		t.Fatalf("outcome %s", receipt.Outcome)
	}
}

func TestFailedFulfillmentConsumesRecord(t *testing.T) {
	archive := blob.NewMemory()
	svc := newTestService(WithReceiptArchive(NewBlobArchive(archive)))
	ctx := context.Background()

	cid, err := svc.RequestStandardMint(ctx, "ava", "", "", 100)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	// Saturate the global ceiling between request and fulfillment.
	for i := 0; i < 4; i++ {
		if _, _, err := svc.ReserveAndMint(ctx, "bob", domain.TierCommon, "", 100); err != nil {
			t.Fatalf("common %d: %v", i, err)
		}
	}
	mintPair(t, svc, "bob", domain.TierRare, 300)

	receipt, err := svc.OnEntropyFulfilled(ctx, cid, nil)
	var exhausted domain.ErrSupplyExhausted
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected supply exhaustion, got %v", err)
	}
	if receipt.Outcome != OutcomeFailed {
		t.Fatalf("outcome %s, want failed", receipt.Outcome)
	}
	// The record is consumed even though the mint failed; a retry is ignored.
	if _, ok := svc.Store().GetPendingEntropy(cid); ok {
		t.Fatalf("failed fulfillment should still consume the record")
	}
	replay, err := svc.OnEntropyFulfilled(ctx, cid, nil)
	if err != nil || replay.Outcome != OutcomeIgnored {
		t.Fatalf("replay after failure: %v %s", err, replay.Outcome)
	}
	infos, err := archive.List(ctx, "fulfillments/")
	if err != nil || len(infos) != 1 {
		t.Fatalf("failed receipt should be archived: %v %d", err, len(infos))
	}
}

func TestInstantMintReplaysRequestedTier(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	cid, err := svc.RequestInstantMint(ctx, "ava", domain.TierEpic, "", 800)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	receipt, err := svc.OnEntropyFulfilled(ctx, cid, []byte("unused"))
	if err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if receipt.Tier != domain.TierEpic {
		t.Fatalf("instant mint must replay the requested tier, got %s", receipt.Tier)
	}
}

func TestRerollLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	asset, _, err := svc.ReserveAndMint(ctx, "ava", domain.TierCommon, "", 100)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	var notOwner domain.ErrNotOwner
	if _, err := svc.RequestReroll(ctx, "mallory", asset.ID, "finish"); !errors.As(err, &notOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	if _, err := svc.RequestReroll(ctx, "ava", asset.ID, ""); err == nil {
		t.Fatalf("empty attribute should be rejected")
	}

	cid, err := svc.RequestReroll(ctx, "ava", asset.ID, "finish")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	receipt, err := svc.OnEntropyFulfilled(ctx, cid, []byte("round-9"))
	if err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if receipt.Outcome != OutcomeRerolled || receipt.Value == "" {
		t.Fatalf("receipt: %+v", receipt)
	}
	updated, _ := svc.GetAsset(asset.ID)
	if updated.Attributes["finish"] != receipt.Value {
		t.Fatalf("attribute not applied: %+v", updated.Attributes)
	}
}

func TestRerollFailsWhenAssetBurnedBeforeFulfillment(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	asset, _, err := svc.ReserveAndMint(ctx, "ava", domain.TierCommon, "", 100)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	cid, err := svc.RequestReroll(ctx, "ava", asset.ID, "finish")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := svc.BurnAsset(ctx, asset.ID); err != nil {
		t.Fatalf("burn: %v", err)
	}
	receipt, err := svc.OnEntropyFulfilled(ctx, cid, nil)
	if err == nil || receipt.Outcome != OutcomeFailed {
		t.Fatalf("expected failed fulfillment, got %v %s", err, receipt.Outcome)
	}
}

func TestItemDropLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	asset, _, err := svc.ReserveAndMint(ctx, "ava", domain.TierCommon, "", 100)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	cid, err := svc.RequestItemDrop(ctx, asset.ID)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	receipt, err := svc.OnEntropyFulfilled(ctx, cid, []byte("round-10"))
	if err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if receipt.Outcome != OutcomeDropped {
		t.Fatalf("outcome %s", receipt.Outcome)
	}
	updated, _ := svc.GetAsset(asset.ID)
	if len(updated.Drops) != 1 || updated.Drops[0] != receipt.Value {
		t.Fatalf("drop not recorded: %+v", updated.Drops)
	}
}

func TestEntropyRequestFailureLeavesNoPendingRecord(t *testing.T) {
	svc := newTestService(WithEntropySource(failingEntropy{}))
	_, err := svc.RequestStandardMint(context.Background(), "ava", "", "", 100)
	if err == nil {
		t.Fatalf("expected entropy failure")
	}
	if n := len(svc.Store().ListPendingEntropy()); n != 0 {
		t.Fatalf("no pending record should exist, got %d", n)
	}
}

func TestSetAssetMetadataAndQueries(t *testing.T) {
	svc := newTestService(WithClock(fixedClock{at: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}))
	ctx := context.Background()
	asset, _, err := svc.ReserveAndMint(ctx, "ava", domain.TierCommon, "ipfs://old", 100)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	updated, err := svc.SetAssetMetadata(ctx, asset.ID, "ipfs://new")
	if err != nil || updated.Metadata != "ipfs://new" {
		t.Fatalf("set metadata: %v %+v", err, updated)
	}
	if owner, err := svc.OwnerOf(asset.ID); err != nil || owner != "ava" {
		t.Fatalf("owner: %v %s", err, owner)
	}
	if _, err := svc.BurnAsset(ctx, asset.ID); err != nil {
		t.Fatalf("burn: %v", err)
	}
	var notFound domain.ErrNotFound
	if _, err := svc.OwnerOf(asset.ID); !errors.As(err, &notFound) {
		t.Fatalf("burned asset should report not found, got %v", err)
	}
	if _, err := svc.AncestryOf(asset.ID); !errors.As(err, &notFound) {
		t.Fatalf("burned asset ancestry should report not found, got %v", err)
	}
}

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }
