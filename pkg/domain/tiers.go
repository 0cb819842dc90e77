package domain

// LegendaryScoreFloor is the lowest aggregate ancestry score that classifies
// as the top tier.
const LegendaryScoreFloor = 100

// classifyTable maps exact aggregate ancestry scores to tiers. Scores between
// listed values do not round to a neighbor; they classify as common.
var classifyTable = map[int]Tier{
	3:  TierRare,
	6:  TierEpic,
	9:  TierMythic,
	11: TierExalted,
}

// ClassifyTierByAncestry classifies a fused asset's tier from its aggregate
// ancestry score. The table is exact-match below LegendaryScoreFloor.
func ClassifyTierByAncestry(score int) Tier {
	if score >= LegendaryScoreFloor {
		return TierLegendary
	}
	if tier, ok := classifyTable[score]; ok {
		return tier
	}
	return TierCommon
}

// mintScores fixes the ancestry score assigned to an asset minted at a given
// tier. The values line up with the classification table so that fusing two
// assets of one tier yields the next: 3+3 classifies epic, 3+6 mythic.
var mintScores = map[Tier]int{
	TierCommon:    1,
	TierRare:      3,
	TierEpic:      6,
	TierMythic:    9,
	TierExalted:   11,
	TierLegendary: LegendaryScoreFloor,
}

// MintScore returns the ancestry score assigned at mint time for a tier.
func MintScore(tier Tier) int {
	return mintScores[tier]
}

// SupplySchedule holds the immutable mint ceilings, base prices, and the
// standard-mint tier decision parameters. Ceilings are per tier plus one
// combined global ceiling; the top tier is a singleton.
type SupplySchedule struct {
	TierCeilings  map[Tier]uint64 `json:"tier_ceilings"`
	GlobalCeiling uint64          `json:"global_ceiling"`
	BasePrices    map[Tier]uint64 `json:"base_prices"`

	// EarlyMintThreshold splits standard-mint fulfillments: while the global
	// minted count (read at fulfillment time) is below the threshold the
	// early tier is minted, afterwards the base tier.
	EarlyMintThreshold uint64 `json:"early_mint_threshold"`
	EarlyMintTier      Tier   `json:"early_mint_tier"`
	BaseMintTier       Tier   `json:"base_mint_tier"`
}

// DefaultSchedule returns the production supply schedule.
func DefaultSchedule() SupplySchedule {
	return SupplySchedule{
		TierCeilings: map[Tier]uint64{
			TierCommon:    8000,
			TierRare:      1600,
			TierEpic:      640,
			TierMythic:    320,
			TierExalted:   128,
			TierLegendary: 1,
		},
		GlobalCeiling: 10000,
		BasePrices: map[Tier]uint64{
			TierCommon:    2500,
			TierRare:      7500,
			TierEpic:      20000,
			TierMythic:    45000,
			TierExalted:   90000,
			TierLegendary: 250000,
		},
		EarlyMintThreshold: 250,
		EarlyMintTier:      TierRare,
		BaseMintTier:       TierCommon,
	}
}

// CeilingFor returns the mint ceiling for a tier.
func (s SupplySchedule) CeilingFor(tier Tier) uint64 {
	return s.TierCeilings[tier]
}

// BasePrice returns the undiscounted mint price for a tier.
func (s SupplySchedule) BasePrice(tier Tier) uint64 {
	return s.BasePrices[tier]
}

// TierHeadroom reports whether one more mint of the tier fits under both the
// tier ceiling and the global ceiling.
func (s SupplySchedule) TierHeadroom(c SupplyCounters, tier Tier) bool {
	if c.Global >= s.GlobalCeiling {
		return false
	}
	return c.Minted[tier] < s.TierCeilings[tier]
}

// GlobalHeadroom reports whether any mint fits under the global ceiling.
func (s SupplySchedule) GlobalHeadroom(c SupplyCounters) bool {
	return c.Global < s.GlobalCeiling
}
