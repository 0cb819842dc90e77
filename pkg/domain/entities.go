// Package domain defines the core persistent entities, tier tables, and
// rule evaluation primitives used by relicforge.
package domain

import (
	"fmt"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityAsset identifies an individual collectible asset record.
	EntityAsset EntityType = "asset"
	// EntityPendingFusion identifies a pending fusion request record.
	EntityPendingFusion EntityType = "pending_fusion"
	// EntityPendingEntropy identifies a pending entropy request record.
	EntityPendingEntropy EntityType = "pending_entropy"
	// EntitySupply identifies the supply counter record.
	EntitySupply EntityType = "supply"
)

// Tier is an ordered rank of asset scarcity. Higher tiers carry smaller
// supply ceilings and higher base prices.
type Tier int

// Canonical tiers, lowest to highest rank.
const (
	TierCommon Tier = iota
	TierRare
	TierEpic
	TierMythic
	TierExalted
	TierLegendary
)

// Tiers lists every tier in rank order.
func Tiers() []Tier {
	return []Tier{TierCommon, TierRare, TierEpic, TierMythic, TierExalted, TierLegendary}
}

func (t Tier) String() string {
	switch t {
	case TierCommon:
		return "common"
	case TierRare:
		return "rare"
	case TierEpic:
		return "epic"
	case TierMythic:
		return "mythic"
	case TierExalted:
		return "exalted"
	case TierLegendary:
		return "legendary"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// MarshalText encodes the tier as its canonical name for JSON payloads and
// map keys.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a canonical tier name.
func (t *Tier) UnmarshalText(text []byte) error {
	switch string(text) {
	case "common":
		*t = TierCommon
	case "rare":
		*t = TierRare
	case "epic":
		*t = TierEpic
	case "mythic":
		*t = TierMythic
	case "exalted":
		*t = TierExalted
	case "legendary":
		*t = TierLegendary
	default:
		return fmt.Errorf("unknown tier %q", text)
	}
	return nil
}

// Asset represents an individually tracked collectible. IDs are sequential
// and never reused; a burned asset keeps its record with BurnedAt set.
type Asset struct {
	ID            uint64            `json:"id"`
	Owner         string            `json:"owner"`
	Tier          Tier              `json:"tier"`
	AncestryScore int               `json:"ancestry_score"`
	Lineage       []uint64          `json:"lineage"`
	Metadata      string            `json:"metadata"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	Drops         []string          `json:"drops,omitempty"`
	Legendary     bool              `json:"legendary"`
	MintedAt      time.Time         `json:"minted_at"`
	BurnedAt      *time.Time        `json:"burned_at,omitempty"`
}

// Live reports whether the asset exists and has not been burned.
func (a Asset) Live() bool {
	return a.ID != 0 && a.BurnedAt == nil
}

// PendingFusion holds a fusion request awaiting finalization. The aggregate
// ancestry score is computed once at request time from the parents' scores.
type PendingFusion struct {
	ID             uint64    `json:"id"`
	Requester      string    `json:"requester"`
	ParentIDs      []uint64  `json:"parent_ids"`
	Metadata       string    `json:"metadata"`
	AggregateScore int       `json:"aggregate_score"`
	RequestedAt    time.Time `json:"requested_at"`
}

// EntropyKind tags the operation variant held by a pending entropy record.
type EntropyKind string

// Pending entropy variants. A correlation ID maps to exactly one variant.
const (
	EntropyStandardMint EntropyKind = "standard_mint"
	EntropyInstantMint  EntropyKind = "instant_mint"
	EntropyReroll       EntropyKind = "reroll"
	EntropyItemDrop     EntropyKind = "item_drop"
)

// StandardMintRequest is a paid mint whose tier is decided at fulfillment
// time from the global minted count.
type StandardMintRequest struct {
	Recipient    string `json:"recipient"`
	Metadata     string `json:"metadata"`
	DiscountCode string `json:"discount_code,omitempty"`
	Paid         uint64 `json:"paid"`
}

// InstantMintRequest is a paid mint of a caller-chosen tier; the tier is
// recorded at request time and replayed at fulfillment.
type InstantMintRequest struct {
	Recipient string `json:"recipient"`
	Tier      Tier   `json:"tier"`
	Metadata  string `json:"metadata"`
	Paid      uint64 `json:"paid"`
}

// RerollRequest rerolls a single named attribute on a live asset.
type RerollRequest struct {
	Requester string `json:"requester"`
	AssetID   uint64 `json:"asset_id"`
	Attribute string `json:"attribute"`
}

// ItemDropRequest awards a random item to a live asset.
type ItemDropRequest struct {
	AssetID uint64 `json:"asset_id"`
}

// PendingEntropy is the tagged record keyed by correlation ID for any
// operation awaiting an out-of-band entropy fulfillment. Exactly one of the
// variant pointers matching Kind is set.
type PendingEntropy struct {
	CorrelationID string               `json:"correlation_id"`
	Kind          EntropyKind          `json:"kind"`
	RequestedAt   time.Time            `json:"requested_at"`
	StandardMint  *StandardMintRequest `json:"standard_mint,omitempty"`
	InstantMint   *InstantMintRequest  `json:"instant_mint,omitempty"`
	Reroll        *RerollRequest       `json:"reroll,omitempty"`
	ItemDrop      *ItemDropRequest     `json:"item_drop,omitempty"`
}

// SupplyCounters tracks per-tier and global minted counts alongside the
// monotonic ID allocators. Counts never decrease; burned assets stay counted.
type SupplyCounters struct {
	Minted       map[Tier]uint64 `json:"minted"`
	Global       uint64          `json:"global"`
	NextAssetID  uint64          `json:"next_asset_id"`
	NextFusionID uint64          `json:"next_fusion_id"`
}

// NewSupplyCounters returns zeroed counters with allocators starting at 1.
func NewSupplyCounters() SupplyCounters {
	return SupplyCounters{
		Minted:       make(map[Tier]uint64),
		NextAssetID:  1,
		NextFusionID: 1,
	}
}

// Clone returns an independent copy of the counters.
func (c SupplyCounters) Clone() SupplyCounters {
	cp := c
	cp.Minted = make(map[Tier]uint64, len(c.Minted))
	for k, v := range c.Minted {
		cp.Minted[k] = v
	}
	return cp
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured in the audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated (burns included).
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
