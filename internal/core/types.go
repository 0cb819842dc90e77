package core

import "relicforge/pkg/domain"

type (
	EntityType          = domain.EntityType
	Tier                = domain.Tier
	Severity            = domain.Severity
	Asset               = domain.Asset
	PendingFusion       = domain.PendingFusion
	PendingEntropy      = domain.PendingEntropy
	EntropyKind         = domain.EntropyKind
	StandardMintRequest = domain.StandardMintRequest
	InstantMintRequest  = domain.InstantMintRequest
	RerollRequest       = domain.RerollRequest
	ItemDropRequest     = domain.ItemDropRequest
	SupplyCounters      = domain.SupplyCounters
	SupplySchedule      = domain.SupplySchedule
	Change              = domain.Change
	Action              = domain.Action
	Violation           = domain.Violation
	Result              = domain.Result
	RulesEngine         = domain.RulesEngine
	RuleViolationError  = domain.RuleViolationError
	PersistentStore     = domain.PersistentStore
	Transaction         = domain.Transaction
	TransactionView     = domain.TransactionView
)

const (
	EntityAsset          = domain.EntityAsset
	EntityPendingFusion  = domain.EntityPendingFusion
	EntityPendingEntropy = domain.EntityPendingEntropy
	EntitySupply         = domain.EntitySupply
)

const (
	TierCommon    = domain.TierCommon
	TierRare      = domain.TierRare
	TierEpic      = domain.TierEpic
	TierMythic    = domain.TierMythic
	TierExalted   = domain.TierExalted
	TierLegendary = domain.TierLegendary
)

const (
	EntropyStandardMint = domain.EntropyStandardMint
	EntropyInstantMint  = domain.EntropyInstantMint
	EntropyReroll       = domain.EntropyReroll
	EntropyItemDrop     = domain.EntropyItemDrop
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
