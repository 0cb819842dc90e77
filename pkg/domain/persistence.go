package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. MintAsset and CreatePendingFusion
// allocate from the monotonic counters; IDs are never reused, even after
// burns or deletions.
type Transaction interface {
	Snapshot() TransactionView

	MintAsset(owner string, tier Tier, metadata string, lineage []uint64) (Asset, error)
	BurnAsset(id uint64) (Asset, error)
	SetAssetMetadata(id uint64, metadata string) (Asset, error)
	SetAssetAttribute(id uint64, key, value string) (Asset, error)
	RecordItemDrop(id uint64, item string) (Asset, error)
	FindAsset(id uint64) (Asset, bool)

	CreatePendingFusion(PendingFusion) (PendingFusion, error)
	FindPendingFusion(id uint64) (PendingFusion, bool)
	// TakePendingFusion removes and returns the pending fusion in one step.
	TakePendingFusion(id uint64) (PendingFusion, bool)

	CreatePendingEntropy(PendingEntropy) (PendingEntropy, error)
	FindPendingEntropy(correlationID string) (PendingEntropy, bool)
	// TakePendingEntropy removes and returns the pending record in one step,
	// making duplicate fulfillment a detectable no-op.
	TakePendingEntropy(correlationID string) (PendingEntropy, bool)

	Counters() SupplyCounters
}

// TransactionView provides read-only access to snapshot data for rules and
// queries.
type TransactionView interface {
	ListAssets() []Asset
	FindAsset(id uint64) (Asset, bool)
	ListPendingFusions() []PendingFusion
	ListPendingEntropy() []PendingEntropy
	Counters() SupplyCounters
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetAsset(id uint64) (Asset, bool)
	ListAssets() []Asset
	GetPendingFusion(id uint64) (PendingFusion, bool)
	ListPendingFusions() []PendingFusion
	GetPendingEntropy(correlationID string) (PendingEntropy, bool)
	ListPendingEntropy() []PendingEntropy
	Counters() SupplyCounters
}
