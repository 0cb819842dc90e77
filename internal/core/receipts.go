package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"relicforge/internal/blob"
)

// FusionOutcome / fulfillment outcomes recorded on receipts.
const (
	OutcomeMinted   = "minted"
	OutcomeRerolled = "rerolled"
	OutcomeDropped  = "dropped"
	// OutcomeIgnored marks a fulfillment for an unknown or already processed
	// correlation ID. Nothing was mutated.
	OutcomeIgnored = "ignored"
	// OutcomeFailed marks a fulfillment whose pending record was consumed but
	// whose mutation could not be applied (supply exhausted, asset burned).
	// External payment systems compensate from these receipts.
	OutcomeFailed = "failed"
)

// FusionReceipt is the completion record emitted when a fusion finalizes.
type FusionReceipt struct {
	FusionID    uint64    `json:"fusion_id"`
	Requester   string    `json:"requester"`
	ParentIDs   []uint64  `json:"parent_ids"`
	ChildID     uint64    `json:"child_id"`
	ChildTier   Tier      `json:"child_tier"`
	FinalizedAt time.Time `json:"finalized_at"`
}

// FulfillmentReceipt is the completion record emitted when an entropy
// fulfillment is processed.
type FulfillmentReceipt struct {
	CorrelationID string      `json:"correlation_id"`
	Kind          EntropyKind `json:"kind,omitempty"`
	Outcome       string      `json:"outcome"`
	AssetID       uint64      `json:"asset_id,omitempty"`
	Tier          Tier        `json:"tier,omitempty"`
	Value         string      `json:"value,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	FulfilledAt   time.Time   `json:"fulfilled_at"`
}

// ReceiptArchive persists completion records outside the transactional store.
type ReceiptArchive interface {
	Archive(ctx context.Context, key string, receipt any) error
}

// blobArchive writes receipts as JSON objects into a blob store.
type blobArchive struct {
	store blob.Store
}

// NewBlobArchive adapts a blob store into a receipt archive.
func NewBlobArchive(store blob.Store) ReceiptArchive {
	return blobArchive{store: store}
}

func (a blobArchive) Archive(ctx context.Context, key string, receipt any) error {
	data, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("encode receipt %s: %w", key, err)
	}
	_, err = a.store.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("archive receipt %s: %w", key, err)
	}
	return nil
}
