package core

import (
	"context"
	"errors"
	"fmt"

	"relicforge/internal/infra/persistence/memory"
	"relicforge/pkg/domain"
)

// Service exposes the transactional lifecycle operations of the asset
// engine: synchronous mints, two-phase fusion, and entropy-gated requests
// with exactly-once fulfillment. Every mutating operation runs inside a
// single-writer store transaction.
type Service struct {
	store    PersistentStore
	engine   *RulesEngine
	schedule SupplySchedule
	entropy  EntropySource
	discount DiscountService
	access   AccessPolicy
	archive  ReceiptArchive
	clock    Clock
	logger   Logger
	metrics  MetricsRecorder
	tracer   Tracer
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:    store,
		schedule: domain.DefaultSchedule(),
		discount: noDiscount{},
		access:   allowAllPolicy{},
		clock:    utcClock{},
		logger:   noopLogger{},
		metrics:  noopMetrics{},
		tracer:   noopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store. When no
// rules engine is supplied via WithRules, the default policy set for the
// configured schedule is installed.
func NewInMemoryService(opts ...Option) *Service {
	s := NewService(nil, opts...)
	if s.engine == nil {
		s.engine = NewDefaultRulesEngine(s.schedule)
	}
	if s.store == nil {
		s.store = memory.NewStore(s.engine)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

// Schedule returns the immutable supply schedule.
func (s *Service) Schedule() SupplySchedule { return s.schedule }

// run wraps an operation with tracing, metrics, and logging.
func (s *Service) run(ctx context.Context, op string, fn func(context.Context) error) error {
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := fn(ctx)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, s.clock.Now().Sub(start))
	if err != nil {
		s.logger.Error(op+" failed", "error", err)
	} else {
		s.logger.Debug(op + " committed")
	}
	return err
}

func (s *Service) guardPaused() error {
	if s.access.IsPaused() {
		return domain.ErrPaused{}
	}
	return nil
}

// PriceFor returns the mint price for a tier, applying the discount
// collaborator's reduction when the code is valid.
func (s *Service) PriceFor(tier Tier, discountCode string) uint64 {
	base := s.schedule.BasePrice(tier)
	if discountCode != "" && s.discount.IsValid(discountCode) {
		return s.discount.PriceAfterDiscount(discountCode, base)
	}
	return base
}

// ReserveAndMint performs a synchronous known-tier mint: it fails when the
// tier or global ceiling would be exceeded or when the payment is below the
// tier price, and otherwise increments both counters and creates the asset
// in one atomic step.
func (s *Service) ReserveAndMint(ctx context.Context, recipient string, tier Tier, metadata string, paid uint64) (Asset, Result, error) {
	var minted Asset
	var result Result
	err := s.run(ctx, "reserve_and_mint", func(ctx context.Context) error {
		if err := s.guardPaused(); err != nil {
			return err
		}
		price := s.schedule.BasePrice(tier)
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if err := checkHeadroom(s.schedule, tx.Counters(), tier); err != nil {
				return err
			}
			if paid < price {
				return domain.ErrUnderpaid{Required: price, Paid: paid}
			}
			var mintErr error
			minted, mintErr = tx.MintAsset(recipient, tier, metadata, nil)
			return mintErr
		})
		result = res
		return err
	})
	return minted, result, err
}

// checkHeadroom verifies that one more mint of the tier fits under both the
// tier and global ceilings.
func checkHeadroom(schedule SupplySchedule, counters SupplyCounters, tier Tier) error {
	if !schedule.GlobalHeadroom(counters) {
		return domain.ErrSupplyExhausted{Global: true}
	}
	if counters.Minted[tier] >= schedule.CeilingFor(tier) {
		return domain.ErrSupplyExhausted{Tier: tier}
	}
	return nil
}

// RequestFusion validates ownership of the candidate parents, aggregates
// their ancestry, and opens a pending fusion record. Ownership is checked
// only here; FinalizeFusion burns the parents without re-verification.
func (s *Service) RequestFusion(ctx context.Context, requester string, parentIDs []uint64, metadata string) (uint64, error) {
	var fusionID uint64
	err := s.run(ctx, "request_fusion", func(ctx context.Context) error {
		if err := s.guardPaused(); err != nil {
			return err
		}
		if requester == "" {
			return domain.ErrValidation{Reason: "requester required"}
		}
		if len(parentIDs) < 2 {
			return domain.ErrValidation{Reason: "fusion requires at least 2 parents"}
		}
		seen := make(map[uint64]struct{}, len(parentIDs))
		for _, id := range parentIDs {
			if _, dup := seen[id]; dup {
				return domain.ErrValidation{Reason: fmt.Sprintf("duplicate parent %d", id)}
			}
			seen[id] = struct{}{}
		}
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			aggregate := 0
			for _, id := range parentIDs {
				parent, ok := tx.FindAsset(id)
				if !ok || !parent.Live() {
					return domain.ErrNotFound{Entity: EntityAsset, ID: fmt.Sprint(id)}
				}
				if parent.Owner != requester {
					return domain.ErrNotOwner{Caller: requester, AssetID: id}
				}
				aggregate += parent.AncestryScore
			}
			created, err := tx.CreatePendingFusion(PendingFusion{
				Requester:      requester,
				ParentIDs:      append([]uint64(nil), parentIDs...),
				Metadata:       metadata,
				AggregateScore: aggregate,
			})
			if err != nil {
				return err
			}
			fusionID = created.ID
			return nil
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	return fusionID, nil
}

// FinalizeFusion burns every parent of the pending fusion and mints one
// child of the tier classified from the aggregate ancestry score, deleting
// the pending record in the same transaction. Parents are burned without an
// ownership re-check; a parent transferred away since the request is still
// consumed.
func (s *Service) FinalizeFusion(ctx context.Context, caller string, fusionID uint64) (FusionReceipt, error) {
	var receipt FusionReceipt
	err := s.run(ctx, "finalize_fusion", func(ctx context.Context) error {
		if err := s.guardPaused(); err != nil {
			return err
		}
		if !s.access.IsAuthorized(caller, ActionFinalizeFusion) {
			return domain.ErrUnauthorized{Caller: caller, Action: ActionFinalizeFusion}
		}
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			pending, ok := tx.TakePendingFusion(fusionID)
			if !ok {
				return domain.ErrNotFound{Entity: EntityPendingFusion, ID: fmt.Sprint(fusionID)}
			}
			if !s.schedule.GlobalHeadroom(tx.Counters()) {
				return domain.ErrSupplyExhausted{Global: true}
			}
			for _, parentID := range pending.ParentIDs {
				// A parent consumed by an overlapping fusion is already dead;
				// the burn is an idempotent no-op in that case.
				if _, burnErr := tx.BurnAsset(parentID); burnErr != nil {
					var notFound domain.ErrNotFound
					if !errors.As(burnErr, &notFound) {
						return burnErr
					}
				}
			}
			tier := domain.ClassifyTierByAncestry(pending.AggregateScore)
			child, err := tx.MintAsset(pending.Requester, tier, pending.Metadata, pending.ParentIDs)
			if err != nil {
				return err
			}
			receipt = FusionReceipt{
				FusionID:    pending.ID,
				Requester:   pending.Requester,
				ParentIDs:   pending.ParentIDs,
				ChildID:     child.ID,
				ChildTier:   child.Tier,
				FinalizedAt: s.clock.Now(),
			}
			return nil
		})
		return err
	})
	if err != nil {
		return FusionReceipt{}, err
	}
	s.archiveReceipt(ctx, fmt.Sprintf("fusions/%d.json", receipt.FusionID), receipt)
	return receipt, nil
}

// RequestStandardMint validates payment against the discounted base price
// and current global headroom, forwards a request to the entropy
// collaborator, and stores a pending record under the returned correlation
// ID. No counter reservation happens here; headroom is re-validated at
// fulfillment.
func (s *Service) RequestStandardMint(ctx context.Context, recipient, metadata, discountCode string, paid uint64) (string, error) {
	var correlationID string
	err := s.run(ctx, "request_standard_mint", func(ctx context.Context) error {
		if err := s.guardPaused(); err != nil {
			return err
		}
		if recipient == "" {
			return domain.ErrValidation{Reason: "recipient required"}
		}
		price := s.PriceFor(s.schedule.BaseMintTier, discountCode)
		if paid < price {
			return domain.ErrUnderpaid{Required: price, Paid: paid}
		}
		if !s.schedule.GlobalHeadroom(s.store.Counters()) {
			return domain.ErrSupplyExhausted{Global: true}
		}
		return s.openPending(ctx, EntropyStandardMint, func(cid string) PendingEntropy {
			correlationID = cid
			return PendingEntropy{
				CorrelationID: cid,
				Kind:          EntropyStandardMint,
				StandardMint: &StandardMintRequest{
					Recipient:    recipient,
					Metadata:     metadata,
					DiscountCode: discountCode,
					Paid:         paid,
				},
			}
		})
	})
	if err != nil {
		return "", err
	}
	return correlationID, nil
}

// RequestInstantMint is the tier-specific analogue of RequestStandardMint:
// the tier is fixed at request time and replayed at fulfillment.
func (s *Service) RequestInstantMint(ctx context.Context, recipient string, tier Tier, metadata string, paid uint64) (string, error) {
	var correlationID string
	err := s.run(ctx, "request_instant_mint", func(ctx context.Context) error {
		if err := s.guardPaused(); err != nil {
			return err
		}
		if recipient == "" {
			return domain.ErrValidation{Reason: "recipient required"}
		}
		price := s.schedule.BasePrice(tier)
		if paid < price {
			return domain.ErrUnderpaid{Required: price, Paid: paid}
		}
		if err := checkHeadroom(s.schedule, s.store.Counters(), tier); err != nil {
			return err
		}
		return s.openPending(ctx, EntropyInstantMint, func(cid string) PendingEntropy {
			correlationID = cid
			return PendingEntropy{
				CorrelationID: cid,
				Kind:          EntropyInstantMint,
				InstantMint: &InstantMintRequest{
					Recipient: recipient,
					Tier:      tier,
					Metadata:  metadata,
					Paid:      paid,
				},
			}
		})
	})
	if err != nil {
		return "", err
	}
	return correlationID, nil
}

// RequestReroll opens a pending reroll of one named attribute on an asset
// owned by the requester.
func (s *Service) RequestReroll(ctx context.Context, requester string, assetID uint64, attribute string) (string, error) {
	var correlationID string
	err := s.run(ctx, "request_reroll", func(ctx context.Context) error {
		if err := s.guardPaused(); err != nil {
			return err
		}
		if attribute == "" {
			return domain.ErrValidation{Reason: "attribute required"}
		}
		asset, ok := s.store.GetAsset(assetID)
		if !ok || !asset.Live() {
			return domain.ErrNotFound{Entity: EntityAsset, ID: fmt.Sprint(assetID)}
		}
		if asset.Owner != requester {
			return domain.ErrNotOwner{Caller: requester, AssetID: assetID}
		}
		return s.openPending(ctx, EntropyReroll, func(cid string) PendingEntropy {
			correlationID = cid
			return PendingEntropy{
				CorrelationID: cid,
				Kind:          EntropyReroll,
				Reroll: &RerollRequest{
					Requester: requester,
					AssetID:   assetID,
					Attribute: attribute,
				},
			}
		})
	})
	if err != nil {
		return "", err
	}
	return correlationID, nil
}

// RequestItemDrop opens a pending item drop for a live asset.
func (s *Service) RequestItemDrop(ctx context.Context, assetID uint64) (string, error) {
	var correlationID string
	err := s.run(ctx, "request_item_drop", func(ctx context.Context) error {
		if err := s.guardPaused(); err != nil {
			return err
		}
		asset, ok := s.store.GetAsset(assetID)
		if !ok || !asset.Live() {
			return domain.ErrNotFound{Entity: EntityAsset, ID: fmt.Sprint(assetID)}
		}
		return s.openPending(ctx, EntropyItemDrop, func(cid string) PendingEntropy {
			correlationID = cid
			return PendingEntropy{
				CorrelationID: cid,
				Kind:          EntropyItemDrop,
				ItemDrop:      &ItemDropRequest{AssetID: assetID},
			}
		})
	})
	if err != nil {
		return "", err
	}
	return correlationID, nil
}

// openPending forwards a request to the entropy collaborator and stores the
// pending record under the returned correlation ID.
func (s *Service) openPending(ctx context.Context, kind EntropyKind, build func(correlationID string) PendingEntropy) error {
	if s.entropy == nil {
		return fmt.Errorf("entropy source not configured")
	}
	correlationID, err := s.entropy.Request(ctx, kind)
	if err != nil {
		return fmt.Errorf("entropy request: %w", err)
	}
	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		_, createErr := tx.CreatePendingEntropy(build(correlationID))
		return createErr
	})
	return err
}

// OnEntropyFulfilled matches a fulfillment to its pending record and applies
// the deferred mutation in a single check-presence/mutate/delete step. A
// correlation ID with no pending record is a silent no-op, which makes
// duplicate delivery harmless. When the record exists but the mutation can
// no longer be applied, the record is still consumed, a failed receipt is
// archived, and the typed error is returned for external compensation.
func (s *Service) OnEntropyFulfilled(ctx context.Context, correlationID string, payload []byte) (FulfillmentReceipt, error) {
	var receipt FulfillmentReceipt
	var opErr error
	err := s.run(ctx, "on_entropy_fulfilled", func(ctx context.Context) error {
		if err := s.guardPaused(); err != nil {
			return err
		}
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			pending, ok := tx.TakePendingEntropy(correlationID)
			if !ok {
				receipt = FulfillmentReceipt{
					CorrelationID: correlationID,
					Outcome:       OutcomeIgnored,
					FulfilledAt:   s.clock.Now(),
				}
				return nil
			}
			receipt, opErr = s.fulfill(tx, pending, payload)
			return nil
		})
		return err
	})
	if err != nil {
		return FulfillmentReceipt{}, err
	}
	if receipt.Outcome != OutcomeIgnored {
		s.archiveReceipt(ctx, "fulfillments/"+correlationID+".json", receipt)
	}
	return receipt, opErr
}

// fulfill applies the deferred mutation for one consumed pending record.
func (s *Service) fulfill(tx Transaction, pending PendingEntropy, payload []byte) (FulfillmentReceipt, error) {
	receipt := FulfillmentReceipt{
		CorrelationID: pending.CorrelationID,
		Kind:          pending.Kind,
		FulfilledAt:   s.clock.Now(),
	}
	switch pending.Kind {
	case EntropyStandardMint:
		req := pending.StandardMint
		// Tier is decided from the global minted count read now, not at
		// request time: unrelated mints completed in between shift the
		// outcome. Documented behavior, reproduced as specified.
		counters := tx.Counters()
		tier := s.schedule.BaseMintTier
		if counters.Global < s.schedule.EarlyMintThreshold {
			tier = s.schedule.EarlyMintTier
		}
		if err := checkHeadroom(s.schedule, counters, tier); err != nil {
			receipt.Outcome = OutcomeFailed
			receipt.Reason = err.Error()
			return receipt, err
		}
		minted, err := tx.MintAsset(req.Recipient, tier, req.Metadata, nil)
		if err != nil {
			receipt.Outcome = OutcomeFailed
			receipt.Reason = err.Error()
			return receipt, err
		}
		receipt.Outcome = OutcomeMinted
		receipt.AssetID = minted.ID
		receipt.Tier = minted.Tier
	case EntropyInstantMint:
		req := pending.InstantMint
		// Entropy payload accepted but unused for now; reserved for trait
		// randomization.
		if err := checkHeadroom(s.schedule, tx.Counters(), req.Tier); err != nil {
			receipt.Outcome = OutcomeFailed
			receipt.Reason = err.Error()
			return receipt, err
		}
		minted, err := tx.MintAsset(req.Recipient, req.Tier, req.Metadata, nil)
		if err != nil {
			receipt.Outcome = OutcomeFailed
			receipt.Reason = err.Error()
			return receipt, err
		}
		receipt.Outcome = OutcomeMinted
		receipt.AssetID = minted.ID
		receipt.Tier = minted.Tier
	case EntropyReroll:
		req := pending.Reroll
		band := selectBand(rerollBands, deriveValue(rerollTag, pending.CorrelationID, payload))
		asset, err := tx.SetAssetAttribute(req.AssetID, req.Attribute, band)
		if err != nil {
			receipt.Outcome = OutcomeFailed
			receipt.Reason = err.Error()
			return receipt, err
		}
		receipt.Outcome = OutcomeRerolled
		receipt.AssetID = asset.ID
		receipt.Value = band
	case EntropyItemDrop:
		req := pending.ItemDrop
		item := selectBand(itemDropBands, deriveValue(itemDropTag, pending.CorrelationID, payload))
		asset, err := tx.RecordItemDrop(req.AssetID, item)
		if err != nil {
			receipt.Outcome = OutcomeFailed
			receipt.Reason = err.Error()
			return receipt, err
		}
		receipt.Outcome = OutcomeDropped
		receipt.AssetID = asset.ID
		receipt.Value = item
	default:
		receipt.Outcome = OutcomeFailed
		receipt.Reason = fmt.Sprintf("unknown entropy kind %q", pending.Kind)
		return receipt, fmt.Errorf("unknown entropy kind %q", pending.Kind)
	}
	return receipt, nil
}

// BurnAsset marks an asset permanently dead. The ID is never reassigned.
func (s *Service) BurnAsset(ctx context.Context, id uint64) (Asset, error) {
	var burned Asset
	err := s.run(ctx, "burn_asset", func(ctx context.Context) error {
		if err := s.guardPaused(); err != nil {
			return err
		}
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var burnErr error
			burned, burnErr = tx.BurnAsset(id)
			return burnErr
		})
		return err
	})
	if err != nil {
		return Asset{}, err
	}
	return burned, nil
}

// SetAssetMetadata replaces a live asset's metadata reference. Consumed by
// the decay and achievement collaborators.
func (s *Service) SetAssetMetadata(ctx context.Context, id uint64, metadata string) (Asset, error) {
	var updated Asset
	err := s.run(ctx, "set_asset_metadata", func(ctx context.Context) error {
		if err := s.guardPaused(); err != nil {
			return err
		}
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var setErr error
			updated, setErr = tx.SetAssetMetadata(id, metadata)
			return setErr
		})
		return err
	})
	if err != nil {
		return Asset{}, err
	}
	return updated, nil
}

// AncestryOf returns a live asset's ancestry score. Burned and unknown IDs
// report not found.
func (s *Service) AncestryOf(id uint64) (int, error) {
	asset, ok := s.store.GetAsset(id)
	if !ok || !asset.Live() {
		return 0, domain.ErrNotFound{Entity: EntityAsset, ID: fmt.Sprint(id)}
	}
	return asset.AncestryScore, nil
}

// OwnerOf returns a live asset's owner. Burned and unknown IDs report not
// found.
func (s *Service) OwnerOf(id uint64) (string, error) {
	asset, ok := s.store.GetAsset(id)
	if !ok || !asset.Live() {
		return "", domain.ErrNotFound{Entity: EntityAsset, ID: fmt.Sprint(id)}
	}
	return asset.Owner, nil
}

// GetAsset retrieves an asset record by ID, burned records included.
func (s *Service) GetAsset(id uint64) (Asset, bool) {
	return s.store.GetAsset(id)
}

// Supply returns a copy of the current supply counters.
func (s *Service) Supply() SupplyCounters {
	return s.store.Counters()
}

func (s *Service) archiveReceipt(ctx context.Context, key string, receipt any) {
	if s.archive == nil {
		return
	}
	if err := s.archive.Archive(ctx, key, receipt); err != nil {
		s.logger.Warn("receipt archive failed", "key", key, "error", err)
	}
}
