// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"relicforge/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Asset aliases domain.Asset for in-memory persistence operations.
	Asset = domain.Asset
	// Tier aliases domain.Tier.
	Tier = domain.Tier
	// PendingFusion aliases domain.PendingFusion.
	PendingFusion = domain.PendingFusion
	// PendingEntropy aliases domain.PendingEntropy.
	PendingEntropy = domain.PendingEntropy
	// SupplyCounters aliases domain.SupplyCounters.
	SupplyCounters = domain.SupplyCounters
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	assets   map[uint64]Asset
	fusions  map[uint64]PendingFusion
	entropy  map[string]PendingEntropy
	counters SupplyCounters
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Assets   map[uint64]Asset          `json:"assets"`
	Fusions  map[uint64]PendingFusion  `json:"fusions"`
	Entropy  map[string]PendingEntropy `json:"entropy"`
	Counters SupplyCounters            `json:"counters"`
}

func newMemoryState() memoryState {
	return memoryState{
		assets:   make(map[uint64]Asset),
		fusions:  make(map[uint64]PendingFusion),
		entropy:  make(map[string]PendingEntropy),
		counters: domain.NewSupplyCounters(),
	}
}

func cloneAsset(a Asset) Asset {
	cp := a
	cp.Lineage = append([]uint64(nil), a.Lineage...)
	cp.Drops = append([]string(nil), a.Drops...)
	if a.Attributes != nil {
		cp.Attributes = make(map[string]string, len(a.Attributes))
		for k, v := range a.Attributes {
			cp.Attributes[k] = v
		}
	}
	if a.BurnedAt != nil {
		t := *a.BurnedAt
		cp.BurnedAt = &t
	}
	return cp
}

func cloneFusion(f PendingFusion) PendingFusion {
	cp := f
	cp.ParentIDs = append([]uint64(nil), f.ParentIDs...)
	return cp
}

func cloneEntropy(p PendingEntropy) PendingEntropy {
	cp := p
	if p.StandardMint != nil {
		v := *p.StandardMint
		cp.StandardMint = &v
	}
	if p.InstantMint != nil {
		v := *p.InstantMint
		cp.InstantMint = &v
	}
	if p.Reroll != nil {
		v := *p.Reroll
		cp.Reroll = &v
	}
	if p.ItemDrop != nil {
		v := *p.ItemDrop
		cp.ItemDrop = &v
	}
	return cp
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.assets {
		cloned.assets[k] = cloneAsset(v)
	}
	for k, v := range s.fusions {
		cloned.fusions[k] = cloneFusion(v)
	}
	for k, v := range s.entropy {
		cloned.entropy[k] = cloneEntropy(v)
	}
	cloned.counters = s.counters.Clone()
	return cloned
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the store clock, primarily for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.nowFn = now
	}
}

// ExportState returns a snapshot of the committed state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromState(s.state)
}

// ImportState replaces the committed state with the supplied snapshot.
// Zero-valued allocators are normalized so imported legacy snapshots keep
// allocating valid IDs.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := newMemoryState()
	for k, v := range snapshot.Assets {
		state.assets[k] = cloneAsset(v)
	}
	for k, v := range snapshot.Fusions {
		state.fusions[k] = cloneFusion(v)
	}
	for k, v := range snapshot.Entropy {
		state.entropy[k] = cloneEntropy(v)
	}
	if snapshot.Counters.Minted != nil {
		state.counters = snapshot.Counters.Clone()
	}
	if state.counters.NextAssetID == 0 {
		state.counters.NextAssetID = 1
	}
	if state.counters.NextFusionID == 0 {
		state.counters.NextFusionID = 1
	}
	for id := range state.assets {
		if id >= state.counters.NextAssetID {
			state.counters.NextAssetID = id + 1
		}
	}
	for id := range state.fusions {
		if id >= state.counters.NextFusionID {
			state.counters.NextFusionID = id + 1
		}
	}
	s.state = state
}

func snapshotFromState(state memoryState) Snapshot {
	snap := Snapshot{
		Assets:   make(map[uint64]Asset, len(state.assets)),
		Fusions:  make(map[uint64]PendingFusion, len(state.fusions)),
		Entropy:  make(map[string]PendingEntropy, len(state.entropy)),
		Counters: state.counters.Clone(),
	}
	for k, v := range state.assets {
		snap.Assets[k] = cloneAsset(v)
	}
	for k, v := range state.fusions {
		snap.Fusions[k] = cloneFusion(v)
	}
	for k, v := range state.entropy {
		snap.Entropy[k] = cloneEntropy(v)
	}
	return snap
}

// transaction implements domain.Transaction over a cloned state.
type transaction struct {
	state   *memoryState
	changes []Change
	now     time.Time
}

var _ Transaction = (*transaction)(nil)

// view implements domain.TransactionView over a state snapshot.
type view struct {
	state *memoryState
}

var _ TransactionView = view{}

// ListAssets returns all assets within the snapshot, ordered by ID.
func (v view) ListAssets() []Asset {
	out := make([]Asset, 0, len(v.state.assets))
	for _, a := range v.state.assets {
		out = append(out, cloneAsset(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindAsset retrieves an asset by ID from the snapshot.
func (v view) FindAsset(id uint64) (Asset, bool) {
	a, ok := v.state.assets[id]
	if !ok {
		return Asset{}, false
	}
	return cloneAsset(a), true
}

// ListPendingFusions returns all pending fusions ordered by ID.
func (v view) ListPendingFusions() []PendingFusion {
	out := make([]PendingFusion, 0, len(v.state.fusions))
	for _, f := range v.state.fusions {
		out = append(out, cloneFusion(f))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListPendingEntropy returns all pending entropy records ordered by correlation ID.
func (v view) ListPendingEntropy() []PendingEntropy {
	out := make([]PendingEntropy, 0, len(v.state.entropy))
	for _, p := range v.state.entropy {
		out = append(out, cloneEntropy(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CorrelationID < out[j].CorrelationID })
	return out
}

// Counters returns a copy of the supply counters.
func (v view) Counters() SupplyCounters {
	return v.state.counters.Clone()
}

// RunInTransaction executes fn within a transactional copy of the store
// state. The copy is committed only when fn succeeds and no blocking rule
// violations are reported.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.state.clone()
	tx := &transaction{state: &state, now: s.nowFn()}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, view{state: &state}, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(view{state: &snapshot})
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot exposes the transactional state to rule helpers.
func (tx *transaction) Snapshot() TransactionView {
	return view{state: tx.state}
}

// MintAsset creates a new asset at the next sequential ID and bumps the
// per-tier and global counters in the same step.
func (tx *transaction) MintAsset(owner string, tier Tier, metadata string, lineage []uint64) (Asset, error) {
	if owner == "" {
		return Asset{}, domain.ErrValidation{Reason: "owner required"}
	}
	before := tx.state.counters.Clone()
	id := tx.state.counters.NextAssetID
	tx.state.counters.NextAssetID++
	tx.state.counters.Minted[tier]++
	tx.state.counters.Global++

	asset := Asset{
		ID:            id,
		Owner:         owner,
		Tier:          tier,
		AncestryScore: domain.MintScore(tier),
		Lineage:       append([]uint64(nil), lineage...),
		Metadata:      metadata,
		Legendary:     tier == domain.TierLegendary,
		MintedAt:      tx.now,
	}
	if len(lineage) > 0 {
		score := 0
		for _, pid := range lineage {
			if parent, ok := tx.state.assets[pid]; ok {
				score += parent.AncestryScore
			}
		}
		asset.AncestryScore = score
	}
	tx.state.assets[id] = cloneAsset(asset)
	tx.recordChange(Change{Entity: domain.EntityAsset, Action: domain.ActionCreate, After: cloneAsset(asset)})
	tx.recordChange(Change{Entity: domain.EntitySupply, Action: domain.ActionUpdate, Before: before, After: tx.state.counters.Clone()})
	return cloneAsset(asset), nil
}

// BurnAsset marks an asset permanently dead. The ID is never reassigned.
func (tx *transaction) BurnAsset(id uint64) (Asset, error) {
	current, ok := tx.state.assets[id]
	if !ok || current.BurnedAt != nil {
		return Asset{}, domain.ErrNotFound{Entity: domain.EntityAsset, ID: fmt.Sprint(id)}
	}
	before := cloneAsset(current)
	burnedAt := tx.now
	current.BurnedAt = &burnedAt
	tx.state.assets[id] = cloneAsset(current)
	tx.recordChange(Change{Entity: domain.EntityAsset, Action: domain.ActionUpdate, Before: before, After: cloneAsset(current)})
	return cloneAsset(current), nil
}

func (tx *transaction) mutateLiveAsset(id uint64, mutate func(*Asset)) (Asset, error) {
	current, ok := tx.state.assets[id]
	if !ok || current.BurnedAt != nil {
		return Asset{}, domain.ErrNotFound{Entity: domain.EntityAsset, ID: fmt.Sprint(id)}
	}
	before := cloneAsset(current)
	mutate(&current)
	current.ID = id
	tx.state.assets[id] = cloneAsset(current)
	tx.recordChange(Change{Entity: domain.EntityAsset, Action: domain.ActionUpdate, Before: before, After: cloneAsset(current)})
	return cloneAsset(current), nil
}

// SetAssetMetadata replaces a live asset's metadata reference.
func (tx *transaction) SetAssetMetadata(id uint64, metadata string) (Asset, error) {
	return tx.mutateLiveAsset(id, func(a *Asset) {
		a.Metadata = metadata
	})
}

// SetAssetAttribute sets one named attribute on a live asset.
func (tx *transaction) SetAssetAttribute(id uint64, key, value string) (Asset, error) {
	return tx.mutateLiveAsset(id, func(a *Asset) {
		if a.Attributes == nil {
			a.Attributes = make(map[string]string)
		}
		a.Attributes[key] = value
	})
}

// RecordItemDrop appends an item to a live asset's drop log.
func (tx *transaction) RecordItemDrop(id uint64, item string) (Asset, error) {
	return tx.mutateLiveAsset(id, func(a *Asset) {
		a.Drops = append(a.Drops, item)
	})
}

// FindAsset retrieves an asset by ID, burned records included.
func (tx *transaction) FindAsset(id uint64) (Asset, bool) {
	a, ok := tx.state.assets[id]
	if !ok {
		return Asset{}, false
	}
	return cloneAsset(a), true
}

// CreatePendingFusion stores a pending fusion at the next monotonic fusion ID.
func (tx *transaction) CreatePendingFusion(f PendingFusion) (PendingFusion, error) {
	if f.ID == 0 {
		f.ID = tx.state.counters.NextFusionID
		tx.state.counters.NextFusionID++
	} else if _, exists := tx.state.fusions[f.ID]; exists {
		return PendingFusion{}, fmt.Errorf("pending fusion %d already exists", f.ID)
	}
	f.RequestedAt = tx.now
	tx.state.fusions[f.ID] = cloneFusion(f)
	tx.recordChange(Change{Entity: domain.EntityPendingFusion, Action: domain.ActionCreate, After: cloneFusion(f)})
	return cloneFusion(f), nil
}

// FindPendingFusion retrieves a pending fusion by ID.
func (tx *transaction) FindPendingFusion(id uint64) (PendingFusion, bool) {
	f, ok := tx.state.fusions[id]
	if !ok {
		return PendingFusion{}, false
	}
	return cloneFusion(f), true
}

// TakePendingFusion removes and returns the pending fusion in one step.
func (tx *transaction) TakePendingFusion(id uint64) (PendingFusion, bool) {
	f, ok := tx.state.fusions[id]
	if !ok {
		return PendingFusion{}, false
	}
	delete(tx.state.fusions, id)
	tx.recordChange(Change{Entity: domain.EntityPendingFusion, Action: domain.ActionDelete, Before: cloneFusion(f)})
	return cloneFusion(f), true
}

// CreatePendingEntropy stores a pending entropy record keyed by its
// correlation ID. A correlation ID can only ever hold one variant.
func (tx *transaction) CreatePendingEntropy(p PendingEntropy) (PendingEntropy, error) {
	if p.CorrelationID == "" {
		return PendingEntropy{}, domain.ErrValidation{Reason: "correlation id required"}
	}
	if _, exists := tx.state.entropy[p.CorrelationID]; exists {
		return PendingEntropy{}, fmt.Errorf("pending entropy %s already exists", p.CorrelationID)
	}
	p.RequestedAt = tx.now
	tx.state.entropy[p.CorrelationID] = cloneEntropy(p)
	tx.recordChange(Change{Entity: domain.EntityPendingEntropy, Action: domain.ActionCreate, After: cloneEntropy(p)})
	return cloneEntropy(p), nil
}

// FindPendingEntropy retrieves a pending entropy record by correlation ID.
func (tx *transaction) FindPendingEntropy(correlationID string) (PendingEntropy, bool) {
	p, ok := tx.state.entropy[correlationID]
	if !ok {
		return PendingEntropy{}, false
	}
	return cloneEntropy(p), true
}

// TakePendingEntropy removes and returns the pending record in one step.
func (tx *transaction) TakePendingEntropy(correlationID string) (PendingEntropy, bool) {
	p, ok := tx.state.entropy[correlationID]
	if !ok {
		return PendingEntropy{}, false
	}
	delete(tx.state.entropy, correlationID)
	tx.recordChange(Change{Entity: domain.EntityPendingEntropy, Action: domain.ActionDelete, Before: cloneEntropy(p)})
	return cloneEntropy(p), true
}

// Counters returns a copy of the transactional supply counters.
func (tx *transaction) Counters() SupplyCounters {
	return tx.state.counters.Clone()
}

// Read helpers ---------------------------------------------------------------

// GetAsset retrieves an asset by ID from committed state.
func (s *Store) GetAsset(id uint64) (Asset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.assets[id]
	if !ok {
		return Asset{}, false
	}
	return cloneAsset(a), true
}

// ListAssets returns all assets from committed state, ordered by ID.
func (s *Store) ListAssets() []Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.ListAssets()
}

// GetPendingFusion retrieves a pending fusion from committed state.
func (s *Store) GetPendingFusion(id uint64) (PendingFusion, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.state.fusions[id]
	if !ok {
		return PendingFusion{}, false
	}
	return cloneFusion(f), true
}

// ListPendingFusions returns all pending fusions from committed state.
func (s *Store) ListPendingFusions() []PendingFusion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.ListPendingFusions()
}

// GetPendingEntropy retrieves a pending entropy record from committed state.
func (s *Store) GetPendingEntropy(correlationID string) (PendingEntropy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.entropy[correlationID]
	if !ok {
		return PendingEntropy{}, false
	}
	return cloneEntropy(p), true
}

// ListPendingEntropy returns all pending entropy records from committed state.
func (s *Store) ListPendingEntropy() []PendingEntropy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.ListPendingEntropy()
}

// Counters returns a copy of the committed supply counters.
func (s *Store) Counters() SupplyCounters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.counters.Clone()
}
