package core

import "context"

// Caller actions checked against the access policy.
const (
	ActionRequestFusion  = "request_fusion"
	ActionFinalizeFusion = "finalize_fusion"
	ActionRequestMint    = "request_mint"
	ActionFulfill        = "fulfill_entropy"
)

// EntropySource is the external collaborator supplying unpredictable values
// on a request/fulfill basis. Request returns an opaque correlation ID; the
// matching fulfillment arrives later, out of band, with no ordering or
// timing guarantee.
type EntropySource interface {
	Request(ctx context.Context, kind EntropyKind) (string, error)
}

// DiscountService computes a time- and usage-bounded price reduction for a
// code. Both methods are pure reads from the engine's point of view.
type DiscountService interface {
	IsValid(code string) bool
	PriceAfterDiscount(code string, base uint64) uint64
}

// AccessPolicy gates mutating operations. Enforcement of the fulfillment
// callback origin lives outside this core; the policy only answers questions.
type AccessPolicy interface {
	IsAuthorized(caller, action string) bool
	IsPaused() bool
}

// allowAllPolicy authorizes everything and never pauses. Default for tests
// and single-operator deployments.
type allowAllPolicy struct{}

func (allowAllPolicy) IsAuthorized(string, string) bool { return true }
func (allowAllPolicy) IsPaused() bool                   { return false }

// noDiscount treats every code as invalid.
type noDiscount struct{}

func (noDiscount) IsValid(string) bool { return false }
func (noDiscount) PriceAfterDiscount(_ string, base uint64) uint64 {
	return base
}
