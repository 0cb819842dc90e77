package domain

import "fmt"

// ErrValidation reports a synchronously rejected request. No state changes
// when it is returned.
type ErrValidation struct {
	Reason string
}

func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation: %s", e.Reason)
}

// ErrNotOwner reports that the caller does not own an asset it tried to use.
type ErrNotOwner struct {
	Caller  string
	AssetID uint64
}

func (e ErrNotOwner) Error() string {
	return fmt.Sprintf("caller %s does not own asset %d", e.Caller, e.AssetID)
}

// ErrSupplyExhausted reports that a mint would exceed a ceiling. Global is
// set when the combined ceiling is the binding constraint.
type ErrSupplyExhausted struct {
	Tier   Tier
	Global bool
}

func (e ErrSupplyExhausted) Error() string {
	if e.Global {
		return "supply exhausted: global ceiling reached"
	}
	return fmt.Sprintf("supply exhausted: %s ceiling reached", e.Tier)
}

// ErrUnderpaid reports a payment below the computed price.
type ErrUnderpaid struct {
	Required uint64
	Paid     uint64
}

func (e ErrUnderpaid) Error() string {
	return fmt.Sprintf("underpaid: required %d, paid %d", e.Required, e.Paid)
}

// ErrNotFound reports a missing or dead record.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ErrUnauthorized reports a caller lacking permission for an action.
type ErrUnauthorized struct {
	Caller string
	Action string
}

func (e ErrUnauthorized) Error() string {
	return fmt.Sprintf("caller %s not authorized for %s", e.Caller, e.Action)
}

// ErrPaused reports that the system pause flag rejected a mutating operation.
type ErrPaused struct{}

func (ErrPaused) Error() string {
	return "system paused"
}
