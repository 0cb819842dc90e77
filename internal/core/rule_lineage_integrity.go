package core

import (
	"context"
	"fmt"

	"relicforge/pkg/domain"
)

// NewLineageIntegrityRule returns the in-transaction rule verifying fused
// asset ancestry: every lineage parent must exist and be burned, and the
// child's ancestry score must equal the sum of its parents' scores.
func NewLineageIntegrityRule() domain.Rule {
	return lineageIntegrityRule{}
}

type lineageIntegrityRule struct{}

func (lineageIntegrityRule) Name() string { return "lineage_integrity" }

func (lineageIntegrityRule) Evaluate(_ context.Context, view TransactionView, _ []Change) (Result, error) {
	res := Result{}
	for _, asset := range view.ListAssets() {
		if len(asset.Lineage) == 0 {
			continue
		}
		sum := 0
		for _, parentID := range asset.Lineage {
			parent, ok := view.FindAsset(parentID)
			if !ok {
				res.Violations = append(res.Violations, Violation{
					Rule:     "lineage_integrity",
					Severity: SeverityBlock,
					Message:  fmt.Sprintf("asset %d lineage references unknown parent %d", asset.ID, parentID),
					Entity:   EntityAsset,
					EntityID: fmt.Sprint(asset.ID),
				})
				continue
			}
			if parent.BurnedAt == nil {
				res.Violations = append(res.Violations, Violation{
					Rule:     "lineage_integrity",
					Severity: SeverityBlock,
					Message:  fmt.Sprintf("asset %d lineage parent %d is still live", asset.ID, parentID),
					Entity:   EntityAsset,
					EntityID: fmt.Sprint(asset.ID),
				})
			}
			sum += parent.AncestryScore
		}
		if sum != asset.AncestryScore {
			res.Violations = append(res.Violations, Violation{
				Rule:     "lineage_integrity",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("asset %d ancestry %d does not match parent sum %d", asset.ID, asset.AncestryScore, sum),
				Entity:   EntityAsset,
				EntityID: fmt.Sprint(asset.ID),
			})
		}
	}
	return res, nil
}
