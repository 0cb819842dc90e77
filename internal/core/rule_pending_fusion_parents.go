package core

import (
	"context"
	"fmt"

	"relicforge/pkg/domain"
)

// NewPendingFusionParentsRule returns a warning rule flagging pending
// fusions whose parents were burned or transferred since the request.
// Finalization still burns unconditionally, so these records are a signal
// for operators, not an error.
func NewPendingFusionParentsRule() domain.Rule {
	return pendingFusionParentsRule{}
}

type pendingFusionParentsRule struct{}

func (pendingFusionParentsRule) Name() string { return "pending_fusion_parents" }

func (pendingFusionParentsRule) Evaluate(_ context.Context, view TransactionView, _ []Change) (Result, error) {
	res := Result{}
	for _, pending := range view.ListPendingFusions() {
		for _, parentID := range pending.ParentIDs {
			parent, ok := view.FindAsset(parentID)
			switch {
			case !ok || parent.BurnedAt != nil:
				res.Violations = append(res.Violations, Violation{
					Rule:     "pending_fusion_parents",
					Severity: SeverityWarn,
					Message:  fmt.Sprintf("pending fusion %d parent %d is no longer live", pending.ID, parentID),
					Entity:   EntityPendingFusion,
					EntityID: fmt.Sprint(pending.ID),
				})
			case parent.Owner != pending.Requester:
				res.Violations = append(res.Violations, Violation{
					Rule:     "pending_fusion_parents",
					Severity: SeverityWarn,
					Message:  fmt.Sprintf("pending fusion %d parent %d owned by %s, not requester", pending.ID, parentID, parent.Owner),
					Entity:   EntityPendingFusion,
					EntityID: fmt.Sprint(pending.ID),
				})
			}
		}
	}
	return res, nil
}
