package core

import (
	"context"
	"fmt"

	"relicforge/pkg/domain"
)

// NewSupplyCeilingRule returns the in-transaction rule enforcing the
// per-tier and global mint ceilings plus counter consistency. It is the
// safety net behind the service-level headroom checks: any transaction that
// would land counters past a ceiling is blocked at commit.
func NewSupplyCeilingRule(schedule SupplySchedule) domain.Rule {
	return supplyCeilingRule{schedule: schedule}
}

type supplyCeilingRule struct {
	schedule SupplySchedule
}

func (supplyCeilingRule) Name() string { return "supply_ceiling" }

func (r supplyCeilingRule) Evaluate(_ context.Context, view TransactionView, _ []Change) (Result, error) {
	counters := view.Counters()
	res := Result{}
	var sum uint64
	for tier, count := range counters.Minted {
		sum += count
		if ceiling := r.schedule.CeilingFor(tier); count > ceiling {
			res.Violations = append(res.Violations, Violation{
				Rule:     "supply_ceiling",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("%s supply over ceiling: %d/%d", tier, count, ceiling),
				Entity:   EntitySupply,
				EntityID: tier.String(),
			})
		}
	}
	if counters.Global > r.schedule.GlobalCeiling {
		res.Violations = append(res.Violations, Violation{
			Rule:     "supply_ceiling",
			Severity: SeverityBlock,
			Message:  fmt.Sprintf("global supply over ceiling: %d/%d", counters.Global, r.schedule.GlobalCeiling),
			Entity:   EntitySupply,
			EntityID: "global",
		})
	}
	if sum != counters.Global {
		res.Violations = append(res.Violations, Violation{
			Rule:     "supply_ceiling",
			Severity: SeverityBlock,
			Message:  fmt.Sprintf("tier counts sum %d does not match global count %d", sum, counters.Global),
			Entity:   EntitySupply,
			EntityID: "global",
		})
	}
	return res, nil
}
