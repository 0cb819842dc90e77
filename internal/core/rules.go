package core

import "relicforge/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in policy set
// for the given supply schedule.
func NewDefaultRulesEngine(schedule SupplySchedule) *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewSupplyCeilingRule(schedule))
	engine.Register(NewLineageIntegrityRule())
	engine.Register(NewPendingFusionParentsRule())
	return engine
}
