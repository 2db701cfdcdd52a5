package core

// NewDefaultRulesEngine builds a rules engine with the built-in invariant set.
// Every rule blocks the commit of a transaction that would break it.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewOfficerSlotCapacityRule())
	engine.Register(NewSingleActiveApplicationRule())
	engine.Register(NewManagerWindowOverlapRule())
	engine.Register(NewOfficerWindowOverlapRule())
	engine.Register(LifecycleTransitionRule())
	return engine
}
