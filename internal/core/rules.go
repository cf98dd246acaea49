package core

import "tracechain/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in ledger rules.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(StageMonotonicRule())
	engine.Register(ObservationAppendOnlyRule())
	engine.Register(BadgeUniquenessRule())
	engine.Register(ThresholdBreachRule())
	return engine
}

// productTransition decodes the before and after product payloads of an
// update change. ok is false for other changes.
func productTransition(change Change) (before, after Product, ok bool) {
	if change.Entity != EntityProduct || change.Action != ActionUpdate {
		return Product{}, Product{}, false
	}
	before, okBefore := domain.DecodeChangePayload[Product](change.Before)
	after, okAfter := domain.DecodeChangePayload[Product](change.After)
	return before, after, okBefore && okAfter
}

func blockProduct(rule, lot, message string) Violation {
	return Violation{
		Rule:     rule,
		Severity: SeverityBlock,
		Message:  message,
		Entity:   EntityProduct,
		EntityID: lot,
	}
}
