package core

import (
	"context"
	"fmt"

	"tracechain/pkg/domain"
)

// ThresholdBreachRule warns when a newly captured observation falls outside
// the lot's set bounds. The capture still commits.
func ThresholdBreachRule() domain.Rule {
	return thresholdBreachRule{}
}

type thresholdBreachRule struct{}

func (thresholdBreachRule) Name() string { return "threshold_breach" }

func (r thresholdBreachRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		before, after, ok := productTransition(change)
		if !ok || !after.Thresholds.Any() || len(after.Observations) <= len(before.Observations) {
			continue
		}
		for _, obs := range after.Observations[len(before.Observations):] {
			if after.Thresholds.Admits(obs.Temperature) {
				continue
			}
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("lot %s observed %d outside %s", after.Lot, obs.Temperature, boundsText(after.Thresholds)),
				Entity:   EntityProduct,
				EntityID: after.Lot,
			})
		}
	}
	return res, nil
}

func boundsText(t Thresholds) string {
	switch {
	case t.MinSet && t.MaxSet:
		return fmt.Sprintf("[%d, %d]", t.Min, t.Max)
	case t.MinSet:
		return fmt.Sprintf("[%d, +inf)", t.Min)
	default:
		return fmt.Sprintf("(-inf, %d]", t.Max)
	}
}
