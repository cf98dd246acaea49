package core

import (
	"context"
	"fmt"

	"tracechain/pkg/domain"
)

// StageMonotonicRule blocks stage regressions, moves out of the terminal
// stage and stages outside the declared lifecycle.
func StageMonotonicRule() domain.Rule {
	return stageMonotonicRule{}
}

type stageMonotonicRule struct{}

func (stageMonotonicRule) Name() string { return "stage_monotonic" }

func (r stageMonotonicRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != EntityProduct {
			continue
		}
		after, ok := domain.DecodeChangePayload[Product](change.After)
		if !ok {
			continue
		}
		if !after.Stage.Valid() {
			res.Violations = append(res.Violations, blockProduct(r.Name(), after.Lot,
				fmt.Sprintf("lot %s is set to invalid stage %s", after.Lot, after.Stage)))
			continue
		}
		if change.Action == ActionCreate {
			if after.Stage != domain.StageCreated {
				res.Violations = append(res.Violations, blockProduct(r.Name(), after.Lot,
					fmt.Sprintf("lot %s must be registered at stage %s, got %s", after.Lot, domain.StageCreated, after.Stage)))
			}
			continue
		}
		before, ok := domain.DecodeChangePayload[Product](change.Before)
		if !ok {
			continue
		}
		switch {
		case before.Stage == domain.StageCompleted && after.Stage != before.Stage:
			res.Violations = append(res.Violations, blockProduct(r.Name(), after.Lot,
				fmt.Sprintf("cannot move lot %s from terminal stage %s to %s", after.Lot, before.Stage, after.Stage)))
		case after.Stage < before.Stage:
			res.Violations = append(res.Violations, blockProduct(r.Name(), after.Lot,
				fmt.Sprintf("lot %s cannot regress from %s to %s", after.Lot, before.Stage, after.Stage)))
		}
	}
	return res, nil
}
