package core

import (
	"context"
	"fmt"

	"tracechain/pkg/domain"
)

// ObservationAppendOnlyRule blocks any update that removes or rewrites a
// recorded observation.
func ObservationAppendOnlyRule() domain.Rule {
	return observationAppendOnlyRule{}
}

type observationAppendOnlyRule struct{}

func (observationAppendOnlyRule) Name() string { return "observation_append_only" }

func (r observationAppendOnlyRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		before, after, ok := productTransition(change)
		if !ok {
			continue
		}
		if len(after.Observations) < len(before.Observations) {
			res.Violations = append(res.Violations, blockProduct(r.Name(), after.Lot,
				fmt.Sprintf("lot %s log shrank from %d to %d observations", after.Lot, len(before.Observations), len(after.Observations))))
			continue
		}
		for i, obs := range before.Observations {
			if !observationEqual(obs, after.Observations[i]) {
				res.Violations = append(res.Violations, blockProduct(r.Name(), after.Lot,
					fmt.Sprintf("lot %s observation %d was rewritten", after.Lot, i)))
				break
			}
		}
	}
	return res, nil
}

func observationEqual(a, b Observation) bool {
	return a.Temperature == b.Temperature &&
		a.Note == b.Note &&
		a.CapturedBy == b.CapturedBy &&
		a.CapturedAt.Equal(b.CapturedAt)
}

// BadgeUniquenessRule keeps each lot's badges a set that only grows.
func BadgeUniquenessRule() domain.Rule {
	return badgeUniquenessRule{}
}

type badgeUniquenessRule struct{}

func (badgeUniquenessRule) Name() string { return "badge_uniqueness" }

func (r badgeUniquenessRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != EntityProduct {
			continue
		}
		after, ok := domain.DecodeChangePayload[Product](change.After)
		if !ok {
			continue
		}
		seen := make(map[string]struct{}, len(after.Badges))
		for _, badge := range after.Badges {
			if _, dup := seen[badge]; dup {
				res.Violations = append(res.Violations, blockProduct(r.Name(), after.Lot,
					fmt.Sprintf("lot %s holds badge %q twice", after.Lot, badge)))
				break
			}
			seen[badge] = struct{}{}
		}
		before, ok := domain.DecodeChangePayload[Product](change.Before)
		if !ok {
			continue
		}
		for _, badge := range before.Badges {
			if _, kept := seen[badge]; !kept {
				res.Violations = append(res.Violations, blockProduct(r.Name(), after.Lot,
					fmt.Sprintf("lot %s lost badge %q", after.Lot, badge)))
			}
		}
	}
	return res, nil
}
