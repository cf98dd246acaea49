package core

import (
	"context"
	"sort"

	"tracechain/pkg/domain"
)

// autoAwardRule grants Badge when a lot reaches Stage while its
// certification text contains Certification.
type autoAwardRule struct {
	Stage         Stage
	Certification string
	Badge         string
}

var autoAwards = []autoAwardRule{
	{Stage: domain.StageRetail, Certification: "Sustainable", Badge: "Sustainable"},
}

// autoAward applies the auto-award table after a stage transition. Badges
// already held are skipped silently.
func (s *Service) autoAward(tx Transaction, out *emitter, lot string, reached Stage) error {
	for _, rule := range autoAwards {
		if rule.Stage != reached {
			continue
		}
		p, ok := tx.FindProduct(lot)
		if !ok {
			return domain.NewLedgerError(domain.ErrUnknownLot, opUpdateStage, lot, "")
		}
		if !p.HasCertification(rule.Certification) || p.HasBadge(rule.Badge) {
			continue
		}
		if _, err := tx.UpdateProduct(lot, func(p *Product) error {
			p.Badges = append(p.Badges, rule.Badge)
			return nil
		}); err != nil {
			return err
		}
		out.emit(domain.BadgeAwarded(lot, rule.Badge))
	}
	return nil
}

// AwardBadge adds badge to lot. The owner or the lot's current handler may
// award; a badge already held fails with DuplicateBadge.
func (s *Service) AwardBadge(ctx context.Context, caller, lot, badge string) (Result, error) {
	var res Result
	err := s.run(ctx, opAwardBadge, lot, caller, func(ctx context.Context) error {
		if badge == "" {
			return domain.NewLedgerError(domain.ErrInvalidKey, opAwardBadge, lot, "empty badge name")
		}
		var err error
		res, err = s.mutate(ctx, opAwardBadge, func(tx Transaction, out *emitter) error {
			p, err := findProduct(tx.FindProduct, opAwardBadge, lot)
			if err != nil {
				return err
			}
			if !s.isOwner(caller) && p.Handler != caller {
				return domain.NewLedgerError(domain.ErrUnauthorized, opAwardBadge, lot, "%q is neither owner nor handler", caller)
			}
			if p.HasBadge(badge) {
				return domain.NewLedgerError(domain.ErrDuplicateBadge, opAwardBadge, lot, "%q", badge)
			}
			if _, err := tx.UpdateProduct(lot, func(p *Product) error {
				p.Badges = append(p.Badges, badge)
				return nil
			}); err != nil {
				return err
			}
			out.emit(domain.BadgeAwarded(lot, badge))
			return nil
		})
		return err
	})
	return res, err
}

// HasBadge reports whether lot holds badge.
func (s *Service) HasBadge(ctx context.Context, lot, badge string) (bool, error) {
	var held bool
	err := s.run(ctx, opHasBadge, lot, "", func(ctx context.Context) error {
		return s.view(ctx, func(v TransactionView) error {
			p, err := findProduct(v.FindProduct, opHasBadge, lot)
			if err != nil {
				return err
			}
			held = p.HasBadge(badge)
			return nil
		})
	})
	return held, err
}

// GetBadges returns lot's badges in award order.
func (s *Service) GetBadges(ctx context.Context, lot string) ([]string, error) {
	var out []string
	err := s.run(ctx, opGetBadges, lot, "", func(ctx context.Context) error {
		return s.view(ctx, func(v TransactionView) error {
			p, err := findProduct(v.FindProduct, opGetBadges, lot)
			if err != nil {
				return err
			}
			out = append([]string(nil), p.Badges...)
			return nil
		})
	})
	return out, err
}

// LeaderboardEntry ranks one lot by the number of badges it holds.
type LeaderboardEntry struct {
	Lot    string `json:"lot"`
	Name   string `json:"name"`
	Badges int    `json:"badges"`
}

// Leaderboard ranks lots by badge count descending, then lot ascending.
// limit <= 0 returns every lot.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	var out []LeaderboardEntry
	err := s.run(ctx, opLeaderboard, "", "", func(ctx context.Context) error {
		return s.view(ctx, func(v TransactionView) error {
			products := v.ListProducts()
			out = make([]LeaderboardEntry, 0, len(products))
			for _, p := range products {
				out = append(out, LeaderboardEntry{Lot: p.Lot, Name: p.Name, Badges: len(p.Badges)})
			}
			sort.SliceStable(out, func(i, j int) bool {
				if out[i].Badges != out[j].Badges {
					return out[i].Badges > out[j].Badges
				}
				return out[i].Lot < out[j].Lot
			})
			if limit > 0 && len(out) > limit {
				out = out[:limit]
			}
			return nil
		})
	})
	return out, err
}
