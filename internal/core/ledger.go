package core

import (
	"context"

	"tracechain/pkg/domain"
)

// ConsumerView is the public projection of a lot returned to consumers.
type ConsumerView struct {
	Lot            string `json:"lot"`
	Name           string `json:"name"`
	Origin         string `json:"origin"`
	Certifications string `json:"certifications"`
	Stage          Stage  `json:"stage"`
	Handler        string `json:"handler"`
	LatestToken    string `json:"latest_token"`
}

func consumerViewOf(p Product) ConsumerView {
	return ConsumerView{
		Lot:            p.Lot,
		Name:           p.Name,
		Origin:         p.Origin,
		Certifications: p.Certifications,
		Stage:          p.Stage,
		Handler:        p.Handler,
		LatestToken:    p.LatestToken,
	}
}

// Register creates a lot at StageCreated with caller as its handler.
// Registration is open to any identity.
func (s *Service) Register(ctx context.Context, caller, lot, name, origin, certifications string) (Product, Result, error) {
	var (
		created Product
		res     Result
	)
	err := s.run(ctx, opRegister, lot, caller, func(ctx context.Context) error {
		if lot == "" {
			return domain.NewLedgerError(domain.ErrInvalidKey, opRegister, "", "empty lot identifier")
		}
		var err error
		res, err = s.mutate(ctx, opRegister, func(tx Transaction, out *emitter) error {
			if _, exists := tx.FindProduct(lot); exists {
				return domain.NewLedgerError(domain.ErrDuplicateLot, opRegister, lot, "")
			}
			now := s.now()
			p, err := tx.CreateProduct(Product{
				Lot:            lot,
				Name:           name,
				Origin:         origin,
				Certifications: certifications,
				Stage:          domain.StageCreated,
				Handler:        caller,
				RegisteredAt:   now,
			})
			if err != nil {
				return err
			}
			created = p
			out.emit(domain.ProductRegistered(lot, name, origin))
			return nil
		})
		return err
	})
	return created, res, err
}

// SetThresholds replaces both temperature bounds of lot. The owner and any
// identity holding a role may set thresholds; the handler is unchanged.
func (s *Service) SetThresholds(ctx context.Context, caller, lot string, minTemp, maxTemp int64) (Result, error) {
	var res Result
	err := s.run(ctx, opSetThresholds, lot, caller, func(ctx context.Context) error {
		var err error
		res, err = s.mutate(ctx, opSetThresholds, func(tx Transaction, out *emitter) error {
			if _, err := findProduct(tx.FindProduct, opSetThresholds, lot); err != nil {
				return err
			}
			allowed, err := s.opts.policy.CanSetThresholds(tx.RoleOf(caller), s.isOwner(caller))
			if err != nil {
				return err
			}
			if !allowed {
				return domain.NewLedgerError(domain.ErrUnauthorized, opSetThresholds, lot, "%q holds no role", caller)
			}
			if _, err := tx.UpdateProduct(lot, func(p *Product) error {
				p.Thresholds = Thresholds{Min: minTemp, Max: maxTemp, MinSet: true, MaxSet: true}
				return nil
			}); err != nil {
				return err
			}
			out.emit(domain.ThresholdsSet(lot, minTemp, maxTemp))
			return nil
		})
		return err
	})
	return res, err
}

// UpdateStage advances lot to target. The transition must strictly increase
// the stage, target must have a policy grant and caller must hold the role
// the policy names for target. Intermediate stages may be skipped. Reaching
// retail may award badges through the auto-award table.
func (s *Service) UpdateStage(ctx context.Context, caller, lot string, target Stage) (Result, error) {
	var res Result
	err := s.run(ctx, opUpdateStage, lot, caller, func(ctx context.Context) error {
		var err error
		res, err = s.mutate(ctx, opUpdateStage, func(tx Transaction, out *emitter) error {
			current, err := findProduct(tx.FindProduct, opUpdateStage, lot)
			if err != nil {
				return err
			}
			if target <= current.Stage {
				return domain.NewLedgerError(domain.ErrInvalidTransition, opUpdateStage, lot, "%s -> %s", current.Stage, target)
			}
			if !s.opts.policy.SupportsStage(target) {
				return domain.NewLedgerError(domain.ErrUnsupportedStage, opUpdateStage, lot, "%s", target)
			}
			allowed, err := s.opts.policy.CanAdvance(tx.RoleOf(caller), s.isOwner(caller), target)
			if err != nil {
				return err
			}
			if !allowed {
				return domain.NewLedgerError(domain.ErrUnauthorized, opUpdateStage, lot, "%q may not advance to %s", caller, target)
			}
			if _, err := tx.UpdateProduct(lot, func(p *Product) error {
				p.Stage = target
				p.Handler = caller
				return nil
			}); err != nil {
				return err
			}
			out.emit(domain.StageUpdated(lot, target, caller))
			return s.autoAward(tx, out, lot, target)
		})
		return err
	})
	return res, err
}

// ConsumerLookupByLot returns the consumer projection of lot.
func (s *Service) ConsumerLookupByLot(ctx context.Context, lot string) (ConsumerView, error) {
	var view ConsumerView
	err := s.run(ctx, opLookupLot, lot, "", func(ctx context.Context) error {
		return s.view(ctx, func(v TransactionView) error {
			p, err := findProduct(v.FindProduct, opLookupLot, lot)
			if err != nil {
				return err
			}
			view = consumerViewOf(p)
			return nil
		})
	})
	return view, err
}

// ConsumerLookupByToken resolves token and returns the consumer projection
// of the lot it was issued for.
func (s *Service) ConsumerLookupByToken(ctx context.Context, token string) (ConsumerView, error) {
	var view ConsumerView
	err := s.run(ctx, opLookupToken, token, "", func(ctx context.Context) error {
		return s.view(ctx, func(v TransactionView) error {
			rec, ok := v.FindToken(token)
			if !ok {
				return domain.NewLedgerError(domain.ErrInvalidToken, opLookupToken, "", "%q was never issued", token)
			}
			p, err := findProduct(v.FindProduct, opLookupToken, rec.Lot)
			if err != nil {
				return err
			}
			view = consumerViewOf(p)
			return nil
		})
	})
	return view, err
}

// Exists reports whether lot has been registered.
func (s *Service) Exists(ctx context.Context, lot string) bool {
	var found bool
	// Cancellation cannot turn a registered lot into an absent one.
	_ = s.run(context.WithoutCancel(ctx), opExists, lot, "", func(ctx context.Context) error {
		return s.view(ctx, func(v TransactionView) error {
			_, found = v.FindProduct(lot)
			return nil
		})
	})
	return found
}

// ListLots returns every registered lot identifier in ascending order.
func (s *Service) ListLots(ctx context.Context) ([]string, error) {
	var lots []string
	err := s.run(ctx, opListLots, "", "", func(ctx context.Context) error {
		return s.view(ctx, func(v TransactionView) error {
			products := v.ListProducts()
			lots = make([]string, 0, len(products))
			for _, p := range products {
				lots = append(lots, p.Lot)
			}
			return nil
		})
	})
	return lots, err
}

// GetProduct returns a copy of the full record for lot.
func (s *Service) GetProduct(ctx context.Context, lot string) (Product, error) {
	var out Product
	err := s.run(ctx, opGetProduct, lot, "", func(ctx context.Context) error {
		return s.view(ctx, func(v TransactionView) error {
			p, err := findProduct(v.FindProduct, opGetProduct, lot)
			if err != nil {
				return err
			}
			out = domain.CloneProduct(p)
			return nil
		})
	})
	return out, err
}
