package core

import (
	"context"
	"fmt"

	"tracechain/pkg/domain"
)

// GenerateToken issues a lookup token for lot and records it as the lot's
// latest token. The owner or the current handler may generate; caller
// becomes the handler.
func (s *Service) GenerateToken(ctx context.Context, caller, lot string) (string, Result, error) {
	var (
		token string
		res   Result
	)
	err := s.run(ctx, opGenerateToken, lot, caller, func(ctx context.Context) error {
		var err error
		res, err = s.mutate(ctx, opGenerateToken, func(tx Transaction, out *emitter) error {
			p, err := findProduct(tx.FindProduct, opGenerateToken, lot)
			if err != nil {
				return err
			}
			if !s.isOwner(caller) && p.Handler != caller {
				return domain.NewLedgerError(domain.ErrUnauthorized, opGenerateToken, lot, "%q is neither owner nor handler", caller)
			}
			now := s.now()
			generated, err := s.opts.tokens.Generate(lot, caller, now)
			if err != nil {
				return err
			}
			// A hash token repeats when the same caller asks twice within one
			// clock tick; the forward mapping already points at lot.
			if rec, issued := tx.FindToken(generated); issued {
				if rec.Lot != lot {
					return fmt.Errorf("token %s already maps to lot %s", generated, rec.Lot)
				}
			} else if _, err := tx.IssueToken(TokenRecord{Token: generated, Lot: lot, IssuedBy: caller, IssuedAt: now}); err != nil {
				return err
			}
			if _, err := tx.UpdateProduct(lot, func(p *Product) error {
				p.LatestToken = generated
				p.Handler = caller
				return nil
			}); err != nil {
				return err
			}
			token = generated
			out.emit(domain.TokenGenerated(lot, generated))
			return nil
		})
		return err
	})
	return token, res, err
}

// ResolveToken returns the lot token was issued for.
func (s *Service) ResolveToken(ctx context.Context, token string) (string, error) {
	var lot string
	err := s.run(ctx, opResolveToken, token, "", func(ctx context.Context) error {
		return s.view(ctx, func(v TransactionView) error {
			rec, ok := v.FindToken(token)
			if !ok {
				return domain.NewLedgerError(domain.ErrInvalidToken, opResolveToken, "", "%q was never issued", token)
			}
			lot = rec.Lot
			return nil
		})
	})
	return lot, err
}
