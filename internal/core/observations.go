package core

import (
	"context"

	"tracechain/pkg/domain"
)

// CaptureObservation appends a temperature reading to lot's log, stamped
// with the service clock. Only the owner and logistics identities capture.
func (s *Service) CaptureObservation(ctx context.Context, caller, lot string, temperature int64, note string) (Result, error) {
	var res Result
	err := s.run(ctx, opCaptureObservation, lot, caller, func(ctx context.Context) error {
		var err error
		res, err = s.mutate(ctx, opCaptureObservation, func(tx Transaction, out *emitter) error {
			if _, err := findProduct(tx.FindProduct, opCaptureObservation, lot); err != nil {
				return err
			}
			allowed, err := s.opts.policy.CanCapture(tx.RoleOf(caller), s.isOwner(caller))
			if err != nil {
				return err
			}
			if !allowed {
				return domain.NewLedgerError(domain.ErrUnauthorized, opCaptureObservation, lot, "%q may not capture observations", caller)
			}
			obs := Observation{
				Temperature: temperature,
				Note:        note,
				CapturedAt:  s.now(),
				CapturedBy:  caller,
			}
			if _, err := tx.UpdateProduct(lot, func(p *Product) error {
				p.Observations = append(p.Observations, obs)
				p.Handler = caller
				return nil
			}); err != nil {
				return err
			}
			out.emit(domain.IoTCaptured(lot, temperature, note))
			return nil
		})
		return err
	})
	return res, err
}

// GetObservations returns a copy of lot's log in append order.
func (s *Service) GetObservations(ctx context.Context, lot string) ([]Observation, error) {
	var out []Observation
	err := s.run(ctx, opGetObservations, lot, "", func(ctx context.Context) error {
		return s.view(ctx, func(v TransactionView) error {
			p, err := findProduct(v.FindProduct, opGetObservations, lot)
			if err != nil {
				return err
			}
			out = append([]Observation(nil), p.Observations...)
			return nil
		})
	})
	return out, err
}
