package core

import (
	"context"
)

// Analytics summarizes a lot's observation log.
type Analytics struct {
	Count       int   `json:"count"`
	Average     int64 `json:"average"`
	MinObserved int64 `json:"min_observed"`
	MaxObserved int64 `json:"max_observed"`
	Compliant   bool  `json:"compliant"`
}

// Compliant reports whether every observation of p lies within its set
// bounds. A lot without bounds is always compliant.
func Compliant(p Product) bool {
	if !p.Thresholds.Any() {
		return true
	}
	for _, obs := range p.Observations {
		if !p.Thresholds.Admits(obs.Temperature) {
			return false
		}
	}
	return true
}

// Summarize computes analytics for p in a single pass over its log. Average
// is the integer quotient of sum and count, truncated toward zero. An empty
// log yields zero statistics.
func Summarize(p Product) Analytics {
	out := Analytics{Count: len(p.Observations), Compliant: Compliant(p)}
	if out.Count == 0 {
		return out
	}
	var sum int64
	out.MinObserved = p.Observations[0].Temperature
	out.MaxObserved = p.Observations[0].Temperature
	for _, obs := range p.Observations {
		sum += obs.Temperature
		if obs.Temperature < out.MinObserved {
			out.MinObserved = obs.Temperature
		}
		if obs.Temperature > out.MaxObserved {
			out.MaxObserved = obs.Temperature
		}
	}
	out.Average = sum / int64(out.Count)
	return out
}

// IsCompliant reports whether lot's observations respect its thresholds.
func (s *Service) IsCompliant(ctx context.Context, lot string) (bool, error) {
	var ok bool
	err := s.run(ctx, opIsCompliant, lot, "", func(ctx context.Context) error {
		return s.view(ctx, func(v TransactionView) error {
			p, err := findProduct(v.FindProduct, opIsCompliant, lot)
			if err != nil {
				return err
			}
			ok = Compliant(p)
			return nil
		})
	})
	return ok, err
}

// Analytics returns count, integer average, extremes and compliance for lot.
// Cost is linear in the length of the log.
func (s *Service) Analytics(ctx context.Context, lot string) (Analytics, error) {
	var out Analytics
	err := s.run(ctx, opAnalytics, lot, "", func(ctx context.Context) error {
		return s.view(ctx, func(v TransactionView) error {
			p, err := findProduct(v.FindProduct, opAnalytics, lot)
			if err != nil {
				return err
			}
			out = Summarize(p)
			return nil
		})
	})
	return out, err
}
