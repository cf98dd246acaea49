package scenario

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"tracechain/internal/core"
	"tracechain/pkg/domain"
)

type call struct {
	svc    *core.Service
	caller string
	args   map[string]any
}

// argError marks a malformed step argument, which aborts the run.
type argError struct{ error }

type operation func(ctx context.Context, c call) (any, core.Result, error)

var operations = map[string]operation{
	"assign_role": func(ctx context.Context, c call) (any, core.Result, error) {
		role, ok := domain.ParseRole(c.str("role"))
		if !ok {
			role = domain.Role(255)
		}
		res, err := c.svc.AssignRole(ctx, c.caller, c.str("identity"), role)
		return nil, res, err
	},
	"get_role": func(ctx context.Context, c call) (any, core.Result, error) {
		return c.svc.GetRole(ctx, c.str("identity")).String(), core.Result{}, nil
	},
	"list_roles": func(ctx context.Context, c call) (any, core.Result, error) {
		roles, err := c.svc.ListRoles(ctx)
		out := make([]string, 0, len(roles))
		for _, r := range roles {
			out = append(out, r.Identity+"="+r.Role.String())
		}
		return out, core.Result{}, err
	},
	"register": func(ctx context.Context, c call) (any, core.Result, error) {
		_, res, err := c.svc.Register(ctx, c.caller, c.str("lot"), c.str("name"), c.str("origin"), c.str("certifications"))
		return nil, res, err
	},
	"set_thresholds": func(ctx context.Context, c call) (any, core.Result, error) {
		lo, err := c.int64("min")
		if err != nil {
			return nil, core.Result{}, err
		}
		hi, err := c.int64("max")
		if err != nil {
			return nil, core.Result{}, err
		}
		res, err := c.svc.SetThresholds(ctx, c.caller, c.str("lot"), lo, hi)
		return nil, res, err
	},
	"update_stage": func(ctx context.Context, c call) (any, core.Result, error) {
		target, ok := domain.ParseStage(c.str("stage"))
		if !ok {
			return nil, core.Result{}, argError{fmt.Errorf("arg stage: unknown stage %q", c.str("stage"))}
		}
		res, err := c.svc.UpdateStage(ctx, c.caller, c.str("lot"), target)
		return nil, res, err
	},
	"lookup_lot": func(ctx context.Context, c call) (any, core.Result, error) {
		view, err := c.svc.ConsumerLookupByLot(ctx, c.str("lot"))
		return viewOrNil(view, err), core.Result{}, err
	},
	"lookup_token": func(ctx context.Context, c call) (any, core.Result, error) {
		view, err := c.svc.ConsumerLookupByToken(ctx, c.str("token"))
		return viewOrNil(view, err), core.Result{}, err
	},
	"exists": func(ctx context.Context, c call) (any, core.Result, error) {
		return c.svc.Exists(ctx, c.str("lot")), core.Result{}, nil
	},
	"list_lots": func(ctx context.Context, c call) (any, core.Result, error) {
		lots, err := c.svc.ListLots(ctx)
		return lots, core.Result{}, err
	},
	"capture": func(ctx context.Context, c call) (any, core.Result, error) {
		temp, err := c.int64("temperature")
		if err != nil {
			return nil, core.Result{}, err
		}
		res, err := c.svc.CaptureObservation(ctx, c.caller, c.str("lot"), temp, c.str("note"))
		return nil, res, err
	},
	"observations": func(ctx context.Context, c call) (any, core.Result, error) {
		obs, err := c.svc.GetObservations(ctx, c.str("lot"))
		if err != nil {
			return nil, core.Result{}, err
		}
		temps := make([]int64, 0, len(obs))
		for _, o := range obs {
			temps = append(temps, o.Temperature)
		}
		return temps, core.Result{}, nil
	},
	"is_compliant": func(ctx context.Context, c call) (any, core.Result, error) {
		ok, err := c.svc.IsCompliant(ctx, c.str("lot"))
		return ok, core.Result{}, err
	},
	"analytics": func(ctx context.Context, c call) (any, core.Result, error) {
		summary, err := c.svc.Analytics(ctx, c.str("lot"))
		if err != nil {
			return nil, core.Result{}, err
		}
		return summary, core.Result{}, nil
	},
	"award_badge": func(ctx context.Context, c call) (any, core.Result, error) {
		res, err := c.svc.AwardBadge(ctx, c.caller, c.str("lot"), c.str("badge"))
		return nil, res, err
	},
	"has_badge": func(ctx context.Context, c call) (any, core.Result, error) {
		ok, err := c.svc.HasBadge(ctx, c.str("lot"), c.str("badge"))
		return ok, core.Result{}, err
	},
	"badges": func(ctx context.Context, c call) (any, core.Result, error) {
		badges, err := c.svc.GetBadges(ctx, c.str("lot"))
		return badges, core.Result{}, err
	},
	"leaderboard": func(ctx context.Context, c call) (any, core.Result, error) {
		limit, err := c.int64("limit")
		if err != nil {
			return nil, core.Result{}, err
		}
		entries, err := c.svc.Leaderboard(ctx, int(limit))
		return entries, core.Result{}, err
	},
	"generate_token": func(ctx context.Context, c call) (any, core.Result, error) {
		token, res, err := c.svc.GenerateToken(ctx, c.caller, c.str("lot"))
		if err != nil {
			return nil, res, err
		}
		return token, res, nil
	},
	"resolve_token": func(ctx context.Context, c call) (any, core.Result, error) {
		lot, err := c.svc.ResolveToken(ctx, c.str("token"))
		if err != nil {
			return nil, core.Result{}, err
		}
		return lot, core.Result{}, nil
	},
}

func viewOrNil(view core.ConsumerView, err error) any {
	if err != nil {
		return nil
	}
	return view
}

func (c call) str(key string) string {
	v, ok := c.args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// int64 reads a numeric argument. A missing argument reads as zero.
func (c call) int64(key string) (int64, error) {
	switch v := c.args[key].(type) {
	case nil:
		return 0, nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, argError{fmt.Errorf("arg %s: %w", key, err)}
		}
		return n, nil
	default:
		return 0, argError{fmt.Errorf("arg %s: unsupported value %v", key, v)}
	}
}
