package core

import (
	"context"

	"tracechain/pkg/domain"
)

// AssignRole grants role to target. Only the owner may assign roles;
// assigning RoleNone revokes whatever the identity held.
func (s *Service) AssignRole(ctx context.Context, caller, target string, role Role) (Result, error) {
	var res Result
	err := s.run(ctx, opAssignRole, target, caller, func(ctx context.Context) error {
		allowed, err := s.opts.policy.CanAssignRoles(s.isOwner(caller))
		if err != nil {
			return err
		}
		if !allowed {
			return domain.NewLedgerError(domain.ErrUnauthorized, opAssignRole, "", "%q is not the owner", caller)
		}
		if target == "" {
			return domain.NewLedgerError(domain.ErrInvalidKey, opAssignRole, "", "empty identity")
		}
		if !role.Valid() {
			return domain.NewLedgerError(domain.ErrInvalidRole, opAssignRole, "", "%s", role)
		}
		res, err = s.mutate(ctx, opAssignRole, func(tx Transaction, out *emitter) error {
			if _, err := tx.AssignRole(RoleAssignment{
				Identity:   target,
				Role:       role,
				AssignedBy: caller,
				AssignedAt: s.now(),
			}); err != nil {
				return err
			}
			out.emit(domain.RoleAssigned(target, role))
			return nil
		})
		return err
	})
	return res, err
}

// GetRole returns the role held by identity, RoleNone when unassigned.
func (s *Service) GetRole(ctx context.Context, identity string) Role {
	role := domain.RoleNone
	_ = s.run(context.WithoutCancel(ctx), opGetRole, identity, "", func(ctx context.Context) error {
		return s.view(ctx, func(v TransactionView) error {
			role = v.RoleOf(identity)
			return nil
		})
	})
	return role
}

// ListRoles returns every identity holding a role other than RoleNone,
// ordered by identity.
func (s *Service) ListRoles(ctx context.Context) ([]RoleAssignment, error) {
	var out []RoleAssignment
	err := s.run(ctx, opListRoles, "", "", func(ctx context.Context) error {
		return s.view(ctx, func(v TransactionView) error {
			out = v.ListRoles()
			return nil
		})
	})
	return out, err
}
