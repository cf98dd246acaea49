// Package authz evaluates ledger permissions with a casbin enforcer. The
// stage-to-role table and the operation grants are policy lines, not code.
package authz

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"tracechain/pkg/domain"
)

// OwnerSubject is the pseudo-role held by the ledger owner identity.
const OwnerSubject = "owner"

// Objects and actions used in policy lines.
const (
	ObjectLot  = "lot"
	ObjectRole = "role"

	ActionAdvance    = "advance"
	ActionCapture    = "capture"
	ActionThresholds = "thresholds"
	ActionAssign     = "assign"
)

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && r.act == p.act
`

// Rule is one allow line of the policy.
type Rule struct {
	Subject string
	Object  string
	Action  string
}

// StageObject names the policy object guarding transitions into target.
func StageObject(target domain.Stage) string {
	return "stage:" + target.String()
}

// DefaultRules returns the built-in ledger policy.
func DefaultRules() []Rule {
	stage := func(sub string, target domain.Stage) Rule {
		return Rule{Subject: sub, Object: StageObject(target), Action: ActionAdvance}
	}
	rules := []Rule{
		stage(domain.RoleVendor.String(), domain.StageVendor),
		stage(domain.RoleManufacturer.String(), domain.StageManufacturing),
		stage(domain.RoleLogistics.String(), domain.StageLogistics),
		stage(domain.RoleRetailer.String(), domain.StageRetail),
		stage(domain.RoleRetailer.String(), domain.StageCompleted),
		stage(OwnerSubject, domain.StageCompleted),
		{Subject: OwnerSubject, Object: ObjectLot, Action: ActionCapture},
		{Subject: domain.RoleLogistics.String(), Object: ObjectLot, Action: ActionCapture},
		{Subject: OwnerSubject, Object: ObjectRole, Action: ActionAssign},
		{Subject: OwnerSubject, Object: ObjectLot, Action: ActionThresholds},
	}
	for _, role := range []domain.Role{domain.RoleVendor, domain.RoleManufacturer, domain.RoleLogistics, domain.RoleRetailer} {
		rules = append(rules, Rule{Subject: role.String(), Object: ObjectLot, Action: ActionThresholds})
	}
	return rules
}

// Policy wraps the enforcer together with the set of stages that have at
// least one grant; transitions into any other stage are unsupported.
type Policy struct {
	enforcer *casbin.Enforcer
	stages   map[domain.Stage]struct{}
}

// NewPolicy builds a policy from DefaultRules.
func NewPolicy() (*Policy, error) {
	return NewPolicyWithRules(DefaultRules())
}

// NewPolicyWithRules builds a policy from rules.
func NewPolicyWithRules(rules []Rule) (*Policy, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("authz: load model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("authz: init enforcer: %w", err)
	}
	p := &Policy{enforcer: enforcer, stages: make(map[domain.Stage]struct{})}
	for _, r := range rules {
		if err := p.Grant(r); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Grant adds an allow line. Duplicate lines are accepted silently.
func (p *Policy) Grant(r Rule) error {
	if _, err := p.enforcer.AddPolicy(r.Subject, r.Object, r.Action); err != nil {
		return fmt.Errorf("authz: add policy %s %s %s: %w", r.Subject, r.Object, r.Action, err)
	}
	if r.Action == ActionAdvance {
		for s := domain.StageCreated; s.Valid(); s++ {
			if StageObject(s) == r.Object {
				p.stages[s] = struct{}{}
			}
		}
	}
	return nil
}

// Subjects lists the policy subjects an identity acts as.
func Subjects(role domain.Role, isOwner bool) []string {
	subjects := make([]string, 0, 2)
	if role != domain.RoleNone {
		subjects = append(subjects, role.String())
	}
	if isOwner {
		subjects = append(subjects, OwnerSubject)
	}
	return subjects
}

// Allowed reports whether any of subjects may perform act on obj.
func (p *Policy) Allowed(subjects []string, obj, act string) (bool, error) {
	for _, sub := range subjects {
		ok, err := p.enforcer.Enforce(sub, obj, act)
		if err != nil {
			return false, fmt.Errorf("authz: enforce %s %s %s: %w", sub, obj, act, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// SupportsStage reports whether any subject may advance a lot into target.
func (p *Policy) SupportsStage(target domain.Stage) bool {
	_, ok := p.stages[target]
	return ok
}

// CanAdvance reports whether the identity may move a lot into target.
func (p *Policy) CanAdvance(role domain.Role, isOwner bool, target domain.Stage) (bool, error) {
	return p.Allowed(Subjects(role, isOwner), StageObject(target), ActionAdvance)
}

// CanCapture reports whether the identity may append observations.
func (p *Policy) CanCapture(role domain.Role, isOwner bool) (bool, error) {
	return p.Allowed(Subjects(role, isOwner), ObjectLot, ActionCapture)
}

// CanSetThresholds reports whether the identity may replace compliance bounds.
func (p *Policy) CanSetThresholds(role domain.Role, isOwner bool) (bool, error) {
	return p.Allowed(Subjects(role, isOwner), ObjectLot, ActionThresholds)
}

// CanAssignRoles reports whether the identity may administer the role table.
func (p *Policy) CanAssignRoles(isOwner bool) (bool, error) {
	return p.Allowed(Subjects(domain.RoleNone, isOwner), ObjectRole, ActionAssign)
}
