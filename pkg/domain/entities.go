// Package domain defines the traceability ledger records, value types, error
// kinds and rule evaluation primitives used by tracechain.
package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the ledger.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityProduct identifies a lot record.
	EntityProduct EntityType = "product"
	// EntityRole identifies an identity to role assignment.
	EntityRole EntityType = "role"
	// EntityToken identifies an issued lookup token.
	EntityToken EntityType = "token"
)

// Role is the capability tag held by an identity. One role per identity.
type Role uint8

// Roles recognised by the access control registry.
const (
	RoleNone Role = iota
	RoleVendor
	RoleManufacturer
	RoleLogistics
	RoleRetailer
)

var roleNames = [...]string{
	RoleNone:         "none",
	RoleVendor:       "vendor",
	RoleManufacturer: "manufacturer",
	RoleLogistics:    "logistics",
	RoleRetailer:     "retailer",
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool { return int(r) < len(roleNames) }

func (r Role) String() string {
	if r.Valid() {
		return roleNames[r]
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// ParseRole resolves a role from its name (case-insensitive) or ordinal.
func ParseRole(s string) (Role, bool) {
	s = strings.TrimSpace(s)
	for i, name := range roleNames {
		if strings.EqualFold(s, name) {
			return Role(i), true
		}
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n < len(roleNames) {
		return Role(n), true
	}
	return RoleNone, false
}

// MarshalText encodes the role by name.
func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// UnmarshalText decodes a role from its name or ordinal.
func (r *Role) UnmarshalText(b []byte) error {
	parsed, ok := ParseRole(string(b))
	if !ok {
		return fmt.Errorf("unknown role %q", string(b))
	}
	*r = parsed
	return nil
}

// Stage is the ordinal position of a lot in the supply-chain lifecycle.
type Stage uint8

// Lifecycle stages in ledger order. Stage only ever increases for a lot.
const (
	StageCreated Stage = iota
	StageVendor
	StageManufacturing
	StageLogistics
	StageRetail
	StageCompleted
)

var stageNames = [...]string{
	StageCreated:       "created",
	StageVendor:        "vendor",
	StageManufacturing: "manufacturing",
	StageLogistics:     "logistics",
	StageRetail:        "retail",
	StageCompleted:     "completed",
}

// Valid reports whether s is one of the declared stages.
func (s Stage) Valid() bool { return int(s) < len(stageNames) }

func (s Stage) String() string {
	if s.Valid() {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", uint8(s))
}

// ParseStage resolves a stage from its name (case-insensitive) or ordinal.
// Ordinals outside the declared range are returned as-is with ok=true so that
// callers can surface an unsupported-stage failure instead of a parse error.
func ParseStage(s string) (Stage, bool) {
	s = strings.TrimSpace(s)
	for i, name := range stageNames {
		if strings.EqualFold(s, name) {
			return Stage(i), true
		}
	}
	if n, err := strconv.ParseUint(s, 10, 8); err == nil {
		return Stage(n), true
	}
	return StageCreated, false
}

// MarshalText encodes the stage by name.
func (s Stage) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a stage from its name or ordinal.
func (s *Stage) UnmarshalText(b []byte) error {
	parsed, ok := ParseStage(string(b))
	if !ok {
		return fmt.Errorf("unknown stage %q", string(b))
	}
	*s = parsed
	return nil
}

// Observation is an immutable IoT reading appended to a lot's log.
type Observation struct {
	Temperature int64     `json:"temperature"`
	Note        string    `json:"note"`
	CapturedAt  time.Time `json:"captured_at"`
	CapturedBy  string    `json:"captured_by"`
}

// Thresholds holds the optional temperature bounds of a lot. Each bound is
// independently set or unset.
type Thresholds struct {
	Min    int64 `json:"min"`
	Max    int64 `json:"max"`
	MinSet bool  `json:"min_set"`
	MaxSet bool  `json:"max_set"`
}

// Any reports whether at least one bound is set.
func (t Thresholds) Any() bool { return t.MinSet || t.MaxSet }

// Admits reports whether temperature satisfies every set bound.
func (t Thresholds) Admits(temperature int64) bool {
	if t.MinSet && temperature < t.Min {
		return false
	}
	if t.MaxSet && temperature > t.Max {
		return false
	}
	return true
}

// Product is the ledger record for one lot.
type Product struct {
	Lot            string        `json:"lot"`
	Name           string        `json:"name"`
	Origin         string        `json:"origin"`
	Certifications string        `json:"certifications"`
	Stage          Stage         `json:"stage"`
	Handler        string        `json:"handler"`
	Observations   []Observation `json:"observations"`
	Thresholds     Thresholds    `json:"thresholds"`
	Badges         []string      `json:"badges"`
	LatestToken    string        `json:"latest_token,omitempty"`
	RegisteredAt   time.Time     `json:"registered_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// HasBadge reports whether name has been awarded to the lot.
func (p Product) HasBadge(name string) bool {
	for _, b := range p.Badges {
		if b == name {
			return true
		}
	}
	return false
}

// HasCertification reports whether the certification text contains tag as an
// exact, case-sensitive substring. No tokenization is applied, so
// "NonSustainable" matches "Sustainable".
func (p Product) HasCertification(tag string) bool {
	return strings.Contains(p.Certifications, tag)
}

// CloneProduct returns a deep copy of p so that owned sequences are never aliased.
func CloneProduct(p Product) Product {
	cp := p
	if p.Observations != nil {
		cp.Observations = append([]Observation(nil), p.Observations...)
	}
	if p.Badges != nil {
		cp.Badges = append([]string(nil), p.Badges...)
	}
	return cp
}

// RoleAssignment records the role currently held by an identity.
type RoleAssignment struct {
	Identity   string    `json:"identity"`
	Role       Role      `json:"role"`
	AssignedBy string    `json:"assigned_by"`
	AssignedAt time.Time `json:"assigned_at"`
}

// TokenRecord maps an issued token back to its lot. Records are never pruned.
type TokenRecord struct {
	Token    string    `json:"token"`
	Lot      string    `json:"lot"`
	IssuedBy string    `json:"issued_by"`
	IssuedAt time.Time `json:"issued_at"`
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Change describes a mutation applied within a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before ChangePayload
	After  ChangePayload
}

// Action indicates the type of modification performed.
type Action string

// Change actions captured in the audit trail. Ledger records are never deleted.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
)

// Violation reports a rule finding.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Warnings returns the non-blocking violations.
func (r Result) Warnings() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity != SeverityBlock {
			out = append(out, v)
		}
	}
	return out
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
