package core

import "tracechain/pkg/domain"

type (
	EntityType         = domain.EntityType
	Role               = domain.Role
	Stage              = domain.Stage
	Severity           = domain.Severity
	Product            = domain.Product
	Observation        = domain.Observation
	Thresholds         = domain.Thresholds
	RoleAssignment     = domain.RoleAssignment
	TokenRecord        = domain.TokenRecord
	Event              = domain.Event
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	Rule               = domain.Rule
	RuleView           = domain.RuleView
	RulesEngine        = domain.RulesEngine
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityProduct = domain.EntityProduct
	EntityRole    = domain.EntityRole
	EntityToken   = domain.EntityToken
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
)

// NewRulesEngine constructs an empty rules engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
