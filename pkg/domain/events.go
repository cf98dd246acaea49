package domain

import "time"

// EventType names a ledger notification.
type EventType string

// Notifications emitted after a successful commit.
const (
	EventProductRegistered EventType = "ProductRegistered"
	EventRoleAssigned      EventType = "RoleAssigned"
	EventThresholdsSet     EventType = "ThresholdsSet"
	EventStageUpdated      EventType = "StageUpdated"
	EventIoTCaptured       EventType = "IoTCaptured"
	EventBadgeAwarded      EventType = "BadgeAwarded"
	EventTokenGenerated    EventType = "TokenGenerated"
)

// Event is a notification observed by external collaborators. Data holds the
// event-specific fields keyed by snake_case name.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Lot        string         `json:"lot,omitempty"`
	Data       map[string]any `json:"data"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// ProductRegistered builds the notification for a new lot.
func ProductRegistered(lot, name, origin string) Event {
	return Event{Type: EventProductRegistered, Lot: lot, Data: map[string]any{"name": name, "origin": origin}}
}

// RoleAssigned builds the notification for a role assignment.
func RoleAssigned(identity string, role Role) Event {
	return Event{Type: EventRoleAssigned, Data: map[string]any{"identity": identity, "role": role}}
}

// ThresholdsSet builds the notification for replaced thresholds.
func ThresholdsSet(lot string, minTemp, maxTemp int64) Event {
	return Event{Type: EventThresholdsSet, Lot: lot, Data: map[string]any{"min": minTemp, "max": maxTemp}}
}

// StageUpdated builds the notification for a stage transition.
func StageUpdated(lot string, stage Stage, handler string) Event {
	return Event{Type: EventStageUpdated, Lot: lot, Data: map[string]any{"stage": stage, "handler": handler}}
}

// IoTCaptured builds the notification for an appended observation.
func IoTCaptured(lot string, temperature int64, note string) Event {
	return Event{Type: EventIoTCaptured, Lot: lot, Data: map[string]any{"temperature": temperature, "note": note}}
}

// BadgeAwarded builds the notification for an awarded badge.
func BadgeAwarded(lot, badge string) Event {
	return Event{Type: EventBadgeAwarded, Lot: lot, Data: map[string]any{"badge": badge}}
}

// TokenGenerated builds the notification for an issued token.
func TokenGenerated(lot, token string) Event {
	return Event{Type: EventTokenGenerated, Lot: lot, Data: map[string]any{"token": token}}
}
