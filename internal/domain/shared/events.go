package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

const (
	EventInterventionAssigned  EventType = "intervention.assigned"
	EventInterventionCompleted EventType = "intervention.completed"
	EventRegistryRefreshed     EventType = "registry.refreshed"
	EventRiskPolicyUpdated     EventType = "risk.policy_updated"
	EventReportSettled         EventType = "report.settled"
)

// Event is the base interface for all domain events.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time
	AggregateID() string
	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
}

func (e BaseEvent) EventType() EventType  { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) AggregateID() string   { return e.AggregateId }

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
	}
}

// InterventionAssignedEvent is emitted after a new intervention is stored.
type InterventionAssignedEvent struct {
	BaseEvent
	StudentID string
	Title     string
}

func (e InterventionAssignedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"intervention_id": e.AggregateId,
		"student_id":      e.StudentID,
		"title":           e.Title,
	}
}

func NewInterventionAssignedEvent(interventionID, studentID, title string) InterventionAssignedEvent {
	return InterventionAssignedEvent{
		BaseEvent: NewBaseEvent(EventInterventionAssigned, interventionID),
		StudentID: studentID,
		Title:     title,
	}
}

// InterventionCompletedEvent is emitted only on the Pending to Completed
// transition, never on an idempotent repeat.
type InterventionCompletedEvent struct {
	BaseEvent
	StudentID   string
	CompletedAt time.Time
}

func (e InterventionCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"intervention_id": e.AggregateId,
		"student_id":      e.StudentID,
		"completed_at":    e.CompletedAt.Format(time.RFC3339),
	}
}

func NewInterventionCompletedEvent(interventionID, studentID string, completedAt time.Time) InterventionCompletedEvent {
	return InterventionCompletedEvent{
		BaseEvent:   NewBaseEvent(EventInterventionCompleted, interventionID),
		StudentID:   studentID,
		CompletedAt: completedAt,
	}
}

// RegistryRefreshedEvent announces that the student source has a new
// snapshot. Other instances reload on receipt.
type RegistryRefreshedEvent struct {
	BaseEvent
	Version  uint64
	Students int
	Skipped  int
}

func (e RegistryRefreshedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"version":  e.Version,
		"students": e.Students,
		"skipped":  e.Skipped,
	}
}

func NewRegistryRefreshedEvent(version uint64, students, skipped int) RegistryRefreshedEvent {
	return RegistryRefreshedEvent{
		BaseEvent: NewBaseEvent(EventRegistryRefreshed, "registry"),
		Version:   version,
		Students:  students,
		Skipped:   skipped,
	}
}

// RiskPolicyUpdatedEvent announces a new persisted threshold version.
type RiskPolicyUpdatedEvent struct {
	BaseEvent
	Version   int64
	UpdatedBy string
}

func (e RiskPolicyUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"version":    e.Version,
		"updated_by": e.UpdatedBy,
	}
}

func NewRiskPolicyUpdatedEvent(version int64, updatedBy string) RiskPolicyUpdatedEvent {
	return RiskPolicyUpdatedEvent{
		BaseEvent: NewBaseEvent(EventRiskPolicyUpdated, "risk-policy"),
		Version:   version,
		UpdatedBy: updatedBy,
	}
}

// ReportSettledEvent is emitted when a report request resolves, successfully
// or not. Superseded responses are not announced.
type ReportSettledEvent struct {
	BaseEvent
	Kind    string
	Success bool
	Message string
}

func (e ReportSettledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"request_id": e.AggregateId,
		"kind":       e.Kind,
		"success":    e.Success,
		"message":    e.Message,
	}
}

func NewReportSettledEvent(requestID, kind string, success bool, message string) ReportSettledEvent {
	return ReportSettledEvent{
		BaseEvent: NewBaseEvent(EventReportSettled, requestID),
		Kind:      kind,
		Success:   success,
		Message:   message,
	}
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	Subscribe(eventType EventType, handler EventHandler) error
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher discards events. Used where no bus is wired.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) error { return nil }
