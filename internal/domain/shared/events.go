package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Delivery (push, SMS, polling) is handled by
// whoever subscribes to them.
const (
	EventRequestCreated   EventType = "request.created"
	EventRequestAccepted  EventType = "request.accepted"
	EventRequestRejected  EventType = "request.rejected"
	EventRequestCancelled EventType = "request.cancelled"
	EventRequestCompleted EventType = "request.completed"

	EventDonorEligibilityRestored EventType = "donor.eligibility_restored"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
	Version     int       `json:"version"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event stamped at the given time.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Request Events
// ═══════════════════════════════════════════════════════════════════════════

// RequestTransitionedEvent is emitted after every successful lifecycle step.
// The aggregate is the blood request.
type RequestTransitionedEvent struct {
	BaseEvent
	RequesterID string `json:"requester_id"`
	DonorID     string `json:"donor_id"`
	Status      string `json:"status"`
	ActorID     string `json:"actor_id"`
	Note        string `json:"note,omitempty"`
	Rating      int    `json:"rating,omitempty"`
}

// Payload implements Event interface.
func (e RequestTransitionedEvent) Payload() map[string]interface{} {
	p := map[string]interface{}{
		"requester_id": e.RequesterID,
		"donor_id":     e.DonorID,
		"status":       e.Status,
		"actor_id":     e.ActorID,
	}
	if e.Note != "" {
		p["note"] = e.Note
	}
	if e.Rating != 0 {
		p["rating"] = e.Rating
	}
	return p
}

// NewRequestTransitionedEvent creates a request lifecycle event.
func NewRequestTransitionedEvent(eventType EventType, requestID, requesterID, donorID, status, actorID string, at time.Time) RequestTransitionedEvent {
	return RequestTransitionedEvent{
		BaseEvent:   NewBaseEvent(eventType, requestID, at),
		RequesterID: requesterID,
		DonorID:     donorID,
		Status:      status,
		ActorID:     actorID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Donor Events
// ═══════════════════════════════════════════════════════════════════════════

// DonorEligibilityRestoredEvent is emitted when a donor's cooldown ends.
type DonorEligibilityRestoredEvent struct {
	BaseEvent
	BloodGroup       string    `json:"blood_group"`
	Location         string    `json:"location"`
	LastDonationDate time.Time `json:"last_donation_date"`
}

// Payload implements Event interface.
func (e DonorEligibilityRestoredEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"blood_group":        e.BloodGroup,
		"location":           e.Location,
		"last_donation_date": e.LastDonationDate,
	}
}

// NewDonorEligibilityRestoredEvent creates a donor eligibility event.
func NewDonorEligibilityRestoredEvent(donorID, bloodGroup, location string, lastDonation, at time.Time) DonorEligibilityRestoredEvent {
	return DonorEligibilityRestoredEvent{
		BaseEvent:        NewBaseEvent(EventDonorEligibilityRestored, donorID, at),
		BloodGroup:       bloodGroup,
		Location:         location,
		LastDonationDate: lastDonation,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Bus Interfaces
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
