package events

import (
	"time"

	"github.com/spec-kit/patient-queue-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated   EventType = "ticket_created"
	EventTicketCalled    EventType = "ticket_called"
	EventTicketCompleted EventType = "ticket_completed"
	EventTicketExpired   EventType = "ticket_expired"
)

// Event represents a queue lifecycle event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	EncounterRef string                `json:"encounter_ref"`
	RoomRef      *string               `json:"room_ref,omitempty"`
	Priority     domain.TicketPriority `json:"priority"`
	QueueNumber  int                   `json:"queue_number"`
	ExpiresAt    time.Time             `json:"expires_at"`
}

// TicketCalledPayload payload. Consumed by the external push channel that
// announces "next patient called".
type TicketCalledPayload struct {
	RoomRef      string `json:"room_ref"`
	PhysicianRef string `json:"physician_ref"`
	QueueNumber  int    `json:"queue_number"`
}

// TicketCompletedPayload payload.
type TicketCompletedPayload struct {
	PhysicianRef string `json:"physician_ref"`
}

// TicketExpiredPayload payload.
type TicketExpiredPayload struct {
	QueueNumber int    `json:"queue_number"`
	Reason      string `json:"reason"`
}
