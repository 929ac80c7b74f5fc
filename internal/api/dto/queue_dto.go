package dto

import (
	"time"

	"github.com/spec-kit/patient-queue-service/internal/domain"
)

// CreateTicketRequest payload. TTLMinutes overrides the configured default
// when positive.
type CreateTicketRequest struct {
	EncounterRef string                `json:"encounter_ref"`
	RoomRef      *string               `json:"room_ref"`
	Priority     domain.TicketPriority `json:"priority"`
	TTLMinutes   *int                  `json:"ttl_minutes"`
}

// CallNextRequest payload.
type CallNextRequest struct {
	RoomRef string `json:"room_ref"`
}

// PreviewEstimateRequest captures query parameters for estimate previews.
type PreviewEstimateRequest struct {
	RoomRef  *string               `json:"room_ref"`
	Priority domain.TicketPriority `json:"priority"`
}

// TicketView mirrors the queue ticket for transport.
type TicketView struct {
	ID              string                `json:"id"`
	EncounterRef    string                `json:"encounter_ref"`
	RoomRef         *string               `json:"room_ref"`
	PhysicianRef    *string               `json:"physician_ref"`
	Priority        domain.TicketPriority `json:"priority"`
	Status          domain.TicketStatus   `json:"status"`
	QueueNumber     int                   `json:"queue_number"`
	ValidationToken string                `json:"validation_token"`
	CreatedAt       time.Time             `json:"created_at"`
	ExpiresAt       time.Time             `json:"expires_at"`
	CalledAt        *time.Time            `json:"called_at"`
	CompletedAt     *time.Time            `json:"completed_at"`
	ExpiredAt       *time.Time            `json:"expired_at"`
}

// CallNextResponse wraps the call-next outcome; NoCandidate marks the
// expected empty-queue case.
type CallNextResponse struct {
	Ticket      *TicketView `json:"ticket,omitempty"`
	NoCandidate bool        `json:"no_candidate"`
}

// EstimateResponse reports a queue position and approximate wait. The wait
// is a heuristic, not a commitment.
type EstimateResponse struct {
	Position             int     `json:"position"`
	EstimatedWaitMinutes float64 `json:"estimated_wait_minutes"`
}

// SweepResponse reports one expiry sweep.
type SweepResponse struct {
	ExpiredCount int `json:"expired_count"`
}

// FromTicket maps a domain ticket to its transport view.
func FromTicket(ticket *domain.QueueTicket) TicketView {
	return TicketView{
		ID:              ticket.ID,
		EncounterRef:    ticket.EncounterRef,
		RoomRef:         ticket.RoomRef,
		PhysicianRef:    ticket.PhysicianRef,
		Priority:        ticket.Priority,
		Status:          ticket.Status,
		QueueNumber:     ticket.QueueNumber,
		ValidationToken: ticket.ValidationToken,
		CreatedAt:       ticket.CreatedAt,
		ExpiresAt:       ticket.ExpiresAt,
		CalledAt:        ticket.CalledAt,
		CompletedAt:     ticket.CompletedAt,
		ExpiredAt:       ticket.ExpiredAt,
	}
}
