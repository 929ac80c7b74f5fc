package repository

import (
	"context"
	"time"

	"github.com/spec-kit/patient-queue-service/internal/domain"
)

// WaitingFilter narrows a waiting-ticket listing. RoomRef selects the
// room's lane plus the global lane; ExpiresBefore selects sweep-eligible
// tickets.
type WaitingFilter struct {
	RoomRef       *string
	ExpiresBefore *time.Time
}

// TransitionFields carries the timestamps and assignments written alongside
// a status transition. Only non-nil fields are applied, each exactly once.
type TransitionFields struct {
	PhysicianRef *string
	CalledAt     *time.Time
	CompletedAt  *time.Time
	ExpiredAt    *time.Time
}

// Ledger is the authoritative store of queue tickets. All reads and writes
// of ticket state pass through it; Transition is the only mutation after
// creation and is a compare-and-swap on (id, status).
type Ledger interface {
	// Create persists the ticket, assigning ID, day-scoped queue number,
	// and creation metadata. Status, token, and timestamps must already be
	// populated by the caller.
	Create(ctx context.Context, ticket *domain.QueueTicket) error
	GetByID(ctx context.Context, id string) (*domain.QueueTicket, error)
	// GetByToken resolves a validation token regardless of ticket status.
	// Token index entries are never removed; a printed ticket stays
	// resolvable after expiry or completion.
	GetByToken(ctx context.Context, token string) (*domain.QueueTicket, error)
	// ListWaiting returns WAITING tickets matching the filter. Ordering is
	// the caller's responsibility.
	ListWaiting(ctx context.Context, filter WaitingFilter) ([]domain.QueueTicket, error)
	// ListCompletedSince returns tickets completed at or after the cutoff,
	// optionally limited to a room lane; feeds the processing-time average.
	ListCompletedSince(ctx context.Context, roomRef *string, since time.Time) ([]domain.QueueTicket, error)
	// Transition applies the status move only if the ticket's current
	// status equals from; otherwise it fails with a STALE_TRANSITION
	// domain error and has no side effect.
	Transition(ctx context.Context, id string, from, to domain.TicketStatus, fields TransitionFields) (*domain.QueueTicket, error)
}
