package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/patient-queue-service/internal/domain"
	"github.com/spec-kit/patient-queue-service/pkg/util"
)

// MemoryLedger is a mutex-guarded in-memory Ledger. It backs tests and
// DSN-less development runs; the compare-and-swap semantics are identical
// to the postgres implementation.
type MemoryLedger struct {
	mu          sync.RWMutex
	tickets     map[string]*domain.QueueTicket
	tokenIndex  map[string]string
	dayCounters map[string]int
}

// NewMemoryLedger builds an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		tickets:     make(map[string]*domain.QueueTicket),
		tokenIndex:  make(map[string]string),
		dayCounters: make(map[string]int),
	}
}

func (l *MemoryLedger) Create(ctx context.Context, ticket *domain.QueueTicket) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if _, exists := l.tokenIndex[ticket.ValidationToken]; exists {
		return util.NewValidationError("validation token already in use", map[string]any{"token": ticket.ValidationToken})
	}

	day := ticket.CreatedAt.Format("2006-01-02")
	l.dayCounters[day]++
	ticket.QueueNumber = l.dayCounters[day]

	stored := *ticket
	l.tickets[ticket.ID] = &stored
	l.tokenIndex[ticket.ValidationToken] = ticket.ID
	return nil
}

func (l *MemoryLedger) GetByID(ctx context.Context, id string) (*domain.QueueTicket, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stored, ok := l.tickets[id]
	if !ok {
		return nil, util.NewNotFound("ticket", map[string]any{"id": id})
	}
	copied := *stored
	return &copied, nil
}

func (l *MemoryLedger) GetByToken(ctx context.Context, token string) (*domain.QueueTicket, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	id, ok := l.tokenIndex[token]
	if !ok {
		return nil, util.NewInvalidToken()
	}
	stored, ok := l.tickets[id]
	if !ok {
		return nil, util.NewInvalidToken()
	}
	copied := *stored
	return &copied, nil
}

func (l *MemoryLedger) ListWaiting(ctx context.Context, filter WaitingFilter) ([]domain.QueueTicket, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := []domain.QueueTicket{}
	for _, stored := range l.tickets {
		if stored.Status != domain.TicketStatusWaiting {
			continue
		}
		if filter.RoomRef != nil && !stored.InLane(*filter.RoomRef) {
			continue
		}
		if filter.ExpiresBefore != nil && stored.ExpiresAt.After(*filter.ExpiresBefore) {
			continue
		}
		result = append(result, *stored)
	}
	return result, nil
}

func (l *MemoryLedger) ListCompletedSince(ctx context.Context, roomRef *string, since time.Time) ([]domain.QueueTicket, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := []domain.QueueTicket{}
	for _, stored := range l.tickets {
		if stored.Status != domain.TicketStatusCompleted || stored.CompletedAt == nil {
			continue
		}
		if stored.CompletedAt.Before(since) {
			continue
		}
		if roomRef != nil && (stored.RoomRef == nil || *stored.RoomRef != *roomRef) {
			continue
		}
		result = append(result, *stored)
	}
	return result, nil
}

func (l *MemoryLedger) Transition(ctx context.Context, id string, from, to domain.TicketStatus, fields TransitionFields) (*domain.QueueTicket, error) {
	if !domain.CanTransition(from, to) {
		return nil, util.NewValidationError("illegal status transition", map[string]any{"from": from, "to": to})
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	stored, ok := l.tickets[id]
	if !ok {
		return nil, util.NewNotFound("ticket", map[string]any{"id": id})
	}
	if stored.Status != from {
		return nil, util.NewStaleTransition(id, string(from), string(stored.Status))
	}

	stored.Status = to
	if fields.PhysicianRef != nil {
		stored.PhysicianRef = fields.PhysicianRef
	}
	if fields.CalledAt != nil {
		stored.CalledAt = fields.CalledAt
	}
	if fields.CompletedAt != nil {
		stored.CompletedAt = fields.CompletedAt
	}
	if fields.ExpiredAt != nil {
		stored.ExpiredAt = fields.ExpiredAt
	}

	copied := *stored
	return &copied, nil
}
