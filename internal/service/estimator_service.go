package service

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/patient-queue-service/internal/config"
	"github.com/spec-kit/patient-queue-service/internal/domain"
	"github.com/spec-kit/patient-queue-service/internal/repository"
)

// Estimate pairs a queue position with an approximate wait. Both are
// heuristics recomputed from a fresh ledger snapshot on every query; the
// wait is position times the room's rolling average processing time.
type Estimate struct {
	Position             int
	EstimatedWaitMinutes float64
}

// EstimatorService answers wait-time queries. It holds no ticket state;
// the only cache is the bounded, time-keyed store of per-room processing
// averages below.
type EstimatorService struct {
	ledger repository.Ledger
	cfg    config.QueueConfig
	now    func() time.Time

	mu       sync.Mutex
	averages map[string]cachedAverage
}

type cachedAverage struct {
	minutes    float64
	computedAt time.Time
}

const globalAverageKey = "__global"

// NewEstimatorService constructs the service.
func NewEstimatorService(ledger repository.Ledger, cfg config.QueueConfig) *EstimatorService {
	return &EstimatorService{
		ledger:   ledger,
		cfg:      cfg,
		now:      time.Now,
		averages: make(map[string]cachedAverage),
	}
}

// WithClock overrides the service clock.
func (s *EstimatorService) WithClock(now func() time.Time) *EstimatorService {
	s.now = now
	return s
}

// EstimateForTicket computes the ticket's current position and wait.
// Tickets no longer WAITING report position zero: they are either being
// served or out of the queue for good.
func (s *EstimatorService) EstimateForTicket(ctx context.Context, id string) (Estimate, error) {
	ticket, err := s.ledger.GetByID(ctx, id)
	if err != nil {
		return Estimate{}, err
	}
	if ticket.Status != domain.TicketStatusWaiting {
		return Estimate{Position: 0, EstimatedWaitMinutes: 0}, nil
	}
	return s.estimate(ctx, ticket)
}

// EstimateForNewTicket previews the position and wait a ticket created now
// with the given priority would get, before it is actually created.
func (s *EstimatorService) EstimateForNewTicket(ctx context.Context, roomRef *string, priority domain.TicketPriority) (Estimate, error) {
	hypothetical := &domain.QueueTicket{
		RoomRef:   roomRef,
		Priority:  priority,
		Status:    domain.TicketStatusWaiting,
		CreatedAt: s.now(),
	}
	return s.estimate(ctx, hypothetical)
}

func (s *EstimatorService) estimate(ctx context.Context, ticket *domain.QueueTicket) (Estimate, error) {
	now := s.now()
	waiting, err := s.ledger.ListWaiting(ctx, repository.WaitingFilter{RoomRef: ticket.RoomRef})
	if err != nil {
		return Estimate{}, err
	}

	position := 1
	for i := range waiting {
		other := &waiting[i]
		if other.ID == ticket.ID {
			continue
		}
		if !other.ExpiresAt.After(now) {
			continue
		}
		if domain.CallsBefore(other, ticket) {
			position++
		}
	}

	avg, err := s.averageProcessingMinutes(ctx, ticket.RoomRef)
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{
		Position:             position,
		EstimatedWaitMinutes: float64(position) * avg,
	}, nil
}

// averageProcessingMinutes returns the mean called-to-completed duration
// for the room over the recent window, falling back to the configured
// default when the room has no history. Computed values are reused for the
// cache TTL and stale entries are pruned on refresh, so the map stays
// bounded by the set of recently queried rooms.
func (s *EstimatorService) averageProcessingMinutes(ctx context.Context, roomRef *string) (float64, error) {
	key := globalAverageKey
	if roomRef != nil {
		key = *roomRef
	}
	now := s.now()

	s.mu.Lock()
	cached, ok := s.averages[key]
	s.mu.Unlock()
	if ok && now.Sub(cached.computedAt) < s.cfg.AverageCacheTTL() {
		return cached.minutes, nil
	}

	completed, err := s.ledger.ListCompletedSince(ctx, roomRef, now.Add(-s.cfg.ProcessingWindow()))
	if err != nil {
		return 0, err
	}

	minutes := float64(s.cfg.DefaultAverageProcessingMinutes)
	var total time.Duration
	samples := 0
	for i := range completed {
		t := &completed[i]
		if t.CalledAt == nil || t.CompletedAt == nil {
			continue
		}
		total += t.CompletedAt.Sub(*t.CalledAt)
		samples++
	}
	if samples > 0 {
		minutes = total.Minutes() / float64(samples)
	}

	s.mu.Lock()
	for k, entry := range s.averages {
		if now.Sub(entry.computedAt) >= s.cfg.AverageCacheTTL() {
			delete(s.averages, k)
		}
	}
	s.averages[key] = cachedAverage{minutes: minutes, computedAt: now}
	s.mu.Unlock()

	return minutes, nil
}
