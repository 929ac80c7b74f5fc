package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/patient-queue-service/internal/domain"
	"github.com/spec-kit/patient-queue-service/internal/events"
	"github.com/spec-kit/patient-queue-service/internal/observability"
	"github.com/spec-kit/patient-queue-service/internal/repository"
	"github.com/spec-kit/patient-queue-service/pkg/util"
)

// ErrNoCandidate reports an empty candidate set for call-next. It is an
// expected outcome, not a fault, and must never be logged as a failure.
var ErrNoCandidate = errors.New("no waiting candidates")

// SchedulerService advances the head of a room's queue. Selection holds no
// lock across the scan; the per-ticket compare-and-swap in the ledger is
// the only mutual exclusion, so calling in one room never blocks another.
type SchedulerService struct {
	ledger     repository.Ledger
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	maxRetries int
	now        func() time.Time
}

// NewSchedulerService constructs the service. maxRetries bounds the
// call-next retry loop.
func NewSchedulerService(ledger repository.Ledger, dispatcher events.Dispatcher, metrics *observability.Metrics, maxRetries int) *SchedulerService {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &SchedulerService{
		ledger:     ledger,
		dispatcher: dispatcher,
		metrics:    metrics,
		maxRetries: maxRetries,
		now:        time.Now,
	}
}

// WithClock overrides the service clock.
func (s *SchedulerService) WithClock(now func() time.Time) *SchedulerService {
	s.now = now
	return s
}

// CallNext selects the highest-priority, earliest-created WAITING ticket
// addressable to the room (room lane plus global lane, un-expired) and
// atomically moves it to IN_PROGRESS for the physician. A lost
// compare-and-swap refreshes the snapshot and retries up to the bound;
// exhaustion or a cancelled context surfaces CONTENTION. An empty
// candidate set returns ErrNoCandidate.
func (s *SchedulerService) CallNext(ctx context.Context, roomRef, physicianRef string) (*domain.QueueTicket, error) {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, util.NewContention(attempt - 1)
		}

		now := s.now()
		head, err := s.headCandidate(ctx, roomRef, now)
		if err != nil {
			return nil, err
		}
		if head == nil {
			return nil, ErrNoCandidate
		}

		calledAt := now
		ticket, err := s.ledger.Transition(ctx, head.ID, domain.TicketStatusWaiting, domain.TicketStatusInProgress, repository.TransitionFields{
			PhysicianRef: &physicianRef,
			CalledAt:     &calledAt,
		})
		if err == nil {
			s.metrics.RecordCall(roomRef)
			s.publishEvent(ctx, events.Event{
				Type:     events.EventTicketCalled,
				TicketID: ticket.ID,
				Payload: events.TicketCalledPayload{
					RoomRef:      roomRef,
					PhysicianRef: physicianRef,
					QueueNumber:  ticket.QueueNumber,
				},
			})
			return ticket, nil
		}
		if util.IsStaleTransition(err) {
			// The head was called from another lane or expired between the
			// snapshot and the swap; rescan against the fresh ledger state.
			s.metrics.RecordCallRetry(roomRef)
			continue
		}
		return nil, err
	}
	return nil, util.NewContention(s.maxRetries)
}

// Complete finishes an IN_PROGRESS visit for the physician who called it.
func (s *SchedulerService) Complete(ctx context.Context, id, physicianRef string) (*domain.QueueTicket, error) {
	ticket, err := s.ledger.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket.Status != domain.TicketStatusInProgress {
		return nil, util.NewNotInProgress(string(ticket.Status))
	}
	if ticket.PhysicianRef == nil || *ticket.PhysicianRef != physicianRef {
		return nil, util.NewPhysicianMismatch()
	}

	completedAt := s.now()
	updated, err := s.ledger.Transition(ctx, id, domain.TicketStatusInProgress, domain.TicketStatusCompleted, repository.TransitionFields{
		CompletedAt: &completedAt,
	})
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCompleted,
		TicketID: updated.ID,
		Payload:  events.TicketCompletedPayload{PhysicianRef: physicianRef},
	})
	return updated, nil
}

// Expire moves a WAITING ticket to EXPIRED. A second invocation loses the
// compare-and-swap and surfaces STALE_TRANSITION; callers treat that as
// "already handled", not as a failure.
func (s *SchedulerService) Expire(ctx context.Context, id, reason string) (*domain.QueueTicket, error) {
	expiredAt := s.now()
	ticket, err := s.ledger.Transition(ctx, id, domain.TicketStatusWaiting, domain.TicketStatusExpired, repository.TransitionFields{
		ExpiredAt: &expiredAt,
	})
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketExpired,
		TicketID: ticket.ID,
		Payload: events.TicketExpiredPayload{
			QueueNumber: ticket.QueueNumber,
			Reason:      reason,
		},
	})
	return ticket, nil
}

// headCandidate returns the first ticket of the room's ordered candidate
// set, or nil when nothing is callable.
func (s *SchedulerService) headCandidate(ctx context.Context, roomRef string, now time.Time) (*domain.QueueTicket, error) {
	waiting, err := s.ledger.ListWaiting(ctx, repository.WaitingFilter{RoomRef: &roomRef})
	if err != nil {
		return nil, err
	}

	var head *domain.QueueTicket
	for i := range waiting {
		candidate := &waiting[i]
		if !candidate.ExpiresAt.After(now) {
			continue
		}
		if head == nil || domain.CallsBefore(candidate, head) {
			head = candidate
		}
	}
	return head, nil
}

func (s *SchedulerService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
