package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/patient-queue-service/internal/config"
	"github.com/spec-kit/patient-queue-service/internal/domain"
	"github.com/spec-kit/patient-queue-service/internal/events"
	"github.com/spec-kit/patient-queue-service/internal/repository"
	"github.com/spec-kit/patient-queue-service/internal/token"
	"github.com/spec-kit/patient-queue-service/pkg/util"
)

// QueueService owns ticket intake and token resolution.
type QueueService struct {
	ledger     repository.Ledger
	encounters EncounterResolver
	tokens     *token.Generator
	dispatcher events.Dispatcher
	cfg        config.QueueConfig
	now        func() time.Time
}

// QueueDependencies bundles collaborators for the queue service.
type QueueDependencies struct {
	Ledger     repository.Ledger
	Encounters EncounterResolver
	Tokens     *token.Generator
	Dispatcher events.Dispatcher
}

// TicketCreateInput describes ticket creation payload. TTL overrides the
// configured default when set.
type TicketCreateInput struct {
	EncounterRef string
	RoomRef      *string
	Priority     domain.TicketPriority
	TTL          *time.Duration
}

// NewQueueService constructs the service.
func NewQueueService(cfg config.QueueConfig, deps QueueDependencies) *QueueService {
	return &QueueService{
		ledger:     deps.Ledger,
		encounters: deps.Encounters,
		tokens:     deps.Tokens,
		dispatcher: deps.Dispatcher,
		cfg:        cfg,
		now:        time.Now,
	}
}

// WithClock overrides the service clock.
func (s *QueueService) WithClock(now func() time.Time) *QueueService {
	s.now = now
	return s
}

// CreateTicket registers a new WAITING ticket for an encounter, assigning
// the next queue number of the day and a fresh validation token.
func (s *QueueService) CreateTicket(ctx context.Context, input TicketCreateInput) (*domain.QueueTicket, error) {
	if !input.Priority.Valid() {
		return nil, util.NewInvalidPriority(string(input.Priority))
	}
	if err := s.encounters.Resolve(ctx, input.EncounterRef); err != nil {
		return nil, err
	}

	ttl := s.cfg.DefaultTicketTTL()
	if input.TTL != nil {
		ttl = *input.TTL
	}

	validationToken, err := s.tokens.Generate()
	if err != nil {
		return nil, util.NewInternalError(err)
	}

	now := s.now()
	ticket := &domain.QueueTicket{
		EncounterRef:    strings.TrimSpace(input.EncounterRef),
		RoomRef:         input.RoomRef,
		Priority:        input.Priority,
		Status:          domain.TicketStatusWaiting,
		ValidationToken: validationToken,
		CreatedAt:       now,
		ExpiresAt:       now.Add(ttl),
	}
	if err := s.ledger.Create(ctx, ticket); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Payload: events.TicketCreatedPayload{
			EncounterRef: ticket.EncounterRef,
			RoomRef:      ticket.RoomRef,
			Priority:     ticket.Priority,
			QueueNumber:  ticket.QueueNumber,
			ExpiresAt:    ticket.ExpiresAt,
		},
	})
	return ticket, nil
}

// GetTicket fetches a ticket by id.
func (s *QueueService) GetTicket(ctx context.Context, id string) (*domain.QueueTicket, error) {
	return s.ledger.GetByID(ctx, id)
}

// ValidateToken resolves a printed validation token to its ticket. The
// ticket is returned whatever its status; a token stays valid for the
// ticket's entire existence and the caller decides how to present an
// expired or completed result.
func (s *QueueService) ValidateToken(ctx context.Context, tok string) (*domain.QueueTicket, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" || !s.tokens.Verify(tok) {
		return nil, util.NewInvalidToken()
	}
	return s.ledger.GetByToken(ctx, tok)
}

func (s *QueueService) publishEvent(ctx context.Context, event events.Event) {
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
