package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/patient-queue-service/internal/config"
	"github.com/spec-kit/patient-queue-service/internal/events"
)

// NotificationService forwards queue events to the stream consumed by the
// external push collaborator (display boards, patient apps). Delivery past
// the stream is that collaborator's problem; this service only publishes.
type NotificationService struct {
	dispatcher events.Dispatcher
	redis      *redis.Client
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, redisClient *redis.Client, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		redis:      redisClient,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to queue events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.publishToStream)
	n.dispatcher.Subscribe(events.EventTicketCalled, n.publishToStream)
	n.dispatcher.Subscribe(events.EventTicketCompleted, n.publishToStream)
	n.dispatcher.Subscribe(events.EventTicketExpired, n.publishToStream)
}

func (n *NotificationService) publishToStream(ctx context.Context, event events.Event) error {
	n.logger.Info("queue event",
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_id", event.TicketID))

	if n.redis == nil {
		return nil
	}
	err := n.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: n.cfg.StreamKey,
		MaxLen: n.cfg.MaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"event_id":  event.ID,
			"type":      string(event.Type),
			"ticket_id": event.TicketID,
			"ts":        event.Timestamp.UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		// The stream is best-effort; queue state already changed and must
		// not be rolled back over a notification failure.
		n.logger.Warn("failed to publish queue event", zap.Error(err),
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID))
	}
	return nil
}
