package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/patient-queue-service/internal/api/dto"
	"github.com/spec-kit/patient-queue-service/internal/domain"
	"github.com/spec-kit/patient-queue-service/internal/service"
	apperrors "github.com/spec-kit/patient-queue-service/pkg/util"
)

// QueueHandler manages ticket intake, lookup, estimates, and token
// validation endpoints.
type QueueHandler struct {
	queue     *service.QueueService
	estimator *service.EstimatorService
}

// NewQueueHandler constructs handler.
func NewQueueHandler(queueService *service.QueueService, estimator *service.EstimatorService) *QueueHandler {
	return &QueueHandler{queue: queueService, estimator: estimator}
}

// CreateTicket POST /tickets.
func (h *QueueHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.EncounterRef) == "" {
		return apperrors.NewValidationError("encounter_ref required", nil)
	}

	input := service.TicketCreateInput{
		EncounterRef: req.EncounterRef,
		RoomRef:      req.RoomRef,
		Priority:     req.Priority,
	}
	if req.TTLMinutes != nil {
		ttl := time.Duration(*req.TTLMinutes) * time.Minute
		input.TTL = &ttl
	}

	ticket, err := h.queue.CreateTicket(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// GetTicket GET /tickets/:id.
func (h *QueueHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.queue.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// GetEstimate GET /tickets/:id/estimate.
func (h *QueueHandler) GetEstimate(c *fiber.Ctx) error {
	estimate, err := h.estimator.EstimateForTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.EstimateResponse{
		Position:             estimate.Position,
		EstimatedWaitMinutes: estimate.EstimatedWaitMinutes,
	}})
}

// PreviewEstimate GET /estimates/preview?room_ref=&priority=.
func (h *QueueHandler) PreviewEstimate(c *fiber.Ctx) error {
	priority := domain.TicketPriority(strings.ToUpper(strings.TrimSpace(c.Query("priority", string(domain.TicketPriorityNormal)))))
	if !priority.Valid() {
		return apperrors.NewInvalidPriority(string(priority))
	}
	var roomRef *string
	if room := strings.TrimSpace(c.Query("room_ref")); room != "" {
		roomRef = &room
	}

	estimate, err := h.estimator.EstimateForNewTicket(c.UserContext(), roomRef, priority)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.EstimateResponse{
		Position:             estimate.Position,
		EstimatedWaitMinutes: estimate.EstimatedWaitMinutes,
	}})
}

// ValidateToken GET /tokens/:token.
func (h *QueueHandler) ValidateToken(c *fiber.Ctx) error {
	ticket, err := h.queue.ValidateToken(c.UserContext(), c.Params("token"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}
