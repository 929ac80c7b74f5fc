package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/patient-queue-service/internal/api/dto"
	"github.com/spec-kit/patient-queue-service/internal/auth"
	"github.com/spec-kit/patient-queue-service/internal/service"
	"github.com/spec-kit/patient-queue-service/internal/worker"
	apperrors "github.com/spec-kit/patient-queue-service/pkg/util"
)

// SchedulerHandler manages queue advancement endpoints for room staff.
type SchedulerHandler struct {
	scheduler *service.SchedulerService
	sweeper   *worker.ExpirySweeper
}

// NewSchedulerHandler constructs handler.
func NewSchedulerHandler(scheduler *service.SchedulerService, sweeper *worker.ExpirySweeper) *SchedulerHandler {
	return &SchedulerHandler{scheduler: scheduler, sweeper: sweeper}
}

// CallNext POST /queue/call-next.
func (h *SchedulerHandler) CallNext(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("staff required")
	}
	var req dto.CallNextRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.RoomRef) == "" {
		return apperrors.NewValidationError("room_ref required", nil)
	}

	ticket, err := h.scheduler.CallNext(c.UserContext(), req.RoomRef, principal.StaffID)
	if errors.Is(err, service.ErrNoCandidate) {
		return c.JSON(fiber.Map{"data": dto.CallNextResponse{NoCandidate: true}})
	}
	if err != nil {
		return err
	}
	view := dto.FromTicket(ticket)
	return c.JSON(fiber.Map{"data": dto.CallNextResponse{Ticket: &view}})
}

// CompleteTicket POST /tickets/:id/complete.
func (h *SchedulerHandler) CompleteTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("staff required")
	}
	ticket, err := h.scheduler.Complete(c.UserContext(), c.Params("id"), principal.StaffID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// ExpireTicket POST /tickets/:id/expire.
func (h *SchedulerHandler) ExpireTicket(c *fiber.Ctx) error {
	ticket, err := h.scheduler.Expire(c.UserContext(), c.Params("id"), "manual")
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// RunSweep POST /queue/sweep.
func (h *SchedulerHandler) RunSweep(c *fiber.Ctx) error {
	expired, err := h.sweeper.Sweep(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SweepResponse{ExpiredCount: expired}})
}
