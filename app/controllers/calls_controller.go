package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/uproot-labs/uproot/app/repository"
	"github.com/uproot-labs/uproot/internal/pkg/calls"
	"github.com/uproot-labs/uproot/internal/pkg/recordings"
)

func callsService() *calls.Service {
	var archiver calls.RecordingArchiver
	if a, err := recordings.NewArchiverFromEnv(); err != nil {
		log.Warnf("[Calls] recording archiver unavailable: %v", err)
	} else if a != nil {
		archiver = a
	}
	return calls.NewService(calls.NewClientFromEnv(), repository.GetGlobalRepositories().Call, archiver)
}

type scheduleCallRequest struct {
	PhoneNumber   string `json:"phone_number" validate:"required,e164"`
	RecipientName string `json:"recipient_name" validate:"max=150"`
	ScheduledTime string `json:"scheduled_time" validate:"required"`
}

// HandleScheduleCall books an outbound coaching call at a future time.
func HandleScheduleCall(c *fiber.Ctx) error {
	userCtx, ok := requireUser(c)
	if !ok {
		return nil
	}

	var req scheduleCallRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": validationMessage(err)})
	}

	scheduledTime, err := time.Parse(time.RFC3339, req.ScheduledTime)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_scheduled_time"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	call, err := callsService().ScheduleCall(ctx, userCtx.UserID, req.PhoneNumber, strings.TrimSpace(req.RecipientName), scheduledTime)
	if err != nil {
		switch {
		case errors.Is(err, calls.ErrPastScheduledTime):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "scheduled_time_in_past"})
		case errors.Is(err, calls.ErrPhoneNumberNotFound):
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "outbound_number_not_configured"})
		default:
			log.Errorf("[Calls] scheduling failed for user %d: %v", userCtx.UserID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "call_scheduling_failed"})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"scheduled_call": call})
}

// HandleCallLogs lists call logs. Listing triggers reconciliation of due
// calls so statuses are current without a background scheduler.
func HandleCallLogs(c *fiber.Ctx) error {
	userCtx, ok := requireUser(c)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	logs, pending, err := callsService().Logs(ctx, userCtx.UserID)
	if err != nil {
		log.Errorf("[Calls] log listing failed for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "call_logs_failed"})
	}

	return c.JSON(fiber.Map{"call_logs": logs, "pending_calls": pending})
}

// HandleScheduledCalls lists the user's upcoming calls.
func HandleScheduledCalls(c *fiber.Ctx) error {
	userCtx, ok := requireUser(c)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	upcoming, err := callsService().Upcoming(ctx, userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "scheduled_calls_failed"})
	}

	return c.JSON(fiber.Map{"scheduled_calls": upcoming})
}
