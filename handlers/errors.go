package handlers

import (
	"errors"
	"log"

	"github.com/FFXIVVenues/kino-ki/deathroll"
	"github.com/FFXIVVenues/kino-ki/services"

	"github.com/gofiber/fiber/v2"
)

// respondError maps domain errors onto HTTP statuses.
func respondError(c *fiber.Ctx, err error) error {
	status, msg := fiber.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, deathroll.ErrOrderingViolation):
		status, msg = fiber.StatusForbidden, "not your turn"
	case errors.Is(err, deathroll.ErrDuplicateMatch):
		status, msg = fiber.StatusConflict, "finish the existing match first"
	case errors.Is(err, deathroll.ErrMatchNotFound):
		status, msg = fiber.StatusNotFound, "deathroll not found"
	case errors.Is(err, deathroll.ErrMatchOver), errors.Is(err, deathroll.ErrNoPendingOffer):
		status, msg = fiber.StatusConflict, "deathroll is not accepting that action"
	case errors.Is(err, deathroll.ErrSelfChallenge), errors.Is(err, deathroll.ErrInvalidCeiling),
		errors.Is(err, services.ErrInvalidTag):
		status, msg = fiber.StatusBadRequest, "invalid request"
	case errors.Is(err, services.ErrChannelAlreadyExists):
		status, msg = fiber.StatusConflict, "channel already configured"
	case errors.Is(err, services.ErrChannelNotFound):
		status, msg = fiber.StatusNotFound, "channel not configured"
	case errors.Is(err, services.ErrTagMappingNotFound):
		status, msg = fiber.StatusNotFound, "tag mapping not found"
	default:
		log.Printf("❌ %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{
		"error":   msg,
		"details": err.Error(),
	})
}

func badRequest(c *fiber.Ctx, msg string, err error) error {
	body := fiber.Map{"error": msg}
	if err != nil {
		body["details"] = err.Error()
	}
	return c.Status(fiber.StatusBadRequest).JSON(body)
}
