// Package common holds response helpers shared by the REST modules.
package common

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/ortelius/storefront-guard/internal/secerr"
)

// Error maps err to a status code and a generic message. Causes stay in the logs.
func Error(c *fiber.Ctx, err error) error {
	status, message := Classify(err)
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}

// Classify returns the status code and client message for err
func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, secerr.ErrValidation), errors.Is(err, secerr.ErrCrypto):
		return fiber.StatusBadRequest, "Invalid request"
	case errors.Is(err, secerr.ErrNotFound):
		return fiber.StatusNotFound, "Not found"
	case errors.Is(err, secerr.ErrInvalidTransition):
		return fiber.StatusConflict, "Invalid state transition"
	case errors.Is(err, secerr.ErrPolicy):
		return fiber.StatusConflict, "Request violates data policy"
	case errors.Is(err, secerr.ErrConflict):
		return fiber.StatusConflict, "Concurrent modification, retry the request"
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, "Request timed out"
	default:
		return fiber.StatusInternalServerError, "Internal server error"
	}
}

// BadRequest writes a generic 400
func BadRequest(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"message": "Invalid request",
	})
}

// DecodeStrict decodes a JSON body rejecting unknown fields and trailing data
func DecodeStrict(data []byte, out interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return secerr.Validation("malformed request body: %v", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return secerr.Validation("unexpected data after request body")
	}
	return nil
}
