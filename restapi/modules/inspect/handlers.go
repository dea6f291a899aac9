// Package inspect implements the REST API handlers that let internal services
// scan and validate input, and lets operators browse recorded security events.
package inspect

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/ortelius/storefront-guard/internal/secerr"
	"github.com/ortelius/storefront-guard/internal/threat"
	"github.com/ortelius/storefront-guard/model"
	"github.com/ortelius/storefront-guard/restapi/modules/common"
	"go.uber.org/zap"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
	defaultEventDays  = 7
)

// EventLister reads back recorded security events
type EventLister interface {
	ListEvents(ctx context.Context, from, to time.Time, limit int) ([]model.SecurityEvent, error)
}

// ScanRequest is the body of POST /scan
type ScanRequest struct {
	Source string      `json:"source"`
	Input  interface{} `json:"input"`
}

// ValidateRequest is the body of POST /validate
type ValidateRequest struct {
	Kind        string `json:"kind"`
	Value       string `json:"value,omitempty"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// PostScan runs the threat scanner over arbitrary JSON on behalf of another
// service. Detections are recorded against the given source.
func PostScan(scanner *threat.Scanner) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req ScanRequest
		if err := common.DecodeStrict(c.Body(), &req); err != nil {
			return common.Error(c, err)
		}
		source := strings.TrimSpace(req.Source)
		if source == "" {
			source = c.IP()
		}

		verdict := scanner.Scan(c.UserContext(), source, "input", req.Input)
		resp := fiber.Map{"success": true, "verdict": verdict}
		if s, ok := req.Input.(string); ok && !verdict.Threat {
			resp["sanitized"] = threat.Sanitize(s)
		}
		return c.JSON(resp)
	}
}

// PostValidate checks a single value with one of the input validators
func PostValidate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req ValidateRequest
		if err := common.DecodeStrict(c.Body(), &req); err != nil {
			return common.Error(c, err)
		}

		var err error
		switch strings.ToLower(req.Kind) {
		case "email":
			err = threat.ValidateEmail(req.Value)
		case "phone":
			err = threat.ValidatePhone(req.Value)
		case "password":
			err = threat.ValidatePasswordStrength(req.Value)
		case "upload":
			err = threat.ValidateUploadType(req.Filename, req.ContentType)
		default:
			return common.Error(c, secerr.Validation("unknown validator %q", req.Kind))
		}

		if err != nil {
			if !errors.Is(err, secerr.ErrValidation) {
				return common.Error(c, err)
			}
			return c.JSON(fiber.Map{"success": true, "valid": false, "reason": err.Error()})
		}
		return c.JSON(fiber.Map{"success": true, "valid": true})
	}
}

// GetEvents lists recorded security events, newest first. from and to default
// to the last 7 days; limit defaults to 100 and is capped at 1000.
func GetEvents(lister EventLister, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		to := time.Now().UTC()
		from := to.AddDate(0, 0, -defaultEventDays)

		var err error
		if v := c.Query("from"); v != "" {
			if from, err = time.Parse(time.RFC3339, v); err != nil {
				return common.Error(c, secerr.Validation("malformed from"))
			}
		}
		if v := c.Query("to"); v != "" {
			if to, err = time.Parse(time.RFC3339, v); err != nil {
				return common.Error(c, secerr.Validation("malformed to"))
			}
		}
		if to.Before(from) {
			return common.Error(c, secerr.Validation("range end before start"))
		}

		limit := c.QueryInt("limit", defaultEventLimit)
		if limit <= 0 || limit > maxEventLimit {
			return common.Error(c, secerr.Validation("limit must be between 1 and %d", maxEventLimit))
		}

		list, err := lister.ListEvents(c.UserContext(), from.UTC(), to.UTC(), limit)
		if err != nil {
			logger.Error("failed to list security events", zap.Error(err))
			return common.Error(c, err)
		}
		if list == nil {
			list = []model.SecurityEvent{}
		}

		return c.JSON(fiber.Map{
			"success": true,
			"count":   len(list),
			"events":  list,
		})
	}
}
