// Package incidents implements the REST API handlers for the incident lifecycle.
package incidents

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/ortelius/storefront-guard/internal/incident"
	"github.com/ortelius/storefront-guard/internal/secerr"
	"github.com/ortelius/storefront-guard/model"
	"github.com/ortelius/storefront-guard/restapi/modules/common"
	"go.uber.org/zap"
)

// defaultListDays is the window listed when no range is given
const defaultListDays = 30

// StatusRequest is the body of a status update
type StatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

// PostIncident reports a new incident
func PostIncident(coord *incident.Coordinator, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req, err := incident.DecodeReport(c.Body())
		if err != nil {
			logger.Info("rejected incident report", zap.Error(err))
			return common.Error(c, err)
		}

		inc, err := coord.Report(c.UserContext(), req)
		if err != nil {
			logger.Error("failed to report incident", zap.Error(err))
			return common.Error(c, err)
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"success":  true,
			"message":  "Incident reported",
			"incident": inc,
		})
	}
}

// ListIncidents lists incidents reported between the from and to query
// parameters (RFC3339 or YYYY-MM-DD), defaulting to the last 30 days
func ListIncidents(coord *incident.Coordinator, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		to := time.Now().UTC()
		from := to.AddDate(0, 0, -defaultListDays)

		var err error
		if v := c.Query("from"); v != "" {
			if from, err = ParseTime(v); err != nil {
				return common.Error(c, err)
			}
		}
		if v := c.Query("to"); v != "" {
			if to, err = ParseTime(v); err != nil {
				return common.Error(c, err)
			}
		}

		list, err := coord.List(c.UserContext(), from, to)
		if err != nil {
			logger.Error("failed to list incidents", zap.Error(err))
			return common.Error(c, err)
		}
		if list == nil {
			list = []*model.SecurityIncident{}
		}

		return c.JSON(fiber.Map{
			"success":   true,
			"from":      from,
			"to":        to,
			"count":     len(list),
			"incidents": list,
		})
	}
}

// GetIncident returns one incident
func GetIncident(coord *incident.Coordinator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		inc, err := coord.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return common.Error(c, err)
		}
		return c.JSON(fiber.Map{"success": true, "incident": inc})
	}
}

// PutIncidentStatus advances an incident and appends notes
func PutIncidentStatus(coord *incident.Coordinator, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req StatusRequest
		if err := common.DecodeStrict(c.Body(), &req); err != nil {
			return common.Error(c, err)
		}

		status := model.IncidentStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
		inc, err := coord.UpdateStatus(c.UserContext(), c.Params("id"), status, req.Notes)
		if err != nil {
			if !errors.Is(err, secerr.ErrNotFound) && !errors.Is(err, secerr.ErrInvalidTransition) {
				logger.Error("failed to update incident status", zap.String("id", c.Params("id")), zap.Error(err))
			}
			return common.Error(c, err)
		}

		return c.JSON(fiber.Map{
			"success":  true,
			"message":  "Incident updated",
			"incident": inc,
		})
	}
}

// GetReport summarizes the incidents of a daily, weekly or monthly period
func GetReport(coord *incident.Coordinator, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		period, err := incident.ParsePeriod(c.Params("period"))
		if err != nil {
			return common.Error(c, err)
		}

		report, err := coord.GenerateReport(c.UserContext(), period)
		if err != nil {
			logger.Error("failed to generate security report", zap.String("period", string(period)), zap.Error(err))
			return common.Error(c, err)
		}
		return c.JSON(fiber.Map{"success": true, "report": report})
	}
}

// GetEscalation returns the escalation matrix
func GetEscalation(coord *incident.Coordinator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true, "escalation": coord.Escalation()})
	}
}

// GetPlaybook returns the response phases and the per-type containment checklists
func GetPlaybook(coord *incident.Coordinator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"success":     true,
			"phases":      coord.Playbook(),
			"containment": coord.Containment(),
		})
	}
}

// ParseTime accepts RFC3339 timestamps and plain dates
func ParseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	return time.Time{}, secerr.Validation("malformed time %q", v)
}
