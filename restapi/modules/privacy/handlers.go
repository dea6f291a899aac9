// Package privacy implements the REST API handlers for data classification,
// retention sweeps and secure deletion.
package privacy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/ortelius/storefront-guard/database"
	"github.com/ortelius/storefront-guard/internal/classify"
	"github.com/ortelius/storefront-guard/internal/secerr"
	"github.com/ortelius/storefront-guard/model"
	"github.com/ortelius/storefront-guard/restapi/modules/common"
	"go.uber.org/zap"
)

// sweepTimeout bounds a background retention sweep
const sweepTimeout = 30 * time.Minute

// ProtectedCollections can never be targeted by secure deletion
var ProtectedCollections = map[string]bool{
	database.SecurityEventsCollection: true,
	database.IncidentsCollection:      true,
	"audit_logs":                      true,
}

// ProtectRequest is the body of POST /protect
type ProtectRequest struct {
	Classification string                 `json:"classification"`
	Record         map[string]interface{} `json:"record"`
}

// MaskRequest is the body of POST /mask
type MaskRequest struct {
	Record map[string]interface{} `json:"record"`
	Fields []string               `json:"fields"`
}

// DeleteRequest is the optional body of DELETE /records/:collection/:key
type DeleteRequest struct {
	Fields []string `json:"fields"`
}

// Sweeper runs retention sweeps one at a time in the background
type Sweeper struct {
	engine   *classify.Engine
	policies []model.RetentionPolicy
	logger   *zap.Logger

	running atomic.Bool
	mu      sync.Mutex
	last    *model.SweepReport
}

// NewSweeper binds the engine to the configured retention policies
func NewSweeper(engine *classify.Engine, policies []model.RetentionPolicy, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{engine: engine, policies: policies, logger: logger}
}

// Start launches a sweep unless one is already running
func (s *Sweeper) Start() bool {
	if !s.running.CompareAndSwap(false, true) {
		return false
	}
	go s.run()
	return true
}

// Running reports whether a sweep is in progress
func (s *Sweeper) Running() bool {
	return s.running.Load()
}

// Last returns the report of the most recent finished sweep, nil before the first one
func (s *Sweeper) Last() *model.SweepReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Sweeper) run() {
	defer s.running.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	s.logger.Info("retention sweep started", zap.Int("policies", len(s.policies)))
	report := s.engine.EnforceRetention(ctx, s.policies)

	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()

	s.logger.Info("retention sweep finished",
		zap.Int("deleted", report.TotalDeleted()),
		zap.Int("failed", len(report.Failed())),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)))
}

// PostRetentionSweep triggers a retention sweep
func PostRetentionSweep(s *Sweeper) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !s.Start() {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"message": "Retention sweep already in progress",
			})
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"success": true,
			"message": fmt.Sprintf("Retention sweep started for %d policies", len(s.policies)),
			"status":  "processing",
		})
	}
}

// GetRetentionStatus reports whether a sweep is running and the last result
func GetRetentionStatus(s *Sweeper) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"success":     true,
			"running":     s.Running(),
			"last_report": s.Last(),
		})
	}
}

// GetRetentionPolicies lists the configured retention policies
func GetRetentionPolicies(s *Sweeper) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true, "policies": s.policies})
	}
}

// DeleteRecord securely deletes one record, overwriting the listed fields first
func DeleteRecord(engine *classify.Engine, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ref := classify.RecordRef{Collection: c.Params("collection"), Key: c.Params("key")}
		if ProtectedCollections[ref.Collection] {
			logger.Warn("refused secure delete of protected record", zap.String("collection", ref.Collection))
			return common.Error(c, secerr.Policy("collection %s is protected", ref.Collection))
		}

		var req DeleteRequest
		if len(bytes.TrimSpace(c.Body())) > 0 {
			if err := common.DecodeStrict(c.Body(), &req); err != nil {
				return common.Error(c, err)
			}
		}

		if err := engine.SecureDelete(c.UserContext(), ref, req.Fields); err != nil {
			if !errors.Is(err, secerr.ErrPolicy) && !errors.Is(err, secerr.ErrNotFound) && !errors.Is(err, secerr.ErrValidation) {
				logger.Error("secure delete failed", zap.String("collection", ref.Collection), zap.Error(err))
			}
			return common.Error(c, err)
		}

		return c.JSON(fiber.Map{
			"success": true,
			"message": "Record deleted",
		})
	}
}

// PostProtect applies the protection transform for a classification tier
func PostProtect(engine *classify.Engine, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req ProtectRequest
		if err := common.DecodeStrict(c.Body(), &req); err != nil {
			return common.Error(c, err)
		}
		class, ok := model.ParseClassification(req.Classification)
		if !ok {
			return common.Error(c, secerr.Validation("unknown classification %q", req.Classification))
		}

		out, err := engine.Protect(req.Record, class)
		if err != nil {
			logger.Error("failed to protect record", zap.String("classification", string(class)), zap.Error(err))
			return common.Error(c, err)
		}
		return c.JSON(fiber.Map{
			"success":        true,
			"classification": class,
			"record":         out,
		})
	}
}

// PostMask redacts the listed fields for display
func PostMask() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req MaskRequest
		if err := common.DecodeStrict(c.Body(), &req); err != nil {
			return common.Error(c, err)
		}
		return c.JSON(fiber.Map{
			"success": true,
			"record":  classify.Mask(req.Record, req.Fields),
		})
	}
}

// PostAnonymize reduces a user aggregate to an analytics profile
func PostAnonymize(engine *classify.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req classify.UserAggregate
		if err := common.DecodeStrict(c.Body(), &req); err != nil {
			return common.Error(c, err)
		}
		return c.JSON(fiber.Map{
			"success": true,
			"profile": engine.Anonymize(req),
		})
	}
}
