package classify

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ortelius/storefront-guard/internal/secerr"
	"github.com/ortelius/storefront-guard/model"
	"go.uber.org/zap"
)

// RecordRef identifies a stored record
type RecordRef struct {
	Collection string `json:"collection"`
	Key        string `json:"key"`
}

func (r RecordRef) String() string {
	return r.Collection + "/" + r.Key
}

// RecordStore is the storage the engine sweeps and deletes from
type RecordStore interface {
	// DeleteOlderThan removes records of the policy's collection whose timestamp is before cutoff
	DeleteOlderThan(ctx context.Context, policy model.RetentionPolicy, cutoff time.Time) (int, error)
	// Dependents counts records that hold a hard reference to ref
	Dependents(ctx context.Context, ref RecordRef) (int, error)
	Overwrite(ctx context.Context, ref RecordRef, fields map[string]string) error
	Delete(ctx context.Context, ref RecordRef) error
}

// DefaultRetentionPolicies is the compiled-in retention table
var DefaultRetentionPolicies = []model.RetentionPolicy{
	{Category: "sessions", Collection: "sessions", TimestampField: "created_at", MaxAgeDays: 30},
	{Category: "password_resets", Collection: "password_resets", TimestampField: "created_at", MaxAgeDays: 1},
	{Category: "abandoned_carts", Collection: "carts", TimestampField: "updated_at", MaxAgeDays: 90},
	{Category: "security_events", Collection: "security_events", TimestampField: "timestamp", MaxAgeDays: 365},
	{Category: "audit_logs", Collection: "audit_logs", TimestampField: "timestamp", MaxAgeDays: 2555},
	{Category: "incidents", Collection: "incidents", TimestampField: "reported_at", MaxAgeDays: 2555},
}

// EnforceRetention sweeps each policy independently. A failing or invalid
// policy is reported in its own result and does not stop the others. Once ctx
// is done the remaining policies are marked skipped. Re-running is safe.
func (e *Engine) EnforceRetention(ctx context.Context, policies []model.RetentionPolicy) model.SweepReport {
	report := model.SweepReport{
		StartedAt: e.now().UTC(),
		Results:   make([]model.PolicyResult, 0, len(policies)),
	}

	for _, p := range policies {
		now := e.now().UTC()
		res := model.PolicyResult{Category: p.Category}

		switch {
		case ctx.Err() != nil:
			res.Skipped = true
		case p.MaxAgeDays <= 0 || p.Collection == "":
			res.Error = fmt.Sprintf("invalid retention policy: max_age_days=%d collection=%q", p.MaxAgeDays, p.Collection)
		case e.store == nil:
			res.Error = "no record store configured"
		default:
			res.Cutoff = p.Cutoff(now)
			n, err := e.store.DeleteOlderThan(ctx, p, res.Cutoff)
			res.Deleted = n
			if err != nil {
				res.Error = err.Error()
			}
		}

		if res.Error != "" {
			e.logger.Error("retention sweep failed", zap.String("category", p.Category), zap.String("error", res.Error))
		} else if !res.Skipped {
			e.logger.Info("retention sweep", zap.String("category", p.Category), zap.Int("deleted", res.Deleted))
		}
		e.metrics.RetentionSwept(p.Category, res.Deleted, res.Error != "")
		report.Results = append(report.Results, res)
	}

	report.FinishedAt = e.now().UTC()
	return report
}

// SecureDelete overwrites the identifying fields of ref with random tombstones
// and then deletes it. Records that still have hard dependents are refused.
func (e *Engine) SecureDelete(ctx context.Context, ref RecordRef, fields []string) error {
	if ref.Collection == "" || ref.Key == "" {
		return secerr.Validation("record reference is incomplete")
	}
	if e.store == nil {
		return fmt.Errorf("secure delete %s: no record store configured", ref)
	}

	deps, err := e.store.Dependents(ctx, ref)
	if err != nil {
		return fmt.Errorf("secure delete %s: %w", ref, err)
	}
	if deps > 0 {
		return secerr.Policy("%s has %d dependent records", ref, deps)
	}

	if len(fields) > 0 {
		tombstones := make(map[string]string, len(fields))
		for _, f := range fields {
			t, err := tombstone()
			if err != nil {
				return fmt.Errorf("secure delete %s: %w", ref, err)
			}
			tombstones[f] = t
		}
		if err := e.store.Overwrite(ctx, ref, tombstones); err != nil {
			return fmt.Errorf("secure delete %s: overwrite: %w", ref, err)
		}
	}

	if err := e.store.Delete(ctx, ref); err != nil {
		return fmt.Errorf("secure delete %s: %w", ref, err)
	}

	e.logger.Info("record securely deleted", zap.String("collection", ref.Collection), zap.Int("fields", len(fields)))
	return nil
}

func tombstone() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", &secerr.CryptoError{Op: "tombstone"}
	}
	return "deleted-" + hex.EncodeToString(b), nil
}
