// Package classify applies data classification tiers to records: field
// protection, display masking, analytics anonymization and retention.
package classify

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ortelius/storefront-guard/internal/metrics"
	"github.com/ortelius/storefront-guard/internal/secerr"
	"github.com/ortelius/storefront-guard/model"
	"go.uber.org/zap"
)

// Encryptor is the part of the crypto service the engine needs
type Encryptor interface {
	EncryptString(plaintext string) (string, error)
	Fingerprint(value string) string
}

// DefaultSensitiveFields is the allow-list shared by the CONFIDENTIAL and INTERNAL tiers
var DefaultSensitiveFields = []string{
	"email",
	"phone",
	"address",
	"paymentInfo",
	"personalId",
	"cardNumber",
	"dateOfBirth",
	"fullName",
	"ipAddress",
	"taxId",
}

// Config holds the classification policy
type Config struct {
	SensitiveFields []string     `yaml:"sensitive_fields"`
	Gazetteer       []RegionRule `yaml:"gazetteer"`
}

// Engine maps classification tiers to protection transforms. It only touches
// the records passed in and keeps no shared mutable state.
type Engine struct {
	enc       Encryptor
	store     RecordStore
	sensitive map[string]struct{}
	gazetteer []RegionRule
	now       func() time.Time
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewEngine creates an engine. store may be nil when retention and secure delete are unused.
func NewEngine(cfg Config, enc Encryptor, store RecordStore, logger *zap.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	fields := cfg.SensitiveFields
	if len(fields) == 0 {
		fields = DefaultSensitiveFields
	}
	sensitive := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		sensitive[normalizeField(f)] = struct{}{}
	}

	gazetteer := cfg.Gazetteer
	if len(gazetteer) == 0 {
		gazetteer = DefaultGazetteer
	}

	return &Engine{
		enc:       enc,
		store:     store,
		sensitive: sensitive,
		gazetteer: normalizeGazetteer(gazetteer),
		now:       time.Now,
		logger:    logger,
		metrics:   m,
	}
}

// WithClock replaces the time source, for tests
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// IsSensitive reports whether field is on the allow-list. Matching ignores
// case, underscores and dashes so payment_info and paymentInfo are the same field.
func (e *Engine) IsSensitive(field string) bool {
	_, ok := e.sensitive[normalizeField(field)]
	return ok
}

// Protect returns a new record transformed for classification c. The input is
// never modified. Any encryption failure fails the whole call.
func (e *Engine) Protect(record map[string]interface{}, c model.DataClassification) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(record))

	switch c {
	case model.ClassPublic:
		for k, v := range record {
			out[k] = v
		}

	case model.ClassInternal:
		for k, v := range record {
			if v != nil && e.IsSensitive(k) {
				out[k] = e.enc.Fingerprint(stringify(v))
				continue
			}
			out[k] = v
		}

	case model.ClassConfidential:
		for k, v := range record {
			if v == nil || !e.IsSensitive(k) {
				out[k] = v
				continue
			}
			sealed, err := e.seal(k, v)
			if err != nil {
				return nil, err
			}
			out[k] = sealed
		}

	case model.ClassRestricted:
		// every string field; numbers, booleans and nested values pass through
		for k, v := range record {
			str, ok := v.(string)
			if !ok {
				out[k] = v
				continue
			}
			sealed, err := e.seal(k, str)
			if err != nil {
				return nil, err
			}
			out[k] = sealed
		}

	default:
		return nil, secerr.Validation("unknown data classification %q", c)
	}

	return out, nil
}

func (e *Engine) seal(field string, v interface{}) (string, error) {
	sealed, err := e.enc.EncryptString(stringify(v))
	if err != nil {
		e.logger.Error("field encryption failed", zap.String("field", field))
		return "", fmt.Errorf("protect field %s: %w", field, err)
	}
	return sealed, nil
}

// stringify renders non-string values as JSON so numbers, lists and nested
// objects are protected as well
func stringify(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func normalizeField(name string) string {
	return strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(strings.TrimSpace(name)))
}
