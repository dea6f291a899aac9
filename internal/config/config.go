// Package config loads deployment settings from the environment and the
// security policy from a YAML file.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/ortelius/storefront-guard/database"
	"github.com/ortelius/storefront-guard/internal/classify"
	"github.com/ortelius/storefront-guard/internal/crypt"
	"github.com/ortelius/storefront-guard/internal/events"
	"github.com/ortelius/storefront-guard/internal/incident"
	"github.com/ortelius/storefront-guard/internal/kafka"
	"github.com/ortelius/storefront-guard/internal/notify"
	"github.com/ortelius/storefront-guard/internal/threat"
	"github.com/ortelius/storefront-guard/model"
	"gopkg.in/yaml.v2"
)

// Storage backends
const (
	StorageArango = "arango"
	StorageMemory = "memory"
)

// Settings are the per-deployment values taken from the environment
type Settings struct {
	Port         string
	Storage      string
	PolicyPath   string
	MasterSecret string
	AdminToken   string
	JWTSecret    string
	Instance     string
	AllowOrigins string
	// RetentionInterval schedules background retention sweeps; zero disables them
	RetentionInterval time.Duration
	Kafka             kafka.Config
	Email             notify.EmailConfig
}

// LoadSettings reads the environment
func LoadSettings() Settings {
	hostname, _ := os.Hostname()

	var brokers []string
	for _, b := range strings.Split(database.GetEnvDefault("KAFKA_BROKERS", ""), ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	interval, err := time.ParseDuration(database.GetEnvDefault("GUARD_RETENTION_INTERVAL", "24h"))
	if err != nil || interval < 0 {
		interval = -1
	}

	return Settings{
		Port:         database.GetEnvDefault("PORT", "3000"),
		Storage:      strings.ToLower(database.GetEnvDefault("GUARD_STORAGE", StorageArango)),
		PolicyPath:   database.GetEnvDefault("GUARD_POLICY_PATH", "/etc/storefront-guard/policy.yaml"),
		MasterSecret: os.Getenv("GUARD_MASTER_SECRET"),
		AdminToken:   os.Getenv("ADMIN_API_TOKEN"),
		JWTSecret:    os.Getenv("GUARD_JWT_SECRET"),
		Instance:     database.GetEnvDefault("GUARD_INSTANCE", hostname),
		AllowOrigins: os.Getenv("CORS_ALLOW_ORIGINS"),
		Kafka: kafka.Config{
			Brokers:   brokers,
			APIKey:    os.Getenv("KAFKA_API_KEY"),
			APISecret: os.Getenv("KAFKA_API_SECRET"),
			GroupID:   database.GetEnvDefault("KAFKA_GROUP_ID", kafka.DefaultGroupID),
		},
		Email: notify.EmailConfig{
			SMTPHost:     database.GetEnvDefault("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:     database.GetEnvDefault("SMTP_PORT", "587"),
			SMTPUsername: os.Getenv("SMTP_USERNAME"),
			SMTPPassword: os.Getenv("SMTP_PASSWORD"),
			FromEmail:    database.GetEnvDefault("SMTP_FROM_EMAIL", "security@storefront.local"),
			FromName:     database.GetEnvDefault("SMTP_FROM_NAME", "Storefront Guard"),
		},

		RetentionInterval: interval,
	}
}

// Validate checks the settings needed before anything is started
func (s Settings) Validate() error {
	if len(s.MasterSecret) < crypt.MinSecretLength {
		return fmt.Errorf("GUARD_MASTER_SECRET must be at least %d bytes", crypt.MinSecretLength)
	}
	if s.Storage != StorageArango && s.Storage != StorageMemory {
		return fmt.Errorf("invalid GUARD_STORAGE '%s'", s.Storage)
	}
	if s.AdminToken == "" && s.JWTSecret == "" {
		return fmt.Errorf("one of ADMIN_API_TOKEN or GUARD_JWT_SECRET must be set")
	}
	if s.RetentionInterval < 0 {
		return fmt.Errorf("invalid GUARD_RETENTION_INTERVAL")
	}
	return nil
}

// Notifications configures who receives incident mail
type Notifications struct {
	Recipients         map[string]string `yaml:"recipients"`
	ContainmentContact string            `yaml:"containment_contact"`
}

// Policy is the YAML security policy. Every section is optional; unset values
// keep the compiled-in defaults.
type Policy struct {
	Scanner        threat.Config           `yaml:"scanner"`
	Crypto         crypt.Config            `yaml:"crypto"`
	Classification classify.Config         `yaml:"classification"`
	Retention      []model.RetentionPolicy `yaml:"retention"`
	Incidents      incident.Config         `yaml:"incidents"`
	Events         events.Config           `yaml:"events"`
	Notifications  Notifications           `yaml:"notifications"`
}

// DefaultPolicy returns the compiled-in policy
func DefaultPolicy() *Policy {
	return &Policy{
		Scanner: threat.Config{
			MaxDepth:      threat.DefaultMaxDepth,
			AgentDenylist: append([]string(nil), threat.DefaultAgentDenylist...),
		},
		Crypto: crypt.Config{
			KeyContext:     crypt.DefaultKeyContext,
			HashIterations: crypt.MinHashIterations,
		},
		Classification: classify.Config{
			SensitiveFields: append([]string(nil), classify.DefaultSensitiveFields...),
			Gazetteer:       append([]classify.RegionRule(nil), classify.DefaultGazetteer...),
		},
		Retention: append([]model.RetentionPolicy(nil), classify.DefaultRetentionPolicies...),
		Incidents: incident.Config{
			AffectedSystemsThreshold: incident.DefaultAffectedSystemsThreshold,
			ReportTimeout:            incident.DefaultReportTimeout,
			NotifyTimeout:            incident.DefaultNotifyTimeout,
			Escalation:               incident.DefaultEscalation(),
			Playbook:                 incident.DefaultPlaybook(),
			Containment:              incident.DefaultContainment(),
		},
		Events: events.Config{
			EscalationThreshold: events.DefaultEscalationThreshold,
			EscalationWindow:    events.DefaultEscalationWindow,
			MaxTrackedSources:   events.DefaultMaxTrackedSources,
		},
		Notifications: Notifications{
			Recipients:         map[string]string{},
			ContainmentContact: "security-team",
		},
	}
}

// LoadPolicy reads the policy file over the defaults. A missing file yields the defaults.
func LoadPolicy(path string) (*Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return policy, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	return ParsePolicy(data)
}

// ParsePolicy parses YAML over the defaults and validates the result.
// Maps merge per key; lists replace the default list.
func ParsePolicy(data []byte) (*Policy, error) {
	policy := DefaultPolicy()
	if err := yaml.UnmarshalStrict(data, policy); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validatePolicy(policy); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	return policy, nil
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_\-]*$`)

// validatePolicy ensures the policy is usable
func validatePolicy(p *Policy) error {
	if p.Scanner.MaxDepth < 0 {
		return fmt.Errorf("scanner.max_depth must not be negative")
	}
	if p.Crypto.HashIterations < 0 {
		return fmt.Errorf("crypto.hash_iterations must not be negative")
	}

	for _, rule := range p.Classification.Gazetteer {
		if strings.TrimSpace(rule.Match) == "" || strings.TrimSpace(rule.Region) == "" {
			return fmt.Errorf("gazetteer entries need both match and region")
		}
	}

	seenCategories := make(map[string]bool)
	for _, r := range p.Retention {
		if r.Category == "" {
			return fmt.Errorf("retention category is required")
		}
		if seenCategories[r.Category] {
			return fmt.Errorf("duplicate retention category: %s", r.Category)
		}
		seenCategories[r.Category] = true

		if !identifier.MatchString(r.Collection) {
			return fmt.Errorf("invalid collection '%s' for retention category %s", r.Collection, r.Category)
		}
		if !identifier.MatchString(r.TimestampField) {
			return fmt.Errorf("invalid timestamp_field '%s' for retention category %s", r.TimestampField, r.Category)
		}
		if r.MaxAgeDays <= 0 {
			return fmt.Errorf("max_age_days must be positive for retention category %s", r.Category)
		}
	}

	if p.Incidents.AffectedSystemsThreshold < 0 {
		return fmt.Errorf("incidents.affected_systems_threshold must not be negative")
	}
	for sev, tier := range p.Incidents.Escalation {
		if !sev.Valid() {
			return fmt.Errorf("invalid escalation severity '%s'", sev)
		}
		if tier.ResponseMinutes <= 0 {
			return fmt.Errorf("response_minutes must be positive for severity %s", sev)
		}
	}
	if len(p.Incidents.Playbook) == 0 {
		return fmt.Errorf("incidents.playbook needs at least one phase")
	}
	seenPhases := make(map[string]bool)
	for _, phase := range p.Incidents.Playbook {
		if strings.TrimSpace(phase.Name) == "" {
			return fmt.Errorf("playbook phase name is required")
		}
		if seenPhases[phase.Name] {
			return fmt.Errorf("duplicate playbook phase: %s", phase.Name)
		}
		seenPhases[phase.Name] = true
		if phase.TargetMinutes <= 0 {
			return fmt.Errorf("target_minutes must be positive for playbook phase %s", phase.Name)
		}
		if len(phase.Actions) == 0 {
			return fmt.Errorf("playbook phase %s needs at least one action", phase.Name)
		}
	}
	for t := range p.Incidents.Containment {
		if !t.Valid() {
			return fmt.Errorf("invalid containment incident type '%s'", t)
		}
	}

	if p.Events.EscalationThreshold < 0 {
		return fmt.Errorf("events.escalation_threshold must not be negative")
	}

	for contact, addr := range p.Notifications.Recipients {
		if err := threat.ValidateEmail(addr); err != nil {
			return fmt.Errorf("invalid email for contact %s", contact)
		}
	}
	return nil
}
