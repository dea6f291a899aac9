package incident

import (
	"time"

	"github.com/ortelius/storefront-guard/model"
)

// Defaults for Config
const (
	DefaultAffectedSystemsThreshold = 3
	DefaultReportTimeout            = 30 * time.Second
	DefaultNotifyTimeout            = 10 * time.Second
)

// EscalationTier lists who is contacted for a severity and how fast they must respond
type EscalationTier struct {
	Contacts        []string `json:"contacts" yaml:"contacts"`
	ResponseMinutes int      `json:"response_minutes" yaml:"response_minutes"`
}

// Response phase names, in playbook order
const (
	PhaseDetection      = "DETECTION"
	PhaseContainment    = "CONTAINMENT"
	PhaseInvestigation  = "INVESTIGATION"
	PhaseRecovery       = "RECOVERY"
	PhaseLessonsLearned = "LESSONS_LEARNED"
)

// ResponsePhase is one step of the response playbook with its action checklist.
// TargetMinutes is counted from detection.
type ResponsePhase struct {
	Name          string   `json:"name" yaml:"name"`
	TargetMinutes int      `json:"target_minutes" yaml:"target_minutes"`
	Actions       []string `json:"actions" yaml:"actions"`
}

// Config holds the incident response policy
type Config struct {
	AffectedSystemsThreshold int                               `yaml:"affected_systems_threshold"`
	ReportTimeout            time.Duration                     `yaml:"report_timeout"`
	NotifyTimeout            time.Duration                     `yaml:"notify_timeout"`
	Escalation               map[model.Severity]EscalationTier `yaml:"escalation"`
	Playbook                 []ResponsePhase                   `yaml:"playbook"`
	Containment              map[model.IncidentType][]string   `yaml:"containment"`
}

// DefaultEscalation is the compiled-in escalation matrix
func DefaultEscalation() map[model.Severity]EscalationTier {
	return map[model.Severity]EscalationTier{
		model.SeverityCritical: {Contacts: []string{"ciso", "cto", "security-team", "legal"}, ResponseMinutes: 15},
		model.SeverityHigh:     {Contacts: []string{"security-team", "engineering-lead"}, ResponseMinutes: 60},
		model.SeverityMedium:   {Contacts: []string{"security-team"}, ResponseMinutes: 240},
		model.SeverityLow:      {Contacts: []string{"security-team"}, ResponseMinutes: 1440},
	}
}

// DefaultPlaybook is the compiled-in five-phase response playbook
func DefaultPlaybook() []ResponsePhase {
	return []ResponsePhase{
		{
			Name:          PhaseDetection,
			TargetMinutes: 60,
			Actions: []string{
				"confirm the alert against the security event log",
				"classify incident type and severity",
				"open an incident record",
				"page the on-call security responder",
			},
		},
		{
			Name:          PhaseContainment,
			TargetMinutes: 4 * 60,
			Actions: []string{
				"isolate affected systems",
				"revoke exposed credentials and sessions",
				"block offending sources",
				"preserve logs and forensic evidence",
			},
		},
		{
			Name:          PhaseInvestigation,
			TargetMinutes: 24 * 60,
			Actions: []string{
				"build a timeline from security events",
				"identify root cause and attack vector",
				"determine the scope of affected records",
				"assess notification obligations with legal",
			},
		},
		{
			Name:          PhaseRecovery,
			TargetMinutes: 72 * 60,
			Actions: []string{
				"remediate the root cause",
				"restore systems from a known-good state",
				"rotate remaining credentials",
				"monitor for recurrence",
			},
		},
		{
			Name:          PhaseLessonsLearned,
			TargetMinutes: 7 * 24 * 60,
			Actions: []string{
				"hold a post-incident review",
				"document the timeline and decisions",
				"update detection rules and this playbook",
				"track remediation follow-ups to closure",
			},
		},
	}
}

// DefaultContainment is the compiled-in containment checklist per incident type
func DefaultContainment() map[model.IncidentType][]string {
	return map[model.IncidentType][]string{
		model.IncidentDataBreach: {
			"isolate affected systems",
			"revoke exposed credentials and sessions",
			"preserve logs and forensic evidence",
			"assess scope of exposed records",
			"engage legal for breach notification deadlines",
		},
		model.IncidentSystemCompromise: {
			"isolate compromised hosts from the network",
			"rotate service credentials",
			"preserve forensic images",
			"rebuild hosts from known-good images",
		},
		model.IncidentRansomware: {
			"disconnect affected systems",
			"disable shared drives and backups mounts",
			"verify integrity of offline backups",
			"engage incident response retainer",
		},
		model.IncidentUnauthorizedAccess: {
			"lock affected accounts",
			"force password reset",
			"review access logs",
		},
		model.IncidentDDoS: {
			"enable upstream rate limiting",
			"scale edge capacity",
			"block offending networks",
		},
		model.IncidentMalware: {
			"quarantine affected hosts",
			"update detection signatures",
			"scan adjacent systems",
		},
		model.IncidentSQLInjection: {
			"block offending sources",
			"review query logs for data access",
			"patch vulnerable endpoint",
		},
		model.IncidentXSS: {
			"purge stored payloads",
			"invalidate active sessions",
			"patch output encoding",
		},
		model.IncidentPhishing: {
			"take down lookalike domains",
			"warn customers",
			"reset credentials of reported victims",
		},
		model.IncidentBruteForce: {
			"throttle login attempts",
			"lock targeted accounts",
			"block offending sources",
		},
		model.IncidentPolicyViolation: {
			"document the violation",
			"notify data owner",
		},
		model.IncidentSuspiciousActivity: {
			"increase monitoring of the source",
			"review related security events",
		},
	}
}

// withDefaults fills unset fields with the compiled-in policy
func (c Config) withDefaults() Config {
	if c.AffectedSystemsThreshold <= 0 {
		c.AffectedSystemsThreshold = DefaultAffectedSystemsThreshold
	}
	if c.ReportTimeout <= 0 {
		c.ReportTimeout = DefaultReportTimeout
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = DefaultNotifyTimeout
	}
	if len(c.Escalation) == 0 {
		c.Escalation = DefaultEscalation()
	}
	if len(c.Playbook) == 0 {
		c.Playbook = DefaultPlaybook()
	}
	if len(c.Containment) == 0 {
		c.Containment = DefaultContainment()
	}
	return c
}
