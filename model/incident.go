// Package model - security incident aggregate and its lifecycle
package model

import "time"

// IncidentType is the closed set of incident categories accepted by the coordinator
type IncidentType string

// Incident types
const (
	IncidentDataBreach         IncidentType = "DATA_BREACH"
	IncidentSystemCompromise   IncidentType = "SYSTEM_COMPROMISE"
	IncidentRansomware         IncidentType = "RANSOMWARE"
	IncidentUnauthorizedAccess IncidentType = "UNAUTHORIZED_ACCESS"
	IncidentDDoS               IncidentType = "DDoS_ATTACK"
	IncidentMalware            IncidentType = "MALWARE"
	IncidentSQLInjection       IncidentType = "SQL_INJECTION"
	IncidentXSS                IncidentType = "XSS_ATTACK"
	IncidentPhishing           IncidentType = "PHISHING"
	IncidentBruteForce         IncidentType = "BRUTE_FORCE"
	IncidentPolicyViolation    IncidentType = "POLICY_VIOLATION"
	IncidentSuspiciousActivity IncidentType = "SUSPICIOUS_ACTIVITY"
)

var knownIncidentTypes = map[IncidentType]bool{
	IncidentDataBreach:         true,
	IncidentSystemCompromise:   true,
	IncidentRansomware:         true,
	IncidentUnauthorizedAccess: true,
	IncidentDDoS:               true,
	IncidentMalware:            true,
	IncidentSQLInjection:       true,
	IncidentXSS:                true,
	IncidentPhishing:           true,
	IncidentBruteForce:         true,
	IncidentPolicyViolation:    true,
	IncidentSuspiciousActivity: true,
}

// Valid reports whether t is a known incident type
func (t IncidentType) Valid() bool {
	return knownIncidentTypes[t]
}

// IncidentStatus is a state of the incident lifecycle
type IncidentStatus string

// Lifecycle states. OPEN is the only initial state, CLOSED the only terminal one.
const (
	StatusOpen       IncidentStatus = "OPEN"
	StatusInProgress IncidentStatus = "IN_PROGRESS"
	StatusResolved   IncidentStatus = "RESOLVED"
	StatusClosed     IncidentStatus = "CLOSED"
)

// allowed transitions; a same-status update only appends notes
var transitions = map[IncidentStatus][]IncidentStatus{
	StatusOpen:       {StatusOpen, StatusInProgress, StatusResolved},
	StatusInProgress: {StatusInProgress, StatusResolved},
	StatusResolved:   {StatusResolved, StatusClosed},
	StatusClosed:     {},
}

// Valid reports whether s is a defined status
func (s IncidentStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether an incident in status s may move to next
func (s IncidentStatus) CanTransition(next IncidentStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SecurityIncident is the mutable incident aggregate
type SecurityIncident struct {
	Key             string         `json:"_key,omitempty"`
	Rev             string         `json:"_rev,omitempty"`
	Type            IncidentType   `json:"type"`
	Severity        Severity       `json:"severity"`
	Description     string         `json:"description"`
	AffectedSystems []string       `json:"affected_systems"`
	Status          IncidentStatus `json:"status"`
	ReportedAt      time.Time      `json:"reported_at"`
	ResolvedAt      *time.Time     `json:"resolved_at"`
	ResponseNotes   *string        `json:"response_notes"`
	ObjType         string         `json:"objtype"` // "SecurityIncident"
	UpdatedAt       time.Time      `json:"updated_at"`
}

// NewSecurityIncident creates an OPEN incident reported now
func NewSecurityIncident(incidentType IncidentType, severity Severity, description string, affected []string) *SecurityIncident {
	now := time.Now().UTC()
	if affected == nil {
		affected = []string{}
	}
	return &SecurityIncident{
		Type:            incidentType,
		Severity:        severity,
		Description:     description,
		AffectedSystems: affected,
		Status:          StatusOpen,
		ReportedAt:      now,
		ObjType:         "SecurityIncident",
		UpdatedAt:       now,
	}
}

// IsResolved checks whether the incident has a resolution timestamp
func (i *SecurityIncident) IsResolved() bool {
	return i.ResolvedAt != nil
}

// ResolutionHours returns the hours between report and resolution, false if unresolved
func (i *SecurityIncident) ResolutionHours() (float64, bool) {
	if i.ResolvedAt == nil || i.ReportedAt.IsZero() {
		return 0, false
	}
	return i.ResolvedAt.Sub(i.ReportedAt).Hours(), true
}
