// Package model provides data models for the storefront security core.
package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxExcerptLength is the number of runes of an offending value kept on a SecurityEvent
const MaxExcerptLength = 100

// Severity is the LOW..CRITICAL scale shared by events and incidents
type Severity string

// Severity levels
const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the ordinal of the severity, 0 for an unknown value
func (s Severity) Rank() int {
	return severityRank[s]
}

// Valid reports whether s is one of the four defined levels
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// MaxSeverity returns the more severe of a and b
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ParseSeverity normalizes a user supplied severity string
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	return sev, sev.Valid()
}

// EventKind identifies what a SecurityEvent detected
type EventKind string

// Event kinds produced by the threat scanner and the crypto service
const (
	EventSQLInjection       EventKind = "SQL_INJECTION_ATTEMPT"
	EventXSS                EventKind = "XSS_ATTEMPT"
	EventHeaderInjection    EventKind = "HEADER_INJECTION"
	EventSuspiciousAgent    EventKind = "SUSPICIOUS_AGENT"
	EventMalformedPayload   EventKind = "MALFORMED_PAYLOAD"
	EventDecryptionFailure  EventKind = "DECRYPTION_FAILURE"
	EventValidationRejected EventKind = "VALIDATION_REJECTED"
)

var kindSeverity = map[EventKind]Severity{
	EventSQLInjection:       SeverityHigh,
	EventXSS:                SeverityHigh,
	EventHeaderInjection:    SeverityHigh,
	EventSuspiciousAgent:    SeverityMedium,
	EventMalformedPayload:   SeverityMedium,
	EventDecryptionFailure:  SeverityCritical,
	EventValidationRejected: SeverityLow,
}

// SeverityForKind derives the severity of an event from its kind.
// Unknown kinds are treated as MEDIUM.
func SeverityForKind(kind EventKind) Severity {
	if sev, ok := kindSeverity[kind]; ok {
		return sev
	}
	return SeverityMedium
}

// SecurityEvent is an immutable record of a detection
type SecurityEvent struct {
	Key            string    `json:"_key,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Kind           EventKind `json:"event_kind"`
	Severity       Severity  `json:"severity"`
	Source         string    `json:"source_identifier,omitempty"` // caller IP or user id
	Path           string    `json:"path,omitempty"`              // dotted location inside the request
	Detector       string    `json:"detector,omitempty"`
	PayloadExcerpt string    `json:"payload_excerpt"`
	ObjType        string    `json:"objtype"` // "SecurityEvent"
}

// NewSecurityEvent creates an event with severity derived from kind and a truncated excerpt
func NewSecurityEvent(kind EventKind, source, path, detector, payload string) SecurityEvent {
	return SecurityEvent{
		Timestamp:      time.Now().UTC(),
		Kind:           kind,
		Severity:       SeverityForKind(kind),
		Source:         source,
		Path:           path,
		Detector:       detector,
		PayloadExcerpt: Excerpt(payload),
		ObjType:        "SecurityEvent",
	}
}

// Excerpt truncates s to MaxExcerptLength runes
func Excerpt(s string) string {
	if utf8.RuneCountInString(s) <= MaxExcerptLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxExcerptLength])
}
