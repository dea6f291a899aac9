package incident

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/ortelius/storefront-guard/internal/secerr"
	"github.com/ortelius/storefront-guard/model"
)

// Request limits
const (
	MaxDescriptionLength = 2000
	MaxAffectedSystems   = 100
	MaxNotesLength       = 4000
)

// ReportRequest is the closed set of fields accepted when reporting an incident
type ReportRequest struct {
	Type             model.IncidentType `json:"type"`
	Description      string             `json:"description"`
	AffectedSystems  []string           `json:"affected_systems,omitempty"`
	SeverityOverride model.Severity     `json:"severity_override,omitempty"`
}

// DecodeReport parses a report body strictly: unknown fields and trailing data are rejected
func DecodeReport(data []byte) (ReportRequest, error) {
	var req ReportRequest

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return ReportRequest{}, secerr.Validation("malformed incident report: %v", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return ReportRequest{}, secerr.Validation("unexpected data after incident report")
	}

	if err := req.Normalize(); err != nil {
		return ReportRequest{}, err
	}
	return req, nil
}

// Normalize trims the request, canonicalizes the override and validates it
func (r *ReportRequest) Normalize() error {
	if !r.Type.Valid() {
		return secerr.Validation("unknown incident type %q", r.Type)
	}

	r.Description = strings.TrimSpace(r.Description)
	if r.Description == "" {
		return secerr.Validation("description is required")
	}
	if len(r.Description) > MaxDescriptionLength {
		return secerr.Validation("description exceeds %d bytes", MaxDescriptionLength)
	}

	if len(r.AffectedSystems) > MaxAffectedSystems {
		return secerr.Validation("more than %d affected systems", MaxAffectedSystems)
	}
	systems := make([]string, 0, len(r.AffectedSystems))
	for _, s := range r.AffectedSystems {
		if s = strings.TrimSpace(s); s != "" {
			systems = append(systems, s)
		}
	}
	r.AffectedSystems = systems

	if r.SeverityOverride != "" {
		sev, ok := model.ParseSeverity(string(r.SeverityOverride))
		if !ok {
			return secerr.Validation("unknown severity override %q", r.SeverityOverride)
		}
		r.SeverityOverride = sev
	}
	return nil
}

// ClassifySeverity derives severity from the incident type and the number of
// affected systems. More than threshold systems promotes to at least HIGH.
func ClassifySeverity(t model.IncidentType, affected, threshold int) model.Severity {
	if threshold <= 0 {
		threshold = DefaultAffectedSystemsThreshold
	}

	sev := model.SeverityMedium
	switch t {
	case model.IncidentDataBreach, model.IncidentSystemCompromise, model.IncidentRansomware:
		sev = model.SeverityCritical
	case model.IncidentUnauthorizedAccess, model.IncidentDDoS, model.IncidentMalware:
		sev = model.SeverityHigh
	}

	if affected > threshold {
		sev = model.MaxSeverity(sev, model.SeverityHigh)
	}
	return sev
}
