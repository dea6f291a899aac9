package incidents

import (
	"context"
	"sort"
	"time"

	"github.com/ortelius/storefront-guard/internal/incident"
	"github.com/ortelius/storefront-guard/internal/secerr"
	"github.com/ortelius/storefront-guard/model"
)

// ResolveIncidents lists incidents between from and to, or over the last days when no range is given
func ResolveIncidents(ctx context.Context, coord *incident.Coordinator, args map[string]interface{}) ([]map[string]interface{}, error) {
	to := time.Now().UTC()
	if v, ok := args["to"].(time.Time); ok {
		to = v
	}

	var from time.Time
	if v, ok := args["from"].(time.Time); ok {
		from = v
	} else {
		days, _ := args["days"].(int)
		if days <= 0 {
			return nil, secerr.Validation("days must be positive")
		}
		from = to.AddDate(0, 0, -days)
	}

	list, err := coord.List(ctx, from, to)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]interface{}, 0, len(list))
	for _, inc := range list {
		out = append(out, incidentToMap(inc))
	}
	return out, nil
}

// ResolveReport generates the report for a named period
func ResolveReport(ctx context.Context, coord *incident.Coordinator, name string) (map[string]interface{}, error) {
	period, err := incident.ParsePeriod(name)
	if err != nil {
		return nil, err
	}
	report, err := coord.GenerateReport(ctx, period)
	if err != nil {
		return nil, err
	}

	result := map[string]interface{}{
		"period":       string(report.Period),
		"from":         report.From,
		"to":           report.To,
		"generated_at": report.GeneratedAt,
		"total":        report.Total,
		"by_type":      counts(report.ByType),
		"by_severity":  counts(report.BySeverity),
		"by_status":    counts(report.ByStatus),
		"resolved":     report.Resolved,
	}
	if report.MeanResolutionHours != nil {
		result["mean_resolution_hours"] = *report.MeanResolutionHours
	}
	return result, nil
}

// ResolveEscalation flattens the escalation matrix, most severe first
func ResolveEscalation(coord *incident.Coordinator) []map[string]interface{} {
	matrix := coord.Escalation()
	severities := make([]model.Severity, 0, len(matrix))
	for sev := range matrix {
		severities = append(severities, sev)
	}
	sort.Slice(severities, func(i, j int) bool {
		return severities[i].Rank() > severities[j].Rank()
	})

	out := make([]map[string]interface{}, 0, len(severities))
	for _, sev := range severities {
		tier := matrix[sev]
		out = append(out, map[string]interface{}{
			"severity":         string(sev),
			"contacts":         tier.Contacts,
			"response_minutes": tier.ResponseMinutes,
		})
	}
	return out
}

// ResolvePlaybook returns the response phases in playbook order
func ResolvePlaybook(coord *incident.Coordinator) []map[string]interface{} {
	phases := coord.Playbook()
	out := make([]map[string]interface{}, 0, len(phases))
	for _, phase := range phases {
		out = append(out, map[string]interface{}{
			"name":           phase.Name,
			"target_minutes": phase.TargetMinutes,
			"actions":        phase.Actions,
		})
	}
	return out
}

// ResolveContainment flattens the containment checklists ordered by incident type
func ResolveContainment(coord *incident.Coordinator) []map[string]interface{} {
	playbook := coord.Containment()
	types := make([]string, 0, len(playbook))
	for t := range playbook {
		types = append(types, string(t))
	}
	sort.Strings(types)

	out := make([]map[string]interface{}, 0, len(types))
	for _, t := range types {
		out = append(out, map[string]interface{}{
			"type":    t,
			"actions": playbook[model.IncidentType(t)],
		})
	}
	return out
}

func incidentToMap(inc *model.SecurityIncident) map[string]interface{} {
	m := map[string]interface{}{
		"key":              inc.Key,
		"type":             string(inc.Type),
		"severity":         string(inc.Severity),
		"description":      inc.Description,
		"affected_systems": inc.AffectedSystems,
		"status":           string(inc.Status),
		"reported_at":      inc.ReportedAt,
		"updated_at":       inc.UpdatedAt,
	}
	if inc.ResolvedAt != nil {
		m["resolved_at"] = *inc.ResolvedAt
	}
	if inc.ResponseNotes != nil {
		m["response_notes"] = *inc.ResponseNotes
	}
	return m
}

func counts(in map[string]int) []map[string]interface{} {
	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		out = append(out, map[string]interface{}{"name": name, "count": in[name]})
	}
	return out
}
