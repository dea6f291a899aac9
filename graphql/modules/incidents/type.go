// Package incidents defines the GraphQL types for security incidents and reports.
package incidents

import (
	"github.com/graphql-go/graphql"
)

// SecurityIncidentType represents a reported security incident
var SecurityIncidentType = graphql.NewObject(graphql.ObjectConfig{
	Name: "SecurityIncident",
	Fields: graphql.Fields{
		"key":              &graphql.Field{Type: graphql.String},
		"type":             &graphql.Field{Type: graphql.String},
		"severity":         &graphql.Field{Type: graphql.String},
		"description":      &graphql.Field{Type: graphql.String},
		"affected_systems": &graphql.Field{Type: graphql.NewList(graphql.String)},
		"status":           &graphql.Field{Type: graphql.String},
		"reported_at":      &graphql.Field{Type: graphql.DateTime},
		"resolved_at":      &graphql.Field{Type: graphql.DateTime},
		"response_notes":   &graphql.Field{Type: graphql.String},
		"updated_at":       &graphql.Field{Type: graphql.DateTime},
	},
})

// CountType is one bucket of a report breakdown
var CountType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Count",
	Fields: graphql.Fields{
		"name":  &graphql.Field{Type: graphql.String},
		"count": &graphql.Field{Type: graphql.Int},
	},
})

// SecurityReportType represents the aggregate of incidents over a period
var SecurityReportType = graphql.NewObject(graphql.ObjectConfig{
	Name: "SecurityReport",
	Fields: graphql.Fields{
		"period":                &graphql.Field{Type: graphql.String},
		"from":                  &graphql.Field{Type: graphql.DateTime},
		"to":                    &graphql.Field{Type: graphql.DateTime},
		"generated_at":          &graphql.Field{Type: graphql.DateTime},
		"total":                 &graphql.Field{Type: graphql.Int},
		"by_type":               &graphql.Field{Type: graphql.NewList(CountType)},
		"by_severity":           &graphql.Field{Type: graphql.NewList(CountType)},
		"by_status":             &graphql.Field{Type: graphql.NewList(CountType)},
		"resolved":              &graphql.Field{Type: graphql.Int},
		"mean_resolution_hours": &graphql.Field{Type: graphql.Float},
	},
})

// EscalationTierType is one row of the escalation matrix
var EscalationTierType = graphql.NewObject(graphql.ObjectConfig{
	Name: "EscalationTier",
	Fields: graphql.Fields{
		"severity":         &graphql.Field{Type: graphql.String},
		"contacts":         &graphql.Field{Type: graphql.NewList(graphql.String)},
		"response_minutes": &graphql.Field{Type: graphql.Int},
	},
})

// ResponsePhaseType is one phase of the response playbook
var ResponsePhaseType = graphql.NewObject(graphql.ObjectConfig{
	Name: "ResponsePhase",
	Fields: graphql.Fields{
		"name":           &graphql.Field{Type: graphql.String},
		"target_minutes": &graphql.Field{Type: graphql.Int},
		"actions":        &graphql.Field{Type: graphql.NewList(graphql.String)},
	},
})

// ContainmentEntryType lists the containment actions for an incident type
var ContainmentEntryType = graphql.NewObject(graphql.ObjectConfig{
	Name: "ContainmentEntry",
	Fields: graphql.Fields{
		"type":    &graphql.Field{Type: graphql.String},
		"actions": &graphql.Field{Type: graphql.NewList(graphql.String)},
	},
})
