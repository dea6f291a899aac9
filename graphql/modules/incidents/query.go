package incidents

import (
	"github.com/graphql-go/graphql"
	"github.com/ortelius/storefront-guard/internal/incident"
)

// GetQueryFields returns the incident queries to be mounted in the root schema
func GetQueryFields(coord *incident.Coordinator) graphql.Fields {
	return graphql.Fields{
		"incidents": &graphql.Field{
			Type: graphql.NewList(SecurityIncidentType),
			Args: graphql.FieldConfigArgument{
				"from": &graphql.ArgumentConfig{Type: graphql.DateTime},
				"to":   &graphql.ArgumentConfig{Type: graphql.DateTime},
				"days": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 30},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return ResolveIncidents(p.Context, coord, p.Args)
			},
		},
		"incident": &graphql.Field{
			Type: SecurityIncidentType,
			Args: graphql.FieldConfigArgument{
				"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				inc, err := coord.Get(p.Context, p.Args["id"].(string))
				if err != nil {
					return nil, err
				}
				return incidentToMap(inc), nil
			},
		},
		"securityReport": &graphql.Field{
			Type: SecurityReportType,
			Args: graphql.FieldConfigArgument{
				"period": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: "weekly"},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return ResolveReport(p.Context, coord, p.Args["period"].(string))
			},
		},
		"escalationMatrix": &graphql.Field{
			Type: graphql.NewList(EscalationTierType),
			Resolve: func(_ graphql.ResolveParams) (interface{}, error) {
				return ResolveEscalation(coord), nil
			},
		},
		"playbook": &graphql.Field{
			Type: graphql.NewList(ResponsePhaseType),
			Resolve: func(_ graphql.ResolveParams) (interface{}, error) {
				return ResolvePlaybook(coord), nil
			},
		},
		"containment": &graphql.Field{
			Type: graphql.NewList(ContainmentEntryType),
			Resolve: func(_ graphql.ResolveParams) (interface{}, error) {
				return ResolveContainment(coord), nil
			},
		},
	}
}
