// Package graphql assembles the root GraphQL schema from the module query fields.
package graphql

import (
	"github.com/graphql-go/graphql"
	"github.com/ortelius/storefront-guard/graphql/modules/incidents"
	"github.com/ortelius/storefront-guard/internal/incident"
)

// CreateSchema builds the read-only schema served at /api/v1/security/graphql
func CreateSchema(coord *incident.Coordinator) (graphql.Schema, error) {
	fields := graphql.Fields{}
	for name, field := range incidents.GetQueryFields(coord) {
		fields[name] = field
	}

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: fields,
		}),
	})
}
