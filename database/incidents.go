package database

import (
	"context"
	"fmt"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/ortelius/storefront-guard/internal/secerr"
	"github.com/ortelius/storefront-guard/model"
	"go.uber.org/zap"
)

const maxUpdateAttempts = 5

// IncidentStore keeps incidents in ArangoDB. Updates are compare-and-swap on _rev.
type IncidentStore struct {
	db  arangodb.Database
	col arangodb.Collection
}

// NewIncidentStore uses the incidents collection of db
func NewIncidentStore(db DBConnection) *IncidentStore {
	return &IncidentStore{db: db.Database, col: db.Collections[IncidentsCollection]}
}

// Create inserts a new incident and records its revision
func (s *IncidentStore) Create(ctx context.Context, incident *model.SecurityIncident) error {
	meta, err := s.col.CreateDocument(ctx, incident)
	if err != nil {
		return fmt.Errorf("failed to create incident: %w", err)
	}
	incident.Key = meta.Key
	incident.Rev = meta.Rev
	return nil
}

// Get returns the incident with key id
func (s *IncidentStore) Get(ctx context.Context, id string) (*model.SecurityIncident, error) {
	query := `
		FOR i IN incidents
			FILTER i._key == @key
			LIMIT 1
			RETURN i
	`
	found, err := queryAll[model.SecurityIncident](ctx, s.db, query, map[string]interface{}{"key": id})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, secerr.ErrNotFound
	}
	return &found[0], nil
}

// Update applies fn to the current incident and writes it back only if nobody
// changed it in between. Lost races are retried with a fresh read.
func (s *IncidentStore) Update(ctx context.Context, id string, fn func(*model.SecurityIncident) error) (*model.SecurityIncident, error) {
	query := `
		FOR i IN incidents
			FILTER i._key == @key AND i._rev == @rev
			UPDATE i WITH @doc IN incidents
			RETURN NEW
	`

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		current, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		rev := current.Rev

		if err := fn(current); err != nil {
			return nil, err
		}

		doc := *current
		doc.Key = ""
		doc.Rev = ""

		updated, err := queryAll[model.SecurityIncident](ctx, s.db, query, map[string]interface{}{
			"key": id,
			"rev": rev,
			"doc": doc,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update incident: %w", err)
		}
		if len(updated) == 1 {
			return &updated[0], nil
		}
		logger.Debug("incident revision changed, retrying update", zap.String("id", id), zap.Int("attempt", attempt+1))
	}
	return nil, secerr.ErrConflict
}

// ListBetween returns incidents reported in [from, to], oldest first
func (s *IncidentStore) ListBetween(ctx context.Context, from, to time.Time) ([]*model.SecurityIncident, error) {
	query := `
		FOR i IN incidents
			LET reportedAt = DATE_TIMESTAMP(i.reported_at)
			FILTER reportedAt >= @from AND reportedAt <= @to
			SORT reportedAt ASC
			RETURN i
	`
	found, err := queryAll[model.SecurityIncident](ctx, s.db, query, map[string]interface{}{
		"from": from.UnixMilli(),
		"to":   to.UnixMilli(),
	})
	if err != nil {
		return nil, err
	}

	out := make([]*model.SecurityIncident, len(found))
	for i := range found {
		out[i] = &found[i]
	}
	return out, nil
}

// queryAll runs an AQL query and decodes every result
func queryAll[T any](ctx context.Context, db arangodb.Database, query string, bindVars map[string]interface{}) ([]T, error) {
	cursor, err := db.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: bindVars,
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	var results []T
	for cursor.HasMore() {
		var item T
		if _, err := cursor.ReadDocument(ctx, &item); err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	return results, nil
}
