package database

import (
	"context"
	"fmt"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/ortelius/storefront-guard/model"
)

// EventStore appends security events to the security_events collection
type EventStore struct {
	db  arangodb.Database
	col arangodb.Collection
}

// NewEventStore uses the security_events collection of db
func NewEventStore(db DBConnection) *EventStore {
	return &EventStore{db: db.Database, col: db.Collections[SecurityEventsCollection]}
}

// AppendEvent inserts event. Events are never updated.
func (s *EventStore) AppendEvent(ctx context.Context, event model.SecurityEvent) error {
	if _, err := s.col.CreateDocument(ctx, event); err != nil {
		return fmt.Errorf("failed to store security event: %w", err)
	}
	return nil
}

// ListEvents returns up to limit events in [from, to], newest first
func (s *EventStore) ListEvents(ctx context.Context, from, to time.Time, limit int) ([]model.SecurityEvent, error) {
	query := `
		FOR e IN security_events
			LET ts = DATE_TIMESTAMP(e.timestamp)
			FILTER ts >= @from AND ts <= @to
			SORT ts DESC
			LIMIT @limit
			RETURN e
	`
	return queryAll[model.SecurityEvent](ctx, s.db, query, map[string]interface{}{
		"from":  from.UnixMilli(),
		"to":    to.UnixMilli(),
		"limit": limit,
	})
}
