package database

import (
	"context"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/ortelius/storefront-guard/internal/classify"
	"github.com/ortelius/storefront-guard/internal/secerr"
	"github.com/ortelius/storefront-guard/model"
)

// Dependency is a collection whose documents hold a hard reference to a parent record
type Dependency struct {
	Collection string
	Field      string
}

// DefaultDependencies lists, per parent collection, where references to it live.
// Collections that do not exist in the database are skipped.
var DefaultDependencies = map[string][]Dependency{
	"users": {
		{Collection: "orders", Field: "user_id"},
		{Collection: "payments", Field: "user_id"},
		{Collection: "reviews", Field: "user_id"},
	},
	"orders": {
		{Collection: "payments", Field: "order_id"},
		{Collection: "refunds", Field: "order_id"},
	},
}

// RecordStore implements retention sweeps and secure deletes over any collection
type RecordStore struct {
	db           arangodb.Database
	dependencies map[string][]Dependency
}

// NewRecordStore creates a record store. A nil dependency map uses DefaultDependencies.
func NewRecordStore(db DBConnection, dependencies map[string][]Dependency) *RecordStore {
	if dependencies == nil {
		dependencies = DefaultDependencies
	}
	return &RecordStore{db: db.Database, dependencies: dependencies}
}

// DeleteOlderThan removes documents whose policy timestamp is before cutoff.
// Documents without the timestamp field are kept.
func (s *RecordStore) DeleteOlderThan(ctx context.Context, policy model.RetentionPolicy, cutoff time.Time) (int, error) {
	exists, err := s.db.CollectionExists(ctx, policy.Collection)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	query := `
		FOR d IN @@collection
			FILTER d[@field] != null
			FILTER DATE_TIMESTAMP(d[@field]) < @cutoff
			REMOVE d IN @@collection
			COLLECT WITH COUNT INTO removed
			RETURN removed
	`
	counts, err := queryAll[int](ctx, s.db, query, map[string]interface{}{
		"@collection": policy.Collection,
		"field":       policy.TimestampField,
		"cutoff":      cutoff.UnixMilli(),
	})
	if err != nil {
		return 0, err
	}
	if len(counts) == 0 {
		return 0, nil
	}
	return counts[0], nil
}

// Dependents counts documents in the dependent collections that reference ref
func (s *RecordStore) Dependents(ctx context.Context, ref classify.RecordRef) (int, error) {
	total := 0
	for _, dep := range s.dependencies[ref.Collection] {
		exists, err := s.db.CollectionExists(ctx, dep.Collection)
		if err != nil {
			return 0, err
		}
		if !exists {
			continue
		}

		query := `
			FOR d IN @@collection
				FILTER d[@field] == @key
				COLLECT WITH COUNT INTO n
				RETURN n
		`
		counts, err := queryAll[int](ctx, s.db, query, map[string]interface{}{
			"@collection": dep.Collection,
			"field":       dep.Field,
			"key":         ref.Key,
		})
		if err != nil {
			return 0, err
		}
		if len(counts) > 0 {
			total += counts[0]
		}
	}
	return total, nil
}

// Overwrite replaces fields of ref with the given values
func (s *RecordStore) Overwrite(ctx context.Context, ref classify.RecordRef, fields map[string]string) error {
	query := `
		FOR d IN @@collection
			FILTER d._key == @key
			UPDATE d WITH @fields IN @@collection
			RETURN 1
	`
	return s.mustTouch(ctx, query, map[string]interface{}{
		"@collection": ref.Collection,
		"key":         ref.Key,
		"fields":      fields,
	})
}

// Delete removes ref
func (s *RecordStore) Delete(ctx context.Context, ref classify.RecordRef) error {
	query := `
		FOR d IN @@collection
			FILTER d._key == @key
			REMOVE d IN @@collection
			RETURN 1
	`
	return s.mustTouch(ctx, query, map[string]interface{}{
		"@collection": ref.Collection,
		"key":         ref.Key,
	})
}

// mustTouch runs a single-document write and reports ErrNotFound when nothing matched
func (s *RecordStore) mustTouch(ctx context.Context, query string, bindVars map[string]interface{}) error {
	exists, err := s.db.CollectionExists(ctx, bindVars["@collection"].(string))
	if err != nil {
		return err
	}
	if !exists {
		return secerr.ErrNotFound
	}

	touched, err := queryAll[int](ctx, s.db, query, bindVars)
	if err != nil {
		return err
	}
	if len(touched) == 0 {
		return secerr.ErrNotFound
	}
	return nil
}
