// Package docstore is a small document store: JSON documents grouped in collections,
// addressed by id, with equality filters and single-field ordering.
//
// A query that combines a filter with an ordering needs a composite index named
// idx_<collection>_<filter fields>_<order field>. Without it the store answers
// ErrIndexMissing and the caller may fall back to QuerySorted.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrIndexMissing = errors.New("the query requires an index")
	ErrInvalidQuery = errors.New("invalid query")
	ErrUnavailable  = errors.New("document store unavailable")
)

// Reserved field names that address record metadata instead of document data.
const (
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// Document is a stored record. CreatedAt is assigned by the store on first write.
type Document struct {
	ID        string
	Data      json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Decode unmarshals the document data into v.
func (d Document) Decode(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("decode document %s: %w", d.ID, err)
	}
	return nil
}

// Field returns a data field by gjson path.
func (d Document) Field(path string) gjson.Result {
	return gjson.GetBytes(d.Data, path)
}

type Filter struct {
	Field string
	Value any
}

type Order struct {
	Field string
	Desc  bool
}

type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    *Order
}

// Where returns a query on collection with one equality filter.
func Where(collection, field string, value any) Query {
	return Query{Collection: collection, Filters: []Filter{{Field: field, Value: value}}}
}

// Sorted returns a copy of q ordered by field.
func (q Query) Sorted(field string, desc bool) Query {
	q.OrderBy = &Order{Field: field, Desc: desc}
	return q
}

// IndexName is the composite index a filtered and ordered query requires.
// It is empty for queries that need no index.
func (q Query) IndexName() string {
	if len(q.Filters) == 0 || q.OrderBy == nil {
		return ""
	}
	parts := []string{"idx", q.Collection}
	for _, f := range q.Filters {
		parts = append(parts, f.Field)
	}
	parts = append(parts, q.OrderBy.Field)
	return strings.ToLower(strings.Join(parts, "_"))
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate rejects names that cannot be embedded safely in SQL.
func (q Query) Validate() error {
	if !identRe.MatchString(q.Collection) {
		return fmt.Errorf("%w: collection %q", ErrInvalidQuery, q.Collection)
	}
	for _, f := range q.Filters {
		if !identRe.MatchString(f.Field) {
			return fmt.Errorf("%w: field %q", ErrInvalidQuery, f.Field)
		}
	}
	if q.OrderBy != nil && !identRe.MatchString(q.OrderBy.Field) {
		return fmt.Errorf("%w: order field %q", ErrInvalidQuery, q.OrderBy.Field)
	}
	return nil
}

// Store is the document store contract.
type Store interface {
	// Create stores data under a generated id.
	Create(ctx context.Context, collection string, data any) (Document, error)
	// Put stores data under id, replacing any previous data. CreatedAt survives replacement.
	Put(ctx context.Context, collection, id string, data any) (Document, error)
	// Merge merges the top-level keys of data into the document, creating it if absent.
	Merge(ctx context.Context, collection, id string, data any) (Document, error)
	// Update merges data into an existing document. Returns ErrNotFound if it does not exist.
	Update(ctx context.Context, collection, id string, data any) (Document, error)
	// Get returns ErrNotFound if the document does not exist.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Delete removes the document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
	// Query returns the matching documents.
	Query(ctx context.Context, q Query) ([]Document, error)
}

func encode(data any) ([]byte, error) {
	if raw, ok := data.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	if len(b) == 0 || b[0] != '{' {
		return nil, fmt.Errorf("%w: document data must be a JSON object", ErrInvalidQuery)
	}
	return b, nil
}

func validName(collection string) error {
	if !identRe.MatchString(collection) {
		return fmt.Errorf("%w: collection %q", ErrInvalidQuery, collection)
	}
	return nil
}
