package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore keeps documents in a JSONB table.
type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

const pgReturning = ` RETURNING id, data, created_at, updated_at`

func scanPgDocument(row pgx.Row) (Document, error) {
	var d Document
	var data []byte
	if err := row.Scan(&d.ID, &data, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return Document{}, err
	}
	d.Data = data
	return d, nil
}

func (p *PgStore) Create(ctx context.Context, collection string, data any) (Document, error) {
	return p.Put(ctx, collection, uuid.NewString(), data)
}

func (p *PgStore) Put(ctx context.Context, collection, id string, data any) (Document, error) {
	if err := validName(collection); err != nil {
		return Document{}, err
	}
	raw, err := encode(data)
	if err != nil {
		return Document{}, err
	}
	row := p.db.QueryRow(ctx, `
		INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`+pgReturning,
		collection, id, string(raw))
	doc, err := scanPgDocument(row)
	if err != nil {
		return Document{}, fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (p *PgStore) Merge(ctx context.Context, collection, id string, data any) (Document, error) {
	if err := validName(collection); err != nil {
		return Document{}, err
	}
	raw, err := encode(data)
	if err != nil {
		return Document{}, err
	}
	row := p.db.QueryRow(ctx, `
		INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO UPDATE SET data = documents.data || EXCLUDED.data, updated_at = now()`+pgReturning,
		collection, id, string(raw))
	doc, err := scanPgDocument(row)
	if err != nil {
		return Document{}, fmt.Errorf("merge %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (p *PgStore) Update(ctx context.Context, collection, id string, data any) (Document, error) {
	if err := validName(collection); err != nil {
		return Document{}, err
	}
	raw, err := encode(data)
	if err != nil {
		return Document{}, err
	}
	row := p.db.QueryRow(ctx, `
		UPDATE documents SET data = data || $3::jsonb, updated_at = now()
		WHERE collection = $1 AND id = $2`+pgReturning,
		collection, id, string(raw))
	doc, err := scanPgDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (p *PgStore) Get(ctx context.Context, collection, id string) (Document, error) {
	row := p.db.QueryRow(ctx,
		`SELECT id, data, created_at, updated_at FROM documents WHERE collection = $1 AND id = $2`,
		collection, id)
	doc, err := scanPgDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (p *PgStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (p *PgStore) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if name := q.IndexName(); name != "" {
		var exists bool
		err := p.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = $1)`, name).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("check index %s: %w", name, err)
		}
		if !exists {
			return nil, fmt.Errorf("%w: %s", ErrIndexMissing, name)
		}
	}

	var sb strings.Builder
	args := []any{q.Collection}
	sb.WriteString(`SELECT id, data, created_at, updated_at FROM documents WHERE collection = $1`)
	for _, f := range q.Filters {
		args = append(args, pgText(f.Value))
		fmt.Fprintf(&sb, ` AND %s = $%d`, pgColumn(f.Field), len(args))
	}
	if q.OrderBy != nil {
		sb.WriteString(` ORDER BY ` + pgColumn(q.OrderBy.Field))
		if q.OrderBy.Desc {
			sb.WriteString(` DESC`)
		}
		sb.WriteString(`, id`)
	}

	rows, err := p.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	defer rows.Close()
	docs := make([]Document, 0)
	for rows.Next() {
		doc, err := scanPgDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.Collection, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	return docs, nil
}

// pgColumn maps a validated field name to its SQL expression.
func pgColumn(field string) string {
	switch field {
	case FieldCreatedAt:
		return "created_at"
	case FieldUpdatedAt:
		return "updated_at"
	default:
		return "(data ->> '" + field + "')"
	}
}

func pgText(v any) any {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t
	default:
		return fmt.Sprint(t)
	}
}
