package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SQLStore keeps documents in SQLite through database/sql. Timestamps are stored
// as unix microseconds.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLDocument(row rowScanner) (Document, error) {
	var d Document
	var data string
	var created, updated int64
	if err := row.Scan(&d.ID, &data, &created, &updated); err != nil {
		return Document{}, err
	}
	d.Data = []byte(data)
	d.CreatedAt = time.UnixMicro(created).UTC()
	d.UpdatedAt = time.UnixMicro(updated).UTC()
	return d, nil
}

const sqlReturning = ` RETURNING id, data, created_at, updated_at`

func (s *SQLStore) Create(ctx context.Context, collection string, data any) (Document, error) {
	return s.Put(ctx, collection, uuid.NewString(), data)
}

func (s *SQLStore) Put(ctx context.Context, collection, id string, data any) (Document, error) {
	return s.upsert(ctx, "put", `excluded.data`, collection, id, data)
}

func (s *SQLStore) Merge(ctx context.Context, collection, id string, data any) (Document, error) {
	return s.upsert(ctx, "merge", `json_patch(documents.data, excluded.data)`, collection, id, data)
}

func (s *SQLStore) upsert(ctx context.Context, op, onConflictData, collection, id string, data any) (Document, error) {
	if err := validName(collection); err != nil {
		return Document{}, err
	}
	raw, err := encode(data)
	if err != nil {
		return Document{}, err
	}
	now := s.now().UnixMicro()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO documents (collection, id, data, created_at, updated_at) VALUES (?, ?, json(?), ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET data = `+onConflictData+`, updated_at = excluded.updated_at`+sqlReturning,
		collection, id, string(raw), now, now)
	doc, err := scanSQLDocument(row)
	if err != nil {
		return Document{}, fmt.Errorf("%s %s/%s: %w", op, collection, id, err)
	}
	return doc, nil
}

func (s *SQLStore) Update(ctx context.Context, collection, id string, data any) (Document, error) {
	if err := validName(collection); err != nil {
		return Document{}, err
	}
	raw, err := encode(data)
	if err != nil {
		return Document{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE documents SET data = json_patch(data, json(?)), updated_at = ?
		WHERE collection = ? AND id = ?`+sqlReturning,
		string(raw), s.now().UnixMicro(), collection, id)
	doc, err := scanSQLDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (s *SQLStore) Get(ctx context.Context, collection, id string) (Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, data, created_at, updated_at FROM documents WHERE collection = ? AND id = ?`,
		collection, id)
	doc, err := scanSQLDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (s *SQLStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *SQLStore) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if name := q.IndexName(); name != "" {
		var n int
		err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?`, name).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("check index %s: %w", name, err)
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: %s", ErrIndexMissing, name)
		}
	}

	var sb strings.Builder
	args := []any{q.Collection}
	sb.WriteString(`SELECT id, data, created_at, updated_at FROM documents WHERE collection = ?`)
	for _, f := range q.Filters {
		sb.WriteString(` AND ` + sqlColumn(f.Field) + ` = ?`)
		args = append(args, sqlValue(f.Value))
	}
	if q.OrderBy != nil {
		sb.WriteString(` ORDER BY ` + sqlColumn(q.OrderBy.Field))
		if q.OrderBy.Desc {
			sb.WriteString(` DESC`)
		}
		sb.WriteString(`, id`)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	defer rows.Close()
	docs := make([]Document, 0)
	for rows.Next() {
		doc, err := scanSQLDocument(rows)
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

func sqlColumn(field string) string {
	switch field {
	case FieldCreatedAt:
		return "created_at"
	case FieldUpdatedAt:
		return "updated_at"
	default:
		return "json_extract(data, '$." + field + "')"
	}
}

func sqlValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UnixMicro()
	}
	return v
}
