package blob

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLStore keeps blobs in the SQLite blobs table.
type SQLStore struct {
	urlBuilder
	db *sql.DB
}

func NewSQLStore(db *sql.DB, publicBaseURL string, maxSize int64) *SQLStore {
	return &SQLStore{urlBuilder: newURLBuilder(publicBaseURL, maxSize), db: db}
}

func (s *SQLStore) Upload(ctx context.Context, path string, data []byte) (string, error) {
	contentType, err := s.check(path, data)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO blobs (path, content_type, data, size, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (path) DO UPDATE SET content_type = excluded.content_type, data = excluded.data,
			size = excluded.size, created_at = excluded.created_at`,
		path, contentType, data, len(data), time.Now().UnixMicro())
	if err != nil {
		return "", fmt.Errorf("upload blob %s: %w", path, err)
	}
	return s.PublicURL(path), nil
}

func (s *SQLStore) Get(ctx context.Context, path string) (Blob, error) {
	b := Blob{Path: path}
	err := s.db.QueryRowContext(ctx, `SELECT content_type, data FROM blobs WHERE path = ?`, path).
		Scan(&b.ContentType, &b.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return Blob{}, ErrNotFound
	}
	if err != nil {
		return Blob{}, fmt.Errorf("get blob %s: %w", path, err)
	}
	return b, nil
}
