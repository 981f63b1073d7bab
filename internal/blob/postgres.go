package blob

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore keeps blobs in the PostgreSQL blobs table.
type PgStore struct {
	urlBuilder
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool, publicBaseURL string, maxSize int64) *PgStore {
	return &PgStore{urlBuilder: newURLBuilder(publicBaseURL, maxSize), db: db}
}

func (p *PgStore) Upload(ctx context.Context, path string, data []byte) (string, error) {
	contentType, err := p.check(path, data)
	if err != nil {
		return "", err
	}
	_, err = p.db.Exec(ctx, `
		INSERT INTO blobs (path, content_type, data, size) VALUES ($1, $2, $3, $4)
		ON CONFLICT (path) DO UPDATE SET content_type = EXCLUDED.content_type, data = EXCLUDED.data,
			size = EXCLUDED.size, created_at = now()`,
		path, contentType, data, len(data))
	if err != nil {
		return "", fmt.Errorf("upload blob %s: %w", path, err)
	}
	return p.PublicURL(path), nil
}

func (p *PgStore) Get(ctx context.Context, path string) (Blob, error) {
	b := Blob{Path: path}
	err := p.db.QueryRow(ctx, `SELECT content_type, data FROM blobs WHERE path = $1`, path).
		Scan(&b.ContentType, &b.Data)
	if errors.Is(err, pgx.ErrNoRows) {
		return Blob{}, ErrNotFound
	}
	if err != nil {
		return Blob{}, fmt.Errorf("get blob %s: %w", path, err)
	}
	return b, nil
}
