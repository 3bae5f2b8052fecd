package assets

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/formsync/internal/client/models"
	"github.com/dmitrijs2005/formsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/formsync/internal/dbx"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, generation, key string) (*models.CachedResponse, error) {
	var (
		resp    models.CachedResponse
		headers []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT status, headers, body FROM asset_cache
		WHERE generation = ? AND cache_key = ?
	`, generation, key).Scan(&resp.Status, &headers, &resp.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset %s/%s: %w", generation, key, err)
	}

	resp.Header = http.Header{}
	if err := json.Unmarshal(headers, &resp.Header); err != nil {
		return nil, fmt.Errorf("failed to decode headers of asset %s/%s: %w", generation, key, err)
	}
	return &resp, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, generation, key string, resp models.CachedResponse) error {
	return put(ctx, r.db, generation, key, resp)
}

// PutAll stores every entry in one transaction.
func (r *SQLiteRepository) PutAll(ctx context.Context, generation string, entries map[string]models.CachedResponse) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for key, resp := range entries {
			if err := put(ctx, tx, generation, key, resp); err != nil {
				return err
			}
		}
		return nil
	})
}

// Activate records generation as active and drops every other generation,
// atomically.
func (r *SQLiteRepository) Activate(ctx context.Context, generation string) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := metadata.NewSQLiteRepository(tx).Set(ctx, metadata.KeyActiveGeneration, []byte(generation)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM asset_cache WHERE generation <> ?`, generation); err != nil {
			return fmt.Errorf("failed to delete superseded generations: %w", err)
		}
		return nil
	})
}

// ActiveGeneration returns "" when nothing has been activated yet.
func (r *SQLiteRepository) ActiveGeneration(ctx context.Context) (string, error) {
	v, err := metadata.NewSQLiteRepository(r.db).Get(ctx, metadata.KeyActiveGeneration)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (r *SQLiteRepository) generations(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT generation FROM asset_cache ORDER BY generation`)
	if err != nil {
		return nil, fmt.Errorf("failed to list generations: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("failed to scan generation: %w", err)
		}
		result = append(result, g)
	}
	return result, rows.Err()
}

func put(ctx context.Context, db dbx.DBTX, generation, key string, resp models.CachedResponse) error {
	h := resp.Header
	if h == nil {
		h = http.Header{}
	}
	headers, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to encode headers of asset %s/%s: %w", generation, key, err)
	}
	body := resp.Body
	if body == nil {
		body = []byte{}
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO asset_cache (generation, cache_key, status, headers, body)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(generation, cache_key) DO UPDATE SET
			status = excluded.status,
			headers = excluded.headers,
			body = excluded.body
	`, generation, key, resp.Status, headers, body)
	if err != nil {
		return fmt.Errorf("failed to put asset %s/%s: %w", generation, key, err)
	}
	return nil
}
