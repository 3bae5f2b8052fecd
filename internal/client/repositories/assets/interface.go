// Package assets stores cached asset responses grouped by cache generation.
package assets

import (
	"context"

	"github.com/dmitrijs2005/formsync/internal/client/models"
)

// Repository persists cached responses. Get returns (nil, nil) on a miss.
type Repository interface {
	Get(ctx context.Context, generation, key string) (*models.CachedResponse, error)
	Put(ctx context.Context, generation, key string, resp models.CachedResponse) error
	PutAll(ctx context.Context, generation string, entries map[string]models.CachedResponse) error
	Activate(ctx context.Context, generation string) error
	ActiveGeneration(ctx context.Context) (string, error)
}
