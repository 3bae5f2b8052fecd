package queue

import (
	"context"

	"github.com/dmitrijs2005/formsync/internal/client/models"
)

type Repository interface {
	Append(ctx context.Context, p models.Payload) (int64, error)
	ListAll(ctx context.Context) ([]models.QueueEntry, error)
	Get(ctx context.Context, id int64) (*models.QueueEntry, error)
	Remove(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}
