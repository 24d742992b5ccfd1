// Package images persists item image payloads in the local SQLite database.
package images

import (
	"context"

	"github.com/dkomarov/curio/internal/models"
)

// Repository is the image persistence contract.
type Repository interface {
	// CreateOrUpdate upserts the image payload for an item.
	CreateOrUpdate(ctx context.Context, rec *models.ImageRecord) error

	GetByItemID(ctx context.Context, itemID string) (*models.ImageRecord, error)

	// ListLocalOnly returns images that have never been uploaded.
	ListLocalOnly(ctx context.Context) ([]*models.ImageRecord, error)

	// SetRemote records the uploaded location without touching the payload.
	SetRemote(ctx context.Context, itemID, remoteURL, storageKey string, updatedAtMillis int64) error

	DeleteByItemID(ctx context.Context, itemID string) error
}
