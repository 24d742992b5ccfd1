// Package items persists collectible items in the local SQLite database.
package items

import (
	"context"

	"github.com/dkomarov/curio/internal/models"
)

// Repository is the item persistence contract. Implementations accept a
// dbx.DBTX so the same code runs standalone or inside a transaction.
type Repository interface {
	// CreateOrUpdate upserts a local mutation and flags the row dirty for sync.
	CreateOrUpdate(ctx context.Context, item *models.Item) error

	// ApplyRemote upserts a remote document iff it is newer than the local
	// row (last-write-wins on updated_at). The row is left clean. The bool
	// reports whether the document won.
	ApplyRemote(ctx context.Context, item *models.Item) (bool, error)

	GetByID(ctx context.Context, id string) (*models.Item, error)
	ListByCollection(ctx context.Context, collection string) ([]*models.Item, error)
	ListAll(ctx context.Context) ([]*models.Item, error)

	// SetCollection repoints a single item's membership.
	SetCollection(ctx context.Context, id, collection string, updatedAtMillis int64) error

	// ReassignCollection bulk-moves every item of one collection to another.
	ReassignCollection(ctx context.Context, from, to string, updatedAtMillis int64) error

	// SoftDelete tombstones an item so its deletion propagates via sync.
	SoftDelete(ctx context.Context, id string, updatedAtMillis int64) error

	ListDirty(ctx context.Context) ([]*models.Item, error)

	// ClearDirty unflags a row only if it was not touched again since
	// updatedAtMillis was read.
	ClearDirty(ctx context.Context, id string, updatedAtMillis int64) error
}
