// Package collections persists named item groups in the local SQLite database.
package collections

import (
	"context"

	"github.com/dkomarov/curio/internal/models"
)

// Repository is the collection persistence contract.
type Repository interface {
	Create(ctx context.Context, c *models.Collection) error

	// ApplyRemote upserts a remote document with last-write-wins semantics.
	// The bool reports whether the document won.
	ApplyRemote(ctx context.Context, c *models.Collection) (bool, error)

	GetByName(ctx context.Context, name string) (*models.Collection, error)
	List(ctx context.Context) ([]*models.Collection, error)
	Count(ctx context.Context) (int, error)

	// Rename inserts the new key and tombstones the old one. Member items are
	// repointed separately by the caller inside the same transaction.
	Rename(ctx context.Context, oldName, newName string, updatedAtMillis int64) error

	SoftDelete(ctx context.Context, name string, updatedAtMillis int64) error

	ListDirty(ctx context.Context) ([]*models.Collection, error)
	ClearDirty(ctx context.Context, name string, updatedAtMillis int64) error
}
