// Package invoices persists invoice snapshots in the local SQLite database.
package invoices

import (
	"context"

	"github.com/dkomarov/curio/internal/models"
)

// Repository is the invoice persistence contract. Invoices are immutable
// snapshots: Replace is the only mutation and re-snapshots the whole record.
type Repository interface {
	Insert(ctx context.Context, inv *models.Invoice) error
	Replace(ctx context.Context, inv *models.Invoice) error
	GetByID(ctx context.Context, id string) (*models.Invoice, error)
	List(ctx context.Context) ([]*models.Invoice, error)
	Delete(ctx context.Context, id string) error
}
