// Package profile persists the singleton owner profile row.
package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dkomarov/curio/internal/common"
	"github.com/dkomarov/curio/internal/dbx"
	"github.com/dkomarov/curio/internal/models"
)

// Repository is the profile persistence contract.
type Repository interface {
	Get(ctx context.Context) (*models.Profile, error)
	Save(ctx context.Context, p *models.Profile) error
}

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get returns the singleton profile row.
func (r *SQLiteRepository) Get(ctx context.Context) (*models.Profile, error) {
	query := `SELECT owner_name, display_currency, device_id FROM profile WHERE id=1`
	row := r.db.QueryRowContext(ctx, query)

	p := &models.Profile{}
	err := row.Scan(&p.OwnerName, &p.DisplayCurrency, &p.DeviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// Save upserts the singleton profile row.
func (r *SQLiteRepository) Save(ctx context.Context, p *models.Profile) error {
	query := `INSERT INTO profile (id, owner_name, display_currency, device_id)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_name = excluded.owner_name,
			display_currency = excluded.display_currency,
			device_id = excluded.device_id
	`
	if _, err := r.db.ExecContext(ctx, query, p.OwnerName, p.DisplayCurrency, p.DeviceID); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}
