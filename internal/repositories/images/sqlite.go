package images

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dkomarov/curio/internal/common"
	"github.com/dkomarov/curio/internal/dbx"
	"github.com/dkomarov/curio/internal/models"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreateOrUpdate upserts the image payload for an item.
func (r *SQLiteRepository) CreateOrUpdate(ctx context.Context, rec *models.ImageRecord) error {
	query := `INSERT INTO images (item_id, data, remote_url, storage_key, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			data = excluded.data,
			remote_url = excluded.remote_url,
			storage_key = excluded.storage_key,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ItemID, rec.Data, rec.RemoteURL, rec.StorageKey, rec.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert image: %w", err)
	}
	return nil
}

// GetByItemID returns the image payload for an item.
func (r *SQLiteRepository) GetByItemID(ctx context.Context, itemID string) (*models.ImageRecord, error) {
	query := `SELECT item_id, data, remote_url, storage_key, updated_at FROM images WHERE item_id=?`
	row := r.db.QueryRowContext(ctx, query, itemID)

	var (
		rec       models.ImageRecord
		updatedAt int64
	)
	err := row.Scan(&rec.ItemID, &rec.Data, &rec.RemoteURL, &rec.StorageKey, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}
	rec.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &rec, nil
}

// ListLocalOnly returns images whose payload has never been uploaded,
// for example because they were saved while object storage was unconfigured.
func (r *SQLiteRepository) ListLocalOnly(ctx context.Context) ([]*models.ImageRecord, error) {
	query := `SELECT item_id, data, remote_url, storage_key, updated_at FROM images WHERE storage_key=''`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select local-only images: %w", err)
	}
	defer rows.Close()

	var result []*models.ImageRecord
	for rows.Next() {
		var (
			rec       models.ImageRecord
			updatedAt int64
		)
		if err := rows.Scan(&rec.ItemID, &rec.Data, &rec.RemoteURL, &rec.StorageKey, &updatedAt); err != nil {
			return nil, err
		}
		rec.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		result = append(result, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SetRemote records the uploaded location for an existing image row.
func (r *SQLiteRepository) SetRemote(ctx context.Context, itemID, remoteURL, storageKey string, updatedAtMillis int64) error {
	query := `UPDATE images SET remote_url=?, storage_key=?, updated_at=? WHERE item_id=?`
	res, err := r.db.ExecContext(ctx, query, remoteURL, storageKey, updatedAtMillis, itemID)
	if err != nil {
		return fmt.Errorf("failed to set remote url: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrNotFound
	}
	return nil
}

// DeleteByItemID removes an item's image. Deleting a missing image is a
// no-op: the owning item may never have had one.
func (r *SQLiteRepository) DeleteByItemID(ctx context.Context, itemID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM images WHERE item_id=?`, itemID); err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}
