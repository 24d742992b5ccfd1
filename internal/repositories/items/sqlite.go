package items

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

const itemColumns = `id, name, set_name, year, condition, grade,
	acq_amount, acq_currency, acq_display_amount, acq_display_currency,
	val_amount, val_currency, val_display_amount, val_display_currency,
	has_image, collection_name, updated_at, deleted`

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func scanItem(scan func(dest ...any) error) (*models.Item, error) {
	var (
		it        models.Item
		hasImage  int
		deleted   int
		updatedAt int64
	)
	err := scan(&it.ID, &it.Name, &it.Set, &it.Year, &it.Condition, &it.Grade,
		&it.AcquisitionCost.Amount, &it.AcquisitionCost.Currency,
		&it.AcquisitionCost.DisplayAmount, &it.AcquisitionCost.DisplayCurrency,
		&it.CurrentValue.Amount, &it.CurrentValue.Currency,
		&it.CurrentValue.DisplayAmount, &it.CurrentValue.DisplayCurrency,
		&hasImage, &it.CollectionName, &updatedAt, &deleted)
	if err != nil {
		return nil, err
	}
	it.HasImage = hasImage != 0
	it.Deleted = deleted != 0
	it.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &it, nil
}

func upsertArgs(e *models.Item) []any {
	return []any{
		e.ID, e.Name, e.Set, e.Year, e.Condition, e.Grade,
		e.AcquisitionCost.Amount, e.AcquisitionCost.Currency,
		e.AcquisitionCost.DisplayAmount, e.AcquisitionCost.DisplayCurrency,
		e.CurrentValue.Amount, e.CurrentValue.Currency,
		e.CurrentValue.DisplayAmount, e.CurrentValue.DisplayCurrency,
		e.HasImage, e.CollectionName, e.UpdatedAt.UnixMilli(), e.Deleted,
	}
}

// CreateOrUpdate upserts an item by id and flags the row dirty for the sync
// coordinator. On conflict all mutable columns are replaced.
func (r *SQLiteRepository) CreateOrUpdate(ctx context.Context, e *models.Item) error {
	query := `INSERT INTO items (` + itemColumns + `, dirty)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			set_name = excluded.set_name,
			year = excluded.year,
			condition = excluded.condition,
			grade = excluded.grade,
			acq_amount = excluded.acq_amount,
			acq_currency = excluded.acq_currency,
			acq_display_amount = excluded.acq_display_amount,
			acq_display_currency = excluded.acq_display_currency,
			val_amount = excluded.val_amount,
			val_currency = excluded.val_currency,
			val_display_amount = excluded.val_display_amount,
			val_display_currency = excluded.val_display_currency,
			has_image = excluded.has_image,
			collection_name = excluded.collection_name,
			updated_at = excluded.updated_at,
			deleted = excluded.deleted,
			dirty = 1
	`
	if _, err := r.db.ExecContext(ctx, query, upsertArgs(e)...); err != nil {
		return fmt.Errorf("failed to upsert item: %w", err)
	}
	return nil
}

// ApplyRemote upserts a remote document with last-write-wins semantics:
// an existing row is only replaced when the incoming updated_at is strictly
// newer. The row stays clean so the merge does not echo back out. The bool
// reports whether the document won, so callers only react to real changes.
func (r *SQLiteRepository) ApplyRemote(ctx context.Context, e *models.Item) (bool, error) {
	query := `INSERT INTO items (` + itemColumns + `, dirty)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			set_name = excluded.set_name,
			year = excluded.year,
			condition = excluded.condition,
			grade = excluded.grade,
			acq_amount = excluded.acq_amount,
			acq_currency = excluded.acq_currency,
			acq_display_amount = excluded.acq_display_amount,
			acq_display_currency = excluded.acq_display_currency,
			val_amount = excluded.val_amount,
			val_currency = excluded.val_currency,
			val_display_amount = excluded.val_display_amount,
			val_display_currency = excluded.val_display_currency,
			has_image = excluded.has_image,
			collection_name = excluded.collection_name,
			updated_at = excluded.updated_at,
			deleted = excluded.deleted,
			dirty = 0
		WHERE excluded.updated_at > items.updated_at
	`
	res, err := r.db.ExecContext(ctx, query, upsertArgs(e)...)
	if err != nil {
		return false, fmt.Errorf("failed to apply remote item: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return ra == 1, nil
}

// GetByID returns a single non-deleted item.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE deleted=0 AND id=?`
	row := r.db.QueryRowContext(ctx, query, id)

	it, err := scanItem(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return it, nil
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]*models.Item, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select items: %w", err)
	}
	defer rows.Close()

	var result []*models.Item
	for rows.Next() {
		it, err := scanItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListByCollection lists all non-deleted items belonging to one collection.
func (r *SQLiteRepository) ListByCollection(ctx context.Context, collection string) ([]*models.Item, error) {
	return r.list(ctx, `SELECT `+itemColumns+` FROM items WHERE deleted=0 AND collection_name=?`, collection)
}

// ListAll lists every non-deleted item regardless of collection.
func (r *SQLiteRepository) ListAll(ctx context.Context) ([]*models.Item, error) {
	return r.list(ctx, `SELECT `+itemColumns+` FROM items WHERE deleted=0`)
}

// SetCollection repoints one item's membership. Missing or deleted items
// surface as common.ErrNotFound.
func (r *SQLiteRepository) SetCollection(ctx context.Context, id, collection string, updatedAtMillis int64) error {
	query := `UPDATE items SET collection_name=?, updated_at=?, dirty=1 WHERE id=? AND deleted=0`
	res, err := r.db.ExecContext(ctx, query, collection, updatedAtMillis, id)
	if err != nil {
		return fmt.Errorf("failed to move item: %w", err)
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

// ReassignCollection bulk-moves every member of from into to. Zero members
// is not an error: empty collections are legal.
func (r *SQLiteRepository) ReassignCollection(ctx context.Context, from, to string, updatedAtMillis int64) error {
	query := `UPDATE items SET collection_name=?, updated_at=?, dirty=1 WHERE collection_name=? AND deleted=0`
	if _, err := r.db.ExecContext(ctx, query, to, updatedAtMillis, from); err != nil {
		return fmt.Errorf("failed to reassign items: %w", err)
	}
	return nil
}

// SoftDelete marks an item as a tombstone so the deletion syncs out.
func (r *SQLiteRepository) SoftDelete(ctx context.Context, id string, updatedAtMillis int64) error {
	query := `UPDATE items SET deleted=1, updated_at=?, dirty=1 WHERE id=? AND deleted=0`
	res, err := r.db.ExecContext(ctx, query, updatedAtMillis, id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
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

// ListDirty returns rows awaiting a shadow write, tombstones included.
func (r *SQLiteRepository) ListDirty(ctx context.Context) ([]*models.Item, error) {
	return r.list(ctx, `SELECT `+itemColumns+` FROM items WHERE dirty=1`)
}

// ClearDirty unflags a row, but only if it still carries the updated_at the
// shadow write was built from. A newer local mutation keeps the flag.
func (r *SQLiteRepository) ClearDirty(ctx context.Context, id string, updatedAtMillis int64) error {
	query := `UPDATE items SET dirty=0 WHERE id=? AND updated_at=?`
	if _, err := r.db.ExecContext(ctx, query, id, updatedAtMillis); err != nil {
		return fmt.Errorf("failed to clear dirty flag: %w", err)
	}
	return nil
}
