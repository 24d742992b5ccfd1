package collections

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

// Create inserts a new collection row. A live duplicate surfaces as
// common.ErrInvalidCollectionOperation; a tombstoned row is revived.
func (r *SQLiteRepository) Create(ctx context.Context, c *models.Collection) error {
	query := `INSERT INTO collections (name, created_at, updated_at, deleted, dirty)
		VALUES (?, ?, ?, 0, 1)
		ON CONFLICT(name) DO UPDATE SET
			updated_at = excluded.updated_at,
			deleted = 0,
			dirty = 1
		WHERE collections.deleted = 1
	`
	res, err := r.db.ExecContext(ctx, query, c.Name, c.CreatedAt.UnixMilli(), c.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return fmt.Errorf("collection %q already exists: %w", c.Name, common.ErrInvalidCollectionOperation)
	}
	return nil
}

// ApplyRemote upserts a remote collection document, replacing the local row
// only when strictly newer. The row stays clean. The bool reports whether
// the document won.
func (r *SQLiteRepository) ApplyRemote(ctx context.Context, c *models.Collection) (bool, error) {
	query := `INSERT INTO collections (name, created_at, updated_at, deleted, dirty)
		VALUES (?, ?, ?, ?, 0)
		ON CONFLICT(name) DO UPDATE SET
			updated_at = excluded.updated_at,
			deleted = excluded.deleted,
			dirty = 0
		WHERE excluded.updated_at > collections.updated_at
	`
	res, err := r.db.ExecContext(ctx, query, c.Name, c.CreatedAt.UnixMilli(), c.UpdatedAt.UnixMilli(), c.Deleted)
	if err != nil {
		return false, fmt.Errorf("failed to apply remote collection: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return ra == 1, nil
}

// GetByName returns a single live collection.
func (r *SQLiteRepository) GetByName(ctx context.Context, name string) (*models.Collection, error) {
	query := `SELECT name, created_at, updated_at FROM collections WHERE deleted=0 AND name=?`
	row := r.db.QueryRowContext(ctx, query, name)

	c, err := scanCollection(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	return c, nil
}

func scanCollection(scan func(dest ...any) error) (*models.Collection, error) {
	var (
		c         models.Collection
		createdAt int64
		updatedAt int64
	)
	if err := scan(&c.Name, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.CreatedAt = time.UnixMilli(createdAt).UTC()
	c.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &c, nil
}

// List returns all live collections ordered by creation time.
func (r *SQLiteRepository) List(ctx context.Context) ([]*models.Collection, error) {
	query := `SELECT name, created_at, updated_at FROM collections WHERE deleted=0 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select collections: %w", err)
	}
	defer rows.Close()

	var result []*models.Collection
	for rows.Next() {
		c, err := scanCollection(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Count returns the number of live collections.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM collections WHERE deleted=0`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count collections: %w", err)
	}
	return n, nil
}

// Rename inserts the new key (carrying over created_at) and tombstones the
// old one. A tombstoned row under the new name is revived; a live duplicate
// surfaces as common.ErrInvalidCollectionOperation. The caller repoints
// member items in the same transaction.
func (r *SQLiteRepository) Rename(ctx context.Context, oldName, newName string, updatedAtMillis int64) error {
	old, err := r.GetByName(ctx, oldName)
	if err != nil {
		return err
	}

	insert := `INSERT INTO collections (name, created_at, updated_at, deleted, dirty)
		VALUES (?, ?, ?, 0, 1)
		ON CONFLICT(name) DO UPDATE SET
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			deleted = 0,
			dirty = 1
		WHERE collections.deleted = 1
	`
	res, err := r.db.ExecContext(ctx, insert, newName, old.CreatedAt.UnixMilli(), updatedAtMillis)
	if err != nil {
		return fmt.Errorf("failed to insert renamed collection: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return fmt.Errorf("collection %q already exists: %w", newName, common.ErrInvalidCollectionOperation)
	}

	return r.SoftDelete(ctx, oldName, updatedAtMillis)
}

// SoftDelete tombstones a collection so the deletion syncs out.
func (r *SQLiteRepository) SoftDelete(ctx context.Context, name string, updatedAtMillis int64) error {
	query := `UPDATE collections SET deleted=1, updated_at=?, dirty=1 WHERE name=? AND deleted=0`
	res, err := r.db.ExecContext(ctx, query, updatedAtMillis, name)
	if err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
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

// ListDirty returns collections awaiting a shadow write, tombstones included.
func (r *SQLiteRepository) ListDirty(ctx context.Context) ([]*models.Collection, error) {
	query := `SELECT name, created_at, updated_at, deleted FROM collections WHERE dirty=1`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select dirty collections: %w", err)
	}
	defer rows.Close()

	var result []*models.Collection
	for rows.Next() {
		var (
			c         models.Collection
			createdAt int64
			updatedAt int64
			deleted   int
		)
		if err := rows.Scan(&c.Name, &createdAt, &updatedAt, &deleted); err != nil {
			return nil, err
		}
		c.CreatedAt = time.UnixMilli(createdAt).UTC()
		c.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		c.Deleted = deleted != 0
		result = append(result, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ClearDirty unflags a row unless it was mutated again since the shadow
// write was built.
func (r *SQLiteRepository) ClearDirty(ctx context.Context, name string, updatedAtMillis int64) error {
	query := `UPDATE collections SET dirty=0 WHERE name=? AND updated_at=?`
	if _, err := r.db.ExecContext(ctx, query, name, updatedAtMillis); err != nil {
		return fmt.Errorf("failed to clear dirty flag: %w", err)
	}
	return nil
}
