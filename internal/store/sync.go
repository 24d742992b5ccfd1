package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dkomarov/curio/internal/models"
)

// The methods in this file are the sync coordinator's view of the store:
// dirty-row listing, conditional flag clearing, last-write-wins application
// of remote documents, and the change-feed cursor.

// ListDirtyItems returns items awaiting a shadow write, tombstones included.
func (s *Store) ListDirtyItems(ctx context.Context) ([]*models.Item, error) {
	return s.itemRepo().ListDirty(ctx)
}

// ListDirtyCollections returns collections awaiting a shadow write.
func (s *Store) ListDirtyCollections(ctx context.Context) ([]*models.Collection, error) {
	return s.collectionRepo().ListDirty(ctx)
}

// ClearDirtyItem unflags an item unless it changed since updatedAtMillis.
func (s *Store) ClearDirtyItem(ctx context.Context, id string, updatedAtMillis int64) error {
	return s.itemRepo().ClearDirty(ctx, id, updatedAtMillis)
}

// ClearDirtyCollection unflags a collection unless it changed since
// updatedAtMillis.
func (s *Store) ClearDirtyCollection(ctx context.Context, name string, updatedAtMillis int64) error {
	return s.collectionRepo().ClearDirty(ctx, name, updatedAtMillis)
}

// ApplyRemoteItem merges a remote item document using last-write-wins.
// The write stays clean, so it is not echoed back to the mirror. Open views
// are only invalidated when a tombstone actually wins the merge; a stale
// remote delete must not close a view of a newer local row.
func (s *Store) ApplyRemoteItem(ctx context.Context, item *models.Item) error {
	applied, err := s.itemRepo().ApplyRemote(ctx, item)
	if err != nil {
		return err
	}
	if applied && item.Deleted {
		s.subs.publishInvalidation([]string{item.ID})
	}
	return nil
}

// ApplyRemoteCollection merges a remote collection document using
// last-write-wins and notifies collection-set subscribers when the
// document wins.
func (s *Store) ApplyRemoteCollection(ctx context.Context, c *models.Collection) error {
	applied, err := s.collectionRepo().ApplyRemote(ctx, c)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	if c.Deleted {
		s.subs.publishCollection(CollectionEvent{Type: CollectionDeleted, Name: c.Name})
	} else {
		s.subs.publishCollection(CollectionEvent{Type: CollectionCreated, Name: c.Name})
	}
	return nil
}

// SyncCursor returns the persisted change-feed position, empty on first run.
func (s *Store) SyncCursor(ctx context.Context) (string, error) {
	var cursor string
	err := s.db.QueryRowContext(ctx, `SELECT cursor FROM sync_cursor WHERE id=1`).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		// No row yet: the feed starts from the beginning.
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read sync cursor: %w", err)
	}
	return cursor, nil
}

// SetSyncCursor persists the change-feed position.
func (s *Store) SetSyncCursor(ctx context.Context, cursor string) error {
	query := `INSERT INTO sync_cursor (id, cursor) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET cursor = excluded.cursor`
	if _, err := s.db.ExecContext(ctx, query, cursor); err != nil {
		return fmt.Errorf("failed to save sync cursor: %w", err)
	}
	return nil
}
