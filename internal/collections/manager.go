// Package collections implements atomic, all-or-nothing reorganization of
// named item groups: create, rename, delete, and moving items between
// groups. It operates purely against the local store; sync picks up the
// committed rows afterwards.
package collections

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dkomarov/curio/internal/common"
	"github.com/dkomarov/curio/internal/dbx"
	"github.com/dkomarov/curio/internal/logging"
	"github.com/dkomarov/curio/internal/models"
	colrepo "github.com/dkomarov/curio/internal/repositories/collections"
	imgrepo "github.com/dkomarov/curio/internal/repositories/images"
	itemrepo "github.com/dkomarov/curio/internal/repositories/items"
	"github.com/dkomarov/curio/internal/store"
)

// Manager performs collection reorganization against the local store.
type Manager struct {
	store *store.Store
	log   logging.Logger
}

// NewManager returns a Manager bound to the given store.
func NewManager(s *store.Store, log logging.Logger) *Manager {
	if log == nil {
		log = logging.Default()
	}
	return &Manager{store: s, log: log}
}

// validateName rejects invalid collection names synchronously, before any
// transaction starts.
func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("collection name must not be empty: %w", common.ErrInvalidCollectionOperation)
	}
	if common.IsReservedCollection(name) {
		return "", fmt.Errorf("%q is reserved: %w", name, common.ErrInvalidCollectionOperation)
	}
	return name, nil
}

// Create persists a new, empty collection.
func (m *Manager) Create(ctx context.Context, name string) error {
	name, err := validateName(name)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	err = m.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return colrepo.NewSQLiteRepository(tx).Create(ctx, &models.Collection{
			Name:      name,
			CreatedAt: now,
			UpdatedAt: now,
		})
	})
	if err != nil {
		return err
	}

	m.store.NotifyDirty(models.KindCollection, name)
	m.store.PublishCollectionChange(store.CollectionEvent{Type: store.CollectionCreated, Name: name})
	return nil
}

// Rename changes a collection's key. Member item identifiers are unchanged;
// their membership column is repointed in the same transaction, so no reader
// ever observes a half-renamed state.
func (m *Manager) Rename(ctx context.Context, oldName, newName string) error {
	newName, err := validateName(newName)
	if err != nil {
		return err
	}
	if newName == oldName {
		return nil
	}

	now := time.Now().UTC().UnixMilli()
	err = m.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := colrepo.NewSQLiteRepository(tx).GetByName(ctx, newName); err == nil {
			return fmt.Errorf("collection %q already exists: %w", newName, common.ErrInvalidCollectionOperation)
		} else if !errors.Is(err, common.ErrNotFound) {
			return err
		}
		if err := colrepo.NewSQLiteRepository(tx).Rename(ctx, oldName, newName, now); err != nil {
			return err
		}
		return itemrepo.NewSQLiteRepository(tx).ReassignCollection(ctx, oldName, newName, now)
	})
	if err != nil {
		return err
	}

	m.store.NotifyDirty(models.KindCollection, oldName)
	m.store.NotifyDirty(models.KindCollection, newName)
	m.store.PublishCollectionChange(store.CollectionEvent{
		Type:    store.CollectionRenamed,
		Name:    newName,
		OldName: oldName,
	})
	return nil
}

// DeleteOptions controls what happens to a deleted collection's members.
type DeleteOptions struct {
	// DiscardItems deletes member items (and their images) along with the
	// collection. When false, members move to ReassignTo.
	DiscardItems bool

	// ReassignTo names the destination for surviving members. Empty means
	// the default collection.
	ReassignTo string
}

// Delete removes a collection. The last collection system-wide cannot be
// deleted. Members are never orphaned: they are either reassigned or
// explicitly discarded, and open views are told once the delete commits.
func (m *Manager) Delete(ctx context.Context, name string, opts DeleteOptions) error {
	name, err := validateName(name)
	if err != nil {
		return err
	}

	target := strings.TrimSpace(opts.ReassignTo)
	if target == "" {
		target = common.DefaultCollection
	}
	if !opts.DiscardItems && target == name {
		return fmt.Errorf("cannot reassign items to the collection being deleted: %w", common.ErrInvalidCollectionOperation)
	}

	// Synchronous pre-checks, before any transaction.
	n, err := m.store.ListCollections(ctx)
	if err != nil {
		return err
	}
	if len(n) <= 1 {
		return fmt.Errorf("cannot delete the last collection: %w", common.ErrInvalidCollectionOperation)
	}

	members, err := m.store.ListItemsByCollection(ctx, name)
	if err != nil {
		return err
	}

	var discarded []string
	if opts.DiscardItems && len(members) > 0 {
		discarded = make([]string, 0, len(members))
		for _, it := range members {
			discarded = append(discarded, it.ID)
		}
	}

	now := time.Now().UTC()
	err = m.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		itemR := itemrepo.NewSQLiteRepository(tx)
		colR := colrepo.NewSQLiteRepository(tx)

		if opts.DiscardItems {
			imgR := imgrepo.NewSQLiteRepository(tx)
			for _, it := range members {
				if err := itemR.SoftDelete(ctx, it.ID, now.UnixMilli()); err != nil {
					return err
				}
				if err := imgR.DeleteByItemID(ctx, it.ID); err != nil {
					return err
				}
			}
		} else if len(members) > 0 {
			if _, err := colR.GetByName(ctx, target); err != nil {
				if !errors.Is(err, common.ErrNotFound) {
					return err
				}
				if err := colR.Create(ctx, &models.Collection{Name: target, CreatedAt: now, UpdatedAt: now}); err != nil {
					return err
				}
			}
			if err := itemR.ReassignCollection(ctx, name, target, now.UnixMilli()); err != nil {
				return err
			}
		}

		return colR.SoftDelete(ctx, name, now.UnixMilli())
	})
	if err != nil {
		return err
	}

	if len(discarded) > 0 {
		// Open detail views release their handles once the rows are gone.
		m.store.PublishInvalidation(discarded)
	}
	m.store.NotifyDirty(models.KindCollection, name)
	m.store.PublishCollectionChange(store.CollectionEvent{Type: store.CollectionDeleted, Name: name})
	return nil
}

// MoveItem moves one item between collections inside a single transaction.
// The caller's notion of the source collection may be stale by the time the
// move executes; the item's actual membership wins, so a move never drops an
// item on the floor. A missing destination is created in the same commit.
func (m *Manager) MoveItem(ctx context.Context, itemID, from, to string) error {
	to, err := validateName(to)
	if err != nil {
		return err
	}

	var created bool
	now := time.Now().UTC()
	err = m.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		itemR := itemrepo.NewSQLiteRepository(tx)

		item, err := itemR.GetByID(ctx, itemID)
		if err != nil {
			return err
		}
		if item.CollectionName != from {
			m.log.Warn(ctx, "stale move source, using actual membership",
				"item", itemID, "declared", from, "actual", item.CollectionName)
		}
		if item.CollectionName == to {
			return nil
		}

		colR := colrepo.NewSQLiteRepository(tx)
		if _, err := colR.GetByName(ctx, to); err != nil {
			if !errors.Is(err, common.ErrNotFound) {
				return err
			}
			if err := colR.Create(ctx, &models.Collection{Name: to, CreatedAt: now, UpdatedAt: now}); err != nil {
				return err
			}
			created = true
		}

		return itemR.SetCollection(ctx, itemID, to, now.UnixMilli())
	})
	if err != nil {
		return err
	}

	m.store.NotifyDirty(models.KindItem, itemID)
	if created {
		m.store.NotifyDirty(models.KindCollection, to)
		m.store.PublishCollectionChange(store.CollectionEvent{Type: store.CollectionCreated, Name: to})
	}
	return nil
}
