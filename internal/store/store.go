// Package store implements the local-first persistence layer: a durable,
// transactional SQLite database that owns the canonical on-device state of
// collections, items, images, invoices, and the profile record. Reads never
// touch the network; the sync coordinator mirrors state out asynchronously.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dkomarov/curio/internal/common"
	"github.com/dkomarov/curio/internal/dbx"
	"github.com/dkomarov/curio/internal/logging"
	"github.com/dkomarov/curio/internal/models"
	"github.com/dkomarov/curio/internal/repositories/collections"
	"github.com/dkomarov/curio/internal/repositories/images"
	"github.com/dkomarov/curio/internal/repositories/invoices"
	"github.com/dkomarov/curio/internal/repositories/items"
	"github.com/dkomarov/curio/internal/repositories/profile"
	"github.com/dkomarov/curio/internal/store/migrations"
)

// DirtyHook is invoked after a local mutation commits, telling the sync
// coordinator which identifier needs a shadow write.
type DirtyHook func(kind models.Kind, id string)

// Store is the single shared mutable resource of the system. All durable
// mutation goes through its transactional API.
type Store struct {
	db  *sql.DB
	log logging.Logger

	hookMu    sync.RWMutex
	dirtyHook DirtyHook

	subs subscribers

	fallback bool
}

// Open opens (or creates) the database at path, runs migrations, and seeds
// the default collection on first run. Opening is idempotent: existing state
// is preserved.
func Open(ctx context.Context, path string, log logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
	}
	// modernc sqlite misbehaves with concurrent writers on one file.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, log: log}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info(ctx, "store opened", "path", path)
	return s, nil
}

// OpenWithFallback opens the database at path, and on failure degrades to an
// in-memory store holding a single empty default collection. The returned
// error wraps common.ErrStorageUnavailable in the degraded case while the
// store remains usable: availability over purity.
func OpenWithFallback(ctx context.Context, path string, log logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.Default()
	}

	s, err := Open(ctx, path, log)
	if err == nil {
		return s, nil
	}

	log.Warn(ctx, "durable store unavailable, starting fresh in memory", "path", path, "error", err)

	mem, memErr := Open(ctx, ":memory:", log)
	if memErr != nil {
		return nil, memErr
	}
	mem.fallback = true
	return mem, fmt.Errorf("%w: degraded to in-memory state", common.ErrStorageUnavailable)
}

func (s *Store) init(ctx context.Context) error {
	if err := s.runMigrations(ctx); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
	}
	if err := s.ensureDefaultCollection(ctx); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *Store) runMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, s.db, ".")
}

func (s *Store) ensureDefaultCollection(ctx context.Context) error {
	repo := collections.NewSQLiteRepository(s.db)
	n, err := repo.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	now := time.Now().UTC()
	return repo.Create(ctx, &models.Collection{
		Name:      common.DefaultCollection,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// Fallback reports whether the store is running on the in-memory default
// state after a failed durable open.
func (s *Store) Fallback() bool { return s.fallback }

// Close closes the underlying database.
func (s *Store) Close() error {
	s.subs.closeAll()
	return s.db.Close()
}

// WithTx runs fn inside a single all-or-nothing transaction. Repositories
// constructed on the passed handle see and produce uncommitted state until
// fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	return dbx.WithTx(ctx, s.db, nil, fn)
}

// SetDirtyHook installs the sync coordinator's notification callback.
// A nil hook disables notifications (sync toggle off).
func (s *Store) SetDirtyHook(hook DirtyHook) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.dirtyHook = hook
}

// NotifyDirty reports a committed local mutation to the sync coordinator.
func (s *Store) NotifyDirty(kind models.Kind, id string) {
	s.hookMu.RLock()
	hook := s.dirtyHook
	s.hookMu.RUnlock()
	if hook != nil {
		hook(kind, id)
	}
}

// itemRepo and friends bind repositories to the store's plain handle.
func (s *Store) itemRepo() items.Repository             { return items.NewSQLiteRepository(s.db) }
func (s *Store) collectionRepo() collections.Repository { return collections.NewSQLiteRepository(s.db) }
func (s *Store) imageRepo() images.Repository           { return images.NewSQLiteRepository(s.db) }
func (s *Store) invoiceRepo() invoices.Repository       { return invoices.NewSQLiteRepository(s.db) }
func (s *Store) profileRepo() profile.Repository        { return profile.NewSQLiteRepository(s.db) }

// SaveItem validates and upserts an item, creating its collection in the
// same transaction when it does not exist yet. The mutation is flagged for
// sync after commit.
func (s *Store) SaveItem(ctx context.Context, item *models.Item) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if err := item.Validate(); err != nil {
		return err
	}
	item.UpdatedAt = time.Now().UTC()

	var collectionCreated bool
	err := s.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		colRepo := collections.NewSQLiteRepository(tx)
		if _, err := colRepo.GetByName(ctx, item.CollectionName); err != nil {
			if !errors.Is(err, common.ErrNotFound) {
				return err
			}
			if err := colRepo.Create(ctx, &models.Collection{
				Name:      item.CollectionName,
				CreatedAt: item.UpdatedAt,
				UpdatedAt: item.UpdatedAt,
			}); err != nil {
				return err
			}
			collectionCreated = true
		}
		return items.NewSQLiteRepository(tx).CreateOrUpdate(ctx, item)
	})
	if err != nil {
		return err
	}

	s.NotifyDirty(models.KindItem, item.ID)
	if collectionCreated {
		s.NotifyDirty(models.KindCollection, item.CollectionName)
		s.subs.publishCollection(CollectionEvent{Type: CollectionCreated, Name: item.CollectionName})
	}
	return nil
}

// GetItem returns a single item by id.
func (s *Store) GetItem(ctx context.Context, id string) (*models.Item, error) {
	return s.itemRepo().GetByID(ctx, id)
}

// ListItemsByCollection lists a collection's items. The reserved virtual
// name returns the union of every collection.
func (s *Store) ListItemsByCollection(ctx context.Context, collection string) ([]*models.Item, error) {
	if common.IsReservedCollection(collection) {
		return s.itemRepo().ListAll(ctx)
	}
	return s.itemRepo().ListByCollection(ctx, collection)
}

// ListCollections lists all live collections.
func (s *Store) ListCollections(ctx context.Context) ([]*models.Collection, error) {
	return s.collectionRepo().List(ctx)
}

// DeleteItem tombstones an item and removes its image in one transaction.
// Open views are told to drop their handles once the delete has committed;
// a rolled-back delete must not close anything.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	now := time.Now().UTC()
	err := s.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := items.NewSQLiteRepository(tx).SoftDelete(ctx, id, now.UnixMilli()); err != nil {
			return err
		}
		return images.NewSQLiteRepository(tx).DeleteByItemID(ctx, id)
	})
	if err != nil {
		return err
	}

	s.subs.publishInvalidation([]string{id})
	s.NotifyDirty(models.KindItem, id)
	return nil
}

// GetImage returns an item's image payload.
func (s *Store) GetImage(ctx context.Context, itemID string) (*models.ImageRecord, error) {
	return s.imageRepo().GetByItemID(ctx, itemID)
}

// PutImage persists an image payload and flips the owning item's has_image
// flag in the same transaction.
func (s *Store) PutImage(ctx context.Context, rec *models.ImageRecord) error {
	rec.UpdatedAt = time.Now().UTC()

	err := s.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := images.NewSQLiteRepository(tx).CreateOrUpdate(ctx, rec); err != nil {
			return err
		}
		itemRepo := items.NewSQLiteRepository(tx)
		item, err := itemRepo.GetByID(ctx, rec.ItemID)
		if err != nil {
			return err
		}
		if item.HasImage {
			return nil
		}
		item.HasImage = true
		item.UpdatedAt = rec.UpdatedAt
		return itemRepo.CreateOrUpdate(ctx, item)
	})
	if err != nil {
		return err
	}

	s.NotifyDirty(models.KindItem, rec.ItemID)
	return nil
}

// ListLocalOnlyImages returns image rows that were never uploaded to object
// storage, for the startup backfill.
func (s *Store) ListLocalOnlyImages(ctx context.Context) ([]*models.ImageRecord, error) {
	return s.imageRepo().ListLocalOnly(ctx)
}

// SetImageRemote records where an image payload was uploaded.
func (s *Store) SetImageRemote(ctx context.Context, itemID, remoteURL, storageKey string) error {
	return s.imageRepo().SetRemote(ctx, itemID, remoteURL, storageKey, time.Now().UTC().UnixMilli())
}

// DeleteImage removes an item's image payload.
func (s *Store) DeleteImage(ctx context.Context, itemID string) error {
	return s.imageRepo().DeleteByItemID(ctx, itemID)
}

// CreateInvoice persists a fresh invoice snapshot.
func (s *Store) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	inv.CreatedAt = time.Now().UTC()
	return s.invoiceRepo().Insert(ctx, inv)
}

// ReplaceInvoice re-snapshots an existing invoice (the explicit edit flow).
func (s *Store) ReplaceInvoice(ctx context.Context, inv *models.Invoice) error {
	return s.invoiceRepo().Replace(ctx, inv)
}

// GetInvoice returns a single invoice.
func (s *Store) GetInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	return s.invoiceRepo().GetByID(ctx, id)
}

// ListInvoices returns all invoices, newest first.
func (s *Store) ListInvoices(ctx context.Context) ([]*models.Invoice, error) {
	return s.invoiceRepo().List(ctx)
}

// DeleteInvoice removes an invoice.
func (s *Store) DeleteInvoice(ctx context.Context, id string) error {
	return s.invoiceRepo().Delete(ctx, id)
}

// GetProfile returns the profile singleton, creating it with a fresh device
// id on first access.
func (s *Store) GetProfile(ctx context.Context) (*models.Profile, error) {
	p, err := s.profileRepo().Get(ctx)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	p = &models.Profile{DisplayCurrency: "USD", DeviceID: uuid.NewString()}
	if err := s.profileRepo().Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// SaveProfile upserts the profile singleton.
func (s *Store) SaveProfile(ctx context.Context, p *models.Profile) error {
	return s.profileRepo().Save(ctx, p)
}
