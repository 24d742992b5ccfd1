// Package images manages the lifecycle of transient image handles and the
// stage/commit/discard flow for binary payloads. Every acquired handle is
// revoked exactly once; a staged payload never touches durable state until
// its commit succeeds.
package images

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dkomarov/curio/internal/common"
	"github.com/dkomarov/curio/internal/logging"
	"github.com/dkomarov/curio/internal/models"
	"github.com/dkomarov/curio/internal/store"
)

// Pending is an in-memory staged image: a preview that only becomes durable
// when committed. At most one pending payload exists per item.
type Pending struct {
	id       string
	itemID   string
	data     []byte
	stagedAt time.Time
}

// ItemID returns the item this staged payload belongs to.
func (p *Pending) ItemID() string { return p.itemID }

// Bytes returns the staged payload for previewing.
func (p *Pending) Bytes() []byte { return p.data }

// Manager tracks outstanding handles per item and drives the
// stage/commit/discard image flow. A nil uploader keeps images local-only.
type Manager struct {
	store    *store.Store
	uploader Uploader
	log      logging.Logger

	mu      sync.Mutex
	handles map[string]map[string]*Handle // itemID -> handleID -> handle
	pending map[string]*Pending           // itemID -> staged payload
}

// NewManager returns an image lifecycle manager bound to the given store.
func NewManager(s *store.Store, uploader Uploader, log logging.Logger) *Manager {
	if log == nil {
		log = logging.Default()
	}
	return &Manager{
		store:    s,
		uploader: uploader,
		log:      log,
		handles:  make(map[string]map[string]*Handle),
		pending:  make(map[string]*Pending),
	}
}

// Acquire returns a live handle for an item's image, preferring the remote
// location over holding the local blob alive. common.ErrNotFound means the
// item has no image.
func (m *Manager) Acquire(ctx context.Context, itemID string) (*Handle, error) {
	rec, err := m.store.GetImage(ctx, itemID)
	if err != nil {
		return nil, err
	}

	h := &Handle{
		id:        uuid.NewString(),
		itemID:    itemID,
		createdAt: time.Now().UTC(),
	}

	if rec.StorageKey != "" && m.uploader != nil {
		url, err := m.uploader.PresignGet(ctx, rec.StorageKey)
		if err != nil {
			m.log.Warn(ctx, "presign failed, falling back to stored location", "item", itemID, "error", err)
		} else {
			h.url = url
		}
	}
	if h.url == "" {
		h.url = rec.RemoteURL
	}
	if h.url == "" {
		h.data = rec.Data
	}

	if h.url == "" && h.data == nil {
		return nil, common.ErrNotFound
	}

	m.mu.Lock()
	if m.handles[itemID] == nil {
		m.handles[itemID] = make(map[string]*Handle)
	}
	m.handles[itemID][h.id] = h
	m.mu.Unlock()

	return h, nil
}

// Release revokes a handle. Releasing an already-released handle is a no-op,
// tolerating unmount races; it is still logged so leaks in the pairing
// discipline show up during development.
func (m *Manager) Release(h *Handle) {
	if h == nil {
		return
	}
	if !h.revoke() {
		m.log.Debug(context.Background(), "double release ignored", "item", h.itemID)
		return
	}

	m.mu.Lock()
	if byItem, ok := m.handles[h.itemID]; ok {
		delete(byItem, h.id)
		if len(byItem) == 0 {
			delete(m.handles, h.itemID)
		}
	}
	m.mu.Unlock()
}

// Outstanding returns the number of live handles for an item.
func (m *Manager) Outstanding(itemID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles[itemID])
}

// Stage registers an in-memory payload for an item. The durable record is
// untouched until Commit: a failed upload leaves prior state intact.
// Staging again for the same item replaces the earlier pending payload.
func (m *Manager) Stage(itemID string, data []byte) (*Pending, error) {
	if itemID == "" {
		return nil, errors.New("item id must not be empty")
	}
	if len(data) == 0 {
		return nil, errors.New("image payload must not be empty")
	}

	p := &Pending{
		id:       uuid.NewString(),
		itemID:   itemID,
		data:     data,
		stagedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.pending[itemID] = p
	m.mu.Unlock()

	return p, nil
}

// Commit uploads the staged payload and persists the durable image record
// in one transaction. Any failure surfaces as common.ErrImageCommitFailed
// with zero durable change, so the enclosing item save can abort cleanly.
func (m *Manager) Commit(ctx context.Context, p *Pending) (*models.ImageRecord, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nothing staged", common.ErrImageCommitFailed)
	}

	m.mu.Lock()
	current, ok := m.pending[p.itemID]
	m.mu.Unlock()
	if !ok || current.id != p.id {
		return nil, fmt.Errorf("%w: staged payload superseded or discarded", common.ErrImageCommitFailed)
	}

	rec := &models.ImageRecord{
		ItemID: p.itemID,
		Data:   p.data,
	}

	if m.uploader != nil {
		key := NewStorageKey()
		if err := m.uploader.Upload(ctx, key, p.data); err != nil {
			return nil, fmt.Errorf("%w: upload: %v", common.ErrImageCommitFailed, err)
		}
		url, err := m.uploader.PresignGet(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("%w: presign: %v", common.ErrImageCommitFailed, err)
		}
		rec.StorageKey = key
		rec.RemoteURL = url
	}

	if err := m.store.PutImage(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: persist: %v", common.ErrImageCommitFailed, err)
	}

	m.mu.Lock()
	if cur, ok := m.pending[p.itemID]; ok && cur.id == p.id {
		delete(m.pending, p.itemID)
	}
	m.mu.Unlock()

	return rec, nil
}

// Discard drops a staged payload without touching durable state.
func (m *Manager) Discard(p *Pending) {
	if p == nil {
		return
	}
	m.mu.Lock()
	if cur, ok := m.pending[p.itemID]; ok && cur.id == p.id {
		delete(m.pending, p.itemID)
	}
	m.mu.Unlock()
}

// BackfillRemotes uploads images that only exist locally, typically because
// they were committed while no uploader was configured. Individual failures
// are logged and skipped; the payloads stay local until the next attempt.
func (m *Manager) BackfillRemotes(ctx context.Context) error {
	if m.uploader == nil {
		return nil
	}

	recs, err := m.store.ListLocalOnlyImages(ctx)
	if err != nil {
		return err
	}

	for _, rec := range recs {
		key := NewStorageKey()
		if err := m.uploader.Upload(ctx, key, rec.Data); err != nil {
			m.log.Warn(ctx, "image backfill upload failed", "item", rec.ItemID, "error", err)
			continue
		}
		url, err := m.uploader.PresignGet(ctx, key)
		if err != nil {
			m.log.Warn(ctx, "image backfill presign failed", "item", rec.ItemID, "error", err)
			continue
		}
		if err := m.store.SetImageRemote(ctx, rec.ItemID, url, key); err != nil {
			m.log.Warn(ctx, "image backfill persist failed", "item", rec.ItemID, "error", err)
		}
	}
	return nil
}

// InvalidateItems force-releases all outstanding handles for the given
// items. Used when their backing data is about to disappear.
func (m *Manager) InvalidateItems(ids []string) {
	m.mu.Lock()
	var toRevoke []*Handle
	for _, id := range ids {
		for _, h := range m.handles[id] {
			toRevoke = append(toRevoke, h)
		}
		delete(m.handles, id)
		delete(m.pending, id)
	}
	m.mu.Unlock()

	for _, h := range toRevoke {
		h.revoke()
	}
}

// Watch consumes the store's invalidation broadcast until ctx is done,
// force-releasing handles for items whose data is going away.
func (m *Manager) Watch(ctx context.Context) {
	ch, cancel := m.store.SubscribeInvalidations()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ids, ok := <-ch:
			if !ok {
				return
			}
			m.InvalidateItems(ids)
		}
	}
}
