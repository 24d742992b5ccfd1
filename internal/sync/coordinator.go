// Package sync implements the shadow-synchronization coordinator: a
// background process that pushes committed local mutations to the cloud
// mirror, pulls remote changes back in, and resolves conflicts by
// last-write-wins. The local store stays authoritative throughout; sync
// failures only delay propagation, never block or corrupt local state.
package sync

import (
	"context"
	stdsync "sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dkomarov/curio/internal/logging"
	"github.com/dkomarov/curio/internal/mirror"
	"github.com/dkomarov/curio/internal/models"
	"github.com/dkomarov/curio/internal/store"
)

// Config holds coordinator settings. Enabled is injected, not ambient: with
// it off the system runs purely local and Start is a no-op.
type Config struct {
	Enabled bool

	// Origin tags outgoing envelopes with this device's identity so its own
	// writes are recognized coming back on the change feed.
	Origin string

	// FlushInterval is the cadence of the dirty-row sweep. Local mutations
	// additionally kick a sweep immediately.
	FlushInterval time.Duration

	// PollInterval is the cadence of change-feed polling.
	PollInterval time.Duration

	// BackoffMin seeds the exponential backoff for a single shadow write;
	// MaxRetries bounds it. A write that exhausts its retries stays dirty
	// and is retried on the next sweep.
	BackoffMin time.Duration
	MaxRetries uint64
}

// DefaultConfig returns coordinator defaults with sync enabled.
func DefaultConfig(origin string) Config {
	return Config{
		Enabled:       true,
		Origin:        origin,
		FlushInterval: 15 * time.Second,
		PollInterval:  20 * time.Second,
		BackoffMin:    500 * time.Millisecond,
		MaxRetries:    3,
	}
}

// Coordinator drives shadow writes and remote merges between the local
// store and the cloud mirror.
type Coordinator struct {
	store  *store.Store
	client mirror.Client
	cfg    Config
	log    logging.Logger

	states *stateTable
	kick   chan struct{}

	cancel   context.CancelFunc
	loops    stdsync.WaitGroup
	inflight stdsync.WaitGroup
}

// NewCoordinator returns a coordinator bound to the given store and mirror.
func NewCoordinator(s *store.Store, client mirror.Client, cfg Config, log logging.Logger) *Coordinator {
	if log == nil {
		log = logging.Default()
	}
	return &Coordinator{
		store:  s,
		client: client,
		cfg:    cfg,
		log:    log.With("component", "sync"),
		states: newStateTable(),
		kick:   make(chan struct{}, 1),
	}
}

// Start installs the store's dirty hook and launches the push and pull
// loops. With sync disabled it does nothing.
func (c *Coordinator) Start(ctx context.Context) {
	if !c.cfg.Enabled {
		c.log.Info(ctx, "sync disabled, running local-only")
		return
	}

	ctx, c.cancel = context.WithCancel(ctx)

	if err := c.client.Ping(ctx); err != nil {
		c.log.Warn(ctx, "mirror unreachable at start, sync will retry", "error", err)
	}

	c.store.SetDirtyHook(c.notify)

	c.loops.Add(2)
	go c.pushLoop(ctx)
	go c.pullLoop(ctx)

	c.log.Info(ctx, "sync started", "origin", c.cfg.Origin)
}

// Stop halts the loops and waits for in-flight shadow writes to settle.
func (c *Coordinator) Stop() {
	if c.cancel == nil {
		return
	}
	c.store.SetDirtyHook(nil)
	c.cancel()
	c.loops.Wait()
	c.inflight.Wait()
}

// notify is the store's dirty hook: a local mutation moves the identifier
// to Dirty and kicks an immediate sweep.
func (c *Coordinator) notify(kind models.Kind, id string) {
	c.states.markDirty(key{kind: kind, id: id})
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

func (c *Coordinator) pushLoop(ctx context.Context) {
	defer c.loops.Done()

	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	// Rows left dirty by a previous run are swept immediately on start.
	c.flush(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.kick:
			c.flush(ctx)
		case <-ticker.C:
			c.flush(ctx)
		}
	}
}

// flush sweeps dirty rows and launches one shadow write per identifier.
// The state machine guarantees no identifier ever has two writes in flight.
func (c *Coordinator) flush(ctx context.Context) {
	dirtyItems, err := c.store.ListDirtyItems(ctx)
	if err != nil {
		c.log.Error(ctx, "failed to list dirty items", "error", err)
		return
	}
	for _, it := range dirtyItems {
		k := key{kind: models.KindItem, id: it.ID}
		c.states.markDirty(k)
		if !c.states.beginSync(k) {
			continue
		}
		doc, err := itemEnvelope(it, c.cfg.Origin)
		if err != nil {
			c.log.Error(ctx, "failed to build envelope", "item", it.ID, "error", err)
			c.states.finishSync(k, false)
			continue
		}
		c.launchShadowWrite(ctx, k, doc)
	}

	dirtyCols, err := c.store.ListDirtyCollections(ctx)
	if err != nil {
		c.log.Error(ctx, "failed to list dirty collections", "error", err)
		return
	}
	for _, col := range dirtyCols {
		k := key{kind: models.KindCollection, id: col.Name}
		c.states.markDirty(k)
		if !c.states.beginSync(k) {
			continue
		}
		doc, err := collectionEnvelope(col, c.cfg.Origin)
		if err != nil {
			c.log.Error(ctx, "failed to build envelope", "collection", col.Name, "error", err)
			c.states.finishSync(k, false)
			continue
		}
		c.launchShadowWrite(ctx, k, doc)
	}
}

func (c *Coordinator) launchShadowWrite(ctx context.Context, k key, doc mirror.Document) {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		c.shadowWrite(ctx, k, doc)
	}()
}

// shadowWrite pushes one envelope to the mirror with exponential backoff.
// Success clears the row's dirty flag unless a newer local mutation landed
// meanwhile; failure leaves the identifier Dirty for the next sweep.
func (c *Coordinator) shadowWrite(ctx context.Context, k key, doc mirror.Document) {
	backoff := retry.WithMaxRetries(c.cfg.MaxRetries, retry.NewExponential(c.cfg.BackoffMin))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if _, err := c.client.Put(ctx, doc); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		// Best effort only: the local store already holds the committed
		// mutation, so this merely delays propagation.
		c.log.Warn(ctx, "shadow write failed, will retry", "kind", k.kind, "id", k.id, "error", err)
		c.states.finishSync(k, false)
		return
	}

	switch k.kind {
	case models.KindItem:
		err = c.store.ClearDirtyItem(ctx, k.id, doc.Timestamp)
	case models.KindCollection:
		err = c.store.ClearDirtyCollection(ctx, k.id, doc.Timestamp)
	}
	if err != nil {
		c.log.Error(ctx, "failed to clear dirty flag", "kind", k.kind, "id", k.id, "error", err)
	}

	if c.states.finishSync(k, true) {
		// Re-marked dirty while in flight: push again so the latest local
		// state is not lost to the race.
		select {
		case c.kick <- struct{}{}:
		default:
		}
	}
}

func (c *Coordinator) pullLoop(ctx context.Context) {
	defer c.loops.Done()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	c.pull(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pull(ctx)
		}
	}
}

// pull drains the mirror change feed and merges remote documents with
// last-write-wins. The cursor only advances past documents that applied
// cleanly, so nothing is skipped on partial failure.
func (c *Coordinator) pull(ctx context.Context) {
	cursor, err := c.store.SyncCursor(ctx)
	if err != nil {
		c.log.Error(ctx, "failed to read sync cursor", "error", err)
		return
	}

	docs, next, err := c.client.Changes(ctx, cursor)
	if err != nil {
		c.log.Warn(ctx, "change feed unreachable, will retry", "error", err)
		return
	}

	for _, doc := range docs {
		if doc.Origin == c.cfg.Origin {
			// Our own write echoed back; LWW application would be a no-op
			// anyway, skip the work.
			continue
		}
		if err := applyDocument(ctx, c.store, doc); err != nil {
			c.log.Error(ctx, "failed to apply remote document", "kind", doc.Kind, "id", doc.ID, "error", err)
			return
		}
	}

	if next != "" && next != cursor {
		if err := c.store.SetSyncCursor(ctx, next); err != nil {
			c.log.Error(ctx, "failed to save sync cursor", "error", err)
		}
	}
}
