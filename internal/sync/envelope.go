package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dkomarov/curio/internal/mirror"
	"github.com/dkomarov/curio/internal/models"
	"github.com/dkomarov/curio/internal/store"
)

// Envelopes wrap one entity mutation with the logical timestamp and origin
// tag the coordinator uses for shadow-write ordering and last-write-wins
// conflict decisions. They exist only in flight and are never exposed to
// callers of the store.

func itemEnvelope(it *models.Item, origin string) (mirror.Document, error) {
	payload, err := json.Marshal(it)
	if err != nil {
		return mirror.Document{}, fmt.Errorf("failed to marshal item envelope: %w", err)
	}
	return mirror.Document{
		Kind:      models.KindItem,
		ID:        it.ID,
		Payload:   payload,
		Timestamp: it.UpdatedAt.UnixMilli(),
		Origin:    origin,
		Deleted:   it.Deleted,
	}, nil
}

func collectionEnvelope(c *models.Collection, origin string) (mirror.Document, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return mirror.Document{}, fmt.Errorf("failed to marshal collection envelope: %w", err)
	}
	return mirror.Document{
		Kind:      models.KindCollection,
		ID:        c.Name,
		Payload:   payload,
		Timestamp: c.UpdatedAt.UnixMilli(),
		Origin:    origin,
		Deleted:   c.Deleted,
	}, nil
}

// applyDocument merges one remote document into the local store. The store
// enforces last-write-wins on the entity's updated_at, so applying the same
// document twice, or an older one after a newer one, is a no-op.
func applyDocument(ctx context.Context, st *store.Store, doc mirror.Document) error {
	switch doc.Kind {
	case models.KindItem:
		var it models.Item
		if err := json.Unmarshal(doc.Payload, &it); err != nil {
			return fmt.Errorf("failed to unmarshal remote item %s: %w", doc.ID, err)
		}
		return st.ApplyRemoteItem(ctx, &it)
	case models.KindCollection:
		var c models.Collection
		if err := json.Unmarshal(doc.Payload, &c); err != nil {
			return fmt.Errorf("failed to unmarshal remote collection %s: %w", doc.ID, err)
		}
		return st.ApplyRemoteCollection(ctx, &c)
	default:
		return fmt.Errorf("unknown document kind %q", doc.Kind)
	}
}
