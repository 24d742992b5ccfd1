// Package mirror is the thin client for the cloud document store the sync
// coordinator shadows local state into. The interface is deliberately
// narrow: upsert, fetch, delete, and a cursor-based change feed. The
// mirror's own retry/auth/storage internals live behind it.
package mirror

import (
	"context"
	"encoding/json"

	"github.com/dkomarov/curio/internal/models"
)

// Document is the flat mirror representation of one entity, keyed by the
// local identifier so re-sending is an upsert, never an append.
type Document struct {
	Kind      models.Kind     `json:"kind"`
	ID        string          `json:"id"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"` // client wall clock, unix millis, LWW key
	Origin    string          `json:"origin"`    // writing device id
	Deleted   bool            `json:"deleted"`

	// ServerMillis is assigned by the mirror on write and drives the change
	// feed cursor. Never used for conflict resolution.
	ServerMillis int64 `json:"server_millis,omitempty"`
}

// Client is the narrow mirror contract consumed by the sync coordinator.
type Client interface {
	// Put upserts a document keyed by (kind, id) and returns the
	// server-assigned write time.
	Put(ctx context.Context, doc Document) (int64, error)

	// Get fetches a single document; common.ErrNotFound when absent.
	Get(ctx context.Context, kind models.Kind, id string) (*Document, error)

	// Delete removes a document. Deleting an absent document is a no-op.
	Delete(ctx context.Context, kind models.Kind, id string) error

	// Changes returns documents written after the cursor position, plus the
	// cursor to resume from. An empty cursor starts from the beginning.
	Changes(ctx context.Context, since string) ([]Document, string, error)

	// Ping probes reachability.
	Ping(ctx context.Context) error
}
