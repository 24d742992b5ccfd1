package models

import "time"

// ImageRecord is the durable binary payload associated 1:1 with an item.
// RemoteURL and StorageKey are set once the payload has been uploaded to
// object storage; until then the local bytes are the only copy.
type ImageRecord struct {
	ItemID     string
	Data       []byte
	RemoteURL  string
	StorageKey string
	UpdatedAt  time.Time
}
