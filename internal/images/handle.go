package images

import (
	"sync"
	"time"
)

// Handle is a live, revocable reference to image data: either a remote URL
// or the local binary payload. A handle is created by Acquire and must be
// revoked exactly once by Release; reading a released handle reports absent
// instead of returning dangling data.
type Handle struct {
	id        string
	itemID    string
	createdAt time.Time

	mu       sync.Mutex
	released bool
	url      string
	data     []byte
}

// ItemID returns the owning item's identifier.
func (h *Handle) ItemID() string { return h.itemID }

// CreatedAt returns the handle's creation timestamp.
func (h *Handle) CreatedAt() time.Time { return h.createdAt }

// URL returns the remote location, if this handle is URL-backed. The second
// return is false once the handle is released or when it carries local bytes.
func (h *Handle) URL() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released || h.url == "" {
		return "", false
	}
	return h.url, true
}

// Bytes returns the local payload, if this handle is blob-backed. The second
// return is false once the handle is released or when it is URL-backed.
func (h *Handle) Bytes() ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released || h.data == nil {
		return nil, false
	}
	return h.data, true
}

// Released reports whether the handle has been revoked.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// revoke marks the handle released and drops its payload reference.
// Returns false if it was already released.
func (h *Handle) revoke() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return false
	}
	h.released = true
	h.url = ""
	h.data = nil
	return true
}
