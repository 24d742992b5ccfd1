// Package common defines shared constants and sentinel errors used across
// the storage, image, and sync layers of Curio. Callers should use errors.Is
// to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// ErrStorageUnavailable means the durable store could not be opened.
	// Callers degrade to an in-memory default state instead of failing.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrImageCommitFailed means a staged image could not be uploaded or
	// persisted. The enclosing item save must abort.
	ErrImageCommitFailed = errors.New("image commit failed")

	// ErrSyncUnreachable means a shadow write or change-feed poll failed.
	// Always recoverable by retry, never surfaced as a hard error.
	ErrSyncUnreachable = errors.New("sync unreachable")

	// ErrInvalidCollectionOperation covers rejected collection operations:
	// deleting the last collection, creating the reserved virtual name,
	// renaming onto an existing collection.
	ErrInvalidCollectionOperation = errors.New("invalid collection operation")
)
