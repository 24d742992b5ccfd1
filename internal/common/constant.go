package common

const (
	// ReservedAllItems is the virtual collection name representing the union
	// of every collection. It is computed, never persisted, and must be
	// rejected as a creation or rename target.
	ReservedAllItems = "All Items"

	// DefaultCollection is the collection seeded on first run and used as
	// the fallback destination when a deleted collection's items are kept.
	DefaultCollection = "My Collection"
)

// IsReservedCollection reports whether name is a virtual collection name
// that must never exist as a persisted row. Comparison is exact.
func IsReservedCollection(name string) bool {
	return name == ReservedAllItems
}
