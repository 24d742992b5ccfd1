package models

import "time"

// Collection is a named, user-defined group of items. The name is the
// primary key; a rename replaces the key while member item IDs stay put.
// Collections may be empty and are only removed by an explicit delete.
type Collection struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Deleted   bool      `json:"deleted"`
}
