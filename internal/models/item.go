// Package models defines the domain entities persisted by the local store
// and mirrored to the cloud document database.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dkomarov/curio/internal/common"
)

// Money is a two-currency monetary amount: the native amount the user paid
// or appraised in, plus the converted amount in their display currency.
// Amounts are in minor units (cents) to avoid float drift.
type Money struct {
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	DisplayAmount   int64  `json:"display_amount"`
	DisplayCurrency string `json:"display_currency"`
}

// Item is a tracked collectible. The ID is stable across collection renames
// and moves; CollectionName records current group membership.
type Item struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Set             string    `json:"set"`
	Year            int       `json:"year"`
	Condition       string    `json:"condition"`
	Grade           string    `json:"grade"`
	AcquisitionCost Money     `json:"acquisition_cost"`
	CurrentValue    Money     `json:"current_value"`
	HasImage        bool      `json:"has_image"`
	CollectionName  string    `json:"collection_name"`
	UpdatedAt       time.Time `json:"updated_at"`
	Deleted         bool      `json:"deleted"`
}

// Validate normalizes and checks an item at the store ingress. Loosely
// shaped callers are rejected here rather than trusted throughout.
func (i *Item) Validate() error {
	i.Name = strings.TrimSpace(i.Name)
	i.CollectionName = strings.TrimSpace(i.CollectionName)

	switch {
	case i.ID == "":
		return errors.New("item id must not be empty")
	case i.Name == "":
		return errors.New("item name must not be empty")
	case i.CollectionName == "":
		return errors.New("item must belong to a collection")
	case common.IsReservedCollection(i.CollectionName):
		return fmt.Errorf("%q is a virtual collection and cannot own items", i.CollectionName)
	}
	return nil
}
