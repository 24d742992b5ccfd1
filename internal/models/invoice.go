package models

import "time"

// InvoiceLine is a denormalized snapshot of one item's acquisition data at
// invoice-creation time. It does not track the live item afterwards.
type InvoiceLine struct {
	ItemID          string `json:"item_id"`
	Name            string `json:"name"`
	Set             string `json:"set"`
	AcquisitionCost Money  `json:"acquisition_cost"`
}

// Invoice is created once by the UI layer and thereafter immutable except
// for an explicit edit flow that re-snapshots it. Sync never merges invoices.
type Invoice struct {
	ID        string        `json:"id"`
	Seller    string        `json:"seller"`
	Date      time.Time     `json:"date"`
	Lines     []InvoiceLine `json:"lines"`
	CreatedAt time.Time     `json:"created_at"`
}
