package models

// Profile is the singleton owner record. DeviceID tags sync envelopes so a
// device can recognize its own writes coming back from the change feed.
type Profile struct {
	OwnerName       string `json:"owner_name"`
	DisplayCurrency string `json:"display_currency"`
	DeviceID        string `json:"device_id"`
}
