package model

import "time"

// SlotClaim proves which booking owns a slot. The _id is the slot key, so
// a second insert for the same slot fails with a duplicate key error.
type SlotClaim struct {
	ID        string    `bson:"_id" json:"id"`
	BookingID string    `bson:"booking_id" json:"booking_id"`
	ClaimedAt time.Time `bson:"claimed_at" json:"claimed_at"`
}
