package model

import "time"

// Transfer types
const (
	TransferTypeRiyal  = "riyal"
	TransferTypePoints = "points"
)

// Transfer is an immutable audit record of a balance movement between two
// students. It is written only after both balance writes have succeeded.
type Transfer struct {
	ID           string    `json:"id"`
	SenderID     int64     `json:"sender_id"`
	ReceiverID   int64     `json:"receiver_id"`
	Amount       int       `json:"amount"`
	TransferType string    `json:"transfer_type"`
	CreatedAt    time.Time `json:"created_at"`
}
