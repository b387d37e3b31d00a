package domain

import "time"

// EventType identifies a marketplace lifecycle event.
type EventType string

const (
	EventListed    EventType = "listed"
	EventPurchased EventType = "purchased"
	EventCancelled EventType = "cancelled"
)

// MarketEvent is one entry in the append-only marketplace event log. Events
// are written in the same transaction as the state change they describe, so
// the log never records an aborted operation. Off-chain indexers consume the
// log via the HTTP API, the signal bus, or the S3 archive.
type MarketEvent struct {
	ID         int64     `json:"id,omitempty"` // assigned by the store on append
	Type       EventType `json:"type"`
	OrderID    string    `json:"order_id"`
	Seq        int64     `json:"seq"`
	Asset      string    `json:"asset"`
	AssetID    string    `json:"asset_id"`
	Seller     string    `json:"seller"`
	Buyer      string    `json:"buyer,omitempty"`
	Price      string    `json:"price"`                 // decimal string, native units
	AmountPaid string    `json:"amount_paid,omitempty"` // decimal string, purchases only
	CreatedAt  time.Time `json:"created_at"`
	Signature  string    `json:"signature,omitempty"` // platform key signature over the payload
}
