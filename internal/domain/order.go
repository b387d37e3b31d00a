package domain

import (
	"math/big"
	"time"
)

// OrderStatus tracks the sale order lifecycle.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusSold      OrderStatus = "sold"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// SaleOrder is a fixed-price listing of a single asset. While the order is
// open the marketplace escrow account holds custody of the asset; on sale
// custody moves to the buyer and the proceeds (minus commission) to the
// seller. Closed orders are removed from the live registry but retained in
// the order history with their final status.
type SaleOrder struct {
	ID         string      // keccak256 of (seq, asset, asset id, price, seller)
	Seq        int64       // stable creation sequence, assigned once, never reused
	Asset      string      // collection contract address (hex)
	AssetID    string      // token identifier within the collection
	Seller     string      // account entitled to proceeds (hex)
	Buyer      string      // empty until sold
	Price      *big.Int    // native units, always > 0
	Status     OrderStatus
	AmountPaid *big.Int // native units tendered on sale; surplus above Price is refunded. nil until sold
	CreatedAt  time.Time
	ClosedAt   *time.Time
}

// Open reports whether the order can still be bought or cancelled.
func (o SaleOrder) Open() bool {
	return o.Status == OrderStatusOpen
}
