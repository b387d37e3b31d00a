package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vktrn/marketd/internal/domain"
)

// openOrdersKey holds the serialized open-order snapshot.
const openOrdersKey = "cache:orders:open"

// openOrdersTTL bounds snapshot staleness if an invalidation is ever missed.
const openOrdersTTL = 30 * time.Second

// cachedOrder is the JSON wire form of a cached open order. Prices are
// decimal strings to survive the JSON round trip exactly.
type cachedOrder struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	Asset     string    `json:"asset"`
	AssetID   string    `json:"asset_id"`
	Seller    string    `json:"seller"`
	Price     string    `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// OpenOrderCache implements domain.OpenOrderCache using a single Redis key
// with a short TTL. Mutations delete the key; the next query repopulates it.
type OpenOrderCache struct {
	rdb *redis.Client
}

// NewOpenOrderCache creates an OpenOrderCache backed by the given Client.
func NewOpenOrderCache(c *Client) *OpenOrderCache {
	return &OpenOrderCache{rdb: c.Underlying()}
}

// Set stores a snapshot of the open-order set.
func (oc *OpenOrderCache) Set(ctx context.Context, orders []domain.SaleOrder) error {
	cached := make([]cachedOrder, 0, len(orders))
	for _, o := range orders {
		cached = append(cached, cachedOrder{
			ID:        o.ID,
			Seq:       o.Seq,
			Asset:     o.Asset,
			AssetID:   o.AssetID,
			Seller:    o.Seller,
			Price:     o.Price.String(),
			CreatedAt: o.CreatedAt,
		})
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("redis: marshal open orders: %w", err)
	}

	if err := oc.rdb.Set(ctx, openOrdersKey, data, openOrdersTTL).Err(); err != nil {
		return fmt.Errorf("redis: set open orders: %w", err)
	}
	return nil
}

// Get returns the cached snapshot, or ErrNotFound when the cache is cold.
func (oc *OpenOrderCache) Get(ctx context.Context) ([]domain.SaleOrder, error) {
	data, err := oc.rdb.Get(ctx, openOrdersKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get open orders: %w", err)
	}

	var cached []cachedOrder
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("redis: unmarshal open orders: %w", err)
	}

	orders := make([]domain.SaleOrder, 0, len(cached))
	for _, c := range cached {
		price, ok := new(big.Int).SetString(c.Price, 10)
		if !ok {
			return nil, fmt.Errorf("redis: bad cached price %q for order %s", c.Price, c.ID)
		}
		orders = append(orders, domain.SaleOrder{
			ID:        c.ID,
			Seq:       c.Seq,
			Asset:     c.Asset,
			AssetID:   c.AssetID,
			Seller:    c.Seller,
			Price:     price,
			Status:    domain.OrderStatusOpen,
			CreatedAt: c.CreatedAt,
		})
	}
	return orders, nil
}

// Invalidate drops the snapshot.
func (oc *OpenOrderCache) Invalidate(ctx context.Context) error {
	if err := oc.rdb.Del(ctx, openOrdersKey).Err(); err != nil {
		return fmt.Errorf("redis: invalidate open orders: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.OpenOrderCache = (*OpenOrderCache)(nil)
