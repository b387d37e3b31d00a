// Package market implements the marketplace order lifecycle: listing an
// asset for sale, buying an open order, cancelling a listing, and read-only
// queries over the open-order set and the order history.
//
// Every mutation runs under an exclusive mutation lock (one state-mutating
// call at a time, nested entry rejected) and commits order state, ledger
// movements, and the event-log row in a single database transaction. Asset
// custody lives with the external registry and cannot join that transaction,
// so custody moves first and is compensated back if the transaction fails.
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vktrn/marketd/internal/clock"
	"github.com/vktrn/marketd/internal/domain"
	"github.com/vktrn/marketd/internal/events"
)

// mutateLockKey serializes all state-mutating entry points.
const mutateLockKey = "market:mutate"

// mutateLockTTL bounds how long a crashed mutation can block the market.
const mutateLockTTL = 30 * time.Second

// mutateRateLimit is the per-account mutation budget.
const (
	mutateRateLimit  = 10
	mutateRateWindow = time.Second
)

// Config carries the construction-time marketplace parameters. None of them
// can change at runtime.
type Config struct {
	// Commission is the fixed per-sale platform fee in native units.
	Commission *big.Int

	// EscrowAccount holds custody of listed assets while orders are open.
	EscrowAccount string

	// PlatformAccount receives the commission on every sale.
	PlatformAccount string
}

// Service is the marketplace. All mutations are atomic: they either fully
// commit (and their event is recorded) or fully abort with no partial state.
type Service struct {
	orders    domain.OrderStore
	ledger    domain.Ledger
	registry  domain.AssetRegistry
	evts      domain.EventStore
	emitter   *events.Emitter
	locks     domain.LockManager
	limiter   domain.RateLimiter
	openCache domain.OpenOrderCache
	clock     clock.Clock
	cfg       Config
	logger    *slog.Logger
}

// NewService creates a marketplace Service. openCache may be nil, in which
// case open-order queries always hit the store.
func NewService(
	orders domain.OrderStore,
	ledger domain.Ledger,
	registry domain.AssetRegistry,
	evts domain.EventStore,
	emitter *events.Emitter,
	locks domain.LockManager,
	limiter domain.RateLimiter,
	openCache domain.OpenOrderCache,
	clk clock.Clock,
	cfg Config,
	logger *slog.Logger,
) *Service {
	return &Service{
		orders:    orders,
		ledger:    ledger,
		registry:  registry,
		evts:      evts,
		emitter:   emitter,
		locks:     locks,
		limiter:   limiter,
		openCache: openCache,
		clock:     clk,
		cfg:       cfg,
		logger:    logger,
	}
}

// Commission returns the fixed per-sale platform fee.
func (s *Service) Commission() *big.Int {
	return new(big.Int).Set(s.cfg.Commission)
}

// ListInput carries the parameters of a new listing.
type ListInput struct {
	Asset   string
	AssetID string
	Seller  string
	Price   *big.Int
}

// List creates a sale order: custody of the asset moves from the seller to
// the marketplace escrow account, and the order becomes visible to buyers.
// The seller must own the asset or have authorized the marketplace;
// otherwise the custody transfer is rejected and nothing is recorded.
func (s *Service) List(ctx context.Context, in ListInput) (domain.SaleOrder, error) {
	if in.Price == nil || in.Price.Sign() <= 0 {
		return domain.SaleOrder{}, domain.ErrInvalidPrice
	}
	if !common.IsHexAddress(in.Asset) || !common.IsHexAddress(in.Seller) {
		return domain.SaleOrder{}, domain.ErrInvalidAddress
	}
	if in.AssetID == "" {
		return domain.SaleOrder{}, domain.ErrInvalidAsset
	}

	if err := s.allow(ctx, "list:"+in.Seller); err != nil {
		return domain.SaleOrder{}, err
	}

	unlock, err := s.acquireMutate(ctx)
	if err != nil {
		return domain.SaleOrder{}, err
	}
	defer unlock()

	seq, err := s.orders.NextSeq(ctx)
	if err != nil {
		return domain.SaleOrder{}, fmt.Errorf("market: next sequence: %w", err)
	}

	order := domain.SaleOrder{
		ID:        orderID(seq, in.Asset, in.AssetID, in.Price, in.Seller),
		Seq:       seq,
		Asset:     in.Asset,
		AssetID:   in.AssetID,
		Seller:    in.Seller,
		Price:     new(big.Int).Set(in.Price),
		Status:    domain.OrderStatusOpen,
		CreatedAt: s.clock.Now(),
	}

	// Custody into escrow before any state is written. A rejected transfer
	// aborts the listing with nothing recorded.
	if err := s.registry.Transfer(ctx, in.Asset, in.AssetID, in.Seller, s.cfg.EscrowAccount); err != nil {
		return domain.SaleOrder{}, fmt.Errorf("market: %w: %v", domain.ErrTransferFailed, err)
	}

	evt := s.newEvent(domain.EventListed, order)
	if err := s.emitter.Sign(&evt); err != nil {
		s.compensate(ctx, order, s.cfg.EscrowAccount, in.Seller)
		return domain.SaleOrder{}, err
	}

	err = s.orders.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Insert(txCtx, order); err != nil {
			return err
		}
		return s.evts.Append(txCtx, &evt)
	})
	if err != nil {
		// The asset is already in escrow; hand it back.
		s.compensate(ctx, order, s.cfg.EscrowAccount, in.Seller)
		if errors.Is(err, domain.ErrAlreadyExists) {
			return domain.SaleOrder{}, domain.ErrAlreadyExists
		}
		return domain.SaleOrder{}, fmt.Errorf("market: record listing: %w", err)
	}

	s.afterMutate(ctx, evt)

	s.logger.InfoContext(ctx, "market: order listed",
		slog.String("order_id", order.ID),
		slog.Int64("seq", order.Seq),
		slog.String("asset", order.Asset),
		slog.String("asset_id", order.AssetID),
		slog.String("seller", order.Seller),
		slog.String("price", order.Price.String()),
	)

	return order, nil
}

// BuyInput carries the parameters of a purchase.
type BuyInput struct {
	OrderID string
	Buyer   string
	Value   *big.Int // attached payment; must be >= the order price
}

// Buy fulfils an open order. Custody of the asset moves from escrow to the
// buyer, the buyer pays exactly the order price (any surplus in Value stays
// with the buyer), the seller receives price minus commission, and the
// platform account receives the commission. The order leaves the open set
// permanently; a second Buy with the same id fails with ErrUnknownOrder.
func (s *Service) Buy(ctx context.Context, in BuyInput) (domain.SaleOrder, error) {
	if in.OrderID == "" {
		return domain.SaleOrder{}, domain.ErrUnknownOrder
	}
	if !common.IsHexAddress(in.Buyer) {
		return domain.SaleOrder{}, domain.ErrInvalidAddress
	}
	if in.Value == nil || in.Value.Sign() <= 0 {
		return domain.SaleOrder{}, domain.ErrInsufficientPayment
	}

	if err := s.allow(ctx, "buy:"+in.Buyer); err != nil {
		return domain.SaleOrder{}, err
	}

	unlock, err := s.acquireMutate(ctx)
	if err != nil {
		return domain.SaleOrder{}, err
	}
	defer unlock()

	order, err := s.orders.GetOpen(ctx, in.OrderID)
	if err != nil {
		return domain.SaleOrder{}, err
	}
	if in.Value.Cmp(order.Price) < 0 {
		return domain.SaleOrder{}, domain.ErrInsufficientPayment
	}

	now := s.clock.Now()
	order.Status = domain.OrderStatusSold
	order.Buyer = in.Buyer
	order.AmountPaid = new(big.Int).Set(in.Value)
	order.ClosedAt = &now

	commission := s.cfg.Commission
	proceeds := new(big.Int).Sub(order.Price, commission)
	if proceeds.Sign() < 0 {
		// Commission exceeding the price would drain the seller; the whole
		// price goes to the platform instead.
		proceeds = big.NewInt(0)
		commission = order.Price
	}

	// Custody to the buyer before settlement. If settlement fails the asset
	// is handed back to escrow and the order stays open.
	if err := s.registry.Transfer(ctx, order.Asset, order.AssetID, s.cfg.EscrowAccount, in.Buyer); err != nil {
		return domain.SaleOrder{}, fmt.Errorf("market: %w: %v", domain.ErrTransferFailed, err)
	}

	evt := s.newEvent(domain.EventPurchased, order)
	if err := s.emitter.Sign(&evt); err != nil {
		s.compensate(ctx, order, in.Buyer, s.cfg.EscrowAccount)
		return domain.SaleOrder{}, err
	}

	err = s.orders.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Delete(txCtx, order.ID); err != nil {
			return err
		}
		if err := s.orders.CloseHistory(txCtx, order.ID, domain.OrderStatusSold, in.Buyer, order.AmountPaid, now); err != nil {
			return err
		}
		if proceeds.Sign() > 0 {
			if err := s.ledger.Move(txCtx, in.Buyer, order.Seller, proceeds); err != nil {
				return err
			}
		}
		if commission.Sign() > 0 {
			if err := s.ledger.Move(txCtx, in.Buyer, s.cfg.PlatformAccount, commission); err != nil {
				return err
			}
		}
		return s.evts.Append(txCtx, &evt)
	})
	if err != nil {
		s.compensate(ctx, order, in.Buyer, s.cfg.EscrowAccount)
		if errors.Is(err, domain.ErrInsufficientFunds) {
			return domain.SaleOrder{}, domain.ErrInsufficientFunds
		}
		return domain.SaleOrder{}, fmt.Errorf("market: settle purchase: %w", err)
	}

	s.afterMutate(ctx, evt)

	s.logger.InfoContext(ctx, "market: order purchased",
		slog.String("order_id", order.ID),
		slog.String("buyer", in.Buyer),
		slog.String("seller", order.Seller),
		slog.String("price", order.Price.String()),
		slog.String("amount_paid", order.AmountPaid.String()),
	)

	return order, nil
}

// Cancel delists an open order. Only the original seller may cancel; the
// asset returns from escrow to the seller and the order leaves the open set
// permanently.
func (s *Service) Cancel(ctx context.Context, orderID, caller string) error {
	if orderID == "" {
		return domain.ErrUnknownOrder
	}
	if !common.IsHexAddress(caller) {
		return domain.ErrInvalidAddress
	}

	if err := s.allow(ctx, "cancel:"+caller); err != nil {
		return err
	}

	unlock, err := s.acquireMutate(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	order, err := s.orders.GetOpen(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Seller != caller {
		return domain.ErrNotSeller
	}

	now := s.clock.Now()
	order.Status = domain.OrderStatusCancelled
	order.ClosedAt = &now

	if err := s.registry.Transfer(ctx, order.Asset, order.AssetID, s.cfg.EscrowAccount, order.Seller); err != nil {
		return fmt.Errorf("market: %w: %v", domain.ErrTransferFailed, err)
	}

	evt := s.newEvent(domain.EventCancelled, order)
	if err := s.emitter.Sign(&evt); err != nil {
		s.compensate(ctx, order, order.Seller, s.cfg.EscrowAccount)
		return err
	}

	err = s.orders.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Delete(txCtx, order.ID); err != nil {
			return err
		}
		if err := s.orders.CloseHistory(txCtx, order.ID, domain.OrderStatusCancelled, "", nil, now); err != nil {
			return err
		}
		return s.evts.Append(txCtx, &evt)
	})
	if err != nil {
		s.compensate(ctx, order, order.Seller, s.cfg.EscrowAccount)
		return fmt.Errorf("market: record cancellation: %w", err)
	}

	s.afterMutate(ctx, evt)

	s.logger.InfoContext(ctx, "market: order cancelled",
		slog.String("order_id", order.ID),
		slog.String("seller", order.Seller),
	)

	return nil
}

// OpenOrders returns a snapshot of all currently open orders, ordered by
// creation sequence. Queries never take the mutation lock and observe only
// committed state.
func (s *Service) OpenOrders(ctx context.Context) ([]domain.SaleOrder, error) {
	if s.openCache != nil {
		if orders, err := s.openCache.Get(ctx); err == nil {
			return orders, nil
		}
	}

	orders, err := s.orders.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("market: list open orders: %w", err)
	}

	if s.openCache != nil {
		if err := s.openCache.Set(ctx, orders); err != nil {
			s.logger.WarnContext(ctx, "market: open order cache set failed",
				slog.String("error", err.Error()),
			)
		}
	}

	return orders, nil
}

// OrdersBoughtBy returns all historical orders purchased by the account.
func (s *Service) OrdersBoughtBy(ctx context.Context, buyer string, opts domain.ListOpts) ([]domain.SaleOrder, error) {
	if !common.IsHexAddress(buyer) {
		return nil, domain.ErrInvalidAddress
	}
	orders, err := s.orders.ListBoughtBy(ctx, buyer, opts)
	if err != nil {
		return nil, fmt.Errorf("market: list bought by %s: %w", buyer, err)
	}
	return orders, nil
}

// OrdersCreatedBy returns all historical orders listed by the account,
// whatever their current status.
func (s *Service) OrdersCreatedBy(ctx context.Context, seller string, opts domain.ListOpts) ([]domain.SaleOrder, error) {
	if !common.IsHexAddress(seller) {
		return nil, domain.ErrInvalidAddress
	}
	orders, err := s.orders.ListCreatedBy(ctx, seller, opts)
	if err != nil {
		return nil, fmt.Errorf("market: list created by %s: %w", seller, err)
	}
	return orders, nil
}

// Events returns event-log entries, newest first.
func (s *Service) Events(ctx context.Context, opts domain.ListOpts) ([]domain.MarketEvent, error) {
	evts, err := s.evts.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market: list events: %w", err)
	}
	return evts, nil
}

// acquireMutate takes the exclusive mutation lock, mapping a held lock to
// the reentrancy error surfaced to callers.
func (s *Service) acquireMutate(ctx context.Context) (func(), error) {
	unlock, err := s.locks.Acquire(ctx, mutateLockKey, mutateLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return nil, domain.ErrReentrancy
		}
		return nil, fmt.Errorf("market: acquire mutation lock: %w", err)
	}
	return unlock, nil
}

// allow checks the per-account mutation rate limit. A nil limiter disables
// limiting.
func (s *Service) allow(ctx context.Context, key string) error {
	if s.limiter == nil {
		return nil
	}
	allowed, err := s.limiter.Allow(ctx, key, mutateRateLimit, mutateRateWindow)
	if err != nil {
		return fmt.Errorf("market: rate limiter: %w", err)
	}
	if !allowed {
		return domain.ErrRateLimited
	}
	return nil
}

// compensate returns asset custody after a failed mutation. A failed
// compensation leaves custody inconsistent with order state and is logged at
// error level for operator intervention.
func (s *Service) compensate(ctx context.Context, order domain.SaleOrder, from, to string) {
	if err := s.registry.Transfer(ctx, order.Asset, order.AssetID, from, to); err != nil {
		s.logger.ErrorContext(ctx, "market: custody compensation failed",
			slog.String("order_id", order.ID),
			slog.String("asset", order.Asset),
			slog.String("asset_id", order.AssetID),
			slog.String("from", from),
			slog.String("to", to),
			slog.String("error", err.Error()),
		)
	}
}

// afterMutate broadcasts the committed event and drops the open-order cache.
func (s *Service) afterMutate(ctx context.Context, evt domain.MarketEvent) {
	s.emitter.Broadcast(ctx, evt)

	if s.openCache != nil {
		if err := s.openCache.Invalidate(ctx); err != nil {
			s.logger.WarnContext(ctx, "market: open order cache invalidate failed",
				slog.String("error", err.Error()),
			)
		}
	}
}

// newEvent builds the event-log entry for an order in its current state.
func (s *Service) newEvent(t domain.EventType, order domain.SaleOrder) domain.MarketEvent {
	evt := domain.MarketEvent{
		Type:      t,
		OrderID:   order.ID,
		Seq:       order.Seq,
		Asset:     order.Asset,
		AssetID:   order.AssetID,
		Seller:    order.Seller,
		Price:     order.Price.String(),
		CreatedAt: s.clock.Now(),
	}
	if t == domain.EventPurchased {
		evt.Buyer = order.Buyer
		evt.AmountPaid = order.AmountPaid.String()
	}
	return evt
}
