package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/vktrn/marketd/internal/domain"
	"github.com/vktrn/marketd/internal/market"
)

// MarketService defines the methods the market handler requires from the
// service layer.
type MarketService interface {
	List(ctx context.Context, in market.ListInput) (domain.SaleOrder, error)
	Buy(ctx context.Context, in market.BuyInput) (domain.SaleOrder, error)
	Cancel(ctx context.Context, orderID, caller string) error
	OpenOrders(ctx context.Context) ([]domain.SaleOrder, error)
	OrdersBoughtBy(ctx context.Context, buyer string, opts domain.ListOpts) ([]domain.SaleOrder, error)
	OrdersCreatedBy(ctx context.Context, seller string, opts domain.ListOpts) ([]domain.SaleOrder, error)
	Events(ctx context.Context, opts domain.ListOpts) ([]domain.MarketEvent, error)
	Commission() *big.Int
}

// MarketHandler serves marketplace HTTP endpoints.
type MarketHandler struct {
	market MarketService
	logger *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(market MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		market: market,
		logger: logHandler(logger, "market"),
	}
}

// orderJSON is the wire form of a sale order. Prices are decimal strings.
type orderJSON struct {
	ID         string     `json:"id"`
	Seq        int64      `json:"seq"`
	Asset      string     `json:"asset"`
	AssetID    string     `json:"asset_id"`
	Seller     string     `json:"seller"`
	Buyer      string     `json:"buyer,omitempty"`
	Price      string     `json:"price"`
	Status     string     `json:"status"`
	AmountPaid string     `json:"amount_paid,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
}

func toOrderJSON(o domain.SaleOrder) orderJSON {
	out := orderJSON{
		ID:        o.ID,
		Seq:       o.Seq,
		Asset:     o.Asset,
		AssetID:   o.AssetID,
		Seller:    o.Seller,
		Buyer:     o.Buyer,
		Price:     o.Price.String(),
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
		ClosedAt:  o.ClosedAt,
	}
	if o.AmountPaid != nil {
		out.AmountPaid = o.AmountPaid.String()
	}
	return out
}

func toOrderList(orders []domain.SaleOrder) []orderJSON {
	out := make([]orderJSON, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderJSON(o))
	}
	return out
}

// listOrdersResponse wraps order list responses.
type listOrdersResponse struct {
	Orders []orderJSON `json:"orders"`
}

// listRequest is the JSON body for creating a listing.
type listRequest struct {
	Asset   string `json:"asset"`
	AssetID string `json:"asset_id"`
	Seller  string `json:"seller"`
	Price   string `json:"price"` // decimal string, native units
}

// CreateOrder lists an asset for sale.
// POST /api/orders
func (h *MarketHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	price, ok := new(big.Int).SetString(req.Price, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "price must be a decimal string")
		return
	}

	order, err := h.market.List(r.Context(), market.ListInput{
		Asset:   req.Asset,
		AssetID: req.AssetID,
		Seller:  req.Seller,
		Price:   price,
	})
	if err != nil {
		h.writeMarketError(w, r, "create order", err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderJSON(order))
}

// buyRequest is the JSON body for a purchase.
type buyRequest struct {
	Buyer string `json:"buyer"`
	Value string `json:"value"` // attached payment, decimal string
}

// BuyOrder fulfils an open order.
// POST /api/orders/{id}/buy
func (h *MarketHandler) BuyOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req buyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	value, ok := new(big.Int).SetString(req.Value, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "value must be a decimal string")
		return
	}

	order, err := h.market.Buy(r.Context(), market.BuyInput{
		OrderID: id,
		Buyer:   req.Buyer,
		Value:   value,
	})
	if err != nil {
		h.writeMarketError(w, r, "buy order", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderJSON(order))
}

// cancelRequest is the JSON body for a cancellation.
type cancelRequest struct {
	Seller string `json:"seller"`
}

// CancelOrder delists an open order. Only the original seller may cancel.
// DELETE /api/orders/{id}
func (h *MarketHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.market.Cancel(r.Context(), id, req.Seller); err != nil {
		h.writeMarketError(w, r, "cancel order", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "order_id": id})
}

// ListOpen returns the open-order snapshot, ordered by creation sequence.
// GET /api/orders
func (h *MarketHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	orders, err := h.market.OpenOrders(r.Context())
	if err != nil {
		h.writeMarketError(w, r, "list open orders", err)
		return
	}
	writeJSON(w, http.StatusOK, listOrdersResponse{Orders: toOrderList(orders)})
}

// ListBought returns historical orders purchased by an account.
// GET /api/orders/bought?account=0x...
func (h *MarketHandler) ListBought(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	if account == "" {
		writeError(w, http.StatusBadRequest, "account query parameter required")
		return
	}

	orders, err := h.market.OrdersBoughtBy(r.Context(), account, parseListOpts(r))
	if err != nil {
		h.writeMarketError(w, r, "list bought orders", err)
		return
	}
	writeJSON(w, http.StatusOK, listOrdersResponse{Orders: toOrderList(orders)})
}

// ListCreated returns historical orders listed by an account.
// GET /api/orders/created?account=0x...
func (h *MarketHandler) ListCreated(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	if account == "" {
		writeError(w, http.StatusBadRequest, "account query parameter required")
		return
	}

	orders, err := h.market.OrdersCreatedBy(r.Context(), account, parseListOpts(r))
	if err != nil {
		h.writeMarketError(w, r, "list created orders", err)
		return
	}
	writeJSON(w, http.StatusOK, listOrdersResponse{Orders: toOrderList(orders)})
}

// GetCommission returns the fixed per-sale platform fee.
// GET /api/commission
func (h *MarketHandler) GetCommission(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"commission": h.market.Commission().String(),
	})
}

// ListEvents returns event-log entries, newest first.
// GET /api/events?limit=50&offset=0
func (h *MarketHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.market.Events(r.Context(), parseListOpts(r))
	if err != nil {
		h.writeMarketError(w, r, "list events", err)
		return
	}
	if events == nil {
		events = []domain.MarketEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// writeMarketError maps domain errors to HTTP status codes.
func (h *MarketHandler) writeMarketError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrInvalidAddress),
		errors.Is(err, domain.ErrInvalidAsset):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnknownOrder):
		writeError(w, http.StatusNotFound, "unknown order")
	case errors.Is(err, domain.ErrInsufficientPayment),
		errors.Is(err, domain.ErrInsufficientFunds):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, domain.ErrNotSeller):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrReentrancy):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrTransferFailed):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}
