package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vktrn/marketd/internal/domain"
	"github.com/vktrn/marketd/internal/market"
)

// stubMarket implements MarketService with canned responses and error
// injection.
type stubMarket struct {
	order      domain.SaleOrder
	orders     []domain.SaleOrder
	events     []domain.MarketEvent
	commission *big.Int
	err        error

	lastList   market.ListInput
	lastBuy    market.BuyInput
	lastCancel struct{ orderID, caller string }
}

func (s *stubMarket) List(ctx context.Context, in market.ListInput) (domain.SaleOrder, error) {
	s.lastList = in
	return s.order, s.err
}

func (s *stubMarket) Buy(ctx context.Context, in market.BuyInput) (domain.SaleOrder, error) {
	s.lastBuy = in
	return s.order, s.err
}

func (s *stubMarket) Cancel(ctx context.Context, orderID, caller string) error {
	s.lastCancel.orderID = orderID
	s.lastCancel.caller = caller
	return s.err
}

func (s *stubMarket) OpenOrders(ctx context.Context) ([]domain.SaleOrder, error) {
	return s.orders, s.err
}

func (s *stubMarket) OrdersBoughtBy(ctx context.Context, buyer string, opts domain.ListOpts) ([]domain.SaleOrder, error) {
	return s.orders, s.err
}

func (s *stubMarket) OrdersCreatedBy(ctx context.Context, seller string, opts domain.ListOpts) ([]domain.SaleOrder, error) {
	return s.orders, s.err
}

func (s *stubMarket) Events(ctx context.Context, opts domain.ListOpts) ([]domain.MarketEvent, error) {
	return s.events, s.err
}

func (s *stubMarket) Commission() *big.Int {
	if s.commission != nil {
		return s.commission
	}
	return big.NewInt(25)
}

func testOrder() domain.SaleOrder {
	return domain.SaleOrder{
		ID:        "0xabc",
		Seq:       1,
		Asset:     "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		AssetID:   "7",
		Seller:    "0x1111111111111111111111111111111111111111",
		Price:     big.NewInt(1000),
		Status:    domain.OrderStatusOpen,
		CreatedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
}

// newTestMux registers the market routes the way the server does, so path
// parameters resolve.
func newTestMux(stub *stubMarket) *http.ServeMux {
	h := NewMarketHandler(stub, slog.New(slog.NewTextHandler(io.Discard, nil)))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/orders", h.ListOpen)
	mux.HandleFunc("GET /api/orders/bought", h.ListBought)
	mux.HandleFunc("GET /api/orders/created", h.ListCreated)
	mux.HandleFunc("POST /api/orders", h.CreateOrder)
	mux.HandleFunc("POST /api/orders/{id}/buy", h.BuyOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", h.CancelOrder)
	mux.HandleFunc("GET /api/commission", h.GetCommission)
	mux.HandleFunc("GET /api/events", h.ListEvents)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func TestCreateOrder(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		stub := &stubMarket{order: testOrder()}
		mux := newTestMux(stub)

		rr := doJSON(t, mux, http.MethodPost, "/api/orders",
			`{"asset":"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa","asset_id":"7","seller":"0x1111111111111111111111111111111111111111","price":"1000"}`,
		)

		if rr.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201: %s", rr.Code, rr.Body)
		}
		if stub.lastList.Price.Cmp(big.NewInt(1000)) != 0 {
			t.Errorf("service saw price %s, want 1000", stub.lastList.Price)
		}

		var resp orderJSON
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.ID != "0xabc" || resp.Price != "1000" {
			t.Errorf("response = %+v", resp)
		}
	})

	t.Run("malformed price", func(t *testing.T) {
		mux := newTestMux(&stubMarket{})
		rr := doJSON(t, mux, http.MethodPost, "/api/orders", `{"price":"ten"}`)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rr.Code)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		mux := newTestMux(&stubMarket{})
		rr := doJSON(t, mux, http.MethodPost, "/api/orders", `{not json`)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rr.Code)
		}
	})
}

func TestBuyOrder(t *testing.T) {
	t.Run("passes id and value through", func(t *testing.T) {
		stub := &stubMarket{order: testOrder()}
		mux := newTestMux(stub)

		rr := doJSON(t, mux, http.MethodPost, "/api/orders/0xabc/buy",
			`{"buyer":"0x2222222222222222222222222222222222222222","value":"1000"}`,
		)

		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body)
		}
		if stub.lastBuy.OrderID != "0xabc" {
			t.Errorf("service saw order id %q, want 0xabc", stub.lastBuy.OrderID)
		}
		if stub.lastBuy.Value.Cmp(big.NewInt(1000)) != 0 {
			t.Errorf("service saw value %s, want 1000", stub.lastBuy.Value)
		}
	})

	t.Run("malformed value", func(t *testing.T) {
		mux := newTestMux(&stubMarket{})
		rr := doJSON(t, mux, http.MethodPost, "/api/orders/0xabc/buy",
			`{"buyer":"0x2222222222222222222222222222222222222222","value":"lots"}`,
		)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rr.Code)
		}
	})
}

func TestCancelOrder(t *testing.T) {
	stub := &stubMarket{}
	mux := newTestMux(stub)

	rr := doJSON(t, mux, http.MethodDelete, "/api/orders/0xabc",
		`{"seller":"0x1111111111111111111111111111111111111111"}`,
	)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body)
	}
	if stub.lastCancel.orderID != "0xabc" {
		t.Errorf("service saw order id %q, want 0xabc", stub.lastCancel.orderID)
	}
	if stub.lastCancel.caller != "0x1111111111111111111111111111111111111111" {
		t.Errorf("service saw caller %q", stub.lastCancel.caller)
	}
}

func TestListEndpoints(t *testing.T) {
	t.Run("open orders", func(t *testing.T) {
		stub := &stubMarket{orders: []domain.SaleOrder{testOrder()}}
		mux := newTestMux(stub)

		rr := doJSON(t, mux, http.MethodGet, "/api/orders", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rr.Code)
		}

		var resp listOrdersResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if len(resp.Orders) != 1 {
			t.Errorf("got %d orders, want 1", len(resp.Orders))
		}
	})

	t.Run("bought requires account", func(t *testing.T) {
		mux := newTestMux(&stubMarket{})
		rr := doJSON(t, mux, http.MethodGet, "/api/orders/bought", "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rr.Code)
		}
	})

	t.Run("created requires account", func(t *testing.T) {
		mux := newTestMux(&stubMarket{})
		rr := doJSON(t, mux, http.MethodGet, "/api/orders/created", "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rr.Code)
		}
	})

	t.Run("commission", func(t *testing.T) {
		mux := newTestMux(&stubMarket{commission: big.NewInt(25)})
		rr := doJSON(t, mux, http.MethodGet, "/api/commission", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rr.Code)
		}
		var resp map[string]string
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp["commission"] != "25" {
			t.Errorf("commission = %q, want 25", resp["commission"])
		}
	})
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidPrice, http.StatusBadRequest},
		{domain.ErrInvalidAddress, http.StatusBadRequest},
		{domain.ErrInvalidAsset, http.StatusBadRequest},
		{domain.ErrUnknownOrder, http.StatusNotFound},
		{domain.ErrInsufficientPayment, http.StatusPaymentRequired},
		{domain.ErrInsufficientFunds, http.StatusPaymentRequired},
		{domain.ErrNotSeller, http.StatusForbidden},
		{domain.ErrAlreadyExists, http.StatusConflict},
		{domain.ErrReentrancy, http.StatusConflict},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{domain.ErrTransferFailed, http.StatusUnprocessableEntity},
	}

	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			mux := newTestMux(&stubMarket{err: tc.err})
			rr := doJSON(t, mux, http.MethodPost, "/api/orders/0xabc/buy",
				`{"buyer":"0x2222222222222222222222222222222222222222","value":"1000"}`,
			)
			if rr.Code != tc.want {
				t.Errorf("error %v mapped to %d, want %d", tc.err, rr.Code, tc.want)
			}
		})
	}
}
