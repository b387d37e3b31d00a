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
)

type stubLedger struct {
	balances map[string]*big.Int
}

func newStubLedger() *stubLedger {
	return &stubLedger{balances: make(map[string]*big.Int)}
}

func (l *stubLedger) Move(ctx context.Context, from, to string, amount *big.Int) error {
	return nil
}

func (l *stubLedger) Deposit(ctx context.Context, account string, amount *big.Int) error {
	cur, ok := l.balances[account]
	if !ok {
		cur = new(big.Int)
	}
	l.balances[account] = new(big.Int).Add(cur, amount)
	return nil
}

func (l *stubLedger) Balance(ctx context.Context, account string) (*big.Int, error) {
	if b, ok := l.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func newAccountMux(ledger *stubLedger) *http.ServeMux {
	h := NewAccountHandler(ledger, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/accounts/{address}/balance", h.GetBalance)
	mux.HandleFunc("POST /api/accounts/{address}/deposit", h.Deposit)
	return mux
}

func TestGetBalance(t *testing.T) {
	ledger := newStubLedger()
	ledger.balances["0x1111111111111111111111111111111111111111"] = big.NewInt(5000)
	mux := newAccountMux(ledger)

	t.Run("known account", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/api/accounts/0x1111111111111111111111111111111111111111/balance", nil)
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rr.Code)
		}
		var resp map[string]string
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp["balance"] != "5000" {
			t.Errorf("balance = %q, want 5000", resp["balance"])
		}
	})

	t.Run("unknown account is zero", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/api/accounts/0x2222222222222222222222222222222222222222/balance", nil)
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rr.Code)
		}
		var resp map[string]string
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp["balance"] != "0" {
			t.Errorf("balance = %q, want 0", resp["balance"])
		}
	})

	t.Run("malformed address", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/accounts/nope/balance", nil)
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rr.Code)
		}
	})
}

func TestDeposit(t *testing.T) {
	t.Run("credits and returns new balance", func(t *testing.T) {
		ledger := newStubLedger()
		mux := newAccountMux(ledger)

		req := httptest.NewRequest(http.MethodPost,
			"/api/accounts/0x1111111111111111111111111111111111111111/deposit",
			strings.NewReader(`{"amount":"2500"}`))
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body)
		}
		var resp map[string]string
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp["balance"] != "2500" {
			t.Errorf("balance = %q, want 2500", resp["balance"])
		}
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		mux := newAccountMux(newStubLedger())

		for _, amount := range []string{"0", "-10", "abc"} {
			req := httptest.NewRequest(http.MethodPost,
				"/api/accounts/0x1111111111111111111111111111111111111111/deposit",
				strings.NewReader(`{"amount":"`+amount+`"}`))
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, req)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("amount %q: status = %d, want 400", amount, rr.Code)
			}
		}
	})
}
