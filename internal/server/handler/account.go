package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vktrn/marketd/internal/domain"
)

// AccountHandler serves account balance endpoints over the settlement ledger.
type AccountHandler struct {
	ledger domain.Ledger
	logger *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(ledger domain.Ledger, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		ledger: ledger,
		logger: logHandler(logger, "accounts"),
	}
}

// GetBalance returns the native-unit balance of an account.
// GET /api/accounts/{address}/balance
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	address := pathParam(r, "address")
	if !common.IsHexAddress(address) {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}

	balance, err := h.ledger.Balance(r.Context(), address)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get balance failed",
			slog.String("account", address),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get balance")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"account": address,
		"balance": balance.String(),
	})
}

// depositRequest is the JSON body for a deposit.
type depositRequest struct {
	Amount string `json:"amount"` // decimal string, native units
}

// Deposit credits an account with native units.
// POST /api/accounts/{address}/deposit
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	address := pathParam(r, "address")
	if !common.IsHexAddress(address) {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be a positive decimal string")
		return
	}

	if err := h.ledger.Deposit(r.Context(), address, amount); err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			writeError(w, http.StatusPaymentRequired, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: deposit failed",
			slog.String("account", address),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to deposit")
		return
	}

	balance, err := h.ledger.Balance(r.Context(), address)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"account": address})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"account": address,
		"balance": balance.String(),
	})
}
