package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidPrice        = errors.New("price must be positive")
	ErrInvalidAddress      = errors.New("invalid account address")
	ErrInvalidAsset        = errors.New("invalid asset identifier")
	ErrUnknownOrder        = errors.New("unknown order")
	ErrInsufficientPayment = errors.New("payment below order price")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrNotSeller           = errors.New("caller is not the order seller")
	ErrTransferFailed      = errors.New("asset transfer failed")
	ErrReentrancy          = errors.New("mutating call already in progress")
	ErrLockHeld            = errors.New("lock already held")
	ErrSigningFailed       = errors.New("signing failed")
)
