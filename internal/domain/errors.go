package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrWalletNotFound     = errors.New("wallet not found")
	ErrInvalidOrder       = errors.New("invalid order")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrHalted             = errors.New("order book halted")
)
