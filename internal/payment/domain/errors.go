package domain

import "errors"

var (
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidRemoteID = errors.New("invalid_remote_id")
	ErrInvalidState    = errors.New("invalid_state")
	ErrNotFound        = errors.New("payment_not_found")
)
