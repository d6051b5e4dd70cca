package domain

import "strings"

// Validate checks a payment before it is persisted.
func (p *Payment) Validate() error {
	if p.Amount <= 0 {
		return ErrInvalidAmount
	}
	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	if len(p.Currency) != 3 {
		return ErrInvalidCurrency
	}
	p.RemoteID = strings.TrimSpace(p.RemoteID)
	if p.RemoteID == "" {
		return ErrInvalidRemoteID
	}
	if !p.State.Valid() {
		return ErrInvalidState
	}
	return nil
}
