// Package money converts between decimal prices and integer minor units.
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidAmount   = errors.New("invalid_amount")
)

// zeroDecimal lists ISO 4217 currencies without a minor unit.
var zeroDecimal = map[string]struct{}{
	"JPY": {}, "KRW": {}, "VND": {}, "CLP": {}, "ISK": {}, "UGX": {}, "XAF": {}, "XOF": {},
}

// Price is an amount in the currency's major unit.
type Price struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func NewPrice(amount string, currency string) (Price, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Price{}, ErrInvalidAmount
	}
	code, err := NormalizeCurrency(currency)
	if err != nil {
		return Price{}, err
	}
	return Price{Amount: value, Currency: code}, nil
}

func MustPrice(amount string, currency string) Price {
	price, err := NewPrice(amount, currency)
	if err != nil {
		panic(err)
	}
	return price
}

// FromMinorUnits builds a Price from an integer amount of minor units.
func FromMinorUnits(units int64, currency string) Price {
	code := strings.ToUpper(strings.TrimSpace(currency))
	return Price{
		Amount:   decimal.New(units, -Exponent(code)),
		Currency: code,
	}
}

// MinorUnits returns the amount in minor units, rounded half away from zero.
func (p Price) MinorUnits() int64 {
	return p.Amount.Shift(Exponent(p.Currency)).Round(0).IntPart()
}

func (p Price) IsPositive() bool {
	return p.MinorUnits() > 0
}

func (p Price) String() string {
	return p.Amount.StringFixed(Exponent(p.Currency)) + " " + p.Currency
}

// Exponent returns the number of minor-unit digits for the currency.
func Exponent(currency string) int32 {
	if _, ok := zeroDecimal[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		return 0
	}
	return 2
}

func NormalizeCurrency(currency string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if len(code) != 3 {
		return "", ErrInvalidCurrency
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", ErrInvalidCurrency
		}
	}
	return code, nil
}

// Split divides total minor units into count parts; the remainder lands on the first part.
func Split(total int64, count int) []int64 {
	if count <= 0 {
		return nil
	}
	base := total / int64(count)
	remainder := total - base*int64(count)
	out := make([]int64, count)
	for i := range out {
		out[i] = base
	}
	out[0] += remainder
	return out
}
