package utils

import (
	"github.com/shopspring/decimal"
)

type Currency struct {
	Code   string `json:"code"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	// Places is the number of minor-unit digits.
	Places int32 `json:"places"`
}

var SupportedCurrencies = map[string]Currency{
	"USD": {Code: "USD", Symbol: "$", Name: "US Dollar", Places: 2},
	"PYG": {Code: "PYG", Symbol: "₲", Name: "Paraguayan Guarani", Places: 0},
	"EUR": {Code: "EUR", Symbol: "€", Name: "Euro", Places: 2},
	"BRL": {Code: "BRL", Symbol: "R$", Name: "Brazilian Real", Places: 2},
	"ARS": {Code: "ARS", Symbol: "$", Name: "Argentine Peso", Places: 2},
	"MXN": {Code: "MXN", Symbol: "$", Name: "Mexican Peso", Places: 2},
}

// CommissionSplit is the result of applying a commission rate to a gross amount.
type CommissionSplit struct {
	Gross      float64
	Commission float64
	Net        float64
}

// RoundMoney rounds to cents, half away from zero (0.925 -> 0.93).
func RoundMoney(amount float64) float64 {
	return decimal.NewFromFloat(amount).Round(2).InexactFloat64()
}

// SplitCommission computes commission = round2(gross*rate) and net = round2(gross-commission).
// The arithmetic runs in decimal so that gross == commission + net holds exactly at cent precision.
func SplitCommission(gross, rate float64) CommissionSplit {
	g := decimal.NewFromFloat(gross).Round(2)
	commission := g.Mul(decimal.NewFromFloat(rate)).Round(2)
	net := g.Sub(commission).Round(2)

	return CommissionSplit{
		Gross:      g.InexactFloat64(),
		Commission: commission.InexactFloat64(),
		Net:        net.InexactFloat64(),
	}
}

// AddMoney sums amounts in decimal and rounds the result to cents.
func AddMoney(amounts ...float64) float64 {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(decimal.NewFromFloat(a))
	}
	return total.Round(2).InexactFloat64()
}

// IsWholeCents reports whether amount needs no rounding to be stored at cent precision.
func IsWholeCents(amount float64) bool {
	d := decimal.NewFromFloat(amount)
	return d.Equal(d.Round(2))
}

// FormatCurrency renders amount with the currency's symbol and minor units. Unknown codes
// fall back to the default currency.
func FormatCurrency(amount float64, currencyCode string) string {
	currency, exists := SupportedCurrencies[currencyCode]
	if !exists {
		currency = SupportedCurrencies[DefaultCurrency]
	}
	return currency.Symbol + decimal.NewFromFloat(amount).StringFixed(currency.Places)
}

// ValidateCurrencyCode reports whether code is one of SupportedCurrencies.
func ValidateCurrencyCode(code string) bool {
	_, exists := SupportedCurrencies[code]
	return exists
}
