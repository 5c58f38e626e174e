package utils

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestSplitCommission(t *testing.T) {
	tests := []struct {
		name       string
		gross      float64
		rate       float64
		commission float64
		net        float64
	}{
		{"default rate", 150000, 0.05, 7500, 142500},
		{"half cent rounds up", 18.50, 0.05, 0.93, 17.57},
		{"zero gross", 0, 0.05, 0, 0},
		{"zero rate", 99.99, 0, 0, 99.99},
		{"third of a cent", 10.01, 0.1, 1.00, 9.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			split := SplitCommission(tt.gross, tt.rate)
			if split.Commission != tt.commission {
				t.Errorf("commission = %v, want %v", split.Commission, tt.commission)
			}
			if split.Net != tt.net {
				t.Errorf("net = %v, want %v", split.Net, tt.net)
			}
			sum := decimal.NewFromFloat(split.Commission).Add(decimal.NewFromFloat(split.Net))
			if !sum.Equal(decimal.NewFromFloat(split.Gross)) {
				t.Errorf("commission + net = %s, want %v", sum, split.Gross)
			}
		})
	}
}

func TestRoundMoney(t *testing.T) {
	if got := RoundMoney(0.925); got != 0.93 {
		t.Fatalf("RoundMoney(0.925) = %v", got)
	}
	if got := RoundMoney(-0.925); got != -0.93 {
		t.Fatalf("RoundMoney(-0.925) = %v", got)
	}
	if got := AddMoney(0.1, 0.2); got != 0.3 {
		t.Fatalf("AddMoney(0.1, 0.2) = %v", got)
	}
}

func TestFormatCurrency(t *testing.T) {
	if got := FormatCurrency(1234.5, "USD"); got != "$1234.50" {
		t.Fatalf("got %q", got)
	}
	if got := FormatCurrency(150000, "PYG"); got != "₲150000" {
		t.Fatalf("got %q", got)
	}
	if got := FormatCurrency(2, "XXX"); got != "₲2" {
		t.Fatalf("unknown code fallback = %q", got)
	}
}

func TestIsWholeCents(t *testing.T) {
	for _, amount := range []float64{0, 18.5, 18.51, 100, 0.1} {
		if !IsWholeCents(amount) {
			t.Errorf("IsWholeCents(%v) = false", amount)
		}
	}
	for _, amount := range []float64{18.505, 0.001, 33.333} {
		if IsWholeCents(amount) {
			t.Errorf("IsWholeCents(%v) = true", amount)
		}
	}
}
