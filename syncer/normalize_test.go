package syncer

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/platinum-engineering/qdefirating-autofollow-trading-bot/models"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		decimals uint8
		want     string
	}{
		{"one ether", "1000000000000000000", 18, "1"},
		{"fractional ether", "1500000000000000000", 18, "1.5"},
		{"six decimal token", "2500000", 6, "2.5"},
		{"zero decimals", "42", 0, "42"},
		{"dust", "1", 18, "0.000000000000000001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, ok := new(big.Int).SetString(tt.raw, 10)
			if !ok {
				t.Fatalf("bad raw amount %q", tt.raw)
			}
			got := Normalize(raw, tt.decimals)
			if got.String() != tt.want {
				t.Errorf("Normalize(%s, %d) = %s, want %s", tt.raw, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestClamp(t *testing.T) {
	bounds := models.Bounds{
		MinAmount: decimal.RequireFromString("0.1"),
		MaxAmount: decimal.RequireFromString("10"),
	}

	tests := []struct {
		name   string
		amount string
		want   string
	}{
		{"below floor drops to zero", "0.05", "0"},
		{"exactly at floor drops to zero", "0.1", "0"},
		{"just above floor passes unchanged", "0.100000000000000001", "0.100000000000000001"},
		{"in range passes unchanged", "3.7", "3.7"},
		{"exactly at ceiling is capped", "10", "10"},
		{"above ceiling is capped", "250", "10"},
		{"zero stays zero", "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Clamp(decimal.RequireFromString(tt.amount), bounds)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("Clamp(%s) = %s, want %s", tt.amount, got, tt.want)
			}
		})
	}
}
