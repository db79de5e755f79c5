package format

import (
	"math/big"
	"testing"
)

func wadMul(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func TestUnits(t *testing.T) {
	n, _ := new(big.Int).SetString("1234500000000000000", 10)
	if got := Units(n, 18); got != "1.2345" {
		t.Fatalf("Units 错误: %q", got)
	}
	if got := Units(nil, 18); got != "0" {
		t.Fatalf("nil 应渲染为 0: %q", got)
	}
}

func TestAmountRoundsBySymbol(t *testing.T) {
	n, _ := new(big.Int).SetString("1234567890000000000", 10)
	cases := map[string]string{
		"WETH":  "1.2346 WETH",
		"DAI":   "1.23 DAI",
		"OTHER": "1.23456789 OTHER",
	}
	for symbol, want := range cases {
		if got := Amount(n, 18, symbol); got != want {
			t.Fatalf("Amount(%s): 期望 %q, 实际 %q", symbol, want, got)
		}
	}
}

func TestUSD(t *testing.T) {
	if got := USD(wadMul(1234)); got != "$1234.00" {
		t.Fatalf("USD 错误: %q", got)
	}
}

func TestPercent(t *testing.T) {
	n := new(big.Int).Mul(big.NewInt(85), new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil))
	if got := Percent(n); got != "85.00%" {
		t.Fatalf("Percent 错误: %q", got)
	}
}

func TestPenaltyPerDay(t *testing.T) {
	// 1e11 per second over 86_400s at a factor of 100 for percent.
	if got := PenaltyPerDay(big.NewInt(100_000_000_000)); got != "0.86%" {
		t.Fatalf("PenaltyPerDay 错误: %q", got)
	}
}

func TestMaturity(t *testing.T) {
	if got := Maturity(big.NewInt(1_712_448_000)); got != "2024-04-07" {
		t.Fatalf("Maturity 错误: %q", got)
	}
	if got := Maturity(nil); got != "" {
		t.Fatalf("nil maturity 应渲染为空: %q", got)
	}
}
