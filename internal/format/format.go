package format

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Per-symbol display precision; unknown symbols keep full precision.
var fractionDigits = map[string]int32{
	"Ξ":      4,
	"gwei":   1,
	"WETH":   4,
	"DAI":    2,
	"USDC":   2,
	"WBTC":   5,
	"wstETH": 4,
}

var penaltyPerDayFactor = decimal.NewFromInt(8_640_000)

// Units renders a fixed-point integer at the given decimals scale.
func Units(n *big.Int, decimals uint8) string {
	if n == nil {
		return "0"
	}
	return decimal.NewFromBigInt(n, -int32(decimals)).String()
}

// Amount renders a fixed-point integer with the symbol appended, rounded to
// the symbol's customary precision.
func Amount(n *big.Int, decimals uint8, symbol string) string {
	if n == nil {
		n = new(big.Int)
	}
	d := decimal.NewFromBigInt(n, -int32(decimals))
	if digits, ok := fractionDigits[symbol]; ok {
		d = d.Round(digits)
	}
	return d.String() + " " + symbol
}

// USD renders a 1e18-scaled USD value with two fraction digits.
func USD(n *big.Int) string {
	if n == nil {
		n = new(big.Int)
	}
	return "$" + decimal.NewFromBigInt(n, -18).StringFixed(2)
}

// Percent renders a 1e18-scaled ratio as a percentage with two fraction
// digits. Display only; comparisons stay in integer space.
func Percent(n *big.Int) string {
	if n == nil {
		n = new(big.Int)
	}
	return decimal.NewFromBigInt(n, -18).Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}

// PenaltyPerDay converts a per-second 1e18-scaled penalty rate into a daily
// percentage string.
func PenaltyPerDay(rate *big.Int) string {
	if rate == nil {
		rate = new(big.Int)
	}
	return decimal.NewFromBigInt(rate, -18).Mul(penaltyPerDayFactor).StringFixed(2) + "%"
}

// Maturity renders a unix maturity timestamp as an ISO date.
func Maturity(maturity *big.Int) string {
	if maturity == nil {
		return ""
	}
	return time.Unix(maturity.Int64(), 0).UTC().Format("2006-01-02")
}
