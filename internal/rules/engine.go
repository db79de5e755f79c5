package rules

import (
	"math/big"
	"sort"

	"github.com/rs/zerolog"

	"lending-alerts/internal/decoder"
	"lending-alerts/internal/snapshot"
)

var wad = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Thresholds gate the configurable rules. A nil threshold disables its rule;
// that is configuration, not an error. Utilization is a 1e18-scaled ratio,
// WhaleUSD a 1e18-scaled dollar amount.
type Thresholds struct {
	Utilization *big.Int
	WhaleUSD    *big.Int
}

// Engine evaluates the alert rules over one snapshot and one batch of
// decoded events.
type Engine struct {
	thresholds Thresholds
	logger     zerolog.Logger
}

// NewEngine constructs a rule engine.
func NewEngine(thresholds Thresholds, logger zerolog.Logger) *Engine {
	return &Engine{
		thresholds: thresholds,
		logger:     logger.With().Str("component", "rules").Logger(),
	}
}

// Evaluate produces the ordered alert intents for one invocation: market
// rules in snapshot order, then event rules in batch order. gasCost is the
// triggering transaction's total fee in wei (nil for periodic runs).
func (e *Engine) Evaluate(snap *snapshot.GlobalSnapshot, events []decoder.Event, gasCost *big.Int) []Intent {
	var intents []Intent

	for _, market := range snap.Markets {
		if breach, ok := e.utilizationBreach(market); ok {
			intents = append(intents, breach)
		}
		intents = append(intents, fixedRateArbitrages(market)...)
	}

	for _, ev := range events {
		movement, ok := ev.(decoder.AssetMovement)
		if !ok {
			continue
		}
		market, found := snap.FindMarket(movement.Address)
		if !found {
			e.logger.Debug().Str("market", movement.Address.Hex()).Msg("movement for market missing from snapshot")
			continue
		}
		if whale, ok := e.whaleMovement(market, movement, gasCost); ok {
			intents = append(intents, whale)
		}
		intents = append(intents, RawActivity{
			Market:   market.Market,
			Symbol:   market.AssetSymbol,
			Decimals: market.Decimals,
			Kind:     movement.Kind,
			Caller:   movement.Caller,
			Assets:   movement.Assets,
			Maturity: movement.Maturity,
		})
	}

	return intents
}

// Utilization computes the 1e18-scaled global and floating-only utilization
// for a market. ok=false when the market has no floating deposits.
func Utilization(market snapshot.MarketSnapshot) (global, floating *big.Int, ok bool) {
	deposits := market.TotalFloatingDepositAssets
	if deposits == nil || deposits.Sign() <= 0 {
		return nil, nil, false
	}

	// Fixed pools funded from the floating pool (net supply below zero)
	// count towards global borrow.
	fixedNet := new(big.Int)
	for _, pool := range market.FixedPools {
		fixedNet.Add(fixedNet, new(big.Int).Sub(pool.Supplied, pool.Borrowed))
	}
	globalBorrow := new(big.Int).Set(market.TotalFloatingBorrowAssets)
	if fixedNet.Sign() < 0 {
		globalBorrow.Sub(globalBorrow, fixedNet)
	}

	global = new(big.Int).Mul(globalBorrow, wad)
	global.Div(global, deposits)
	floating = new(big.Int).Mul(market.TotalFloatingBorrowAssets, wad)
	floating.Div(floating, deposits)
	return global, floating, true
}

func (e *Engine) utilizationBreach(market snapshot.MarketSnapshot) (Intent, bool) {
	if e.thresholds.Utilization == nil {
		return nil, false
	}
	global, floating, ok := Utilization(market)
	if !ok || global.Cmp(e.thresholds.Utilization) < 0 {
		return nil, false
	}
	return UtilizationBreach{
		Market:              market.Market,
		Symbol:              market.AssetSymbol,
		GlobalUtilization:   global,
		FloatingUtilization: floating,
		Threshold:           e.thresholds.Utilization,
	}, true
}

func fixedRateArbitrages(market snapshot.MarketSnapshot) []Intent {
	pools := make([]snapshot.FixedPool, len(market.FixedPools))
	copy(pools, market.FixedPools)
	sort.Slice(pools, func(i, j int) bool {
		return pools[i].Maturity.Cmp(pools[j].Maturity) < 0
	})

	var intents []Intent
	for _, pool := range pools {
		if pool.DepositRate.Cmp(pool.MinBorrowRate) <= 0 {
			continue
		}
		intents = append(intents, FixedRateArbitrage{
			Market:        market.Market,
			Symbol:        market.AssetSymbol,
			Maturity:      pool.Maturity,
			DepositRate:   pool.DepositRate,
			MinBorrowRate: pool.MinBorrowRate,
		})
	}
	return intents
}

func (e *Engine) whaleMovement(market snapshot.MarketSnapshot, movement decoder.AssetMovement, gasCost *big.Int) (Intent, bool) {
	if e.thresholds.WhaleUSD == nil || market.UsdPrice == nil {
		return nil, false
	}

	usd := new(big.Int).Mul(movement.Assets, market.UsdPrice)
	usd.Div(usd, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(market.Decimals)), nil))
	if usd.Cmp(e.thresholds.WhaleUSD) < 0 {
		return nil, false
	}
	return WhaleMovement{
		Market:   market.Market,
		Symbol:   market.AssetSymbol,
		Decimals: market.Decimals,
		Kind:     movement.Kind,
		Caller:   movement.Caller,
		Assets:   movement.Assets,
		UsdValue: usd,
		GasCost:  gasCost,
		Maturity: movement.Maturity,
	}, true
}
