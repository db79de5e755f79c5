package rules

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"lending-alerts/internal/decoder"
)

// Intent is a threshold-triggered notification request. Intents carry the
// rendering data only; routing to a destination happens downstream.
type Intent interface {
	intent()
}

// UtilizationBreach reports a market lending out more than the configured
// share of its deposits.
type UtilizationBreach struct {
	Market              common.Address
	Symbol              string
	GlobalUtilization   *big.Int
	FloatingUtilization *big.Int
	Threshold           *big.Int
}

// FixedRateArbitrage reports a maturity whose deposit rate exceeds its
// minimum borrow rate.
type FixedRateArbitrage struct {
	Market        common.Address
	Symbol        string
	Maturity      *big.Int
	DepositRate   *big.Int
	MinBorrowRate *big.Int
}

// WhaleMovement reports a single asset movement above the USD threshold.
type WhaleMovement struct {
	Market   common.Address
	Symbol   string
	Decimals uint8
	Kind     decoder.MovementKind
	Caller   common.Address
	Assets   *big.Int
	UsdValue *big.Int
	GasCost  *big.Int
	Maturity *big.Int
}

// RawActivity mirrors every asset movement to the audit channel,
// independent of thresholds.
type RawActivity struct {
	Market   common.Address
	Symbol   string
	Decimals uint8
	Kind     decoder.MovementKind
	Caller   common.Address
	Assets   *big.Int
	Maturity *big.Int
}

func (UtilizationBreach) intent()  {}
func (FixedRateArbitrage) intent() {}
func (WhaleMovement) intent()      {}
func (RawActivity) intent()        {}
