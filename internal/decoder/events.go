package decoder

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MovementKind classifies an asset movement event.
type MovementKind int

const (
	Deposit MovementKind = iota
	Withdraw
	Borrow
	Repay
)

// String returns the lowercase direction name.
func (k MovementKind) String() string {
	switch k {
	case Deposit:
		return "deposit"
	case Withdraw:
		return "withdraw"
	case Borrow:
		return "borrow"
	case Repay:
		return "repay"
	default:
		return "unknown"
	}
}

// Event is a decoded domain event attributed to a market contract.
type Event interface {
	Market() common.Address
}

// MarketUpdate carries the pool-wide accounting emitted on every market
// interaction.
type MarketUpdate struct {
	Address               common.Address
	Timestamp             *big.Int
	FloatingDepositShares *big.Int
	FloatingAssets        *big.Int
	FloatingBorrowShares  *big.Int
	FloatingDebt          *big.Int
}

// Market implements Event.
func (e MarketUpdate) Market() common.Address { return e.Address }

// AssetMovement is a deposit, withdraw, borrow, or repay. Maturity is nil for
// floating-pool movements and set for fixed-pool ones.
type AssetMovement struct {
	Address  common.Address
	Kind     MovementKind
	Caller   common.Address
	Assets   *big.Int
	Maturity *big.Int
}

// Market implements Event.
func (e AssetMovement) Market() common.Address { return e.Address }
