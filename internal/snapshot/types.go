package snapshot

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FixedPool is one time-boxed sub-market with its own balances and rates.
type FixedPool struct {
	Maturity      *big.Int
	Supplied      *big.Int
	Borrowed      *big.Int
	DepositRate   *big.Int
	MinBorrowRate *big.Int
}

// FixedPosition is one fixed borrow held by the queried account.
type FixedPosition struct {
	Maturity     *big.Int
	Principal    *big.Int
	PreviewValue *big.Int
}

// MarketSnapshot is per-market state pinned to one block. Field names mirror
// the previewer tuple components so the ABI decoder can map them directly.
type MarketSnapshot struct {
	Market                     common.Address
	AssetSymbol                string
	Decimals                   uint8
	UsdPrice                   *big.Int
	TotalFloatingDepositAssets *big.Int
	TotalFloatingDepositShares *big.Int
	TotalFloatingBorrowAssets  *big.Int
	PenaltyRate                *big.Int
	FixedPools                 []FixedPool
	FixedBorrowPositions       []FixedPosition
}

// GlobalSnapshot is the cross-contract state observed at one block.
// AccountName is "" when the reverse lookup is unconfigured or unresolved.
type GlobalSnapshot struct {
	BlockTimestamp *big.Int
	AccountName    string
	Markets        []MarketSnapshot
}

// FindMarket returns the snapshot for a market address.
func (s *GlobalSnapshot) FindMarket(address common.Address) (MarketSnapshot, bool) {
	for _, m := range s.Markets {
		if m.Market == address {
			return m, true
		}
	}
	return MarketSnapshot{}, false
}
