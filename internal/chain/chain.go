package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Network identifies a monitored chain by its numeric chain id.
type Network uint64

type networkInfo struct {
	name         string
	explorerURL  string
	nativeSymbol string
}

var knownNetworks = map[Network]networkInfo{
	1:     {name: "ethereum", explorerURL: "https://etherscan.io", nativeSymbol: "Ξ"},
	5:     {name: "goerli", explorerURL: "https://goerli.etherscan.io", nativeSymbol: "Ξ"},
	10:    {name: "optimism", explorerURL: "https://optimistic.etherscan.io", nativeSymbol: "Ξ"},
	8453:  {name: "base", explorerURL: "https://basescan.org", nativeSymbol: "Ξ"},
	42161: {name: "arbitrum", explorerURL: "https://arbiscan.io", nativeSymbol: "Ξ"},
}

// Name returns the display name for the network, falling back to the raw id.
func (n Network) Name() string {
	if info, ok := knownNetworks[n]; ok {
		return info.name
	}
	return fmt.Sprintf("chain-%d", uint64(n))
}

// NativeSymbol returns the gas currency symbol for the network.
func (n Network) NativeSymbol() string {
	if info, ok := knownNetworks[n]; ok {
		return info.nativeSymbol
	}
	return "Ξ"
}

// TxURL returns an explorer link for a transaction, or "" when the network
// has no known explorer.
func (n Network) TxURL(hash common.Hash) string {
	info, ok := knownNetworks[n]
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s/tx/%s", info.explorerURL, hash.Hex())
}

// RawLog is one opaque log entry as emitted by the chain.
type RawLog struct {
	Address common.Address
	Data    []byte
	Topics  []common.Hash
}

// TxEvent is the trigger input for the market-update pipeline: one
// transaction together with the ordered logs it produced.
type TxEvent struct {
	Network     Network
	Hash        common.Hash
	From        common.Address
	BlockNumber *big.Int
	GasUsed     uint64
	GasPrice    *big.Int
	Logs        []RawLog
}

// GasCost returns the total native-currency cost of the transaction in wei.
func (e TxEvent) GasCost() *big.Int {
	if e.GasPrice == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(e.GasUsed), e.GasPrice)
}
