package snapshot

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const multicallABIJSON = `[
	{"type":"function","name":"tryAggregate","stateMutability":"payable","inputs":[
		{"name":"requireSuccess","type":"bool"},
		{"name":"calls","type":"tuple[]","components":[
			{"name":"target","type":"address"},
			{"name":"callData","type":"bytes"}]}],
	"outputs":[
		{"name":"returnData","type":"tuple[]","components":[
			{"name":"success","type":"bool"},
			{"name":"returnData","type":"bytes"}]}]},
	{"type":"function","name":"getCurrentBlockTimestamp","stateMutability":"view","inputs":[],
	"outputs":[{"name":"timestamp","type":"uint256"}]}
]`

var multicallABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(multicallABIJSON))
	if err != nil {
		panic("failed to parse multicall ABI: " + err.Error())
	}
	multicallABI = parsed
}

// Call is one read-only query: a target contract and its encoded calldata.
// Field names mirror the multicall tuple components.
type Call struct {
	Target   common.Address
	CallData []byte
}

// Result is the outcome of one batched call. Success=false marks a reverted
// call whose field degrades to absent downstream.
type Result struct {
	Success    bool
	ReturnData []byte
}

// Batcher executes an ordered list of calls against one pinned block and
// returns results in the same order.
type Batcher interface {
	BatchCall(ctx context.Context, block *big.Int, calls []Call) ([]Result, error)
}

// ContractCaller is the subset of ethclient.Client the batcher needs.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Multicall batches reads through an on-chain multicall aggregator so every
// query observes the same block.
type Multicall struct {
	caller  ContractCaller
	address common.Address
}

// NewMulticall wires a contract caller to the aggregator at address.
func NewMulticall(caller ContractCaller, address common.Address) *Multicall {
	return &Multicall{caller: caller, address: address}
}

// Address returns the aggregator contract address.
func (m *Multicall) Address() common.Address { return m.address }

// BatchCall implements Batcher via tryAggregate(requireSuccess=false).
func (m *Multicall) BatchCall(ctx context.Context, block *big.Int, calls []Call) ([]Result, error) {
	payload, err := multicallABI.Pack("tryAggregate", false, calls)
	if err != nil {
		return nil, fmt.Errorf("pack tryAggregate: %w", err)
	}

	to := m.address
	raw, err := m.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: payload}, block)
	if err != nil {
		return nil, fmt.Errorf("multicall: %w", err)
	}

	out, err := multicallABI.Unpack("tryAggregate", raw)
	if err != nil {
		return nil, fmt.Errorf("unpack tryAggregate: %w", err)
	}
	results := *abi.ConvertType(out[0], new([]Result)).(*[]Result)
	if len(results) != len(calls) {
		return nil, fmt.Errorf("multicall returned %d results for %d calls", len(results), len(calls))
	}
	return results, nil
}

var _ Batcher = (*Multicall)(nil)
