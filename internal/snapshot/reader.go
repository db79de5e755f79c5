package snapshot

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

const previewerABIJSON = `[
	{"type":"function","name":"exactly","stateMutability":"view","inputs":[
		{"name":"account","type":"address"}],
	"outputs":[{"name":"data","type":"tuple[]","components":[
		{"name":"market","type":"address"},
		{"name":"assetSymbol","type":"string"},
		{"name":"decimals","type":"uint8"},
		{"name":"usdPrice","type":"uint256"},
		{"name":"totalFloatingDepositAssets","type":"uint256"},
		{"name":"totalFloatingDepositShares","type":"uint256"},
		{"name":"totalFloatingBorrowAssets","type":"uint256"},
		{"name":"penaltyRate","type":"uint256"},
		{"name":"fixedPools","type":"tuple[]","components":[
			{"name":"maturity","type":"uint256"},
			{"name":"supplied","type":"uint256"},
			{"name":"borrowed","type":"uint256"},
			{"name":"depositRate","type":"uint256"},
			{"name":"minBorrowRate","type":"uint256"}]},
		{"name":"fixedBorrowPositions","type":"tuple[]","components":[
			{"name":"maturity","type":"uint256"},
			{"name":"principal","type":"uint256"},
			{"name":"previewValue","type":"uint256"}]}
	]}]}
]`

const reverseRecordsABIJSON = `[
	{"type":"function","name":"getNames","stateMutability":"view","inputs":[
		{"name":"addresses","type":"address[]"}],
	"outputs":[{"name":"names","type":"string[]"}]}
]`

var (
	previewerABI      abi.ABI
	reverseRecordsABI abi.ABI
)

func init() {
	var err error
	if previewerABI, err = abi.JSON(strings.NewReader(previewerABIJSON)); err != nil {
		panic("failed to parse previewer ABI: " + err.Error())
	}
	if reverseRecordsABI, err = abi.JSON(strings.NewReader(reverseRecordsABIJSON)); err != nil {
		panic("failed to parse reverse records ABI: " + err.Error())
	}
}

// Options locate the read-only contracts the reader aggregates over.
// ReverseRecords is optional; the zero address disables name resolution.
type Options struct {
	Multicall      common.Address
	Previewer      common.Address
	ReverseRecords common.Address
}

// Reader builds block-consistent snapshots through a single batched call.
type Reader struct {
	batcher Batcher
	opts    Options
	logger  zerolog.Logger
}

// NewReader constructs a snapshot reader.
func NewReader(batcher Batcher, opts Options, logger zerolog.Logger) *Reader {
	return &Reader{
		batcher: batcher,
		opts:    opts,
		logger:  logger.With().Str("component", "snapshot_reader").Logger(),
	}
}

// Snapshot reads the global state pinned to block (nil means latest) for one
// account. The batch is atomic: every field reflects the same block. Only a
// transport failure is fatal; the name lookup degrades to absent.
func (r *Reader) Snapshot(ctx context.Context, block *big.Int, account common.Address) (*GlobalSnapshot, error) {
	tsPayload, err := multicallABI.Pack("getCurrentBlockTimestamp")
	if err != nil {
		return nil, fmt.Errorf("pack timestamp call: %w", err)
	}
	calls := []Call{{Target: r.opts.Multicall, CallData: tsPayload}}

	nameIdx := -1
	if r.opts.ReverseRecords != (common.Address{}) && account != (common.Address{}) {
		namePayload, packErr := reverseRecordsABI.Pack("getNames", []common.Address{account})
		if packErr != nil {
			return nil, fmt.Errorf("pack getNames call: %w", packErr)
		}
		nameIdx = len(calls)
		calls = append(calls, Call{Target: r.opts.ReverseRecords, CallData: namePayload})
	}

	viewPayload, err := previewerABI.Pack("exactly", account)
	if err != nil {
		return nil, fmt.Errorf("pack previewer call: %w", err)
	}
	viewIdx := len(calls)
	calls = append(calls, Call{Target: r.opts.Previewer, CallData: viewPayload})

	results, err := r.batcher.BatchCall(ctx, block, calls)
	if err != nil {
		return nil, err
	}

	snap := &GlobalSnapshot{BlockTimestamp: new(big.Int)}

	if ts, ok := unpackTimestamp(results[0]); ok {
		snap.BlockTimestamp = ts
	} else {
		r.logger.Warn().Msg("block timestamp unavailable in batch")
	}

	if nameIdx >= 0 {
		if name, ok := unpackName(results[nameIdx]); ok {
			snap.AccountName = name
		}
	}

	markets, err := unpackMarkets(results[viewIdx])
	if err != nil {
		return nil, err
	}
	snap.Markets = markets
	return snap, nil
}

// AccountViews reads the per-market view for many accounts in one batch,
// pinned to the same block. Results follow the input account order.
func (r *Reader) AccountViews(ctx context.Context, block *big.Int, accounts []common.Address) ([][]MarketSnapshot, error) {
	calls := make([]Call, 0, len(accounts))
	for _, account := range accounts {
		payload, err := previewerABI.Pack("exactly", account)
		if err != nil {
			return nil, fmt.Errorf("pack previewer call: %w", err)
		}
		calls = append(calls, Call{Target: r.opts.Previewer, CallData: payload})
	}

	results, err := r.batcher.BatchCall(ctx, block, calls)
	if err != nil {
		return nil, err
	}

	views := make([][]MarketSnapshot, len(accounts))
	for i, res := range results {
		markets, unpackErr := unpackMarkets(res)
		if unpackErr != nil {
			return nil, fmt.Errorf("account %s: %w", accounts[i], unpackErr)
		}
		views[i] = markets
	}
	return views, nil
}

func unpackTimestamp(res Result) (*big.Int, bool) {
	if !res.Success {
		return nil, false
	}
	out, err := multicallABI.Unpack("getCurrentBlockTimestamp", res.ReturnData)
	if err != nil {
		return nil, false
	}
	ts, ok := out[0].(*big.Int)
	return ts, ok
}

func unpackName(res Result) (string, bool) {
	if !res.Success {
		return "", false
	}
	out, err := reverseRecordsABI.Unpack("getNames", res.ReturnData)
	if err != nil {
		return "", false
	}
	names, ok := out[0].([]string)
	if !ok || len(names) == 0 || names[0] == "" {
		return "", false
	}
	return names[0], true
}

func unpackMarkets(res Result) ([]MarketSnapshot, error) {
	if !res.Success {
		return nil, errors.New("previewer call reverted")
	}
	out, err := previewerABI.Unpack("exactly", res.ReturnData)
	if err != nil {
		return nil, fmt.Errorf("unpack previewer view: %w", err)
	}
	return *abi.ConvertType(out[0], new([]MarketSnapshot)).(*[]MarketSnapshot), nil
}
