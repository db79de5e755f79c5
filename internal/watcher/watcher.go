package watcher

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"lending-alerts/internal/chain"
)

// EthClient is the subset of ethclient.Client the watcher needs.
type EthClient interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	TransactionSender(ctx context.Context, tx *types.Transaction, block common.Hash, index uint) (common.Address, error)
}

// Handler consumes one transaction's worth of logs.
type Handler interface {
	ProcessTransaction(ctx context.Context, tx chain.TxEvent) error
}

// Options configure the chain watcher.
type Options struct {
	Network chain.Network
	Markets []common.Address
}

// Watcher is the hosting trigger for the market-update pipeline: it follows
// new heads, pulls each block's market logs, and invokes the pipeline once
// per transaction. Pipeline failures are logged and do not stop the watch
// loop; the failed invocation is simply surfaced.
type Watcher struct {
	client  EthClient
	handler Handler
	opts    Options
	logger  zerolog.Logger
}

// New constructs a Watcher.
func New(client EthClient, handler Handler, opts Options, logger zerolog.Logger) *Watcher {
	return &Watcher{
		client:  client,
		handler: handler,
		opts:    opts,
		logger:  logger.With().Str("component", "watcher").Logger(),
	}
}

// Run blocks, processing blocks as they arrive until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	heads := make(chan *types.Header, 16)
	sub, err := w.client.SubscribeNewHead(ctx, heads)
	if err != nil {
		return fmt.Errorf("subscribe new heads: %w", err)
	}
	defer sub.Unsubscribe()

	w.logger.Info().Int("markets", len(w.opts.Markets)).Msg("watching for market transactions")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("head subscription: %w", err)
		case head := <-heads:
			if err := w.processBlock(ctx, head); err != nil {
				w.logger.Error().Err(err).Str("block", head.Number.String()).Msg("block processing failed")
			}
		}
	}
}

func (w *Watcher) processBlock(ctx context.Context, head *types.Header) error {
	logs, err := w.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: head.Number,
		ToBlock:   head.Number,
		Addresses: w.opts.Markets,
	})
	if err != nil {
		return fmt.Errorf("filter logs: %w", err)
	}
	if len(logs) == 0 {
		return nil
	}

	// Group per transaction preserving first-seen order; each group becomes
	// one pipeline invocation.
	var order []common.Hash
	grouped := make(map[common.Hash][]chain.RawLog)
	for _, entry := range logs {
		if _, seen := grouped[entry.TxHash]; !seen {
			order = append(order, entry.TxHash)
		}
		grouped[entry.TxHash] = append(grouped[entry.TxHash], chain.RawLog{
			Address: entry.Address,
			Data:    entry.Data,
			Topics:  entry.Topics,
		})
	}

	for _, hash := range order {
		event, err := w.buildEvent(ctx, hash, grouped[hash])
		if err != nil {
			w.logger.Error().Err(err).Str("tx", hash.Hex()).Msg("failed to resolve transaction")
			continue
		}
		if err := w.handler.ProcessTransaction(ctx, event); err != nil {
			w.logger.Error().Err(err).Str("tx", hash.Hex()).Msg("pipeline invocation failed")
		}
	}
	return nil
}

func (w *Watcher) buildEvent(ctx context.Context, hash common.Hash, logs []chain.RawLog) (chain.TxEvent, error) {
	receipt, err := w.client.TransactionReceipt(ctx, hash)
	if err != nil {
		return chain.TxEvent{}, fmt.Errorf("receipt: %w", err)
	}
	tx, _, err := w.client.TransactionByHash(ctx, hash)
	if err != nil {
		return chain.TxEvent{}, fmt.Errorf("transaction: %w", err)
	}
	from, err := w.client.TransactionSender(ctx, tx, receipt.BlockHash, receipt.TransactionIndex)
	if err != nil {
		return chain.TxEvent{}, fmt.Errorf("sender: %w", err)
	}

	return chain.TxEvent{
		Network:     w.opts.Network,
		Hash:        hash,
		From:        from,
		BlockNumber: receipt.BlockNumber,
		GasUsed:     receipt.GasUsed,
		GasPrice:    receipt.EffectiveGasPrice,
		Logs:        logs,
	}, nil
}
