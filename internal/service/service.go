package service

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"lending-alerts/internal/chain"
	"lending-alerts/internal/decoder"
	"lending-alerts/internal/guard"
	"lending-alerts/internal/notify"
	"lending-alerts/internal/rules"
	"lending-alerts/internal/snapshot"
	"lending-alerts/internal/storage"
)

// SnapshotReader supplies the block-pinned cross-contract state.
type SnapshotReader interface {
	Snapshot(ctx context.Context, block *big.Int, account common.Address) (*snapshot.GlobalSnapshot, error)
}

// IconStore serves the optional per-symbol footer icons.
type IconStore interface {
	GetString(ctx context.Context, key string) (string, error)
}

// Service orchestrates the market-update pipeline: decode, guard, snapshot,
// rules, fan-out.
type Service struct {
	registry *decoder.Registry
	reader   SnapshotReader
	guard    *guard.Guard
	engine   *rules.Engine
	fanout   *notify.Fanout
	icons    IconStore
	failFast bool
	logger   zerolog.Logger
}

// New constructs the pipeline service. failFast selects the delivery failure
// policy for this path: true propagates any alert delivery failure to the
// host.
func New(registry *decoder.Registry, reader SnapshotReader, shareGuard *guard.Guard, engine *rules.Engine, fanout *notify.Fanout, icons IconStore, failFast bool, logger zerolog.Logger) *Service {
	return &Service{
		registry: registry,
		reader:   reader,
		guard:    shareGuard,
		engine:   engine,
		fanout:   fanout,
		icons:    icons,
		failFast: failFast,
		logger:   logger.With().Str("component", "service").Logger(),
	}
}

// ProcessTransaction 处理单笔触发交易的完整日志批次。
// Guard checks run sequentially before any alerting; a violation aborts the
// invocation, and share values already persisted for earlier logs in the
// batch intentionally stay persisted.
func (s *Service) ProcessTransaction(ctx context.Context, tx chain.TxEvent) error {
	events := s.registry.DecodeBatch(tx.Logs)
	if len(events) == 0 {
		s.logger.Debug().Str("tx", tx.Hash.Hex()).Msg("no recognized events in transaction")
		return nil
	}

	for _, ev := range events {
		update, ok := ev.(decoder.MarketUpdate)
		if !ok {
			continue
		}
		value := guard.ShareValue(update.FloatingAssets, update.FloatingDepositShares)
		if err := s.guard.Check(ctx, guard.Key(tx.Network, update.Address), value); err != nil {
			return err
		}
	}

	snap, err := s.reader.Snapshot(ctx, tx.BlockNumber, tx.From)
	if err != nil {
		return err
	}

	intents := s.engine.Evaluate(snap, events, tx.GasCost())
	if len(intents) == 0 {
		return nil
	}

	sender := snap.AccountName
	if sender == "" {
		sender = tx.From.Hex()
	}
	timestamp := time.Now().UTC()
	if snap.BlockTimestamp != nil && snap.BlockTimestamp.Sign() > 0 {
		timestamp = time.Unix(snap.BlockTimestamp.Int64(), 0).UTC()
	}

	routed := notify.RenderIntents(intents, notify.RenderContext{
		Network:   tx.Network,
		TxHash:    tx.Hash,
		Sender:    sender,
		Icons:     s.loadIcons(ctx, snap),
		Timestamp: timestamp,
	})
	return s.fanout.Dispatch(ctx, tx.Network, routed, s.failFast)
}

// loadIcons fetches footer icons for every market symbol, best effort.
func (s *Service) loadIcons(ctx context.Context, snap *snapshot.GlobalSnapshot) map[string]string {
	icons := make(map[string]string, len(snap.Markets))
	if s.icons == nil {
		return icons
	}
	for _, market := range snap.Markets {
		icon, err := s.icons.GetString(ctx, market.AssetSymbol+".icon")
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, storage.ErrNotConfigured) {
				s.logger.Debug().Err(err).Str("symbol", market.AssetSymbol).Msg("icon lookup failed")
			}
			continue
		}
		icons[market.AssetSymbol] = icon
	}
	return icons
}
