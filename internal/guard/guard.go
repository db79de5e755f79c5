package guard

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"lending-alerts/internal/chain"
)

var wad = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Store is the persisted big-integer record the guard remembers across
// invocations. Missing keys read as zero; records are never deleted.
type Store interface {
	GetBigInt(ctx context.Context, key string) (*big.Int, error)
	PutBigInt(ctx context.Context, key string, value *big.Int) error
}

// ViolationError marks a share value regression. It is security relevant and
// must abort the invocation; the host's failure handling is the escalation
// path.
type ViolationError struct {
	Key       string
	Stored    *big.Int
	Submitted *big.Int
}

// Error implements error.
func (e *ViolationError) Error() string {
	return fmt.Sprintf("%s decreased: stored %s, got %s", e.Key, e.Stored, e.Submitted)
}

// Guard enforces that a per-market share value never regresses.
type Guard struct {
	store  Store
	logger zerolog.Logger
}

// New constructs a Guard over the persistent store.
func New(store Store, logger zerolog.Logger) *Guard {
	return &Guard{store: store, logger: logger.With().Str("component", "guard").Logger()}
}

// Key builds the persistent record key for a market's share value.
func Key(network chain.Network, market common.Address) string {
	return fmt.Sprintf("%d:%s:shareValue", uint64(network), strings.ToLower(market.Hex()))
}

// ShareValue computes assets*1e18/shares in integer arithmetic. Zero shares
// is a valid degenerate state and yields zero.
func ShareValue(totalAssets, totalShares *big.Int) *big.Int {
	if totalShares == nil || totalShares.Sign() == 0 {
		return new(big.Int)
	}
	value := new(big.Int).Mul(totalAssets, wad)
	return value.Div(value, totalShares)
}

// Check verifies newValue against the stored record and persists it on
// success. A regression returns *ViolationError and leaves the record
// untouched.
func (g *Guard) Check(ctx context.Context, key string, newValue *big.Int) error {
	stored, err := g.store.GetBigInt(ctx, key)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if newValue.Cmp(stored) < 0 {
		return &ViolationError{Key: key, Stored: stored, Submitted: newValue}
	}
	if err := g.store.PutBigInt(ctx, key, newValue); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	g.logger.Debug().Str("key", key).Str("value", newValue.String()).Msg("share value recorded")
	return nil
}
