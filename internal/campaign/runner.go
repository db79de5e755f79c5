package campaign

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lending-alerts/internal/chain"
	"lending-alerts/internal/format"
	"lending-alerts/internal/notify"
	"lending-alerts/internal/snapshot"
)

// Persistent store keys.
const (
	// DelayKey overrides the configured reminder lead time (seconds).
	DelayKey = "notificationsDelay"
	// RecordKey holds the audit record of the latest run, overwritten
	// wholesale each time.
	RecordKey = "notificationsResults"
)

// DefaultDelay is the reminder lead time when neither the store nor the
// configuration provides one.
const DefaultDelay = 24 * time.Hour

const secondsPerDay = 86_400

// Outcome is the delivery result for one recipient-position pair.
type Outcome struct {
	Subscriber       string `json:"subscriber"`
	Symbol           string `json:"symbol"`
	MaturityISO      string `json:"maturityISO"`
	TotalDebt        string `json:"totalDebt"`
	ChainID          uint64 `json:"chainId"`
	SuccessfullySent bool   `json:"successfullySent"`
	Error            string `json:"error,omitempty"`
}

// RunRecord is the point-in-time audit snapshot of one campaign run.
type RunRecord struct {
	RunID         string    `json:"runId"`
	LastRun       int64     `json:"lastRun"`
	Notifications []Outcome `json:"notifications"`
}

// PositionSource reads the per-account market views in one pinned batch.
type PositionSource interface {
	AccountViews(ctx context.Context, block *big.Int, accounts []common.Address) ([][]snapshot.MarketSnapshot, error)
}

// RecordStore persists the run audit record and serves the delay override.
type RecordStore interface {
	GetBigInt(ctx context.Context, key string) (*big.Int, error)
	PutJSON(ctx context.Context, key string, value any) error
}

// Options tune the campaign runner.
type Options struct {
	Network      chain.Network
	DashboardURL string
	Delay        time.Duration
}

// Runner 周期性扫描订阅者的到期借款并逐个发送提醒。
// Delivery failures are recoverable per recipient: one failure never aborts
// the rest of the run, it only lands in the failure digest.
type Runner struct {
	positions PositionSource
	subs      SubscriberSource
	sender    Sender
	fanout    *notify.Fanout
	store     RecordStore
	opts      Options
	logger    zerolog.Logger
}

// NewRunner constructs a campaign runner.
func NewRunner(positions PositionSource, subs SubscriberSource, sender Sender, fanout *notify.Fanout, store RecordStore, opts Options, logger zerolog.Logger) *Runner {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	return &Runner{
		positions: positions,
		subs:      subs,
		sender:    sender,
		fanout:    fanout,
		store:     store,
		opts:      opts,
		logger:    logger.With().Str("component", "campaign").Logger(),
	}
}

type reminder struct {
	recipient common.Address
	title     string
	body      string
	outcome   Outcome
}

// Run executes one campaign tick: enumerate subscribers, compute eligible
// reminders, deliver them concurrently, persist the audit record, then fan
// out the success and failure digests.
func (r *Runner) Run(ctx context.Context, now time.Time) (*RunRecord, error) {
	delay := r.delaySeconds(ctx)
	nowUnix := now.Unix()

	subscribers, err := r.subs.Subscribers(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate subscribers: %w", err)
	}

	var views [][]snapshot.MarketSnapshot
	if len(subscribers) > 0 {
		views, err = r.positions.AccountViews(ctx, nil, subscribers)
		if err != nil {
			return nil, fmt.Errorf("read subscriber positions: %w", err)
		}
	}

	reminders := r.collectReminders(subscribers, views, nowUnix, delay)
	outcomes := r.deliver(ctx, reminders)

	record := &RunRecord{
		RunID:         uuid.NewString(),
		LastRun:       nowUnix,
		Notifications: outcomes,
	}
	if err := r.store.PutJSON(ctx, RecordKey, record); err != nil {
		return nil, fmt.Errorf("persist run record: %w", err)
	}

	r.dispatchDigests(ctx, outcomes, now)

	r.logger.Info().
		Str("run_id", record.RunID).
		Int("subscribers", len(subscribers)).
		Int("notifications", len(outcomes)).
		Msg("campaign run complete")
	return record, nil
}

func (r *Runner) delaySeconds(ctx context.Context) int64 {
	delay := int64(r.opts.Delay / time.Second)
	if override, err := r.store.GetBigInt(ctx, DelayKey); err == nil && override.Sign() > 0 {
		delay = override.Int64()
	}
	return delay
}

// collectReminders walks subscribers, markets, and positions in input order;
// the resulting slice order is the digest order.
func (r *Runner) collectReminders(subscribers []common.Address, views [][]snapshot.MarketSnapshot, nowUnix, delay int64) []reminder {
	var reminders []reminder
	for i, subscriber := range subscribers {
		for _, market := range views[i] {
			for _, pos := range market.FixedBorrowPositions {
				if pos.PreviewValue == nil || pos.PreviewValue.Sign() == 0 {
					continue
				}
				maturity := pos.Maturity.Int64()
				if maturity-nowUnix > delay {
					continue
				}

				daysLeft := floorDiv(maturity-nowUnix, secondsPerDay)
				totalDebt := format.Units(pos.PreviewValue, market.Decimals)
				principal := format.Units(pos.Principal, market.Decimals)

				reminders = append(reminders, reminder{
					recipient: subscriber,
					title:     titleMsg(daysLeft, market.AssetSymbol),
					body:      bodyMsg(daysLeft, principal, market.AssetSymbol, totalDebt, market.PenaltyRate),
					outcome: Outcome{
						Subscriber:  subscriber.Hex(),
						Symbol:      market.AssetSymbol,
						MaturityISO: format.Maturity(pos.Maturity),
						TotalDebt:   totalDebt,
						ChainID:     uint64(r.opts.Network),
					},
				})
			}
		}
	}
	return reminders
}

// deliver sends all reminders concurrently; outcomes keep reminder order,
// never completion order.
func (r *Runner) deliver(ctx context.Context, reminders []reminder) []Outcome {
	outcomes := make([]Outcome, len(reminders))
	var wg sync.WaitGroup
	for i, rem := range reminders {
		wg.Add(1)
		go func(i int, rem reminder) {
			defer wg.Done()
			outcome := rem.outcome
			if err := r.sender.Notify(ctx, rem.recipient, rem.title, rem.body, r.opts.DashboardURL); err != nil {
				outcome.SuccessfullySent = false
				outcome.Error = err.Error()
			} else {
				outcome.SuccessfullySent = true
			}
			outcomes[i] = outcome
		}(i, rem)
	}
	wg.Wait()
	return outcomes
}

func (r *Runner) dispatchDigests(ctx context.Context, outcomes []Outcome, now time.Time) {
	var sent, failed []Outcome
	for _, outcome := range outcomes {
		if outcome.SuccessfullySent {
			sent = append(sent, outcome)
		} else {
			failed = append(failed, outcome)
		}
	}

	digests := []notify.Routed{{
		Destination: notify.DestReceipts,
		Message:     r.successDigest(sent, now),
	}}
	if len(failed) > 0 {
		digests = append(digests, notify.Routed{
			Destination: notify.DestMonitoring,
			Message:     r.failureDigest(failed, now),
		})
	}

	// Digest destinations are independently optional and their failures are
	// recoverable, mirroring the per-recipient policy.
	_ = r.fanout.Dispatch(ctx, r.opts.Network, digests, false)
}

func (r *Runner) successDigest(sent []Outcome, now time.Time) notify.Message {
	msg := notify.Message{
		Title:      fmt.Sprintf("Sent %d notifications successfully for %s network.", len(sent), r.opts.Network.Name()),
		Color:      "good",
		FooterText: r.opts.Network.Name(),
		Timestamp:  now,
	}
	for _, outcome := range sent {
		msg.Fields = append(msg.Fields,
			notify.Field{Label: "symbol", Value: outcome.Symbol, Short: true},
			notify.Field{Label: "maturity", Value: outcome.MaturityISO, Short: true},
			notify.Field{Label: "total debt", Value: outcome.TotalDebt},
			notify.Field{Label: "account", Value: outcome.Subscriber},
		)
	}
	return msg
}

func (r *Runner) failureDigest(failed []Outcome, now time.Time) notify.Message {
	msg := notify.Message{
		Title:      fmt.Sprintf("%d notifications failed for chain %d subscribers.", len(failed), uint64(r.opts.Network)),
		Color:      "danger",
		FooterText: r.opts.Network.Name(),
		Timestamp:  now,
	}
	for _, outcome := range failed {
		errText := outcome.Error
		if errText == "" {
			errText = "Unknown error."
		}
		msg.Fields = append(msg.Fields,
			notify.Field{Label: "symbol", Value: outcome.Symbol, Short: true},
			notify.Field{Label: "maturity", Value: outcome.MaturityISO, Short: true},
			notify.Field{Label: "total debt", Value: outcome.TotalDebt, Short: true},
			notify.Field{Label: "error", Value: errText, Short: true},
			notify.Field{Label: "account", Value: outcome.Subscriber},
		)
	}
	return msg
}

func titleMsg(daysLeft int64, symbol string) string {
	return fmt.Sprintf("Your %s fixed borrow %s", symbol, expiryClause(daysLeft))
}

func bodyMsg(daysLeft int64, principal, symbol, totalDebt string, penaltyRate *big.Int) string {
	intro := fmt.Sprintf("Your %s %s fixed borrow %s", principal, symbol, expiryClause(daysLeft))
	debtOf := fmt.Sprintf("debt of %s %s", totalDebt, symbol)
	thePenalty := fmt.Sprintf("The penalty for not repaying on time is %s per day.", format.PenaltyPerDay(penaltyRate))

	if daysLeft >= 0 {
		return fmt.Sprintf("%s. Please, remember to repay your %s on time. %s", intro, debtOf, thePenalty)
	}
	return fmt.Sprintf("%s. Please, repay your %s ASAP. %s", intro, debtOf, thePenalty)
}

func expiryClause(daysLeft int64) string {
	switch {
	case daysLeft > 1:
		return fmt.Sprintf("expires in %d days", daysLeft)
	case daysLeft == 1:
		return "expires tomorrow"
	case daysLeft == 0:
		return "expires today"
	case daysLeft == -1:
		return "expired yesterday"
	default:
		return fmt.Sprintf("expired %d days ago", -daysLeft)
	}
}

// floorDiv divides rounding towards negative infinity, so overdue positions
// land on the correct "days ago" bucket.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
