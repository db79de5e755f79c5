package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"lending-alerts/internal/chain"
)

// Fanout renders intents into channel messages and dispatches them
// concurrently, isolating destinations from each other.
type Fanout struct {
	notifier Notifier
	router   *Router
	logger   zerolog.Logger
}

// NewFanout constructs a Fanout. A nil notifier disables delivery entirely
// (no token configured); every dispatch then skips with a log line.
func NewFanout(notifier Notifier, router *Router, logger zerolog.Logger) *Fanout {
	return &Fanout{
		notifier: notifier,
		router:   router,
		logger:   logger.With().Str("component", "fanout").Logger(),
	}
}

// Dispatch delivers every routed message whose destination resolves,
// concurrently. With failFast, any delivery failure is joined and propagated
// (the market-update policy); otherwise failures are logged and swallowed
// (the campaign digest policy). Either way a slow destination never blocks
// the others.
func (f *Fanout) Dispatch(ctx context.Context, network chain.Network, items []Routed, failFast bool) error {
	if f.notifier == nil {
		if len(items) > 0 {
			f.logger.Debug().Int("skipped", len(items)).Msg("notifier not configured; dropping alerts")
		}
		return nil
	}

	type job struct {
		channel string
		msg     Message
		dest    string
	}
	jobs := make([]job, 0, len(items))
	for _, item := range items {
		channel, ok := f.router.Resolve(network, item.Destination)
		if !ok {
			f.logger.Debug().Str("destination", item.Destination).Msg("destination not configured; skipping alert")
			continue
		}
		jobs = append(jobs, job{channel: channel, msg: item.Message, dest: item.Destination})
	}

	errs := make([]error, len(jobs))
	var wg sync.WaitGroup
	for i, j := range jobs {
		wg.Add(1)
		go func(i int, j job) {
			defer wg.Done()
			if err := f.notifier.Send(ctx, j.channel, j.msg); err != nil {
				errs[i] = fmt.Errorf("deliver to %s: %w", j.dest, err)
			}
		}(i, j)
	}
	wg.Wait()

	if failFast {
		return errors.Join(errs...)
	}
	for _, err := range errs {
		if err != nil {
			f.logger.Error().Err(err).Msg("alert delivery failed")
		}
	}
	return nil
}
