package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"lending-alerts/internal/campaign"
	"lending-alerts/internal/scheduler"
)

// NotifyDebtors 运行到期借款提醒活动,单次或按计划周期执行。
// Concurrent instances coordinate through a postgres advisory lock: the
// holder runs the tick, everyone else skips it.
func (a *App) NotifyDebtors(ctx context.Context, opts NotifyDebtorsOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := a.Config.Campaign
	if cfg.Channel == "" {
		return errors.New("campaign.channel must be configured")
	}
	if cfg.PushAPIBase == "" {
		return errors.New("campaign.push_api_base must be configured")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn must be configured; campaign runs persist their audit record")
	}
	defer closeStore()

	rpc, err := a.dialClient(ctx, a.Config.Ethereum.RPCURL)
	if err != nil {
		return err
	}
	defer rpc.Close()

	reader, err := a.newReader(rpc)
	if err != nil {
		return err
	}

	subs := campaign.NewChannelAPI(campaign.ChannelOptions{
		BaseURL: cfg.PushAPIBase,
		Channel: cfg.Channel,
		Timeout: cfg.RequestTimeout,
	}, a.Logger)
	sender := campaign.NewPushSender(campaign.PushOptions{
		BaseURL: cfg.PushAPIBase,
		Channel: cfg.Channel,
		Timeout: cfg.RequestTimeout,
	}, a.Logger)

	runner := campaign.NewRunner(reader, subs, sender, a.newFanout(a.newSecrets()), store, campaign.Options{
		Network:      a.network(),
		DashboardURL: cfg.DashboardURL,
		Delay:        cfg.Delay,
	}, a.Logger)

	tick := func(ctx context.Context) error {
		unlock, acquired, lockErr := store.TryAdvisoryLock(ctx, cfg.AdvisoryLockKey)
		if lockErr != nil {
			return lockErr
		}
		if !acquired {
			a.Logger.Info().Msg("another instance holds the campaign lock; skipping run")
			return nil
		}
		defer unlock()

		_, runErr := runner.Run(ctx, time.Now().UTC())
		return runErr
	}

	if opts.Once {
		return tick(ctx)
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     cfg.Interval,
		AlignToStart: cfg.AlignToBucket,
		StartupDelay: cfg.StartupDelay,
	}, a.Logger)

	err = sched.Run(ctx, func(ctx context.Context, _ time.Time) error {
		return tick(ctx)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
