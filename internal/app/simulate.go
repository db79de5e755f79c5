package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lending-alerts/internal/notify"
)

// SimulateAlert 向指定目的地发送一条手工构造的告警,用于验证路由与凭据。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	resolver := a.newSecrets()
	notifier := a.newNotifier(resolver)
	if notifier == nil {
		return errors.New("未配置 Slack token,无法发送告警")
	}

	router := notify.NewRouter(resolver)
	if _, ok := router.Resolve(a.network(), opts.Destination); !ok {
		return fmt.Errorf("destination %q is not configured for chain %d", opts.Destination, a.Config.Ethereum.ChainID)
	}

	fanout := notify.NewFanout(notifier, router, a.Logger)
	msg := notify.Message{
		Title:      opts.Title,
		Color:      "warning",
		FooterText: a.network().Name(),
		Timestamp:  time.Now().UTC(),
	}
	if opts.Body != "" {
		msg.Fields = append(msg.Fields, notify.Field{Label: "details", Value: opts.Body})
	}

	return fanout.Dispatch(ctx, a.network(), []notify.Routed{{
		Destination: opts.Destination,
		Message:     msg,
	}}, true)
}
