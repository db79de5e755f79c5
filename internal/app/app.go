package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"lending-alerts/internal/chain"
	"lending-alerts/internal/config"
	"lending-alerts/internal/decoder"
	"lending-alerts/internal/guard"
	"lending-alerts/internal/notify"
	"lending-alerts/internal/rules"
	"lending-alerts/internal/secrets"
	"lending-alerts/internal/service"
	"lending-alerts/internal/snapshot"
	"lending-alerts/internal/storage"
	"lending-alerts/internal/watcher"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) network() chain.Network {
	return chain.Network(a.Config.Ethereum.ChainID)
}

// newSecrets layers config-file channel ids under the process environment, so
// deployments can inject channels without a config change.
func (a *App) newSecrets() secrets.Resolver {
	static := secrets.Static{}
	for dest, channel := range a.Config.Alerting.Channels {
		name := strings.ToUpper(strings.ReplaceAll(dest, "-", "_"))
		static[fmt.Sprintf("SLACK_%s@%d", name, a.Config.Ethereum.ChainID)] = channel
	}
	if a.Config.Alerting.SlackToken != "" {
		static["SLACK_TOKEN"] = a.Config.Alerting.SlackToken
	}
	return secrets.Layered{static, secrets.Env{}}
}

func (a *App) newNotifier(resolver secrets.Resolver) notify.Notifier {
	token, ok := resolver.Get("SLACK_TOKEN")
	if !ok || token == "" {
		return nil
	}
	return notify.NewSlackNotifier(notify.SlackOptions{
		Token:   token,
		BaseURL: a.Config.Alerting.SlackAPIBase,
	}, a.Logger)
}

func (a *App) newFanout(resolver secrets.Resolver) *notify.Fanout {
	return notify.NewFanout(a.newNotifier(resolver), notify.NewRouter(resolver), a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) dialClient(ctx context.Context, url string) (*ethclient.Client, error) {
	if url == "" {
		return nil, errors.New("ethereum.rpc_url is required")
	}
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return client, nil
}

func (a *App) newReader(client *ethclient.Client) (*snapshot.Reader, error) {
	if a.Config.Ethereum.Previewer == "" {
		return nil, errors.New("ethereum.previewer is required")
	}
	batcher := snapshot.NewMulticall(client, common.HexToAddress(a.Config.Ethereum.Multicall))
	return snapshot.NewReader(batcher, snapshot.Options{
		Multicall:      common.HexToAddress(a.Config.Ethereum.Multicall),
		Previewer:      common.HexToAddress(a.Config.Ethereum.Previewer),
		ReverseRecords: common.HexToAddress(a.Config.Ethereum.ReverseRecords),
	}, a.Logger), nil
}

func (a *App) marketAddresses() ([]common.Address, error) {
	if len(a.Config.Ethereum.Markets) == 0 {
		return nil, errors.New("ethereum.markets must list at least one market")
	}
	markets := make([]common.Address, 0, len(a.Config.Ethereum.Markets))
	for _, raw := range a.Config.Ethereum.Markets {
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("invalid market address %q", raw)
		}
		markets = append(markets, common.HexToAddress(raw))
	}
	return markets, nil
}

// thresholds converts the configured float thresholds into 1e18-scaled
// integers; zero disables the rule.
func (a *App) thresholds() rules.Thresholds {
	return rules.Thresholds{
		Utilization: scaledThreshold(a.Config.Alerting.UtilizationThreshold),
		WhaleUSD:    scaledThreshold(a.Config.Alerting.WhaleUSDThreshold),
	}
}

func scaledThreshold(v float64) *big.Int {
	if v <= 0 {
		return nil
	}
	scaled, _ := new(big.Float).Mul(big.NewFloat(v), big.NewFloat(1e18)).Int(nil)
	return scaled
}

// Run executes the long-running market watcher.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn must be configured; the share value guard needs durable records")
	}
	defer closeStore()

	markets, err := a.marketAddresses()
	if err != nil {
		return err
	}

	rpc, err := a.dialClient(ctx, a.Config.Ethereum.RPCURL)
	if err != nil {
		return err
	}
	defer rpc.Close()

	ws := rpc
	if a.Config.Ethereum.WSURL != "" {
		if ws, err = a.dialClient(ctx, a.Config.Ethereum.WSURL); err != nil {
			return err
		}
		defer ws.Close()
	}

	registry, err := decoder.NewRegistry(a.Logger)
	if err != nil {
		return err
	}
	reader, err := a.newReader(rpc)
	if err != nil {
		return err
	}

	resolver := a.newSecrets()
	svc := service.New(
		registry,
		reader,
		guard.New(store, a.Logger),
		rules.NewEngine(a.thresholds(), a.Logger),
		a.newFanout(resolver),
		store,
		a.Config.Alerting.FailFast,
		a.Logger,
	)

	w := watcher.New(ws, svc, watcher.Options{
		Network: a.network(),
		Markets: markets,
	}, a.Logger)

	a.Logger.Info().Uint64("chain_id", a.Config.Ethereum.ChainID).Msg("starting market watcher")
	err = w.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("watcher terminated with error")
		return err
	}

	a.Logger.Info().Msg("market watcher stopped")
	return nil
}

// ExportOptions hold parameters for exporting the utilization report.
type ExportOptions struct {
	Account string
	PNGPath string
	CSVPath string
}

// NotifyDebtorsOptions configure the campaign command.
type NotifyDebtorsOptions struct {
	Once bool
}

// SimulateOptions describe a hand-crafted alert used to verify routing.
type SimulateOptions struct {
	Destination string
	Title       string
	Body        string
}
