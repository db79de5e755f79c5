package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"lending-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Ethereum EthereumConfig `mapstructure:"ethereum"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Campaign CampaignConfig `mapstructure:"campaign"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// EthereumConfig covers on-chain data access for the monitored network.
type EthereumConfig struct {
	ChainID        uint64        `mapstructure:"chain_id"`
	RPCURL         string        `mapstructure:"rpc_url"`
	WSURL          string        `mapstructure:"ws_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Markets        []string      `mapstructure:"markets"`
	Multicall      string        `mapstructure:"multicall"`
	Previewer      string        `mapstructure:"previewer"`
	ReverseRecords string        `mapstructure:"reverse_records"`
}

// AlertingConfig defines alert thresholds and routing. A zero threshold
// disables the corresponding rule.
type AlertingConfig struct {
	FailFast             bool              `mapstructure:"fail_fast"`
	UtilizationThreshold float64           `mapstructure:"utilization_threshold"`
	WhaleUSDThreshold    float64           `mapstructure:"whale_usd_threshold"`
	SlackToken           string            `mapstructure:"slack_token"`
	SlackAPIBase         string            `mapstructure:"slack_api_base"`
	Channels             map[string]string `mapstructure:"channels"`
}

// CampaignConfig 描述到期提醒扫描的参数。
type CampaignConfig struct {
	Channel         string        `mapstructure:"channel"`
	PushAPIBase     string        `mapstructure:"push_api_base"`
	DashboardURL    string        `mapstructure:"dashboard_url"`
	Delay           time.Duration `mapstructure:"delay"`
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LENDWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "lendwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("ethereum.chain_id", uint64(10))
	v.SetDefault("ethereum.request_timeout", "10s")
	// Canonical multicall aggregator deployment address.
	v.SetDefault("ethereum.multicall", "0xcA11bde05977b3631167028862bE2a173976CA11")

	v.SetDefault("alerting.fail_fast", true)
	v.SetDefault("alerting.utilization_threshold", 0.0)
	v.SetDefault("alerting.whale_usd_threshold", 0.0)
	v.SetDefault("alerting.slack_api_base", "https://slack.com/api")

	v.SetDefault("campaign.delay", "24h")
	v.SetDefault("campaign.interval", "24h")
	v.SetDefault("campaign.align_to_bucket", true)
	v.SetDefault("campaign.advisory_lock_key", int64(0x6c656e64))
	v.SetDefault("campaign.startup_delay", "0s")
	v.SetDefault("campaign.request_timeout", "10s")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Ethereum.ChainID == 0 {
		return fmt.Errorf("ethereum.chain_id must be greater than zero")
	}
	if c.Alerting.UtilizationThreshold < 0 {
		return fmt.Errorf("alerting.utilization_threshold cannot be negative")
	}
	if c.Alerting.WhaleUSDThreshold < 0 {
		return fmt.Errorf("alerting.whale_usd_threshold cannot be negative")
	}
	if c.Campaign.Interval <= 0 {
		return fmt.Errorf("campaign.interval must be greater than zero")
	}
	if c.Campaign.Delay <= 0 {
		return fmt.Errorf("campaign.delay must be greater than zero")
	}
	return nil
}
