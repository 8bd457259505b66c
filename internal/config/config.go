// Package config defines all configuration for the betting service.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via BET_* environment variables. A .env file in
// the working directory is loaded first when present.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// DefaultDeadline is how long a bet stays valid when the request sets none.
	DefaultDeadline = 300 * time.Second
	// DefaultOddsDecimals is the fixed-point precision of on-chain odds.
	DefaultOddsDecimals = 12
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun  bool          `mapstructure:"dry_run"`
	Wallet  WalletConfig  `mapstructure:"wallet"`
	RPC     RPCConfig     `mapstructure:"rpc"`
	Betting BettingConfig `mapstructure:"betting"`
	Odds    OddsConfig    `mapstructure:"odds"`
	Risk    RiskConfig    `mapstructure:"risk"`
	Store   StoreConfig   `mapstructure:"store"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Logging LoggingConfig `mapstructure:"logging"`
	API     APIConfig     `mapstructure:"api"`
	Chains  []ChainConfig `mapstructure:"chains"`
}

// WalletConfig holds the key that signs approvals and bets.
type WalletConfig struct {
	PrivateKey string `mapstructure:"private_key"`
}

// RPCConfig points at the chain node. Rate limits are requests per second
// with a burst of 10x, per call category.
type RPCConfig struct {
	URL                 string        `mapstructure:"url"`
	ReadRate            float64       `mapstructure:"read_rate"`
	WriteRate           float64       `mapstructure:"write_rate"`
	ReceiptPollInterval time.Duration `mapstructure:"receipt_poll_interval"`
	GasLimit            uint64        `mapstructure:"gas_limit"` // fallback when estimation fails
}

// BettingConfig carries the static betting constants.
//
//   - DefaultDeadline: bet expiry offset when the request has none.
//   - OddsDecimals:    fixed-point precision of odds on-chain.
type BettingConfig struct {
	DefaultDeadline time.Duration `mapstructure:"default_deadline"`
	OddsDecimals    int32         `mapstructure:"odds_decimals"`
	Affiliate       string        `mapstructure:"affiliate"` // used when a request has none
}

// OddsConfig selects the odds collaborator: "chain" reads calcOdds from the
// core contracts, "http" asks an external odds API.
type OddsConfig struct {
	Source  string        `mapstructure:"source"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RiskConfig sets hard limits checked before any transaction is sent.
//
//   - MaxBetAmount: largest stake per bet, in bet-token units.
//   - MaxSlippage: largest slippage percent accepted.
//   - DailyStakeLimit: total stake per UTC day, 0 = unlimited.
//   - MaxConsecutiveFailures: failed bets in a row before betting pauses.
//   - CooldownAfterFailures: how long betting stays paused.
type RiskConfig struct {
	MaxBetAmount           float64       `mapstructure:"max_bet_amount"`
	MaxSlippage            float64       `mapstructure:"max_slippage"`
	DailyStakeLimit        float64       `mapstructure:"daily_stake_limit"`
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures"`
	CooldownAfterFailures  time.Duration `mapstructure:"cooldown_after_failures"`
}

// StoreConfig sets where bet records are persisted (JSON files).
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// KafkaConfig enables lifecycle event publishing when Brokers is set.
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// APIConfig controls the HTTP/WebSocket server.
type APIConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// ChainConfig is one row of the supported-chains table.
type ChainConfig struct {
	ChainID        int64  `mapstructure:"chain_id"`
	Name           string `mapstructure:"name"`
	NativeCurrency string `mapstructure:"native_currency"`
	ExplorerURL    string `mapstructure:"explorer_url"`
	LP             string `mapstructure:"lp"`
	Core           string `mapstructure:"core"`
	ComboCore      string `mapstructure:"combo_core"`
	ProxyFront     string `mapstructure:"proxy_front"`
	BetToken       string `mapstructure:"bet_token"`
	BetTokenSymbol string `mapstructure:"bet_token_symbol"`
	BetDecimals    int32  `mapstructure:"bet_token_decimals"`
	NativeToken    bool   `mapstructure:"native_bet_token"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: BET_PRIVATE_KEY, BET_RPC_URL.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // .env is optional

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("BET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if key := os.Getenv("BET_PRIVATE_KEY"); key != "" {
		cfg.Wallet.PrivateKey = key
	}
	if url := os.Getenv("BET_RPC_URL"); url != "" {
		cfg.RPC.URL = url
	}
	if os.Getenv("BET_DRY_RUN") == "true" || os.Getenv("BET_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rpc.read_rate", 20)
	v.SetDefault("rpc.write_rate", 2)
	v.SetDefault("rpc.receipt_poll_interval", 2*time.Second)
	v.SetDefault("rpc.gas_limit", 500000)
	v.SetDefault("betting.default_deadline", DefaultDeadline)
	v.SetDefault("betting.odds_decimals", DefaultOddsDecimals)
	v.SetDefault("odds.source", "chain")
	v.SetDefault("odds.timeout", 10*time.Second)
	v.SetDefault("risk.max_slippage", 100)
	v.SetDefault("risk.max_consecutive_failures", 3)
	v.SetDefault("risk.cooldown_after_failures", 5*time.Minute)
	v.SetDefault("store.data_dir", "data")
	v.SetDefault("kafka.topic", "bet.lifecycle")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("api.port", 8080)
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Wallet.PrivateKey == "" {
		return fmt.Errorf("wallet.private_key is required (set BET_PRIVATE_KEY)")
	}
	if c.RPC.URL == "" {
		return fmt.Errorf("rpc.url is required (set BET_RPC_URL)")
	}
	if c.RPC.ReadRate <= 0 || c.RPC.WriteRate <= 0 {
		return fmt.Errorf("rpc.read_rate and rpc.write_rate must be > 0")
	}
	if c.Betting.DefaultDeadline <= 0 {
		return fmt.Errorf("betting.default_deadline must be > 0")
	}
	if c.Betting.OddsDecimals <= 0 || c.Betting.OddsDecimals > 18 {
		return fmt.Errorf("betting.odds_decimals must be in 1..18")
	}
	if c.Betting.Affiliate != "" && !common.IsHexAddress(c.Betting.Affiliate) {
		return fmt.Errorf("betting.affiliate is not a valid address")
	}
	switch c.Odds.Source {
	case "chain":
	case "http":
		if c.Odds.BaseURL == "" {
			return fmt.Errorf("odds.base_url is required when odds.source is http")
		}
	default:
		return fmt.Errorf("odds.source must be one of: chain, http")
	}
	if c.Risk.MaxSlippage < 0 || c.Risk.MaxSlippage > 100 {
		return fmt.Errorf("risk.max_slippage must be in 0..100")
	}
	if len(c.Chains) == 0 {
		return fmt.Errorf("at least one entry in chains is required")
	}
	seen := make(map[int64]bool, len(c.Chains))
	for i, ch := range c.Chains {
		if err := ch.validate(); err != nil {
			return fmt.Errorf("chains[%d]: %w", i, err)
		}
		if seen[ch.ChainID] {
			return fmt.Errorf("chains[%d]: duplicate chain_id %d", i, ch.ChainID)
		}
		seen[ch.ChainID] = true
	}
	return nil
}

func (c ChainConfig) validate() error {
	if c.ChainID <= 0 {
		return fmt.Errorf("chain_id must be > 0")
	}
	addrs := map[string]string{
		"lp":          c.LP,
		"core":        c.Core,
		"combo_core":  c.ComboCore,
		"proxy_front": c.ProxyFront,
	}
	if !c.NativeToken {
		addrs["bet_token"] = c.BetToken
	}
	for name, addr := range addrs {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%s is not a valid address", name)
		}
	}
	if c.BetDecimals < 0 || c.BetDecimals > 36 {
		return fmt.Errorf("bet_token_decimals must be in 0..36")
	}
	return nil
}
