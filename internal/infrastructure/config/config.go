package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Redis       RedisConfig      `mapstructure:"redis"`
	JWT         JWTConfig        `mapstructure:"jwt"`
	Solana      SolanaConfig     `mapstructure:"solana"`
	Webhook     WebhookConfig    `mapstructure:"webhook"`
	Deposit     DepositConfig    `mapstructure:"deposit"`
	Sweep       SweepConfig      `mapstructure:"sweep"`
	Treasury    TreasuryConfig   `mapstructure:"treasury"`
	Withdrawal  WithdrawalConfig `mapstructure:"withdrawal"`
	Pricing     PricingConfig    `mapstructure:"pricing"`
	Referral    ReferralConfig   `mapstructure:"referral"`
}

type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Host         string `mapstructure:"host"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// SolanaConfig contains chain connectivity and signing material. Any of the
// secrets may be absent; dependent features disable themselves rather than
// crash the process.
type SolanaConfig struct {
	RPCEndpoint string `mapstructure:"rpc_endpoint"`
	Commitment  string `mapstructure:"commitment"`

	// MasterSeedMnemonic derives per-user deposit addresses. Absent means
	// generated-address deposits and sweeping are disabled.
	MasterSeedMnemonic string `mapstructure:"master_seed_mnemonic"`

	// HotWalletKey is the base58 private key of the shared custody wallet
	HotWalletKey string `mapstructure:"hot_wallet_key"`

	// PayoutWalletKey is the base58 private key of the instant-payout wallet
	PayoutWalletKey string `mapstructure:"payout_wallet_key"`

	// USDTMint and FortMint are the SPL mint addresses of the two tokens
	USDTMint string `mapstructure:"usdt_mint"`
	FortMint string `mapstructure:"fort_mint"`
}

// WebhookConfig protects and locates the inbound enhanced-transaction webhook
type WebhookConfig struct {
	SharedSecret    string `mapstructure:"shared_secret"`
	CallbackBaseURL string `mapstructure:"callback_base_url"`
	ProviderAPIKey  string `mapstructure:"provider_api_key"`
	ProviderBaseURL string `mapstructure:"provider_base_url"`
}

// DepositConfig carries per-asset intake minimums (asset-native units)
type DepositConfig struct {
	MinSOL  float64 `mapstructure:"min_sol"`
	MinUSDT float64 `mapstructure:"min_usdt"`
	MinFort float64 `mapstructure:"min_fort"`
}

// SweepConfig controls the periodic drain of per-user deposit addresses
type SweepConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// IntervalMinutes between sweep passes
	IntervalMinutes int `mapstructure:"interval_minutes"`
	// MinUSDTSweep and MinFortSweep are the per-token balances below which a
	// sweep isn't worth fees
	MinUSDTSweep float64 `mapstructure:"min_usdt_sweep"`
	MinFortSweep float64 `mapstructure:"min_fort_sweep"`
	// MinNativeSweep is the SOL balance (above rent reserve) worth sweeping
	MinNativeSweep float64 `mapstructure:"min_native_sweep"`
	// GasTopUp is the SOL amount transferred to an address short on fees
	GasTopUp float64 `mapstructure:"gas_top_up"`
	// MinGasBalance is the SOL balance below which a top-up happens first
	MinGasBalance float64 `mapstructure:"min_gas_balance"`
}

// TreasuryConfig enables the pooled-custody vault program
type TreasuryConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProgramID string `mapstructure:"program_id"`
	// FloatTarget is the hot-wallet USDT float above which the excess is
	// deposited into the vault by the background job
	FloatTarget          float64 `mapstructure:"float_target"`
	FloatIntervalMinutes int     `mapstructure:"float_interval_minutes"`
}

// WithdrawalConfig controls payout flows
type WithdrawalConfig struct {
	// RequestExpirySeconds is the on-chain claim window
	RequestExpirySeconds int `mapstructure:"request_expiry_seconds"`
	// CleanupIntervalMinutes between expiry-cleanup passes
	CleanupIntervalMinutes int `mapstructure:"cleanup_interval_minutes"`
	// ConfirmTimeoutSeconds bounds confirmation polling
	ConfirmTimeoutSeconds int `mapstructure:"confirm_timeout_seconds"`
	// TierTaxRate and the per-user discount produce the profit tax rate
	TierTaxRate float64 `mapstructure:"tier_tax_rate"`
}

// PricingConfig controls the oracle
type PricingConfig struct {
	// MarketAPIBaseURL serves the public-market secondary oracle
	MarketAPIBaseURL string `mapstructure:"market_api_base_url"`
	// SolFeedURL is the push/poll feed for the native coin price
	SolFeedURL string `mapstructure:"sol_feed_url"`
	// MaxStaleSeconds after which a SOL quote is a hard error
	MaxStaleSeconds int `mapstructure:"max_stale_seconds"`
	// SecondaryCacheSeconds is the public-market cache TTL
	SecondaryCacheSeconds int `mapstructure:"secondary_cache_seconds"`
	// PollIntervalSeconds for the feed polling fallback
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
}

// ReferralConfig bounds the deposit bonus fan-out
type ReferralConfig struct {
	MaxLevels int       `mapstructure:"max_levels"`
	Rates     []float64 `mapstructure:"rates"`
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	// Read from config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Build database URL if not provided
	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "custody_service")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("jwt.issuer", "custody_service")

	viper.SetDefault("solana.rpc_endpoint", "https://api.devnet.solana.com")
	viper.SetDefault("solana.commitment", "confirmed")

	viper.SetDefault("deposit.min_sol", 0.01)
	viper.SetDefault("deposit.min_usdt", 1.0)
	viper.SetDefault("deposit.min_fort", 10.0)

	viper.SetDefault("sweep.enabled", false)
	viper.SetDefault("sweep.interval_minutes", 15)
	viper.SetDefault("sweep.min_usdt_sweep", 1.0)
	viper.SetDefault("sweep.min_fort_sweep", 1.0)
	viper.SetDefault("sweep.min_native_sweep", 0.01)
	viper.SetDefault("sweep.gas_top_up", 0.002)
	viper.SetDefault("sweep.min_gas_balance", 0.001)

	viper.SetDefault("treasury.enabled", false)
	viper.SetDefault("treasury.float_target", 1000.0)
	viper.SetDefault("treasury.float_interval_minutes", 60)

	viper.SetDefault("withdrawal.request_expiry_seconds", 3600)
	viper.SetDefault("withdrawal.cleanup_interval_minutes", 10)
	viper.SetDefault("withdrawal.confirm_timeout_seconds", 90)
	viper.SetDefault("withdrawal.tier_tax_rate", 0.35)

	viper.SetDefault("pricing.max_stale_seconds", 120)
	viper.SetDefault("pricing.secondary_cache_seconds", 300)
	viper.SetDefault("pricing.poll_interval_seconds", 30)

	viper.SetDefault("referral.max_levels", 3)
	viper.SetDefault("referral.rates", []float64{0.05, 0.03, 0.01})
}

func overrideFromEnv() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("server.port", p)
		}
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		viper.Set("database.url", dbURL)
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		viper.Set("jwt.secret", jwtSecret)
	}

	if rpc := os.Getenv("SOLANA_RPC_ENDPOINT"); rpc != "" {
		viper.Set("solana.rpc_endpoint", rpc)
	}

	if seed := os.Getenv("MASTER_SEED_MNEMONIC"); seed != "" {
		viper.Set("solana.master_seed_mnemonic", seed)
	}

	if key := os.Getenv("HOT_WALLET_KEY"); key != "" {
		viper.Set("solana.hot_wallet_key", key)
	}

	if key := os.Getenv("PAYOUT_WALLET_KEY"); key != "" {
		viper.Set("solana.payout_wallet_key", key)
	}

	if secret := os.Getenv("WEBHOOK_SHARED_SECRET"); secret != "" {
		viper.Set("webhook.shared_secret", secret)
	}
}

func validate(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.URL == "" && config.Database.Host == "" {
		return fmt.Errorf("database connection not configured")
	}

	if config.Environment == "production" {
		if config.JWT.Secret == "" {
			return fmt.Errorf("jwt secret is required in production")
		}
		if config.Webhook.SharedSecret == "" {
			return fmt.Errorf("webhook shared secret is required in production")
		}
	}

	// Signing material is deliberately NOT validated here: missing secrets
	// degrade the dependent feature to disabled instead of failing startup.

	if config.Treasury.Enabled && config.Treasury.ProgramID == "" {
		return fmt.Errorf("treasury.program_id is required when treasury is enabled")
	}

	if len(config.Referral.Rates) < config.Referral.MaxLevels {
		return fmt.Errorf("referral.rates must cover %d levels", config.Referral.MaxLevels)
	}

	return nil
}
