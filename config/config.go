package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ethereum/go-ethereum/common"
)

// Environment variable overrides for secrets that must stay out of the
// config file.
const (
	envKeystorePassphrase = "LENDGATEWAY_KEYSTORE_PASSPHRASE"
	envAuthSecret         = "LENDGATEWAY_AUTH_SECRET"
)

// Config captures the runtime settings for the lending gateway daemon.
type Config struct {
	Environment   string         `yaml:"environment"`
	ListenAddress string         `yaml:"listen"`
	ReadTimeout   time.Duration  `yaml:"readTimeout"`
	WriteTimeout  time.Duration  `yaml:"writeTimeout"`
	Chain         ChainConfig    `yaml:"chain"`
	Wallet        WalletConfig   `yaml:"wallet"`
	Auth          AuthConfig     `yaml:"auth"`
	RateLimit     RateLimit      `yaml:"rateLimit"`
	Refresh       RefreshConfig  `yaml:"refresh"`
	Position      PositionConfig `yaml:"position"`
}

// ChainConfig pins the target chain and contract address set. Every read
// and write is issued against exactly this chain; a node serving another
// chain is refused outright.
type ChainConfig struct {
	RPCEndpoint       string `yaml:"rpcEndpoint"`
	ChainID           uint64 `yaml:"chainId"`
	LendingPool       string `yaml:"lendingPool"`
	CollateralManager string `yaml:"collateralManager"`
	PriceOracle       string `yaml:"priceOracle"`
	BorrowAsset       string `yaml:"borrowAsset"`
}

// WalletConfig locates the signing account. The passphrase comes from the
// environment only.
type WalletConfig struct {
	KeystoreDir string `yaml:"keystoreDir"`
	Address     string `yaml:"address"`
	Passphrase  string `yaml:"-"`
}

// AuthConfig governs the gateway's bearer-token authentication.
type AuthConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	ClockSkew  time.Duration `yaml:"clockSkew"`
	HMACSecret string        `yaml:"-"`
}

// RateLimit bounds request throughput per client.
type RateLimit struct {
	RatePerSecond float64 `yaml:"ratePerSecond"`
	Burst         int     `yaml:"burst"`
}

// RefreshConfig controls the background state poll.
type RefreshConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// PositionConfig carries the risk-display tunables.
type PositionConfig struct {
	// SafetyBufferWad is the health-factor margin the max-safe-withdraw
	// shortcut preserves, as a WAD decimal string ("1.2").
	SafetyBufferWad string `yaml:"safetyBuffer"`
}

// Load reads the YAML configuration, applies environment overrides, and
// validates the result.
func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	cfg.Wallet.Passphrase = os.Getenv(envKeystorePassphrase)
	cfg.Auth.HMACSecret = strings.TrimSpace(os.Getenv(envAuthSecret))

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Environment:   "dev",
		ListenAddress: ":8655",
		ReadTimeout:   10 * time.Second,
		WriteTimeout:  30 * time.Second,
		RateLimit:     RateLimit{RatePerSecond: 10, Burst: 20},
		Refresh:       RefreshConfig{Interval: 15 * time.Second},
		Position:      PositionConfig{SafetyBufferWad: "1.2"},
	}
}

func (cfg *Config) normalize() {
	cfg.Environment = strings.TrimSpace(cfg.Environment)
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8655"
	}
	cfg.Chain.RPCEndpoint = strings.TrimSpace(cfg.Chain.RPCEndpoint)
	cfg.Chain.LendingPool = strings.TrimSpace(cfg.Chain.LendingPool)
	cfg.Chain.CollateralManager = strings.TrimSpace(cfg.Chain.CollateralManager)
	cfg.Chain.PriceOracle = strings.TrimSpace(cfg.Chain.PriceOracle)
	cfg.Chain.BorrowAsset = strings.TrimSpace(cfg.Chain.BorrowAsset)
	cfg.Wallet.KeystoreDir = strings.TrimSpace(cfg.Wallet.KeystoreDir)
	cfg.Wallet.Address = strings.TrimSpace(cfg.Wallet.Address)
	if cfg.Refresh.Interval <= 0 {
		cfg.Refresh.Interval = 15 * time.Second
	}
	if strings.TrimSpace(cfg.Position.SafetyBufferWad) == "" {
		cfg.Position.SafetyBufferWad = "1.2"
	}
}

func (cfg *Config) validate() error {
	if cfg.Chain.RPCEndpoint == "" {
		return fmt.Errorf("chain: rpcEndpoint is required")
	}
	if cfg.Chain.ChainID == 0 {
		return fmt.Errorf("chain: chainId is required")
	}
	for name, addr := range map[string]string{
		"lendingPool":       cfg.Chain.LendingPool,
		"collateralManager": cfg.Chain.CollateralManager,
		"priceOracle":       cfg.Chain.PriceOracle,
		"borrowAsset":       cfg.Chain.BorrowAsset,
	} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("chain: %s is not a hex address", name)
		}
	}
	if cfg.Wallet.KeystoreDir == "" {
		return fmt.Errorf("wallet: keystoreDir is required")
	}
	if !common.IsHexAddress(cfg.Wallet.Address) {
		return fmt.Errorf("wallet: address is not a hex address")
	}
	if cfg.Auth.Enabled && cfg.Auth.HMACSecret == "" {
		return fmt.Errorf("auth: %s must be set when auth is enabled", envAuthSecret)
	}
	if cfg.RateLimit.RatePerSecond < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rateLimit: rate and burst must be non-negative")
	}
	return nil
}

// WalletAddress returns the parsed signing account address.
func (cfg Config) WalletAddress() common.Address {
	return common.HexToAddress(cfg.Wallet.Address)
}
