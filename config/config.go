package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Config captures the runtime settings for the synthetic-asset daemon.
type Config struct {
	ListenAddress string        `yaml:"listen"`
	Environment   string        `yaml:"environment"`
	Vault         string        `yaml:"vault"`
	DebtToken     TokenConfig   `yaml:"debt_token"`
	Assets        []AssetConfig `yaml:"assets"`
	Oracle        OracleConfig  `yaml:"oracle"`
	Storage       StorageConfig `yaml:"storage"`
	Auth          AuthConfig    `yaml:"auth"`
}

// TokenConfig identifies the synthetic debt token.
type TokenConfig struct {
	Symbol  string `yaml:"symbol"`
	Address string `yaml:"address"`
}

// AssetConfig pairs a collateral asset with its price source. The asset set is
// fixed for the engine's lifetime.
type AssetConfig struct {
	Symbol       string `yaml:"symbol"`
	Address      string `yaml:"address"`
	FeedDecimals uint8  `yaml:"feed_decimals"`
	// InitialPrice optionally seeds the manual feed at startup, expressed in
	// the feed's own decimal scale.
	InitialPrice string `yaml:"initial_price"`
}

// OracleConfig bounds price feed staleness.
type OracleConfig struct {
	TimeoutSeconds int64 `yaml:"timeout_seconds"`
}

// Timeout converts the configured staleness window into a duration. Zero
// selects the engine default.
func (c OracleConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StorageConfig selects the position store backend. An empty path keeps
// positions in memory.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig lists the bearer tokens accepted on admin routes.
type AuthConfig struct {
	APITokens []string `yaml:"api_tokens"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{
		ListenAddress: ":8451",
	}
	if path == "" {
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
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.ListenAddress = strings.TrimSpace(c.ListenAddress)
	if c.ListenAddress == "" {
		c.ListenAddress = ":8451"
	}
	c.Environment = strings.TrimSpace(c.Environment)
	c.Vault = strings.TrimSpace(c.Vault)
	c.DebtToken.Symbol = strings.TrimSpace(c.DebtToken.Symbol)
	if c.DebtToken.Symbol == "" {
		c.DebtToken.Symbol = "sUSD"
	}
	c.DebtToken.Address = strings.TrimSpace(c.DebtToken.Address)
	for i := range c.Assets {
		c.Assets[i].Symbol = strings.ToUpper(strings.TrimSpace(c.Assets[i].Symbol))
		c.Assets[i].Address = strings.TrimSpace(c.Assets[i].Address)
		c.Assets[i].InitialPrice = strings.TrimSpace(c.Assets[i].InitialPrice)
	}
	tokens := make([]string, 0, len(c.Auth.APITokens))
	for _, tok := range c.Auth.APITokens {
		if trimmed := strings.TrimSpace(tok); trimmed != "" {
			tokens = append(tokens, trimmed)
		}
	}
	c.Auth.APITokens = tokens
}

func (c *Config) validate() error {
	if !common.IsHexAddress(c.Vault) {
		return fmt.Errorf("config: invalid vault address %q", c.Vault)
	}
	if !common.IsHexAddress(c.DebtToken.Address) {
		return fmt.Errorf("config: invalid debt token address %q", c.DebtToken.Address)
	}
	if len(c.Assets) == 0 {
		return fmt.Errorf("config: at least one collateral asset required")
	}
	seen := make(map[common.Address]struct{}, len(c.Assets))
	for _, asset := range c.Assets {
		if asset.Symbol == "" {
			return fmt.Errorf("config: asset symbol required")
		}
		if !common.IsHexAddress(asset.Address) {
			return fmt.Errorf("config: invalid address %q for asset %s", asset.Address, asset.Symbol)
		}
		addr := common.HexToAddress(asset.Address)
		if _, dup := seen[addr]; dup {
			return fmt.Errorf("config: asset %s listed twice", asset.Symbol)
		}
		seen[addr] = struct{}{}
		if asset.FeedDecimals > 18 {
			return fmt.Errorf("config: asset %s feed decimals exceed 18", asset.Symbol)
		}
		if asset.InitialPrice != "" {
			price, ok := new(big.Int).SetString(asset.InitialPrice, 10)
			if !ok || price.Sign() <= 0 {
				return fmt.Errorf("config: invalid initial price %q for asset %s", asset.InitialPrice, asset.Symbol)
			}
		}
	}
	return nil
}

// VaultAddress returns the parsed vault account.
func (c Config) VaultAddress() common.Address {
	return common.HexToAddress(c.Vault)
}
