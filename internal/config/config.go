// Package config loads the application configuration. The token registry is
// the sole persisted-state surface and lives in its own file, referenced from
// here; everything else is runtime tuning.
package config

import (
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

type Config struct {
	WalletID        string             `mapstructure:"wallet_id"`
	RegistryPath    string             `mapstructure:"registry_path"`
	ProviderMode    string             `mapstructure:"provider_mode"`    // "fake" or "rpc"
	RefreshInterval int                `mapstructure:"refresh_interval"` // seconds
	RequireFee      bool               `mapstructure:"require_fee"`
	DebugLogging    bool               `mapstructure:"debug_logging"`
	LogFile         string             `mapstructure:"log_file"`
	EVMEndpoints    map[string]string  `mapstructure:"evm_endpoints"` // network id -> RPC URL
	SolanaRPCList   []string           `mapstructure:"solana_rpc_list"`
	WatchAddresses  map[string]string  `mapstructure:"watch_addresses"` // network id -> sender address
	KeysPath        string             `mapstructure:"keys_path"`       // optional CSV of signing keys
	SpotPrices      map[string]float64 `mapstructure:"spot_prices"`     // symbol -> fiat price
}

const (
	DefaultRefreshInterval = 10
	DefaultProviderMode    = "fake"
	DefaultRegistryPath    = "configs/tokens.yaml"
	DefaultLogFile         = "walletd.log"
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"refresh_interval": DefaultRefreshInterval,
		"provider_mode":    DefaultProviderMode,
		"registry_path":    DefaultRegistryPath,
		"log_file":         DefaultLogFile,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := loadEnvironmentVariables(v, &cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if cfg.WalletID == "" {
		return errors.New("missing wallet_id in configuration")
	}
	if cfg.RegistryPath == "" {
		return errors.New("registry_path is empty")
	}
	if cfg.RefreshInterval <= 0 {
		return errors.New("invalid refresh_interval")
	}
	switch cfg.ProviderMode {
	case "fake", "rpc":
	default:
		return errors.New("provider_mode must be \"fake\" or \"rpc\"")
	}
	if cfg.ProviderMode == "rpc" && len(cfg.EVMEndpoints) == 0 && len(cfg.SolanaRPCList) == 0 {
		return errors.New("rpc provider mode requires at least one endpoint")
	}
	for _, endpoint := range cfg.EVMEndpoints {
		if err := validateURLWithCache(endpoint, "http"); err != nil {
			return errors.New("invalid EVM endpoint URL protocol")
		}
	}
	for _, rpcURL := range cfg.SolanaRPCList {
		if err := validateURLWithCache(rpcURL, "http"); err != nil {
			return errors.New("invalid Solana RPC URL protocol")
		}
	}
	for symbol, price := range cfg.SpotPrices {
		if price < 0 {
			return errors.New("negative spot price for " + symbol)
		}
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) error {
	v.AutomaticEnv()
	v.SetEnvPrefix("QUIVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envWallet := v.GetString("WALLET_ID")
	if envWallet != "" {
		cfg.WalletID = envWallet
	}

	envSolana := v.GetString("SOLANA_RPC_LIST")
	if envSolana != "" {
		rpcs := strings.Split(envSolana, ",")
		var cleaned []string
		for _, rpc := range rpcs {
			clean := strings.TrimSpace(rpc)
			if clean != "" {
				cleaned = append(cleaned, clean)
			}
		}
		if len(cleaned) > 0 {
			cfg.SolanaRPCList = cleaned
		}
	}
	return nil
}
