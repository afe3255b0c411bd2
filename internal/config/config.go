package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/GoDerive/derivegate/internal/pkg/apperrors"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Derive      DeriveConfig      `mapstructure:"derive"`
	Order       OrderConfig       `mapstructure:"order"`
	Protocol    ProtocolConfig    `mapstructure:"protocol"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// CredentialsConfig is the SessionCredential boundary. The values are
// provisioned externally (env vars or a protected config file); the
// gateway only reads them at startup.
type CredentialsConfig struct {
	SessionKey    string `mapstructure:"session_key"`
	WalletAddress string `mapstructure:"wallet_address"`
	SubaccountID  int64  `mapstructure:"subaccount_id"`
}

type DeriveConfig struct {
	Network        string `mapstructure:"network"` // "mainnet" or "testnet"
	RestURL        string `mapstructure:"rest_url"`
	WsURL          string `mapstructure:"ws_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	RateLimit      int    `mapstructure:"rate_limit"`
	RateBurst      int    `mapstructure:"rate_burst"`
}

type OrderConfig struct {
	MaxFee                 string `mapstructure:"max_fee"`                  // decimal string, e.g. "1000"
	SignatureExpirySeconds int64  `mapstructure:"signature_expiry_seconds"` // bounded replay window
}

// ProtocolConfig is the versioned protocol-constants table. The
// exchange publishes these values and changes them over time; keeping
// them as configuration makes an update a data change, not a code
// change.
type ProtocolConfig struct {
	SchemaVersion      string `mapstructure:"schema_version"`
	DomainSeparator    string `mapstructure:"domain_separator"`
	ActionTypehash     string `mapstructure:"action_typehash"`
	TradeModuleAddress string `mapstructure:"trade_module_address"`
}

// Exchange endpoints per network. api.derive.xyz may not resolve;
// api.lyra.finance is the working hostname.
var endpoints = map[string]struct{ rest, ws string }{
	"mainnet": {rest: "https://api.lyra.finance", ws: "wss://api.lyra.finance/ws"},
	"testnet": {rest: "https://api-demo.lyra.finance", ws: "wss://api-demo.lyra.finance/ws"},
}

// Published protocol constants per network. ACTION_TYPEHASH is
// network-independent (it hashes the EIP-712 type struct); the domain
// separator and trade module address differ per network.
var protocolDefaults = map[string]ProtocolConfig{
	"mainnet": {
		SchemaVersion:      "v2",
		DomainSeparator:    "0xd96e5f90797da7ec8dc4e276260c7f3f87fedf68775fbe1ef116e996fc60441b",
		ActionTypehash:     "0x4d7a9f27c403ff9c0f19bce61d76d82f9aa29f8d6d4b0c5474607d9770d1af17",
		TradeModuleAddress: "0xB8D20c2B7a1Ad2EE33Bc50eF10876eD3035b5e7b",
	},
	"testnet": {
		SchemaVersion:      "v2",
		DomainSeparator:    "0x9bcf4dc06df5d8bf23af818d5716491b995020f377d3b7b64c29ed14e3dd1105",
		ActionTypehash:     "0x4d7a9f27c403ff9c0f19bce61d76d82f9aa29f8d6d4b0c5474607d9770d1af17",
		TradeModuleAddress: "0x87F2863866D85E3192a35A73b388BD625D83f2be",
	},
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support
	// e.g. DERIVEGATE_CREDENTIALS_SESSION_KEY
	viper.SetEnvPrefix("derivegate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Unmarshal only sees keys viper knows about, so keys that exist
	// purely as env vars (no default, no file entry) must be bound
	// explicitly.
	for _, key := range []string{
		"credentials.session_key",
		"credentials.wallet_address",
		"credentials.subaccount_id",
		"protocol.schema_version",
		"protocol.domain_separator",
		"protocol.action_typehash",
		"protocol.trade_module_address",
		"derive.rest_url",
		"derive.ws_url",
	} {
		if err := viper.BindEnv(key); err != nil {
			return nil, err
		}
	}

	// Defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("derive.network", "mainnet")
	viper.SetDefault("derive.timeout_seconds", 30)
	viper.SetDefault("derive.rate_limit", 10)
	viper.SetDefault("derive.rate_burst", 5)
	viper.SetDefault("order.max_fee", "1000")
	viper.SetDefault("order.signature_expiry_seconds", 600)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.applyNetworkDefaults(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyNetworkDefaults fills endpoint and protocol-table values from
// the selected network unless overridden in config.
func (c *Config) applyNetworkDefaults() error {
	ep, ok := endpoints[c.Derive.Network]
	if !ok {
		return fmt.Errorf("unknown network %q (want mainnet or testnet)", c.Derive.Network)
	}
	if c.Derive.RestURL == "" {
		c.Derive.RestURL = ep.rest
	}
	if c.Derive.WsURL == "" {
		c.Derive.WsURL = ep.ws
	}

	defaults := protocolDefaults[c.Derive.Network]
	if c.Protocol.SchemaVersion == "" {
		c.Protocol.SchemaVersion = defaults.SchemaVersion
	}
	if c.Protocol.DomainSeparator == "" {
		c.Protocol.DomainSeparator = defaults.DomainSeparator
	}
	if c.Protocol.ActionTypehash == "" {
		c.Protocol.ActionTypehash = defaults.ActionTypehash
	}
	if c.Protocol.TradeModuleAddress == "" {
		c.Protocol.TradeModuleAddress = defaults.TradeModuleAddress
	}
	return nil
}

// ValidateCredentials checks the credential set the way the external
// provisioning flow writes it: 0x-prefixed 64-hex-digit session key,
// 0x-prefixed 40-hex-digit wallet address, positive subaccount id.
func (c *CredentialsConfig) Validate() error {
	var missing []string
	if c.SessionKey == "" {
		missing = append(missing, "session_key")
	}
	if c.WalletAddress == "" {
		missing = append(missing, "wallet_address")
	}
	if c.SubaccountID == 0 {
		missing = append(missing, "subaccount_id")
	}
	if len(missing) > 0 {
		return apperrors.New(apperrors.ErrMissingCredentials,
			fmt.Sprintf("missing credentials: %s", strings.Join(missing, ", ")), nil)
	}

	if !strings.HasPrefix(c.SessionKey, "0x") || len(c.SessionKey) != 66 {
		return apperrors.New(apperrors.ErrMissingCredentials,
			"session key must be 66 chars (0x + 64 hex digits)", nil)
	}
	if !strings.HasPrefix(c.WalletAddress, "0x") || len(c.WalletAddress) != 42 {
		return apperrors.New(apperrors.ErrMissingCredentials,
			"wallet address must be 42 chars (0x + 40 hex digits)", nil)
	}
	if c.SubaccountID < 0 {
		return apperrors.New(apperrors.ErrMissingCredentials,
			"subaccount id must be a positive integer", nil)
	}
	return nil
}

// Zero overwrites the in-memory session key. Called on shutdown.
func (c *CredentialsConfig) Zero() {
	c.SessionKey = strings.Repeat("0", len(c.SessionKey))
	c.SessionKey = ""
}
