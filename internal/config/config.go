package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/RabbyHub/perps-engine/pkg/bridge"
	"github.com/RabbyHub/perps-engine/pkg/venue"
)

// Config represents the application configuration
type Config struct {
	Venue    venue.Config   `mapstructure:"venue"`
	Bridge   bridge.Config  `mapstructure:"bridge"`
	Database DatabaseConfig `mapstructure:"database"`
	Chains   ChainConfig    `mapstructure:"chains"`
	Wallet   WalletConfig   `mapstructure:"wallet"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	DeviceID string         `mapstructure:"device_id"`
}

// WalletConfig holds the locally imported signing keys. Keys are
// supplied as a comma-separated list of hex strings.
type WalletConfig struct {
	PrivateKeys string `mapstructure:"private_keys"`
}

// Keys splits the configured private key list.
func (w WalletConfig) Keys() []string {
	if w.PrivateKeys == "" {
		return nil
	}
	parts := strings.Split(w.PrivateKeys, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			keys = append(keys, trimmed)
		}
	}
	return keys
}

// DatabaseConfig represents the preference store database
type DatabaseConfig struct {
	ConnectionString string `mapstructure:"connection_string" validate:"required"`
	MaxOpenConns     int    `mapstructure:"max_open_conns"`
	MaxIdleConns     int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime  int    `mapstructure:"conn_max_lifetime"` // in minutes
}

// ChainConfig holds RPC endpoints per chain id for on-chain allowance reads
type ChainConfig struct {
	RPCURLs map[string]string `mapstructure:"rpc_urls"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json console"`
	OutputPath string `mapstructure:"output_path"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PERPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// The device id keys agent credentials per install; an ephemeral one
	// still works, it just won't reuse agents across restarts.
	if config.DeviceID == "" {
		config.DeviceID = uuid.NewString()
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("venue.base_url", "")
	v.SetDefault("venue.use_testnet", false)
	v.SetDefault("venue.max_builder_fee", "0.1%")
	v.SetDefault("venue.default_slippage", 0.005)

	v.SetDefault("bridge.base_url", "https://api.rabby.io/v1/perps")
	v.SetDefault("bridge.timeout", 15*time.Second)

	v.SetDefault("database.connection_string", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5)

	v.SetDefault("wallet.private_keys", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")
}

func validateConfig(config *Config) error {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return err
	}
	return config.Venue.Validate()
}
