package venue

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

const (
	MainnetAPIURL = "https://api.hyperliquid.xyz"
	TestnetAPIURL = "https://api.hyperliquid-testnet.xyz"

	MainnetChainName = "Mainnet"
	TestnetChainName = "Testnet"

	MainnetSignatureChainID = "0xa4b1"
	TestnetSignatureChainID = "0x66eee"

	MainnetWSURL = "wss://api.hyperliquid.xyz/ws"
	TestnetWSURL = "wss://api.hyperliquid-testnet.xyz/ws"
)

// Config carries the venue endpoints and the builder authorization the
// wallet requests on login.
type Config struct {
	BaseURL         string  `mapstructure:"base_url"`
	UseTestnet      bool    `mapstructure:"use_testnet"`
	Builder         string  `mapstructure:"builder" validate:"required"`
	MaxBuilderFee   string  `mapstructure:"max_builder_fee"`
	DefaultSlippage float64 `mapstructure:"default_slippage"`
}

func (c *Config) Validate() error {
	if c.Builder == "" {
		return fmt.Errorf("builder address is required")
	}
	if !common.IsHexAddress(c.Builder) {
		return fmt.Errorf("invalid builder address: %s", c.Builder)
	}

	if c.BaseURL == "" {
		if c.UseTestnet {
			c.BaseURL = TestnetAPIURL
		} else {
			c.BaseURL = MainnetAPIURL
		}
	}

	if c.MaxBuilderFee == "" {
		c.MaxBuilderFee = "0.1%"
	}

	if c.DefaultSlippage == 0 {
		c.DefaultSlippage = 0.005
	}
	if c.DefaultSlippage < 0 || c.DefaultSlippage > 0.1 {
		return fmt.Errorf("default_slippage must be between 0 and 0.1, got: %f", c.DefaultSlippage)
	}

	return nil
}

// ChainName is the hyperliquidChain value embedded in user-signed actions.
func (c *Config) ChainName() string {
	if c.UseTestnet {
		return TestnetChainName
	}
	return MainnetChainName
}

// SignatureChainID is the EVM chain id the wallet signs typed data against.
func (c *Config) SignatureChainID() string {
	if c.UseTestnet {
		return TestnetSignatureChainID
	}
	return MainnetSignatureChainID
}

// WebSocketURL is the live-feed endpoint matching the API environment.
func (c *Config) WebSocketURL() string {
	if c.UseTestnet {
		return TestnetWSURL
	}
	return MainnetWSURL
}

// BuilderAddress returns the parsed builder fee receiver.
func (c *Config) BuilderAddress() common.Address {
	return common.HexToAddress(c.Builder)
}
