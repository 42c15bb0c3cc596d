package bridge

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/RabbyHub/perps-engine/pkg/wallet"
)

// Service is the funding-rail collaborator: quote computation, token
// pricing, and best-effort bridge-history persistence.
type Service interface {
	Quote(ctx context.Context, req QuoteRequest) (*Quote, error)
	TokenPrice(ctx context.Context, chainID uint64, token common.Address) (decimal.Decimal, error)
	ReportTransaction(ctx context.Context, report Report) error
}

// Config for the funding-rail REST endpoint.
type Config struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type client struct {
	http *resty.Client
}

func NewClient(cfg Config) Service {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &client{
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

type quoteWire struct {
	ApprovalContract string `json:"approval_contract_address"`
	Tx               struct {
		ChainID  uint64 `json:"chainId"`
		To       string `json:"to"`
		Value    string `json:"value"`
		Data     string `json:"data"`
		GasPrice string `json:"gasPrice"`
	} `json:"tx"`
	ToTokenAmount   string `json:"to_token_amount"`
	DurationSeconds int64  `json:"duration"`
}

func (c *client) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	var out quoteWire
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"user_addr":  req.User.Hex(),
			"chain_id":   req.FromChain,
			"token_id":   req.FromToken.Hex(),
			"raw_amount": req.RawAmount.String(),
		}).
		SetResult(&out).
		Post("/quote")
	if err != nil {
		return nil, fmt.Errorf("fetch bridge quote: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("bridge quote returned %s: %s", resp.Status(), resp.String())
	}

	toAmount, err := decimal.NewFromString(out.ToTokenAmount)
	if err != nil {
		return nil, fmt.Errorf("parse quote output amount %q: %w", out.ToTokenAmount, err)
	}

	value, ok := new(big.Int).SetString(nonEmpty(out.Tx.Value, "0"), 10)
	if !ok {
		return nil, fmt.Errorf("parse quote tx value %q", out.Tx.Value)
	}
	gasPrice, ok := new(big.Int).SetString(nonEmpty(out.Tx.GasPrice, "0"), 10)
	if !ok {
		return nil, fmt.Errorf("parse quote gas price %q", out.Tx.GasPrice)
	}

	return &Quote{
		ApprovalContract: common.HexToAddress(out.ApprovalContract),
		Tx: wallet.Transaction{
			ChainID:  out.Tx.ChainID,
			To:       common.HexToAddress(out.Tx.To),
			Value:    value,
			Data:     common.FromHex(out.Tx.Data),
			GasPrice: gasPrice,
		},
		ToTokenAmount: toAmount,
		Duration:      time.Duration(out.DurationSeconds) * time.Second,
	}, nil
}

type priceWire struct {
	Price string `json:"price"`
}

func (c *client) TokenPrice(ctx context.Context, chainID uint64, token common.Address) (decimal.Decimal, error) {
	var out priceWire
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("chain_id", fmt.Sprintf("%d", chainID)).
		SetQueryParam("token_id", token.Hex()).
		SetResult(&out).
		Get("/price")
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch token price: %w", err)
	}
	if resp.IsError() {
		return decimal.Zero, fmt.Errorf("token price returned %s: %s", resp.Status(), resp.String())
	}

	price, err := decimal.NewFromString(out.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse token price %q: %w", out.Price, err)
	}
	return price, nil
}

func (c *client) ReportTransaction(ctx context.Context, report Report) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"user_addr":  report.User.Hex(),
			"tx_id":      report.TxHash.Hex(),
			"chain_id":   report.FromChain,
			"token_id":   report.FromToken.Hex(),
			"raw_amount": report.RawAmount.String(),
		}).
		Post("/history")
	if err != nil {
		return fmt.Errorf("report bridge transaction: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("bridge history returned %s: %s", resp.Status(), resp.String())
	}
	return nil
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
