package venue

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// AgentRecord is a delegated signing key registered on the venue for a
// master account.
type AgentRecord struct {
	Address    common.Address
	Name       string
	ValidUntil time.Time
}

// Expiring reports whether the agent's registration runs out within the
// given window. An agent nearing expiry must be replaced before any
// signed trading action.
func (r AgentRecord) Expiring(now time.Time, window time.Duration) bool {
	return !r.ValidUntil.After(now.Add(window))
}

// ClearinghouseState is the perps account summary for a user.
type ClearinghouseState struct {
	AccountValue decimal.Decimal
	Withdrawable decimal.Decimal
}

// LedgerEntry is a server-confirmed deposit/withdraw/transfer record.
type LedgerEntry struct {
	Hash     common.Hash
	Type     string
	UsdValue decimal.Decimal
	Time     time.Time
}

// InfoService exposes the venue info endpoints the trading SDK does not
// cover: agent registry, builder fee authorization, account role, and the
// ledger history used for pending-entry reconciliation.
type InfoService interface {
	RegisteredAgents(ctx context.Context, master common.Address) ([]AgentRecord, error)
	MaxBuilderFee(ctx context.Context, user, builder common.Address) (int, error)
	Clearinghouse(ctx context.Context, user common.Address) (ClearinghouseState, error)
	UserRole(ctx context.Context, user common.Address) (string, error)
	LedgerUpdates(ctx context.Context, user common.Address, since time.Time) ([]LedgerEntry, error)
}

type infoService struct {
	http *resty.Client
}

// NewInfoService builds an info client against the venue REST endpoint.
func NewInfoService(cfg *Config) InfoService {
	return &infoService{
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(15*time.Second).
			SetHeader("Content-Type", "application/json"),
	}
}

type agentWire struct {
	Address    string `json:"address"`
	Name       string `json:"name"`
	ValidUntil int64  `json:"validUntil"`
}

func (s *infoService) RegisteredAgents(ctx context.Context, master common.Address) ([]AgentRecord, error) {
	var out []agentWire
	if err := s.post(ctx, map[string]any{
		"type": "extraAgents",
		"user": master.Hex(),
	}, &out); err != nil {
		return nil, fmt.Errorf("query registered agents: %w", err)
	}

	agents := make([]AgentRecord, 0, len(out))
	for _, a := range out {
		agents = append(agents, AgentRecord{
			Address:    common.HexToAddress(a.Address),
			Name:       a.Name,
			ValidUntil: time.UnixMilli(a.ValidUntil),
		})
	}
	return agents, nil
}

func (s *infoService) MaxBuilderFee(ctx context.Context, user, builder common.Address) (int, error) {
	var out int
	if err := s.post(ctx, map[string]any{
		"type":    "maxBuilderFee",
		"user":    user.Hex(),
		"builder": builder.Hex(),
	}, &out); err != nil {
		return 0, fmt.Errorf("query max builder fee: %w", err)
	}
	return out, nil
}

type clearinghouseWire struct {
	MarginSummary struct {
		AccountValue string `json:"accountValue"`
	} `json:"marginSummary"`
	Withdrawable string `json:"withdrawable"`
}

func (s *infoService) Clearinghouse(ctx context.Context, user common.Address) (ClearinghouseState, error) {
	var out clearinghouseWire
	if err := s.post(ctx, map[string]any{
		"type": "clearinghouseState",
		"user": user.Hex(),
	}, &out); err != nil {
		return ClearinghouseState{}, fmt.Errorf("query clearinghouse state: %w", err)
	}

	value, err := decimal.NewFromString(out.MarginSummary.AccountValue)
	if err != nil {
		return ClearinghouseState{}, fmt.Errorf("parse account value %q: %w", out.MarginSummary.AccountValue, err)
	}
	withdrawable, err := decimal.NewFromString(out.Withdrawable)
	if err != nil {
		return ClearinghouseState{}, fmt.Errorf("parse withdrawable %q: %w", out.Withdrawable, err)
	}

	return ClearinghouseState{AccountValue: value, Withdrawable: withdrawable}, nil
}

type userRoleWire struct {
	Role string `json:"role"`
}

func (s *infoService) UserRole(ctx context.Context, user common.Address) (string, error) {
	var out userRoleWire
	if err := s.post(ctx, map[string]any{
		"type": "userRole",
		"user": user.Hex(),
	}, &out); err != nil {
		return "", fmt.Errorf("query user role: %w", err)
	}
	return out.Role, nil
}

type ledgerUpdateWire struct {
	Time  int64  `json:"time"`
	Hash  string `json:"hash"`
	Delta struct {
		Type string `json:"type"`
		Usdc string `json:"usdc"`
	} `json:"delta"`
}

func (s *infoService) LedgerUpdates(ctx context.Context, user common.Address, since time.Time) ([]LedgerEntry, error) {
	var out []ledgerUpdateWire
	if err := s.post(ctx, map[string]any{
		"type":      "userNonFundingLedgerUpdates",
		"user":      user.Hex(),
		"startTime": since.UnixMilli(),
	}, &out); err != nil {
		return nil, fmt.Errorf("query ledger updates: %w", err)
	}

	entries := make([]LedgerEntry, 0, len(out))
	for _, u := range out {
		usd, err := decimal.NewFromString(u.Delta.Usdc)
		if err != nil {
			usd = decimal.Zero
		}
		entries = append(entries, LedgerEntry{
			Hash:     common.HexToHash(u.Hash),
			Type:     u.Delta.Type,
			UsdValue: usd.Abs(),
			Time:     time.UnixMilli(u.Time),
		})
	}
	return entries, nil
}

func (s *infoService) post(ctx context.Context, body map[string]any, out any) error {
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(out).
		Post("/info")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("info %s returned %s: %s", body["type"], resp.Status(), resp.String())
	}
	return nil
}

// ParseFeeRate converts a percent string like "0.1%" to tenths of a
// basis point, the unit maxBuilderFee reports.
func ParseFeeRate(rate string) (int, error) {
	trimmed := rate
	if len(trimmed) > 0 && trimmed[len(trimmed)-1] == '%' {
		trimmed = trimmed[:len(trimmed)-1]
	}
	pct, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("parse fee rate %q: %w", rate, err)
	}
	return int(math.Round(pct * 1000)), nil
}
