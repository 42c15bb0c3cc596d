package actions

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/RabbyHub/perps-engine/pkg/venue"
)

// Client posts signed actions to the venue exchange endpoint.
type Client struct {
	http     *resty.Client
	cfg      *venue.Config
	agentKey *ecdsa.PrivateKey
	agentMu  sync.RWMutex
}

func NewClient(cfg *venue.Config) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(15*time.Second).
			SetHeader("Content-Type", "application/json"),
		cfg: cfg,
	}
}

// SetAgentKey installs the session agent key used for L1 actions.
// Passing nil clears it on logout.
func (c *Client) SetAgentKey(key *ecdsa.PrivateKey) {
	c.agentMu.Lock()
	defer c.agentMu.Unlock()
	c.agentKey = key
}

type rsvSignature struct {
	R string `json:"r"`
	S string `json:"s"`
	V uint8  `json:"v"`
}

func splitSignature(sig []byte) (rsvSignature, error) {
	if len(sig) != 65 {
		return rsvSignature{}, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}
	return rsvSignature{
		R: "0x" + hex.EncodeToString(sig[:32]),
		S: "0x" + hex.EncodeToString(sig[32:64]),
		V: sig[64],
	}, nil
}

type exchangeResponse struct {
	Status   string `json:"status"`
	Response any    `json:"response"`
}

// SubmitUserSigned posts a master-signed typed action.
func (c *Client) SubmitUserSigned(ctx context.Context, ta TypedAction, sig []byte) error {
	rsv, err := splitSignature(sig)
	if err != nil {
		return err
	}
	return c.post(ctx, map[string]any{
		"action":    ta.Action,
		"nonce":     ta.Nonce,
		"signature": rsv,
	})
}

// UpdateLeverage signs and posts a leverage change with the session
// agent key.
func (c *Client) UpdateLeverage(ctx context.Context, asset, leverage int, isCross bool) error {
	c.agentMu.RLock()
	key := c.agentKey
	c.agentMu.RUnlock()
	if key == nil {
		return venue.Errorf(venue.KindAgentExpired, "no agent key configured")
	}

	action := NewUpdateLeverage(asset, leverage, isCross)
	nonce := time.Now().UnixMilli()

	sig, err := SignL1Action(key, action, nonce, !c.cfg.UseTestnet)
	if err != nil {
		return fmt.Errorf("sign leverage update: %w", err)
	}
	rsv, err := splitSignature(sig)
	if err != nil {
		return err
	}

	return c.post(ctx, map[string]any{
		"action":    action,
		"nonce":     nonce,
		"signature": rsv,
	})
}

func (c *Client) post(ctx context.Context, body map[string]any) error {
	var out exchangeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/exchange")
	if err != nil {
		return fmt.Errorf("post exchange action: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("exchange returned %s: %s", resp.Status(), resp.String())
	}
	if out.Status != "ok" {
		return fmt.Errorf("exchange rejected action: %v", out.Response)
	}
	return nil
}
