package session

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/RabbyHub/perps-engine/pkg/venue"
	"github.com/RabbyHub/perps-engine/pkg/venue/actions"
	"github.com/RabbyHub/perps-engine/pkg/venue/clients"
)

// venueBinder wires the session agent key into the SDK exchange wrapper
// and the action client in one step, so both fail or succeed together.
type venueBinder struct {
	cfg      *venue.Config
	exchange clients.ExchangeClient
	info     clients.InfoClient
	ws       clients.WebSocketClient
	actions  *actions.Client
}

func NewVenueBinder(
	cfg *venue.Config,
	exchange clients.ExchangeClient,
	info clients.InfoClient,
	ws clients.WebSocketClient,
	actionClient *actions.Client,
) VenueBinder {
	return &venueBinder{
		cfg:      cfg,
		exchange: exchange,
		info:     info,
		ws:       ws,
		actions:  actionClient,
	}
}

func (b *venueBinder) Bind(agentKeyHex string, account common.Address) error {
	key, err := crypto.HexToECDSA(agentKeyHex)
	if err != nil {
		return fmt.Errorf("parse agent key: %w", err)
	}

	if err := b.exchange.Configure(b.cfg.BaseURL, agentKeyHex, account.Hex()); err != nil {
		return err
	}
	if !b.info.IsConfigured() {
		if err := b.info.Configure(b.cfg.BaseURL); err != nil {
			return err
		}
	}
	if !b.ws.IsConfigured() {
		if err := b.ws.Configure(b.cfg.BaseURL); err != nil {
			return err
		}
	}

	b.actions.SetAgentKey(key)
	return nil
}

func (b *venueBinder) Unbind() {
	b.exchange.Reset()
	b.actions.SetAgentKey(nil)
}
