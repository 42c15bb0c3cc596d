package clients

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	hyperliquid "github.com/sonirico/go-hyperliquid"
)

// ExchangeClient wraps the SDK exchange with lazy configuration. The
// session configures it with the agent key at login and resets it on
// logout; trading calls fail cleanly in between.
type ExchangeClient interface {
	Configure(baseURL, agentKeyHex, accountAddr string) error
	IsConfigured() bool
	Reset()
	GetExchange() (*hyperliquid.Exchange, error)
}

// InfoClient wraps the SDK info endpoint with lazy configuration.
type InfoClient interface {
	Configure(baseURL string) error
	IsConfigured() bool
	GetInfo() (*hyperliquid.Info, error)
}

// WebSocketClient wraps the SDK websocket with lazy configuration.
type WebSocketClient interface {
	Configure(baseURL string) error
	IsConfigured() bool
	GetWebSocket() (*hyperliquid.WebsocketClient, error)
}

type exchangeClient struct {
	exchange   *hyperliquid.Exchange
	configured bool
	mu         sync.RWMutex
}

type infoClient struct {
	info       *hyperliquid.Info
	configured bool
	mu         sync.RWMutex
}

type webSocketClient struct {
	ws         *hyperliquid.WebsocketClient
	configured bool
	mu         sync.RWMutex
}

func NewExchangeClient() ExchangeClient {
	return &exchangeClient{}
}

func NewInfoClient() InfoClient {
	return &infoClient{}
}

func NewWebSocketClient() WebSocketClient {
	return &webSocketClient{}
}

// Configure sets up the exchange client with the delegated agent key.
// The master account address is passed so queries resolve against the
// master, not the agent.
func (e *exchangeClient) Configure(baseURL, agentKeyHex, accountAddr string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.configured {
		return fmt.Errorf("exchange client already configured")
	}

	agentKey, err := crypto.HexToECDSA(agentKeyHex)
	if err != nil {
		return fmt.Errorf("invalid agent key: %w", err)
	}

	e.exchange = hyperliquid.NewExchange(
		agentKey,
		baseURL,
		nil, // Meta fetched automatically
		"",  // no vault
		accountAddr,
		nil, // SpotMeta fetched automatically
	)
	e.configured = true
	return nil
}

func (e *exchangeClient) IsConfigured() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.configured
}

// Reset tears the session down; a later login reconfigures with a fresh
// agent key.
func (e *exchangeClient) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exchange = nil
	e.configured = false
}

func (e *exchangeClient) GetExchange() (*hyperliquid.Exchange, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.configured {
		return nil, fmt.Errorf("exchange client not configured")
	}
	return e.exchange, nil
}

func (i *infoClient) Configure(baseURL string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.configured {
		return fmt.Errorf("info client already configured")
	}

	i.info = hyperliquid.NewInfo(baseURL, true, nil, nil)
	i.configured = true
	return nil
}

func (i *infoClient) IsConfigured() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.configured
}

func (i *infoClient) GetInfo() (*hyperliquid.Info, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if !i.configured {
		return nil, fmt.Errorf("info client not configured")
	}
	return i.info, nil
}

func (w *webSocketClient) Configure(baseURL string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.configured {
		return fmt.Errorf("websocket client already configured")
	}

	w.ws = hyperliquid.NewWebsocketClient(baseURL)
	w.configured = true
	return nil
}

func (w *webSocketClient) IsConfigured() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.configured
}

func (w *webSocketClient) GetWebSocket() (*hyperliquid.WebsocketClient, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if !w.configured {
		return nil, fmt.Errorf("websocket client not configured")
	}
	return w.ws, nil
}
