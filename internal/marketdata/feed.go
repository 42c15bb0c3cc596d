package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/RabbyHub/perps-engine/internal/logging"
	"github.com/RabbyHub/perps-engine/pkg/stream"
)

// Subscription identifies one venue feed channel.
type Subscription struct {
	Type     string `json:"type"`
	Coin     string `json:"coin,omitempty"`
	Interval string `json:"interval,omitempty"`
}

type subscribeMessage struct {
	Method       string       `json:"method"`
	Subscription Subscription `json:"subscription"`
}

type envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// Feed maintains the live WebSocket subscriptions for the trading
// screens. Active subscriptions survive reconnects: the connect
// callback replays them before any new messages are handled.
type Feed struct {
	conn        *stream.Conn
	reconnector *stream.Reconnector
	logger      logging.ApplicationLogger

	mu       sync.Mutex
	active   map[Subscription]struct{}
	handlers map[string][]func(json.RawMessage)
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewFeed(cfg stream.Config, logger logging.ApplicationLogger) *Feed {
	f := &Feed{
		logger:   logger,
		active:   make(map[Subscription]struct{}),
		handlers: make(map[string][]func(json.RawMessage)),
	}
	f.conn = stream.NewConn(cfg, logger)
	f.reconnector = stream.NewReconnector(
		f.conn,
		stream.NewExponentialBackoffStrategy(cfg.ReconnectDelay, 30*cfg.ReconnectDelay, cfg.MaxReconnects),
		logger,
	)
	f.conn.SetCallbacks(f.onConnect, f.onDisconnect, f.onMessage, f.onError)
	return f
}

func (f *Feed) Start(ctx context.Context) error {
	f.mu.Lock()
	f.ctx, f.cancel = context.WithCancel(ctx)
	f.mu.Unlock()
	return f.conn.Connect(f.ctx)
}

func (f *Feed) Stop() error {
	f.mu.Lock()
	if f.cancel != nil {
		f.cancel()
	}
	f.mu.Unlock()
	return f.conn.Disconnect()
}

// Subscribe registers a handler for a channel and sends the subscribe
// message if this is the channel's first subscriber.
func (f *Feed) Subscribe(sub Subscription, handler func(json.RawMessage)) error {
	f.mu.Lock()
	f.handlers[sub.Type] = append(f.handlers[sub.Type], handler)
	_, already := f.active[sub]
	f.active[sub] = struct{}{}
	f.mu.Unlock()

	if already {
		return nil
	}
	return f.conn.SendJSON(subscribeMessage{Method: "subscribe", Subscription: sub})
}

func (f *Feed) Unsubscribe(sub Subscription) error {
	f.mu.Lock()
	delete(f.active, sub)
	f.mu.Unlock()
	return f.conn.SendJSON(subscribeMessage{Method: "unsubscribe", Subscription: sub})
}

// onConnect replays active subscriptions after (re)connect.
func (f *Feed) onConnect() error {
	f.mu.Lock()
	subs := make([]Subscription, 0, len(f.active))
	for s := range f.active {
		subs = append(subs, s)
	}
	f.mu.Unlock()

	for _, s := range subs {
		if err := f.conn.SendJSON(subscribeMessage{Method: "subscribe", Subscription: s}); err != nil {
			return fmt.Errorf("resubscribe %s/%s: %w", s.Type, s.Coin, err)
		}
	}
	return nil
}

func (f *Feed) onMessage(raw []byte) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode feed message: %w", err)
	}

	f.mu.Lock()
	handlers := f.handlers[env.Channel]
	f.mu.Unlock()

	for _, h := range handlers {
		h(env.Data)
	}
	return nil
}

// onError logs feed errors. Message-level errors leave the connection
// up, so they never trigger reconnection; that is the disconnect
// callback's job.
func (f *Feed) onError(err error) {
	f.logger.Warn("live feed error: %v", err)
}

// onDisconnect runs when the connection drops, from a read failure or
// an explicit Stop. Stop cancels the context first, which keeps the
// reconnector from resurrecting a deliberate shutdown.
func (f *Feed) onDisconnect() {
	f.mu.Lock()
	ctx := f.ctx
	f.mu.Unlock()

	if ctx != nil && ctx.Err() == nil {
		f.reconnector.Start(ctx)
	}
}
