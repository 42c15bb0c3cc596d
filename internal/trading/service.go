package trading

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/RabbyHub/perps-engine/internal/events"
	"github.com/RabbyHub/perps-engine/internal/telemetry"
	"github.com/RabbyHub/perps-engine/pkg/venue"
	"github.com/RabbyHub/perps-engine/pkg/venue/clients"
)

// triggerDelay is how long to wait after the parent order before the
// TP/SL triggers go out, giving the matching engine time to register
// the position.
const triggerDelay = 10 * time.Millisecond

// SessionControl is the slice of the login machine the handlers need:
// the bound agent address for error classification, and the ability to
// force a re-login when the venue rejects that agent.
type SessionControl interface {
	AgentAddress() common.Address
	RequireReauthorization()
}

// LeverageClient posts leverage updates signed with the agent key.
type LeverageClient interface {
	UpdateLeverage(ctx context.Context, asset, leverage int, isCross bool) error
}

// AssetResolver maps a coin name to the venue's asset index.
type AssetResolver interface {
	Asset(coin string) (int, error)
}

// infoAssetResolver resolves through the lazily configured info client.
type infoAssetResolver struct {
	info clients.InfoClient
}

func NewAssetResolver(info clients.InfoClient) AssetResolver {
	return &infoAssetResolver{info: info}
}

func (r *infoAssetResolver) Asset(coin string) (int, error) {
	info, err := r.info.GetInfo()
	if err != nil {
		return 0, err
	}
	return info.NameToAsset(coin), nil
}

// OpenRequest describes a new position: the market order plus optional
// take-profit and stop-loss triggers.
type OpenRequest struct {
	Coin       string
	Buy        bool
	Size       float64
	Leverage   int
	Cross      bool
	TakeProfit *float64
	StopLoss   *float64
	Slippage   float64
}

// TriggerRequest attaches TP/SL triggers to an existing position.
type TriggerRequest struct {
	Coin        string
	PositionBuy bool
	Size        float64
	TakeProfit  *float64
	StopLoss    *float64
}

// Service implements the position and order action handlers.
type Service struct {
	exchange venue.ExchangeService
	leverage LeverageClient
	assets   AssetResolver
	session  SessionControl
	notifier telemetry.Notifier
	reporter telemetry.Reporter
	bus      *events.EventBus
	logger   *zap.Logger

	defaultSlippage float64
}

func NewService(
	exchange venue.ExchangeService,
	leverage LeverageClient,
	assets AssetResolver,
	session SessionControl,
	notifier telemetry.Notifier,
	reporter telemetry.Reporter,
	bus *events.EventBus,
	logger *zap.Logger,
	cfg *venue.Config,
) *Service {
	return &Service{
		exchange:        exchange,
		leverage:        leverage,
		assets:          assets,
		session:         session,
		notifier:        notifier,
		reporter:        reporter,
		bus:             bus,
		logger:          logger,
		defaultSlippage: cfg.DefaultSlippage,
	}
}

func (s *Service) asset(coin string) (int, error) {
	return s.assets.Asset(coin)
}

func (s *Service) slippage(requested float64) float64 {
	if requested > 0 {
		return requested
	}
	return s.defaultSlippage
}

// OpenPosition sets leverage, submits the market order, and after a
// short delay submits the TP/SL triggers concurrently. All submissions
// are awaited before returning; partial failures surface as a joined
// error.
func (s *Service) OpenPosition(ctx context.Context, req OpenRequest) error {
	asset, err := s.asset(req.Coin)
	if err != nil {
		return s.fail("open", err, map[string]any{"coin": req.Coin})
	}

	if err := s.leverage.UpdateLeverage(ctx, asset, req.Leverage, req.Cross); err != nil {
		return s.fail("open.leverage", err, map[string]any{
			"coin":     req.Coin,
			"leverage": req.Leverage,
		})
	}

	slippage := s.slippage(req.Slippage)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error
	collect := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		collect(s.exchange.MarketOpen(ctx, req.Coin, req.Buy, req.Size, slippage))
	}()

	if req.TakeProfit != nil || req.StopLoss != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-ctx.Done():
				collect(ctx.Err())
				return
			case <-time.After(triggerDelay):
			}
			collect(s.placeTriggers(ctx, req.Coin, req.Buy, req.Size, req.TakeProfit, req.StopLoss))
		}()
	}

	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return s.fail("open", err, map[string]any{
			"coin": req.Coin,
			"buy":  req.Buy,
			"size": req.Size,
		})
	}

	s.bus.Publish(events.Event{
		Type: events.EventOrderPlaced,
		Data: map[string]interface{}{"coin": req.Coin, "buy": req.Buy},
	})
	s.logger.Info("position opened",
		zap.String("coin", req.Coin),
		zap.Bool("buy", req.Buy),
		zap.Float64("size", req.Size))
	return nil
}

// placeTriggers submits the TP and SL orders concurrently and waits for
// both. Triggers sit on the opposite side of the position and are
// reduce-only market triggers.
func (s *Service) placeTriggers(ctx context.Context, coin string, positionBuy bool, size float64, tp, sl *float64) error {
	closeSide := !positionBuy

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error
	place := func(px float64, label string) {
		defer wg.Done()
		if err := s.exchange.PlaceTrigger(ctx, coin, closeSide, size, px, true); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("%s trigger: %w", label, err))
			mu.Unlock()
		}
	}

	if tp != nil {
		wg.Add(1)
		go place(*tp, "take-profit")
	}
	if sl != nil {
		wg.Add(1)
		go place(*sl, "stop-loss")
	}
	wg.Wait()
	return errors.Join(errs...)
}

// ClosePosition market-closes the position, fully when size is nil.
func (s *Service) ClosePosition(ctx context.Context, coin string, size *float64) error {
	if err := s.exchange.MarketClose(ctx, coin, size, s.defaultSlippage); err != nil {
		return s.fail("close", err, map[string]any{"coin": coin})
	}

	s.bus.Publish(events.Event{
		Type: events.EventPositionClosed,
		Data: map[string]interface{}{"coin": coin},
	})
	s.bus.Publish(events.Event{Type: events.EventBalanceRefreshed})
	return nil
}

// AdjustLeverage changes the leverage or margin mode of an open
// position.
func (s *Service) AdjustLeverage(ctx context.Context, coin string, leverage int, cross bool) error {
	asset, err := s.asset(coin)
	if err != nil {
		return s.fail("leverage", err, map[string]any{"coin": coin})
	}
	if err := s.leverage.UpdateLeverage(ctx, asset, leverage, cross); err != nil {
		return s.fail("leverage", err, map[string]any{
			"coin":     coin,
			"leverage": leverage,
			"cross":    cross,
		})
	}
	return nil
}

// SetTriggers attaches or replaces TP/SL triggers on an open position.
func (s *Service) SetTriggers(ctx context.Context, req TriggerRequest) error {
	if req.TakeProfit == nil && req.StopLoss == nil {
		return nil
	}
	if err := s.placeTriggers(ctx, req.Coin, req.PositionBuy, req.Size, req.TakeProfit, req.StopLoss); err != nil {
		return s.fail("triggers", err, map[string]any{"coin": req.Coin})
	}
	return nil
}

// CancelTrigger removes a resting trigger order.
func (s *Service) CancelTrigger(coin string, orderID int64) error {
	if err := s.exchange.CancelOrder(coin, orderID); err != nil {
		return s.fail("cancel", err, map[string]any{
			"coin":     coin,
			"order_id": orderID,
		})
	}
	return nil
}

// fail classifies the error and routes it: an expired agent forces
// re-authorization instead of a generic toast, everything else is
// reported with the serialized call parameters.
func (s *Service) fail(op string, err error, params map[string]any) error {
	classified := venue.Classify(err, s.session.AgentAddress())
	if venue.KindOf(classified) == venue.KindAgentExpired {
		s.logger.Warn("agent rejected by venue, forcing re-authorization",
			zap.String("op", op), zap.Error(err))
		s.session.RequireReauthorization()
		return classified
	}

	s.reporter.ReportError("trading."+op, classified, params)
	s.notifier.NotifyError("Order failed: " + err.Error())
	return classified
}
