package venue

import (
	"context"
	"fmt"

	hyperliquid "github.com/sonirico/go-hyperliquid"

	"github.com/RabbyHub/perps-engine/pkg/venue/clients"
)

// ExchangeService wraps the SDK exchange for the order shapes the action
// handlers need. Calls fail with a configuration error until the session
// has logged in and installed the agent key.
type ExchangeService interface {
	MarketOpen(ctx context.Context, coin string, isBuy bool, size, slippage float64) error
	MarketClose(ctx context.Context, coin string, size *float64, slippage float64) error
	PlaceTrigger(ctx context.Context, coin string, isBuy bool, size, triggerPx float64, isMarket bool) error
	CancelOrder(coin string, orderID int64) error
}

type exchangeService struct {
	client clients.ExchangeClient
}

func NewExchangeService(client clients.ExchangeClient) ExchangeService {
	return &exchangeService{client: client}
}

func (s *exchangeService) MarketOpen(ctx context.Context, coin string, isBuy bool, size, slippage float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ex, err := s.client.GetExchange()
	if err != nil {
		return fmt.Errorf("exchange not configured: %w", err)
	}
	_, err = ex.MarketOpen(coin, isBuy, size, nil, slippage, nil, nil)
	return err
}

func (s *exchangeService) MarketClose(ctx context.Context, coin string, size *float64, slippage float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ex, err := s.client.GetExchange()
	if err != nil {
		return fmt.Errorf("exchange not configured: %w", err)
	}
	_, err = ex.MarketClose(coin, size, nil, slippage, nil, nil)
	return err
}

func (s *exchangeService) PlaceTrigger(ctx context.Context, coin string, isBuy bool, size, triggerPx float64, isMarket bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ex, err := s.client.GetExchange()
	if err != nil {
		return fmt.Errorf("exchange not configured: %w", err)
	}

	req := hyperliquid.CreateOrderRequest{
		Coin:       coin,
		IsBuy:      isBuy,
		Price:      triggerPx,
		Size:       size,
		ReduceOnly: true,
		OrderType: hyperliquid.OrderType{
			Trigger: &hyperliquid.TriggerOrderType{
				TriggerPx: triggerPx,
				IsMarket:  isMarket,
			},
		},
	}
	_, err = ex.Order(req, nil)
	return err
}

func (s *exchangeService) CancelOrder(coin string, orderID int64) error {
	ex, err := s.client.GetExchange()
	if err != nil {
		return fmt.Errorf("exchange not configured: %w", err)
	}
	_, err = ex.Cancel(coin, orderID)
	return err
}
