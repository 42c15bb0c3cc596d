package marketdata

import (
	hyperliquid "github.com/sonirico/go-hyperliquid"

	"github.com/RabbyHub/perps-engine/pkg/venue/clients"
)

var millisecondsPerSecond = int64(1000)

// Service exposes the market-data snapshots the trading screens need:
// mid prices, order books, and candles for the chart.
type Service struct {
	client clients.InfoClient
}

func NewService(client clients.InfoClient) *Service {
	return &Service{client: client}
}

func (s *Service) AllMids() (map[string]string, error) {
	info, err := s.client.GetInfo()
	if err != nil {
		return nil, err
	}
	return info.AllMids()
}

func (s *Service) L2Book(coin string) (*hyperliquid.L2Book, error) {
	info, err := s.client.GetInfo()
	if err != nil {
		return nil, err
	}
	return info.L2Snapshot(coin)
}

func (s *Service) Candles(coin, interval string, startTime, endTime int64) ([]hyperliquid.Candle, error) {
	info, err := s.client.GetInfo()
	if err != nil {
		return nil, err
	}
	return info.CandlesSnapshot(coin, interval, startTime*millisecondsPerSecond, endTime*millisecondsPerSecond)
}

func (s *Service) Meta() (*hyperliquid.Meta, error) {
	info, err := s.client.GetInfo()
	if err != nil {
		return nil, err
	}
	return info.Meta()
}
