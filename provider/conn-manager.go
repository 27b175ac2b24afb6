package provider

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dorlov/go-bookbridge/config"
	"github.com/dorlov/go-bookbridge/domain"
	"github.com/dorlov/go-bookbridge/provider/binance"
	"github.com/dorlov/go-bookbridge/provider/okx"
	"github.com/dorlov/go-bookbridge/ratelimit"
)

// ConnectionManager owns the shared transports of every supported exchange
// and hands out the sync/stream APIs, adapters and rate limiters the order
// book managers are wired with.
type ConnectionManager struct {
	BinanceSyncAPI   *binance.SyncAPI
	BinanceClient    *binance.StreamClient
	BinanceStreamAPI *binance.StreamAPI
	BinanceLimiter   *ratelimit.Limiter

	OKXSyncAPI   *okx.SyncAPI
	OKXClient    *okx.StreamClient
	OKXStreamAPI *okx.StreamAPI
	OKXLimiter   *ratelimit.Limiter

	cfg *config.Config
	log zerolog.Logger
}

func NewConnectionManager(cfg *config.Config, log zerolog.Logger) *ConnectionManager {
	binanceClient := binance.NewStreamClient(cfg.BinanceWsEndpoint, log)
	okxClient := okx.NewStreamClient(cfg.OKXWsEndpoint, log)

	return &ConnectionManager{
		BinanceSyncAPI:   binance.NewSyncAPI(cfg.BinanceRestEndpoint, cfg.DepthLimit),
		BinanceClient:    binanceClient,
		BinanceStreamAPI: binance.NewStreamAPI(binanceClient, log),
		BinanceLimiter: ratelimit.New(ratelimit.Config{
			WeightLimit:         1200,
			MinSnapshotInterval: cfg.MinSnapshotInterval,
		}),

		OKXSyncAPI:   okx.NewSyncAPI(cfg.OKXRestEndpoint),
		OKXClient:    okxClient,
		OKXStreamAPI: okx.NewStreamAPI(okxClient, log),
		OKXLimiter: ratelimit.New(ratelimit.Config{
			WeightLimit:         300,
			MinSnapshotInterval: cfg.MinSnapshotInterval,
		}),

		cfg: cfg,
		log: log,
	}
}

// Init dials both exchanges in parallel.
func (cm *ConnectionManager) Init() {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := cm.BinanceClient.Connect(); err != nil {
			cm.log.Error().Err(err).Msg("failed to connect binance stream")
		}
	}()
	go func() {
		defer wg.Done()
		if err := cm.OKXClient.Connect(); err != nil {
			cm.log.Error().Err(err).Msg("failed to connect okx stream")
		}
	}()

	wg.Wait()
}

func (cm *ConnectionManager) Adapter(exchange string) (domain.ExchangeAdapter, error) {
	switch exchange {
	case binance.Exchange:
		return binance.NewAdapter(), nil
	case okx.Exchange:
		return okx.NewAdapter(cm.cfg.OKXResyncInterval), nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnknownExchange, exchange)
}

func (cm *ConnectionManager) SyncAPI(exchange string) (domain.SyncAPI, error) {
	switch exchange {
	case binance.Exchange:
		return cm.BinanceSyncAPI, nil
	case okx.Exchange:
		return cm.OKXSyncAPI, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnknownExchange, exchange)
}

func (cm *ConnectionManager) StreamAPI(exchange string) (domain.StreamAPI, error) {
	switch exchange {
	case binance.Exchange:
		return cm.BinanceStreamAPI, nil
	case okx.Exchange:
		return cm.OKXStreamAPI, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnknownExchange, exchange)
}

func (cm *ConnectionManager) Limiter(exchange string) (*ratelimit.Limiter, error) {
	switch exchange {
	case binance.Exchange:
		return cm.BinanceLimiter, nil
	case okx.Exchange:
		return cm.OKXLimiter, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnknownExchange, exchange)
}

func (cm *ConnectionManager) Close() {
	cm.BinanceClient.Close()
	cm.OKXClient.Close()
}
