package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/dorlov/go-bookbridge/config"
	"github.com/dorlov/go-bookbridge/domain"
	promclient "github.com/dorlov/go-bookbridge/infrastructure/prometheus"
	"github.com/dorlov/go-bookbridge/provider"
	"github.com/dorlov/go-bookbridge/provider/binance"
	"github.com/dorlov/go-bookbridge/provider/okx"
)

func main() {
	cfg := config.Load()
	log := newLogger(cfg)

	metrics := promclient.New()
	go metrics.Serve(cfg.MetricsAddr, log)

	cm := provider.NewConnectionManager(cfg, log)
	cm.Init()
	defer cm.Close()

	// the downstream publisher hook; kept to a log line here, the real
	// service plugs its bus producer in instead
	onBook := func(snapshot *domain.OrderBookSnapshot, updateType domain.UpdateType) {
		event := log.Debug().
			Str("exchange", snapshot.Exchange).
			Str("symbol", snapshot.Symbol.String()).
			Str("type", string(updateType)).
			Uint64("last_update_id", snapshot.LastUpdateID)
		if bid, ok := snapshot.BestBid(); ok {
			event = event.Str("best_bid", bid.Price.String())
		}
		if ask, ok := snapshot.BestAsk(); ok {
			event = event.Str("best_ask", ask.Price.String())
		}
		event.Msg("book merged")
	}

	managers := make([]*domain.OrderBookManager, 0, 2)
	for exchange, list := range map[string][]string{
		binance.Exchange: cfg.BinanceSymbols,
		okx.Exchange:     cfg.OKXSymbols,
	} {
		if len(list) == 0 {
			continue
		}

		manager, err := buildManager(cm, exchange, cfg, onBook, metrics, log)
		if err != nil {
			log.Fatal().Err(err).Str("exchange", exchange).Msg("cannot build manager")
		}

		symbols, err := parseSymbols(list)
		if err != nil {
			log.Fatal().Err(err).Str("exchange", exchange).Msg("invalid symbol list")
		}

		if err := manager.Start(symbols); err != nil {
			log.Fatal().Err(err).Str("exchange", exchange).Msg("cannot start manager")
		}
		managers = append(managers, manager)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	for _, manager := range managers {
		manager.Stop()
	}
}

func buildManager(
	cm *provider.ConnectionManager,
	exchange string,
	cfg *config.Config,
	onBook domain.BookCallback,
	metrics domain.Metrics,
	log zerolog.Logger,
) (*domain.OrderBookManager, error) {
	adapter, err := cm.Adapter(exchange)
	if err != nil {
		return nil, err
	}
	syncAPI, err := cm.SyncAPI(exchange)
	if err != nil {
		return nil, err
	}
	streamAPI, err := cm.StreamAPI(exchange)
	if err != nil {
		return nil, err
	}
	limiter, err := cm.Limiter(exchange)
	if err != nil {
		return nil, err
	}

	return domain.NewOrderBookManager(adapter, syncAPI, streamAPI, limiter, onBook, metrics, domain.ManagerConfig{
		DepthLimit:     cfg.DepthLimit,
		MaxErrorCount:  cfg.MaxErrorCount,
		RequestTimeout: cfg.RequestTimeout,
	}, log), nil
}

func parseSymbols(list []string) ([]*domain.MarketSymbol, error) {
	symbols := make([]*domain.MarketSymbol, 0, len(list))
	for _, s := range list {
		symbol, err := domain.NewMarketSymbolFromString(s)
		if err != nil {
			return nil, err
		}
		symbols = append(symbols, symbol)
	}
	return symbols, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if cfg.LogPretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger()
}
