package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the service needs at startup. Symbol lists and
// endpoints are plain constructor inputs for the managers; there is no CLI
// surface beyond the environment.
type Config struct {
	BinanceRestEndpoint string
	BinanceWsEndpoint   string
	OKXRestEndpoint     string
	OKXWsEndpoint       string

	BinanceSymbols []string
	OKXSymbols     []string

	// DepthLimit is the number of levels requested per REST snapshot.
	DepthLimit int

	// MinSnapshotInterval is the minimum spacing between REST snapshots
	// for the same symbol.
	MinSnapshotInterval time.Duration

	// OKXResyncInterval triggers a periodic full resync on OKX books as a
	// safety net against undetected checksum collisions.
	OKXResyncInterval time.Duration

	// MaxErrorCount is the number of consecutive resync failures after
	// which the whole local state of a symbol is cleared.
	MaxErrorCount int

	RequestTimeout time.Duration

	MetricsAddr string
	LogLevel    string
	LogPretty   bool
}

func Load() *Config {
	// missing .env is fine, the environment may be set by the runtime
	_ = godotenv.Load()

	return &Config{
		BinanceRestEndpoint: getenv("BINANCE_REST_ENDPOINT", "https://api.binance.com"),
		BinanceWsEndpoint:   getenv("BINANCE_WS_ENDPOINT", "wss://stream.binance.com:9443/stream"),
		OKXRestEndpoint:     getenv("OKX_REST_ENDPOINT", "https://www.okx.com"),
		OKXWsEndpoint:       getenv("OKX_WS_ENDPOINT", "wss://ws.okx.com:8443/ws/v5/public"),

		BinanceSymbols: splitList(getenv("BINANCE_SYMBOLS", "btc_usdt,eth_usdt")),
		OKXSymbols:     splitList(getenv("OKX_SYMBOLS", "btc_usdt,eth_usdt")),

		DepthLimit:          getenvInt("DEPTH_LIMIT", 1000),
		MinSnapshotInterval: getenvDuration("MIN_SNAPSHOT_INTERVAL", 30*time.Second),
		OKXResyncInterval:   getenvDuration("OKX_SNAPSHOT_SYNC_INTERVAL", 5*time.Minute),
		MaxErrorCount:       getenvInt("MAX_ERROR_COUNT", 5),
		RequestTimeout:      getenvDuration("REQUEST_TIMEOUT", 30*time.Second),

		MetricsAddr: getenv("METRICS_ADDR", ":8080"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		LogPretty:   getenv("LOG_PRETTY", "") == "true",
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}
