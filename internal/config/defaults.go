package config

import (
	"time"

	"github.com/atmx/edge-trader/internal/model"
)

// Default values for optional process configuration.
const (
	DefaultPort          = "8080"
	DefaultCacheTTL      = 30 * time.Second
	DefaultMode          = model.ModePaper
	DefaultSeriesTicker  = "KXBTC15M"
	DefaultLeadVenue     = "binance"
	DefaultStaleAfter    = 30 * time.Second
	DefaultKalshiURL     = "https://api.elections.kalshi.com/trade-api/v2"
	DefaultKalshiTimeout = 10 * time.Second
	DefaultMaxRetries    = 3
	DefaultOrdersPerSec  = 5
)

// DefaultVenues is the reliability-weighted venue table used when the
// config file lists none.
func DefaultVenues() []VenueConfig {
	return []VenueConfig{
		{Name: "binance", Weight: 0.35, URL: "wss://stream.binance.com:9443/ws/btcusdt@trade", PriceKey: "p"},
		{Name: "bybit", Weight: 0.20, URL: "wss://stream.bybit.com/v5/public/spot",
			Subscribe: `{"op":"subscribe","args":["tickers.BTCUSDT"]}`, PriceKey: "data.lastPrice"},
		{Name: "coinbase", Weight: 0.18, URL: "wss://ws-feed.exchange.coinbase.com",
			Subscribe: `{"type":"subscribe","product_ids":["BTC-USD"],"channels":["ticker"]}`, PriceKey: "price"},
		{Name: "okx", Weight: 0.12, URL: "wss://ws.okx.com:8443/ws/v5/public",
			Subscribe: `{"op":"subscribe","args":[{"channel":"tickers","instId":"BTC-USDT"}]}`, PriceKey: "data.0.last"},
		{Name: "kraken", Weight: 0.08, URL: "wss://ws.kraken.com/v2",
			Subscribe: `{"method":"subscribe","params":{"channel":"ticker","symbol":["BTC/USD"]}}`, PriceKey: "data.0.last"},
		{Name: "deribit", Weight: 0.07, URL: "wss://www.deribit.com/ws/api/v2",
			Subscribe: `{"jsonrpc":"2.0","method":"public/subscribe","params":{"channels":["ticker.BTC-PERPETUAL.100ms"]}}`,
			PriceKey: "params.data.last_price"},
	}
}

func (c *Config) applyDefaults() {
	if c.Port == "" {
		c.Port = DefaultPort
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.Mode == "" {
		c.Mode = DefaultMode
	}
	if c.SeriesTicker == "" {
		c.SeriesTicker = DefaultSeriesTicker
	}
	if len(c.Alpha.Venues) == 0 {
		c.Alpha.Venues = DefaultVenues()
	}
	if c.Alpha.LeadVenue == "" {
		c.Alpha.LeadVenue = DefaultLeadVenue
	}
	if c.Alpha.StaleAfter == 0 {
		c.Alpha.StaleAfter = DefaultStaleAfter
	}
	if c.Kalshi.BaseURL == "" {
		c.Kalshi.BaseURL = DefaultKalshiURL
	}
	if c.Kalshi.Timeout == 0 {
		c.Kalshi.Timeout = DefaultKalshiTimeout
	}
	if c.Kalshi.MaxRetries == 0 {
		c.Kalshi.MaxRetries = DefaultMaxRetries
	}
	if c.Kalshi.OrdersPerSec == 0 {
		c.Kalshi.OrdersPerSec = DefaultOrdersPerSec
	}
}
