// Package feed provides ExchangeFeed implementations. WSFeed streams a
// venue's public ticker over WebSocket and keeps only the latest price.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atmx/edge-trader/internal/metrics"
	"github.com/atmx/edge-trader/internal/model"
)

// ErrNoPrice is returned by Extract when a message carries no price.
var ErrNoPrice = errors.New("feed: no price in message")

// Config describes one venue stream.
type Config struct {
	Name      string
	URL       string
	Subscribe string // optional message written after connect
	PriceKey  string // dotted path, numeric segments index arrays

	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
	ReadTimeout        time.Duration
}

// WSFeed is a single-writer price slot fed by one WebSocket connection.
type WSFeed struct {
	cfg    Config
	logger *slog.Logger
	dialer websocket.Dialer
	latest atomic.Pointer[model.PriceTick]
	onTick atomic.Pointer[func(model.PriceTick)]
}

// NewWSFeed creates a feed. Call Connect to start streaming.
func NewWSFeed(cfg Config, logger *slog.Logger) *WSFeed {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = time.Second
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = 60 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	f := &WSFeed{
		cfg:    cfg,
		logger: logger.With("exchange", cfg.Name),
		dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
	f.latest.Store(&model.PriceTick{Exchange: cfg.Name})
	return f
}

func (f *WSFeed) Name() string { return f.cfg.Name }

// Latest returns the most recent tick without blocking.
func (f *WSFeed) Latest() model.PriceTick { return *f.latest.Load() }

// OnTick registers fn to run on the feed goroutine after every price
// update. fn must not block.
func (f *WSFeed) OnTick(fn func(model.PriceTick)) { f.onTick.Store(&fn) }

// Connect streams until ctx is done, reconnecting with capped
// exponential backoff and jitter.
func (f *WSFeed) Connect(ctx context.Context) error {
	backoff := f.cfg.ReconnectBaseDelay
	for {
		started := time.Now()
		err := f.stream(ctx)
		f.setConnected(false)
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(started) > f.cfg.ReconnectMaxDelay {
			backoff = f.cfg.ReconnectBaseDelay
		}
		wait := backoff/2 + time.Duration(rand.Int64N(int64(backoff)))
		f.logger.Warn("feed disconnected, reconnecting", "err", err, "backoff", wait)
		metrics.FeedReconnects.WithLabelValues(f.cfg.Name).Inc()

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
		backoff *= 2
		if backoff > f.cfg.ReconnectMaxDelay {
			backoff = f.cfg.ReconnectMaxDelay
		}
	}
}

func (f *WSFeed) stream(ctx context.Context) error {
	header := http.Header{}
	header.Set("Accept", "application/json")

	conn, _, err := f.dialer.DialContext(ctx, f.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage on shutdown.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if f.cfg.Subscribe != "" {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(f.cfg.Subscribe)); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}
	f.logger.Info("feed connected")

	for {
		conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		price, err := Extract(data, f.cfg.PriceKey)
		if err != nil {
			continue // acks, heartbeats and snapshots without a price
		}
		tick := model.PriceTick{
			Exchange:  f.cfg.Name,
			Price:     price,
			Timestamp: time.Now(),
			Connected: true,
		}
		f.latest.Store(&tick)
		metrics.FeedConnected.WithLabelValues(f.cfg.Name).Set(1)
		if fn := f.onTick.Load(); fn != nil {
			(*fn)(tick)
		}
	}
}

func (f *WSFeed) setConnected(connected bool) {
	prev := f.latest.Load()
	next := *prev
	next.Connected = connected
	f.latest.Store(&next)
	if !connected {
		metrics.FeedConnected.WithLabelValues(f.cfg.Name).Set(0)
	}
}

// Extract walks a dotted path through a JSON message and returns the
// positive number found there. Strings holding numbers are accepted.
func Extract(data []byte, path string) (float64, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return 0, err
	}
	if path != "" {
		for _, seg := range strings.Split(path, ".") {
			switch node := v.(type) {
			case map[string]any:
				v = node[seg]
			case []any:
				i, err := strconv.Atoi(seg)
				if err != nil || i < 0 || i >= len(node) {
					return 0, ErrNoPrice
				}
				v = node[i]
			default:
				return 0, ErrNoPrice
			}
		}
	}

	var price float64
	switch x := v.(type) {
	case float64:
		price = x
	case string:
		p, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, ErrNoPrice
		}
		price = p
	default:
		return 0, ErrNoPrice
	}
	if price <= 0 {
		return 0, ErrNoPrice
	}
	return price, nil
}
