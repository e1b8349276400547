package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/atmx/edge-trader/internal/ledger"
	"github.com/atmx/edge-trader/internal/model"
)

// Placement is the venue's answer to one order.
type Placement struct {
	OrderID       string
	Filled        int
	AvgPriceCents int
	Resting       int
}

// Venue is the exchange surface the live broker needs.
type Venue interface {
	PlaceOrder(ctx context.Context, o Order) (Placement, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// LiveConfig tunes retries and throttling.
type LiveConfig struct {
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	MaxWait      time.Duration // cap on total time spent in Submit
	OrdersPerSec float64
}

func (c *LiveConfig) applyDefaults() {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 250 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 2 * time.Second
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 8 * time.Second
	}
	if c.OrdersPerSec <= 0 {
		c.OrdersPerSec = 5
	}
}

// errUnfilled marks an attempt that left nothing filled.
var errUnfilled = errors.New("order rested unfilled")

// LiveBroker submits real orders. Unfilled attempts are cancelled and
// repriced toward the far side: midpoint, then two thirds of the way,
// then crossing.
type LiveBroker struct {
	venue   Venue
	cfg     LiveConfig
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewLiveBroker wraps venue with retries, a rate limit and a breaker
// that opens after five consecutive venue failures.
func NewLiveBroker(venue Venue, cfg LiveConfig, logger *slog.Logger) *LiveBroker {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	st := gobreaker.Settings{
		Name:    "venue-orders",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("order breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return &LiveBroker{
		venue:   venue,
		cfg:     cfg,
		breaker: gobreaker.NewCircuitBreaker(st),
		limiter: rate.NewLimiter(rate.Limit(cfg.OrdersPerSec), 1),
		logger:  logger,
	}
}

func (b *LiveBroker) Mode() model.Mode { return model.ModeLive }

func (b *LiveBroker) Mark(book model.Orderbook, pos model.Position) int {
	return ledger.MarkValue(book, pos)
}

func (b *LiveBroker) Cancel(ctx context.Context, orderID string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.venue.CancelOrder(ctx, orderID)
	})
	return err
}

// Submit places o, retrying rejections and unfilled attempts with
// exponential backoff and jitter until MaxRetries or MaxWait runs out.
func (b *LiveBroker) Submit(ctx context.Context, o Order) (Fill, error) {
	if o.Quantity <= 0 {
		return Fill{}, fmt.Errorf("%w: quantity %d", ErrOrderFailed, o.Quantity)
	}
	ctx, cancel := context.WithTimeout(ctx, b.cfg.MaxWait)
	defer cancel()

	backoff := b.cfg.BaseDelay
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= b.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := backoff/2 + time.Duration(rand.Int64N(int64(backoff)))
			select {
			case <-ctx.Done():
				return Fill{}, fmt.Errorf("%w after %d attempts: %v", ErrOrderFailed, attempts, lastErr)
			case <-time.After(wait):
			}
			backoff = min(backoff*2, b.cfg.MaxDelay)
		}

		req := o
		req.PriceCents = chasePrice(o, attempt, b.cfg.MaxRetries)
		if err := b.limiter.Wait(ctx); err != nil {
			return Fill{}, fmt.Errorf("%w after %d attempts: %v", ErrOrderFailed, attempts, err)
		}
		attempts++

		res, err := b.breaker.Execute(func() (interface{}, error) {
			return b.venue.PlaceOrder(ctx, req)
		})
		if err != nil {
			lastErr = err
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) || ctx.Err() != nil {
				break
			}
			b.logger.Warn("order attempt failed", "market", o.MarketID, "attempt", attempt+1, "price", req.PriceCents, "err", err)
			continue
		}

		pl := res.(Placement)
		if pl.Resting > 0 && pl.OrderID != "" {
			// Never leave a remainder working across cycles.
			if err := b.Cancel(context.WithoutCancel(ctx), pl.OrderID); err != nil {
				b.logger.Warn("cancel resting remainder failed", "order", pl.OrderID, "err", err)
			}
		}
		if pl.Filled > 0 {
			price := pl.AvgPriceCents
			if price <= 0 {
				price = req.PriceCents
			}
			return Fill{
				OrderID:    pl.OrderID,
				Quantity:   pl.Filled,
				PriceCents: price,
				CostCents:  price * pl.Filled,
			}, nil
		}
		lastErr = errUnfilled
		b.logger.Info("order unfilled, repricing", "market", o.MarketID, "attempt", attempt+1, "price", req.PriceCents)
	}
	return Fill{}, fmt.Errorf("%w after %d attempts: %v", ErrOrderFailed, attempts, lastErr)
}

// chasePrice moves a limit price from its start toward the far side of
// the book as attempts run out. Market orders are priced at the far side.
func chasePrice(o Order, attempt, maxRetries int) int {
	var start, far int
	if o.Action == Buy {
		start, far = o.PriceCents, o.Book.AskFor(o.Side)
	} else {
		start, far = o.PriceCents, o.Book.BidFor(o.Side)
	}
	if o.Type == Market && far > 0 && far < 100 {
		return far
	}
	if attempt == 0 || far <= 0 || far >= 100 {
		return clamp(start)
	}

	var p int
	switch {
	case attempt >= maxRetries:
		p = far
	case attempt == 1:
		p = start + (far-start)/2
	default:
		p = start + (far-start)*2/3
	}
	return clamp(p)
}

func clamp(p int) int {
	return max(min(p, 99), 1)
}
