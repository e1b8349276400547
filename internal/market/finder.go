package market

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/atmx/edge-trader/internal/model"
)

// Finder resolves the active contract of one series.
type Finder struct {
	lister Lister
	series string
	logger *slog.Logger
}

// NewFinder returns a finder for series backed by lister.
func NewFinder(lister Lister, series string, logger *slog.Logger) *Finder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finder{lister: lister, series: series, logger: logger}
}

// Series returns the series ticker the finder watches.
func (f *Finder) Series() string { return f.series }

// Active returns the contract to trade at now. ErrNoMarket means no
// window is open.
func (f *Finder) Active(ctx context.Context, now time.Time, minSecs float64) (model.Contract, error) {
	markets, err := f.lister.OpenMarkets(ctx, f.series)
	if err != nil {
		return model.Contract{}, fmt.Errorf("list %s markets: %w", f.series, err)
	}
	m, ok := Select(markets, now, minSecs)
	if !ok {
		return model.Contract{}, ErrNoMarket
	}
	if len(markets) > 1 && m.Ticker != soonest(markets, now) {
		f.logger.Info("skipping expiring contract", "market", soonest(markets, now), "next", m.Ticker)
	}
	c, err := Contract(m)
	if err != nil {
		return model.Contract{}, fmt.Errorf("contract %s: %w", m.Ticker, err)
	}
	return c, nil
}

// Result returns "yes" or "no" once the venue has determined the
// outcome of ticker, or "" while it is pending.
func (f *Finder) Result(ctx context.Context, ticker string) (string, error) {
	m, err := f.lister.GetMarket(ctx, ticker)
	if err != nil {
		return "", fmt.Errorf("get market %s: %w", ticker, err)
	}
	switch r := strings.ToLower(m.Result); r {
	case string(model.SideYes), string(model.SideNo):
		return r, nil
	default:
		return "", nil
	}
}

func soonest(markets []Market, now time.Time) string {
	var best Market
	for _, m := range markets {
		if !m.CloseTime.After(now) {
			continue
		}
		if best.Ticker == "" || m.CloseTime.Before(best.CloseTime) {
			best = m
		}
	}
	return best.Ticker
}
