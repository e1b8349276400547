// Package alpha aggregates venue price feeds into the per-cycle
// GlobalSnapshot: a reliability-weighted price, a short rolling
// settlement projection, path-length volatility, 1-minute velocity and
// the lead-lag signal.
//
// Volatility is cumulative absolute tick-to-tick movement divided by the
// window length in minutes. Downstream thresholds (VOL_*_THRESHOLD, the
// fair value scale) are calibrated in those units.
package alpha

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/atmx/edge-trader/internal/model"
)

// Feed is a normalized live-price source for one venue. Connect blocks,
// reconnecting as needed, until ctx is done. Latest never blocks.
type Feed interface {
	Name() string
	Connect(ctx context.Context) error
	Latest() model.PriceTick
}

// TickSource is implemented by feeds that push every tick as it arrives.
type TickSource interface {
	OnTick(fn func(model.PriceTick))
}

const (
	historyWindow    = 900 * time.Second
	projectionWindow = 60 * time.Second
	volWindow        = 5 * time.Minute
	velocityWindow   = time.Minute
	momentumWindow   = 60 * time.Second

	minVolPoints  = 10
	minVolMinutes = 0.5
)

// Options tunes the engine.
type Options struct {
	LeadVenue  string
	StaleAfter time.Duration // ticks older than this count as disconnected
	// SampleEvery records the weighted price on a fixed cadence in
	// addition to pushed ticks. Negative disables the sampler.
	SampleEvery time.Duration
	Logger      *slog.Logger
}

type point struct {
	at    time.Time
	price float64
}

// Engine records the weighted price on every feed tick, independent of
// the cycle cadence, and summarizes that history in Refresh.
type Engine struct {
	feeds   []Feed
	weights map[string]float64
	opts    Options

	mu            sync.Mutex
	history       []point // weighted price, oldest first
	spreads       []point // lead-lag spread, oldest first
	contractStart time.Time
	resetPending  bool
}

// New creates an engine over feeds. Venues missing from weights get
// weight zero and never contribute.
func New(feeds []Feed, weights map[string]float64, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 30 * time.Second
	}
	if opts.SampleEvery == 0 {
		opts.SampleEvery = time.Second
	}
	w := make(map[string]float64, len(weights))
	for k, v := range weights {
		w[k] = v
	}
	return &Engine{feeds: feeds, weights: w, opts: opts}
}

// Start hooks tick-pushing feeds into the history, launches every feed's
// Connect in its own goroutine and starts the sampler.
func (e *Engine) Start(ctx context.Context) {
	for _, f := range e.feeds {
		if ts, ok := f.(TickSource); ok {
			ts.OnTick(func(t model.PriceTick) { e.Sample(t.Timestamp) })
		}
	}
	for _, f := range e.feeds {
		go func(f Feed) {
			if err := f.Connect(ctx); err != nil && ctx.Err() == nil {
				e.opts.Logger.Error("feed stopped", "exchange", f.Name(), "err", err)
			}
		}(f)
	}
	if e.opts.SampleEvery > 0 {
		go e.sampleLoop(ctx)
	}
}

func (e *Engine) sampleLoop(ctx context.Context) {
	ticker := time.NewTicker(e.opts.SampleEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.Sample(now)
		}
	}
}

// Reset starts a new contract window. Price history is kept; the
// settlement projection only averages prices from the next Refresh on.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.resetPending = true
	e.mu.Unlock()
}

// Sample reads every feed and records the weighted price at now.
func (e *Engine) Sample(now time.Time) {
	w := e.weigh(now)
	if !w.ok {
		return
	}
	e.mu.Lock()
	e.record(now, w)
	e.mu.Unlock()
}

// Refresh reads every feed once and recomputes the snapshot at now.
func (e *Engine) Refresh(now time.Time) model.GlobalSnapshot {
	w := e.weigh(now)
	snap := model.GlobalSnapshot{
		ExchangesTotal:     len(e.feeds),
		ExchangesConnected: w.connected,
		ComputedAt:         now,
		Venues:             w.venues,
	}
	if !w.ok {
		// Nothing usable; keep history so a brief outage does not reset vol.
		return snap
	}
	snap.Ready = true
	snap.WeightedPrice = w.price

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.resetPending {
		e.contractStart, e.resetPending = now, false
	}
	e.record(now, w)

	if w.lead > 0 {
		snap.LeadLagSpread = w.lead - w.price
		snap.Momentum = snap.LeadLagSpread - mean(e.spreads)
	}

	from := now.Add(-projectionWindow)
	if e.contractStart.After(from) {
		from = e.contractStart
	}
	snap.ProjectedSettlement = mean(since(e.history, from))
	snap.VolDollarPerMin = pathVolatility(since(e.history, now.Add(-volWindow)))
	snap.Velocity1m, snap.Direction1m = velocity(since(e.history, now.Add(-velocityWindow)))
	return snap
}

type weighing struct {
	ok        bool
	price     float64
	lead      float64
	connected int
	venues    []model.PriceTick
}

func (e *Engine) weigh(now time.Time) weighing {
	w := weighing{venues: make([]model.PriceTick, 0, len(e.feeds))}
	var sum, totalWeight float64
	for _, f := range e.feeds {
		tick := f.Latest()
		if tick.Exchange == "" {
			tick.Exchange = f.Name()
		}
		live := tick.Connected && tick.Price > 0 && now.Sub(tick.Timestamp) <= e.opts.StaleAfter
		tick.Connected = live
		w.venues = append(w.venues, tick)
		if !live {
			continue
		}
		w.connected++
		weight := e.weights[tick.Exchange]
		if weight <= 0 {
			continue
		}
		sum += tick.Price * weight
		totalWeight += weight
		if tick.Exchange == e.opts.LeadVenue {
			w.lead = tick.Price
		}
	}
	sort.Slice(w.venues, func(i, j int) bool { return w.venues[i].Exchange < w.venues[j].Exchange })
	if totalWeight > 0 {
		w.ok = true
		w.price = sum / totalWeight
	}
	return w
}

// record appends one observation. Callers hold e.mu. Feeds push from
// their own goroutines, so a late arrival is pinned to the newest time.
func (e *Engine) record(now time.Time, w weighing) {
	if n := len(e.history); n > 0 && now.Before(e.history[n-1].at) {
		now = e.history[n-1].at
	}
	e.history = appendTrim(e.history, point{now, w.price}, now.Add(-historyWindow))
	if w.lead > 0 {
		e.spreads = appendTrim(e.spreads, point{now, w.lead - w.price}, now.Add(-momentumWindow))
	}
}

// pathVolatility is Σ|Δp| over the window divided by its span in minutes.
func pathVolatility(pts []point) float64 {
	if len(pts) < minVolPoints {
		return 0
	}
	minutes := pts[len(pts)-1].at.Sub(pts[0].at).Minutes()
	if minutes <= minVolMinutes {
		return 0
	}
	var path float64
	for i := 1; i < len(pts); i++ {
		path += math.Abs(pts[i].price - pts[i-1].price)
	}
	return path / minutes
}

// velocity returns $/s between the oldest and newest points and its sign.
func velocity(pts []point) (float64, int) {
	if len(pts) < 2 {
		return 0, 0
	}
	first, last := pts[0], pts[len(pts)-1]
	secs := last.at.Sub(first.at).Seconds()
	if secs <= 0 {
		return 0, 0
	}
	change := last.price - first.price
	dir := 0
	switch {
	case change > 0:
		dir = 1
	case change < 0:
		dir = -1
	}
	return change / secs, dir
}

func appendTrim(pts []point, p point, cutoff time.Time) []point {
	pts = append(pts, p)
	i := 0
	for i < len(pts) && pts[i].at.Before(cutoff) {
		i++
	}
	if i == 0 {
		return pts
	}
	return append(pts[:0], pts[i:]...)
}

func since(pts []point, cutoff time.Time) []point {
	i := sort.Search(len(pts), func(i int) bool { return !pts[i].at.Before(cutoff) })
	return pts[i:]
}

func mean(pts []point) float64 {
	if len(pts) == 0 {
		return 0
	}
	var s float64
	for _, p := range pts {
		s += p.price
	}
	return s / float64(len(pts))
}
