package alpha

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/atmx/edge-trader/internal/model"
)

type stubFeed struct {
	name   string
	tick   model.PriceTick
	onTick func(model.PriceTick)
}

func (f *stubFeed) Name() string                    { return f.name }
func (f *stubFeed) Connect(ctx context.Context) error { <-ctx.Done(); return nil }
func (f *stubFeed) Latest() model.PriceTick         { return f.tick }

func (f *stubFeed) OnTick(fn func(model.PriceTick)) { f.onTick = fn }

func (f *stubFeed) set(price float64, at time.Time, connected bool) {
	f.tick = model.PriceTick{Exchange: f.name, Price: price, Timestamp: at, Connected: connected}
}

// push delivers a live tick the way a streaming feed does.
func (f *stubFeed) push(price float64, at time.Time) {
	f.set(price, at, true)
	if f.onTick != nil {
		f.onTick(f.tick)
	}
}

// startTicking wires the engine to the stubs without the wall-clock sampler.
func startTicking(t *testing.T, weights map[string]float64) (map[string]*stubFeed, *Engine) {
	t.Helper()
	stubs, feeds := newStubs()
	e := New(feeds, weights, Options{LeadVenue: "binance", StaleAfter: time.Hour, SampleEvery: -1})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	e.Start(ctx)
	return stubs, e
}

var testWeights = map[string]float64{
	"binance": 0.35, "bybit": 0.20, "coinbase": 0.18,
	"okx": 0.12, "kraken": 0.08, "deribit": 0.07,
}

func newStubs() (map[string]*stubFeed, []Feed) {
	names := []string{"binance", "bybit", "coinbase", "okx", "kraken", "deribit"}
	m := make(map[string]*stubFeed, len(names))
	feeds := make([]Feed, 0, len(names))
	for _, n := range names {
		f := &stubFeed{name: n}
		m[n] = f
		feeds = append(feeds, f)
	}
	return m, feeds
}

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestRefresh_RenormalizesOverConnected(t *testing.T) {
	stubs, feeds := newStubs()
	e := New(feeds, testWeights, Options{LeadVenue: "binance"})
	now := time.Now()

	stubs["binance"].set(65000, now, true)
	stubs["bybit"].set(65100, now, true)
	stubs["coinbase"].set(64900, now, true)
	stubs["okx"].set(65050, now, true)
	stubs["kraken"].set(70000, now, false)
	stubs["deribit"].set(1, now, false)

	snap := e.Refresh(now)

	if snap.ExchangesConnected != 4 || snap.ExchangesTotal != 6 {
		t.Fatalf("expected 4/6 connected, got %d/%d", snap.ExchangesConnected, snap.ExchangesTotal)
	}
	want := (65000*0.35 + 65100*0.20 + 64900*0.18 + 65050*0.12) / (0.35 + 0.20 + 0.18 + 0.12)
	if !almost(snap.WeightedPrice, want) {
		t.Errorf("expected weighted price %.4f, got %.4f", want, snap.WeightedPrice)
	}
	if !snap.Ready {
		t.Error("expected snapshot to be ready")
	}
}

func TestRefresh_NoVenuesConnected(t *testing.T) {
	stubs, feeds := newStubs()
	e := New(feeds, testWeights, Options{LeadVenue: "binance"})
	now := time.Now()
	for _, s := range stubs {
		s.set(65000, now, false)
	}

	snap := e.Refresh(now)
	if snap.Ready {
		t.Error("expected not ready with zero venues")
	}
	if math.IsNaN(snap.WeightedPrice) || snap.WeightedPrice != 0 {
		t.Errorf("expected zero weighted price, got %v", snap.WeightedPrice)
	}
}

func TestRefresh_StaleTickExcluded(t *testing.T) {
	stubs, feeds := newStubs()
	e := New(feeds, testWeights, Options{LeadVenue: "binance", StaleAfter: 10 * time.Second})
	now := time.Now()
	stubs["binance"].set(60000, now.Add(-time.Minute), true)
	stubs["coinbase"].set(65000, now, true)

	snap := e.Refresh(now)
	if snap.ExchangesConnected != 1 {
		t.Errorf("expected 1 connected, got %d", snap.ExchangesConnected)
	}
	if !almost(snap.WeightedPrice, 65000) {
		t.Errorf("expected 65000, got %v", snap.WeightedPrice)
	}
	if snap.LeadLagSpread != 0 {
		t.Errorf("expected no lead-lag with stale lead venue, got %v", snap.LeadLagSpread)
	}
}

func TestRefresh_PathLengthVolatility(t *testing.T) {
	stubs, feeds := newStubs()
	e := New(feeds, map[string]float64{"coinbase": 1}, Options{LeadVenue: "binance", StaleAfter: time.Hour})
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	// Oscillate 10 dollars every 30s: range is 10, path is 10 per step.
	var snap model.GlobalSnapshot
	for i := 0; i <= 11; i++ {
		at := start.Add(time.Duration(i) * 30 * time.Second)
		price := 65000.0
		if i%2 == 1 {
			price = 65010
		}
		stubs["coinbase"].set(price, at, true)
		snap = e.Refresh(at)
	}

	// Window holds t=30s..330s: 11 points, 10 moves of $10 over 5 minutes.
	if !almost(snap.VolDollarPerMin, 20) {
		t.Errorf("expected path vol 20 $/min, got %v", snap.VolDollarPerMin)
	}
}

func TestRefresh_VolNeedsEnoughPoints(t *testing.T) {
	stubs, feeds := newStubs()
	e := New(feeds, testWeights, Options{LeadVenue: "binance", StaleAfter: time.Hour})
	start := time.Now()
	for i := 0; i < 5; i++ {
		at := start.Add(time.Duration(i) * time.Minute)
		stubs["coinbase"].set(65000+float64(i*100), at, true)
		if snap := e.Refresh(at); snap.VolDollarPerMin != 0 {
			t.Fatalf("expected zero vol with %d points, got %v", i+1, snap.VolDollarPerMin)
		}
	}
}

func TestRefresh_ProjectionAndVelocity(t *testing.T) {
	stubs, feeds := newStubs()
	e := New(feeds, map[string]float64{"coinbase": 1}, Options{LeadVenue: "binance", StaleAfter: time.Hour})
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	var snap model.GlobalSnapshot
	for i := 0; i <= 12; i++ {
		at := start.Add(time.Duration(i) * 10 * time.Second)
		stubs["coinbase"].set(65000+float64(i*10), at, true)
		snap = e.Refresh(at)
	}

	// Last 60s covers i=6..12: prices 65060..65120.
	if !almost(snap.ProjectedSettlement, 65090) {
		t.Errorf("expected projection 65090, got %v", snap.ProjectedSettlement)
	}
	// $60 over 60s.
	if !almost(snap.Velocity1m, 1) || snap.Direction1m != 1 {
		t.Errorf("expected velocity 1 $/s up, got %v dir %d", snap.Velocity1m, snap.Direction1m)
	}
}

func TestRefresh_LeadLagAndMomentum(t *testing.T) {
	stubs, feeds := newStubs()
	e := New(feeds, map[string]float64{"binance": 0.5, "coinbase": 0.5}, Options{LeadVenue: "binance", StaleAfter: time.Hour})
	now := time.Now()

	stubs["binance"].set(65100, now, true)
	stubs["coinbase"].set(64900, now, true)
	snap := e.Refresh(now)
	if !almost(snap.LeadLagSpread, 100) {
		t.Errorf("expected lead-lag 100, got %v", snap.LeadLagSpread)
	}
	if snap.Momentum != 0 {
		t.Errorf("expected zero momentum on first sample, got %v", snap.Momentum)
	}

	later := now.Add(10 * time.Second)
	stubs["binance"].set(65300, later, true)
	stubs["coinbase"].set(64900, later, true)
	snap = e.Refresh(later)
	// spread 200, mean of {100, 200} = 150.
	if !almost(snap.Momentum, 50) {
		t.Errorf("expected momentum 50, got %v", snap.Momentum)
	}
}

func TestRefresh_TickVolatilityAtSlowPoll(t *testing.T) {
	stubs, e := startTicking(t, map[string]float64{"coinbase": 1})
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	// Ticks every 5s alternate by $50; the cycle only refreshes once a minute.
	var snap model.GlobalSnapshot
	for secs := 0; secs <= 600; secs += 5 {
		at := start.Add(time.Duration(secs) * time.Second)
		price := 65000.0
		if (secs/5)%2 == 1 {
			price = 65050
		}
		stubs["coinbase"].push(price, at)
		if secs%60 == 0 {
			snap = e.Refresh(at)
		}
	}

	// t=300s..600s: 61 ticks, 60 moves of $50 over 5 minutes.
	if !almost(snap.VolDollarPerMin, 600) {
		t.Errorf("expected tick path vol 600 $/min, got %v", snap.VolDollarPerMin)
	}
}

func TestReset_KeepsHistory(t *testing.T) {
	stubs, e := startTicking(t, map[string]float64{"coinbase": 1})
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	var at time.Time
	for secs := 0; secs <= 300; secs += 10 {
		at = start.Add(time.Duration(secs) * time.Second)
		stubs["coinbase"].push(65000+float64(secs%20), at)
	}
	before := e.Refresh(at)
	if before.VolDollarPerMin == 0 {
		t.Fatal("expected volatility before rollover")
	}

	e.Reset()
	next := at.Add(5 * time.Second)
	stubs["coinbase"].push(65500, next)
	snap := e.Refresh(next)

	if snap.VolDollarPerMin == 0 {
		t.Error("rollover should not drop volatility history")
	}
	if !almost(snap.ProjectedSettlement, 65500) {
		t.Errorf("projection should only use the new window, got %v", snap.ProjectedSettlement)
	}
}
