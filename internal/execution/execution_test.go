package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/edge-trader/internal/config"
	"github.com/atmx/edge-trader/internal/cycle"
	"github.com/atmx/edge-trader/internal/exit"
	"github.com/atmx/edge-trader/internal/ledger"
	"github.com/atmx/edge-trader/internal/model"
	"github.com/atmx/edge-trader/internal/store"
)

func d(s string) decimal.Decimal {
	v, _ := decimal.NewFromString(s)
	return v
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const market = "KXBTC15M-26MAR011215-15"

// fakeVenue fills every order at its price unless told otherwise.
type fakeVenue struct {
	mu        sync.Mutex
	orders    []Order
	cancelled []string
	script    []func(o Order) (Placement, error)
}

func (v *fakeVenue) PlaceOrder(_ context.Context, o Order) (Placement, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.orders = append(v.orders, o)
	if i := len(v.orders) - 1; i < len(v.script) {
		return v.script[i](o)
	}
	return Placement{OrderID: "ord", Filled: o.Quantity, AvgPriceCents: o.PriceCents}, nil
}

func (v *fakeVenue) CancelOrder(_ context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cancelled = append(v.cancelled, id)
	return nil
}

func fastLive(v Venue, retries int) *LiveBroker {
	return NewLiveBroker(v, LiveConfig{
		MaxRetries:   retries,
		BaseDelay:    time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		MaxWait:      2 * time.Second,
		OrdersPerSec: 1000,
	}, nil)
}

func TestPaperBuy_DepthFractionCap(t *testing.T) {
	b := NewPaperBroker()
	fill, err := b.Submit(context.Background(), Order{
		MarketID:       market,
		Side:           model.SideYes,
		Action:         Buy,
		Type:           Market,
		Quantity:       150,
		Book:           model.Orderbook{BestBid: 45, BestAsk: 48, YesDepth: 100},
		AvailableCents: -1,
		DepthFraction:  0.3,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if fill.Quantity != 30 {
		t.Errorf("expected 30 contracts, got %d", fill.Quantity)
	}
	if fill.PriceCents != 48 || fill.CostCents != 1440 {
		t.Errorf("unexpected fill %+v", fill)
	}
}

func TestPaperBuy_WalksLevels(t *testing.T) {
	b := NewPaperBroker()
	book := model.Orderbook{
		BestBid:   45,
		BestAsk:   48,
		YesLevels: []model.Level{{Price: 48, Quantity: 5}, {Price: 49, Quantity: 10}},
		YesDepth:  15,
	}
	fill, err := b.Submit(context.Background(), Order{
		Side: model.SideYes, Action: Buy, Type: Limit, Quantity: 8, PriceCents: 49,
		Book: book, AvailableCents: -1, DepthFraction: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if fill.Quantity != 8 || fill.CostCents != 5*48+3*49 {
		t.Errorf("unexpected fill %+v", fill)
	}

	// A limit below the second level stops the walk.
	fill, err = b.Submit(context.Background(), Order{
		Side: model.SideYes, Action: Buy, Type: Limit, Quantity: 8, PriceCents: 48,
		Book: book, AvailableCents: -1, DepthFraction: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if fill.Quantity != 5 {
		t.Errorf("expected 5 at the limit, got %d", fill.Quantity)
	}
}

func TestPaperBuy_Errors(t *testing.T) {
	tests := []struct {
		name string
		o    Order
		want error
	}{
		{"affordable shrinks to nothing", Order{
			Side: model.SideYes, Action: Buy, Type: Market, Quantity: 10,
			Book: model.Orderbook{BestBid: 45, BestAsk: 48, YesDepth: 100}, AvailableCents: 40, DepthFraction: 1,
		}, ErrInsufficientBalance},
		{"fraction of thin book", Order{
			Side: model.SideYes, Action: Buy, Type: Market, Quantity: 10,
			Book: model.Orderbook{BestBid: 45, BestAsk: 48, YesDepth: 1}, AvailableCents: -1, DepthFraction: 0.3,
		}, ErrNoLiquidity},
		{"limit below ask", Order{
			Side: model.SideYes, Action: Buy, Type: Limit, Quantity: 10, PriceCents: 47,
			Book: model.Orderbook{BestBid: 45, BestAsk: 48, YesDepth: 100}, AvailableCents: -1, DepthFraction: 1,
		}, ErrNoLiquidity},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPaperBroker().Submit(context.Background(), tc.o)
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestPaperBuy_ShrinksToAffordable(t *testing.T) {
	fill, err := NewPaperBroker().Submit(context.Background(), Order{
		Side: model.SideNo, Action: Buy, Type: Market, Quantity: 10,
		Book: model.Orderbook{BestBid: 45, BestAsk: 48, NoDepth: 100}, AvailableCents: 120, DepthFraction: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	// NO costs 55c; $1.20 buys two.
	if fill.Quantity != 2 || fill.PriceCents != 55 {
		t.Errorf("unexpected fill %+v", fill)
	}
}

func TestPaperSell_FillsAtBid(t *testing.T) {
	fill, err := NewPaperBroker().Submit(context.Background(), Order{
		Side: model.SideNo, Action: Sell, Type: Limit, Quantity: 7, PriceCents: 52,
		Book: model.Orderbook{BestBid: 45, BestAsk: 48},
	})
	if err != nil {
		t.Fatal(err)
	}
	if fill.Quantity != 7 || fill.PriceCents != 52 || fill.CostCents != 364 {
		t.Errorf("unexpected fill %+v", fill)
	}
}

func TestPaperSell_NoBid(t *testing.T) {
	tests := []struct {
		name string
		side model.Side
		book model.Orderbook
	}{
		{"yes without bids", model.SideYes, model.Orderbook{BestBid: 0, BestAsk: 3}},
		{"no without asks", model.SideNo, model.Orderbook{BestBid: 97, BestAsk: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPaperBroker().Submit(context.Background(), Order{
				Side: tt.side, Action: Sell, Type: Limit, Quantity: 5, PriceCents: 1, Book: tt.book,
			})
			if !errors.Is(err, ErrNoLiquidity) {
				t.Errorf("expected ErrNoLiquidity, got %v", err)
			}
		})
	}
}

func TestLiveSubmit_RetriesAndChases(t *testing.T) {
	v := &fakeVenue{script: []func(Order) (Placement, error){
		func(Order) (Placement, error) { return Placement{}, errors.New("409 conflict") },
	}}
	b := fastLive(v, 3)

	fill, err := b.Submit(context.Background(), Order{
		MarketID: market, Side: model.SideYes, Action: Buy, Type: Limit, Quantity: 10, PriceCents: 46,
		Book: model.Orderbook{BestBid: 44, BestAsk: 48},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(v.orders) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(v.orders))
	}
	if v.orders[0].PriceCents != 46 || v.orders[1].PriceCents != 47 {
		t.Errorf("expected chase 46 then 47, got %d then %d", v.orders[0].PriceCents, v.orders[1].PriceCents)
	}
	if fill.Quantity != 10 || fill.PriceCents != 47 {
		t.Errorf("unexpected fill %+v", fill)
	}
}

func TestLiveSubmit_CancelsRestingRemainder(t *testing.T) {
	v := &fakeVenue{script: []func(Order) (Placement, error){
		func(o Order) (Placement, error) { return Placement{OrderID: "rest-1", Resting: o.Quantity}, nil },
		func(o Order) (Placement, error) {
			return Placement{OrderID: "rest-2", Filled: 4, Resting: o.Quantity - 4, AvgPriceCents: o.PriceCents}, nil
		},
	}}
	b := fastLive(v, 3)

	fill, err := b.Submit(context.Background(), Order{
		MarketID: market, Side: model.SideYes, Action: Buy, Type: Limit, Quantity: 10, PriceCents: 46,
		Book: model.Orderbook{BestBid: 44, BestAsk: 48},
	})
	if err != nil {
		t.Fatal(err)
	}
	if fill.Quantity != 4 {
		t.Errorf("expected partial fill of 4, got %d", fill.Quantity)
	}
	if len(v.cancelled) != 2 || v.cancelled[0] != "rest-1" || v.cancelled[1] != "rest-2" {
		t.Errorf("expected both remainders cancelled, got %v", v.cancelled)
	}
}

func TestLiveSubmit_Exhausted(t *testing.T) {
	fail := func(Order) (Placement, error) { return Placement{}, errors.New("500 internal") }
	v := &fakeVenue{script: []func(Order) (Placement, error){fail, fail, fail}}
	b := fastLive(v, 2)

	_, err := b.Submit(context.Background(), Order{
		MarketID: market, Side: model.SideYes, Action: Buy, Type: Limit, Quantity: 1, PriceCents: 46,
		Book: model.Orderbook{BestBid: 44, BestAsk: 48},
	})
	if !errors.Is(err, ErrOrderFailed) {
		t.Fatalf("expected ErrOrderFailed, got %v", err)
	}
	if len(v.orders) != 3 {
		t.Errorf("expected 3 attempts, got %d", len(v.orders))
	}
	if v.orders[2].PriceCents != 48 {
		t.Errorf("expected final attempt to cross at 48, got %d", v.orders[2].PriceCents)
	}
}

func TestChasePrice(t *testing.T) {
	o := Order{Side: model.SideYes, Action: Buy, Type: Limit, PriceCents: 40, Book: model.Orderbook{BestBid: 38, BestAsk: 46}}
	want := []int{40, 43, 44, 46}
	for attempt, w := range want {
		if got := chasePrice(o, attempt, 3); got != w {
			t.Errorf("attempt %d: expected %d, got %d", attempt, w, got)
		}
	}
	o.Type = Market
	if got := chasePrice(o, 0, 3); got != 46 {
		t.Errorf("expected market order at the ask, got %d", got)
	}
}

// entryContext is a cycle that decided BUY_YES crossing at 48c.
func entryContext(tr *cycle.Tracker) *cycle.Context {
	c := &cycle.Context{
		Now:         now,
		Config:      config.Defaults(),
		Contract:    model.Contract{MarketID: market, Strike: 65000, CloseTime: now.Add(600 * time.Second)},
		HasContract: true,
		Book:        model.Orderbook{BestBid: 45, BestAsk: 48, YesDepth: 1000, NoDepth: 1000},
		Fair:        model.FairValue{YesCents: 63},
		Alpha:       model.GlobalSnapshot{Ready: true, VolDollarPerMin: 250},
		Account:     model.AccountState{Balance: d("100"), StartBalance: d("100")},
		Tracker:     tr,
	}
	c.Prepare()
	c.Decision = model.Decision{Action: model.ActionBuyYes, Side: model.SideYes, Confidence: 0.63, YesEdge: 15, Cross: true}
	return c
}

func TestExecutor_PaperAndLiveApplyIdenticalMutations(t *testing.T) {
	ctx := context.Background()
	paperLog, liveLog := store.NewMemoryStore(), store.NewMemoryStore()
	paper := NewExecutor(NewPaperBroker(), ledger.New(model.ModePaper, d("100"), now), paperLog, nil)
	live := NewExecutor(fastLive(&fakeVenue{}, 3), ledger.New(model.ModeLive, d("100"), now), liveLog, nil)

	for _, x := range []*Executor{paper, live} {
		tr := cycle.NewTracker()
		c := entryContext(tr)
		rec, err := x.Enter(ctx, c)
		if err != nil {
			t.Fatalf("%s Enter: %v", x.Mode(), err)
		}
		if rec == nil || rec.Quantity != 10 || rec.PriceCents != 48 {
			t.Fatalf("%s: unexpected entry %+v", x.Mode(), rec)
		}

		pos, _ := x.Ledger().Position(market)
		c.Position = &pos
		plan := &exit.Plan{Trigger: exit.ProfitTake, MarketID: market, Side: model.SideYes, Quantity: 10, PriceCents: 45, Terminal: true}
		if _, err := x.Exit(ctx, c, plan); err != nil {
			t.Fatalf("%s Exit: %v", x.Mode(), err)
		}
		if !tr.TookProfit(market) {
			t.Errorf("%s: expected take-profit recorded", x.Mode())
		}
	}

	ps, ls := paper.Ledger().Snapshot(), live.Ledger().Snapshot()
	if !ps.Balance.Equal(ls.Balance) || !ps.RealizedPnL.Equal(ls.RealizedPnL) || !ps.DayPnL.Equal(ls.DayPnL) {
		t.Errorf("ledgers diverged: paper %+v live %+v", ps, ls)
	}
	if !ps.Balance.Equal(d("99.70")) {
		t.Errorf("expected balance 99.70, got %s", ps.Balance)
	}

	for _, s := range []*store.MemoryStore{paperLog, liveLog} {
		recs, _ := s.QueryTrades(ctx, store.TradeQuery{})
		if len(recs) != 2 {
			t.Fatalf("expected 2 records, got %d", len(recs))
		}
		closing := recs[1]
		if closing.Action != model.TradeTP || closing.ExitTrigger != "profit_take" || !closing.Terminal {
			t.Errorf("unexpected closing record %+v", closing)
		}
		if closing.PnL == nil || !closing.PnL.Equal(d("-0.30")) {
			t.Errorf("expected pnl -0.30, got %v", closing.PnL)
		}
		if closing.EdgeCents != 15 || closing.EntryFairCents != 63 {
			t.Errorf("entry context lost: %+v", closing)
		}
	}
}

func TestExecutor_Settle(t *testing.T) {
	ctx := context.Background()
	log := store.NewMemoryStore()
	x := NewExecutor(NewPaperBroker(), ledger.New(model.ModePaper, d("100"), now), log, nil)
	if _, err := x.Enter(ctx, entryContext(cycle.NewTracker())); err != nil {
		t.Fatal(err)
	}

	rec, err := x.Settle(ctx, market, true, now.Add(10*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Action != model.TradeSettle || rec.PriceCents != 100 || !rec.PnL.Equal(d("5.20")) {
		t.Errorf("unexpected settlement %+v", rec)
	}
	if rec.HoldSecs != 600 {
		t.Errorf("expected 600s hold, got %v", rec.HoldSecs)
	}
	if _, err := x.Settle(ctx, market, true, now); !errors.Is(err, ledger.ErrNoPosition) {
		t.Errorf("expected ErrNoPosition on second settle, got %v", err)
	}
}

func TestExecutor_HoldDoesNothing(t *testing.T) {
	x := NewExecutor(NewPaperBroker(), ledger.New(model.ModePaper, d("100"), now), nil, nil)
	c := entryContext(cycle.NewTracker())
	c.Decision.Action = model.ActionHold
	rec, err := x.Enter(context.Background(), c)
	if rec != nil || err != nil {
		t.Errorf("expected nothing on HOLD, got %+v, %v", rec, err)
	}
}
