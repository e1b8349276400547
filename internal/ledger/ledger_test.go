package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/edge-trader/internal/model"
)

func d(s string) decimal.Decimal {
	v, _ := decimal.NewFromString(s)
	return v
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const market = "KXBTC15M-26MAR011215-15"

func TestBuySell_RoundTrip(t *testing.T) {
	l := New(model.ModePaper, d("100"), now)

	if err := l.Buy(market, model.SideYes, 10, 480, now, Entry{Edge: 15, FairCents: 63}); err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if !l.Balance().Equal(d("95.20")) {
		t.Errorf("expected balance 95.20, got %s", l.Balance())
	}
	p, ok := l.Position(market)
	if !ok || p.Quantity != 10 || p.CostBasisCents != 480 || p.EntryPriceCents != 48 {
		t.Fatalf("unexpected position %+v", p)
	}
	if p.EntryEdge != 15 || p.EntryFairCents != 63 {
		t.Errorf("entry context not recorded: %+v", p)
	}

	c, err := l.Sell(market, 10, 600)
	if err != nil {
		t.Fatalf("Sell: %v", err)
	}
	if !c.PnL.Equal(d("1.20")) {
		t.Errorf("expected pnl 1.20, got %s", c.PnL)
	}
	if c.Remaining != 0 || c.Position.Quantity != 10 {
		t.Errorf("unexpected close %+v", c)
	}
	if _, ok := l.Position(market); ok {
		t.Error("expected position closed")
	}

	s := l.Snapshot()
	if !s.Balance.Equal(d("101.20")) || !s.RealizedPnL.Equal(d("1.20")) || !s.DayPnL.Equal(d("1.20")) {
		t.Errorf("unexpected account %+v", s)
	}
	if !s.TotalExposure.IsZero() {
		t.Errorf("expected zero exposure, got %s", s.TotalExposure)
	}
}

func TestBuy_InsufficientBalance(t *testing.T) {
	l := New(model.ModePaper, d("1"), now)
	err := l.Buy(market, model.SideYes, 3, 150, now, Entry{})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if !l.Balance().Equal(d("1")) {
		t.Errorf("balance changed on rejected buy: %s", l.Balance())
	}
}

func TestBuy_SideConflict(t *testing.T) {
	l := New(model.ModePaper, d("100"), now)
	if err := l.Buy(market, model.SideYes, 1, 50, now, Entry{}); err != nil {
		t.Fatal(err)
	}
	if err := l.Buy(market, model.SideNo, 1, 50, now, Entry{}); !errors.Is(err, ErrSideConflict) {
		t.Fatalf("expected ErrSideConflict, got %v", err)
	}
}

func TestSell_PartialKeepsAverageCost(t *testing.T) {
	l := New(model.ModePaper, d("100"), now)
	l.Buy(market, model.SideYes, 10, 500, now, Entry{})

	c, err := l.Sell(market, 5, 460)
	if err != nil {
		t.Fatal(err)
	}
	if !c.PnL.Equal(d("2.10")) {
		t.Errorf("expected pnl 2.10, got %s", c.PnL)
	}
	p, _ := l.Position(market)
	if p.Quantity != 5 || p.CostBasisCents != 250 {
		t.Errorf("unexpected remainder %+v", p)
	}

	if _, err := l.Sell(market, 6, 0); !errors.Is(err, ErrInvalidFill) {
		t.Errorf("expected ErrInvalidFill selling more than held, got %v", err)
	}
	if _, err := l.Sell("other", 1, 0); !errors.Is(err, ErrNoPosition) {
		t.Errorf("expected ErrNoPosition, got %v", err)
	}
}

func TestSettle(t *testing.T) {
	tests := []struct {
		name    string
		side    model.Side
		yesWins bool
		want    string
	}{
		{"yes wins", model.SideYes, true, "5.20"},
		{"yes loses", model.SideYes, false, "-4.80"},
		{"no wins", model.SideNo, false, "5.20"},
		{"no loses", model.SideNo, true, "-4.80"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := New(model.ModePaper, d("100"), now)
			l.Buy(market, tc.side, 10, 480, now, Entry{})
			c, err := l.Settle(market, tc.yesWins)
			if err != nil {
				t.Fatal(err)
			}
			if !c.PnL.Equal(d(tc.want)) {
				t.Errorf("expected pnl %s, got %s", tc.want, c.PnL)
			}
			if len(l.Positions()) != 0 {
				t.Error("expected no positions after settle")
			}
		})
	}
}

func TestMark(t *testing.T) {
	l := New(model.ModePaper, d("100"), now)
	l.Buy(market, model.SideYes, 10, 480, now, Entry{})
	l.Buy("KXBTC15M-26MAR011230-30", model.SideNo, 10, 400, now, Entry{})

	l.Mark(map[string]model.Orderbook{
		market:                    {BestBid: 52, BestAsk: 55},
		"KXBTC15M-26MAR011230-30": {BestBid: 60, BestAsk: 62},
	})
	s := l.Snapshot()
	// YES marks at 52c, NO at 100-62 = 38c.
	if !s.TotalExposure.Equal(d("9.00")) {
		t.Errorf("expected exposure 9.00, got %s", s.TotalExposure)
	}
	if !s.UnrealizedPnL.Equal(d("0.20")) {
		t.Errorf("expected unrealized 0.20, got %s", s.UnrealizedPnL)
	}
}

func TestRollDay(t *testing.T) {
	l := New(model.ModePaper, d("100"), now)
	l.Buy(market, model.SideYes, 10, 500, now, Entry{})
	l.Sell(market, 10, 300)

	if l.RollDay(now.Add(time.Hour)) {
		t.Error("expected no roll within the same UTC day")
	}
	if !l.RollDay(now.Add(12 * time.Hour)) {
		t.Fatal("expected roll past UTC midnight")
	}
	s := l.Snapshot()
	if !s.DayPnL.IsZero() {
		t.Errorf("expected day pnl reset, got %s", s.DayPnL)
	}
	if !s.StartBalance.Equal(d("98")) {
		t.Errorf("expected start balance 98, got %s", s.StartBalance)
	}
	if !s.RealizedPnL.Equal(d("-2")) {
		t.Errorf("expected realized kept, got %s", s.RealizedPnL)
	}
}

func TestSnapshot_IsDeepCopy(t *testing.T) {
	l := New(model.ModePaper, d("100"), now)
	l.Buy(market, model.SideYes, 10, 480, now, Entry{})

	s := l.Snapshot()
	s.Positions[0].Quantity = 999
	if p, _ := l.Position(market); p.Quantity != 10 {
		t.Errorf("snapshot aliased ledger state: %d", p.Quantity)
	}
}

func TestResetAndRestore(t *testing.T) {
	l := New(model.ModePaper, d("100"), now)
	l.Buy(market, model.SideYes, 10, 480, now, Entry{})

	r := Restore(l.Snapshot())
	if p, ok := r.Position(market); !ok || p.Quantity != 10 {
		t.Fatalf("expected restored position, got %+v", p)
	}
	if !r.Balance().Equal(d("95.20")) {
		t.Errorf("expected restored balance, got %s", r.Balance())
	}

	r.Reset(d("250"), now)
	s := r.Snapshot()
	if !s.Balance.Equal(d("250")) || len(s.Positions) != 0 || !s.RealizedPnL.IsZero() {
		t.Errorf("unexpected state after reset %+v", s)
	}
}
