// Package ledger keeps the account balance, open positions and P&L for
// one mode. Paper and live share this accounting path; only the broker
// that produces fills differs.
//
// A Ledger is not safe for concurrent use. The bot mutates it from the
// cycle goroutine and hands copies to readers via Snapshot.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/edge-trader/internal/model"
)

var (
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrNoPosition          = errors.New("ledger: no open position")
	ErrSideConflict        = errors.New("ledger: position held on the other side")
	ErrInvalidFill         = errors.New("ledger: invalid fill")
)

// Entry describes the context a position was opened in.
type Entry struct {
	Edge       int
	Confidence float64
	SecsLeft   float64
	Regime     string
	Vol        float64
	FairCents  int
}

// Ledger is the account state for one mode.
type Ledger struct {
	mode         model.Mode
	balance      decimal.Decimal
	startBalance decimal.Decimal
	dayPnL       decimal.Decimal
	realized     decimal.Decimal
	unrealized   decimal.Decimal
	exposure     decimal.Decimal
	dayStart     time.Time
	positions    map[string]*model.Position
}

// New returns an empty ledger holding balance.
func New(mode model.Mode, balance decimal.Decimal, now time.Time) *Ledger {
	return &Ledger{
		mode:         mode,
		balance:      balance,
		startBalance: balance,
		dayStart:     dayOf(now),
		positions:    make(map[string]*model.Position),
	}
}

// Restore rebuilds a ledger from a persisted AccountState.
func Restore(acct model.AccountState) *Ledger {
	l := &Ledger{
		mode:         acct.Mode,
		balance:      acct.Balance,
		startBalance: acct.StartBalance,
		dayPnL:       acct.DayPnL,
		realized:     acct.RealizedPnL,
		unrealized:   acct.UnrealizedPnL,
		exposure:     acct.TotalExposure,
		dayStart:     acct.DayStart,
		positions:    make(map[string]*model.Position, len(acct.Positions)),
	}
	for _, p := range acct.Positions {
		p := p
		if p.Quantity > 0 {
			l.positions[p.MarketID] = &p
		}
	}
	return l
}

func (l *Ledger) Mode() model.Mode { return l.mode }
func (l *Ledger) Balance() decimal.Decimal { return l.balance }

// Position returns a copy of the open position in marketID.
func (l *Ledger) Position(marketID string) (model.Position, bool) {
	p, ok := l.positions[marketID]
	if !ok {
		return model.Position{}, false
	}
	return *p, true
}

// Positions returns copies of every open position sorted by market.
func (l *Ledger) Positions() []model.Position {
	out := make([]model.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out
}

// Buy debits costCents for qty contracts of side and opens or adds to the
// position in marketID.
func (l *Ledger) Buy(marketID string, side model.Side, qty, costCents int, at time.Time, e Entry) error {
	if qty <= 0 || costCents < 0 {
		return fmt.Errorf("%w: buy %d for %dc", ErrInvalidFill, qty, costCents)
	}
	cost := model.Cents(costCents)
	if cost.GreaterThan(l.balance) {
		return fmt.Errorf("%w: need $%s, have $%s", ErrInsufficientBalance, cost.StringFixed(2), l.balance.StringFixed(2))
	}
	p, ok := l.positions[marketID]
	if ok && p.Side != side {
		return fmt.Errorf("%w: %s holds %s", ErrSideConflict, marketID, p.Side)
	}

	l.balance = l.balance.Sub(cost)
	if !ok {
		p = &model.Position{
			MarketID:        marketID,
			Side:            side,
			OpenedAt:        at,
			EntryPriceCents: costCents / qty,
			EntryEdge:       e.Edge,
			EntryConfidence: e.Confidence,
			EntrySecsLeft:   e.SecsLeft,
			EntryRegime:     e.Regime,
			EntryVol:        e.Vol,
			EntryFairCents:  e.FairCents,
		}
		l.positions[marketID] = p
	}
	p.Quantity += qty
	p.CostBasisCents += costCents
	p.EntryPriceCents = (p.CostBasisCents + p.Quantity/2) / p.Quantity
	l.exposure = l.exposure.Add(cost)
	return nil
}

// Close is the outcome of a sell or settlement.
type Close struct {
	Position  model.Position // state before the close
	Quantity  int
	PnL       decimal.Decimal
	Remaining int
}

// Sell credits proceedsCents for qty contracts of marketID and realizes
// P&L against the average cost.
func (l *Ledger) Sell(marketID string, qty, proceedsCents int) (Close, error) {
	p, ok := l.positions[marketID]
	if !ok {
		return Close{}, fmt.Errorf("%w: %s", ErrNoPosition, marketID)
	}
	if qty <= 0 || qty > p.Quantity || proceedsCents < 0 {
		return Close{}, fmt.Errorf("%w: sell %d of %d", ErrInvalidFill, qty, p.Quantity)
	}
	before := *p

	// Cost removed is proportional; the last contract takes the remainder.
	removed := p.CostBasisCents
	if qty < p.Quantity {
		removed = (p.CostBasisCents*qty + p.Quantity/2) / p.Quantity
	}
	pnl := model.Cents(proceedsCents - removed)

	l.balance = l.balance.Add(model.Cents(proceedsCents))
	l.realized = l.realized.Add(pnl)
	l.dayPnL = l.dayPnL.Add(pnl)
	l.exposure = l.exposure.Sub(model.Cents(removed))
	if l.exposure.IsNegative() {
		l.exposure = decimal.Zero
	}

	p.Quantity -= qty
	p.CostBasisCents -= removed
	if p.Quantity == 0 {
		delete(l.positions, marketID)
	}
	return Close{Position: before, Quantity: qty, PnL: pnl, Remaining: p.Quantity}, nil
}

// Settle closes the whole position in marketID. The winning side is
// paid 100c per contract, the losing side nothing.
func (l *Ledger) Settle(marketID string, yesWins bool) (Close, error) {
	p, ok := l.positions[marketID]
	if !ok {
		return Close{}, fmt.Errorf("%w: %s", ErrNoPosition, marketID)
	}
	payout := 0
	if (p.Side == model.SideYes) == yesWins {
		payout = 100
	}
	return l.Sell(marketID, p.Quantity, payout*p.Quantity)
}

// Mark revalues the positions whose books are given. YES marks at the
// bid and NO at 100 - ask. Positions without a book keep cost basis.
func (l *Ledger) Mark(books map[string]model.Orderbook) {
	unrealized := decimal.Zero
	exposure := decimal.Zero
	for id, p := range l.positions {
		value := p.CostBasisCents
		if b, ok := books[id]; ok {
			value = MarkValue(b, *p)
		}
		exposure = exposure.Add(model.Cents(value))
		unrealized = unrealized.Add(model.Cents(value - p.CostBasisCents))
	}
	l.unrealized = unrealized
	l.exposure = exposure
}

// MarkValue is the liquidation value of p in cents against book.
func MarkValue(book model.Orderbook, p model.Position) int {
	price := book.BidFor(p.Side)
	if price < 0 {
		price = 0
	}
	return price * p.Quantity
}

// RollDay resets daily P&L when now falls on a later UTC day. The new
// day's start balance is the equity at the roll.
func (l *Ledger) RollDay(now time.Time) bool {
	day := dayOf(now)
	if !day.After(l.dayStart) {
		return false
	}
	l.dayStart = day
	l.dayPnL = decimal.Zero
	l.startBalance = l.balance.Add(l.exposure)
	return true
}

// Reset discards positions and P&L and restores balance.
func (l *Ledger) Reset(balance decimal.Decimal, now time.Time) {
	l.balance = balance
	l.startBalance = balance
	l.dayPnL = decimal.Zero
	l.realized = decimal.Zero
	l.unrealized = decimal.Zero
	l.exposure = decimal.Zero
	l.dayStart = dayOf(now)
	l.positions = make(map[string]*model.Position)
}

// Snapshot returns a deep copy of the account state.
func (l *Ledger) Snapshot() model.AccountState {
	return model.AccountState{
		Mode:          l.mode,
		Balance:       l.balance,
		StartBalance:  l.startBalance,
		DayPnL:        l.dayPnL,
		RealizedPnL:   l.realized,
		UnrealizedPnL: l.unrealized,
		TotalExposure: l.exposure,
		DayStart:      l.dayStart,
		Positions:     l.Positions(),
	}
}

func dayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
