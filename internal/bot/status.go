package bot

import (
	"slices"
	"time"

	"github.com/atmx/edge-trader/internal/config"
	"github.com/atmx/edge-trader/internal/cycle"
	"github.com/atmx/edge-trader/internal/model"
)

// staleAfterCycles is how many poll intervals may pass without a
// successful cycle before the status is stale.
const staleAfterCycles = 3

// Status is the reporting snapshot of the bot. Readers always get a copy.
type Status struct {
	Running        bool       `json:"running"`
	Mode           model.Mode `json:"mode"`
	TradingEnabled bool       `json:"trading_enabled"`
	Cycles         int64      `json:"cycles"`
	LastCycleAt    time.Time  `json:"last_cycle_at"`
	LastError      string     `json:"last_error,omitempty"`
	Stale          bool       `json:"stale"`
	LastAction     string     `json:"last_action"`

	Contract    *model.Contract      `json:"contract,omitempty"`
	SecondsLeft float64              `json:"seconds_left"`
	TimeFactor  float64              `json:"time_factor"`
	Book        model.Orderbook      `json:"orderbook"`
	Alpha       model.GlobalSnapshot `json:"alpha"`
	Fair        model.FairValue      `json:"fair_value"`
	YesEdge     int                  `json:"yes_edge"`
	NoEdge      int                  `json:"no_edge"`
	Regime      string               `json:"regime"`
	Guards      []model.GuardResult  `json:"guards"`
	Exits       []model.ExitResult   `json:"exits"`
	Decision    model.Decision       `json:"decision"`
	Position    *model.Position      `json:"position,omitempty"`
	Account     model.AccountState   `json:"account"`
}

// Status returns a copy of the latest status.
func (b *Bot) Status() Status {
	interval := b.interval()
	now := b.opts.Now()

	b.mu.RLock()
	defer b.mu.RUnlock()
	s := b.status
	s.Running = b.running
	s.Mode = b.mode
	s.Stale = s.LastError != "" ||
		(b.running && !b.lastOK.IsZero() && now.Sub(b.lastOK) > staleAfterCycles*interval)
	s.Guards = append([]model.GuardResult(nil), s.Guards...)
	s.Exits = append([]model.ExitResult(nil), s.Exits...)
	s.Account.Positions = append([]model.Position(nil), s.Account.Positions...)
	return s
}

// finish folds the outcome of a cycle into the status and publishes it.
// A failed cycle keeps the market view of the last successful one and
// only refreshes the account, which settlement may already have changed.
// The caller holds cycleMu.
func (b *Bot) finish(c *cycle.Context, err error) {
	var acct model.AccountState
	if err != nil {
		x, _, _ := b.executor()
		acct = x.Ledger().Snapshot()
	}

	b.mu.Lock()
	s := &b.status
	s.Cycles++
	s.LastCycleAt = b.opts.Now()
	switch {
	case err != nil:
		s.LastError = err.Error()
		s.Account = acct
	case c != nil:
		s.LastError = ""
		b.lastOK = s.LastCycleAt
		s.TradingEnabled = c.Config.Bool(config.TradingEnabled)
		s.Contract = nil
		if c.HasContract {
			ct := c.Contract
			s.Contract = &ct
		}
		s.SecondsLeft = c.SecondsLeft
		s.TimeFactor = c.TimeFactor()
		s.Book = c.Book
		s.Alpha = c.Alpha
		s.Fair = c.Fair
		s.YesEdge, s.NoEdge = c.YesEdge, c.NoEdge
		s.Regime = c.Regime
		s.Guards = c.Guards
		s.Exits = c.Exits
		s.Decision = c.Decision
		s.Position = c.Position
		s.Account = c.Account
	default:
		s.LastError = ""
		b.lastOK = s.LastCycleAt
	}
	b.mu.Unlock()
	b.publish()
}

func (b *Bot) setAction(action string) {
	b.mu.Lock()
	b.status.LastAction = action
	b.mu.Unlock()
}

// refreshAccount republishes the account of the active mode after a
// control command changed it. The caller holds cycleMu.
func (b *Bot) refreshAccount() {
	x, _, _ := b.executor()
	acct := x.Ledger().Snapshot()
	b.mu.Lock()
	b.status.Account = acct
	if b.status.Position != nil {
		if p, ok := x.Ledger().Position(b.status.Position.MarketID); ok {
			b.status.Position = &p
		} else {
			b.status.Position = nil
		}
	}
	b.mu.Unlock()
	b.publish()
}

func (b *Bot) publish() {
	s := b.Status()
	b.mu.RLock()
	listeners := slices.Clone(b.listeners)
	b.mu.RUnlock()
	for _, fn := range listeners {
		fn(s)
	}
}
