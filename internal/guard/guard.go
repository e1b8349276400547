// Package guard evaluates the entry predicates. Every guard is evaluated
// every cycle so the full picture can be reported; any blocked guard
// vetoes new entries but never exits.
package guard

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/edge-trader/internal/config"
	"github.com/atmx/edge-trader/internal/cycle"
	"github.com/atmx/edge-trader/internal/model"
)

// Kind identifies one guard. The iota order is the evaluation order.
type Kind int

const (
	Time Kind = iota
	Spread
	DailyLoss
	HoldExpiry
	PriceMin
	PriceMax
	Exposure
	PositionSize
	SameSide
	TPReentry
	EdgeReentry
)

var names = [...]string{
	"time", "spread", "daily_loss", "hold_expiry", "price_min", "price_max",
	"exposure", "position_size", "same_side", "tp_reentry", "edge_reentry",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(names) {
		return fmt.Sprintf("guard(%d)", int(k))
	}
	return names[k]
}

// Order lists every guard in evaluation order.
var Order = []Kind{
	Time, Spread, DailyLoss, HoldExpiry, PriceMin, PriceMax,
	Exposure, PositionSize, SameSide, TPReentry, EdgeReentry,
}

// Engine evaluates a fixed, ordered set of guards.
type Engine struct {
	kinds []Kind
}

// New returns an engine evaluating kinds, or every guard when empty.
func New(kinds ...Kind) *Engine {
	if len(kinds) == 0 {
		kinds = Order
	}
	return &Engine{kinds: kinds}
}

// Names returns the guard names in evaluation order.
func (e *Engine) Names() []string {
	out := make([]string, len(e.kinds))
	for i, k := range e.kinds {
		out[i] = k.String()
	}
	return out
}

// Evaluate runs every guard against c, stores the results on c and
// returns them.
func (e *Engine) Evaluate(c *cycle.Context) []model.GuardResult {
	out := make([]model.GuardResult, 0, len(e.kinds))
	for _, k := range e.kinds {
		r := k.Evaluate(c)
		r.Name = k.String()
		out = append(out, r)
	}
	c.Guards = out
	return out
}

// Evaluate runs a single guard.
func (k Kind) Evaluate(c *cycle.Context) model.GuardResult {
	cfg := c.Config
	switch k {
	case Time:
		limit := cfg.Float(config.MinSecondsToClose)
		if !c.HasContract {
			return model.GuardResult{Blocked: true, Threshold: limit, Detail: "no active contract"}
		}
		return model.GuardResult{
			Blocked:   c.SecondsLeft < limit,
			Value:     c.SecondsLeft,
			Threshold: limit,
			Detail:    fmt.Sprintf("%.0fs to close", c.SecondsLeft),
		}

	case Spread:
		limit := cfg.Int(config.MaxSpreadCents)
		s := c.Book.Spread()
		return model.GuardResult{
			Blocked:   !c.Book.TwoSided() || s > limit,
			Value:     float64(s),
			Threshold: float64(limit),
			Detail:    fmt.Sprintf("bid %dc ask %dc", c.Book.BestBid, c.Book.BestAsk),
		}

	case DailyLoss:
		pct := decimal.NewFromFloat(cfg.Float(config.MaxDailyLossPct))
		limit := c.Account.StartBalance.Mul(pct).Div(decimal.NewFromInt(100))
		day := c.Account.DayPnL
		return model.GuardResult{
			Blocked:   day.LessThan(limit.Neg()),
			Value:     day.InexactFloat64(),
			Threshold: limit.Neg().InexactFloat64(),
			Detail:    fmt.Sprintf("day P&L $%s, limit -$%s", day.StringFixed(2), limit.StringFixed(2)),
		}

	case HoldExpiry:
		limit := cfg.Float(config.HoldExpirySecs)
		r := model.GuardResult{
			Blocked:   c.HasContract && c.SecondsLeft < limit,
			Value:     c.SecondsLeft,
			Threshold: limit,
		}
		if c.Position != nil {
			r.Detail = fmt.Sprintf("position age %.0fs", c.Now.Sub(c.Position.OpenedAt).Seconds())
		}
		return r

	case PriceMin:
		limit := cfg.Int(config.MinContractPrice)
		p := c.Book.AskFor(c.Candidate)
		return model.GuardResult{
			Blocked:   p < limit,
			Value:     float64(p),
			Threshold: float64(limit),
			Detail:    fmt.Sprintf("%s ask %dc", c.Candidate, p),
		}

	case PriceMax:
		limit := cfg.Int(config.MaxContractPrice)
		p := c.Book.AskFor(c.Candidate)
		return model.GuardResult{
			Blocked:   p > limit,
			Value:     float64(p),
			Threshold: float64(limit),
			Detail:    fmt.Sprintf("%s ask %dc", c.Candidate, p),
		}

	case Exposure:
		pct := decimal.NewFromFloat(cfg.Float(config.MaxTotalExposurePct))
		limit := c.Account.Balance.Mul(pct).Div(decimal.NewFromInt(100))
		exp := c.Account.TotalExposure
		return model.GuardResult{
			Blocked:   exp.GreaterThanOrEqual(limit),
			Value:     exp.InexactFloat64(),
			Threshold: limit.InexactFloat64(),
			Detail:    fmt.Sprintf("exposure $%s of $%s", exp.StringFixed(2), limit.StringFixed(2)),
		}

	case PositionSize:
		limit := MaxContracts(c.Account.Balance, cfg.Float(config.MaxPositionPct), c.Book.AskFor(c.Candidate))
		held := 0
		if c.Position != nil {
			held = c.Position.Quantity
		}
		return model.GuardResult{
			Blocked:   held >= limit,
			Value:     float64(held),
			Threshold: float64(limit),
			Detail:    fmt.Sprintf("holding %d of %d contracts", held, limit),
		}

	case SameSide:
		holding := "none"
		blocked := false
		if c.Position != nil {
			holding = string(c.Position.Side)
			blocked = c.Position.Side != c.Candidate
		}
		return model.GuardResult{
			Blocked: blocked,
			Detail:  fmt.Sprintf("holding %s, candidate %s", holding, c.Candidate),
		}

	case TPReentry:
		took := c.Tracker != nil && c.HasContract && c.Tracker.TookProfit(c.Contract.MarketID)
		r := model.GuardResult{Blocked: took}
		if took {
			r.Detail = "profit already taken in this market"
		}
		return r

	case EdgeReentry:
		if c.Tracker == nil || !c.HasContract {
			return model.GuardResult{}
		}
		at, n := c.Tracker.LastEdgeExit(c.Contract.MarketID)
		if n == 0 {
			return model.GuardResult{}
		}
		cooldown := time.Duration(cfg.Int(config.EdgeExitCooldownSecs)) * time.Second
		if wait := cooldown - c.Now.Sub(at); wait > 0 {
			return model.GuardResult{
				Blocked:   true,
				Value:     wait.Seconds(),
				Threshold: cooldown.Seconds(),
				Detail:    fmt.Sprintf("cooldown %.0fs after edge exit", wait.Seconds()),
			}
		}
		need := cfg.Int(config.MinEdgeCents) + cfg.Int(config.ReentryEdgePremium)
		edge := c.EdgeFor(c.Candidate)
		return model.GuardResult{
			Blocked:   edge < need,
			Value:     float64(edge),
			Threshold: float64(need),
			Detail:    fmt.Sprintf("re-entry needs %dc edge after %d edge exit(s)", need, n),
		}
	}
	return model.GuardResult{Detail: "unknown guard"}
}

// MaxContracts is the largest position in one contract that stays within
// pct percent of balance at priceCents per contract. Never below 1.
func MaxContracts(balance decimal.Decimal, pct float64, priceCents int) int {
	if priceCents <= 0 || priceCents >= 100 {
		priceCents = 50
	}
	budget := balance.Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100))
	n := budget.Div(model.Cents(priceCents)).Floor().IntPart()
	return int(math.Max(float64(n), 1))
}
