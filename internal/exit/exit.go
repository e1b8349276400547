// Package exit evaluates the exit predicates for an open position. All
// triggers are evaluated and reported every cycle; the first triggered
// one in order is the single exit taken.
package exit

import (
	"fmt"
	"time"

	"github.com/atmx/edge-trader/internal/config"
	"github.com/atmx/edge-trader/internal/cycle"
	"github.com/atmx/edge-trader/internal/model"
)

// Trigger identifies one exit rule. The iota order is the precedence.
type Trigger int

const (
	StopLoss Trigger = iota
	HitAndRun
	ProfitTake
	FreeRoll
	EdgeExit
)

var triggerNames = [...]string{"stop_loss", "hit_and_run", "profit_take", "free_roll", "edge_exit"}

func (t Trigger) String() string {
	if t < 0 || int(t) >= len(triggerNames) {
		return fmt.Sprintf("exit(%d)", int(t))
	}
	return triggerNames[t]
}

// Action is the trade action recorded for an exit taken by t.
func (t Trigger) Action() model.TradeAction {
	switch t {
	case StopLoss:
		return model.TradeSL
	case HitAndRun, ProfitTake:
		return model.TradeTP
	case EdgeExit:
		return model.TradeEdge
	default:
		return model.TradeSell
	}
}

// Order lists every trigger by precedence.
var Order = []Trigger{StopLoss, HitAndRun, ProfitTake, FreeRoll, EdgeExit}

// Plan is the exit to execute this cycle.
type Plan struct {
	Trigger    Trigger
	MarketID   string
	Side       model.Side
	Quantity   int
	PriceCents int
	Terminal   bool // closes the whole position
	Detail     string
}

// Engine evaluates exit triggers.
type Engine struct {
	triggers []Trigger
}

// New returns an engine with the given triggers, or all of them.
func New(triggers ...Trigger) *Engine {
	if len(triggers) == 0 {
		triggers = Order
	}
	return &Engine{triggers: triggers}
}

// Evaluate reports every trigger against the open position on c and
// returns the plan for the first one that fired. It returns nil when
// flat, when nothing fired, or inside the hold-to-expiry window.
func (e *Engine) Evaluate(c *cycle.Context) *Plan {
	p := c.Position
	if p == nil || p.Quantity <= 0 {
		c.Exits = nil
		return nil
	}
	m := measure(c, p)

	results := make([]model.ExitResult, 0, len(e.triggers))
	var first *Trigger
	for _, t := range e.triggers {
		r := t.evaluate(c, p, m)
		r.Name = t.String()
		results = append(results, r)
		if r.Triggered && first == nil {
			tt := t
			first = &tt
		}
	}
	c.Exits = results

	if first == nil || c.InHoldWindow() {
		return nil
	}
	plan := &Plan{
		Trigger:    *first,
		MarketID:   p.MarketID,
		Side:       p.Side,
		Quantity:   p.Quantity,
		PriceCents: m.sellPrice,
		Terminal:   true,
	}
	if *first == FreeRoll {
		plan.Quantity = p.Quantity / 2
		plan.Terminal = false
	}
	for _, r := range results {
		if r.Name == plan.Trigger.String() {
			plan.Detail = r.Detail
		}
	}
	return plan
}

type measures struct {
	sellPrice       int
	lossPerContract float64
	gainPct         float64
	remainingEdge   int
	held            time.Duration
}

func measure(c *cycle.Context, p *model.Position) measures {
	sell := c.Book.BidFor(p.Side)
	if sell < 1 {
		sell = 1
	} else if sell > 99 {
		sell = 99
	}
	qty := float64(p.Quantity)
	mtm := float64(sell) * qty

	m := measures{
		sellPrice:       sell,
		lossPerContract: (float64(p.CostBasisCents) - mtm) / qty,
		held:            c.Now.Sub(p.OpenedAt),
	}
	if avg := p.AvgCostCents(); avg > 0 {
		m.gainPct = (float64(sell) - avg) / avg * 100
	}
	if p.Side == model.SideYes {
		m.remainingEdge = c.Fair.YesCents - c.Book.BestBid
	} else {
		m.remainingEdge = c.Book.BestAsk - c.Fair.YesCents
	}
	return m
}

func (t Trigger) evaluate(c *cycle.Context, p *model.Position, m measures) model.ExitResult {
	cfg := c.Config
	switch t {
	case StopLoss:
		sl := cfg.Float(config.StopLossCents)
		return model.ExitResult{
			Triggered: sl > 0 && m.lossPerContract >= sl,
			Value:     m.lossPerContract,
			Threshold: sl,
			Detail:    fmt.Sprintf("%.1fc loss per contract", m.lossPerContract),
		}

	case HitAndRun:
		pct := cfg.Float(config.HitRunPct)
		return model.ExitResult{
			Triggered: pct > 0 && m.gainPct >= pct,
			Value:     m.gainPct,
			Threshold: pct,
			Detail:    fmt.Sprintf("%.0f%% gain", m.gainPct),
		}

	case ProfitTake:
		pct := cfg.Float(config.ProfitTakePct)
		minSecs := cfg.Float(config.ProfitTakeMinSecs)
		return model.ExitResult{
			Triggered: m.gainPct >= pct && c.SecondsLeft > minSecs,
			Value:     m.gainPct,
			Threshold: pct,
			Detail:    fmt.Sprintf("%.0f%% gain with %.0fs left", m.gainPct, c.SecondsLeft),
		}

	case FreeRoll:
		price := cfg.Int(config.FreeRollPrice)
		done := c.Tracker != nil && c.Tracker.FreeRolled(p.MarketID)
		r := model.ExitResult{
			Triggered: m.sellPrice >= price && p.Quantity >= 2 && !done,
			Value:     float64(m.sellPrice),
			Threshold: float64(price),
			Detail:    fmt.Sprintf("marks at %dc", m.sellPrice),
		}
		if done {
			r.Detail = "already free-rolled"
		}
		return r

	case EdgeExit:
		limit := cfg.Float(config.EdgeExitThresholdCents) * c.TimeFactor()
		minHold := time.Duration(cfg.Int(config.EdgeExitMinHoldSecs)) * time.Second
		return model.ExitResult{
			Triggered: cfg.Bool(config.EdgeExitEnabled) && m.held >= minHold && float64(m.remainingEdge) <= limit,
			Value:     float64(m.remainingEdge),
			Threshold: limit,
			Detail:    fmt.Sprintf("%dc edge left after %.0fs", m.remainingEdge, m.held.Seconds()),
		}
	}
	return model.ExitResult{Detail: "unknown trigger"}
}
