// Package decision turns a prepared cycle into BUY_YES, BUY_NO or HOLD.
package decision

import (
	"fmt"
	"math"
	"strings"

	"github.com/atmx/edge-trader/internal/config"
	"github.com/atmx/edge-trader/internal/cycle"
	"github.com/atmx/edge-trader/internal/guard"
	"github.com/atmx/edge-trader/internal/model"
)

const (
	baseConfidence = 0.45
	maxConfidence  = 0.95

	trendBonus     = 0.10
	highTrendBonus = 0.05

	// highRegimeEdgeDiscount lowers the minimum edge when volatility is
	// high, down to minEdgeFloor.
	highRegimeEdgeDiscount = 3
	minEdgeFloor           = 3
)

// Engine decides entries. Guards are re-run when an override moves the
// trade to the other side so the veto always matches the side bought.
type Engine struct {
	guards *guard.Engine
}

// New returns a decision engine backed by guards.
func New(guards *guard.Engine) *Engine {
	if guards == nil {
		guards = guard.New()
	}
	return &Engine{guards: guards}
}

// Decide fills c.Decision and returns it. Guards must already have been
// evaluated on c.
func (e *Engine) Decide(c *cycle.Context) model.Decision {
	cfg := c.Config
	d := model.Decision{
		Action:  model.ActionHold,
		YesEdge: c.YesEdge,
		NoEdge:  c.NoEdge,
		Regime:  c.Regime,
		At:      c.Now,
	}
	var reasons []string
	hold := func(r string) model.Decision {
		reasons = append(reasons, r)
		d.Action = model.ActionHold
		d.Reasoning = strings.Join(reasons, "; ")
		c.Decision = d
		return d
	}

	switch {
	case !c.Alpha.Ready:
		return hold("no price data")
	case !c.HasContract:
		return hold("no active contract")
	case !c.Book.TwoSided():
		return hold("orderbook is one-sided")
	}

	if c.Regime == cycle.RegimeLow && cfg.Bool(config.RuleSitOutLowVol) {
		return hold(fmt.Sprintf("low volatility ($%.0f/min), sitting out", c.Alpha.VolDollarPerMin))
	}

	baseMin := cfg.Int(config.MinEdgeCents)
	minEdge := baseMin
	if c.Regime == cycle.RegimeHigh {
		minEdge = max(baseMin-highRegimeEdgeDiscount, minEdgeFloor)
	}

	side := c.Candidate
	edge := c.EdgeFor(side)
	if edge < minEdge {
		return hold(fmt.Sprintf("best edge %dc (%s) below minimum %dc", edge, side, minEdge))
	}
	reasons = append(reasons, fmt.Sprintf("%s edge %dc, fair %dc vs bid %dc ask %dc",
		side, edge, c.Fair.YesCents, c.Book.BestBid, c.Book.BestAsk))

	if o, ok := override(c); ok {
		if c.EdgeFor(o.side) >= baseMin {
			if o.side != side {
				side = o.side
				edge = c.EdgeFor(side)
				c.Candidate = side
				e.guards.Evaluate(c)
			}
			d.Override = o.name
			d.Cross = true
			reasons = append(reasons, o.reason)
		} else {
			reasons = append(reasons, fmt.Sprintf("%s override ignored, %s edge %dc", o.name, o.side, c.EdgeFor(o.side)))
		}
	}

	score := float64(edge) / 100
	dir := c.Alpha.Direction1m
	agrees := (side == model.SideYes && dir > 0) || (side == model.SideNo && dir < 0)
	if agrees {
		score += trendBonus
		reasons = append(reasons, "trend agrees")
		if c.Regime == cycle.RegimeHigh && math.Abs(c.Alpha.Velocity1m) > cfg.Float(config.TrendFollowVelocity) {
			score += highTrendBonus
			reasons = append(reasons, fmt.Sprintf("high-vol trend $%.2f/s", c.Alpha.Velocity1m))
		}
	}

	tf := c.TimeFactor()
	score *= 0.5 + 0.5*tf*tf

	if math.Abs(c.Alpha.Momentum) > cfg.Float(config.ExtremeDeltaThreshold) {
		d.Cross = true
		reasons = append(reasons, fmt.Sprintf("extreme momentum $%.0f", c.Alpha.Momentum))
	}

	d.Side = side
	d.Confidence = math.Min(math.Max(baseConfidence+score, 0), maxConfidence)

	if minConf := cfg.Float(config.RuleMinConfidence); d.Confidence < minConf {
		return hold(fmt.Sprintf("confidence %.2f below %.2f", d.Confidence, minConf))
	}
	if blocked := c.BlockedBy(); len(blocked) > 0 {
		return hold("blocked by " + strings.Join(blocked, ", "))
	}

	d.Action = model.ActionBuyYes
	if side == model.SideNo {
		d.Action = model.ActionBuyNo
	}
	d.Reasoning = strings.Join(reasons, "; ")
	c.Decision = d
	return d
}

type overrideSignal struct {
	name   string
	side   model.Side
	reason string
}

// override returns the first directional override that applies, checked
// lead-lag, then momentum, then anchor.
func override(c *cycle.Context) (overrideSignal, bool) {
	cfg := c.Config
	a := c.Alpha

	if cfg.Bool(config.LeadLagEnabled) && math.Abs(a.LeadLagSpread) > cfg.Float(config.LeadLagThreshold) {
		return overrideSignal{
			name:   "lead_lag",
			side:   sideOf(a.LeadLagSpread),
			reason: fmt.Sprintf("lead venue $%.0f from global", a.LeadLagSpread),
		}, true
	}
	if math.Abs(a.Momentum) > cfg.Float(config.DeltaThreshold) {
		return overrideSignal{
			name:   "momentum",
			side:   sideOf(a.Momentum),
			reason: fmt.Sprintf("momentum $%.0f", a.Momentum),
		}, true
	}
	if c.SecondsLeft <= cfg.Float(config.AnchorSecondsThreshold) && a.ProjectedSettlement > 0 {
		gap := a.ProjectedSettlement - c.Contract.Strike
		return overrideSignal{
			name:   "anchor",
			side:   sideOf(gap),
			reason: fmt.Sprintf("anchored $%.0f from strike with %.0fs left", gap, c.SecondsLeft),
		}, true
	}
	return overrideSignal{}, false
}

func sideOf(v float64) model.Side {
	if v >= 0 {
		return model.SideYes
	}
	return model.SideNo
}
