// Package cycle holds the state threaded through one trading cycle. A
// Context is built by the bot at the start of a cycle, filled in by the
// guard, decision and exit engines, and discarded when the cycle ends.
package cycle

import (
	"math"
	"time"

	"github.com/atmx/edge-trader/internal/config"
	"github.com/atmx/edge-trader/internal/model"
)

// WindowSeconds is the length of one contract window.
const WindowSeconds = 900.0

// Volatility regimes.
const (
	RegimeLow    = "low"
	RegimeMedium = "medium"
	RegimeHigh   = "high"
)

// Context is the explicit, mutable state of one cycle.
type Context struct {
	Now    time.Time
	Mode   model.Mode
	Config *config.Snapshot

	Contract    model.Contract
	HasContract bool
	Book        model.Orderbook
	Alpha       model.GlobalSnapshot
	Fair        model.FairValue

	Account  model.AccountState
	Position *model.Position // open position in Contract, nil if flat
	Tracker  *Tracker

	// Derived by Prepare.
	SecondsLeft float64
	Regime      string
	YesEdge     int
	NoEdge      int
	Candidate   model.Side

	// Filled in as the cycle runs.
	Guards   []model.GuardResult
	Exits    []model.ExitResult
	Decision model.Decision
}

// Prepare derives time left, regime and edges from the inputs already
// set on c. The candidate side is the one with the larger edge.
func (c *Context) Prepare() {
	if c.HasContract {
		c.SecondsLeft = c.Contract.SecondsToClose(c.Now)
	}
	c.Regime = Regime(c.Alpha.VolDollarPerMin, c.Config)
	c.YesEdge = c.Fair.YesCents - c.Book.BestAsk
	c.NoEdge = (100 - c.Fair.YesCents) - (100 - c.Book.BestBid)
	c.Candidate = model.SideYes
	if c.NoEdge > c.YesEdge {
		c.Candidate = model.SideNo
	}
}

// EdgeFor returns the edge in cents of buying side now.
func (c *Context) EdgeFor(side model.Side) int {
	if side == model.SideNo {
		return c.NoEdge
	}
	return c.YesEdge
}

// TimeFactor is the fraction of the window remaining, in [0, 1].
func (c *Context) TimeFactor() float64 {
	return math.Min(math.Max(c.SecondsLeft/WindowSeconds, 0), 1)
}

// InHoldWindow reports whether the contract is close enough to
// settlement that positions ride to expiry.
func (c *Context) InHoldWindow() bool {
	return c.HasContract && c.SecondsLeft < c.Config.Float(config.HoldExpirySecs)
}

// BlockedBy returns the names of the guards that vetoed entry.
func (c *Context) BlockedBy() []string {
	var names []string
	for _, g := range c.Guards {
		if g.Blocked {
			names = append(names, g.Name)
		}
	}
	return names
}

// Regime classifies volatility in $/min against the configured thresholds.
func Regime(vol float64, cfg *config.Snapshot) string {
	switch {
	case vol > cfg.Float(config.VolHighThreshold):
		return RegimeHigh
	case vol > cfg.Float(config.VolLowThreshold):
		return RegimeMedium
	default:
		return RegimeLow
	}
}
