package bot

import (
	"context"
	"time"

	"github.com/atmx/edge-trader/internal/cycle"
	"github.com/atmx/edge-trader/internal/model"
)

// settleExpired pays out positions in every mode whose contract has
// closed. The venue result is preferred; once SettleGrace has passed
// without one, the projected settlement is compared to the strike, and a
// position with neither settles at zero.
func (b *Bot) settleExpired(ctx context.Context, c *cycle.Context) {
	now := c.Now
	for mode, x := range b.deps.Executors {
		for _, p := range x.Ledger().Positions() {
			if c.HasContract && p.MarketID == c.Contract.MarketID {
				continue
			}
			known, ok := b.seen[p.MarketID]
			if ok && now.Before(known.CloseTime) {
				continue
			}
			first, pending := b.pendingSince[p.MarketID]
			if !pending {
				first = now
				b.pendingSince[p.MarketID] = now
			}

			result, err := b.deps.Contracts.Result(ctx, p.MarketID)
			if err != nil {
				b.logger.Warn("settlement result unavailable", "market", p.MarketID, "mode", mode, "err", err)
			}
			var yesWins bool
			switch {
			case result != "":
				yesWins = result == string(model.SideYes)
			case now.Sub(first) < b.opts.SettleGrace:
				continue
			default:
				yesWins = b.projectedOutcome(p, known, c.Alpha)
			}

			if _, err := x.Settle(ctx, p.MarketID, yesWins, now); err != nil {
				b.logger.Error("settlement failed", "market", p.MarketID, "mode", mode, "err", err)
				continue
			}
			b.trackers[mode].Forget(p.MarketID)
			b.saveAccount(ctx, x)
		}
	}
	for id := range b.pendingSince {
		if !b.held(id) {
			delete(b.pendingSince, id)
		}
	}
	for id, k := range b.seen {
		if id != b.current && now.Sub(k.CloseTime) > time.Hour && !b.held(id) {
			delete(b.seen, id)
		}
	}
}

// projectedOutcome decides a settlement the venue has not reported.
func (b *Bot) projectedOutcome(p model.Position, known model.Contract, alpha model.GlobalSnapshot) bool {
	projected := alpha.ProjectedSettlement
	if projected <= 0 {
		projected = b.lastAlpha.ProjectedSettlement
	}
	if projected <= 0 || known.Strike <= 0 {
		b.logger.Warn("settlement result unknown, no projection or strike; settling at zero",
			"market", p.MarketID, "side", p.Side)
		return p.Side == model.SideNo
	}
	yesWins := projected >= known.Strike
	b.logger.Info("settling from projection",
		"market", p.MarketID, "projected", projected, "strike", known.Strike, "yes_wins", yesWins)
	return yesWins
}

func (b *Bot) held(marketID string) bool {
	for _, x := range b.deps.Executors {
		if _, ok := x.Ledger().Position(marketID); ok {
			return true
		}
	}
	return false
}
