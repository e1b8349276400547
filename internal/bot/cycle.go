package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/atmx/edge-trader/internal/config"
	"github.com/atmx/edge-trader/internal/cycle"
	"github.com/atmx/edge-trader/internal/execution"
	"github.com/atmx/edge-trader/internal/exit"
	"github.com/atmx/edge-trader/internal/fairvalue"
	"github.com/atmx/edge-trader/internal/market"
	"github.com/atmx/edge-trader/internal/metrics"
	"github.com/atmx/edge-trader/internal/model"
)

// Cycle runs one trading cycle. A panic is recovered here, logged and
// reported as ErrCyclePanic.
func (b *Bot) Cycle(ctx context.Context) (err error) {
	b.cycleMu.Lock()
	defer b.cycleMu.Unlock()

	start := time.Now()
	var c *cycle.Context
	defer func() {
		outcome := "ok"
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrCyclePanic, r)
			outcome = "panic"
			b.logger.Error("cycle panicked", "panic", r, "stack", string(debug.Stack()))
		} else if err != nil {
			outcome = "error"
			b.logger.Error("cycle failed", "err", err)
		}
		metrics.CyclesTotal.WithLabelValues(outcome).Inc()
		metrics.CycleDuration.Observe(time.Since(start).Seconds())
		b.finish(c, err)
	}()

	c, err = b.cycle(ctx)
	return err
}

func (b *Bot) cycle(ctx context.Context) (*cycle.Context, error) {
	now := b.opts.Now()
	cfg := b.deps.Config.Snapshot()
	x, tracker, mode := b.executor()
	l := x.Ledger()

	for m, ex := range b.deps.Executors {
		if ex.Ledger().RollDay(now) {
			b.logger.Info("trading day rolled", "mode", m, "start_balance", ex.Ledger().Balance().StringFixed(2))
			b.saveAccount(ctx, ex)
		}
	}

	c := &cycle.Context{Now: now, Mode: mode, Config: cfg, Tracker: tracker}
	contract, err := b.deps.Contracts.Active(ctx, now, cfg.Float(config.MinSecondsToClose))
	switch {
	case errors.Is(err, market.ErrNoMarket):
	case err != nil:
		return c, fmt.Errorf("find contract: %w", err)
	default:
		c.Contract, c.HasContract = contract, true
		b.rollover(contract)
	}

	c.Alpha = b.deps.Alpha.Refresh(now)
	b.settleExpired(ctx, c)

	if c.HasContract {
		book, err := b.deps.Books.Orderbook(ctx, contract.MarketID)
		if err != nil {
			return c, fmt.Errorf("fetch orderbook %s: %w", contract.MarketID, err)
		}
		c.Book = book
		c.Fair = fairvalue.Compute(fairvalue.Input{
			Projected:       c.Alpha.ProjectedSettlement,
			Strike:          contract.Strike,
			SecondsLeft:     contract.SecondsToClose(now),
			VolDollarPerMin: c.Alpha.VolDollarPerMin,
			K:               cfg.Float(config.FairValueK),
		})
		l.Mark(map[string]model.Orderbook{contract.MarketID: book})
		if p, ok := l.Position(contract.MarketID); ok {
			c.Position = &p
		}
	}
	c.Account = l.Snapshot()
	c.Prepare()
	b.guards.Evaluate(c)
	b.decider.Decide(c)
	plan := b.exits.Evaluate(c)

	b.logVeto(c)
	action := b.act(ctx, c, x, plan)
	b.setAction(action)

	c.Account = l.Snapshot()
	if pos, ok := l.Position(contract.MarketID); ok && c.HasContract {
		c.Position = &pos
	} else {
		c.Position = nil
	}
	b.recordDecision(ctx, c)
	b.saveAccount(ctx, x)
	if c.Alpha.Ready {
		b.lastAlpha = c.Alpha
	}
	return c, nil
}

// rollover tracks contract transitions. Re-entry state and the
// settlement projection belong to one contract and start over with the
// next; price history carries across.
func (b *Bot) rollover(c model.Contract) {
	b.seen[c.MarketID] = c
	if c.MarketID == b.current {
		return
	}
	if b.current != "" {
		b.logger.Info("contract transition", "from", b.current, "to", c.MarketID)
		for _, t := range b.trackers {
			t.Reset()
		}
		b.deps.Alpha.Reset()
	}
	b.current = c.MarketID
}

// act executes at most one order: an exit when a trigger fired,
// otherwise the entry decision. It returns a one-line summary.
func (b *Bot) act(ctx context.Context, c *cycle.Context, x *execution.Executor, plan *exit.Plan) string {
	switch {
	case !c.HasContract:
		return "no open market"
	case !c.Config.Bool(config.TradingEnabled):
		return fmt.Sprintf("trading disabled, dry run (%s)", c.Decision.Action)
	}

	if plan != nil {
		rec, err := x.Exit(ctx, c, plan)
		if err != nil {
			return fmt.Sprintf("%s exit failed: %v", plan.Trigger, err)
		}
		return fmt.Sprintf("%s: sold %d %s @ %dc", plan.Trigger, rec.Quantity, rec.Side, rec.PriceCents)
	}
	if c.Position != nil && c.InHoldWindow() {
		return fmt.Sprintf("holding to expiry (%.0fs left)", c.SecondsLeft)
	}
	if c.Decision.Action == model.ActionHold {
		return "HOLD: " + c.Decision.Reasoning
	}

	rec, err := x.Enter(ctx, c)
	switch {
	case err != nil:
		return fmt.Sprintf("%s failed: %v", c.Decision.Action, err)
	case rec == nil:
		return fmt.Sprintf("%s skipped, no room", c.Decision.Action)
	}
	return fmt.Sprintf("%s: bought %d @ %dc", c.Decision.Action, rec.Quantity, rec.PriceCents)
}

// logVeto logs guard vetoes of entries that had the edge to trade.
func (b *Bot) logVeto(c *cycle.Context) {
	blocked := c.BlockedBy()
	for _, name := range blocked {
		metrics.GuardBlocks.WithLabelValues(name).Inc()
	}
	if len(blocked) == 0 || !c.HasContract {
		return
	}
	if c.EdgeFor(c.Candidate) >= c.Config.Int(config.MinEdgeCents) {
		b.logger.Info("entry vetoed",
			"market", c.Contract.MarketID, "side", c.Candidate,
			"edge", c.EdgeFor(c.Candidate), "guards", strings.Join(blocked, ","))
	}
}

func (b *Bot) recordDecision(ctx context.Context, c *cycle.Context) {
	metrics.DecisionsTotal.WithLabelValues(string(c.Decision.Action)).Inc()
	if !c.HasContract || b.deps.Store == nil {
		return
	}
	d := &model.DecisionLog{
		MarketID:   c.Contract.MarketID,
		Mode:       c.Mode,
		Action:     c.Decision.Action,
		Confidence: c.Decision.Confidence,
		Reasoning:  c.Decision.Reasoning,
		FairCents:  c.Fair.YesCents,
		BestBid:    c.Book.BestBid,
		BestAsk:    c.Book.BestAsk,
		Timestamp:  c.Now,
	}
	if err := b.deps.Store.RecordDecision(ctx, d); err != nil {
		metrics.PersistenceFailures.WithLabelValues("record_decision").Inc()
		b.logger.Error("failed to record decision", "market", d.MarketID, "err", err)
	}
}

func (b *Bot) saveAccount(ctx context.Context, x *execution.Executor) {
	acct := x.Ledger().Snapshot()
	mode := string(acct.Mode)
	metrics.Balance.WithLabelValues(mode).Set(acct.Balance.InexactFloat64())
	metrics.Exposure.WithLabelValues(mode).Set(acct.TotalExposure.InexactFloat64())
	if b.deps.Store == nil {
		return
	}
	if err := b.deps.Store.SaveAccount(ctx, &acct); err != nil {
		metrics.PersistenceFailures.WithLabelValues("save_account").Inc()
		b.logger.Error("failed to save account", "mode", mode, "err", err)
	}
}
