package execution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/atmx/edge-trader/internal/config"
	"github.com/atmx/edge-trader/internal/cycle"
	"github.com/atmx/edge-trader/internal/decision"
	"github.com/atmx/edge-trader/internal/exit"
	"github.com/atmx/edge-trader/internal/ledger"
	"github.com/atmx/edge-trader/internal/metrics"
	"github.com/atmx/edge-trader/internal/model"
)

// TradeLog receives every trade record.
type TradeLog interface {
	AppendTrade(ctx context.Context, rec *model.TradeRecord) error
}

// Executor applies broker fills to a ledger and records them. It is the
// only writer of the ledger it owns.
type Executor struct {
	broker Broker
	ledger *ledger.Ledger
	trades TradeLog
	logger *slog.Logger
}

// NewExecutor wires a broker to the ledger of the same mode.
func NewExecutor(broker Broker, l *ledger.Ledger, trades TradeLog, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		broker: broker,
		ledger: l,
		trades: trades,
		logger: logger.With("mode", broker.Mode()),
	}
}

func (x *Executor) Mode() model.Mode       { return x.broker.Mode() }
func (x *Executor) Ledger() *ledger.Ledger { return x.ledger }
func (x *Executor) Broker() Broker         { return x.broker }

// Enter executes the BUY decision on c. It returns nil without error
// when the decision is HOLD or there is no room to add contracts.
func (x *Executor) Enter(ctx context.Context, c *cycle.Context) (*model.TradeRecord, error) {
	d := c.Decision
	if d.Action == model.ActionHold {
		return nil, nil
	}
	mode := x.broker.Mode()
	price := decision.EntryPrice(c.Book, d.Side, d.Cross, mode)
	qty := decision.Size(c, price)
	if qty == 0 {
		x.logger.Info("entry skipped, no room", "market", c.Contract.MarketID, "side", d.Side)
		return nil, nil
	}

	o := Order{
		ClientID:       uuid.NewString(),
		MarketID:       c.Contract.MarketID,
		Side:           d.Side,
		Action:         Buy,
		Type:           Limit,
		Quantity:       qty,
		PriceCents:     price,
		Book:           c.Book,
		AvailableCents: int(x.ledger.Balance().Shift(2).IntPart()),
		DepthFraction:  c.Config.Float(config.PaperFillFraction),
	}
	if d.Cross {
		o.Type = Market
	}
	fill, err := x.submit(ctx, o)
	if err != nil {
		return nil, err
	}

	err = x.ledger.Buy(o.MarketID, d.Side, fill.Quantity, fill.CostCents, c.Now, ledger.Entry{
		Edge:       d.Edge(),
		Confidence: d.Confidence,
		SecsLeft:   c.SecondsLeft,
		Regime:     c.Regime,
		Vol:        c.Alpha.VolDollarPerMin,
		FairCents:  c.Fair.YesCents,
	})
	if err != nil {
		x.logger.Error("filled order not applied to ledger", "order", fill.OrderID, "err", err)
		return nil, fmt.Errorf("apply fill %s: %w", fill.OrderID, err)
	}

	rec := &model.TradeRecord{
		ID:              uuid.NewString(),
		Mode:            mode,
		MarketID:        o.MarketID,
		Action:          model.TradeBuy,
		Side:            d.Side,
		Quantity:        fill.Quantity,
		PriceCents:      fill.PriceCents,
		Timestamp:       c.Now,
		EntryPriceCents: fill.PriceCents,
		EdgeCents:       d.Edge(),
		Confidence:      d.Confidence,
		SecsLeft:        c.SecondsLeft,
		VolRegime:       c.Regime,
		VolDollarPerMin: c.Alpha.VolDollarPerMin,
		EntryFairCents:  c.Fair.YesCents,
	}
	x.record(ctx, rec)
	x.logger.Info("entered position",
		"market", o.MarketID, "side", d.Side, "qty", fill.Quantity, "price", fill.PriceCents,
		"requested", qty, "edge", d.Edge(), "confidence", d.Confidence)
	return rec, nil
}

// Exit executes plan and updates the re-entry tracker on c.
func (x *Executor) Exit(ctx context.Context, c *cycle.Context, plan *exit.Plan) (*model.TradeRecord, error) {
	if plan == nil || plan.Quantity <= 0 {
		return nil, nil
	}
	o := Order{
		ClientID:   uuid.NewString(),
		MarketID:   plan.MarketID,
		Side:       plan.Side,
		Action:     Sell,
		Type:       Limit,
		Quantity:   plan.Quantity,
		PriceCents: plan.PriceCents,
		Book:       c.Book,
	}
	fill, err := x.submit(ctx, o)
	if err != nil {
		return nil, err
	}
	cl, err := x.ledger.Sell(plan.MarketID, fill.Quantity, fill.CostCents)
	if err != nil {
		x.logger.Error("exit fill not applied to ledger", "order", fill.OrderID, "err", err)
		return nil, fmt.Errorf("apply fill %s: %w", fill.OrderID, err)
	}

	if c.Tracker != nil {
		switch plan.Trigger {
		case exit.HitAndRun, exit.ProfitTake:
			c.Tracker.MarkTookProfit(plan.MarketID)
		case exit.FreeRoll:
			c.Tracker.MarkFreeRolled(plan.MarketID)
		case exit.EdgeExit:
			c.Tracker.MarkEdgeExit(plan.MarketID, c.Now)
		}
	}

	rec := closingRecord(x.broker.Mode(), cl, plan.Trigger.Action(), plan.Trigger.String(), fill.PriceCents, c.Now)
	x.record(ctx, rec)
	metrics.ExitsTotal.WithLabelValues(plan.Trigger.String()).Inc()
	x.logger.Info("exited position",
		"market", plan.MarketID, "trigger", plan.Trigger.String(), "qty", fill.Quantity,
		"price", fill.PriceCents, "pnl", cl.PnL.StringFixed(2), "remaining", cl.Remaining)
	return rec, nil
}

// Settle pays out the position in marketID at expiry.
func (x *Executor) Settle(ctx context.Context, marketID string, yesWins bool, now time.Time) (*model.TradeRecord, error) {
	cl, err := x.ledger.Settle(marketID, yesWins)
	if err != nil {
		return nil, err
	}
	price := 0
	if (cl.Position.Side == model.SideYes) == yesWins {
		price = 100
	}
	rec := closingRecord(x.broker.Mode(), cl, model.TradeSettle, "settlement", price, now)
	x.record(ctx, rec)
	x.logger.Info("settled position",
		"market", marketID, "side", cl.Position.Side, "yes_wins", yesWins,
		"qty", cl.Quantity, "pnl", cl.PnL.StringFixed(2))
	return rec, nil
}

func (x *Executor) submit(ctx context.Context, o Order) (Fill, error) {
	mode := string(x.broker.Mode())
	start := time.Now()
	fill, err := x.broker.Submit(ctx, o)
	metrics.OrderLatency.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.OrdersTotal.WithLabelValues(mode, "failed").Inc()
		x.logger.Warn("order failed", "market", o.MarketID, "side", o.Side, "action", o.Action,
			"qty", o.Quantity, "price", o.PriceCents, "err", err)
		return Fill{}, err
	}
	metrics.OrdersTotal.WithLabelValues(mode, "filled").Inc()
	metrics.ContractsFilled.WithLabelValues(string(o.Side)).Add(float64(fill.Quantity))
	return fill, nil
}

// record appends rec. Persistence failures are logged, never fatal.
func (x *Executor) record(ctx context.Context, rec *model.TradeRecord) {
	if x.trades == nil {
		return
	}
	if err := x.trades.AppendTrade(ctx, rec); err != nil {
		metrics.PersistenceFailures.WithLabelValues("append_trade").Inc()
		x.logger.Error("failed to record trade", "trade", rec.ID, "err", err)
	}
}

func closingRecord(mode model.Mode, cl ledger.Close, action model.TradeAction, trigger string, price int, now time.Time) *model.TradeRecord {
	p := cl.Position
	pnl := cl.PnL
	return &model.TradeRecord{
		ID:              uuid.NewString(),
		Mode:            mode,
		MarketID:        p.MarketID,
		Action:          action,
		Side:            p.Side,
		Quantity:        cl.Quantity,
		PriceCents:      price,
		PnL:             &pnl,
		ExitTrigger:     trigger,
		Terminal:        cl.Remaining == 0,
		Timestamp:       now,
		EntryPriceCents: p.EntryPriceCents,
		EdgeCents:       p.EntryEdge,
		Confidence:      p.EntryConfidence,
		SecsLeft:        p.EntrySecsLeft,
		VolRegime:       p.EntryRegime,
		VolDollarPerMin: p.EntryVol,
		HoldSecs:        now.Sub(p.OpenedAt).Seconds(),
		EntryFairCents:  p.EntryFairCents,
	}
}
