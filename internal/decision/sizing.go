package decision

import (
	"github.com/shopspring/decimal"

	"github.com/atmx/edge-trader/internal/config"
	"github.com/atmx/edge-trader/internal/cycle"
	"github.com/atmx/edge-trader/internal/guard"
	"github.com/atmx/edge-trader/internal/model"
)

// Size returns the contracts to buy at priceCents: ORDER_SIZE_PCT of
// balance, capped by what MAX_POSITION_PCT still allows in this market.
// Zero means no room.
func Size(c *cycle.Context, priceCents int) int {
	if priceCents <= 0 || priceCents >= 100 {
		return 0
	}
	cfg := c.Config
	budget := c.Account.Balance.Mul(decimal.NewFromFloat(cfg.Float(config.OrderSizePct))).Div(decimal.NewFromInt(100))
	qty := int(budget.Div(model.Cents(priceCents)).Floor().IntPart())
	if qty < 1 {
		qty = 1
	}

	held := 0
	if c.Position != nil {
		held = c.Position.Quantity
	}
	room := guard.MaxContracts(c.Account.Balance, cfg.Float(config.MaxPositionPct), priceCents) - held
	if room <= 0 {
		return 0
	}
	return min(qty, room)
}

// EntryPrice picks the limit price for buying side. Crossing orders pay
// the ask. Live orders otherwise rest at the midpoint; paper orders
// always cross since they fill against the visible book.
func EntryPrice(book model.Orderbook, side model.Side, cross bool, mode model.Mode) int {
	ask := book.AskFor(side)
	bid := book.BidFor(side)
	var p int
	switch {
	case cross || mode == model.ModePaper:
		p = ask
	case bid <= 0:
		p = ask
	default:
		p = (bid + ask + 1) / 2
	}
	return clampPrice(p)
}

func clampPrice(p int) int {
	if p < 1 {
		return 1
	}
	if p > 99 {
		return 99
	}
	return p
}
