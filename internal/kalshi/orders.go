package kalshi

import (
	"context"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/atmx/edge-trader/internal/execution"
	"github.com/atmx/edge-trader/internal/model"
)

// PlaceOrder submits o and reports what filled immediately.
func (c *Client) PlaceOrder(ctx context.Context, o execution.Order) (execution.Placement, error) {
	req := createOrderRequest{
		Ticker:        o.MarketID,
		ClientOrderID: o.ClientID,
		Side:          string(o.Side),
		Action:        string(o.Action),
		Count:         o.Quantity,
		Type:          string(o.Type),
	}
	if o.Side == model.SideYes {
		req.YesPrice = o.PriceCents
	} else {
		req.NoPrice = o.PriceCents
	}
	if o.Type == execution.Market && o.Action == execution.Buy {
		req.BuyMaxCost = o.PriceCents * o.Quantity
	}

	var resp orderResponse
	if err := c.post(ctx, "/portfolio/orders", req, &resp); err != nil {
		return execution.Placement{}, fmt.Errorf("place order %s: %w", o.MarketID, err)
	}
	return resp.Order.toPlacement(o), nil
}

// CancelOrder cancels a resting order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if err := c.delete(ctx, "/portfolio/orders/"+url.PathEscape(orderID)); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	return nil
}

// Balance returns the account's cash balance in dollars.
func (c *Client) Balance(ctx context.Context) (decimal.Decimal, error) {
	var resp balanceResponse
	if err := c.get(ctx, "/portfolio/balance", nil, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	return decimal.New(resp.Balance, -2), nil
}

func (o apiOrder) toPlacement(req execution.Order) execution.Placement {
	p := execution.Placement{OrderID: o.OrderID, Filled: o.FillCount}
	if p.Filled == 0 && o.Status == "executed" {
		p.Filled = req.Quantity - o.RemainingCount
	}
	if o.Status == "resting" {
		p.Resting = o.RemainingCount
	}
	if cost := o.TakerFillCost + o.MakerFillCost; p.Filled > 0 && cost > 0 {
		p.AvgPriceCents = (cost + p.Filled/2) / p.Filled
	} else if p.Filled > 0 {
		p.AvgPriceCents = req.PriceCents
	}
	return p
}
