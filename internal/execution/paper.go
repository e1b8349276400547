package execution

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/atmx/edge-trader/internal/ledger"
	"github.com/atmx/edge-trader/internal/model"
)

// PaperBroker simulates fills against the visible orderbook. Buys cross
// the spread and walk the offers; sells fill in full at the bid, and
// fail with ErrNoLiquidity when there is no bid.
type PaperBroker struct{}

// NewPaperBroker returns a simulated broker.
func NewPaperBroker() *PaperBroker { return &PaperBroker{} }

func (b *PaperBroker) Mode() model.Mode { return model.ModePaper }

// Cancel is a no-op; simulated orders never rest.
func (b *PaperBroker) Cancel(ctx context.Context, orderID string) error { return nil }

func (b *PaperBroker) Mark(book model.Orderbook, pos model.Position) int {
	return ledger.MarkValue(book, pos)
}

// Submit fills o immediately. A buy never takes more than
// floor(depth * DepthFraction) contracts and is shrunk to what
// AvailableCents can pay for.
func (b *PaperBroker) Submit(ctx context.Context, o Order) (Fill, error) {
	if o.Quantity <= 0 {
		return Fill{}, fmt.Errorf("%w: quantity %d", ErrOrderFailed, o.Quantity)
	}
	if o.Action == Sell {
		return b.sell(o)
	}
	return b.buy(o)
}

func (b *PaperBroker) sell(o Order) (Fill, error) {
	price := min(o.Book.BidFor(o.Side), 99)
	if price <= 0 {
		return Fill{}, fmt.Errorf("%w: no %s bid", ErrNoLiquidity, o.Side)
	}
	return Fill{
		OrderID:    "paper-" + uuid.NewString(),
		Quantity:   o.Quantity,
		PriceCents: price,
		CostCents:  price * o.Quantity,
	}, nil
}

func (b *PaperBroker) buy(o Order) (Fill, error) {
	levels := o.Book.LevelsFor(o.Side)
	if len(levels) == 0 {
		// Top of book only: treat the ask as a single level.
		if ask := o.Book.AskFor(o.Side); ask > 0 && ask < 100 {
			levels = []model.Level{{Price: ask, Quantity: o.Book.DepthFor(o.Side)}}
		}
	}

	limit := o.PriceCents
	if o.Type == Market || limit <= 0 {
		limit = 99
	}
	depth := 0
	for _, lv := range levels {
		if lv.Price > limit {
			break
		}
		depth += lv.Quantity
	}

	frac := o.DepthFraction
	if frac <= 0 || frac > 1 {
		frac = 1
	}
	capQty := int(math.Floor(float64(depth) * frac))
	want := min(o.Quantity, capQty)
	if want <= 0 {
		return Fill{}, fmt.Errorf("%w: %d visible at or below %dc", ErrNoLiquidity, depth, limit)
	}

	qty, cost := 0, 0
	for _, lv := range levels {
		if lv.Price > limit || qty == want {
			break
		}
		take := min(lv.Quantity, want-qty)
		if o.AvailableCents >= 0 {
			if afford := (o.AvailableCents - cost) / lv.Price; afford < take {
				take = afford
			}
		}
		if take <= 0 {
			break
		}
		qty += take
		cost += take * lv.Price
	}
	if qty == 0 {
		return Fill{}, fmt.Errorf("%w: %dc available", ErrInsufficientBalance, o.AvailableCents)
	}
	return Fill{
		OrderID:    "paper-" + uuid.NewString(),
		Quantity:   qty,
		PriceCents: (cost + qty/2) / qty,
		CostCents:  cost,
	}, nil
}
