// Package execution turns decisions and exit plans into fills and applies
// them to the ledger. A Broker produces fills: LiveBroker against the
// exchange, PaperBroker against the visible orderbook. Executor owns the
// shared accounting path so both modes mutate the ledger identically.
package execution

import (
	"context"
	"errors"

	"github.com/atmx/edge-trader/internal/model"
)

var (
	// ErrOrderFailed is returned when an order could not be filled after
	// every retry.
	ErrOrderFailed = errors.New("execution: order failed")

	// ErrInsufficientBalance is returned when not even one contract is
	// affordable.
	ErrInsufficientBalance = errors.New("execution: insufficient balance")

	// ErrNoLiquidity is returned when the book cannot fill any quantity.
	ErrNoLiquidity = errors.New("execution: no liquidity")
)

// OrderAction is the direction of an order.
type OrderAction string

const (
	Buy  OrderAction = "buy"
	Sell OrderAction = "sell"
)

// OrderType selects resting versus immediate execution.
type OrderType string

const (
	Limit  OrderType = "limit"
	Market OrderType = "market"
)

// Order is a request to a broker. Prices are in cents of Side.
type Order struct {
	ClientID   string
	MarketID   string
	Side       model.Side
	Action     OrderAction
	Type       OrderType
	Quantity   int
	PriceCents int

	// Book is the orderbook the order was priced against.
	Book model.Orderbook

	// AvailableCents caps the cost of a buy. Negative means unlimited.
	AvailableCents int

	// DepthFraction is the share of visible depth a simulated buy may
	// take. Live venues ignore it.
	DepthFraction float64
}

// Fill is what a broker actually executed.
type Fill struct {
	OrderID    string
	Quantity   int
	PriceCents int // average per contract
	CostCents  int // total paid or received
}

// Broker executes orders.
type Broker interface {
	Mode() model.Mode
	Submit(ctx context.Context, o Order) (Fill, error)
	Cancel(ctx context.Context, orderID string) error
	// Mark returns the liquidation value in cents of pos against book.
	Mark(book model.Orderbook, pos model.Position) int
}
