// Package model defines the core domain types shared across the trader.
// Contract prices are integer cents (0-100). Account money uses
// shopspring/decimal dollars, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the contract side a position or order refers to.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Opposite returns the other side of the contract.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// Mode selects the execution path.
type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m == ModePaper || m == ModeLive }

// Action is the per-cycle output of the decision engine.
type Action string

const (
	ActionBuyYes Action = "BUY_YES"
	ActionBuyNo  Action = "BUY_NO"
	ActionHold   Action = "HOLD"
)

// TradeAction tags a TradeRecord.
type TradeAction string

const (
	TradeBuy    TradeAction = "BUY"
	TradeSell   TradeAction = "SELL"
	TradeSettle TradeAction = "SETTLE"
	TradeSL     TradeAction = "SL"
	TradeTP     TradeAction = "TP"
	TradeEdge   TradeAction = "EDGE"
)

// PriceTick is the latest observation from one venue. Overwritten on
// every update by that venue's feed.
type PriceTick struct {
	Exchange  string    `json:"exchange"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
	Connected bool      `json:"connected"`
}

// GlobalSnapshot is recomputed by the alpha engine every cycle.
type GlobalSnapshot struct {
	Ready               bool        `json:"ready"`
	WeightedPrice       float64     `json:"weighted_price"`
	ProjectedSettlement float64     `json:"projected_settlement"`
	VolDollarPerMin     float64     `json:"vol_dollar_per_min"`
	Velocity1m          float64     `json:"velocity_1m"` // $/s
	Direction1m         int         `json:"direction_1m"`
	LeadLagSpread       float64     `json:"lead_lag_spread"`
	Momentum            float64     `json:"momentum"`
	ExchangesConnected  int         `json:"exchanges_connected"`
	ExchangesTotal      int         `json:"exchanges_total"`
	Venues              []PriceTick `json:"venues"`
	ComputedAt          time.Time   `json:"computed_at"`
}

// Contract is one 15-minute trading window.
type Contract struct {
	MarketID  string        `json:"market_id"`
	Strike    float64       `json:"strike"`
	CloseTime time.Time     `json:"close_time"`
	Duration  time.Duration `json:"duration"`
	Result    string        `json:"result,omitempty"` // "yes", "no" once determined
}

// SecondsToClose returns the seconds remaining before close, never negative.
func (c Contract) SecondsToClose(now time.Time) float64 {
	s := c.CloseTime.Sub(now).Seconds()
	if s < 0 {
		return 0
	}
	return s
}

// Level is one resting price level in cents.
type Level struct {
	Price    int `json:"price"`
	Quantity int `json:"quantity"`
}

// Orderbook is the top of book plus visible depth, in YES cents.
// YesLevels are the offers a YES buyer can take, priced in YES cents and
// sorted cheapest first; NoLevels are the same for a NO buyer in NO cents.
// On a binary venue a YES offer at p is a resting NO bid at 100-p.
// YesDepth and NoDepth sum the quantities of those levels.
type Orderbook struct {
	BestBid   int       `json:"best_bid"`
	BestAsk   int       `json:"best_ask"`
	YesDepth  int       `json:"yes_depth"`
	NoDepth   int       `json:"no_depth"`
	YesLevels []Level   `json:"yes_levels,omitempty"`
	NoLevels  []Level   `json:"no_levels,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Spread is BestAsk - BestBid.
func (o Orderbook) Spread() int { return o.BestAsk - o.BestBid }

// AskFor returns the cost in cents to buy one contract of side.
func (o Orderbook) AskFor(side Side) int {
	if side == SideYes {
		return o.BestAsk
	}
	return 100 - o.BestBid
}

// BidFor returns the cents received selling one contract of side.
func (o Orderbook) BidFor(side Side) int {
	if side == SideYes {
		return o.BestBid
	}
	return 100 - o.BestAsk
}

// LevelsFor returns the offers a buyer of side can take.
func (o Orderbook) LevelsFor(side Side) []Level {
	if side == SideYes {
		return o.YesLevels
	}
	return o.NoLevels
}

// DepthFor returns the contracts available to a buyer of side.
func (o Orderbook) DepthFor(side Side) int {
	if side == SideYes {
		return o.YesDepth
	}
	return o.NoDepth
}

// TwoSided reports whether both sides of the book have resting orders.
func (o Orderbook) TwoSided() bool { return o.BestBid > 0 && o.BestAsk < 100 }

// FairValue is the model output for one cycle.
type FairValue struct {
	YesCents  int     `json:"fair_yes_cents"`
	YesProb   float64 `json:"fair_yes_prob"`
	Z         float64 `json:"z"`
	ScaledVol float64 `json:"scaled_vol"`
}

// GuardResult is one entry predicate outcome.
type GuardResult struct {
	Name      string  `json:"name"`
	Blocked   bool    `json:"blocked"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Detail    string  `json:"detail,omitempty"`
}

// ExitResult is one exit predicate outcome.
type ExitResult struct {
	Name      string  `json:"name"`
	Triggered bool    `json:"triggered"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Detail    string  `json:"detail,omitempty"`
}

// Decision is produced once per cycle.
type Decision struct {
	Action     Action    `json:"action"`
	Side       Side      `json:"side,omitempty"`
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning"`
	YesEdge    int       `json:"yes_edge"`
	NoEdge     int       `json:"no_edge"`
	Regime     string    `json:"regime"`
	Override   string    `json:"override,omitempty"`
	Cross      bool      `json:"cross"`
	At         time.Time `json:"at"`
}

// Edge returns the edge of the chosen side.
func (d Decision) Edge() int {
	if d.Side == SideNo {
		return d.NoEdge
	}
	return d.YesEdge
}

// Position is the single open holding in one market.
type Position struct {
	MarketID       string    `json:"market_id"`
	Side           Side      `json:"side"`
	Quantity       int       `json:"quantity"`
	CostBasisCents int       `json:"cost_basis_cents"` // total paid for Quantity
	OpenedAt       time.Time `json:"opened_at"`

	// Entry context carried to the terminal record for analytics.
	EntryPriceCents int     `json:"entry_price_cents"`
	EntryEdge       int     `json:"entry_edge"`
	EntryConfidence float64 `json:"entry_confidence"`
	EntrySecsLeft   float64 `json:"entry_secs_left"`
	EntryRegime     string  `json:"entry_regime"`
	EntryVol        float64 `json:"entry_vol"`
	EntryFairCents  int     `json:"entry_fair_cents"`
}

// AvgCostCents is the per-contract cost basis.
func (p Position) AvgCostCents() float64 {
	if p.Quantity <= 0 {
		return 0
	}
	return float64(p.CostBasisCents) / float64(p.Quantity)
}

// TradeRecord is an immutable append-only record of one fill or
// settlement. PnL is nil on entries and set on every closing record.
type TradeRecord struct {
	ID          string           `json:"id" db:"id"`
	Mode        Mode             `json:"mode" db:"mode"`
	MarketID    string           `json:"market_id" db:"market_id"`
	Action      TradeAction      `json:"action" db:"action"`
	Side        Side             `json:"side" db:"side"`
	Quantity    int              `json:"quantity" db:"quantity"`
	PriceCents  int              `json:"price_cents" db:"price_cents"`
	PnL         *decimal.Decimal `json:"pnl" db:"pnl"`
	ExitTrigger string           `json:"exit_trigger,omitempty" db:"exit_trigger"`
	Terminal    bool             `json:"terminal" db:"terminal"`
	Timestamp   time.Time        `json:"ts" db:"ts"`

	EntryPriceCents int     `json:"entry_price_cents" db:"entry_price_cents"`
	EdgeCents       int     `json:"edge_cents" db:"edge_cents"`
	Confidence      float64 `json:"confidence" db:"confidence"`
	SecsLeft        float64 `json:"secs_left" db:"secs_left"`
	VolRegime       string  `json:"vol_regime" db:"vol_regime"`
	VolDollarPerMin float64 `json:"vol_dollar_per_min" db:"vol_dollar_per_min"`
	HoldSecs        float64 `json:"hold_secs" db:"hold_secs"`
	EntryFairCents  int     `json:"entry_fair_cents" db:"entry_fair_cents"`
}

// Closing reports whether the record realized P&L.
func (r TradeRecord) Closing() bool { return r.PnL != nil }

// AccountState holds balance and P&L totals in dollars.
type AccountState struct {
	Mode          Mode            `json:"mode"`
	Balance       decimal.Decimal `json:"balance"`
	StartBalance  decimal.Decimal `json:"start_balance"`
	DayPnL        decimal.Decimal `json:"day_pnl"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	TotalExposure decimal.Decimal `json:"total_exposure"`
	DayStart      time.Time       `json:"day_start"`
	Positions     []Position      `json:"positions"`
}

// DecisionLog is a persisted copy of one cycle's decision.
type DecisionLog struct {
	MarketID   string    `json:"market_id"`
	Mode       Mode      `json:"mode"`
	Action     Action    `json:"action"`
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning"`
	FairCents  int       `json:"fair_cents"`
	BestBid    int       `json:"best_bid"`
	BestAsk    int       `json:"best_ask"`
	Timestamp  time.Time `json:"ts"`
}

// Cents converts integer cents to dollars.
func Cents(c int) decimal.Decimal {
	return decimal.New(int64(c), -2)
}
