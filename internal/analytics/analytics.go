// Package analytics summarizes closed trades, segments them by entry
// context, and proposes tunable adjustments backed by enough samples.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/edge-trader/internal/config"
	"github.com/atmx/edge-trader/internal/model"
	"github.com/atmx/edge-trader/internal/store"
)

// Summary is the headline performance of closed trades.
type Summary struct {
	Trades       int             `json:"trades"`
	Wins         int             `json:"wins"`
	Losses       int             `json:"losses"`
	WinRate      float64         `json:"win_rate"`
	TotalPnL     decimal.Decimal `json:"total_pnl"`
	AvgPnL       decimal.Decimal `json:"avg_pnl"`
	GrossWin     decimal.Decimal `json:"gross_win"`
	GrossLoss    decimal.Decimal `json:"gross_loss"`
	ProfitFactor *float64        `json:"profit_factor"` // nil without losses
	BestTrade    decimal.Decimal `json:"best_trade"`
	WorstTrade   decimal.Decimal `json:"worst_trade"`
	AvgHoldSecs  float64         `json:"avg_hold_secs"`
}

// Report is everything the analytics endpoint returns.
type Report struct {
	Mode        model.Mode   `json:"mode,omitempty"`
	GeneratedAt time.Time    `json:"generated_at"`
	Summary     Summary      `json:"summary"`
	Segments    []Segment    `json:"segments"`
	Suggestions []Suggestion `json:"suggestions"`
}

// Analyze builds a report from trade records. Only records that realized
// P&L count as trades.
func Analyze(records []model.TradeRecord, cfg *config.Snapshot) Report {
	closed := make([]model.TradeRecord, 0, len(records))
	for _, r := range records {
		if r.Closing() {
			closed = append(closed, r)
		}
	}
	segs := segment(closed)
	return Report{
		Summary:     summarize(closed),
		Segments:    segs,
		Suggestions: suggest(closed, segs, cfg),
	}
}

func summarize(closed []model.TradeRecord) Summary {
	s := Summary{Trades: len(closed)}
	if len(closed) == 0 {
		return s
	}
	var hold float64
	for i, r := range closed {
		pnl := *r.PnL
		s.TotalPnL = s.TotalPnL.Add(pnl)
		switch {
		case pnl.IsPositive():
			s.Wins++
			s.GrossWin = s.GrossWin.Add(pnl)
		case pnl.IsNegative():
			s.Losses++
			s.GrossLoss = s.GrossLoss.Add(pnl.Abs())
		}
		if i == 0 || pnl.GreaterThan(s.BestTrade) {
			s.BestTrade = pnl
		}
		if i == 0 || pnl.LessThan(s.WorstTrade) {
			s.WorstTrade = pnl
		}
		hold += r.HoldSecs
	}
	n := decimal.NewFromInt(int64(len(closed)))
	s.AvgPnL = s.TotalPnL.Div(n).Round(4)
	s.WinRate = float64(s.Wins) / float64(len(closed))
	s.AvgHoldSecs = hold / float64(len(closed))
	if !s.GrossLoss.IsZero() {
		pf := s.GrossWin.Div(s.GrossLoss).InexactFloat64()
		s.ProfitFactor = &pf
	}
	return s
}

// TradeSource is the read side of the trade log.
type TradeSource interface {
	QueryTrades(ctx context.Context, q store.TradeQuery) ([]model.TradeRecord, error)
}

// Engine serves reports and applies suggestions.
type Engine struct {
	trades TradeSource
	cfg    *config.Store
	now    func() time.Time
}

// NewEngine returns an analytics engine over trades.
func NewEngine(trades TradeSource, cfg *config.Store) *Engine {
	return &Engine{trades: trades, cfg: cfg, now: time.Now}
}

// Report analyzes every trade of mode, or of both modes when empty.
func (e *Engine) Report(ctx context.Context, mode model.Mode) (Report, error) {
	recs, err := e.trades.QueryTrades(ctx, store.TradeQuery{Mode: mode})
	if err != nil {
		return Report{}, fmt.Errorf("query trades: %w", err)
	}
	r := Analyze(recs, e.cfg.Snapshot())
	r.Mode = mode
	r.GeneratedAt = e.now().UTC()
	return r, nil
}

// Apply sets a suggested value through the config store, which validates
// and persists it like any other change.
func (e *Engine) Apply(ctx context.Context, key string, value any) (config.Entry, error) {
	return e.cfg.Set(ctx, key, value)
}
