package analytics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/edge-trader/internal/config"
	"github.com/atmx/edge-trader/internal/model"
	"github.com/atmx/edge-trader/internal/store"
)

func d(s string) decimal.Decimal {
	v, _ := decimal.NewFromString(s)
	return v
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var seq int

// closed returns a closing record with pnl and sensible entry context.
func closed(pnl string, mut func(r *model.TradeRecord)) model.TradeRecord {
	seq++
	p := d(pnl)
	r := model.TradeRecord{
		ID:              fmt.Sprintf("t%d", seq),
		Mode:            model.ModePaper,
		MarketID:        "KXBTC15M-26MAR011215-15",
		Action:          model.TradeSettle,
		Side:            model.SideYes,
		Quantity:        10,
		PriceCents:      100,
		PnL:             &p,
		Terminal:        true,
		Timestamp:       base.Add(time.Duration(seq) * time.Minute),
		EntryPriceCents: 48,
		EdgeCents:       8,
		Confidence:      0.65,
		SecsLeft:        400,
		VolRegime:       "medium",
		VolDollarPerMin: 250,
		HoldSecs:        200,
		EntryFairCents:  60,
	}
	if mut != nil {
		mut(&r)
	}
	return r
}

func repeat(n int, pnl string, mut func(r *model.TradeRecord)) []model.TradeRecord {
	out := make([]model.TradeRecord, n)
	for i := range out {
		out[i] = closed(pnl, mut)
	}
	return out
}

func suggestion(t *testing.T, ss []Suggestion, key string) (Suggestion, bool) {
	t.Helper()
	for _, s := range ss {
		if s.Key == key {
			return s, true
		}
	}
	return Suggestion{}, false
}

func TestSummary(t *testing.T) {
	recs := []model.TradeRecord{
		{ID: "entry", Action: model.TradeBuy, Quantity: 10},
		closed("2", nil),
		closed("-1", nil),
		closed("3", nil),
	}
	s := Analyze(recs, config.Defaults()).Summary

	if s.Trades != 3 || s.Wins != 2 || s.Losses != 1 {
		t.Fatalf("unexpected counts %+v", s)
	}
	if !s.TotalPnL.Equal(d("4")) || !s.BestTrade.Equal(d("3")) || !s.WorstTrade.Equal(d("-1")) {
		t.Errorf("unexpected totals %+v", s)
	}
	if s.ProfitFactor == nil || *s.ProfitFactor != 5 {
		t.Errorf("expected profit factor 5, got %v", s.ProfitFactor)
	}
	if s.WinRate < 0.66 || s.WinRate > 0.67 {
		t.Errorf("expected win rate 2/3, got %v", s.WinRate)
	}
}

func TestSummary_NoLossesHasNoProfitFactor(t *testing.T) {
	s := Analyze([]model.TradeRecord{closed("1", nil), closed("2", nil)}, config.Defaults()).Summary
	if s.ProfitFactor != nil {
		t.Errorf("expected nil profit factor, got %v", *s.ProfitFactor)
	}
	empty := Analyze(nil, config.Defaults())
	if empty.Summary.Trades != 0 || len(empty.Suggestions) != 0 {
		t.Errorf("expected empty report, got %+v", empty)
	}
}

func TestSegments_Buckets(t *testing.T) {
	recs := []model.TradeRecord{
		closed("1", func(r *model.TradeRecord) { r.EdgeCents = 3; r.Confidence = 0.55; r.EntryPriceCents = 30 }),
		closed("-1", func(r *model.TradeRecord) { r.EdgeCents = 12; r.Confidence = 0.82; r.EntryPriceCents = 31 }),
		closed("1", func(r *model.TradeRecord) { r.EdgeCents = 15; r.Action = model.TradeSL; r.Quantity = 31 }),
	}
	segs := Analyze(recs, config.Defaults()).Segments

	tests := []struct {
		seg, label string
		trades     int
	}{
		{SegEdge, "0-4c", 1},
		{SegEdge, "10-14c", 1},
		{SegEdge, "15c+", 1},
		{SegConfidence, "<60%", 1},
		{SegConfidence, "80%+", 1},
		{SegEntryPrice, "1-30c", 1},
		{SegEntryPrice, "31-50c", 2},
		{SegExitType, "SL", 1},
		{SegExitType, "SETTLE", 2},
		{SegSize, "31+", 1},
		{SegSide, "yes", 3},
		{SegHold, "2-5min", 3},
		{SegTimeLeft, "360-600s", 3},
	}
	for _, tc := range tests {
		if got := find(segs, tc.seg).Bucket(tc.label).Trades; got != tc.trades {
			t.Errorf("%s/%s: expected %d trades, got %d", tc.seg, tc.label, tc.trades, got)
		}
	}
	if len(segs) != len(dimensions) {
		t.Errorf("expected %d segments, got %d", len(dimensions), len(segs))
	}
}

func TestSuggest_MinEdge(t *testing.T) {
	recs := append(
		repeat(10, "-1", func(r *model.TradeRecord) { r.EdgeCents = 3 }),
		repeat(10, "1", func(r *model.TradeRecord) { r.EdgeCents = 12 })...,
	)
	s, ok := suggestion(t, Analyze(recs, config.Defaults()).Suggestions, config.MinEdgeCents)
	if !ok {
		t.Fatal("expected MIN_EDGE_CENTS suggestion")
	}
	if s.Suggested != 10 || s.Current != 5 || s.SampleSize != 10 || s.Confidence != "low" {
		t.Errorf("unexpected suggestion %+v", s)
	}
}

func TestSuggest_NeedsSamples(t *testing.T) {
	recs := append(
		repeat(9, "-1", func(r *model.TradeRecord) { r.EdgeCents = 3 }),
		repeat(10, "1", func(r *model.TradeRecord) { r.EdgeCents = 12 })...,
	)
	if _, ok := suggestion(t, Analyze(recs, config.Defaults()).Suggestions, config.MinEdgeCents); ok {
		t.Error("expected no suggestion below the sample minimum")
	}
}

func TestSuggest_MinConfidence(t *testing.T) {
	recs := append(
		repeat(15, "-1", func(r *model.TradeRecord) { r.Confidence = 0.55 }),
		repeat(10, "1", func(r *model.TradeRecord) { r.Confidence = 0.75 })...,
	)
	s, ok := suggestion(t, Analyze(recs, config.Defaults()).Suggestions, config.RuleMinConfidence)
	if !ok {
		t.Fatal("expected RULE_MIN_CONFIDENCE suggestion")
	}
	if s.Suggested != 0.7 || s.Confidence != "medium" {
		t.Errorf("unexpected suggestion %+v", s)
	}
}

func TestSuggest_MinTime(t *testing.T) {
	recs := append(
		repeat(10, "-1", func(r *model.TradeRecord) { r.SecsLeft = 120 }),
		repeat(10, "1", func(r *model.TradeRecord) { r.SecsLeft = 400 })...,
	)
	s, ok := suggestion(t, Analyze(recs, config.Defaults()).Suggestions, config.MinSecondsToClose)
	if !ok || s.Suggested != 180 || s.Current != 90 {
		t.Errorf("expected MIN_SECONDS_TO_CLOSE 90 -> 180, got %+v (ok=%v)", s, ok)
	}
}

func TestSuggest_VolLow(t *testing.T) {
	recs := repeat(10, "-1", func(r *model.TradeRecord) { r.VolRegime = "low"; r.VolDollarPerMin = 190 })
	s, ok := suggestion(t, Analyze(recs, config.Defaults()).Suggestions, config.VolLowThreshold)
	if !ok || s.Suggested != 209 {
		t.Errorf("expected VOL_LOW_THRESHOLD 209, got %+v (ok=%v)", s, ok)
	}
}

func TestSuggest_StopLoss(t *testing.T) {
	recs := append(
		repeat(12, "-1", func(r *model.TradeRecord) { r.Action = model.TradeSL }),
		repeat(8, "1", nil)...,
	)
	s, ok := suggestion(t, Analyze(recs, config.Defaults()).Suggestions, config.StopLossCents)
	if !ok {
		t.Fatal("expected STOP_LOSS_CENTS suggestion")
	}
	if s.Current != 15 || s.Suggested != 20 {
		t.Errorf("expected 15 -> 20, got %+v", s)
	}
}

func TestSuggest_FairValueK(t *testing.T) {
	recs := repeat(10, "-1", nil)
	s, ok := suggestion(t, Analyze(recs, config.Defaults()).Suggestions, config.FairValueK)
	if !ok {
		t.Fatal("expected FAIR_VALUE_K suggestion")
	}
	if s.Suggested != 0.5 || s.Confidence != "low" {
		t.Errorf("unexpected suggestion %+v", s)
	}

	floor := config.Defaults().With(config.FairValueK, 0.3)
	if _, ok := suggestion(t, Analyze(recs, floor).Suggestions, config.FairValueK); ok {
		t.Error("expected no suggestion at the 0.3 floor")
	}
}

func TestConfidenceLevel(t *testing.T) {
	tests := map[int]string{9: "low", 14: "low", 15: "medium", 29: "medium", 30: "high"}
	for n, want := range tests {
		if got := ConfidenceLevel(n); got != want {
			t.Errorf("ConfidenceLevel(%d) = %s, want %s", n, got, want)
		}
	}
}

func TestEngine_ReportAndApply(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	for _, r := range repeat(3, "1", nil) {
		mem.AppendTrade(ctx, &r)
	}
	live := closed("-5", func(r *model.TradeRecord) { r.Mode = model.ModeLive })
	mem.AppendTrade(ctx, &live)

	cfg := config.NewStore(mem, nil)
	e := NewEngine(mem, cfg)

	rep, err := e.Report(ctx, model.ModePaper)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Summary.Trades != 3 || rep.Mode != model.ModePaper {
		t.Errorf("expected 3 paper trades, got %+v", rep.Summary)
	}

	if _, err := e.Apply(ctx, config.MinEdgeCents, 10); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := cfg.Snapshot().Int(config.MinEdgeCents); got != 10 {
		t.Errorf("expected MIN_EDGE_CENTS 10, got %d", got)
	}
	settings, _ := mem.GetSettings(ctx)
	if _, ok := settings["config_"+config.MinEdgeCents]; !ok {
		t.Error("expected applied value persisted")
	}

	if _, err := e.Apply(ctx, config.MinEdgeCents, 500); err == nil {
		t.Error("expected out-of-range value rejected")
	}
	if got := cfg.Snapshot().Int(config.MinEdgeCents); got != 10 {
		t.Errorf("expected prior value kept, got %d", got)
	}
}
