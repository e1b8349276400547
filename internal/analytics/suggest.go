package analytics

import (
	"fmt"
	"math"

	"github.com/atmx/edge-trader/internal/config"
	"github.com/atmx/edge-trader/internal/model"
)

// MinSample is the fewest trades a bucket needs before it can back a
// suggestion.
const MinSample = 10

// Suggestion proposes a new value for one tunable.
type Suggestion struct {
	Key        string  `json:"param"`
	Current    float64 `json:"current_value"`
	Suggested  float64 `json:"suggested_value"`
	Reasoning  string  `json:"reasoning"`
	SampleSize int     `json:"sample_size"`
	Confidence string  `json:"confidence"`
}

// ConfidenceLevel grades a sample size.
func ConfidenceLevel(n int) string {
	switch {
	case n >= 30:
		return "high"
	case n >= 15:
		return "medium"
	default:
		return "low"
	}
}

func suggest(closed []model.TradeRecord, segs []Segment, cfg *config.Snapshot) []Suggestion {
	out := []Suggestion{}
	for _, f := range []func([]model.TradeRecord, []Segment, *config.Snapshot) (Suggestion, bool){
		suggestMinEdge,
		suggestMinConfidence,
		suggestMinTime,
		suggestVolLow,
		suggestStopLoss,
		suggestFairValueK,
	} {
		if s, ok := f(closed, segs, cfg); ok {
			out = append(out, s)
		}
	}
	return out
}

// suggestMinEdge raises MIN_EDGE_CENTS to the lowest edge bucket that
// does not lose money when the buckets below it do.
func suggestMinEdge(_ []model.TradeRecord, segs []Segment, cfg *config.Snapshot) (Suggestion, bool) {
	current := cfg.Float(config.MinEdgeCents)
	losing, profitable := 0, -1.0
	var losingPnL float64
	for _, b := range find(segs, SegEdge).Buckets {
		if b.Trades < MinSample {
			continue
		}
		if b.AvgPnL.IsNegative() {
			losing += b.Trades
			losingPnL += b.TotalPnL.InexactFloat64()
		} else if profitable < 0 {
			profitable = b.Lower
		}
	}
	if profitable <= current || losing < MinSample {
		return Suggestion{}, false
	}
	return Suggestion{
		Key:       config.MinEdgeCents,
		Current:   current,
		Suggested: profitable,
		Reasoning: fmt.Sprintf("Trades with edge below %.0fc lost $%.2f over %d trades. Raising from %.0fc to %.0fc filters out losing entries.",
			profitable, math.Abs(losingPnL), losing, current, profitable),
		SampleSize: losing,
		Confidence: ConfidenceLevel(losing),
	}, true
}

// suggestMinConfidence raises RULE_MIN_CONFIDENCE to the first
// confidence band that is not losing money.
func suggestMinConfidence(_ []model.TradeRecord, segs []Segment, cfg *config.Snapshot) (Suggestion, bool) {
	current := cfg.Float(config.RuleMinConfidence)
	seg := find(segs, SegConfidence)
	// The lowest band suggests the floor of the next one.
	thresholds := map[string]float64{"<60%": 0.6, "60-69%": 0.6, "70-79%": 0.7, "80%+": 0.8}

	losing, threshold := 0, 0.0
	for _, b := range seg.Buckets {
		if b.Trades < MinSample {
			continue
		}
		if b.AvgPnL.IsNegative() {
			losing += b.Trades
			continue
		}
		threshold = thresholds[b.Label]
		break
	}
	if threshold <= current || losing < MinSample {
		return Suggestion{}, false
	}
	return Suggestion{
		Key:       config.RuleMinConfidence,
		Current:   current,
		Suggested: threshold,
		Reasoning: fmt.Sprintf("Trades below %.0f%% confidence have negative P&L (%d trades). Raising from %.0f%% to %.0f%% filters out unprofitable low-confidence entries.",
			threshold*100, losing, current*100, threshold*100),
		SampleSize: losing,
		Confidence: ConfidenceLevel(losing),
	}, true
}

// suggestMinTime raises MIN_SECONDS_TO_CLOSE to 180 when late entries
// lose and earlier ones profit.
func suggestMinTime(_ []model.TradeRecord, segs []Segment, cfg *config.Snapshot) (Suggestion, bool) {
	const target = 180
	current := cfg.Float(config.MinSecondsToClose)
	if current >= target {
		return Suggestion{}, false
	}
	seg := find(segs, SegTimeLeft)
	short := seg.Bucket("90-180s")
	if short.Trades < MinSample || !short.AvgPnL.IsNegative() {
		return Suggestion{}, false
	}
	longerProfitable := false
	for _, label := range []string{"180-360s", "360-600s", "600s+"} {
		if b := seg.Bucket(label); b.Trades >= MinSample && b.AvgPnL.IsPositive() {
			longerProfitable = true
		}
	}
	if !longerProfitable {
		return Suggestion{}, false
	}
	return Suggestion{
		Key:       config.MinSecondsToClose,
		Current:   current,
		Suggested: target,
		Reasoning: fmt.Sprintf("Trades entered with under 180s left lose $%.2f per trade on average (%d trades). Trades with more time are profitable.",
			math.Abs(short.AvgPnL.InexactFloat64()), short.Trades),
		SampleSize: short.Trades,
		Confidence: ConfidenceLevel(short.Trades),
	}, true
}

// suggestVolLow raises VOL_LOW_THRESHOLD above the volatility of losing
// low-regime entries so the bot sits more of them out.
func suggestVolLow(closed []model.TradeRecord, segs []Segment, cfg *config.Snapshot) (Suggestion, bool) {
	current := cfg.Float(config.VolLowThreshold)
	low := find(segs, SegVolRegime).Bucket("low")
	if low.Trades < MinSample || !low.AvgPnL.IsNegative() {
		return Suggestion{}, false
	}
	maxVol := 0.0
	for _, r := range closed {
		if r.VolRegime == "low" && r.VolDollarPerMin > maxVol {
			maxVol = r.VolDollarPerMin
		}
	}
	suggested := math.Min(math.Round(maxVol*1.1), math.Round(cfg.Float(config.VolHighThreshold)*0.8))
	if suggested <= current {
		return Suggestion{}, false
	}
	return Suggestion{
		Key:       config.VolLowThreshold,
		Current:   current,
		Suggested: suggested,
		Reasoning: fmt.Sprintf("Low-vol trades lost $%.2f (%d trades, %.0f%% win rate). Raise the threshold from $%.0f to $%.0f/min to sit out more.",
			math.Abs(low.TotalPnL.InexactFloat64()), low.Trades, low.WinRate*100, current, suggested),
		SampleSize: low.Trades,
		Confidence: ConfidenceLevel(low.Trades),
	}, true
}

// suggestStopLoss widens STOP_LOSS_CENTS by 5c when stops make up more
// than 30% of exits.
func suggestStopLoss(closed []model.TradeRecord, segs []Segment, cfg *config.Snapshot) (Suggestion, bool) {
	current := cfg.Float(config.StopLossCents)
	seg := find(segs, SegExitType)
	sl := seg.Bucket(string(model.TradeSL))
	if sl.Trades < MinSample {
		return Suggestion{}, false
	}
	total := 0
	for _, b := range seg.Buckets {
		total += b.Trades
	}
	rate := float64(sl.Trades) / float64(total)
	if rate <= 0.30 {
		return Suggestion{}, false
	}

	var held float64
	for _, r := range closed {
		if r.Action == model.TradeSL {
			held += r.HoldSecs
		}
	}
	suggested := current + 5
	if f, ok := config.Lookup(config.StopLossCents); ok && suggested > f.Max {
		suggested = f.Max
	}
	if suggested <= current {
		return Suggestion{}, false
	}
	return Suggestion{
		Key:       config.StopLossCents,
		Current:   current,
		Suggested: suggested,
		Reasoning: fmt.Sprintf("Stop-loss fires on %.0f%% of exits (%d/%d trades), on average %.0fs after entry. Consider widening from %.0fc to %.0fc to reduce whipsaws.",
			rate*100, sl.Trades, total, held/float64(sl.Trades), current, suggested),
		SampleSize: sl.Trades,
		Confidence: ConfidenceLevel(sl.Trades),
	}, true
}

// suggestFairValueK flattens the logistic curve when the fair value
// called the winning side less than 45% of the time.
func suggestFairValueK(closed []model.TradeRecord, _ []Segment, cfg *config.Snapshot) (Suggestion, bool) {
	current := cfg.Float(config.FairValueK)
	accurate, inaccurate := 0, 0
	for _, r := range closed {
		win := r.PnL.IsPositive()
		switch {
		case win && r.Side == model.SideYes && r.EntryFairCents > 50:
			accurate++
		case win && r.Side == model.SideNo && r.EntryFairCents < 50:
			accurate++
		case !win:
			inaccurate++
		}
	}
	total := accurate + inaccurate
	if total < MinSample {
		return Suggestion{}, false
	}
	rate := float64(accurate) / float64(total)
	if rate >= 0.45 {
		return Suggestion{}, false
	}
	suggested := math.Max(0.3, math.Round((current-0.1)*100)/100)
	if suggested >= current {
		return Suggestion{}, false
	}
	return Suggestion{
		Key:       config.FairValueK,
		Current:   current,
		Suggested: suggested,
		Reasoning: fmt.Sprintf("Fair value called the winner %.0f%% of the time (%d/%d trades). A lower K (%.2f) gives less extreme probabilities.",
			rate*100, accurate, total, suggested),
		SampleSize: total,
		Confidence: "low",
	}, true
}
