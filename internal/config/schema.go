package config

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the value type of a tunable.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	default:
		return "float"
	}
}

// MarshalJSON renders the kind by name.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Tunable keys.
const (
	TradingEnabled         = "TRADING_ENABLED"
	OrderSizePct           = "ORDER_SIZE_PCT"
	MaxPositionPct         = "MAX_POSITION_PCT"
	MaxTotalExposurePct    = "MAX_TOTAL_EXPOSURE_PCT"
	MaxDailyLossPct        = "MAX_DAILY_LOSS_PCT"
	MinSecondsToClose      = "MIN_SECONDS_TO_CLOSE"
	MaxSpreadCents         = "MAX_SPREAD_CENTS"
	MinContractPrice       = "MIN_CONTRACT_PRICE"
	MaxContractPrice       = "MAX_CONTRACT_PRICE"
	StopLossCents          = "STOP_LOSS_CENTS"
	HitRunPct              = "HIT_RUN_PCT"
	ProfitTakePct          = "PROFIT_TAKE_PCT"
	FreeRollPrice          = "FREE_ROLL_PRICE"
	ProfitTakeMinSecs      = "PROFIT_TAKE_MIN_SECS"
	HoldExpirySecs         = "HOLD_EXPIRY_SECS"
	PollIntervalSeconds    = "POLL_INTERVAL_SECONDS"
	DeltaThreshold         = "DELTA_THRESHOLD"
	ExtremeDeltaThreshold  = "EXTREME_DELTA_THRESHOLD"
	AnchorSecondsThreshold = "ANCHOR_SECONDS_THRESHOLD"
	LeadLagThreshold       = "LEAD_LAG_THRESHOLD"
	LeadLagEnabled         = "LEAD_LAG_ENABLED"
	VolHighThreshold       = "VOL_HIGH_THRESHOLD"
	VolLowThreshold        = "VOL_LOW_THRESHOLD"
	FairValueK             = "FAIR_VALUE_K"
	MinEdgeCents           = "MIN_EDGE_CENTS"
	TrendFollowVelocity    = "TREND_FOLLOW_VELOCITY"
	RuleSitOutLowVol       = "RULE_SIT_OUT_LOW_VOL"
	RuleMinConfidence      = "RULE_MIN_CONFIDENCE"
	EdgeExitEnabled        = "EDGE_EXIT_ENABLED"
	EdgeExitThresholdCents = "EDGE_EXIT_THRESHOLD_CENTS"
	EdgeExitMinHoldSecs    = "EDGE_EXIT_MIN_HOLD_SECS"
	EdgeExitCooldownSecs   = "EDGE_EXIT_COOLDOWN_SECS"
	ReentryEdgePremium     = "REENTRY_EDGE_PREMIUM"
	PaperStartingBalance   = "PAPER_STARTING_BALANCE"
	PaperFillFraction      = "PAPER_FILL_FRACTION"
)

// Field is one row of the tunables schema.
type Field struct {
	Key     string  `json:"key"`
	Kind    Kind    `json:"type"`
	Default float64 `json:"default"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Help    string  `json:"help"`
}

func boolField(key string, def bool, help string) Field {
	v := 0.0
	if def {
		v = 1
	}
	return Field{Key: key, Kind: KindBool, Default: v, Min: 0, Max: 1, Help: help}
}

// schema is ordered the way the control surface lists it.
var schema = []Field{
	boolField(TradingEnabled, false, "Master switch for order placement"),
	{OrderSizePct, KindFloat, 5, 0.5, 50, "Percent of balance per order"},
	{MaxPositionPct, KindFloat, 15, 1, 100, "Max percent of balance in one contract"},
	{MaxTotalExposurePct, KindFloat, 30, 1, 100, "Max percent of balance across open positions"},
	{MaxDailyLossPct, KindFloat, 10, 1, 100, "Stop entering after this percent daily loss"},
	{MinSecondsToClose, KindInt, 90, 30, 600, "No entries closer to close than this"},
	{MaxSpreadCents, KindInt, 25, 1, 100, "Max bid/ask spread for entries"},
	{MinContractPrice, KindInt, 5, 1, 55, "Lowest tradable contract price"},
	{MaxContractPrice, KindInt, 85, 50, 99, "Highest tradable contract price"},
	{StopLossCents, KindInt, 15, 0, 99, "Loss per contract that forces an exit; 0 disables"},
	{HitRunPct, KindFloat, 0, 0, 500, "Quick gain percent exit; 0 disables"},
	{ProfitTakePct, KindInt, 50, 5, 500, "Gain percent that takes profit"},
	{FreeRollPrice, KindInt, 90, 75, 99, "Sell half once the position marks here"},
	{ProfitTakeMinSecs, KindInt, 300, 60, 600, "Profit take only with at least this many seconds left"},
	{HoldExpirySecs, KindInt, 120, 30, 300, "Ride to settlement inside this window"},
	{PollIntervalSeconds, KindInt, 10, 5, 120, "Cycle cadence"},
	{DeltaThreshold, KindFloat, 20, 5, 200, "Momentum override threshold in dollars"},
	{ExtremeDeltaThreshold, KindFloat, 50, 10, 500, "Momentum that crosses the spread"},
	{AnchorSecondsThreshold, KindInt, 60, 15, 120, "Anchor override window before close"},
	{LeadLagThreshold, KindFloat, 75, 10, 500, "Lead venue divergence override in dollars"},
	boolField(LeadLagEnabled, false, "Allow the lead-lag override"),
	{VolHighThreshold, KindFloat, 400, 50, 2000, "High volatility regime above this $/min"},
	{VolLowThreshold, KindFloat, 200, 20, 1000, "Low volatility regime below this $/min"},
	{FairValueK, KindFloat, 0.6, 0.1, 3.0, "Logistic steepness"},
	{MinEdgeCents, KindInt, 5, 1, 30, "Minimum edge to enter"},
	{TrendFollowVelocity, KindFloat, 2.0, 0.5, 20, "Velocity in $/s for the high-vol trend bonus"},
	boolField(RuleSitOutLowVol, true, "Hold in the low volatility regime"),
	{RuleMinConfidence, KindFloat, 0.6, 0.3, 0.95, "Minimum confidence to enter"},
	boolField(EdgeExitEnabled, true, "Exit when edge has been captured"),
	{EdgeExitThresholdCents, KindInt, 2, 0, 15, "Remaining edge that triggers edge exit"},
	{EdgeExitMinHoldSecs, KindInt, 30, 10, 120, "Minimum hold before edge exit"},
	{EdgeExitCooldownSecs, KindInt, 30, 10, 120, "Re-entry cooldown after edge exit"},
	{ReentryEdgePremium, KindInt, 3, 0, 15, "Extra edge required to re-enter after edge exit"},
	{PaperStartingBalance, KindFloat, 100, 10, 100000, "Paper account starting balance"},
	{PaperFillFraction, KindFloat, 1.0, 0.05, 1.0, "Fraction of visible depth a paper order can take"},
}

var byKey = func() map[string]Field {
	m := make(map[string]Field, len(schema))
	for _, f := range schema {
		m[f.Key] = f
	}
	return m
}()

// Fields returns the schema in display order.
func Fields() []Field {
	out := make([]Field, len(schema))
	copy(out, schema)
	return out
}

// Lookup returns the field for key.
func Lookup(key string) (Field, bool) {
	f, ok := byKey[strings.ToUpper(key)]
	return f, ok
}

// Coerce converts raw into the field's numeric representation and checks
// its bounds. Accepted inputs are bool, Go numbers, json.Number and
// strings. Bools are stored as 0 or 1.
func (f Field) Coerce(raw any) (float64, error) {
	v, err := f.parse(raw)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s must be finite", ErrWrongType, f.Key)
	}
	if v < f.Min || v > f.Max {
		return 0, fmt.Errorf("%w: %s=%v not in [%v, %v]", ErrOutOfRange, f.Key, v, f.Min, f.Max)
	}
	return v, nil
}

func (f Field) parse(raw any) (float64, error) {
	if f.Kind == KindBool {
		switch x := raw.(type) {
		case bool:
			if x {
				return 1, nil
			}
			return 0, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(x))
			if err != nil {
				return 0, fmt.Errorf("%w: %s expects bool, got %q", ErrWrongType, f.Key, x)
			}
			return f.parse(b)
		default:
			return 0, fmt.Errorf("%w: %s expects bool, got %T", ErrWrongType, f.Key, raw)
		}
	}

	var v float64
	switch x := raw.(type) {
	case float64:
		v = x
	case float32:
		v = float64(x)
	case int:
		v = float64(x)
	case int64:
		v = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s expects %s, got %q", ErrWrongType, f.Key, f.Kind, x)
		}
		v = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s expects %s, got %q", ErrWrongType, f.Key, f.Kind, x)
		}
		v = n
	default:
		return 0, fmt.Errorf("%w: %s expects %s, got %T", ErrWrongType, f.Key, f.Kind, raw)
	}
	if f.Kind == KindInt && v != math.Trunc(v) {
		return 0, fmt.Errorf("%w: %s expects int, got %v", ErrWrongType, f.Key, v)
	}
	return v, nil
}

// Format renders v the way it is persisted.
func (f Field) Format(v float64) string {
	switch f.Kind {
	case KindBool:
		return strconv.FormatBool(v != 0)
	case KindInt:
		return strconv.FormatInt(int64(v), 10)
	default:
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
}

// Typed returns v as the Go value matching the field kind.
func (f Field) Typed(v float64) any {
	switch f.Kind {
	case KindBool:
		return v != 0
	case KindInt:
		return int(v)
	default:
		return v
	}
}
