package analytics

import (
	"github.com/shopspring/decimal"

	"github.com/atmx/edge-trader/internal/cycle"
	"github.com/atmx/edge-trader/internal/model"
)

// Bucket is one slice of a segment.
type Bucket struct {
	Label    string          `json:"label"`
	Lower    float64         `json:"-"`
	Trades   int             `json:"trades"`
	Wins     int             `json:"wins"`
	WinRate  float64         `json:"win_rate"`
	TotalPnL decimal.Decimal `json:"total_pnl"`
	AvgPnL   decimal.Decimal `json:"avg_pnl"`
}

// Segment groups closed trades by one dimension.
type Segment struct {
	Name    string   `json:"name"`
	Buckets []Bucket `json:"buckets"`
}

// Bucket returns the named bucket, or an empty one.
func (s Segment) Bucket(label string) Bucket {
	for _, b := range s.Buckets {
		if b.Label == label {
			return b
		}
	}
	return Bucket{Label: label}
}

// Segment names.
const (
	SegSide       = "side"
	SegEntryPrice = "entry_price"
	SegExitType   = "exit_type"
	SegSize       = "size"
	SegHold       = "hold"
	SegVolRegime  = "vol_regime"
	SegEdge       = "edge"
	SegConfidence = "confidence"
	SegTimeLeft   = "time_left"
)

// band is a labelled half-open range [lower, next lower).
type band struct {
	label string
	lower float64
}

var (
	edgeBands  = []band{{"0-4c", 0}, {"5-9c", 5}, {"10-14c", 10}, {"15c+", 15}}
	confBands  = []band{{"<60%", 0}, {"60-69%", 0.6}, {"70-79%", 0.7}, {"80%+", 0.8}}
	timeBands  = []band{{"90-180s", 0}, {"180-360s", 180}, {"360-600s", 360}, {"600s+", 600}}
	priceBands = []band{{"1-30c", 0}, {"31-50c", 31}, {"51-70c", 51}, {"71-99c", 71}}
	sizeBands  = []band{{"1-5", 0}, {"6-15", 6}, {"16-30", 16}, {"31+", 31}}
	holdBands  = []band{{"<2min", 0}, {"2-5min", 120}, {"5-10min", 300}, {"10min+", 600}}
)

type bands []band

// pick returns the highest band whose lower bound v reaches.
func (bs bands) pick(v float64) band {
	out := bs[0]
	for _, b := range bs {
		if v >= b.lower {
			out = b
		}
	}
	return out
}

type dimension struct {
	name   string
	order  []band
	bucket func(r model.TradeRecord) band
}

func byBands(bs bands, value func(r model.TradeRecord) float64) func(model.TradeRecord) band {
	return func(r model.TradeRecord) band { return bs.pick(value(r)) }
}

func byLabel(value func(r model.TradeRecord) string) func(model.TradeRecord) band {
	return func(r model.TradeRecord) band { return band{label: value(r)} }
}

var dimensions = []dimension{
	{SegSide, []band{{label: string(model.SideYes)}, {label: string(model.SideNo)}},
		byLabel(func(r model.TradeRecord) string { return string(r.Side) })},
	{SegEntryPrice, priceBands,
		byBands(priceBands, func(r model.TradeRecord) float64 { return float64(r.EntryPriceCents) })},
	{SegExitType, []band{
		{label: string(model.TradeSL)}, {label: string(model.TradeTP)}, {label: string(model.TradeEdge)},
		{label: string(model.TradeSell)}, {label: string(model.TradeSettle)},
	}, byLabel(func(r model.TradeRecord) string { return string(r.Action) })},
	{SegSize, sizeBands,
		byBands(sizeBands, func(r model.TradeRecord) float64 { return float64(r.Quantity) })},
	{SegHold, holdBands,
		byBands(holdBands, func(r model.TradeRecord) float64 { return r.HoldSecs })},
	{SegVolRegime, []band{{label: cycle.RegimeLow}, {label: cycle.RegimeMedium}, {label: cycle.RegimeHigh}},
		byLabel(func(r model.TradeRecord) string { return r.VolRegime })},
	{SegEdge, edgeBands,
		byBands(edgeBands, func(r model.TradeRecord) float64 { return float64(r.EdgeCents) })},
	{SegConfidence, confBands,
		byBands(confBands, func(r model.TradeRecord) float64 { return r.Confidence })},
	{SegTimeLeft, timeBands,
		byBands(timeBands, func(r model.TradeRecord) float64 { return r.SecsLeft })},
}

func segment(closed []model.TradeRecord) []Segment {
	out := make([]Segment, 0, len(dimensions))
	for _, dim := range dimensions {
		idx := make(map[string]int, len(dim.order))
		seg := Segment{Name: dim.name, Buckets: make([]Bucket, len(dim.order))}
		for i, b := range dim.order {
			seg.Buckets[i] = Bucket{Label: b.label, Lower: b.lower}
			idx[b.label] = i
		}
		for _, r := range closed {
			i, ok := idx[dim.bucket(r).label]
			if !ok {
				continue
			}
			b := &seg.Buckets[i]
			b.Trades++
			b.TotalPnL = b.TotalPnL.Add(*r.PnL)
			if r.PnL.IsPositive() {
				b.Wins++
			}
		}
		for i := range seg.Buckets {
			b := &seg.Buckets[i]
			if b.Trades > 0 {
				b.WinRate = float64(b.Wins) / float64(b.Trades)
				b.AvgPnL = b.TotalPnL.Div(decimal.NewFromInt(int64(b.Trades))).Round(4)
			}
		}
		out = append(out, seg)
	}
	return out
}

func find(segs []Segment, name string) Segment {
	for _, s := range segs {
		if s.Name == name {
			return s
		}
	}
	return Segment{Name: name}
}
