// Package fairvalue converts a settlement forecast into the fair price of
// a YES contract.
//
//	scaled = max(MinScaledVol, vol$/min * sqrt(minutes left))
//	z      = (projected - strike) / scaled
//	p      = 1 / (1 + exp(-k*z))
//
// p is clamped to [MinProb, MaxProb] and rounded to whole cents. The
// steepness k must stay moderate: a steep curve pushes fair value to
// 1c/99c where the market is already priced correctly and no edge is left.
package fairvalue

import (
	"math"

	"github.com/atmx/edge-trader/internal/model"
)

const (
	// MinScaledVol floors the denominator so zero volatility cannot blow
	// z up to infinity.
	MinScaledVol = 1.0

	MinProb = 0.01
	MaxProb = 0.99

	// minMinutes floors the horizon at one minute.
	minMinutes = 1.0
)

// Input is everything the model needs.
type Input struct {
	Projected       float64
	Strike          float64
	SecondsLeft     float64
	VolDollarPerMin float64
	K               float64
}

// Compute returns the fair value. A missing forecast or strike yields a
// neutral 50c.
func Compute(in Input) model.FairValue {
	if in.Projected <= 0 || in.Strike <= 0 || math.IsNaN(in.Projected) {
		return model.FairValue{YesCents: 50, YesProb: 0.5}
	}

	minutes := math.Max(in.SecondsLeft/60, minMinutes)
	vol := in.VolDollarPerMin
	if vol < 0 || math.IsNaN(vol) {
		vol = 0
	}
	scaled := math.Max(vol*math.Sqrt(minutes), MinScaledVol)
	z := (in.Projected - in.Strike) / scaled

	p := clamp(logistic(in.K*z), MinProb, MaxProb)
	cents := int(math.Round(p * 100))
	if cents < 0 {
		cents = 0
	} else if cents > 100 {
		cents = 100
	}
	return model.FairValue{YesCents: cents, YesProb: p, Z: z, ScaledVol: scaled}
}

// logistic is evaluated on the side that keeps exp from overflowing.
func logistic(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
