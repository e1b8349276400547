package fairvalue

import (
	"math"
	"testing"
)

func TestCompute_AboveStrikeScenario(t *testing.T) {
	fv := Compute(Input{
		Projected:       65300,
		Strike:          65000,
		SecondsLeft:     300,
		VolDollarPerMin: 150,
		K:               0.6,
	})
	if fv.Z <= 0 {
		t.Fatalf("expected z > 0, got %v", fv.Z)
	}
	if fv.YesCents <= 50 {
		t.Errorf("expected fair > 50c, got %d", fv.YesCents)
	}
	// Market YES ask at 48c leaves more than the 5c minimum edge.
	if edge := fv.YesCents - 48; edge <= 5 {
		t.Errorf("expected yes edge > 5c at 48c, got %d", edge)
	}
}

func TestCompute_Symmetry(t *testing.T) {
	up := Compute(Input{Projected: 65200, Strike: 65000, SecondsLeft: 600, VolDollarPerMin: 100, K: 0.6})
	down := Compute(Input{Projected: 64800, Strike: 65000, SecondsLeft: 600, VolDollarPerMin: 100, K: 0.6})
	if up.YesCents+down.YesCents != 100 {
		t.Errorf("expected symmetric fair values, got %d and %d", up.YesCents, down.YesCents)
	}
	at := Compute(Input{Projected: 65000, Strike: 65000, SecondsLeft: 600, VolDollarPerMin: 100, K: 0.6})
	if at.YesCents != 50 {
		t.Errorf("expected 50c at the strike, got %d", at.YesCents)
	}
}

func TestCompute_Bounds(t *testing.T) {
	tests := []struct {
		name string
		in   Input
	}{
		{"zero vol far above", Input{Projected: 70000, Strike: 65000, SecondsLeft: 60, VolDollarPerMin: 0, K: 3}},
		{"zero vol far below", Input{Projected: 60000, Strike: 65000, SecondsLeft: 60, VolDollarPerMin: 0, K: 3}},
		{"huge k", Input{Projected: 65001, Strike: 65000, SecondsLeft: 0, VolDollarPerMin: 0.01, K: 1e6}},
		{"negative vol", Input{Projected: 65100, Strike: 65000, SecondsLeft: 900, VolDollarPerMin: -5, K: 0.6}},
		{"no forecast", Input{Projected: 0, Strike: 65000, SecondsLeft: 900, VolDollarPerMin: 100, K: 0.6}},
		{"nan forecast", Input{Projected: math.NaN(), Strike: 65000, SecondsLeft: 900, VolDollarPerMin: 100, K: 0.6}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fv := Compute(tc.in)
			if fv.YesCents < 0 || fv.YesCents > 100 {
				t.Errorf("fair cents %d out of [0,100]", fv.YesCents)
			}
			if fv.YesProb < 0 || fv.YesProb > 1 || math.IsNaN(fv.YesProb) {
				t.Errorf("fair prob %v out of [0,1]", fv.YesProb)
			}
		})
	}
}

func TestCompute_ClampsExtremes(t *testing.T) {
	fv := Compute(Input{Projected: 80000, Strike: 65000, SecondsLeft: 30, VolDollarPerMin: 10, K: 3})
	if fv.YesCents != 99 {
		t.Errorf("expected clamp at 99c, got %d", fv.YesCents)
	}
	fv = Compute(Input{Projected: 50000, Strike: 65000, SecondsLeft: 30, VolDollarPerMin: 10, K: 3})
	if fv.YesCents != 1 {
		t.Errorf("expected clamp at 1c, got %d", fv.YesCents)
	}
}

func TestCompute_MoreTimeMeansLessConviction(t *testing.T) {
	near := Compute(Input{Projected: 65300, Strike: 65000, SecondsLeft: 120, VolDollarPerMin: 150, K: 0.6})
	far := Compute(Input{Projected: 65300, Strike: 65000, SecondsLeft: 840, VolDollarPerMin: 150, K: 0.6})
	if far.YesCents >= near.YesCents {
		t.Errorf("expected less conviction with more time left, near=%d far=%d", near.YesCents, far.YesCents)
	}
}

func TestLogistic_NoOverflow(t *testing.T) {
	if v := logistic(-1000); v != 0 || math.IsNaN(v) {
		t.Errorf("expected 0 for large negative input, got %v", v)
	}
	if v := logistic(1000); v != 1 {
		t.Errorf("expected 1 for large positive input, got %v", v)
	}
}
