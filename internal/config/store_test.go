package config

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

// mapPersister is an in-memory settings table.
type mapPersister struct {
	mu   sync.Mutex
	vals map[string]string
	fail bool
}

func (p *mapPersister) GetSettings(context.Context) (map[string]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.vals))
	for k, v := range p.vals {
		out[k] = v
	}
	return out, nil
}

func (p *mapPersister) SetSetting(_ context.Context, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("disk full")
	}
	p.vals[key] = value
	return nil
}

func TestSchema_DefaultsWithinBounds(t *testing.T) {
	for _, f := range Fields() {
		if f.Default < f.Min || f.Default > f.Max {
			t.Errorf("%s default %v outside [%v, %v]", f.Key, f.Default, f.Min, f.Max)
		}
		if f.Help == "" {
			t.Errorf("%s has no description", f.Key)
		}
	}
}

func TestStore_Set(t *testing.T) {
	ctx := context.Background()
	p := &mapPersister{vals: map[string]string{}}
	s := NewStore(p, nil)

	tests := []struct {
		name    string
		key     string
		raw     any
		wantErr error
		want    float64
	}{
		{"int", MinEdgeCents, 7, nil, 7},
		{"json number", OrderSizePct, json.Number("2.5"), nil, 2.5},
		{"string bool", TradingEnabled, "true", nil, 1},
		{"lowercase key", "hold_expiry_secs", 60, nil, 60},
		{"unknown", "NOPE", 1, ErrUnknownKey, 0},
		{"below min", MinEdgeCents, 0, ErrOutOfRange, 0},
		{"above max", MaxContractPrice, 100, ErrOutOfRange, 0},
		{"fraction for int", StopLossCents, 1.5, ErrWrongType, 0},
		{"number for bool", LeadLagEnabled, 1, ErrWrongType, 0},
		{"garbage string", FairValueK, "steep", ErrWrongType, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := s.Snapshot()
			e, err := s.Set(ctx, tt.key, tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if s.Snapshot() != before {
					t.Error("rejected value replaced the snapshot")
				}
				return
			}
			if err != nil {
				t.Fatalf("Set: %v", err)
			}
			if got := s.Snapshot().Float(e.Key); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	if p.vals["config_MIN_EDGE_CENTS"] != "7" || p.vals["config_TRADING_ENABLED"] != "true" {
		t.Errorf("values not persisted: %v", p.vals)
	}
}

func TestStore_SetIsIdempotent(t *testing.T) {
	s := NewStore(nil, nil)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := s.Set(ctx, FairValueK, 0.8); err != nil {
			t.Fatal(err)
		}
	}
	if got := s.Snapshot().Float(FairValueK); got != 0.8 {
		t.Errorf("expected 0.8, got %v", got)
	}
}

func TestStore_SnapshotIsImmutable(t *testing.T) {
	s := NewStore(nil, nil)
	snap := s.Snapshot()
	if _, err := s.Set(context.Background(), MinEdgeCents, 9); err != nil {
		t.Fatal(err)
	}
	if snap.Int(MinEdgeCents) != 5 {
		t.Errorf("held snapshot changed to %d", snap.Int(MinEdgeCents))
	}
	if s.Snapshot().Int(MinEdgeCents) != 9 {
		t.Error("new snapshot not published")
	}
}

func TestStore_PersistFailureStillApplies(t *testing.T) {
	s := NewStore(&mapPersister{vals: map[string]string{}, fail: true}, nil)
	if _, err := s.Set(context.Background(), MinEdgeCents, 8); err != nil {
		t.Fatalf("persistence failure must not fail Set: %v", err)
	}
	if s.Snapshot().Int(MinEdgeCents) != 8 {
		t.Error("value not applied in memory")
	}
}

func TestStore_Load(t *testing.T) {
	p := &mapPersister{vals: map[string]string{
		"config_MIN_EDGE_CENTS":  "8",
		"config_TRADING_ENABLED": "true",
		"config_FAIR_VALUE_K":    "99",   // out of range, skipped
		"config_BOGUS":           "1",    // unknown, skipped
		"unrelated_key":          "spam", // not a tunable
	}}
	s := NewStore(p, nil)
	if err := s.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot()
	if snap.Int(MinEdgeCents) != 8 || !snap.Bool(TradingEnabled) {
		t.Errorf("persisted values not applied")
	}
	if snap.Float(FairValueK) != 0.6 {
		t.Errorf("invalid persisted value should keep the default, got %v", snap.Float(FairValueK))
	}
}

func TestEntries_TypedValues(t *testing.T) {
	entries := Defaults().Entries()
	if len(entries) != len(Fields()) {
		t.Fatalf("expected %d entries, got %d", len(Fields()), len(entries))
	}
	for _, e := range entries {
		switch e.Key {
		case TradingEnabled:
			if v, ok := e.Value.(bool); !ok || v {
				t.Errorf("TRADING_ENABLED should be false, got %#v", e.Value)
			}
		case MinEdgeCents:
			if v, ok := e.Value.(int); !ok || v != 5 {
				t.Errorf("MIN_EDGE_CENTS should be int 5, got %#v", e.Value)
			}
		case FairValueK:
			if v, ok := e.Value.(float64); !ok || v != 0.6 {
				t.Errorf("FAIR_VALUE_K should be 0.6, got %#v", e.Value)
			}
		}
	}
}
