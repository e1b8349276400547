package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	ErrUnknownKey = errors.New("config: unknown key")
	ErrWrongType  = errors.New("config: wrong value type")
	ErrOutOfRange = errors.New("config: value out of range")
)

// settingPrefix namespaces tunables in the settings table.
const settingPrefix = "config_"

// Persister is the settings half of the persistence interface.
type Persister interface {
	GetSettings(ctx context.Context) (map[string]string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Snapshot is an immutable view of every tunable. A cycle takes one at
// its start and reads only from it.
type Snapshot struct {
	values map[string]float64
}

// Defaults returns a snapshot holding the schema defaults.
func Defaults() *Snapshot {
	vals := make(map[string]float64, len(schema))
	for _, f := range schema {
		vals[f.Key] = f.Default
	}
	return &Snapshot{values: vals}
}

// With returns a copy of s with key set to v. No validation; callers
// needing validation go through Store.Set.
func (s *Snapshot) With(key string, v float64) *Snapshot {
	vals := make(map[string]float64, len(s.values))
	for k, x := range s.values {
		vals[k] = x
	}
	vals[key] = v
	return &Snapshot{values: vals}
}

func (s *Snapshot) Float(key string) float64 { return s.values[key] }
func (s *Snapshot) Int(key string) int       { return int(s.values[key]) }
func (s *Snapshot) Bool(key string) bool     { return s.values[key] != 0 }

// Entry is a field with its current value, for reporting.
type Entry struct {
	Field
	Value any `json:"value"`
}

// Entries returns every tunable in schema order.
func (s *Snapshot) Entries() []Entry {
	out := make([]Entry, 0, len(schema))
	for _, f := range schema {
		out = append(out, Entry{Field: f, Value: f.Typed(s.values[f.Key])})
	}
	return out
}

// Store is the runtime-mutable tunables store. Writes are validated
// against the schema and published as a new Snapshot.
type Store struct {
	persister Persister
	logger    *slog.Logger

	mu  sync.Mutex // serializes writers
	cur atomic.Pointer[Snapshot]
}

// NewStore returns a store holding the defaults. Call Load to apply
// persisted values. persister may be nil.
func NewStore(p Persister, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{persister: p, logger: logger}
	s.cur.Store(Defaults())
	return s
}

// Load applies persisted values over the defaults. Invalid persisted
// values are skipped and logged.
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	settings, err := s.persister.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.cur.Load()
	applied := 0
	for name, raw := range settings {
		if !strings.HasPrefix(name, settingPrefix) {
			continue
		}
		key := strings.TrimPrefix(name, settingPrefix)
		f, ok := Lookup(key)
		if !ok {
			s.logger.Warn("ignoring unknown persisted setting", "key", key)
			continue
		}
		v, err := f.Coerce(raw)
		if err != nil {
			s.logger.Warn("ignoring invalid persisted setting", "key", key, "value", raw, "err", err)
			continue
		}
		snap = snap.With(f.Key, v)
		applied++
	}
	s.cur.Store(snap)
	s.logger.Info("tunables loaded", "persisted", applied)
	return nil
}

// Snapshot returns the current immutable snapshot.
func (s *Store) Snapshot() *Snapshot { return s.cur.Load() }

// All returns the current entries for reporting.
func (s *Store) All() []Entry { return s.Snapshot().Entries() }

// Set validates and applies one value. On error the prior value is kept.
// A persistence failure is logged; the in-memory value still applies.
func (s *Store) Set(ctx context.Context, key string, raw any) (Entry, error) {
	f, ok := Lookup(key)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	v, err := f.Coerce(raw)
	if err != nil {
		return Entry{}, err
	}

	s.mu.Lock()
	next := s.cur.Load().With(f.Key, v)
	s.cur.Store(next)
	s.mu.Unlock()

	if s.persister != nil {
		if err := s.persister.SetSetting(ctx, settingPrefix+f.Key, f.Format(v)); err != nil {
			s.logger.Error("persist tunable failed", "key", f.Key, "err", err)
		}
	}
	s.logger.Info("tunable updated", "key", f.Key, "value", f.Format(v))
	return Entry{Field: f, Value: f.Typed(v)}, nil
}
