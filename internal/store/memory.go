package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/atmx/edge-trader/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	trades    []model.TradeRecord
	settings  map[string]string
	accounts  map[model.Mode]*model.AccountState
	decisions []model.DecisionLog
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		settings: make(map[string]string),
		accounts: make(map[model.Mode]*model.AccountState),
	}
}

func (s *MemoryStore) AppendTrade(_ context.Context, rec *model.TradeRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("append trade: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.trades {
		if t.ID == rec.ID {
			return fmt.Errorf("append trade: duplicate id %s", rec.ID)
		}
	}
	// Store a copy so the caller cannot mutate an appended record.
	s.trades = append(s.trades, cloneTrade(rec))
	return nil
}

func (s *MemoryStore) QueryTrades(_ context.Context, q TradeQuery) ([]model.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.TradeRecord
	for i := range s.trades {
		if q.Match(&s.trades[i]) {
			result = append(result, cloneTrade(&s.trades[i]))
		}
	}
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[len(result)-q.Limit:]
	}
	return result, nil
}

func (s *MemoryStore) GetSettings(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.settings))
	for k, v := range s.settings {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) SetSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings[key] = value
	return nil
}

func (s *MemoryStore) GetAccount(_ context.Context, mode model.Mode) (*model.AccountState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[mode]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", mode, ErrNotFound)
	}
	return cloneAccount(a), nil
}

func (s *MemoryStore) SaveAccount(_ context.Context, acct *model.AccountState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[acct.Mode] = cloneAccount(acct)
	return nil
}

func (s *MemoryStore) RecordDecision(_ context.Context, d *model.DecisionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.decisions = append(s.decisions, *d)
	return nil
}

func (s *MemoryStore) RecentDecisions(_ context.Context, mode model.Mode, limit int) ([]model.DecisionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.DecisionLog
	for i := len(s.decisions) - 1; i >= 0; i-- {
		if mode != "" && s.decisions[i].Mode != mode {
			continue
		}
		result = append(result, s.decisions[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}
