package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/edge-trader/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) SetSetting(ctx context.Context, key, value string) error {
	if err := s.primary.SetSetting(ctx, key, value); err != nil {
		return err
	}
	s.rdb.Del(ctx, settingsKey())
	return nil
}

func (s *CachedStore) SaveAccount(ctx context.Context, acct *model.AccountState) error {
	if err := s.primary.SaveAccount(ctx, acct); err != nil {
		return err
	}
	s.cacheJSON(ctx, accountKey(acct.Mode), acct)
	return nil
}

func (s *CachedStore) AppendTrade(ctx context.Context, rec *model.TradeRecord) error {
	if err := s.primary.AppendTrade(ctx, rec); err != nil {
		return err
	}
	// Invalidate the per-market trade list.
	s.rdb.Del(ctx, marketTradesKey(rec.Mode, rec.MarketID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetSettings(ctx context.Context) (map[string]string, error) {
	if m, err := s.rdb.HGetAll(ctx, settingsKey()).Result(); err == nil && len(m) > 0 {
		return m, nil
	}

	m, err := s.primary.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if len(m) > 0 {
		fields := make(map[string]interface{}, len(m))
		for k, v := range m {
			fields[k] = v
		}
		pipe := s.rdb.TxPipeline()
		pipe.HSet(ctx, settingsKey(), fields)
		pipe.Expire(ctx, settingsKey(), s.ttl)
		pipe.Exec(ctx)
	}
	return m, nil
}

func (s *CachedStore) GetAccount(ctx context.Context, mode model.Mode) (*model.AccountState, error) {
	data, err := s.rdb.Get(ctx, accountKey(mode)).Bytes()
	if err == nil {
		var a model.AccountState
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	a, err := s.primary.GetAccount(ctx, mode)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, accountKey(mode), a)
	return a, nil
}

// QueryTrades caches the common per-market lookup only.
func (s *CachedStore) QueryTrades(ctx context.Context, q TradeQuery) ([]model.TradeRecord, error) {
	perMarket := q.MarketID != "" && q.Mode != "" && q.From.IsZero() && q.To.IsZero() && q.Limit == 0
	if !perMarket {
		return s.primary.QueryTrades(ctx, q)
	}

	data, err := s.rdb.Get(ctx, marketTradesKey(q.Mode, q.MarketID)).Bytes()
	if err == nil {
		var trades []model.TradeRecord
		if json.Unmarshal(data, &trades) == nil {
			return trades, nil
		}
	}

	trades, err := s.primary.QueryTrades(ctx, q)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, marketTradesKey(q.Mode, q.MarketID), trades)
	return trades, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) RecordDecision(ctx context.Context, d *model.DecisionLog) error {
	return s.primary.RecordDecision(ctx, d)
}

func (s *CachedStore) RecentDecisions(ctx context.Context, mode model.Mode, limit int) ([]model.DecisionLog, error) {
	return s.primary.RecentDecisions(ctx, mode, limit)
}

// --- Pub/sub ---

// StatusChannel carries the bot status after every cycle.
const StatusChannel = "trader:status"

// Publish sends v as JSON on channel and keeps the last value readable
// under the same key.
func (s *CachedStore) Publish(ctx context.Context, channel string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", channel, err)
	}
	if err := s.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	s.rdb.Set(ctx, channel, data, s.ttl)
	return nil
}

// --- Cache helpers ---

func (s *CachedStore) cacheJSON(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func settingsKey() string            { return "trader:settings" }
func accountKey(m model.Mode) string { return fmt.Sprintf("trader:account:%s", m) }
func marketTradesKey(m model.Mode, id string) string {
	return fmt.Sprintf("trader:trades:%s:%s", m, id)
}
