// Package store defines the persistence interface for the trader.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache for settings and account state), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/atmx/edge-trader/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// TradeQuery filters QueryTrades. Zero fields match everything.
type TradeQuery struct {
	Mode     model.Mode
	MarketID string
	From     time.Time // inclusive
	To       time.Time // exclusive
	Limit    int       // most recent N when > 0
}

// Match reports whether r satisfies the query.
func (q TradeQuery) Match(r *model.TradeRecord) bool {
	if q.Mode != "" && r.Mode != q.Mode {
		return false
	}
	if q.MarketID != "" && r.MarketID != q.MarketID {
		return false
	}
	if !q.From.IsZero() && r.Timestamp.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && !r.Timestamp.Before(q.To) {
		return false
	}
	return true
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Immutable trade log ---

	// AppendTrade appends an immutable trade record.
	AppendTrade(ctx context.Context, rec *model.TradeRecord) error

	// QueryTrades returns matching records ordered by timestamp.
	QueryTrades(ctx context.Context, q TradeQuery) ([]model.TradeRecord, error)

	// --- Settings (tunables and misc keys) ---

	GetSettings(ctx context.Context) (map[string]string, error)
	SetSetting(ctx context.Context, key, value string) error

	// --- Account state per mode ---

	// GetAccount returns ErrNotFound when the mode has never been saved.
	GetAccount(ctx context.Context, mode model.Mode) (*model.AccountState, error)
	SaveAccount(ctx context.Context, acct *model.AccountState) error

	// --- Decision log ---

	RecordDecision(ctx context.Context, d *model.DecisionLog) error
	RecentDecisions(ctx context.Context, mode model.Mode, limit int) ([]model.DecisionLog, error)
}

// cloneTrade copies a record including its P&L pointer.
func cloneTrade(r *model.TradeRecord) model.TradeRecord {
	c := *r
	if r.PnL != nil {
		p := *r.PnL
		c.PnL = &p
	}
	return c
}

// cloneAccount copies an account including its positions.
func cloneAccount(a *model.AccountState) *model.AccountState {
	c := *a
	c.Positions = append([]model.Position(nil), a.Positions...)
	return &c
}
