package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/edge-trader/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS trades (
	id                 TEXT PRIMARY KEY,
	mode               TEXT NOT NULL,
	market_id          TEXT NOT NULL,
	action             TEXT NOT NULL,
	side               TEXT NOT NULL,
	quantity           INTEGER NOT NULL,
	price_cents        INTEGER NOT NULL,
	pnl                NUMERIC,
	exit_trigger       TEXT NOT NULL DEFAULT '',
	terminal           BOOLEAN NOT NULL DEFAULT FALSE,
	ts                 TIMESTAMPTZ NOT NULL,
	entry_price_cents  INTEGER NOT NULL DEFAULT 0,
	edge_cents         INTEGER NOT NULL DEFAULT 0,
	confidence         DOUBLE PRECISION NOT NULL DEFAULT 0,
	secs_left          DOUBLE PRECISION NOT NULL DEFAULT 0,
	vol_regime         TEXT NOT NULL DEFAULT '',
	vol_dollar_per_min DOUBLE PRECISION NOT NULL DEFAULT 0,
	hold_secs          DOUBLE PRECISION NOT NULL DEFAULT 0,
	entry_fair_cents   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS trades_mode_ts ON trades (mode, ts);
CREATE INDEX IF NOT EXISTS trades_market ON trades (market_id, ts);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
	mode           TEXT PRIMARY KEY,
	balance        NUMERIC NOT NULL,
	start_balance  NUMERIC NOT NULL,
	day_pnl        NUMERIC NOT NULL,
	realized_pnl   NUMERIC NOT NULL,
	unrealized_pnl NUMERIC NOT NULL,
	total_exposure NUMERIC NOT NULL,
	day_start      TIMESTAMPTZ NOT NULL,
	positions      JSONB NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS decisions (
	id         BIGSERIAL PRIMARY KEY,
	mode       TEXT NOT NULL,
	market_id  TEXT NOT NULL,
	action     TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	reasoning  TEXT NOT NULL,
	fair_cents INTEGER NOT NULL,
	best_bid   INTEGER NOT NULL,
	best_ask   INTEGER NOT NULL,
	ts         TIMESTAMPTZ NOT NULL
);`

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendTrade(ctx context.Context, r *model.TradeRecord) error {
	var pnl *string
	if r.PnL != nil {
		v := r.PnL.String()
		pnl = &v
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trades (id, mode, market_id, action, side, quantity, price_cents, pnl,
		                     exit_trigger, terminal, ts, entry_price_cents, edge_cents,
		                     confidence, secs_left, vol_regime, vol_dollar_per_min, hold_secs,
		                     entry_fair_cents)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::NUMERIC, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		r.ID, r.Mode, r.MarketID, r.Action, r.Side, r.Quantity, r.PriceCents, pnl,
		r.ExitTrigger, r.Terminal, r.Timestamp, r.EntryPriceCents, r.EdgeCents,
		r.Confidence, r.SecsLeft, r.VolRegime, r.VolDollarPerMin, r.HoldSecs,
		r.EntryFairCents,
	)
	if err != nil {
		return fmt.Errorf("append trade %s: %w", r.ID, err)
	}
	return nil
}

func (s *PostgresStore) QueryTrades(ctx context.Context, q TradeQuery) ([]model.TradeRecord, error) {
	sql := `SELECT id, mode, market_id, action, side, quantity, price_cents, pnl::TEXT,
	               exit_trigger, terminal, ts, entry_price_cents, edge_cents,
	               confidence, secs_left, vol_regime, vol_dollar_per_min, hold_secs,
	               entry_fair_cents
	        FROM trades WHERE TRUE`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q.Mode != "" {
		sql += " AND mode = " + arg(q.Mode)
	}
	if q.MarketID != "" {
		sql += " AND market_id = " + arg(q.MarketID)
	}
	if !q.From.IsZero() {
		sql += " AND ts >= " + arg(q.From)
	}
	if !q.To.IsZero() {
		sql += " AND ts < " + arg(q.To)
	}
	if q.Limit > 0 {
		// Most recent N, returned oldest first.
		sql = "SELECT * FROM (" + sql + " ORDER BY ts DESC LIMIT " + arg(q.Limit) + ") t ORDER BY ts"
	} else {
		sql += " ORDER BY ts"
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

func (s *PostgresStore) GetSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO settings (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, mode model.Mode) (*model.AccountState, error) {
	var a model.AccountState
	var balance, start, day, realized, unrealized, exposure string
	var positions []byte

	err := s.pool.QueryRow(ctx,
		`SELECT mode, balance::TEXT, start_balance::TEXT, day_pnl::TEXT,
		        realized_pnl::TEXT, unrealized_pnl::TEXT, total_exposure::TEXT,
		        day_start, positions
		 FROM accounts WHERE mode = $1`, mode).
		Scan(&a.Mode, &balance, &start, &day, &realized, &unrealized, &exposure,
			&a.DayStart, &positions)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", mode, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", mode, err)
	}

	a.Balance, _ = decimal.NewFromString(balance)
	a.StartBalance, _ = decimal.NewFromString(start)
	a.DayPnL, _ = decimal.NewFromString(day)
	a.RealizedPnL, _ = decimal.NewFromString(realized)
	a.UnrealizedPnL, _ = decimal.NewFromString(unrealized)
	a.TotalExposure, _ = decimal.NewFromString(exposure)
	if err := json.Unmarshal(positions, &a.Positions); err != nil {
		return nil, fmt.Errorf("decode positions for %s: %w", mode, err)
	}
	return &a, nil
}

func (s *PostgresStore) SaveAccount(ctx context.Context, a *model.AccountState) error {
	positions := a.Positions
	if positions == nil {
		positions = []model.Position{}
	}
	data, err := json.Marshal(positions)
	if err != nil {
		return fmt.Errorf("encode positions: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO accounts (mode, balance, start_balance, day_pnl, realized_pnl,
		                       unrealized_pnl, total_exposure, day_start, positions)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8, $9::JSONB)
		 ON CONFLICT (mode) DO UPDATE SET
		     balance = EXCLUDED.balance, start_balance = EXCLUDED.start_balance,
		     day_pnl = EXCLUDED.day_pnl, realized_pnl = EXCLUDED.realized_pnl,
		     unrealized_pnl = EXCLUDED.unrealized_pnl, total_exposure = EXCLUDED.total_exposure,
		     day_start = EXCLUDED.day_start, positions = EXCLUDED.positions`,
		a.Mode, a.Balance.String(), a.StartBalance.String(), a.DayPnL.String(),
		a.RealizedPnL.String(), a.UnrealizedPnL.String(), a.TotalExposure.String(),
		a.DayStart, string(data),
	)
	if err != nil {
		return fmt.Errorf("save account %s: %w", a.Mode, err)
	}
	return nil
}

func (s *PostgresStore) RecordDecision(ctx context.Context, d *model.DecisionLog) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO decisions (mode, market_id, action, confidence, reasoning, fair_cents, best_bid, best_ask, ts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.Mode, d.MarketID, d.Action, d.Confidence, d.Reasoning, d.FairCents, d.BestBid, d.BestAsk, d.Timestamp,
	)
	return err
}

func (s *PostgresStore) RecentDecisions(ctx context.Context, mode model.Mode, limit int) ([]model.DecisionLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT mode, market_id, action, confidence, reasoning, fair_cents, best_bid, best_ask, ts
		 FROM decisions WHERE ($1 = '' OR mode = $1) ORDER BY ts DESC LIMIT $2`, string(mode), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DecisionLog
	for rows.Next() {
		var d model.DecisionLog
		if err := rows.Scan(&d.Mode, &d.MarketID, &d.Action, &d.Confidence, &d.Reasoning,
			&d.FairCents, &d.BestBid, &d.BestAsk, &d.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// scanTrades reads pgx rows into TradeRecord slices.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanTrades(rows pgxRows) ([]model.TradeRecord, error) {
	var out []model.TradeRecord
	for rows.Next() {
		var r model.TradeRecord
		var pnl *string

		if err := rows.Scan(&r.ID, &r.Mode, &r.MarketID, &r.Action, &r.Side, &r.Quantity,
			&r.PriceCents, &pnl, &r.ExitTrigger, &r.Terminal, &r.Timestamp,
			&r.EntryPriceCents, &r.EdgeCents, &r.Confidence, &r.SecsLeft,
			&r.VolRegime, &r.VolDollarPerMin, &r.HoldSecs, &r.EntryFairCents); err != nil {
			return nil, err
		}
		if pnl != nil {
			v, err := decimal.NewFromString(*pnl)
			if err != nil {
				return nil, fmt.Errorf("trade %s pnl: %w", r.ID, err)
			}
			r.PnL = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
