package bot

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/edge-trader/internal/config"
	"github.com/atmx/edge-trader/internal/model"
)

// SwitchMode stops the loop and makes mode the active one. The loop is
// left stopped; the caller starts it again deliberately.
func (b *Bot) SwitchMode(ctx context.Context, mode model.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if b.deps.Executors[mode] == nil {
		return fmt.Errorf("%w: %s", ErrModeUnavailable, mode)
	}
	if err := b.Stop(ctx); err != nil {
		return fmt.Errorf("stop before mode switch: %w", err)
	}

	b.cycleMu.Lock()
	b.mu.Lock()
	from := b.mode
	b.mode = mode
	b.mu.Unlock()
	b.refreshAccount()
	b.cycleMu.Unlock()

	b.logger.Info("mode switched", "from", from, "to", mode)
	return nil
}

// ResetPaper clears paper positions and restores the paper balance to
// PAPER_STARTING_BALANCE. Trade history is kept.
func (b *Bot) ResetPaper(ctx context.Context) (model.AccountState, error) {
	b.cycleMu.Lock()
	x := b.deps.Executors[model.ModePaper]
	balance := decimal.NewFromFloat(b.deps.Config.Snapshot().Float(config.PaperStartingBalance)).Round(2)
	x.Ledger().Reset(balance, b.opts.Now())
	b.trackers[model.ModePaper].Reset()
	b.saveAccount(ctx, x)
	acct := x.Ledger().Snapshot()
	b.refreshAccount()
	b.cycleMu.Unlock()

	b.logger.Info("paper account reset", "balance", balance.StringFixed(2))
	return acct, nil
}

// SetConfig validates and applies one tunable. The next cycle sees it.
func (b *Bot) SetConfig(ctx context.Context, key string, value any) (config.Entry, error) {
	e, err := b.deps.Config.Set(ctx, key, value)
	if err != nil {
		return config.Entry{}, err
	}
	b.logger.Info("config updated", "key", key, "value", e.Value)
	if e.Key == config.TradingEnabled {
		b.mu.Lock()
		b.status.TradingEnabled = b.deps.Config.Snapshot().Bool(config.TradingEnabled)
		b.mu.Unlock()
		b.publish()
	}
	return e, nil
}

// ApplySuggestion applies an analytics suggestion through the same
// validation as SetConfig.
func (b *Bot) ApplySuggestion(ctx context.Context, key string, value float64) (config.Entry, error) {
	if b.deps.Analytics == nil {
		return b.SetConfig(ctx, key, value)
	}
	e, err := b.deps.Analytics.Apply(ctx, key, value)
	if err != nil {
		return config.Entry{}, err
	}
	b.logger.Info("suggestion applied", "key", key, "value", e.Value)
	return e, nil
}
