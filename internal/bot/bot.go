// Package bot runs the trading cycle. One goroutine drives cycles on a
// ticker; control commands serialize with the cycle through cycleMu, and
// readers see a copied Status.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/edge-trader/internal/analytics"
	"github.com/atmx/edge-trader/internal/config"
	"github.com/atmx/edge-trader/internal/cycle"
	"github.com/atmx/edge-trader/internal/decision"
	"github.com/atmx/edge-trader/internal/execution"
	"github.com/atmx/edge-trader/internal/exit"
	"github.com/atmx/edge-trader/internal/guard"
	"github.com/atmx/edge-trader/internal/ledger"
	"github.com/atmx/edge-trader/internal/model"
	"github.com/atmx/edge-trader/internal/store"
)

var (
	ErrAlreadyRunning  = errors.New("bot: already running")
	ErrInvalidMode     = errors.New("bot: invalid mode")
	ErrModeUnavailable = errors.New("bot: mode not configured")
	ErrCyclePanic      = errors.New("bot: cycle panicked")
)

// Contracts finds the window to trade and reports settled outcomes.
type Contracts interface {
	Active(ctx context.Context, now time.Time, minSecs float64) (model.Contract, error)
	Result(ctx context.Context, marketID string) (string, error)
}

// BookSource fetches the orderbook of a market.
type BookSource interface {
	Orderbook(ctx context.Context, marketID string) (model.Orderbook, error)
}

// Alpha produces the per-cycle price snapshot.
type Alpha interface {
	Refresh(now time.Time) model.GlobalSnapshot
	Reset()
}

// Deps are the collaborators of a Bot. Executors must hold a paper
// executor; live is optional.
type Deps struct {
	Config    *config.Store
	Store     store.Store
	Contracts Contracts
	Books     BookSource
	Alpha     Alpha
	Executors map[model.Mode]*execution.Executor
	Analytics *analytics.Engine
	Logger    *slog.Logger
}

// Options tune the loop.
type Options struct {
	Mode         model.Mode
	SettleGrace  time.Duration // wait for a venue result before falling back
	CycleTimeout time.Duration
	Now          func() time.Time
}

func (o *Options) applyDefaults() {
	if o.Mode == "" {
		o.Mode = model.ModePaper
	}
	if o.SettleGrace <= 0 {
		o.SettleGrace = 90 * time.Second
	}
	if o.CycleTimeout <= 0 {
		o.CycleTimeout = 60 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Bot is the trading controller.
type Bot struct {
	deps   Deps
	opts   Options
	logger *slog.Logger

	guards   *guard.Engine
	decider  *decision.Engine
	exits    *exit.Engine
	trackers map[model.Mode]*cycle.Tracker

	// cycleMu is held for a whole cycle and by commands that touch a
	// ledger. The fields below it are owned by whoever holds it.
	cycleMu      sync.Mutex
	current      string
	seen         map[string]model.Contract
	pendingSince map[string]time.Time
	lastAlpha    model.GlobalSnapshot

	mu        sync.RWMutex
	mode      model.Mode
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	status    Status
	lastOK    time.Time
	listeners []func(Status)
}

// New wires a bot. It does not start the loop.
func New(deps Deps, opts Options) (*Bot, error) {
	opts.applyDefaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Executors[model.ModePaper] == nil {
		return nil, fmt.Errorf("%w: paper executor is required", ErrModeUnavailable)
	}
	if deps.Executors[opts.Mode] == nil {
		return nil, fmt.Errorf("%w: %s", ErrModeUnavailable, opts.Mode)
	}
	g := guard.New()
	b := &Bot{
		deps:         deps,
		opts:         opts,
		logger:       deps.Logger.With("component", "bot"),
		guards:       g,
		decider:      decision.New(g),
		exits:        exit.New(),
		trackers:     make(map[model.Mode]*cycle.Tracker, len(deps.Executors)),
		seen:         make(map[string]model.Contract),
		pendingSince: make(map[string]time.Time),
		mode:         opts.Mode,
	}
	for m := range deps.Executors {
		b.trackers[m] = cycle.NewTracker()
	}
	b.status = Status{Mode: opts.Mode, Account: deps.Executors[opts.Mode].Ledger().Snapshot()}
	return b, nil
}

// LoadLedger restores the persisted account of mode, or opens a fresh
// one holding balance when none was saved.
func LoadLedger(ctx context.Context, st store.Store, mode model.Mode, balance decimal.Decimal, now time.Time) (*ledger.Ledger, error) {
	acct, err := st.GetAccount(ctx, mode)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ledger.New(mode, balance, now), nil
	case err != nil:
		return nil, fmt.Errorf("load %s account: %w", mode, err)
	}
	return ledger.Restore(*acct), nil
}

// Mode returns the active trading mode.
func (b *Bot) Mode() model.Mode {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mode
}

// Running reports whether the loop is active.
func (b *Bot) Running() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// OnStatus registers fn to receive every published status. fn runs on
// the publishing goroutine and must not block.
func (b *Bot) OnStatus(fn func(Status)) {
	b.mu.Lock()
	b.listeners = append(b.listeners, fn)
	b.mu.Unlock()
}

// Start launches the cycle loop.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return ErrAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	b.running, b.cancel, b.done = true, cancel, done
	b.status.Running = true
	mode := b.mode
	b.mu.Unlock()

	go b.run(loopCtx, done)
	b.logger.Info("bot started", "mode", mode)
	b.publish()
	return nil
}

// Stop ends the loop and waits for an in-flight cycle to finish.
func (b *Bot) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	cancel, done := b.cancel, b.done
	b.mu.Unlock()

	cancel()
	select {
	case <-done:
		b.logger.Info("bot stopped")
		b.publish()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bot) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		b.mu.Lock()
		b.running = false
		b.status.Running = false
		b.mu.Unlock()
	}()

	interval := b.interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		// An in-flight cycle is never cut short by Stop.
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.opts.CycleTimeout)
		_ = b.Cycle(cctx)
		cancel()

		if next := b.interval(); next != interval {
			interval = next
			ticker.Reset(interval)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (b *Bot) interval() time.Duration {
	secs := b.deps.Config.Snapshot().Int(config.PollIntervalSeconds)
	if secs <= 0 {
		secs = 10
	}
	return time.Duration(secs) * time.Second
}

func (b *Bot) executor() (*execution.Executor, *cycle.Tracker, model.Mode) {
	mode := b.Mode()
	return b.deps.Executors[mode], b.trackers[mode], mode
}
