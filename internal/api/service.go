// Package api provides the HTTP control and reporting surface of the
// trader: bot status and commands, tunables, trade history, analytics,
// and a WebSocket status stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/atmx/edge-trader/internal/analytics"
	"github.com/atmx/edge-trader/internal/bot"
	"github.com/atmx/edge-trader/internal/config"
	"github.com/atmx/edge-trader/internal/model"
	"github.com/atmx/edge-trader/internal/store"
)

const (
	defaultTradeLimit    = 100
	defaultDecisionLimit = 50
	maxLimit             = 1000
)

// Controller is the bot surface the API drives. *bot.Bot implements it.
type Controller interface {
	Status() bot.Status
	Mode() model.Mode
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	SwitchMode(ctx context.Context, mode model.Mode) error
	ResetPaper(ctx context.Context) (model.AccountState, error)
	SetConfig(ctx context.Context, key string, value any) (config.Entry, error)
	ApplySuggestion(ctx context.Context, key string, value float64) (config.Entry, error)
	Query(text string) string
	OnStatus(fn func(bot.Status))
}

// Service holds the handlers.
type Service struct {
	bot       Controller
	store     store.Store
	cfg       *config.Store
	analytics *analytics.Engine
	hub       *Hub
	logger    *slog.Logger
}

// NewService wires the handlers. When hub is non-nil every published
// bot status is broadcast to WebSocket clients.
func NewService(ctl Controller, st store.Store, cfg *config.Store, an *analytics.Engine, hub *Hub, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{bot: ctl, store: st, cfg: cfg, analytics: an, hub: hub, logger: logger}
	if hub != nil {
		ctl.OnStatus(func(status bot.Status) {
			hub.Broadcast(Message{Type: "status", Data: status})
		})
	}
	return s
}

// --- Request types ---

// ModeRequest is the JSON body for POST /mode.
type ModeRequest struct {
	Mode model.Mode `json:"mode"`
}

// ConfigRequest is the JSON body for POST /config and /analytics/apply.
type ConfigRequest struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// QueryRequest is the JSON body for POST /query.
type QueryRequest struct {
	Text string `json:"text"`
}

// --- Bot ---

// GetStatus handles GET /api/v1/status
func (s *Service) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bot.Status())
}

// StartBot handles POST /api/v1/bot/start
func (s *Service) StartBot(w http.ResponseWriter, r *http.Request) {
	// The loop outlives the request.
	if err := s.bot.Start(context.WithoutCancel(r.Context())); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, s.bot.Status())
}

// StopBot handles POST /api/v1/bot/stop
func (s *Service) StopBot(w http.ResponseWriter, r *http.Request) {
	if err := s.bot.Stop(r.Context()); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, s.bot.Status())
}

// SwitchMode handles POST /api/v1/mode
func (s *Service) SwitchMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.bot.SwitchMode(r.Context(), req.Mode); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, s.bot.Status())
}

// ResetPaper handles POST /api/v1/paper/reset
func (s *Service) ResetPaper(w http.ResponseWriter, r *http.Request) {
	acct, err := s.bot.ResetPaper(r.Context())
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// Query handles POST /api/v1/query
func (s *Service) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, "text is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": s.bot.Query(req.Text)})
}

// --- Tunables ---

// GetConfig handles GET /api/v1/config
func (s *Service) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.All())
}

// SetConfig handles POST /api/v1/config
func (s *Service) SetConfig(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeConfig(w, r)
	if !ok {
		return
	}
	e, err := s.bot.SetConfig(r.Context(), req.Key, req.Value)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// --- Reporting ---

// ListTrades handles GET /api/v1/trades
// Filters: ?mode=paper|live&market=<id>&from=<RFC3339>&to=<RFC3339>&limit=<n>.
func (s *Service) ListTrades(w http.ResponseWriter, r *http.Request) {
	q, err := tradeQuery(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	recs, err := s.store.QueryTrades(r.Context(), q)
	if err != nil {
		s.logger.Error("query trades failed", "err", err)
		writeError(w, "failed to query trades", http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []model.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// ListDecisions handles GET /api/v1/decisions
func (s *Service) ListDecisions(w http.ResponseWriter, r *http.Request) {
	mode, err := modeParam(r, s.bot.Mode())
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := limitParam(r, defaultDecisionLimit)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	logs, err := s.store.RecentDecisions(r.Context(), mode, limit)
	if err != nil {
		s.logger.Error("query decisions failed", "err", err)
		writeError(w, "failed to query decisions", http.StatusInternalServerError)
		return
	}
	if logs == nil {
		logs = []model.DecisionLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// GetAnalytics handles GET /api/v1/analytics?mode=paper|live
// An empty mode analyzes both.
func (s *Service) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	mode, err := modeParam(r, "")
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	report, err := s.analytics.Report(r.Context(), mode)
	if err != nil {
		s.logger.Error("analytics failed", "err", err)
		writeError(w, "failed to build analytics", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ApplySuggestion handles POST /api/v1/analytics/apply
func (s *Service) ApplySuggestion(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeConfig(w, r)
	if !ok {
		return
	}
	v, err := toFloat(req.Value)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	e, err := s.bot.ApplySuggestion(r.Context(), req.Key, v)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// --- helpers ---

func decodeConfig(w http.ResponseWriter, r *http.Request) (ConfigRequest, bool) {
	var req ConfigRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return req, false
	}
	if req.Key == "" {
		writeError(w, "key is required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case json.Number:
		return x.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	}
	return 0, errors.New("value must be a number")
}

func tradeQuery(r *http.Request) (store.TradeQuery, error) {
	var q store.TradeQuery
	var err error
	if q.Mode, err = modeParam(r, ""); err != nil {
		return q, err
	}
	q.MarketID = r.URL.Query().Get("market")
	if q.From, err = timeParam(r, "from"); err != nil {
		return q, err
	}
	if q.To, err = timeParam(r, "to"); err != nil {
		return q, err
	}
	q.Limit, err = limitParam(r, defaultTradeLimit)
	return q, err
}

func modeParam(r *http.Request, def model.Mode) (model.Mode, error) {
	raw := r.URL.Query().Get("mode")
	if raw == "" {
		return def, nil
	}
	m := model.Mode(strings.ToLower(raw))
	if !m.Valid() {
		return "", errors.New("mode must be paper or live")
	}
	return m, nil
}

func timeParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New(name + " must be RFC3339")
	}
	return t, nil
}

func limitParam(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(n, maxLimit), nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, config.ErrUnknownKey),
		errors.Is(err, config.ErrWrongType),
		errors.Is(err, config.ErrOutOfRange),
		errors.Is(err, bot.ErrInvalidMode):
		return http.StatusBadRequest
	case errors.Is(err, bot.ErrAlreadyRunning),
		errors.Is(err, bot.ErrModeUnavailable):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
