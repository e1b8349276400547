// Package market discovers the tradeable 15-minute window of a series:
// ticker parsing, strike extraction and selection among open markets.
package market

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/atmx/edge-trader/internal/model"
)

// WindowDuration is the life of one contract.
const WindowDuration = 15 * time.Minute

var (
	ErrInvalidTicker = errors.New("market: invalid ticker format")
	ErrNoMarket      = errors.New("market: no open market")
	ErrNoStrike      = errors.New("market: strike not found")
)

// Market is an open or settled market as listed by the venue.
type Market struct {
	Ticker      string    `json:"ticker"`
	Status      string    `json:"status"`
	CloseTime   time.Time `json:"close_time"`
	FloorStrike float64   `json:"floor_strike"`
	YesSubTitle string    `json:"yes_sub_title"`
	Title       string    `json:"title"`
	Result      string    `json:"result"` // "yes", "no" or empty until determined
}

// Lister is the venue side of market discovery.
type Lister interface {
	OpenMarkets(ctx context.Context, series string) ([]Market, error)
	GetMarket(ctx context.Context, ticker string) (Market, error)
}

// Ticker is a parsed series ticker.
// Format: {SERIES}-{YY}{MON}{DD}{HHMM}-{suffix}, times in US Eastern.
type Ticker struct {
	Series    string    `json:"series"`
	CloseTime time.Time `json:"close_time"`
	Suffix    string    `json:"suffix"`
}

// tickerRegex matches: KXBTC15M-26MAR011215-15
var tickerRegex = regexp.MustCompile(`^([A-Z0-9]+)-(\d{2}[A-Z]{3}\d{2})(\d{4})-([A-Z0-9.]+)$`)

var eastern = loadEastern()

func loadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("EST", -5*60*60)
	}
	return loc
}

// ParseTicker parses and validates a series ticker.
func ParseTicker(ticker string) (Ticker, error) {
	m := tickerRegex.FindStringSubmatch(ticker)
	if m == nil {
		return Ticker{}, fmt.Errorf("%w: %s (expected {SERIES}-{YYMONDDHHMM}-{suffix})", ErrInvalidTicker, ticker)
	}
	day := m[2][:2] + strings.ToUpper(m[2][2:3]) + strings.ToLower(m[2][3:5]) + m[2][5:]
	closeAt, err := time.ParseInLocation("06Jan021504", day+m[3], eastern)
	if err != nil {
		return Ticker{}, fmt.Errorf("%w: invalid close time %s%s", ErrInvalidTicker, m[2], m[3])
	}
	return Ticker{Series: m[1], CloseTime: closeAt, Suffix: m[4]}, nil
}

var dollarRegex = regexp.MustCompile(`\$([0-9,]+(?:\.[0-9]+)?)`)

// ExtractStrike returns the reference price a market settles against.
// The structured floor strike wins; otherwise the first dollar amount in
// the yes subtitle or title ("Price to beat: $83,873.07") is used.
// Structured values under 1000 are taken to be cents.
func ExtractStrike(m Market) (float64, error) {
	if m.FloorStrike > 0 {
		if m.FloorStrike > 1000 {
			return m.FloorStrike, nil
		}
		return m.FloorStrike / 100, nil
	}
	for _, text := range []string{m.YesSubTitle, m.Title} {
		match := dollarRegex.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", ""), 64)
		if err == nil && v > 0 {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrNoStrike, m.Ticker)
}

// Select picks the market to trade. Markets already closed are ignored.
// Among the rest the soonest to close wins, unless it has less than
// minSecs left and a later one exists, so trading moves to the next
// window while the old one settles.
func Select(markets []Market, now time.Time, minSecs float64) (Market, bool) {
	open := make([]Market, 0, len(markets))
	for _, m := range markets {
		if m.CloseTime.IsZero() || !m.CloseTime.After(now) {
			continue
		}
		open = append(open, m)
	}
	if len(open) == 0 {
		return Market{}, false
	}
	sort.Slice(open, func(i, j int) bool { return open[i].CloseTime.Before(open[j].CloseTime) })
	if len(open) > 1 && open[0].CloseTime.Sub(now).Seconds() < minSecs {
		return open[1], true
	}
	return open[0], true
}

// Contract converts a listed market into the trading model.
func Contract(m Market) (model.Contract, error) {
	strike, err := ExtractStrike(m)
	if err != nil {
		return model.Contract{}, err
	}
	closeAt := m.CloseTime
	if closeAt.IsZero() {
		t, err := ParseTicker(m.Ticker)
		if err != nil {
			return model.Contract{}, err
		}
		closeAt = t.CloseTime
	}
	return model.Contract{
		MarketID:  m.Ticker,
		Strike:    strike,
		CloseTime: closeAt.UTC(),
		Duration:  WindowDuration,
		Result:    strings.ToLower(m.Result),
	}, nil
}
