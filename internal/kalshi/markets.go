package kalshi

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/atmx/edge-trader/internal/market"
	"github.com/atmx/edge-trader/internal/model"
)

// OpenMarkets lists the open markets of series.
func (c *Client) OpenMarkets(ctx context.Context, series string) ([]market.Market, error) {
	query := url.Values{}
	query.Set("series_ticker", series)
	query.Set("status", "open")
	query.Set("limit", strconv.Itoa(5))

	var resp marketsResponse
	if err := c.get(ctx, "/markets", query, &resp); err != nil {
		return nil, fmt.Errorf("get markets: %w", err)
	}
	out := make([]market.Market, 0, len(resp.Markets))
	for _, m := range resp.Markets {
		out = append(out, m.toMarket())
	}
	return out, nil
}

// GetMarket fetches a single market by ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (market.Market, error) {
	var resp singleMarketResponse
	if err := c.get(ctx, "/markets/"+url.PathEscape(ticker), nil, &resp); err != nil {
		return market.Market{}, fmt.Errorf("get market %s: %w", ticker, err)
	}
	return resp.Market.toMarket(), nil
}

// Orderbook fetches the book of ticker in buyer-side form.
func (c *Client) Orderbook(ctx context.Context, ticker string) (model.Orderbook, error) {
	var resp orderbookResponse
	if err := c.get(ctx, "/markets/"+url.PathEscape(ticker)+"/orderbook", nil, &resp); err != nil {
		return model.Orderbook{}, fmt.Errorf("get orderbook %s: %w", ticker, err)
	}
	ob := ConvertOrderbook(resp.Orderbook.Yes, resp.Orderbook.No)
	ob.FetchedAt = c.now().UTC()
	return ob, nil
}

func (m apiMarket) toMarket() market.Market {
	closeStr := m.CloseTime
	if closeStr == "" {
		closeStr = m.ExpectedExpirationTime
	}
	var closeAt time.Time
	if closeStr != "" {
		if t, err := time.Parse(time.RFC3339, closeStr); err == nil {
			closeAt = t.UTC()
		}
	}
	strike := m.FloorStrike
	if strike == 0 {
		strike = m.StrikePrice
	}
	return market.Market{
		Ticker:      m.Ticker,
		Status:      m.Status,
		CloseTime:   closeAt,
		FloorStrike: strike,
		YesSubTitle: m.YesSubTitle,
		Title:       m.Title,
		Result:      m.Result,
	}
}

// ConvertOrderbook turns the venue's resting YES and NO bids into
// buyer-side offers. A NO bid at p is a YES offer at 100-p and the
// reverse; the best bid is the highest YES bid and the best ask is 100
// minus the highest NO bid. Levels may arrive in any order.
func ConvertOrderbook(yesBids, noBids [][]int) model.Orderbook {
	ob := model.Orderbook{BestBid: 0, BestAsk: 100}
	ob.YesLevels, ob.YesDepth = offers(noBids)
	ob.NoLevels, ob.NoDepth = offers(yesBids)
	if len(ob.NoLevels) > 0 {
		ob.BestBid = 100 - ob.NoLevels[0].Price
	}
	if len(ob.YesLevels) > 0 {
		ob.BestAsk = ob.YesLevels[0].Price
	}
	return ob
}

// offers mirrors bids on one side into offers on the other, cheapest
// first.
func offers(bids [][]int) ([]model.Level, int) {
	out := make([]model.Level, 0, len(bids))
	depth := 0
	for _, b := range bids {
		if len(b) < 2 || b[0] <= 0 || b[0] >= 100 || b[1] <= 0 {
			continue
		}
		out = append(out, model.Level{Price: 100 - b[0], Quantity: b[1]})
		depth += b[1]
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out, depth
}
