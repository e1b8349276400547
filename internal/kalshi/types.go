package kalshi

// marketsResponse from GET /markets
type marketsResponse struct {
	Markets []apiMarket `json:"markets"`
	Cursor  string      `json:"cursor"`
}

// singleMarketResponse from GET /markets/{ticker}
type singleMarketResponse struct {
	Market apiMarket `json:"market"`
}

type apiMarket struct {
	Ticker                 string  `json:"ticker"`
	EventTicker            string  `json:"event_ticker"`
	Title                  string  `json:"title"`
	YesSubTitle            string  `json:"yes_sub_title"`
	Status                 string  `json:"status"`
	Result                 string  `json:"result"`
	CloseTime              string  `json:"close_time"`
	ExpectedExpirationTime string  `json:"expected_expiration_time"`
	FloorStrike            float64 `json:"floor_strike"`
	StrikePrice            float64 `json:"strike_price"`
}

// orderbookResponse from GET /markets/{ticker}/orderbook
type orderbookResponse struct {
	Orderbook apiOrderbook `json:"orderbook"`
}

// apiOrderbook holds resting bids only, as [price_cents, quantity] pairs.
type apiOrderbook struct {
	Yes [][]int `json:"yes"`
	No  [][]int `json:"no"`
}

// createOrderRequest is the body of POST /portfolio/orders.
type createOrderRequest struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id,omitempty"`
	Side          string `json:"side"`
	Action        string `json:"action"`
	Count         int    `json:"count"`
	Type          string `json:"type"`
	YesPrice      int    `json:"yes_price,omitempty"`
	NoPrice       int    `json:"no_price,omitempty"`
	BuyMaxCost    int    `json:"buy_max_cost,omitempty"`
}

type orderResponse struct {
	Order apiOrder `json:"order"`
}

type apiOrder struct {
	OrderID        string `json:"order_id"`
	Status         string `json:"status"` // resting, executed, canceled
	FillCount      int    `json:"fill_count"`
	RemainingCount int    `json:"remaining_count"`
	TakerFillCost  int    `json:"taker_fill_cost"`
	MakerFillCost  int    `json:"maker_fill_cost"`
	YesPrice       int    `json:"yes_price"`
	NoPrice        int    `json:"no_price"`
	Side           string `json:"side"`
}

// balanceResponse from GET /portfolio/balance, in cents.
type balanceResponse struct {
	Balance int64 `json:"balance"`
}
