package feed_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atmx/edge-trader/internal/feed"
	"github.com/atmx/edge-trader/internal/model"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		msg     string
		path    string
		want    float64
		wantErr bool
	}{
		{"string field", `{"e":"trade","p":"65012.50"}`, "p", 65012.5, false},
		{"nested number", `{"params":{"data":{"last_price":64999.5}}}`, "params.data.last_price", 64999.5, false},
		{"array index", `{"data":[{"last":"65001"}]}`, "data.0.last", 65001, false},
		{"missing", `{"type":"subscriptions"}`, "price", 0, true},
		{"index out of range", `{"data":[]}`, "data.0.last", 0, true},
		{"zero price", `{"p":"0"}`, "p", 0, true},
		{"not json", `pong`, "p", 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := feed.Extract([]byte(tc.msg), tc.path)
			if (err != nil) != tc.wantErr {
				t.Fatalf("expected err=%v, got %v", tc.wantErr, err)
			}
			if got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestWSFeed_StreamsLatestPrice(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		subscribed <- string(msg)
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscriptions"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ticker","price":"65123.45"}`))
		// Hold the connection open until the client goes away.
		conn.ReadMessage()
	}))
	defer srv.Close()

	f := feed.NewWSFeed(feed.Config{
		Name:      "coinbase",
		URL:       "ws" + strings.TrimPrefix(srv.URL, "http"),
		Subscribe: `{"type":"subscribe"}`,
		PriceKey:  "price",
	}, nil)

	if f.Latest().Connected {
		t.Fatal("expected disconnected before Connect")
	}
	pushed := make(chan model.PriceTick, 4)
	f.OnTick(func(tick model.PriceTick) {
		select {
		case pushed <- tick:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Connect(ctx)
		close(done)
	}()

	select {
	case msg := <-subscribed:
		if msg != `{"type":"subscribe"}` {
			t.Errorf("unexpected subscribe message %q", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server never received subscribe")
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if tick := f.Latest(); tick.Connected {
			if tick.Price != 65123.45 || tick.Exchange != "coinbase" {
				t.Errorf("unexpected tick %+v", tick)
			}
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !f.Latest().Connected {
		t.Fatal("feed never reported a price")
	}
	select {
	case tick := <-pushed:
		if tick.Price != 65123.45 {
			t.Errorf("expected pushed tick 65123.45, got %v", tick.Price)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("tick was never pushed")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Connect did not return after cancel")
	}
	if f.Latest().Connected {
		t.Error("expected disconnected after cancel")
	}
}
