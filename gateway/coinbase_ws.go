package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shopspring/decimal"

	"github.com/maziin00/quotekeeper/venue"
)

// CoinbaseWSEndpoint is the public Coinbase Exchange WebSocket feed.
const CoinbaseWSEndpoint = "wss://ws-feed.exchange.coinbase.com"

type coinbaseSubscribe struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

type coinbaseTickerMessage struct {
	Type    string `json:"type"`
	Price   string `json:"price"`
	BestBid string `json:"best_bid"`
	BestAsk string `json:"best_ask"`
}

// CoinbaseTransport implements reference.Transport against Coinbase's
// ticker channel, used as an independent reference price for a market
// that wants a venue other than the one it quotes on.
type CoinbaseTransport struct {
	ProductID string
	Endpoint  string
	Dialer    *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewCoinbaseTransport builds a transport subscribed to productID's
// ticker channel (e.g. "BTC-USD").
func NewCoinbaseTransport(productID string) *CoinbaseTransport {
	return &CoinbaseTransport{ProductID: productID, Endpoint: CoinbaseWSEndpoint, Dialer: websocket.DefaultDialer}
}

// Dial opens the WS connection and subscribes to the ticker channel.
func (c *CoinbaseTransport) Dial(ctx context.Context) error {
	conn, _, err := c.Dialer.DialContext(ctx, c.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("gateway: coinbase dial failed: %w", err)
	}
	sub := coinbaseSubscribe{Type: "subscribe", ProductIDs: []string{c.ProductID}, Channels: []string{"ticker"}}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("gateway: coinbase subscribe failed: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Disconnect closes the active connection.
func (c *CoinbaseTransport) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Ping writes a WS ping control frame, using ctx's deadline (or 10s when ctx
// has none) as the write deadline. It returns once the frame is written; it
// does not wait for the pong.
func (c *CoinbaseTransport) Ping(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("gateway: coinbase transport not connected")
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(10 * time.Second)
	}
	return conn.WriteControl(websocket.PingMessage, nil, deadline)
}

// Recv blocks for the next admissible ticker price, skipping any other
// channel message types Coinbase may interleave.
func (c *CoinbaseTransport) Recv() (venue.MidPrice, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return venue.MidPrice{}, fmt.Errorf("gateway: coinbase transport not connected")
	}
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return venue.MidPrice{}, err
		}
		mid, ok, err := parseCoinbaseTicker(raw)
		if err != nil {
			return venue.MidPrice{}, err
		}
		if ok {
			return mid, nil
		}
	}
}

func parseCoinbaseTicker(raw []byte) (venue.MidPrice, bool, error) {
	var msg coinbaseTickerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return venue.MidPrice{}, false, fmt.Errorf("gateway: unmarshal coinbase ticker: %w", err)
	}
	if msg.Type != "ticker" || msg.BestBid == "" || msg.BestAsk == "" {
		return venue.MidPrice{}, false, nil
	}
	bid, err := decimal.NewFromString(msg.BestBid)
	if err != nil {
		return venue.MidPrice{}, false, fmt.Errorf("gateway: bad coinbase bid %q: %w", msg.BestBid, err)
	}
	ask, err := decimal.NewFromString(msg.BestAsk)
	if err != nil {
		return venue.MidPrice{}, false, fmt.Errorf("gateway: bad coinbase ask %q: %w", msg.BestAsk, err)
	}
	mid := bid.Add(ask).Div(decimal.NewFromInt(2))
	return venue.MidPrice{Mid: mid, BestBid: bid, BestAsk: ask, TsMillis: time.Now().UnixMilli()}, true, nil
}
