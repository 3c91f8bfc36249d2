package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/maziin00/quotekeeper/account"
	"github.com/maziin00/quotekeeper/orderbook"
)

// ListenKeyClient manages the venue's user-data-stream listenKey lifecycle:
// creation and the periodic keepalive that keeps it from expiring.
type ListenKeyClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewListenKeyClient builds a ListenKeyClient with sane REST timeouts.
func NewListenKeyClient(baseURL, apiKey string) *ListenKeyClient {
	return &ListenKeyClient{BaseURL: baseURL, APIKey: apiKey, HTTPClient: &http.Client{Timeout: 10 * time.Second}}
}

type listenKeyResp struct {
	ListenKey string `json:"listenKey"`
}

// NewListenKey requests a fresh listenKey for the user-data stream.
func (l *ListenKeyClient) NewListenKey(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.BaseURL+"/fapi/v1/listenKey", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-MBX-APIKEY", l.APIKey)
	resp, err := l.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway: create listenKey failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("gateway: create listenKey status %d", resp.StatusCode)
	}
	var lk listenKeyResp
	if err := json.NewDecoder(resp.Body).Decode(&lk); err != nil {
		return "", fmt.Errorf("gateway: decode listenKey response: %w", err)
	}
	if lk.ListenKey == "" {
		return "", fmt.Errorf("gateway: empty listenKey in response")
	}
	return lk.ListenKey, nil
}

// KeepAlive extends the listenKey's 60-minute expiry window.
func (l *ListenKeyClient) KeepAlive(ctx context.Context, listenKey string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, l.BaseURL+"/fapi/v1/listenKey?listenKey="+url.QueryEscape(listenKey), nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-MBX-APIKEY", l.APIKey)
	resp, err := l.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: listenKey keepalive failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("gateway: listenKey keepalive status %d", resp.StatusCode)
	}
	return nil
}

// KeepAliveInterval is how often a live listenKey must be refreshed; the
// venue expires it after 60 minutes of silence.
const KeepAliveInterval = 25 * time.Minute

// RunKeepalive refreshes listenKey every KeepAliveInterval until ctx is
// canceled. Keepalive failures are non-fatal: the connection survives on
// its existing listenKey until the next tick.
func (l *ListenKeyClient) RunKeepalive(ctx context.Context, listenKey string, onError func(error)) {
	ticker := time.NewTicker(KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.KeepAlive(ctx, listenKey); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}

// DepthStream dials the combined depth WS stream for one market and feeds
// every delta into a local orderbook.Book, resyncing the book whenever the
// connection drops.
type DepthStream struct {
	WSEndpoint string
	MarketID   string
	Dialer     *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewDepthStream builds a DepthStream for marketID against wsEndpoint
// (e.g. wss://fstream.binance.com).
func NewDepthStream(wsEndpoint, marketID string) *DepthStream {
	return &DepthStream{WSEndpoint: wsEndpoint, MarketID: marketID, Dialer: websocket.DefaultDialer}
}

// Run dials the stream and applies every delta to book until ctx is
// canceled, reconnecting with a fixed backoff on any read error.
func (d *DepthStream) Run(ctx context.Context, book *orderbook.Book) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := d.runOnce(ctx, book); err != nil {
			select {
			case <-time.After(3 * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (d *DepthStream) runOnce(ctx context.Context, book *orderbook.Book) error {
	stream := strings.ToLower(d.MarketID) + "@depth@100ms"
	u := url.URL{
		Scheme:   "wss",
		Host:     strings.TrimPrefix(d.WSEndpoint, "wss://"),
		Path:     "/stream",
		RawQuery: "streams=" + stream,
	}
	conn, _, err := d.Dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("gateway: depth stream dial failed: %w", err)
	}
	d.mu.Lock()
	d.conn = conn
	d.mu.Unlock()
	defer conn.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_, delta, err := ParseCombinedDepth(raw)
		if err != nil {
			continue
		}
		if err := book.ApplyDelta(ctx, delta); err != nil {
			return err
		}
	}
}

// Close tears down the active depth connection, if any.
func (d *DepthStream) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

// UserDataTransport implements account.Transport against the venue's
// listenKey-based user-data WebSocket.
type UserDataTransport struct {
	WSEndpoint string
	ListenKeys *ListenKeyClient
	Dialer     *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	listenKey string
	cancelKA  context.CancelFunc
}

// NewUserDataTransport builds a transport for the account stream.
func NewUserDataTransport(wsEndpoint string, listenKeys *ListenKeyClient) *UserDataTransport {
	return &UserDataTransport{WSEndpoint: wsEndpoint, ListenKeys: listenKeys, Dialer: websocket.DefaultDialer}
}

// Dial obtains a fresh listenKey, opens the user-data WS connection, and
// starts the background keepalive loop.
func (t *UserDataTransport) Dial(ctx context.Context) error {
	key, err := t.ListenKeys.NewListenKey(ctx)
	if err != nil {
		return err
	}
	wsURL := t.WSEndpoint + "/ws/" + key
	conn, _, err := t.Dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("gateway: user-data stream dial failed: %w", err)
	}
	kaCtx, cancel := context.WithCancel(context.Background())

	t.mu.Lock()
	t.conn = conn
	t.listenKey = key
	t.cancelKA = cancel
	t.mu.Unlock()

	go t.ListenKeys.RunKeepalive(kaCtx, key, nil)
	return nil
}

// Disconnect tears down the active connection and stops its keepalive loop.
func (t *UserDataTransport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelKA != nil {
		t.cancelKA()
		t.cancelKA = nil
	}
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// Recv blocks for the next admissible user-data event, skipping event
// types the account stream has no use for.
func (t *UserDataTransport) Recv() (account.Update, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return account.Update{}, fmt.Errorf("gateway: user-data stream not connected")
	}
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return account.Update{}, err
		}
		order, fill, seq, err := ParseUserDataEvent(raw)
		if err == ErrNonUserData {
			continue
		}
		if err != nil {
			continue
		}
		return account.Update{Order: order, Fill: fill, EventSeq: seq}, nil
	}
}

var _ account.Transport = (*UserDataTransport)(nil)
