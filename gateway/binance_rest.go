package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/maziin00/quotekeeper/venue"
)

// BinanceLikeClient is a REST client for a Binance-shaped local perpetual
// venue, signing every authenticated request per SignParams. It
// implements venue.LocalVenueClient.
type BinanceLikeClient struct {
	BaseURL    string
	MarketID   string
	APIKey     string
	Secret     string
	HTTPClient *http.Client
	Limiter    RateLimiter
}

// NewBinanceLikeClient builds a client with sane REST timeouts and a
// default token-bucket limiter, scoped to one quoted market.
func NewBinanceLikeClient(baseURL, marketID, apiKey, secret string) *BinanceLikeClient {
	return &BinanceLikeClient{
		BaseURL:    baseURL,
		MarketID:   marketID,
		APIKey:     apiKey,
		Secret:     secret,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Limiter:    NewTokenBucketLimiter(10, 20),
	}
}

func (c *BinanceLikeClient) signedRequest(ctx context.Context, method, path string, params map[string]string) (*http.Response, error) {
	c.Limiter.Wait()
	query, sig := SignParams(params, c.Secret)
	endpoint := c.BaseURL + path + "?" + query + "&signature=" + url.QueryEscape(sig)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(nil))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.APIKey)
	return c.HTTPClient.Do(req)
}

type placeResp struct {
	OrderID string `json:"orderId"`
}

func (c *BinanceLikeClient) placeOrder(ctx context.Context, side venue.Side, price, size decimal.Decimal, reduceOnly bool) (string, error) {
	params := map[string]string{
		"symbol":      c.MarketID,
		"side":        sideWire(side),
		"type":        "LIMIT",
		"timeInForce": "GTX",
		"price":       price.String(),
		"quantity":    size.String(),
	}
	if reduceOnly {
		params["reduceOnly"] = "true"
	}
	resp, err := c.signedRequest(ctx, http.MethodPost, "/fapi/v1/order", params)
	if err != nil {
		return "", fmt.Errorf("gateway: place order request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("gateway: place order status %d", resp.StatusCode)
	}
	var pr placeResp
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return "", fmt.Errorf("gateway: decode place response: %w", err)
	}
	if pr.OrderID == "" {
		return "", fmt.Errorf("gateway: empty orderId in place response")
	}
	return pr.OrderID, nil
}

func (c *BinanceLikeClient) cancelOrder(ctx context.Context, orderID string) error {
	params := map[string]string{"symbol": c.MarketID, "orderId": orderID}
	resp, err := c.signedRequest(ctx, http.MethodDelete, "/fapi/v1/order", params)
	if err != nil {
		return fmt.Errorf("gateway: cancel order request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("gateway: cancel order status %d", resp.StatusCode)
	}
	return nil
}

// SubmitAtomic submits each action as a sequential signed REST call and
// returns per-action results in the same order, matching the local
// venue's atomic-submit contract.
func (c *BinanceLikeClient) SubmitAtomic(ctx context.Context, actions []venue.Action) ([]venue.ActionResult, error) {
	results := make([]venue.ActionResult, len(actions))
	for i, a := range actions {
		switch a.Kind {
		case venue.ActionCancel:
			err := c.cancelOrder(ctx, a.OrderID)
			results[i] = venue.ActionResult{Kind: a.Kind, Success: err == nil, Err: err}
		case venue.ActionPlace:
			id, err := c.placeOrder(ctx, a.Side, a.Price, a.Size, false)
			results[i] = venue.ActionResult{Kind: a.Kind, Success: err == nil, OrderID: id, Err: err}
		}
	}
	return results, nil
}

// FetchDepthSnapshot fetches the authoritative REST depth snapshot used to
// seed or resync a local order book.
func (c *BinanceLikeClient) FetchDepthSnapshot(ctx context.Context, marketID string) (int64, []venue.PriceLevel, []venue.PriceLevel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/fapi/v1/depth?symbol="+marketID+"&limit=100", nil)
	if err != nil {
		return 0, nil, nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("gateway: fetch depth snapshot failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return 0, nil, nil, fmt.Errorf("gateway: depth snapshot status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("gateway: read depth snapshot body: %w", err)
	}
	return ParseSnapshot(raw)
}

type openOrderResp struct {
	OrderID string `json:"orderId"`
	Symbol  string `json:"symbol"`
	Side    string `json:"side"`
	Price   string `json:"price"`
	OrigQty string `json:"origQty"`
	ExecQty string `json:"executedQty"`
}

type positionResp struct {
	Symbol      string `json:"symbol"`
	PositionAmt string `json:"positionAmt"`
}

// FetchSnapshot fetches the authoritative open-order and position state for
// marketID via REST, used to seed or reseed the Account Stream and Position
// Tracker after a reconnect.
func (c *BinanceLikeClient) FetchSnapshot(ctx context.Context, marketID string) (venue.UserSnapshot, error) {
	orders, err := c.fetchOpenOrders(ctx, marketID)
	if err != nil {
		return venue.UserSnapshot{}, err
	}
	positions, err := c.fetchPositions(ctx, marketID)
	if err != nil {
		return venue.UserSnapshot{}, err
	}
	return venue.UserSnapshot{OpenOrders: orders, Positions: positions}, nil
}

func (c *BinanceLikeClient) fetchOpenOrders(ctx context.Context, marketID string) ([]venue.TrackedOrder, error) {
	resp, err := c.signedRequest(ctx, http.MethodGet, "/fapi/v1/openOrders", map[string]string{"symbol": marketID})
	if err != nil {
		return nil, fmt.Errorf("gateway: fetch open orders failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway: open orders status %d", resp.StatusCode)
	}
	var raw []openOrderResp
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("gateway: decode open orders: %w", err)
	}
	orders := make([]venue.TrackedOrder, 0, len(raw))
	for _, o := range raw {
		price, err := decimal.NewFromString(o.Price)
		if err != nil {
			return nil, fmt.Errorf("gateway: bad order price %q: %w", o.Price, err)
		}
		origQty, err := decimal.NewFromString(o.OrigQty)
		if err != nil {
			return nil, fmt.Errorf("gateway: bad order qty %q: %w", o.OrigQty, err)
		}
		execQty, err := decimal.NewFromString(o.ExecQty)
		if err != nil {
			return nil, fmt.Errorf("gateway: bad executed qty %q: %w", o.ExecQty, err)
		}
		orders = append(orders, venue.TrackedOrder{
			OrderID:   o.OrderID,
			MarketID:  o.Symbol,
			Side:      sideFromWire(o.Side),
			Price:     price,
			Remaining: origQty.Sub(execQty),
		})
	}
	return orders, nil
}

func (c *BinanceLikeClient) fetchPositions(ctx context.Context, marketID string) ([]venue.PositionSnapshot, error) {
	resp, err := c.signedRequest(ctx, http.MethodGet, "/fapi/v2/positionRisk", map[string]string{"symbol": marketID})
	if err != nil {
		return nil, fmt.Errorf("gateway: fetch positions failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway: position risk status %d", resp.StatusCode)
	}
	var raw []positionResp
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("gateway: decode positions: %w", err)
	}
	positions := make([]venue.PositionSnapshot, 0, len(raw))
	for _, p := range raw {
		amt, err := decimal.NewFromString(p.PositionAmt)
		if err != nil {
			return nil, fmt.Errorf("gateway: bad position amount %q: %w", p.PositionAmt, err)
		}
		positions = append(positions, venue.PositionSnapshot{
			MarketID: p.Symbol,
			Size:     amt.Abs(),
			IsLong:   amt.IsPositive(),
		})
	}
	return positions, nil
}

type exchangeInfoResp struct {
	Symbols []struct {
		Symbol  string `json:"symbol"`
		Filters []struct {
			FilterType  string `json:"filterType"`
			TickSize    string `json:"tickSize"`
			StepSize    string `json:"stepSize"`
			MinQty      string `json:"minQty"`
			MaxQty      string `json:"maxQty"`
			MinNotional string `json:"notional"`
		} `json:"filters"`
	} `json:"symbols"`
}

// Constraints fetches the venue's tick/lot/notional limits for marketID
// from the public exchange-info endpoint.
func (c *BinanceLikeClient) Constraints(marketID string) (venue.SymbolConstraints, error) {
	resp, err := c.HTTPClient.Get(c.BaseURL + "/fapi/v1/exchangeInfo")
	if err != nil {
		return venue.SymbolConstraints{}, fmt.Errorf("gateway: fetch exchange info failed: %w", err)
	}
	defer resp.Body.Close()
	var info exchangeInfoResp
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return venue.SymbolConstraints{}, fmt.Errorf("gateway: decode exchange info: %w", err)
	}
	for _, s := range info.Symbols {
		if s.Symbol != marketID {
			continue
		}
		var sc venue.SymbolConstraints
		for _, f := range s.Filters {
			switch f.FilterType {
			case "PRICE_FILTER":
				sc.TickSize = decimal.RequireFromString(f.TickSize)
			case "LOT_SIZE":
				sc.StepSize = decimal.RequireFromString(f.StepSize)
				sc.MinQty = decimal.RequireFromString(f.MinQty)
				sc.MaxQty = decimal.RequireFromString(f.MaxQty)
			case "MIN_NOTIONAL":
				sc.MinNotional = decimal.RequireFromString(f.MinNotional)
			}
		}
		return sc, nil
	}
	return venue.SymbolConstraints{}, fmt.Errorf("gateway: symbol %s not found in exchange info", marketID)
}

func sideFromWire(s string) venue.Side {
	if s == "BUY" {
		return venue.SideBid
	}
	return venue.SideAsk
}

func sideWire(s venue.Side) string {
	if s == venue.SideBid {
		return "BUY"
	}
	return "SELL"
}

var _ venue.LocalVenueClient = (*BinanceLikeClient)(nil)
