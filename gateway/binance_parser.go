package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/maziin00/quotekeeper/orderbook"
	"github.com/maziin00/quotekeeper/venue"
)

// CombinedMessage is the wrapper the venue's combined WS stream uses.
type CombinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// DepthUpdate is the core fields of a depth-delta message.
type DepthUpdate struct {
	Symbol        string     `json:"s"`
	FirstUpdateID int64      `json:"U"`
	LastUpdateID  int64      `json:"u"`
	Bids          [][2]string `json:"b"`
	Asks          [][2]string `json:"a"`
}

// ParseCombinedDepth parses one combined-stream depth message into the
// core's Delta type, converting every price/size to decimal.Decimal
// immediately — this is the only place in the adapter float64-shaped JSON
// is allowed to exist.
func ParseCombinedDepth(raw []byte) (symbol string, delta orderbook.Delta, err error) {
	var msg CombinedMessage
	if err = json.Unmarshal(raw, &msg); err != nil {
		return "", orderbook.Delta{}, fmt.Errorf("gateway: unmarshal combined message: %w", err)
	}
	var depth DepthUpdate
	if err = json.Unmarshal(msg.Data, &depth); err != nil {
		return "", orderbook.Delta{}, fmt.Errorf("gateway: unmarshal depth update: %w", err)
	}
	bids, err := toLevels(depth.Bids)
	if err != nil {
		return "", orderbook.Delta{}, err
	}
	asks, err := toLevels(depth.Asks)
	if err != nil {
		return "", orderbook.Delta{}, err
	}
	return depth.Symbol, orderbook.Delta{
		FirstUpdateID: depth.FirstUpdateID,
		LastUpdateID:  depth.LastUpdateID,
		Bids:          bids,
		Asks:          asks,
	}, nil
}

func toLevels(raw [][2]string) ([]venue.PriceLevel, error) {
	levels := make([]venue.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		price, err := decimal.NewFromString(pair[0])
		if err != nil {
			return nil, fmt.Errorf("gateway: bad price %q: %w", pair[0], err)
		}
		size, err := decimal.NewFromString(pair[1])
		if err != nil {
			return nil, fmt.Errorf("gateway: bad size %q: %w", pair[1], err)
		}
		levels = append(levels, venue.PriceLevel{Price: price, Size: size})
	}
	return levels, nil
}

// SnapshotPayload is the REST depth-snapshot response shape.
type SnapshotPayload struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

// ParseSnapshot parses a REST depth snapshot response body.
func ParseSnapshot(raw []byte) (updateID int64, bids, asks []venue.PriceLevel, err error) {
	var s SnapshotPayload
	if err = json.Unmarshal(raw, &s); err != nil {
		return 0, nil, nil, fmt.Errorf("gateway: unmarshal snapshot: %w", err)
	}
	bids, err = toLevels(s.Bids)
	if err != nil {
		return 0, nil, nil, err
	}
	asks, err = toLevels(s.Asks)
	if err != nil {
		return 0, nil, nil, err
	}
	return s.LastUpdateID, bids, asks, nil
}

// ErrNonUserData is returned by ParseUserDataEvent for event types the
// account stream has no use for (e.g. listenKey expiry notices).
var ErrNonUserData = fmt.Errorf("gateway: non user-data event")

type userDataEnvelope struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Order     *struct {
		Symbol        string `json:"s"`
		Side          string `json:"S"`
		OrderID       int64  `json:"i"`
		Price         string `json:"p"`
		OrigQty       string `json:"q"`
		ExecutedQty   string `json:"z"`
		LastFilledQty string `json:"l"`
		LastFillPrice string `json:"L"`
		OrderStatus   string `json:"X"`
	} `json:"o"`
}

// ParseUserDataEvent parses one raw message off the venue's user-data
// stream into an account.Update-shaped pair of fields. Only
// ORDER_TRADE_UPDATE carries order and fill information; every other event
// type returns ErrNonUserData so callers can ignore it without logging noise.
func ParseUserDataEvent(raw []byte) (order venue.TrackedOrder, fill *venue.FillEvent, eventSeq int64, err error) {
	var env userDataEnvelope
	if err = json.Unmarshal(raw, &env); err != nil {
		return venue.TrackedOrder{}, nil, 0, fmt.Errorf("gateway: unmarshal user data event: %w", err)
	}
	if env.EventType != "ORDER_TRADE_UPDATE" || env.Order == nil {
		return venue.TrackedOrder{}, nil, 0, ErrNonUserData
	}
	o := env.Order
	price, err := decimal.NewFromString(o.Price)
	if err != nil {
		return venue.TrackedOrder{}, nil, 0, fmt.Errorf("gateway: bad order price %q: %w", o.Price, err)
	}
	origQty, err := decimal.NewFromString(o.OrigQty)
	if err != nil {
		return venue.TrackedOrder{}, nil, 0, fmt.Errorf("gateway: bad order qty %q: %w", o.OrigQty, err)
	}
	execQty, err := decimal.NewFromString(o.ExecutedQty)
	if err != nil {
		return venue.TrackedOrder{}, nil, 0, fmt.Errorf("gateway: bad executed qty %q: %w", o.ExecutedQty, err)
	}
	order = venue.TrackedOrder{
		OrderID:   fmt.Sprintf("%d", o.OrderID),
		MarketID:  o.Symbol,
		Side:      sideFromWire(o.Side),
		Price:     price,
		Remaining: origQty.Sub(execQty),
	}
	if o.LastFilledQty != "" && o.LastFilledQty != "0" {
		lastQty, qtyErr := decimal.NewFromString(o.LastFilledQty)
		if qtyErr != nil {
			return venue.TrackedOrder{}, nil, 0, fmt.Errorf("gateway: bad last filled qty %q: %w", o.LastFilledQty, qtyErr)
		}
		lastPrice, priceErr := decimal.NewFromString(o.LastFillPrice)
		if priceErr != nil {
			return venue.TrackedOrder{}, nil, 0, fmt.Errorf("gateway: bad last fill price %q: %w", o.LastFillPrice, priceErr)
		}
		fill = &venue.FillEvent{
			OrderID:   order.OrderID,
			MarketID:  order.MarketID,
			Side:      order.Side,
			Price:     lastPrice,
			Quantity:  lastQty,
			Remaining: order.Remaining,
			Timestamp: time.UnixMilli(env.EventTime),
		}
	}
	return order, fill, env.EventTime, nil
}
