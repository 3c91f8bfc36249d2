package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maziin00/quotekeeper/venue"
)

func TestListenKeyClientNewAndKeepAlive(t *testing.T) {
	var sawKeepalive bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			w.Write([]byte(`{"listenKey":"abc123"}`))
		case r.Method == http.MethodPut:
			sawKeepalive = true
			w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	client := NewListenKeyClient(srv.URL, "key")
	key, err := client.NewListenKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", key)

	err = client.KeepAlive(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, sawKeepalive)
}

func TestListenKeyClientRejectsEmptyKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewListenKeyClient(srv.URL, "key")
	_, err := client.NewListenKey(context.Background())
	assert.Error(t, err)
}

func TestParseUserDataEventExtractsOrderAndFill(t *testing.T) {
	raw := []byte(`{"e":"ORDER_TRADE_UPDATE","E":1700000000000,"o":{
		"s":"BTCUSDT","S":"BUY","i":42,"p":"100.5","q":"2","z":"1","l":"1","L":"100.5","X":"PARTIALLY_FILLED"
	}}`)
	order, fill, seq, err := ParseUserDataEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, "42", order.OrderID)
	assert.Equal(t, venue.SideBid, order.Side)
	require.NotNil(t, fill)
	assert.Equal(t, "1", fill.Quantity.String())
	assert.Equal(t, "1", order.Remaining.String())
	assert.EqualValues(t, 1700000000000, seq)
}

func TestParseUserDataEventIgnoresNonOrderEvents(t *testing.T) {
	raw := []byte(`{"e":"ACCOUNT_UPDATE","E":1700000000000}`)
	_, _, _, err := ParseUserDataEvent(raw)
	assert.Equal(t, ErrNonUserData, err)
}

func TestParseUserDataEventSkipsFillWhenNoLastFill(t *testing.T) {
	raw := []byte(`{"e":"ORDER_TRADE_UPDATE","E":1700000000000,"o":{
		"s":"BTCUSDT","S":"SELL","i":7,"p":"101","q":"1","z":"0","l":"0","L":"0","X":"NEW"
	}}`)
	_, fill, _, err := ParseUserDataEvent(raw)
	require.NoError(t, err)
	assert.Nil(t, fill)
}
