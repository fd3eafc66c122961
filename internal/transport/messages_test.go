package transport_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiputravu-labs/meridian/internal/book"
	"github.com/saiputravu-labs/meridian/internal/common"
	"github.com/saiputravu-labs/meridian/internal/transport"
)

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, transport.WriteFrame(&buf, transport.MethodSubmitOrder, []byte("payload")))

	f, err := transport.ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, transport.MethodSubmitOrder, f.Method)
	assert.Equal(t, []byte("payload"), f.Payload)
}

func TestOrder_EncodeDecodeRoundTrip(t *testing.T) {
	o := &common.Order{
		OrderID:           "abc-123",
		ClientID:          "alice",
		OriginEngineAddr:  "engine-1",
		Symbol:            "BTCUSD",
		Side:              common.Sell,
		Price:             decimal.NewFromFloat(101.50),
		Quantity:          10,
		RemainingQuantity: 7,
		Status:            common.StatusPartiallyFilled,
		Timestamp:         time.Now().Truncate(time.Nanosecond),
	}

	encoded := transport.EncodeOrder(nil, o)
	decoded, rest, err := transport.DecodeOrder(encoded)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, o.OrderID, decoded.OrderID)
	assert.Equal(t, o.ClientID, decoded.ClientID)
	assert.Equal(t, o.OriginEngineAddr, decoded.OriginEngineAddr)
	assert.Equal(t, o.Symbol, decoded.Symbol)
	assert.Equal(t, o.Side, decoded.Side)
	assert.True(t, o.Price.Equal(decoded.Price))
	assert.Equal(t, o.Quantity, decoded.Quantity)
	assert.Equal(t, o.RemainingQuantity, decoded.RemainingQuantity)
	assert.Equal(t, o.Status, decoded.Status)
}

func TestSubmitOrderResponse_EncodeDecodeRoundTrip(t *testing.T) {
	res := transport.SubmitOrderResponse{
		OrderID: "abc-123",
		Routed:  false,
		Fills: []common.Fill{
			{
				FillID: "f1", OrderIDIncoming: "abc-123", OrderIDResting: "xyz-789",
				Symbol: "BTCUSD", Price: decimal.NewFromInt(100), Quantity: 3,
				Timestamp: time.Now().Truncate(time.Nanosecond), BuyerID: "alice", SellerID: "bob",
				EngineDestination: "engine-1",
			},
		},
	}

	decoded, err := transport.DecodeSubmitOrderResponse(res.Encode())
	require.NoError(t, err)
	assert.Equal(t, res.OrderID, decoded.OrderID)
	assert.Equal(t, res.Routed, decoded.Routed)
	require.Len(t, decoded.Fills, 1)
	assert.Equal(t, res.Fills[0].FillID, decoded.Fills[0].FillID)
	assert.True(t, res.Fills[0].Price.Equal(decoded.Fills[0].Price))
}

func TestGetOrderBookResponse_EncodeDecodeRoundTrip(t *testing.T) {
	res := transport.GetOrderBookResponse{
		Symbol:   "BTCUSD",
		Sequence: 42,
		Bids: []book.LevelSnapshot{
			{Price: decimal.NewFromInt(99), TotalRemaining: 5, OrderCount: 2},
		},
		Asks: nil,
	}

	decoded, err := transport.DecodeGetOrderBookResponse(res.Encode())
	require.NoError(t, err)
	assert.Equal(t, res.Symbol, decoded.Symbol)
	assert.Equal(t, res.Sequence, decoded.Sequence)
	require.Len(t, decoded.Bids, 1)
	assert.True(t, res.Bids[0].Price.Equal(decoded.Bids[0].Price))
	assert.Empty(t, decoded.Asks)
}

func TestAssignClientRequest_EncodeDecodeRoundTrip(t *testing.T) {
	req := transport.AssignClientRequest{ClientID: "alice", Secret: "sekret", Location: "us-east"}
	decoded, err := transport.DecodeAssignClientRequest(req.Encode())
	require.NoError(t, err)
	assert.Equal(t, req, decoded)
}
